// utils/http.go
package utils

import (
	"net/http"
	"time"
)

// HTTPClient is the shared outbound client for workers. BGG responses are
// small but the API can stall when throttling.
var HTTPClient = &http.Client{
	Timeout: 30 * time.Second,
}
