// services/scheduler.go
package services

import (
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartMaintenanceScheduler periodically re-runs scoped dedup sync over the
// last few days of plays. BGG imports and edits can land out of order, so the
// sweep picks up whatever the inline sync path missed.
func (s *DedupService) StartMaintenanceScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	// Every 6 hours: sweep the last three calendar days
	_, _ = sched.NewJob(
		gocron.DurationJob(6*time.Hour),
		gocron.NewTask(func() {
			for daysAgo := 0; daysAgo <= 2; daysAgo++ {
				day := dateOnly(time.Now().AddDate(0, 0, -daysAgo))
				if err := s.SyncForScope(DedupScope{PlayedOn: &day}); err != nil {
					log.Printf("[Scheduler] dedup sweep for %s failed: %v", day.Format("2006-01-02"), err)
				} else {
					log.Printf("✅ Dedup sweep completed for %s", day.Format("2006-01-02"))
				}
			}
		}),
	)
}
