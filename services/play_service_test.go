package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"play-tracking-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// newPlayApp wires a fiber app the way main does, minus the gateway
// middleware: the user context comes straight from the X-User-ID header.
func newPlayApp(db *gorm.DB) (*fiber.App, *PlayService) {
	dedup := NewDedupService(db)
	playService := NewPlayService(db, dedup)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if userID := c.Get("X-User-ID"); userID != "" {
			c.Locals("user_id", userID)
		}
		return c.Next()
	})
	app.Post("/plays", playService.CreatePlay)
	app.Put("/plays/:id", playService.UpdatePlay)
	app.Delete("/plays/:id", playService.DeletePlay)
	app.Get("/plays/:id", playService.GetPlay)
	app.Get("/plays", playService.ListPlays)
	return app, playService
}

func seedGroupAndGame(t *testing.T, db *gorm.DB, memberIDs ...string) (models.Group, models.Game) {
	t.Helper()
	group := models.Group{Name: "Tuesday Night Gamers", Slug: "tuesday-night-gamers"}
	require.NoError(t, db.Create(&group).Error)
	for _, userID := range memberIDs {
		require.NoError(t, db.Create(&models.GroupMember{GroupID: group.ID, UserID: userID}).Error)
	}
	game := models.Game{Name: "Brass Birmingham", Slug: "brass-birmingham"}
	require.NoError(t, db.Create(&game).Error)
	return group, game
}

func doJSON(t *testing.T, app *fiber.App, method, path, userID string, payload interface{}) *http.Response {
	t.Helper()
	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodePlay(t *testing.T, resp *http.Response) models.Play {
	t.Helper()
	var play models.Play
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&play))
	return play
}

func TestCreatePlayRunsDedupInline(t *testing.T) {
	db := newTestDB(t)
	app, _ := newPlayApp(db)
	group, game := seedGroupAndGame(t, db, "u1", "u2")

	payload := PlayRequest{
		GameID:   game.ID,
		GroupID:  &group.ID,
		PlayedOn: "2025-01-07",
		Participants: []ParticipantInput{
			{UserID: strPtr("user-5")},
		},
	}

	respA := doJSON(t, app, "POST", "/plays", "u1", payload)
	require.Equal(t, 201, respA.StatusCode)
	playA := decodePlay(t, respA)
	require.False(t, playA.IsExcluded)

	respB := doJSON(t, app, "POST", "/plays", "u2", payload)
	require.Equal(t, 201, respB.StatusCode)
	playB := decodePlay(t, respB)

	// The second entry of the same session comes back already excluded.
	require.True(t, playB.IsExcluded)
	require.NotNil(t, playB.LeadingPlayID)
	require.Equal(t, playA.ID, *playB.LeadingPlayID)
}

func TestCreatePlayRejectsAmbiguousParticipant(t *testing.T) {
	db := newTestDB(t)
	app, _ := newPlayApp(db)
	group, game := seedGroupAndGame(t, db, "u1")

	payload := PlayRequest{
		GameID:   game.ID,
		GroupID:  &group.ID,
		PlayedOn: "2025-01-07",
		Participants: []ParticipantInput{
			{UserID: strPtr("user-5"), GuestName: strPtr("Dave")},
		},
	}

	resp := doJSON(t, app, "POST", "/plays", "u1", payload)
	require.Equal(t, 400, resp.StatusCode)
}

func TestCreatePlayRequiresMembership(t *testing.T) {
	db := newTestDB(t)
	app, _ := newPlayApp(db)
	group, game := seedGroupAndGame(t, db, "u1")

	payload := PlayRequest{
		GameID:   game.ID,
		GroupID:  &group.ID,
		PlayedOn: "2025-01-07",
	}

	resp := doJSON(t, app, "POST", "/plays", "outsider", payload)
	require.Equal(t, 403, resp.StatusCode)
}

func TestUpdatePlayReevaluatesDuplicates(t *testing.T) {
	db := newTestDB(t)
	app, _ := newPlayApp(db)
	group, game := seedGroupAndGame(t, db, "u1", "u2")

	payload := PlayRequest{
		GameID:   game.ID,
		GroupID:  &group.ID,
		PlayedOn: "2025-01-07",
		Participants: []ParticipantInput{
			{UserID: strPtr("user-5")},
		},
	}
	playA := decodePlay(t, doJSON(t, app, "POST", "/plays", "u1", payload))
	playB := decodePlay(t, doJSON(t, app, "POST", "/plays", "u2", payload))
	require.True(t, playB.IsExcluded)

	// u2 corrects their entry to a different participant: no longer a dup.
	payload.Participants = []ParticipantInput{{UserID: strPtr("user-9")}}
	resp := doJSON(t, app, "PUT", fmt.Sprintf("/plays/%d", playB.ID), "u2", payload)
	require.Equal(t, 200, resp.StatusCode)
	updated := decodePlay(t, resp)
	require.False(t, updated.IsExcluded)

	require.False(t, reload(t, db, playA.ID).IsExcluded)
}

func TestUpdatePlayForbiddenForNonCreator(t *testing.T) {
	db := newTestDB(t)
	app, _ := newPlayApp(db)
	group, game := seedGroupAndGame(t, db, "u1", "u2")

	payload := PlayRequest{
		GameID:   game.ID,
		GroupID:  &group.ID,
		PlayedOn: "2025-01-07",
	}
	play := decodePlay(t, doJSON(t, app, "POST", "/plays", "u1", payload))

	resp := doJSON(t, app, "PUT", fmt.Sprintf("/plays/%d", play.ID), "u2", payload)
	require.Equal(t, 403, resp.StatusCode)
}

func TestDeleteLeadingPlayPromotesSuccessor(t *testing.T) {
	db := newTestDB(t)
	app, _ := newPlayApp(db)
	group, game := seedGroupAndGame(t, db, "u1", "u2")

	payload := PlayRequest{
		GameID:   game.ID,
		GroupID:  &group.ID,
		PlayedOn: "2025-01-07",
		Participants: []ParticipantInput{
			{UserID: strPtr("user-5")},
		},
	}
	playA := decodePlay(t, doJSON(t, app, "POST", "/plays", "u1", payload))
	playB := decodePlay(t, doJSON(t, app, "POST", "/plays", "u2", payload))
	require.True(t, playB.IsExcluded)

	resp := doJSON(t, app, "DELETE", fmt.Sprintf("/plays/%d", playA.ID), "u1", nil)
	require.Equal(t, 200, resp.StatusCode)

	promoted := reload(t, db, playB.ID)
	require.False(t, promoted.IsExcluded)
	require.Nil(t, promoted.LeadingPlayID)
	require.Nil(t, promoted.ExcludedAt)

	var count int64
	require.NoError(t, db.Model(&models.Play{}).Where("id = ?", playA.ID).Count(&count).Error)
	require.Zero(t, count)
}

func TestDeleteExcludedPlayLeavesLeaderUntouched(t *testing.T) {
	db := newTestDB(t)
	app, _ := newPlayApp(db)
	group, game := seedGroupAndGame(t, db, "u1", "u2")

	payload := PlayRequest{
		GameID:   game.ID,
		GroupID:  &group.ID,
		PlayedOn: "2025-01-07",
		Participants: []ParticipantInput{
			{UserID: strPtr("user-5")},
		},
	}
	playA := decodePlay(t, doJSON(t, app, "POST", "/plays", "u1", payload))
	playB := decodePlay(t, doJSON(t, app, "POST", "/plays", "u2", payload))

	resp := doJSON(t, app, "DELETE", fmt.Sprintf("/plays/%d", playB.ID), "u2", nil)
	require.Equal(t, 200, resp.StatusCode)

	leader := reload(t, db, playA.ID)
	require.False(t, leader.IsExcluded)
}

func TestListPlaysHidesExcludedByDefault(t *testing.T) {
	db := newTestDB(t)
	app, _ := newPlayApp(db)
	group, game := seedGroupAndGame(t, db, "u1", "u2")

	payload := PlayRequest{
		GameID:   game.ID,
		GroupID:  &group.ID,
		PlayedOn: "2025-01-07",
		Participants: []ParticipantInput{
			{UserID: strPtr("user-5")},
		},
	}
	doJSON(t, app, "POST", "/plays", "u1", payload)
	doJSON(t, app, "POST", "/plays", "u2", payload)

	resp := doJSON(t, app, "GET", fmt.Sprintf("/plays?group_id=%d", group.ID), "", nil)
	require.Equal(t, 200, resp.StatusCode)
	var visible []models.Play
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&visible))
	require.Len(t, visible, 1)

	resp = doJSON(t, app, "GET", fmt.Sprintf("/plays?group_id=%d&include_excluded=true", group.ID), "", nil)
	var all []models.Play
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&all))
	require.Len(t, all, 2)
}
