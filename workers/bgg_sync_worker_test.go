package workers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"play-tracking-system/models"
	"play-tracking-system/services"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const bggPlaysFixture = `<?xml version="1.0" encoding="utf-8"?>
<plays username="alice" userid="101" total="1" page="1">
  <play id="555" date="2025-01-07" quantity="1" length="95" incomplete="0" location="Home">
    <item name="Gloomhaven" objecttype="thing" objectid="174430">
      <subtypes><subtype value="boardgame"/></subtypes>
    </item>
    <comments>Epic session</comments>
    <players>
      <player username="alice" userid="101" name="Alice" score="42" win="1"/>
      <player username="bob_bgg" userid="202" name="Bob" score="37" win="0"/>
      <player username="" userid="0" name="Walk-in Wendy" score="" win="0"/>
    </players>
  </play>
</plays>`

func newWorkerTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Game{},
		&models.Group{},
		&models.GroupMember{},
		&models.GroupUser{},
		&models.Play{},
		&models.PlayParticipant{},
	))
	return db
}

func newTestClient(t *testing.T, db *gorm.DB, fixture string) (*BGGSyncClient, *int) {
	t.Helper()
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		require.Equal(t, "/plays", r.URL.Path)
		require.NotEmpty(t, r.URL.Query().Get("username"))
		require.NotEmpty(t, r.URL.Query().Get("mindate"))
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte(fixture))
	}))
	t.Cleanup(server.Close)

	return &BGGSyncClient{
		BaseURL:      server.URL,
		HTTPClient:   server.Client(),
		DB:           db,
		Dedup:        services.NewDedupService(db),
		RequestDelay: time.Millisecond,
		Lookback:     30 * 24 * time.Hour,
	}, &requests
}

func seedLinkedUser(t *testing.T, db *gorm.DB, externalID, username, bggUsername string, groupID *uint) models.GroupUser {
	t.Helper()
	user := models.GroupUser{
		ID:             externalID + "-local",
		ExternalUserID: externalID,
		Username:       username,
		BGGUsername:    &bggUsername,
	}
	require.NoError(t, db.Create(&user).Error)
	if groupID != nil {
		require.NoError(t, db.Create(&models.GroupMember{GroupID: *groupID, UserID: externalID}).Error)
	}
	return user
}

func TestSyncLinkedUsersImportsPlays(t *testing.T) {
	db := newWorkerTestDB(t)
	client, _ := newTestClient(t, db, bggPlaysFixture)

	group := models.Group{Name: "BGG Crew", Slug: "bgg-crew"}
	require.NoError(t, db.Create(&group).Error)
	seedLinkedUser(t, db, "ext-alice", "alice", "alice", &group.ID)

	require.NoError(t, client.SyncLinkedUsers(context.Background()))

	var play models.Play
	require.NoError(t, db.Preload("Participants").First(&play, "bgg_play_id = ?", 555).Error)

	require.NotNil(t, play.GroupID)
	require.Equal(t, group.ID, *play.GroupID)
	require.Equal(t, "ext-alice", play.CreatorID)
	require.Equal(t, "Epic session", play.Comment)
	require.NotNil(t, play.LengthMinutes)
	require.Equal(t, 95, *play.LengthMinutes)
	require.Equal(t, time.Date(2025, 1, 7, 0, 0, 0, 0, time.UTC), play.PlayedOn.UTC())

	// alice is linked locally → registered-user participant; bob_bgg stays a
	// BGG-username participant; the nameless walk-in becomes a guest.
	require.Len(t, play.Participants, 3)
	kinds := map[string]int{"user": 0, "bgg": 0, "guest": 0}
	for _, p := range play.Participants {
		switch {
		case p.UserID != nil:
			kinds["user"]++
			require.Equal(t, "ext-alice", *p.UserID)
			require.True(t, p.Winner)
			require.NotNil(t, p.Score)
			require.Equal(t, 42.0, *p.Score)
		case p.BGGUsername != nil:
			kinds["bgg"]++
			require.Equal(t, "bob_bgg", *p.BGGUsername)
		case p.GuestName != nil:
			kinds["guest"]++
			require.Equal(t, "Walk-in Wendy", *p.GuestName)
			require.Nil(t, p.Score)
		}
	}
	require.Equal(t, map[string]int{"user": 1, "bgg": 1, "guest": 1}, kinds)

	// Catalog entry created on first sight
	var game models.Game
	require.NoError(t, db.First(&game, "bgg_game_id = ?", 174430).Error)
	require.Equal(t, "Gloomhaven", game.Name)
	require.Equal(t, game.ID, play.GameID)
}

func TestSyncLinkedUsersIsIdempotent(t *testing.T) {
	db := newWorkerTestDB(t)
	client, _ := newTestClient(t, db, bggPlaysFixture)

	group := models.Group{Name: "BGG Crew", Slug: "bgg-crew"}
	require.NoError(t, db.Create(&group).Error)
	seedLinkedUser(t, db, "ext-alice", "alice", "alice", &group.ID)

	require.NoError(t, client.SyncLinkedUsers(context.Background()))
	require.NoError(t, client.SyncLinkedUsers(context.Background()))

	var count int64
	require.NoError(t, db.Model(&models.Play{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestSyncLinkedUsersSkipsUnlinkedUsers(t *testing.T) {
	db := newWorkerTestDB(t)
	client, requests := newTestClient(t, db, bggPlaysFixture)

	require.NoError(t, db.Create(&models.GroupUser{
		ID:             "ext-carol-local",
		ExternalUserID: "ext-carol",
		Username:       "carol",
	}).Error)

	require.NoError(t, client.SyncLinkedUsers(context.Background()))
	require.Zero(t, *requests)
}

func TestImportWithoutMembershipStaysGroupless(t *testing.T) {
	db := newWorkerTestDB(t)
	client, _ := newTestClient(t, db, bggPlaysFixture)

	seedLinkedUser(t, db, "ext-alice", "alice", "alice", nil)

	require.NoError(t, client.SyncLinkedUsers(context.Background()))

	var play models.Play
	require.NoError(t, db.First(&play, "bgg_play_id = ?", 555).Error)
	require.Nil(t, play.GroupID)
	require.False(t, play.IsExcluded) // group-less plays never enter dedup
}

func TestImportedDuplicateGetsExcluded(t *testing.T) {
	db := newWorkerTestDB(t)
	client, _ := newTestClient(t, db, bggPlaysFixture)

	group := models.Group{Name: "BGG Crew", Slug: "bgg-crew"}
	require.NoError(t, db.Create(&group).Error)
	seedLinkedUser(t, db, "ext-alice", "alice", "alice", &group.ID)

	require.NoError(t, client.SyncLinkedUsers(context.Background()))

	var imported models.Play
	require.NoError(t, db.First(&imported, "bgg_play_id = ?", 555).Error)

	// Another member had already hand-logged the same session earlier, with
	// the same participant identities the import produces.
	game := models.Game{}
	require.NoError(t, db.First(&game, "id = ?", imported.GameID).Error)

	manual := models.Play{
		GameID:    game.ID,
		GroupID:   &group.ID,
		CreatorID: "ext-dan",
		PlayedOn:  time.Date(2025, 1, 7, 0, 0, 0, 0, time.UTC),
		CreatedAt: imported.CreatedAt.Add(-time.Hour),
	}
	require.NoError(t, db.Create(&manual).Error)
	alice := "ext-alice"
	bob := "bob_bgg"
	wendy := "Walk-in Wendy"
	require.NoError(t, db.Create(&[]models.PlayParticipant{
		{ID: "m-1", PlayID: manual.ID, UserID: &alice},
		{ID: "m-2", PlayID: manual.ID, BGGUsername: &bob},
		{ID: "m-3", PlayID: manual.ID, GuestName: &wendy},
	}).Error)

	require.NoError(t, client.Dedup.SyncForPlay(manual.ID))

	var after models.Play
	require.NoError(t, db.First(&after, "id = ?", imported.ID).Error)
	require.True(t, after.IsExcluded)
	require.NotNil(t, after.LeadingPlayID)
	require.Equal(t, manual.ID, *after.LeadingPlayID)
}
