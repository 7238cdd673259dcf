package services

import (
	"testing"
	"time"

	"play-tracking-system/models"

	"github.com/stretchr/testify/require"
)

func TestGroupLeaderboardCountsEachSessionOnce(t *testing.T) {
	db := newTestDB(t)
	dedup := NewDedupService(db)
	stats := NewStatsService(db)

	winner := userParticipant("user-5")
	winner.Winner = true

	// The same session logged twice by different members.
	a := seedPlay(t, db, groupedPlay("u1", baseTime), winner, userParticipant("user-9"))
	seedPlay(t, db, groupedPlay("u2", baseTime.Add(time.Hour)), winner, userParticipant("user-9"))

	require.NoError(t, dedup.SyncForPlay(a.ID))

	entries, err := stats.GroupLeaderboard(1)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byUser := make(map[string]LeaderboardEntry)
	for _, e := range entries {
		byUser[e.UserID] = e
	}
	require.EqualValues(t, 1, byUser["user-5"].Plays)
	require.EqualValues(t, 1, byUser["user-5"].Wins)
	require.EqualValues(t, 1, byUser["user-9"].Plays)
	require.EqualValues(t, 0, byUser["user-9"].Wins)
}

func TestMostPlayedGamesSkipsExcludedPlays(t *testing.T) {
	db := newTestDB(t)
	dedup := NewDedupService(db)
	stats := NewStatsService(db)

	a := seedPlay(t, db, groupedPlay("u1", baseTime), userParticipant("user-5"))
	seedPlay(t, db, groupedPlay("u2", baseTime.Add(time.Hour)), userParticipant("user-5"))

	other := groupedPlay("u1", baseTime)
	other.GameID = 20
	seedPlay(t, db, other, userParticipant("user-5"))

	require.NoError(t, dedup.SyncForPlay(a.ID))

	counts, err := stats.MostPlayedGames(1, 10)
	require.NoError(t, err)
	require.Len(t, counts, 2)
	for _, c := range counts {
		require.EqualValues(t, 1, c.Plays, "game %d double-counted", c.GameID)
	}
}

func TestUserPlayCountFiltersExcluded(t *testing.T) {
	db := newTestDB(t)
	dedup := NewDedupService(db)
	stats := NewStatsService(db)

	a := seedPlay(t, db, groupedPlay("u1", baseTime), userParticipant("user-5"))
	seedPlay(t, db, groupedPlay("u2", baseTime.Add(time.Hour)), userParticipant("user-5"))
	require.NoError(t, dedup.SyncForPlay(a.ID))

	count, err := stats.UserPlayCount("user-5")
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	var raw int64
	require.NoError(t, db.Model(&models.PlayParticipant{}).Where("user_id = ?", "user-5").Count(&raw).Error)
	require.EqualValues(t, 2, raw)
}
