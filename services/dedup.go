// services/dedup.go — pure duplicate-detection logic.
//
// Everything in this file operates on fully-materialized play snapshots
// (participants already loaded) and touches no database. The transactional
// wiring lives in dedup_service.go.
package services

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"play-tracking-system/models"
)

// Detail score weights. A record carrying more information wins a tie among
// otherwise indistinguishable duplicates.
const (
	detailPointsComment = 10
	detailPointsScores  = 5
	detailPointsLength  = 2
)

// participantKey is the canonical, order-independent identity of one play
// participant. Exactly one field is non-empty for a well-formed participant.
type participantKey struct {
	UserID      string
	BGGUsername string
	GuestName   string
}

func (k participantKey) sortKey() string {
	return k.UserID + "\x00" + k.BGGUsername + "\x00" + k.GuestName
}

// keysMatch compares two participants by whichever identity kind both carry.
// There is no fallback across kinds: a registered user and a guest with the
// same display name never match.
func keysMatch(a, b participantKey) bool {
	switch {
	case a.UserID != "" && b.UserID != "":
		return a.UserID == b.UserID
	case a.BGGUsername != "" && b.BGGUsername != "":
		return a.BGGUsername == b.BGGUsername
	case a.GuestName != "" && b.GuestName != "":
		return a.GuestName == b.GuestName
	}
	return false
}

// normalizeParticipants reduces a play's participant list to identity keys
// sorted by a stable composite key, so two lists can be compared positionally
// regardless of the order people were entered in.
func normalizeParticipants(play *models.Play) []participantKey {
	keys := make([]participantKey, 0, len(play.Participants))
	for _, p := range play.Participants {
		var k participantKey
		switch {
		case p.UserID != nil && *p.UserID != "":
			k.UserID = *p.UserID
		case p.BGGUsername != nil && *p.BGGUsername != "":
			k.BGGUsername = *p.BGGUsername
		case p.GuestName != nil && *p.GuestName != "":
			k.GuestName = *p.GuestName
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].sortKey() < keys[j].sortKey()
	})
	return keys
}

// playsMatch is the pairwise duplicate predicate: different creators, equal
// participant counts, and a same-kind identity match at every position.
func playsMatch(p, q *models.Play, pKeys, qKeys []participantKey) bool {
	if p.CreatorID == q.CreatorID {
		return false
	}
	if len(pKeys) != len(qKeys) {
		return false
	}
	for i := range pKeys {
		if !keysMatch(pKeys[i], qKeys[i]) {
			return false
		}
	}
	return true
}

// groupDuplicates partitions a candidate set into connected components under
// playsMatch (union-find, so P~Q and Q~R pulls R into P's group even if P and
// R were never directly compared as matching). Only components of size ≥2 are
// returned; their order follows the candidate order.
func groupDuplicates(candidates []models.Play) [][]models.Play {
	n := len(candidates)
	if n < 2 {
		return nil
	}

	keys := make([][]participantKey, n)
	for i := range candidates {
		keys[i] = normalizeParticipants(&candidates[i])
	}

	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	find := func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]] // path halving
			i = parent[i]
		}
		return i
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if playsMatch(&candidates[i], &candidates[j], keys[i], keys[j]) {
				ri, rj := find(i), find(j)
				if ri != rj {
					parent[rj] = ri
				}
			}
		}
	}

	components := make(map[int][]models.Play)
	var roots []int
	for i := range candidates {
		r := find(i)
		if _, seen := components[r]; !seen {
			roots = append(roots, r)
		}
		components[r] = append(components[r], candidates[i])
	}

	var groups [][]models.Play
	for _, r := range roots {
		if len(components[r]) >= 2 {
			groups = append(groups, components[r])
		}
	}
	return groups
}

// detailScore measures how much optional information a play record carries.
func detailScore(p *models.Play) int {
	score := 0
	if strings.TrimSpace(p.Comment) != "" {
		score += detailPointsComment
	}
	for _, part := range p.Participants {
		if part.Score != nil {
			score += detailPointsScores
			break
		}
	}
	if p.LengthMinutes != nil {
		score += detailPointsLength
	}
	return score
}

// bggIDOrMax treats a missing BGG play id as a maximal sentinel, so plays
// with an id always sort before plays without one.
func bggIDOrMax(p *models.Play) int64 {
	if p.BGGPlayID == nil {
		return math.MaxInt64
	}
	return *p.BGGPlayID
}

// lessCanonical is the total order used to pick a duplicate group's leader:
// earliest created, then lowest BGG play id, then highest detail score, then
// lowest play id. Identical inputs always produce the same winner.
func lessCanonical(p, q *models.Play) bool {
	if !p.CreatedAt.Equal(q.CreatedAt) {
		return p.CreatedAt.Before(q.CreatedAt)
	}
	pe, qe := bggIDOrMax(p), bggIDOrMax(q)
	if pe != qe {
		return pe < qe
	}
	ps, qs := detailScore(p), detailScore(q)
	if ps != qs {
		return ps > qs
	}
	return p.ID < q.ID
}

// selectLeading orders a duplicate group canonically and splits it into the
// single leading play and the excluded rest.
func selectLeading(group []models.Play) (models.Play, []models.Play) {
	sorted := make([]models.Play, len(group))
	copy(sorted, group)
	sort.SliceStable(sorted, func(i, j int) bool {
		return lessCanonical(&sorted[i], &sorted[j])
	})
	return sorted[0], sorted[1:]
}

// exclusionReason is the human-readable note stored on every excluded member
// of a duplicate group.
func exclusionReason(leadingID uint) string {
	return fmt.Sprintf("duplicate of play #%d — same game, date, and participants, logged by a different user", leadingID)
}

// dateOnly truncates a timestamp to its UTC calendar date. PlayedOn values
// are normalized through this before every write and comparison.
func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
