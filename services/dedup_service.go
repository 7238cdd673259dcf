package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"play-tracking-system/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DedupService keeps duplicate play records consistently flagged so that
// statistics count each real-world session exactly once. It owns the
// deduplication fields on models.Play; nothing else writes them.
//
// Every sync entry point is idempotent: running it twice over unchanged data
// leaves the stored state byte-identical. A failed write rolls back the whole
// transaction for the affected bucket, so the previous consistent state
// survives and the caller can simply sync again later.
type DedupService struct {
	DB *gorm.DB
}

func NewDedupService(db *gorm.DB) *DedupService {
	return &DedupService{DB: db}
}

// DedupScope filters a bulk sync. Nil fields match everything.
type DedupScope struct {
	GroupID  *uint
	GameID   *uint
	PlayedOn *time.Time
}

// SyncForPlay re-evaluates deduplication for the bucket (group, game, date)
// a single play belongs to. Called by the play workflow after a create or
// update commits.
func (s *DedupService) SyncForPlay(playID uint) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var play models.Play
		if err := tx.Preload("Participants").First(&play, "id = ?", playID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				log.Printf("[DEDUP] play %d vanished before sync, skipping", playID)
				return nil
			}
			return err
		}

		// Plays outside a group are never deduplicated. Note: this branch
		// intentionally leaves any pre-existing exclusion state untouched,
		// matching the behavior when a play is moved out of its group.
		if play.GroupID == nil {
			return nil
		}

		candidates, err := loadCandidates(tx, *play.GroupID, play.GameID, play.PlayedOn)
		if err != nil {
			return err
		}

		if len(candidates) < 2 {
			return clearExclusion(tx, &play)
		}

		groups := groupDuplicates(candidates)

		inAnyGroup := false
		for _, group := range groups {
			for i := range group {
				if group[i].ID == play.ID {
					inAnyGroup = true
				}
			}
		}
		if !inAnyGroup {
			if err := clearExclusion(tx, &play); err != nil {
				return err
			}
		}

		// Any candidate can belong to an unrelated duplicate group, so every
		// emitted group gets written, not just the one containing this play.
		for _, group := range groups {
			leading, excluded := selectLeading(group)
			if err := writeExclusions(tx, leading, excluded); err != nil {
				return err
			}
		}
		return nil
	})
}

// SyncForScope re-runs deduplication over every grouped play matching the
// filters, bucketed by (group, game, date). Used by maintenance tooling and
// the scheduler for backfill, not by the interactive create/update path.
// Each bucket gets its own transaction.
func (s *DedupService) SyncForScope(scope DedupScope) error {
	var plays []models.Play
	q := s.DB.Preload("Participants").Where("group_id IS NOT NULL")
	if scope.GroupID != nil {
		q = q.Where("group_id = ?", *scope.GroupID)
	}
	if scope.GameID != nil {
		q = q.Where("game_id = ?", *scope.GameID)
	}
	if scope.PlayedOn != nil {
		q = q.Where("played_on = ?", dateOnly(*scope.PlayedOn))
	}
	if err := q.Order("id ASC").Find(&plays).Error; err != nil {
		return fmt.Errorf("failed to load plays for scoped dedup sync: %w", err)
	}

	buckets := make(map[string][]models.Play)
	var order []string
	for _, p := range plays {
		key := fmt.Sprintf("%d|%d|%s", *p.GroupID, p.GameID, dateOnly(p.PlayedOn).Format("2006-01-02"))
		if _, seen := buckets[key]; !seen {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], p)
	}

	var failed int
	for _, key := range order {
		if err := s.syncBucket(buckets[key]); err != nil {
			// One broken bucket must not starve the rest of the sweep.
			failed++
			log.Printf("[DEDUP] ❌ bucket %s sync failed: %v", key, err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("scoped dedup sync: %d of %d buckets failed", failed, len(order))
	}
	return nil
}

// syncBucket runs Grouper + Selector + Writer over one (group, game, date)
// bucket inside a single transaction.
func (s *DedupService) syncBucket(bucket []models.Play) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		groups := groupDuplicates(bucket)

		grouped := make(map[uint]bool)
		for _, group := range groups {
			for i := range group {
				grouped[group[i].ID] = true
			}
		}
		// Plays that fell out of every duplicate group get their stale
		// exclusion cleared.
		for i := range bucket {
			if !grouped[bucket[i].ID] {
				if err := clearExclusion(tx, &bucket[i]); err != nil {
					return err
				}
			}
		}

		for _, group := range groups {
			leading, excluded := selectLeading(group)
			if err := writeExclusions(tx, leading, excluded); err != nil {
				return err
			}
		}
		return nil
	})
}

// PromoteSuccessor hands the leading role to one of a leader's excluded
// members. The play workflow calls this inside the same transaction that
// deletes a leading play; deleting an already-excluded play needs no
// promotion. Returns the promoted play id (nil when the leader had no
// excluded members) so the caller can re-run SyncForPlay on it after the
// delete commits.
func (s *DedupService) PromoteSuccessor(tx *gorm.DB, leader *models.Play) (*uint, error) {
	var members []models.Play
	if err := tx.Where("leading_play_id = ?", leader.ID).Order("id ASC").Find(&members).Error; err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}

	promoted := members[0]
	if err := clearExclusion(tx, &promoted); err != nil {
		return nil, err
	}

	if len(members) > 1 {
		rest := make([]uint, 0, len(members)-1)
		for _, m := range members[1:] {
			rest = append(rest, m.ID)
		}
		updates := map[string]interface{}{
			"leading_play_id":  promoted.ID,
			"exclusion_reason": exclusionReason(promoted.ID),
		}
		if err := tx.Model(&models.Play{}).Where("id IN ?", rest).Updates(updates).Error; err != nil {
			return nil, err
		}
	}

	log.Printf("[DEDUP] 👑 play %d promoted to leading before deletion of play %d (%d member(s) re-pointed)",
		promoted.ID, leader.ID, len(members)-1)
	return &promoted.ID, nil
}

// loadCandidates returns every play in the same (group, game, date) bucket
// with participants eagerly attached, ordered by id for determinism. On
// Postgres the candidate rows are locked for the duration of the transaction
// so overlapping syncs serialize; SQLite (tests) takes a database-level write
// lock instead and has no FOR UPDATE syntax.
func loadCandidates(tx *gorm.DB, groupID, gameID uint, playedOn time.Time) ([]models.Play, error) {
	q := tx.Preload("Participants").
		Where("group_id = ? AND game_id = ? AND played_on = ?", groupID, gameID, dateOnly(playedOn)).
		Order("id ASC")
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var candidates []models.Play
	if err := q.Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("failed to load dedup candidates: %w", err)
	}
	return candidates, nil
}

// clearExclusion resets a play to leading state. No-op when already clear.
func clearExclusion(tx *gorm.DB, play *models.Play) error {
	if !play.IsExcluded && play.LeadingPlayID == nil {
		return nil
	}
	updates := map[string]interface{}{
		"is_excluded":      false,
		"leading_play_id":  nil,
		"excluded_at":      nil,
		"exclusion_reason": nil,
	}
	if err := tx.Model(&models.Play{}).Where("id = ?", play.ID).Updates(updates).Error; err != nil {
		return err
	}
	play.IsExcluded = false
	play.LeadingPlayID = nil
	play.ExcludedAt = nil
	play.ExclusionReason = nil
	return nil
}

// writeExclusions persists leader/excluded state for one duplicate group.
// The leader is cleared first, so leading_play_id only ever references a play
// verified to be leading inside the same transaction — no chains, no cycles.
// Members already flagged against this leader are left untouched, which keeps
// the write idempotent (ExcludedAt survives re-syncs).
func writeExclusions(tx *gorm.DB, leading models.Play, excluded []models.Play) error {
	if err := clearExclusion(tx, &leading); err != nil {
		return err
	}

	reason := exclusionReason(leading.ID)
	now := time.Now().UTC()
	var flagged int
	for i := range excluded {
		e := &excluded[i]
		if e.IsExcluded && e.LeadingPlayID != nil && *e.LeadingPlayID == leading.ID {
			continue
		}
		updates := map[string]interface{}{
			"is_excluded":      true,
			"leading_play_id":  leading.ID,
			"excluded_at":      now,
			"exclusion_reason": reason,
		}
		if err := tx.Model(&models.Play{}).Where("id = ?", e.ID).Updates(updates).Error; err != nil {
			return err
		}
		flagged++
	}

	if flagged > 0 {
		log.Printf("[DEDUP] play %d leads a duplicate group of %d (%d newly excluded)",
			leading.ID, len(excluded)+1, flagged)
	}
	return nil
}
