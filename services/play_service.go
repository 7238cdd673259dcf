package services

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"play-tracking-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PlayService handles the play-management workflow: create/update/delete of
// play records plus listing. After every committed create or update it hands
// the play to the dedup engine; before deleting a leading play it runs the
// promotion contract inside the delete transaction.
type PlayService struct {
	DB    *gorm.DB
	Dedup *DedupService
}

func NewPlayService(db *gorm.DB, dedup *DedupService) *PlayService {
	return &PlayService{DB: db, Dedup: dedup}
}

// ParticipantInput is one participant as submitted by a client. Exactly one
// of the identity fields must be set.
type ParticipantInput struct {
	UserID      *string  `json:"user_id,omitempty"`
	BGGUsername *string  `json:"bgg_username,omitempty"`
	GuestName   *string  `json:"guest_name,omitempty"`
	Score       *float64 `json:"score,omitempty"`
	Winner      bool     `json:"winner"`
}

// PlayRequest is the create/update payload. Deduplication fields are absent
// on purpose: they are owned by the engine and never user-edited.
type PlayRequest struct {
	GameID        uint               `json:"game_id"`
	GroupID       *uint              `json:"group_id,omitempty"`
	PlayedOn      string             `json:"played_on"` // YYYY-MM-DD
	Comment       string             `json:"comment,omitempty"`
	LengthMinutes *int               `json:"length_minutes,omitempty"`
	Participants  []ParticipantInput `json:"participants"`
}

func (r *PlayRequest) validate() (time.Time, error) {
	if r.GameID == 0 {
		return time.Time{}, errors.New("game_id is required")
	}
	playedOn, err := time.Parse("2006-01-02", r.PlayedOn)
	if err != nil {
		return time.Time{}, fmt.Errorf("played_on must be YYYY-MM-DD: %w", err)
	}
	for i, p := range r.Participants {
		populated := 0
		if p.UserID != nil && *p.UserID != "" {
			populated++
		}
		if p.BGGUsername != nil && *p.BGGUsername != "" {
			populated++
		}
		if p.GuestName != nil && *p.GuestName != "" {
			populated++
		}
		if populated != 1 {
			return time.Time{}, fmt.Errorf("participant %d must have exactly one of user_id, bgg_username, guest_name", i)
		}
	}
	return dateOnly(playedOn), nil
}

func (r *PlayRequest) buildParticipants(playID uint) []models.PlayParticipant {
	participants := make([]models.PlayParticipant, 0, len(r.Participants))
	for _, in := range r.Participants {
		participants = append(participants, models.PlayParticipant{
			ID:          uuid.NewString(),
			PlayID:      playID,
			UserID:      in.UserID,
			BGGUsername: in.BGGUsername,
			GuestName:   in.GuestName,
			Score:       in.Score,
			Winner:      in.Winner,
		})
	}
	return participants
}

// CreatePlay logs a new play for the authenticated user and runs single-play
// dedup sync once the insert has committed.
func (s *PlayService) CreatePlay(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req PlayRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	playedOn, err := req.validate()
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}

	var game models.Game
	if err := s.DB.First(&game, "id = ?", req.GameID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "game not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}
	if req.GroupID != nil {
		if err := s.requireMembership(*req.GroupID, userID); err != nil {
			return c.Status(403).JSON(fiber.Map{"error": err.Error()})
		}
	}

	play := models.Play{
		GameID:        req.GameID,
		GroupID:       req.GroupID,
		CreatorID:     userID,
		PlayedOn:      playedOn,
		Comment:       req.Comment,
		LengthMinutes: req.LengthMinutes,
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&play).Error; err != nil {
			return err
		}
		participants := req.buildParticipants(play.ID)
		if len(participants) > 0 {
			if err := tx.Create(&participants).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("DB Error creating play: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to create play"})
	}

	// Dedup failure is not fatal for the client: the engine is idempotent
	// and the next edit or the maintenance sweep reaches the same state.
	if err := s.Dedup.SyncForPlay(play.ID); err != nil {
		log.Printf("[DEDUP] ⚠️ sync after create of play %d failed: %v", play.ID, err)
	}

	var created models.Play
	if err := s.DB.Preload("Participants").First(&created, "id = ?", play.ID).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to reload play"})
	}
	return c.Status(201).JSON(created)
}

// UpdatePlay rewrites an existing play (fields + full participant list) and
// re-runs dedup sync. Only the creator may edit.
func (s *PlayService) UpdatePlay(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	playID, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid play id"})
	}

	var req PlayRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	playedOn, err := req.validate()
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}

	var play models.Play
	if err := s.DB.First(&play, "id = ?", playID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "play not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}
	if play.CreatorID != userID {
		return c.Status(403).JSON(fiber.Map{"error": "only the creator can edit a play"})
	}
	if req.GroupID != nil {
		if err := s.requireMembership(*req.GroupID, userID); err != nil {
			return c.Status(403).JSON(fiber.Map{"error": err.Error()})
		}
	}

	// 🧹 Transaction: update the row, replace the participant list.
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"game_id":        req.GameID,
			"group_id":       req.GroupID,
			"played_on":      playedOn,
			"comment":        req.Comment,
			"length_minutes": req.LengthMinutes,
		}
		if err := tx.Model(&models.Play{}).Where("id = ?", play.ID).Updates(updates).Error; err != nil {
			return err
		}
		if err := tx.Where("play_id = ?", play.ID).Delete(&models.PlayParticipant{}).Error; err != nil {
			return err
		}
		participants := req.buildParticipants(play.ID)
		if len(participants) > 0 {
			if err := tx.Create(&participants).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("DB Error updating play %d: %v", play.ID, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to update play"})
	}

	if err := s.Dedup.SyncForPlay(play.ID); err != nil {
		log.Printf("[DEDUP] ⚠️ sync after update of play %d failed: %v", play.ID, err)
	}

	var updated models.Play
	if err := s.DB.Preload("Participants").First(&updated, "id = ?", play.ID).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to reload play"})
	}
	return c.JSON(updated)
}

// DeletePlay removes a play. When the play is leading a duplicate group, one
// excluded member is promoted inside the same transaction; the promoted play
// is then re-synced so it gets re-evaluated against remaining candidates.
func (s *PlayService) DeletePlay(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	playID, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid play id"})
	}

	var play models.Play
	if err := s.DB.First(&play, "id = ?", playID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "play not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}
	if play.CreatorID != userID {
		return c.Status(403).JSON(fiber.Map{"error": "only the creator can delete a play"})
	}

	var promotedID *uint
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if !play.IsExcluded {
			id, err := s.Dedup.PromoteSuccessor(tx, &play)
			if err != nil {
				return err
			}
			promotedID = id
		}
		if err := tx.Where("play_id = ?", play.ID).Delete(&models.PlayParticipant{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Play{}, "id = ?", play.ID).Error
	})
	if err != nil {
		log.Printf("DB Error deleting play %d: %v", play.ID, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to delete play"})
	}

	if promotedID != nil {
		if err := s.Dedup.SyncForPlay(*promotedID); err != nil {
			log.Printf("[DEDUP] ⚠️ sync after promotion of play %d failed: %v", *promotedID, err)
		}
	}

	return c.JSON(fiber.Map{"message": "play deleted", "promoted_play_id": promotedID})
}

// GetPlay returns one play with participants.
func (s *PlayService) GetPlay(c *fiber.Ctx) error {
	var play models.Play
	if err := s.DB.Preload("Participants").First(&play, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "play not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}
	return c.JSON(play)
}

// ListPlays lists plays filtered by group_id / game_id / played_on query
// params. Excluded duplicates are hidden unless include_excluded=true, which
// keeps the listing consistent with the statistics contract.
func (s *PlayService) ListPlays(c *fiber.Ctx) error {
	q := s.DB.Preload("Participants").Order("played_on DESC, id DESC")

	if groupID := c.Query("group_id"); groupID != "" {
		q = q.Where("group_id = ?", groupID)
	}
	if gameID := c.Query("game_id"); gameID != "" {
		q = q.Where("game_id = ?", gameID)
	}
	if playedOn := c.Query("played_on"); playedOn != "" {
		day, err := time.Parse("2006-01-02", playedOn)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "played_on must be YYYY-MM-DD"})
		}
		q = q.Where("played_on = ?", dateOnly(day))
	}
	if c.Query("include_excluded") != "true" {
		q = q.Where("is_excluded = ?", false)
	}

	limit, err := strconv.Atoi(c.Query("limit", "50"))
	if err != nil || limit <= 0 || limit > 200 {
		limit = 50
	}

	var plays []models.Play
	if err := q.Limit(limit).Find(&plays).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to list plays", "details": err.Error()})
	}
	return c.JSON(plays)
}

// ResyncPlays triggers a scoped dedup sync. Admin/maintenance endpoint.
func (s *PlayService) ResyncPlays(c *fiber.Ctx) error {
	var scope DedupScope
	if groupID := c.Query("group_id"); groupID != "" {
		id, err := strconv.ParseUint(groupID, 10, 64)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid group_id"})
		}
		v := uint(id)
		scope.GroupID = &v
	}
	if gameID := c.Query("game_id"); gameID != "" {
		id, err := strconv.ParseUint(gameID, 10, 64)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid game_id"})
		}
		v := uint(id)
		scope.GameID = &v
	}
	if playedOn := c.Query("played_on"); playedOn != "" {
		day, err := time.Parse("2006-01-02", playedOn)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "played_on must be YYYY-MM-DD"})
		}
		day = dateOnly(day)
		scope.PlayedOn = &day
	}

	if err := s.Dedup.SyncForScope(scope); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "scoped sync failed", "details": err.Error()})
	}
	return c.JSON(fiber.Map{"message": "dedup sync completed"})
}

func (s *PlayService) requireMembership(groupID uint, userID string) error {
	var count int64
	if err := s.DB.Model(&models.GroupMember{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&count).Error; err != nil {
		return errors.New("failed to verify group membership")
	}
	if count == 0 {
		return errors.New("not a member of this group")
	}
	return nil
}
