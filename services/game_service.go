package services

import (
	"errors"
	"strings"

	"play-tracking-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// GameService manages the board game catalog.
type GameService struct {
	DB *gorm.DB
}

func NewGameService(db *gorm.DB) *GameService {
	return &GameService{DB: db}
}

type GameRequest struct {
	Name          string `json:"name"`
	BGGGameID     *int64 `json:"bgg_game_id,omitempty"`
	YearPublished *int   `json:"year_published,omitempty"`
	MinPlayers    int    `json:"min_players,omitempty"`
	MaxPlayers    int    `json:"max_players,omitempty"`
	ThumbnailURL  string `json:"thumbnail_url,omitempty"`
}

// CreateGame adds a catalog entry. Slug collisions mean the game already
// exists and are reported as a conflict.
func (s *GameService) CreateGame(c *fiber.Ctx) error {
	var req GameRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return c.Status(400).JSON(fiber.Map{"error": "name is required"})
	}

	game := models.Game{
		Name:          name,
		Slug:          slug.Make(name),
		BGGGameID:     req.BGGGameID,
		YearPublished: req.YearPublished,
		MinPlayers:    req.MinPlayers,
		MaxPlayers:    req.MaxPlayers,
		ThumbnailURL:  req.ThumbnailURL,
	}
	if err := s.DB.Create(&game).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return c.Status(409).JSON(fiber.Map{"error": "game already exists", "slug": game.Slug})
		}
		return c.Status(500).JSON(fiber.Map{"error": "failed to create game", "details": err.Error()})
	}
	return c.Status(201).JSON(game)
}

// GetAllGames lists the catalog, optionally filtered by a search term.
func (s *GameService) GetAllGames(c *fiber.Ctx) error {
	q := s.DB.Order("name ASC")
	if search := c.Query("q"); search != "" {
		q = q.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(strings.TrimSpace(search))+"%")
	}
	var games []models.Game
	if err := q.Find(&games).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to list games", "details": err.Error()})
	}
	return c.JSON(games)
}

// GetGameBySlug returns one catalog entry.
func (s *GameService) GetGameBySlug(c *fiber.Ctx) error {
	var game models.Game
	if err := s.DB.First(&game, "slug = ?", c.Params("slug")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "game not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}
	return c.JSON(game)
}
