package services

import (
	"errors"
	"strconv"
	"strings"

	"play-tracking-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// GroupService manages play groups and their membership.
type GroupService struct {
	DB *gorm.DB
}

func NewGroupService(db *gorm.DB) *GroupService {
	return &GroupService{DB: db}
}

type GroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// CreateGroup creates a group and enrolls the creator as admin.
func (s *GroupService) CreateGroup(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req GroupRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return c.Status(400).JSON(fiber.Map{"error": "name is required"})
	}

	group := models.Group{
		Name:        name,
		Slug:        slug.Make(name),
		Description: req.Description,
	}
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&group).Error; err != nil {
			return err
		}
		member := models.GroupMember{
			GroupID: group.ID,
			UserID:  userID,
			Role:    "admin",
		}
		return tx.Create(&member).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return c.Status(409).JSON(fiber.Map{"error": "group name already taken", "slug": group.Slug})
		}
		return c.Status(500).JSON(fiber.Map{"error": "failed to create group", "details": err.Error()})
	}
	return c.Status(201).JSON(group)
}

// GetGroupBySlug returns a group with its members.
func (s *GroupService) GetGroupBySlug(c *fiber.Ctx) error {
	var group models.Group
	if err := s.DB.Preload("Members").First(&group, "slug = ?", c.Params("slug")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "group not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}
	return c.JSON(group)
}

// JoinGroup enrolls the authenticated user as a member.
func (s *GroupService) JoinGroup(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	groupID, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid group id"})
	}

	var group models.Group
	if err := s.DB.First(&group, "id = ?", groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "group not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}

	member := models.GroupMember{
		GroupID: group.ID,
		UserID:  userID,
		Role:    "member",
	}
	if err := s.DB.Create(&member).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return c.Status(409).JSON(fiber.Map{"error": "already a member"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "failed to join group", "details": err.Error()})
	}
	return c.Status(201).JSON(member)
}

// ListGroups lists all groups.
func (s *GroupService) ListGroups(c *fiber.Ctx) error {
	var groups []models.Group
	if err := s.DB.Order("name ASC").Find(&groups).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to list groups", "details": err.Error()})
	}
	return c.JSON(groups)
}
