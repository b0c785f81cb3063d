// services/content.go
package services

import (
	"errors"
	"log"
	"time"

	"event-gamification-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// ContentService is the content team's write surface over code
// definitions. The claim engine never writes here; it only reads
// through the cached provider.
type ContentService struct {
	DB *gorm.DB
}

func NewContentService(db *gorm.DB) *ContentService {
	return &ContentService{DB: db}
}

// CreateDefinition creates a new code definition (admin only)
func (s *ContentService) CreateDefinition(c *fiber.Ctx) error {
	var req struct {
		ID             string     `json:"id"`
		Type           string     `json:"type"`
		Name           string     `json:"name"`
		Description    string     `json:"description"`
		SuccessMessage string     `json:"success_message"`
		Location       *string    `json:"location"`
		Points         int        `json:"points"`
		ExpiryDate     time.Time  `json:"expiry_date"`
		MaxTotalUses   *int       `json:"max_total_uses"`
		MaxUsesPerUser *int       `json:"max_uses_per_user"`
		ProofSecretURI *string    `json:"proof_secret_uri"`
		LiteralFlag    *string    `json:"literal_flag"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	typ, ok := models.ParseAchievementType(req.Type)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Unknown achievement type"})
	}
	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Name is required"})
	}
	if req.ExpiryDate.IsZero() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Expiry date is required"})
	}

	id := req.ID
	if id == "" {
		id = slug.Make(req.Name)
	} else {
		id = slug.Make(id)
	}

	def := &models.CodeDefinition{
		ID:             id,
		Type:           typ,
		Name:           req.Name,
		Description:    req.Description,
		SuccessMessage: req.SuccessMessage,
		Location:       req.Location,
		Points:         req.Points,
		ExpiryDate:     req.ExpiryDate,
		MaxTotalUses:   req.MaxTotalUses,
		MaxUsesPerUser: req.MaxUsesPerUser,
		ProofSecretURI: req.ProofSecretURI,
		LiteralFlag:    req.LiteralFlag,
	}
	if err := s.DB.Create(def).Error; err != nil {
		log.Printf("DB Error creating code definition: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create code definition"})
	}
	return c.Status(fiber.StatusCreated).JSON(def)
}

// UpdateDefinition edits an existing definition (admin only)
func (s *ContentService) UpdateDefinition(c *fiber.Ctx) error {
	id := c.Params("id")

	var def models.CodeDefinition
	if err := s.DB.First(&def, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Code definition not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	var req struct {
		Name           *string    `json:"name"`
		Description    *string    `json:"description"`
		SuccessMessage *string    `json:"success_message"`
		Location       *string    `json:"location"`
		Points         *int       `json:"points"`
		ExpiryDate     *time.Time `json:"expiry_date"`
		Disabled       *bool      `json:"disabled"`
		MaxTotalUses   *int       `json:"max_total_uses"`
		MaxUsesPerUser *int       `json:"max_uses_per_user"`
		ProofSecretURI *string    `json:"proof_secret_uri"`
		LiteralFlag    *string    `json:"literal_flag"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if req.Name != nil {
		def.Name = *req.Name
	}
	if req.Description != nil {
		def.Description = *req.Description
	}
	if req.SuccessMessage != nil {
		def.SuccessMessage = *req.SuccessMessage
	}
	if req.Location != nil {
		def.Location = req.Location
	}
	if req.Points != nil {
		def.Points = *req.Points
	}
	if req.ExpiryDate != nil {
		def.ExpiryDate = *req.ExpiryDate
	}
	if req.Disabled != nil {
		def.Disabled = *req.Disabled
	}
	if req.MaxTotalUses != nil {
		def.MaxTotalUses = req.MaxTotalUses
	}
	if req.MaxUsesPerUser != nil {
		def.MaxUsesPerUser = req.MaxUsesPerUser
	}
	if req.ProofSecretURI != nil {
		def.ProofSecretURI = req.ProofSecretURI
	}
	if req.LiteralFlag != nil {
		def.LiteralFlag = req.LiteralFlag
	}

	if err := s.DB.Save(&def).Error; err != nil {
		log.Printf("DB Error updating code definition %s: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update code definition"})
	}
	return c.JSON(def)
}

// ListDefinitions returns all definitions, newest first (admin only)
func (s *ContentService) ListDefinitions(c *fiber.Ctx) error {
	var defs []models.CodeDefinition
	if err := s.DB.Order("created_at DESC").Find(&defs).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to list code definitions"})
	}
	return c.JSON(defs)
}

// GetDefinition returns one definition by id (admin only)
func (s *ContentService) GetDefinition(c *fiber.Ctx) error {
	var def models.CodeDefinition
	if err := s.DB.First(&def, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Code definition not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(def)
}

// DisableDefinition flips the manual disabled flag (admin only).
// Reversible via UpdateDefinition, unlike expiry.
func (s *ContentService) DisableDefinition(c *fiber.Ctx) error {
	res := s.DB.Model(&models.CodeDefinition{}).Where("id = ?", c.Params("id")).Update("disabled", true)
	if res.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to disable code definition"})
	}
	if res.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Code definition not found"})
	}
	return c.JSON(fiber.Map{"message": "Code definition disabled"})
}
