package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/opendesk/backend/internal/models"
	"github.com/opendesk/backend/pkg/utils"
	"gorm.io/gorm"
)

type AdminHandler struct {
	DB *gorm.DB
}

func NewAdminHandler(db *gorm.DB) *AdminHandler {
	return &AdminHandler{DB: db}
}

type userStats struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	IsAdmin       bool      `json:"isAdmin"`
	CreatedAt     time.Time `json:"createdAt"`
	DocumentCount int64     `json:"documentCount"`
	FileCount     int64     `json:"fileCount"`
	StorageBytes  int64     `json:"storageBytes"`
}

// ListUsers reports every account with its live document and file counts.
// Soft-deleted items are excluded from the totals.
func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	var users []models.User
	if err := h.DB.Order("created_at ASC").Find(&users).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to list users")
	}

	stats := make([]userStats, 0, len(users))
	for _, user := range users {
		entry := userStats{
			ID:        user.ID,
			Email:     user.Email,
			IsAdmin:   user.IsAdmin,
			CreatedAt: user.CreatedAt,
		}

		if err := h.DB.Model(&models.Document{}).Where("owner_id = ?", user.ID).Count(&entry.DocumentCount).Error; err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed to compute stats")
		}
		if err := h.DB.Model(&models.File{}).Where("owner_id = ?", user.ID).Count(&entry.FileCount).Error; err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed to compute stats")
		}

		var size struct{ Total int64 }
		if err := h.DB.Model(&models.File{}).Where("owner_id = ?", user.ID).
			Select("COALESCE(SUM(size), 0) AS total").Scan(&size).Error; err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed to compute stats")
		}
		entry.StorageBytes = size.Total

		stats = append(stats, entry)
	}

	return utils.Success(c, fiber.StatusOK, stats)
}
