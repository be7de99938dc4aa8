package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gofiber/fiber/v2"
	"github.com/opendesk/backend/internal/middleware"
	"github.com/opendesk/backend/internal/models"
	"github.com/opendesk/backend/internal/services"
	"github.com/opendesk/backend/internal/storage"
	"github.com/opendesk/backend/pkg/logger"
	"github.com/opendesk/backend/pkg/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type DocumentHandler struct {
	DB            *gorm.DB
	Storage       storage.ObjectStore
	Ordering      *services.OrderingService
	Export        *services.ExportService
	PresignExpiry time.Duration
}

func NewDocumentHandler(db *gorm.DB, store storage.ObjectStore, ordering *services.OrderingService, export *services.ExportService, presignExpiry time.Duration) *DocumentHandler {
	return &DocumentHandler{
		DB:            db,
		Storage:       store,
		Ordering:      ordering,
		Export:        export,
		PresignExpiry: presignExpiry,
	}
}

type createDocumentRequest struct {
	Title    string          `json:"title"`
	Content  json.RawMessage `json:"content"`
	Settings json.RawMessage `json:"settings"`
	FolderID string          `json:"folderId"`
}

func (r createDocumentRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required, validation.Length(1, 255)),
	)
}

func (h *DocumentHandler) Create(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	var req createDocumentRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	folderID, err := parseOptionalUUID(req.FolderID)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid folderId")
	}
	if folderID != nil {
		var folder models.Folder
		if err := h.DB.First(&folder, "id = ? AND owner_id = ?", *folderID, user.ID).Error; err != nil {
			return utils.Error(c, fiber.StatusNotFound, "folder not found")
		}
	}

	doc := models.Document{
		Title:    req.Title,
		OwnerID:  user.ID,
		FolderID: folderID,
		Content:  datatypes.JSON(req.Content),
		Settings: datatypes.JSON(req.Settings),
	}
	if doc.Content == nil {
		doc.Content = datatypes.JSON(`{"type":"doc","content":[]}`)
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		next, err := services.NextDocumentSortOrder(tx, user.ID, folderID)
		if err != nil {
			return err
		}
		doc.SortOrder = next
		return tx.Create(&doc).Error
	})
	if err != nil {
		logger.ErrorWithUser(user.ID.String(), "document_create_failed", err, nil)
		return utils.Error(c, fiber.StatusInternalServerError, "failed to create document")
	}

	return utils.Success(c, fiber.StatusCreated, doc)
}

// List returns the caller's live documents, optionally narrowed to one
// container. An empty folderId means root; an absent one means everything.
func (h *DocumentHandler) List(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	query := h.DB.Where("owner_id = ?", user.ID)
	if args := c.Context().QueryArgs(); args.Has("folderId") {
		raw := string(args.Peek("folderId"))
		if raw == "" {
			query = query.Where("folder_id IS NULL")
		} else {
			folderID, err := parseOptionalUUID(raw)
			if err != nil {
				return utils.Error(c, fiber.StatusBadRequest, "invalid folderId")
			}
			query = query.Where("folder_id = ?", *folderID)
		}
	}

	var docs []models.Document
	if err := query.Order(services.ListOrder).Find(&docs).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to list documents")
	}
	return utils.Success(c, fiber.StatusOK, docs)
}

func (h *DocumentHandler) Get(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	docID, err := parseUUIDParam(c, "id")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	var doc models.Document
	if err := h.DB.First(&doc, "id = ? AND owner_id = ?", docID, user.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "document not found")
	}
	return utils.Success(c, fiber.StatusOK, doc)
}

type updateDocumentRequest struct {
	Title    *string         `json:"title"`
	Content  json.RawMessage `json:"content"`
	Settings json.RawMessage `json:"settings"`
}

func (h *DocumentHandler) Update(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	docID, err := parseUUIDParam(c, "id")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	var doc models.Document
	if err := h.DB.First(&doc, "id = ? AND owner_id = ?", docID, user.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "document not found")
	}

	var req updateDocumentRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	updates := map[string]interface{}{}
	if req.Title != nil {
		if *req.Title == "" || len(*req.Title) > 255 {
			return utils.Error(c, fiber.StatusBadRequest, "title must be between 1 and 255 characters")
		}
		updates["title"] = *req.Title
	}
	if req.Content != nil {
		updates["content"] = datatypes.JSON(req.Content)
	}
	if req.Settings != nil {
		updates["settings"] = datatypes.JSON(req.Settings)
	}
	if len(updates) == 0 {
		return utils.Success(c, fiber.StatusOK, doc)
	}

	if err := h.DB.Model(&doc).Updates(updates).Error; err != nil {
		logger.ErrorWithUser(user.ID.String(), "document_update_failed", err, map[string]interface{}{
			"document_id": doc.ID.String(),
		})
		return utils.Error(c, fiber.StatusInternalServerError, "failed to update document")
	}

	if err := h.DB.First(&doc, "id = ?", doc.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to load document")
	}
	return utils.Success(c, fiber.StatusOK, doc)
}

// Delete soft-deletes the document; the purge sweeper removes the row for good
// after the retention window.
func (h *DocumentHandler) Delete(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	docID, err := parseUUIDParam(c, "id")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	var doc models.Document
	if err := h.DB.First(&doc, "id = ? AND owner_id = ?", docID, user.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "document not found")
	}

	if err := h.DB.Delete(&doc).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to delete document")
	}

	logger.InfoWithUser(user.ID.String(), "document_deleted", map[string]interface{}{
		"document_id": doc.ID.String(),
	})
	return utils.Success(c, fiber.StatusOK, fiber.Map{"deleted": true})
}

type exportRequest struct {
	Format      string `json:"format"`
	Destination string `json:"destination"`
	FolderID    string `json:"folderId"`
	HTML        string `json:"html"`
}

func (r exportRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Format, validation.Required, validation.In(
			string(services.ExportFormatPDF),
			string(services.ExportFormatDOCX),
			string(services.ExportFormatMD),
		)),
		validation.Field(&r.Destination, validation.In("local", "drive")),
	)
}

// ExportDocument renders the document and either streams the result back
// (local, the default) or saves it into the drive as a new file appended to
// the chosen folder.
func (h *DocumentHandler) ExportDocument(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	docID, err := parseUUIDParam(c, "id")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	var doc models.Document
	if err := h.DB.First(&doc, "id = ? AND owner_id = ?", docID, user.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "document not found")
	}

	var req exportRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	format := services.ExportFormat(req.Format)

	// clients may hand over their editor's HTML directly; otherwise render
	// from the stored content tree
	rendered := req.HTML
	if rendered == "" {
		rendered = h.Export.ContentToHTML(doc.Content)
	}
	rendered = h.Export.SanitizeHTML(rendered)

	output, err := h.Export.Convert(c.Context(), format, rendered)
	if err != nil {
		logger.ErrorWithUser(user.ID.String(), "document_export_failed", err, map[string]interface{}{
			"document_id": doc.ID.String(),
			"format":      req.Format,
		})
		return utils.Error(c, fiber.StatusInternalServerError, "export failed")
	}

	fileName := fmt.Sprintf("%s.%s", doc.Title, req.Format)

	if req.Destination != "drive" {
		c.Set(fiber.HeaderContentType, format.ContentType())
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", fileName))
		return c.Send(output)
	}

	folderID, err := parseOptionalUUID(req.FolderID)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid folderId")
	}
	if folderID != nil {
		var folder models.Folder
		if err := h.DB.First(&folder, "id = ? AND owner_id = ?", *folderID, user.ID).Error; err != nil {
			return utils.Error(c, fiber.StatusNotFound, "folder not found")
		}
	}

	file := models.File{
		Name:     fileName,
		MimeType: format.ContentType(),
		Size:     int64(len(output)),
		Key:      objectKey(user.ID, fileName),
		OwnerID:  user.ID,
		FolderID: folderID,
	}

	if err := h.Storage.Upload(c.Context(), file.Key, bytes.NewReader(output), file.Size, file.MimeType); err != nil {
		logger.ErrorWithUser(user.ID.String(), "export_upload_failed", err, map[string]interface{}{
			"document_id": doc.ID.String(),
		})
		return utils.Error(c, fiber.StatusInternalServerError, "failed to store export")
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		next, err := services.NextFileSortOrder(tx, user.ID, folderID)
		if err != nil {
			return err
		}
		file.SortOrder = next
		return tx.Create(&file).Error
	})
	if err != nil {
		logger.ErrorWithUser(user.ID.String(), "export_record_failed", err, nil)
		return utils.Error(c, fiber.StatusInternalServerError, "failed to record export")
	}

	logger.InfoWithUser(user.ID.String(), "document_exported", map[string]interface{}{
		"document_id": doc.ID.String(),
		"format":      req.Format,
		"file_id":     file.ID.String(),
	})
	return utils.Success(c, fiber.StatusCreated, file)
}
