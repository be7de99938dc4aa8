package handlers

import (
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/opendesk/backend/internal/middleware"
	"github.com/opendesk/backend/internal/models"
	"github.com/opendesk/backend/internal/services"
	"github.com/opendesk/backend/internal/storage"
	"github.com/opendesk/backend/pkg/logger"
	"github.com/opendesk/backend/pkg/utils"
	"gorm.io/gorm"
)

// DriveHandler serves the unified drive tree: folders, uploaded files, and
// the documents nested alongside them.
type DriveHandler struct {
	DB            *gorm.DB
	Storage       storage.ObjectStore
	Ordering      *services.OrderingService
	PresignExpiry time.Duration
}

func NewDriveHandler(db *gorm.DB, store storage.ObjectStore, ordering *services.OrderingService, presignExpiry time.Duration) *DriveHandler {
	return &DriveHandler{
		DB:            db,
		Storage:       store,
		Ordering:      ordering,
		PresignExpiry: presignExpiry,
	}
}

// ListContents returns the folders, files, and documents directly inside the
// requested container (root when folderId is absent). File entries carry a
// presigned download URL; a failed presign downgrades the entry rather than
// failing the listing.
func (h *DriveHandler) ListContents(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	folderID, err := parseOptionalUUID(c.Query("folderId"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid folderId")
	}
	if folderID != nil {
		if err := h.findOwnedFolder(user.ID, *folderID, nil); err != nil {
			return utils.Error(c, fiber.StatusNotFound, "folder not found")
		}
	}

	containerScope := func(tx *gorm.DB, column string) *gorm.DB {
		tx = tx.Where("owner_id = ?", user.ID)
		if folderID == nil {
			return tx.Where(column + " IS NULL")
		}
		return tx.Where(column+" = ?", *folderID)
	}

	var folders []models.Folder
	if err := containerScope(h.DB, "parent_id").Order(services.ListOrder).Find(&folders).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to list folders")
	}

	var files []models.File
	if err := containerScope(h.DB, "folder_id").Order(services.ListOrder).Find(&files).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to list files")
	}

	var documents []models.Document
	if err := containerScope(h.DB, "folder_id").Order(services.ListOrder).Find(&documents).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to list documents")
	}

	for i := range files {
		url, err := h.Storage.PresignedGetURL(c.Context(), files[i].Key, h.PresignExpiry)
		if err != nil {
			logger.WarnWithUser(user.ID.String(), "file_presign_failed", map[string]interface{}{
				"file_id": files[i].ID.String(),
				"error":   err.Error(),
			})
			continue
		}
		files[i].URL = url
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"folders":   folders,
		"files":     files,
		"documents": documents,
	})
}

type createFolderRequest struct {
	Name     string `json:"name"`
	ParentID string `json:"parentId"`
}

func (r createFolderRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 255)),
	)
}

func (h *DriveHandler) CreateFolder(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	var req createFolderRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	parentID, err := parseOptionalUUID(req.ParentID)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid parentId")
	}
	if parentID != nil {
		if err := h.findOwnedFolder(user.ID, *parentID, nil); err != nil {
			return utils.Error(c, fiber.StatusNotFound, "parent folder not found")
		}
	}

	folder := models.Folder{
		Name:     req.Name,
		OwnerID:  user.ID,
		ParentID: parentID,
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		next, err := services.NextFolderSortOrder(tx, user.ID, parentID)
		if err != nil {
			return err
		}
		folder.SortOrder = next
		return tx.Create(&folder).Error
	})
	if err != nil {
		logger.ErrorWithUser(user.ID.String(), "folder_create_failed", err, nil)
		return utils.Error(c, fiber.StatusInternalServerError, "failed to create folder")
	}

	return utils.Success(c, fiber.StatusCreated, folder)
}

type renameRequest struct {
	Name string `json:"name"`
}

func (r renameRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 255)),
	)
}

func (h *DriveHandler) RenameFolder(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	folderID, err := parseUUIDParam(c, "id")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	var req renameRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	var folder models.Folder
	if err := h.findOwnedFolder(user.ID, folderID, &folder); err != nil {
		return utils.Error(c, fiber.StatusNotFound, "folder not found")
	}

	if err := h.DB.Model(&folder).Update("name", req.Name).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to rename folder")
	}
	return utils.Success(c, fiber.StatusOK, folder)
}

func (h *DriveHandler) DeleteFolder(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	folderID, err := parseUUIDParam(c, "id")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.Ordering.DeleteFolderTree(user.ID, folderID); err != nil {
		if errors.Is(err, services.ErrFolderNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "folder not found")
		}
		logger.ErrorWithUser(user.ID.String(), "folder_delete_failed", err, map[string]interface{}{
			"folder_id": folderID.String(),
		})
		return utils.Error(c, fiber.StatusInternalServerError, "failed to delete folder")
	}

	logger.InfoWithUser(user.ID.String(), "folder_deleted", map[string]interface{}{
		"folder_id": folderID.String(),
	})
	return utils.Success(c, fiber.StatusOK, fiber.Map{"deleted": true})
}

type moveRequest struct {
	ItemType string `json:"itemType"`
	ItemID   string `json:"itemId"`
	FolderID string `json:"folderId"`
}

func (r moveRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ItemType, validation.Required, validation.In(string(services.ItemTypeFile), string(services.ItemTypeDoc))),
		validation.Field(&r.ItemID, validation.Required, validation.By(validUUID)),
	)
}

func validUUID(value interface{}) error {
	s, _ := value.(string)
	if _, err := uuid.Parse(s); err != nil {
		return errors.New("must be a valid UUID")
	}
	return nil
}

// Move re-parents a file or document into the destination folder (root when
// folderId is empty) and appends it at the end of that container.
func (h *DriveHandler) Move(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	var req moveRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	itemID := uuid.MustParse(req.ItemID)
	folderID, err := parseOptionalUUID(req.FolderID)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid folderId")
	}
	if folderID != nil {
		if err := h.findOwnedFolder(user.ID, *folderID, nil); err != nil {
			return utils.Error(c, fiber.StatusNotFound, "destination folder not found")
		}
	}

	var (
		moved   interface{}
		moveErr error
	)
	switch services.ItemType(req.ItemType) {
	case services.ItemTypeFile:
		moved, moveErr = h.Ordering.MoveFile(user.ID, itemID, folderID)
	case services.ItemTypeDoc:
		moved, moveErr = h.Ordering.MoveDocument(user.ID, itemID, folderID)
	}
	if moveErr != nil {
		if errors.Is(moveErr, services.ErrFileNotFound) || errors.Is(moveErr, services.ErrDocumentNotFound) {
			return utils.Error(c, fiber.StatusNotFound, moveErr.Error())
		}
		logger.ErrorWithUser(user.ID.String(), "drive_move_failed", moveErr, map[string]interface{}{
			"item_type": req.ItemType,
			"item_id":   req.ItemID,
		})
		return utils.Error(c, fiber.StatusInternalServerError, "failed to move item")
	}

	return utils.Success(c, fiber.StatusOK, moved)
}

type reorderRequest struct {
	ItemType   string   `json:"itemType"`
	FolderID   string   `json:"folderId"`
	OrderedIDs []string `json:"orderedIds"`
}

func (r reorderRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ItemType, validation.Required, validation.In(string(services.ItemTypeFile), string(services.ItemTypeDoc))),
		validation.Field(&r.OrderedIDs, validation.Each(validation.By(validUUID))),
	)
}

// Reorder rewrites sort orders to follow the submitted id sequence. The whole
// batch succeeds or none of it does.
func (h *DriveHandler) Reorder(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	var req reorderRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	orderedIDs := make([]uuid.UUID, len(req.OrderedIDs))
	for i, raw := range req.OrderedIDs {
		orderedIDs[i] = uuid.MustParse(raw)
	}

	var (
		reordered  interface{}
		reorderErr error
	)
	switch services.ItemType(req.ItemType) {
	case services.ItemTypeFile:
		reordered, reorderErr = h.Ordering.ReorderFiles(user.ID, orderedIDs)
	case services.ItemTypeDoc:
		reordered, reorderErr = h.Ordering.ReorderDocuments(user.ID, orderedIDs)
	}
	if reorderErr != nil {
		if errors.Is(reorderErr, services.ErrFileNotFound) || errors.Is(reorderErr, services.ErrDocumentNotFound) {
			return utils.Error(c, fiber.StatusNotFound, reorderErr.Error())
		}
		logger.ErrorWithUser(user.ID.String(), "drive_reorder_failed", reorderErr, map[string]interface{}{
			"item_type": req.ItemType,
			"count":     len(req.OrderedIDs),
		})
		return utils.Error(c, fiber.StatusInternalServerError, "failed to reorder items")
	}

	return utils.Success(c, fiber.StatusOK, reordered)
}

type initUploadRequest struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
	FolderID string `json:"folderId"`
}

func (r initUploadRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.MimeType, validation.Required),
		validation.Field(&r.Size, validation.Min(0)),
	)
}

// InitUpload registers the file row and hands back a presigned PUT URL so the
// client can push the bytes straight to object storage.
func (h *DriveHandler) InitUpload(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	var req initUploadRequest
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
		if err := h.findOwnedFolder(user.ID, *folderID, nil); err != nil {
			return utils.Error(c, fiber.StatusNotFound, "folder not found")
		}
	}

	file := models.File{
		Name:     req.Name,
		MimeType: req.MimeType,
		Size:     req.Size,
		Key:      objectKey(user.ID, req.Name),
		OwnerID:  user.ID,
		FolderID: folderID,
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
		logger.ErrorWithUser(user.ID.String(), "upload_init_failed", err, nil)
		return utils.Error(c, fiber.StatusInternalServerError, "failed to initialize upload")
	}

	uploadURL, err := h.Storage.PresignedPutURL(c.Context(), file.Key, h.PresignExpiry)
	if err != nil {
		logger.ErrorWithUser(user.ID.String(), "upload_presign_failed", err, map[string]interface{}{
			"file_id": file.ID.String(),
		})
		return utils.Error(c, fiber.StatusInternalServerError, "failed to presign upload")
	}

	return utils.Success(c, fiber.StatusCreated, fiber.Map{
		"file":      file,
		"uploadUrl": uploadURL,
	})
}

// Upload accepts the bytes in the request itself for clients that cannot use
// the presigned flow.
func (h *DriveHandler) Upload(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "missing file")
	}

	folderID, err := parseOptionalUUID(c.FormValue("folderId"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid folderId")
	}
	if folderID != nil {
		if err := h.findOwnedFolder(user.ID, *folderID, nil); err != nil {
			return utils.Error(c, fiber.StatusNotFound, "folder not found")
		}
	}

	source, err := fileHeader.Open()
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "failed to read file")
	}
	defer source.Close()

	mimeType := fileHeader.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	file := models.File{
		Name:     fileHeader.Filename,
		MimeType: mimeType,
		Size:     fileHeader.Size,
		Key:      objectKey(user.ID, fileHeader.Filename),
		OwnerID:  user.ID,
		FolderID: folderID,
	}

	if err := h.Storage.Upload(c.Context(), file.Key, source, file.Size, file.MimeType); err != nil {
		logger.ErrorWithUser(user.ID.String(), "upload_failed", err, map[string]interface{}{
			"name": file.Name,
		})
		return utils.Error(c, fiber.StatusInternalServerError, "failed to store file")
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
		logger.ErrorWithUser(user.ID.String(), "upload_record_failed", err, nil)
		return utils.Error(c, fiber.StatusInternalServerError, "failed to record file")
	}

	logger.InfoWithUser(user.ID.String(), "file_uploaded", map[string]interface{}{
		"file_id": file.ID.String(),
		"size":    file.Size,
	})
	return utils.Success(c, fiber.StatusCreated, file)
}

type finalizeRequest struct {
	Size int64 `json:"size"`
}

// FinalizeUpload closes out a presigned upload, recording the actual size
// when the client reports one.
func (h *DriveHandler) FinalizeUpload(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	fileID, err := parseUUIDParam(c, "id")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	var file models.File
	if err := h.DB.First(&file, "id = ? AND owner_id = ?", fileID, user.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "file not found")
	}

	var req finalizeRequest
	if err := c.BodyParser(&req); err == nil && req.Size > 0 && req.Size != file.Size {
		if err := h.DB.Model(&file).Update("size", req.Size).Error; err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed to finalize upload")
		}
	}

	return utils.Success(c, fiber.StatusOK, file)
}

func (h *DriveHandler) Download(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	fileID, err := parseUUIDParam(c, "id")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	var file models.File
	if err := h.DB.First(&file, "id = ? AND owner_id = ?", fileID, user.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "file not found")
	}

	reader, err := h.Storage.Download(c.Context(), file.Key)
	if err != nil {
		logger.ErrorWithUser(user.ID.String(), "file_download_failed", err, map[string]interface{}{
			"file_id": file.ID.String(),
		})
		return utils.Error(c, fiber.StatusInternalServerError, "failed to download file")
	}

	c.Set(fiber.HeaderContentType, file.MimeType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", file.Name))
	return c.SendStream(reader)
}

func (h *DriveHandler) RenameFile(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	fileID, err := parseUUIDParam(c, "id")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	var req renameRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	var file models.File
	if err := h.DB.First(&file, "id = ? AND owner_id = ?", fileID, user.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "file not found")
	}

	if err := h.DB.Model(&file).Update("name", req.Name).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to rename file")
	}
	return utils.Success(c, fiber.StatusOK, file)
}

// DeleteFile soft-deletes the row. The blob stays in storage until the purge
// sweeper claims it after the retention window.
func (h *DriveHandler) DeleteFile(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	fileID, err := parseUUIDParam(c, "id")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	var file models.File
	if err := h.DB.First(&file, "id = ? AND owner_id = ?", fileID, user.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "file not found")
	}

	if err := h.DB.Delete(&file).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to delete file")
	}

	logger.InfoWithUser(user.ID.String(), "file_deleted", map[string]interface{}{
		"file_id": file.ID.String(),
	})
	return utils.Success(c, fiber.StatusOK, fiber.Map{"deleted": true})
}

func (h *DriveHandler) findOwnedFolder(ownerID, folderID uuid.UUID, out *models.Folder) error {
	if out == nil {
		out = &models.Folder{}
	}
	return h.DB.First(out, "id = ? AND owner_id = ?", folderID, ownerID).Error
}

// objectKey namespaces objects per owner and keeps names collision-free.
func objectKey(ownerID uuid.UUID, name string) string {
	return fmt.Sprintf("%s/%s-%s", ownerID, uuid.New(), name)
}
