package services

import (
	"errors"

	"github.com/google/uuid"
	"github.com/opendesk/backend/internal/models"
	"gorm.io/gorm"
)

type ItemType string

const (
	ItemTypeFile ItemType = "file"
	ItemTypeDoc  ItemType = "doc"
)

var (
	ErrFileNotFound     = errors.New("file not found")
	ErrDocumentNotFound = errors.New("document not found")
	ErrFolderNotFound   = errors.New("folder not found")
)

// ListOrder is the display ordering applied to every container listing.
// Equal sort orders (possible under concurrent creates) fall back to recency.
const ListOrder = "sort_order ASC, updated_at DESC"

// OrderingService maintains the per-container display order of drive items
// and handles moves between containers and bulk reordering within one.
type OrderingService struct {
	DB *gorm.DB
}

func NewOrderingService(db *gorm.DB) *OrderingService {
	return &OrderingService{DB: db}
}

// nextSortOrder returns max(sort_order)+1 over the live rows of model owned by
// ownerID inside the given container (nil container means root). There is no
// reservation: concurrent callers may obtain the same value.
func nextSortOrder(tx *gorm.DB, model interface{}, containerColumn string, ownerID uuid.UUID, containerID *uuid.UUID) (int, error) {
	query := tx.Model(model).Where("owner_id = ?", ownerID)
	if containerID == nil {
		query = query.Where(containerColumn + " IS NULL")
	} else {
		query = query.Where(containerColumn+" = ?", *containerID)
	}

	var result struct{ Max int }
	if err := query.Select("COALESCE(MAX(sort_order), 0) AS max").Scan(&result).Error; err != nil {
		return 0, err
	}
	return result.Max + 1, nil
}

func NextFileSortOrder(tx *gorm.DB, ownerID uuid.UUID, folderID *uuid.UUID) (int, error) {
	return nextSortOrder(tx, &models.File{}, "folder_id", ownerID, folderID)
}

func NextDocumentSortOrder(tx *gorm.DB, ownerID uuid.UUID, folderID *uuid.UUID) (int, error) {
	return nextSortOrder(tx, &models.Document{}, "folder_id", ownerID, folderID)
}

func NextFolderSortOrder(tx *gorm.DB, ownerID uuid.UUID, parentID *uuid.UUID) (int, error) {
	return nextSortOrder(tx, &models.Folder{}, "parent_id", ownerID, parentID)
}

// MoveFile re-parents a file and appends it to the end of the destination
// container. The source position is never preserved.
func (s *OrderingService) MoveFile(ownerID, fileID uuid.UUID, folderID *uuid.UUID) (*models.File, error) {
	var file models.File
	if err := s.DB.First(&file, "id = ? AND owner_id = ?", fileID, ownerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		next, err := NextFileSortOrder(tx, ownerID, folderID)
		if err != nil {
			return err
		}
		return tx.Model(&models.File{}).Where("id = ?", file.ID).Updates(map[string]interface{}{
			"folder_id":  folderIDValue(folderID),
			"sort_order": next,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	if err := s.DB.First(&file, "id = ?", file.ID).Error; err != nil {
		return nil, err
	}
	return &file, nil
}

// MoveDocument is the document counterpart of MoveFile.
func (s *OrderingService) MoveDocument(ownerID, docID uuid.UUID, folderID *uuid.UUID) (*models.Document, error) {
	var doc models.Document
	if err := s.DB.First(&doc, "id = ? AND owner_id = ?", docID, ownerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		next, err := NextDocumentSortOrder(tx, ownerID, folderID)
		if err != nil {
			return err
		}
		return tx.Model(&models.Document{}).Where("id = ?", doc.ID).Updates(map[string]interface{}{
			"folder_id":  folderIDValue(folderID),
			"sort_order": next,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	if err := s.DB.First(&doc, "id = ?", doc.ID).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// ReorderFiles assigns sort_order = position+1 following the supplied id
// sequence, in a single transaction. The sole validation is that every id
// resolves to a live file owned by ownerID; soft-deleted ids therefore fail
// the count check and surface as not found.
func (s *OrderingService) ReorderFiles(ownerID uuid.UUID, orderedIDs []uuid.UUID) ([]models.File, error) {
	if len(orderedIDs) == 0 {
		return []models.File{}, nil
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.File{}).Where("owner_id = ? AND id IN ?", ownerID, orderedIDs).Count(&count).Error; err != nil {
			return err
		}
		if count != int64(len(orderedIDs)) {
			return ErrFileNotFound
		}

		for position, id := range orderedIDs {
			if err := tx.Model(&models.File{}).Where("id = ? AND owner_id = ?", id, ownerID).
				Update("sort_order", position+1).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var files []models.File
	if err := s.DB.Where("owner_id = ? AND id IN ?", ownerID, orderedIDs).Order("sort_order ASC").Find(&files).Error; err != nil {
		return nil, err
	}
	return files, nil
}

// ReorderDocuments is the document counterpart of ReorderFiles.
func (s *OrderingService) ReorderDocuments(ownerID uuid.UUID, orderedIDs []uuid.UUID) ([]models.Document, error) {
	if len(orderedIDs) == 0 {
		return []models.Document{}, nil
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Document{}).Where("owner_id = ? AND id IN ?", ownerID, orderedIDs).Count(&count).Error; err != nil {
			return err
		}
		if count != int64(len(orderedIDs)) {
			return ErrDocumentNotFound
		}

		for position, id := range orderedIDs {
			if err := tx.Model(&models.Document{}).Where("id = ? AND owner_id = ?", id, ownerID).
				Update("sort_order", position+1).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var docs []models.Document
	if err := s.DB.Where("owner_id = ? AND id IN ?", ownerID, orderedIDs).Order("sort_order ASC").Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

// DeleteFolderTree soft-deletes a folder and cascades the marker to every
// descendant folder, file, and document, all in one transaction.
func (s *OrderingService) DeleteFolderTree(ownerID, folderID uuid.UUID) error {
	var folder models.Folder
	if err := s.DB.First(&folder, "id = ? AND owner_id = ?", folderID, ownerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrFolderNotFound
		}
		return err
	}

	return s.DB.Transaction(func(tx *gorm.DB) error {
		return deleteFolderRecursive(tx, ownerID, folder.ID)
	})
}

func deleteFolderRecursive(tx *gorm.DB, ownerID, folderID uuid.UUID) error {
	var children []models.Folder
	if err := tx.Where("parent_id = ? AND owner_id = ?", folderID, ownerID).Find(&children).Error; err != nil {
		return err
	}
	for _, child := range children {
		if err := deleteFolderRecursive(tx, ownerID, child.ID); err != nil {
			return err
		}
	}

	if err := tx.Where("folder_id = ? AND owner_id = ?", folderID, ownerID).Delete(&models.File{}).Error; err != nil {
		return err
	}
	if err := tx.Where("folder_id = ? AND owner_id = ?", folderID, ownerID).Delete(&models.Document{}).Error; err != nil {
		return err
	}
	return tx.Delete(&models.Folder{}, "id = ?", folderID).Error
}

// folderIDValue keeps nil pointers as SQL NULL in Updates maps.
func folderIDValue(folderID *uuid.UUID) interface{} {
	if folderID == nil {
		return nil
	}
	return *folderID
}
