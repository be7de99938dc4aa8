package services

import (
	"context"
	"time"

	"github.com/opendesk/backend/internal/config"
	"github.com/opendesk/backend/internal/models"
	"github.com/opendesk/backend/internal/storage"
	"github.com/opendesk/backend/pkg/logger"
	"gorm.io/gorm"
)

// PurgeService permanently removes soft-deleted rows once their retention
// window lapses. File rows additionally require the backing object to be
// removed from storage first; a row whose blob cannot be deleted is kept
// for the next sweep.
type PurgeService struct {
	DB      *gorm.DB
	Storage storage.ObjectStore
	Config  config.PurgeConfig

	stop chan struct{}
}

func NewPurgeService(db *gorm.DB, store storage.ObjectStore, cfg config.PurgeConfig) *PurgeService {
	return &PurgeService{
		DB:      db,
		Storage: store,
		Config:  cfg,
		stop:    make(chan struct{}),
	}
}

func (p *PurgeService) Start() {
	go p.run()
	logger.Info("purge_sweeper_started", map[string]interface{}{
		"retention":      p.Config.Retention.String(),
		"sweep_interval": p.Config.SweepInterval.String(),
	})
}

func (p *PurgeService) Stop() {
	close(p.stop)
}

func (p *PurgeService) run() {
	ticker := time.NewTicker(p.Config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := p.Sweep(context.Background()); err != nil {
				logger.Error("purge_sweep_failed", err, nil)
			}
		case <-p.stop:
			return
		}
	}
}

// Sweep purges everything soft-deleted before now minus the retention window.
func (p *PurgeService) Sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-p.Config.Retention)

	var files []models.File
	if err := p.DB.Unscoped().
		Where("deleted_at IS NOT NULL AND deleted_at < ?", cutoff).
		Find(&files).Error; err != nil {
		return err
	}

	purged := 0
	for _, file := range files {
		if err := p.deleteObjectWithRetry(ctx, file.Key); err != nil {
			logger.Error("purge_blob_delete_failed", err, map[string]interface{}{
				"file_id": file.ID.String(),
				"key":     file.Key,
			})
			continue
		}
		if err := p.DB.Unscoped().Delete(&models.File{}, "id = ?", file.ID).Error; err != nil {
			return err
		}
		purged++
	}

	docResult := p.DB.Unscoped().
		Where("deleted_at IS NOT NULL AND deleted_at < ?", cutoff).
		Delete(&models.Document{})
	if docResult.Error != nil {
		return docResult.Error
	}

	folderResult := p.DB.Unscoped().
		Where("deleted_at IS NOT NULL AND deleted_at < ?", cutoff).
		Delete(&models.Folder{})
	if folderResult.Error != nil {
		return folderResult.Error
	}

	if purged > 0 || docResult.RowsAffected > 0 || folderResult.RowsAffected > 0 {
		logger.Info("purge_sweep_completed", map[string]interface{}{
			"files_purged":     purged,
			"documents_purged": docResult.RowsAffected,
			"folders_purged":   folderResult.RowsAffected,
		})
	}
	return nil
}

func (p *PurgeService) deleteObjectWithRetry(ctx context.Context, key string) error {
	var lastErr error
	for attempt := 1; attempt <= p.Config.MaxDeleteAttempts; attempt++ {
		lastErr = p.Storage.Delete(ctx, key)
		if lastErr == nil {
			return nil
		}
		if attempt < p.Config.MaxDeleteAttempts {
			select {
			case <-time.After(p.Config.RetryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}
