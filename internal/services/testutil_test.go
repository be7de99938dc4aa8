package services

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/opendesk/backend/internal/models"
	"github.com/opendesk/backend/pkg/logger"
	"gorm.io/gorm"
)

var loggerOnce sync.Once

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	loggerOnce.Do(logger.Init)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	err = db.AutoMigrate(
		&models.User{},
		&models.Folder{},
		&models.File{},
		&models.Document{},
	)
	if err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()

	user := &models.User{Email: email, PasswordHash: "irrelevant"}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating user: %v", err)
	}
	return user
}

func seedFile(t *testing.T, db *gorm.DB, ownerID uuid.UUID, name string, folderID *uuid.UUID, sortOrder int) *models.File {
	t.Helper()

	file := &models.File{
		Name:      name,
		MimeType:  "text/plain",
		Key:       fmt.Sprintf("%s/%s-%s", ownerID, uuid.New(), name),
		OwnerID:   ownerID,
		FolderID:  folderID,
		SortOrder: sortOrder,
	}
	if err := db.Create(file).Error; err != nil {
		t.Fatalf("failed creating file: %v", err)
	}
	return file
}

func seedDocument(t *testing.T, db *gorm.DB, ownerID uuid.UUID, title string, folderID *uuid.UUID, sortOrder int) *models.Document {
	t.Helper()

	doc := &models.Document{
		Title:     title,
		OwnerID:   ownerID,
		FolderID:  folderID,
		SortOrder: sortOrder,
	}
	if err := db.Create(doc).Error; err != nil {
		t.Fatalf("failed creating document: %v", err)
	}
	return doc
}

func seedFolder(t *testing.T, db *gorm.DB, ownerID uuid.UUID, name string, parentID *uuid.UUID, sortOrder int) *models.Folder {
	t.Helper()

	folder := &models.Folder{
		Name:      name,
		OwnerID:   ownerID,
		ParentID:  parentID,
		SortOrder: sortOrder,
	}
	if err := db.Create(folder).Error; err != nil {
		t.Fatalf("failed creating folder: %v", err)
	}
	return folder
}

// memoryStore is a minimal in-memory object store for sweep tests.
type memoryStore struct {
	mu          sync.Mutex
	objects     map[string][]byte
	deleteFails map[string]int
	deleteCalls map[string]int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		objects:     map[string][]byte{},
		deleteFails: map[string]int{},
		deleteCalls: map[string]int{},
	}
}

func (s *memoryStore) Upload(_ context.Context, objectName string, reader io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectName] = data
	return nil
}

func (s *memoryStore) Download(_ context.Context, objectName string) (io.ReadCloser, error) {
	return nil, fmt.Errorf("not implemented")
}

func (s *memoryStore) Delete(_ context.Context, objectName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteCalls[objectName]++
	if remaining := s.deleteFails[objectName]; remaining > 0 {
		s.deleteFails[objectName] = remaining - 1
		return fmt.Errorf("simulated delete failure for %s", objectName)
	}
	delete(s.objects, objectName)
	return nil
}

func (s *memoryStore) PresignedGetURL(_ context.Context, objectName string, _ time.Duration) (string, error) {
	return "https://storage.test/" + objectName, nil
}

func (s *memoryStore) PresignedPutURL(_ context.Context, objectName string, _ time.Duration) (string, error) {
	return "https://storage.test/upload/" + objectName, nil
}
