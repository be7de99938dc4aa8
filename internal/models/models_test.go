package models

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

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

	if err := db.AutoMigrate(&User{}, &Folder{}, &File{}, &Document{}); err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}
	return db
}

func TestBeforeCreateAssignsUUID(t *testing.T) {
	db := openTestDB(t)

	user := &User{Email: "uuid@example.com", PasswordHash: "hash"}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating user: %v", err)
	}
	if user.ID == uuid.Nil {
		t.Fatal("expected generated id")
	}
}

func TestBeforeCreateKeepsExplicitUUID(t *testing.T) {
	db := openTestDB(t)

	explicit := uuid.New()
	user := &User{
		BaseModel:    BaseModel{ID: explicit},
		Email:        "explicit@example.com",
		PasswordHash: "hash",
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating user: %v", err)
	}
	if user.ID != explicit {
		t.Fatalf("expected explicit id kept, got %s", user.ID)
	}
}

func TestSoftDeleteHidesRow(t *testing.T) {
	db := openTestDB(t)

	user := &User{Email: "owner@example.com", PasswordHash: "hash"}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating user: %v", err)
	}

	doc := &Document{Title: "Doc", OwnerID: user.ID, SortOrder: 1}
	if err := db.Create(doc).Error; err != nil {
		t.Fatalf("failed creating document: %v", err)
	}
	if err := db.Delete(doc).Error; err != nil {
		t.Fatalf("failed soft-deleting document: %v", err)
	}

	var found Document
	if err := db.First(&found, "id = ?", doc.ID).Error; err != gorm.ErrRecordNotFound {
		t.Fatalf("expected record hidden by soft delete, got %v", err)
	}
	if err := db.Unscoped().First(&found, "id = ?", doc.ID).Error; err != nil {
		t.Fatalf("expected row still present unscoped: %v", err)
	}
}
