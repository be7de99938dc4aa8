package handlers

import (
	"bytes"
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/opendesk/backend/internal/config"
	"github.com/opendesk/backend/internal/middleware"
	"github.com/opendesk/backend/internal/models"
	"github.com/opendesk/backend/internal/services"
	"github.com/opendesk/backend/pkg/logger"
	"github.com/opendesk/backend/pkg/utils"
	"gorm.io/gorm"
)

type testEnv struct {
	app   *fiber.App
	db    *gorm.DB
	store *stubObjectStore
}

var testSetupOnce sync.Once

// stubObjectStore keeps objects in memory and lets tests force delete
// failures to exercise retry paths.
type stubObjectStore struct {
	mu          sync.Mutex
	objects     map[string][]byte
	deleteFails map[string]int
}

func newStubObjectStore() *stubObjectStore {
	return &stubObjectStore{
		objects:     map[string][]byte{},
		deleteFails: map[string]int{},
	}
}

func (s *stubObjectStore) Upload(_ context.Context, objectName string, reader io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectName] = data
	return nil
}

func (s *stubObjectStore) Download(_ context.Context, objectName string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[objectName]
	if !ok {
		return nil, fmt.Errorf("object %s not found", objectName)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *stubObjectStore) Delete(_ context.Context, objectName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if remaining := s.deleteFails[objectName]; remaining > 0 {
		s.deleteFails[objectName] = remaining - 1
		return fmt.Errorf("simulated delete failure for %s", objectName)
	}
	delete(s.objects, objectName)
	return nil
}

func (s *stubObjectStore) PresignedGetURL(_ context.Context, objectName string, _ time.Duration) (string, error) {
	return "https://storage.test/" + objectName, nil
}

func (s *stubObjectStore) PresignedPutURL(_ context.Context, objectName string, _ time.Duration) (string, error) {
	return "https://storage.test/upload/" + objectName, nil
}

func (s *stubObjectStore) has(objectName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[objectName]
	return ok
}

func (s *stubObjectStore) failDeletes(objectName string, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteFails[objectName] = times
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		gosqlite.MustRegisterScalarFunction("NOW", 0, func(ctx *gosqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			return time.Now().UTC(), nil
		})
		logger.Init()
		utils.ConfigureJWT("test-secret", 24)
	})

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

	store := newStubObjectStore()
	orderingService := services.NewOrderingService(db)
	exportService := services.NewExportService(config.GotenbergConfig{})

	authHandler := NewAuthHandler(db)
	driveHandler := NewDriveHandler(db, store, orderingService, time.Hour)
	documentHandler := NewDocumentHandler(db, store, orderingService, exportService, time.Hour)
	adminHandler := NewAdminHandler(db)
	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: 100 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)

	driveRoutes := api.Group("/drive", authMiddleware.RequireAuth)
	driveRoutes.Get("/", driveHandler.ListContents)
	driveRoutes.Post("/folders", driveHandler.CreateFolder)
	driveRoutes.Put("/folders/:id", driveHandler.RenameFolder)
	driveRoutes.Delete("/folders/:id", driveHandler.DeleteFolder)
	driveRoutes.Post("/move", driveHandler.Move)
	driveRoutes.Post("/reorder", driveHandler.Reorder)
	driveRoutes.Post("/files/init", driveHandler.InitUpload)
	driveRoutes.Post("/files/upload", driveHandler.Upload)
	driveRoutes.Post("/files/:id/finalize", driveHandler.FinalizeUpload)
	driveRoutes.Get("/files/:id/download", driveHandler.Download)
	driveRoutes.Put("/files/:id", driveHandler.RenameFile)
	driveRoutes.Delete("/files/:id", driveHandler.DeleteFile)

	documentRoutes := api.Group("/documents", authMiddleware.RequireAuth)
	documentRoutes.Post("/", documentHandler.Create)
	documentRoutes.Get("/", documentHandler.List)
	documentRoutes.Get("/:id", documentHandler.Get)
	documentRoutes.Put("/:id", documentHandler.Update)
	documentRoutes.Delete("/:id", documentHandler.Delete)
	documentRoutes.Post("/:id/export", documentHandler.ExportDocument)

	adminRoutes := api.Group("/admin", authMiddleware.RequireAuth, middleware.AdminOnly)
	adminRoutes.Get("/users", adminHandler.ListUsers)

	return &testEnv{app: app, db: db, store: store}
}

func createTestUser(t *testing.T, db *gorm.DB, email, password string, isAdmin bool) (*models.User, string) {
	t.Helper()

	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}

	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		IsAdmin:      isAdmin,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}

	token, err := utils.GenerateToken(user)
	if err != nil {
		t.Fatalf("failed generating auth token: %v", err)
	}

	return user, token
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
