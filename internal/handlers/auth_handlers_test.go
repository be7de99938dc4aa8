package handlers

import (
	"errors"
	"net/http"
	"testing"

	"github.com/opendesk/backend/internal/models"
	"gorm.io/gorm"
)

func TestRegisterFirstUserBecomesAdmin(t *testing.T) {
	env := setupTestEnv(t)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/register", map[string]any{
		"email":    "first@example.com",
		"password": "password123",
	}, nil)
	assertStatus(t, resp, http.StatusCreated)

	body := decodeJSONMap(t, resp)
	data := body["data"].(map[string]any)
	user := data["user"].(map[string]any)
	if isAdmin, _ := user["isAdmin"].(bool); !isAdmin {
		t.Fatal("expected first registered user to be admin")
	}
	if _, ok := data["adminWarning"]; !ok {
		t.Fatal("expected admin warning for first registered user")
	}
	if token, _ := data["token"].(string); token == "" {
		t.Fatal("expected a token in registration response")
	}
}

func TestRegisterSecondUserIsNotAdmin(t *testing.T) {
	env := setupTestEnv(t)
	createTestUser(t, env.db, "existing@example.com", "password123", true)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/register", map[string]any{
		"email":    "second@example.com",
		"password": "password123",
	}, nil)
	assertStatus(t, resp, http.StatusCreated)

	data := decodeJSONMap(t, resp)["data"].(map[string]any)
	user := data["user"].(map[string]any)
	if isAdmin, _ := user["isAdmin"].(bool); isAdmin {
		t.Fatal("expected second registered user to not be admin")
	}
	if _, ok := data["adminWarning"]; ok {
		t.Fatal("did not expect admin warning for second user")
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := setupTestEnv(t)
	createTestUser(t, env.db, "taken@example.com", "password123", false)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/register", map[string]any{
		"email":    "taken@example.com",
		"password": "password123",
	}, nil)
	assertStatus(t, resp, http.StatusConflict)
}

func TestDuplicateEmailUniqueViolationTranslates(t *testing.T) {
	env := setupTestEnv(t)
	createTestUser(t, env.db, "racer@example.com", "password123", false)

	// registration maps this translated error to Conflict when an insert
	// slips past the pre-check under concurrency
	err := env.db.Create(&models.User{
		Email:        "racer@example.com",
		PasswordHash: "irrelevant",
	}).Error
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		t.Fatalf("expected ErrDuplicatedKey from unique violation, got %v", err)
	}
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	env := setupTestEnv(t)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/register", map[string]any{
		"email":    "weak@example.com",
		"password": "short",
	}, nil)
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestLoginAndMe(t *testing.T) {
	env := setupTestEnv(t)
	createTestUser(t, env.db, "login@example.com", "password123", false)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
		"email":    "login@example.com",
		"password": "password123",
	}, nil)
	assertStatus(t, resp, http.StatusOK)

	data := decodeJSONMap(t, resp)["data"].(map[string]any)
	token, _ := data["token"].(string)
	if token == "" {
		t.Fatal("expected a token in login response")
	}

	meResp := performJSONRequest(t, env.app, http.MethodGet, "/api/auth/me", nil, authHeaders(token))
	assertStatus(t, meResp, http.StatusOK)

	me := decodeJSONMap(t, meResp)["data"].(map[string]any)
	if email, _ := me["email"].(string); email != "login@example.com" {
		t.Fatalf("expected own email in /me response, got %q", email)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	env := setupTestEnv(t)
	createTestUser(t, env.db, "victim@example.com", "password123", false)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
		"email":    "victim@example.com",
		"password": "wrong-password",
	}, nil)
	assertStatus(t, resp, http.StatusUnauthorized)
}

func TestMeRequiresToken(t *testing.T) {
	env := setupTestEnv(t)

	resp := performJSONRequest(t, env.app, http.MethodGet, "/api/auth/me", nil, nil)
	assertStatus(t, resp, http.StatusUnauthorized)

	var count int64
	if err := env.db.Model(&models.User{}).Count(&count).Error; err != nil {
		t.Fatalf("failed counting users: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no users, got %d", count)
	}
}
