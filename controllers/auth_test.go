package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"studioapi/config"
	"studioapi/dbhelper"
	"studioapi/models"
	"studioapi/services"
	"studioapi/test"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

func setupTestServer(t *testing.T, processor services.Processor, configure ...func(cfg *config.Config)) (*echo.Echo, *gorm.DB, string) {
	db := dbhelper.SetupTestDB()
	t.Cleanup(dbhelper.SetupCleaner(db))
	dir := t.TempDir()
	cfg := test.Config(dir)
	for _, f := range configure {
		f(cfg)
	}
	storage, err := services.NewLocalStorage(dir)
	require.NoError(t, err)
	if processor == nil {
		processor = &test.ScriptedProcessor{}
	}
	return SetupServer(db, cfg, storage, processor, nil, zap.NewNop()), db, dir
}

func TestSignupOk(t *testing.T) {
	e, db, _ := setupTestServer(t, nil)

	req := test.NewJSONRequest("POST", "/api/auth/signup", models.SignUpIn{Email: "  New.User@Example.com ", Password: "Password1", Name: "New"})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp models.AuthOut
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "new.user@example.com", resp.User.Email)
	assert.Equal(t, "New", resp.User.Name)
	assert.NotZero(t, resp.User.ID)
	assert.NotContains(t, rec.Body.String(), "password")

	var user models.UserAccount
	db.First(&user, "email = ?", "new.user@example.com")
	assert.Equal(t, resp.User.ID, user.ID)
	assert.NotEqual(t, "Password1", user.Password)
	assert.NoError(t, services.VerifyPassword(user.Password, "Password1"))
}

func TestSignupDuplicate(t *testing.T) {
	e, db, _ := setupTestServer(t, nil)
	test.FakeUser(db, "taken@example.com")

	req := test.NewJSONRequest("POST", "/api/auth/signup", models.SignUpIn{Email: "TAKEN@example.com", Password: "Password1"})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"message": "User already exists"}`, rec.Body.String())
}

func TestSignupValidation(t *testing.T) {
	e, _, _ := setupTestServer(t, nil)

	tests := []struct {
		name   string
		body   models.SignUpIn
		field  string
		expect []string
	}{
		{"bad email", models.SignUpIn{Email: "not-an-email", Password: "Password1"}, "email", []string{"Invalid email address"}},
		{"short password", models.SignUpIn{Email: "a@example.com", Password: "Pa1"}, "password", []string{"Password must be at least 8 characters"}},
		{"no uppercase", models.SignUpIn{Email: "a@example.com", Password: "password1"}, "password", []string{"Password must contain at least one uppercase letter"}},
		{"no lowercase", models.SignUpIn{Email: "a@example.com", Password: "PASSWORD1"}, "password", []string{"Password must contain at least one lowercase letter"}},
		{"no digit", models.SignUpIn{Email: "a@example.com", Password: "Passwords"}, "password", []string{"Password must contain at least one number"}},
		{"every password rule", models.SignUpIn{Email: "a@example.com", Password: "abc"}, "password", []string{
			"Password must be at least 8 characters",
			"Password must contain at least one uppercase letter",
			"Password must contain at least one number",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, test.NewJSONRequest("POST", "/api/auth/signup", tt.body))

			require.Equal(t, http.StatusBadRequest, rec.Code)
			var resp models.ValidationErrorOut
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "Validation error", resp.Message)
			assert.Equal(t, tt.expect, resp.Errors[tt.field])
		})
	}
}

func TestLoginOkAndMe(t *testing.T) {
	e, db, _ := setupTestServer(t, nil)
	user := test.FakeUser(db, "login@example.com")

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, test.NewJSONRequest("POST", "/api/auth/login", models.LoginIn{Email: "Login@Example.com", Password: test.FakePassword}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp models.AuthOut
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, user.ID, resp.User.ID)

	req := httptest.NewRequest("GET", "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Token)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var me models.UserOut
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "login@example.com", me.Email)
}

func TestLoginInvalidCredentials(t *testing.T) {
	e, db, _ := setupTestServer(t, nil)
	test.FakeUser(db, "login@example.com")

	for _, body := range []models.LoginIn{
		{Email: "login@example.com", Password: "WrongPass1"},
		{Email: "nobody@example.com", Password: test.FakePassword},
	} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, test.NewJSONRequest("POST", "/api/auth/login", body))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"message": "Invalid credentials"}`, rec.Body.String())
	}
}

func TestLoginLogsFailedIpUpdate(t *testing.T) {
	db := dbhelper.SetupTestDB()
	t.Cleanup(dbhelper.SetupCleaner(db))
	dir := t.TempDir()
	storage, err := services.NewLocalStorage(dir)
	require.NoError(t, err)
	core, logs := observer.New(zap.WarnLevel)
	e := SetupServer(db, test.Config(dir), storage, &test.ScriptedProcessor{}, nil, zap.New(core))

	test.FakeUser(db, "login@example.com")
	require.NoError(t, db.Callback().Update().Before("gorm:update").Register("test:fail_update", func(tx *gorm.DB) {
		tx.AddError(errors.New("database is read only"))
	}))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, test.NewJSONRequest("POST", "/api/auth/login", models.LoginIn{Email: "login@example.com", Password: test.FakePassword}))

	assert.Equal(t, http.StatusOK, rec.Code)
	entries := logs.FilterMessage("failed to record login ip").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "database is read only", entries[0].ContextMap()["error"])
}

func TestLoginValidation(t *testing.T) {
	e, _, _ := setupTestServer(t, nil)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, test.NewJSONRequest("POST", "/api/auth/login", models.LoginIn{Email: "a@example.com"}))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp models.ValidationErrorOut
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"Password is required"}, resp.Errors["password"])
}

func TestMeUnauthorized(t *testing.T) {
	e, _, _ := setupTestServer(t, nil)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest("GET", "/api/auth/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"message": "Unauthorized"}`, rec.Body.String())

	// valid signature, unknown account
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, test.NewJSONAuthRequest("GET", "/api/auth/me", 999, nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest("GET", "/api/auth/me", nil)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", "garbage.token.value"))
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	e, _, _ := setupTestServer(t, nil)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health models.HealthOut
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.False(t, health.Timestamp.IsZero())

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, test.NewJSONRequest("POST", "/api/auth/signup", models.SignUpIn{Email: "metrics@example.com", Password: "Password1"}))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `studio_auth_events_total{event="signup",result="ok"}`))
}
