package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/qkgalias/capstone-hub/internal/config"
	"github.com/qkgalias/capstone-hub/internal/logging"
	"github.com/qkgalias/capstone-hub/internal/material"
	"github.com/qkgalias/capstone-hub/internal/session"
	"github.com/qkgalias/capstone-hub/pkg/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig() *config.Config {
	return &config.Config{
		LoginEmail:      "owner@example.com",
		LoginUsername:   "admin",
		SupabaseURL:     "https://project.supabase.co",
		SupabaseAnonKey: "anon",
		Addr:            "127.0.0.1:0",
		Store:           config.StoreSupabase,
		CategoriesFile:  "does-not-exist.yaml",
		LoginPath:       "/login",
		LoginRate:       1,
		LoginBurst:      5,
		HTTPTimeout:     time.Second,
	}
}

func TestNew_WiresInjectedDependencies(t *testing.T) {
	idp := testutil.NewMockIdentity("owner@example.com", "pw")
	store := testutil.NewMockStore()
	store.Seed(idp.UserID(), material.Material{ID: "m1", Title: "Spec", Category: "Documentation", Link: "https://x/spec"})

	a, err := New(context.Background(), testConfig(), Deps{
		Identity: idp,
		Stores:   func(*session.Session) material.Store { return store },
	}, logging.NewDiscard())
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "Other", a.Catalog.Fallback())
	assert.Equal(t, config.DefaultMaxColumns, a.MaxColumns)

	h := a.API.Handler()

	body, _ := json.Marshal(map[string]string{"username": "ADMIN", "password": "pw"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var pair session.TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pair))

	req := httptest.NewRequest(http.MethodGet, "/api/materials", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"m1"`)
	assert.Equal(t, 1, a.Boards.Len())
}

func TestNew_MaxColumnsOverride(t *testing.T) {
	cfg := testConfig()
	cfg.MaxColumns = 3

	a, err := New(context.Background(), cfg, Deps{Identity: testutil.NewMockIdentity("owner@example.com", "pw")}, logging.NewDiscard())
	require.NoError(t, err)
	assert.Equal(t, 3, a.MaxColumns)
}

func TestNew_WithoutSupabaseLoginIsNotConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.SupabaseURL = ""

	a, err := New(context.Background(), cfg, Deps{}, logging.NewDiscard())
	require.NoError(t, err)

	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "pw"})
	rec := httptest.NewRecorder()
	a.API.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestNew_PostgresStoreUsesInjectedDB(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cfg := testConfig()
	cfg.Store = config.StorePostgres
	cfg.DatabaseURL = "postgres://unused"

	a, err := New(context.Background(), cfg, Deps{DB: db, Identity: testutil.NewMockIdentity("owner@example.com", "pw")}, logging.NewDiscard())
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS materials").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("ROW LEVEL SECURITY").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, a.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())

	require.NoError(t, a.Close(), "an injected db is left open")
}

func TestMigrate_RequiresDatabase(t *testing.T) {
	a, err := New(context.Background(), testConfig(), Deps{}, logging.NewDiscard())
	require.NoError(t, err)
	assert.Error(t, a.Migrate(context.Background()))
}

func TestServe_StopsOnCancel(t *testing.T) {
	a, err := New(context.Background(), testConfig(), Deps{}, logging.NewDiscard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
