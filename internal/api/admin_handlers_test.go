package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/TickerVal-io/tickerval/internal/config"
	"github.com/TickerVal-io/tickerval/internal/subscription"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeArchive struct {
	keys    []string
	listErr error
}

func (a *fakeArchive) ListSnapshots(ctx context.Context, ticker string) ([]string, error) {
	if a.listErr != nil {
		return nil, a.listErr
	}
	return a.keys, nil
}

func (a *fakeArchive) PresignSnapshot(ctx context.Context, key string, expiration time.Duration) (string, error) {
	return "https://archive.example.com/" + key + "?signed=1", nil
}

func newAdminTestAPI(adminToken string) (*Api, *chi.Mux) {
	cfg := &config.Config{}
	cfg.Admin.Token = adminToken

	api := &Api{
		Config: cfg,
		store:  subscription.NewMemoryStore(),
	}

	router := chi.NewRouter()
	router.Group(func(r chi.Router) {
		r.Use(api.AdminAuthMiddleware)
		r.Post("/admin/subscriptions/{email}/activate", api.AdminActivateHandler)
		r.Get("/admin/subscriptions/{email}", api.AdminGetSubscriptionHandler)
		r.Get("/admin/reports/{ticker}/snapshots", api.AdminListSnapshotsHandler)
	})
	return api, router
}

func TestAdminRoutesRejectWithoutToken(t *testing.T) {
	_, router := newAdminTestAPI("hunter2")

	req := httptest.NewRequest(http.MethodPost, "/admin/subscriptions/user@example.com/activate", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/admin/subscriptions/user@example.com/activate", nil)
	req.Header.Set("X-Admin-Token", "wrong")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRoutesUnavailableWhenUnconfigured(t *testing.T) {
	_, router := newAdminTestAPI("")

	req := httptest.NewRequest(http.MethodPost, "/admin/subscriptions/user@example.com/activate", nil)
	req.Header.Set("X-Admin-Token", "")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAdminActivateGrantsSubscription(t *testing.T) {
	api, router := newAdminTestAPI("hunter2")

	body := bytes.NewBufferString(`{"plan_id":"price_comp","days":7}`)
	req := httptest.NewRequest(http.MethodPost, "/admin/subscriptions/user@example.com/activate", body)
	req.Header.Set("X-Admin-Token", "hunter2")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, api.store.IsActive("user@example.com"))

	recd, err := api.store.Get("user@example.com")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, recd.Status)
	assert.Equal(t, "price_comp", recd.PlanID)
	assert.Equal(t, subscription.SourceManual, recd.Source)
	require.NotNil(t, recd.CurrentPeriodEnd)
}

func TestAdminGetSubscription(t *testing.T) {
	api, router := newAdminTestAPI("hunter2")

	req := httptest.NewRequest(http.MethodGet, "/admin/subscriptions/nobody@example.com", nil)
	req.Header.Set("X-Admin-Token", "hunter2")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, err := api.store.Upsert("user@example.com", subscription.Change{Status: subscription.StatusActive})
	require.NoError(t, err)

	req = httptest.NewRequest(http.MethodGet, "/admin/subscriptions/user@example.com", nil)
	req.Header.Set("X-Admin-Token", "hunter2")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"active"`)
}

func TestAdminListSnapshots(t *testing.T) {
	api, router := newAdminTestAPI("hunter2")
	api.archive = &fakeArchive{keys: []string{
		"reports/AAPL/2026-08-31.json",
		"reports/AAPL/2026-09-01.json",
	}}

	req := httptest.NewRequest(http.MethodGet, "/admin/reports/AAPL/snapshots", nil)
	req.Header.Set("X-Admin-Token", "hunter2")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var entries []snapshotEntry
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "reports/AAPL/2026-08-31.json", entries[0].Key)
	assert.Contains(t, entries[0].URL, "signed=1")
}

func TestAdminListSnapshotsUnavailableWithoutArchive(t *testing.T) {
	_, router := newAdminTestAPI("hunter2")

	req := httptest.NewRequest(http.MethodGet, "/admin/reports/AAPL/snapshots", nil)
	req.Header.Set("X-Admin-Token", "hunter2")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAdminListSnapshotsListFailure(t *testing.T) {
	api, router := newAdminTestAPI("hunter2")
	api.archive = &fakeArchive{listErr: fmt.Errorf("bucket unavailable")}

	req := httptest.NewRequest(http.MethodGet, "/admin/reports/AAPL/snapshots", nil)
	req.Header.Set("X-Admin-Token", "hunter2")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
