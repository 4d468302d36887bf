package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xCipherCoder/contribution-tracker/internal/config"
	"github.com/0xCipherCoder/contribution-tracker/internal/domain"
	"github.com/0xCipherCoder/contribution-tracker/internal/features/distribution"
	"github.com/0xCipherCoder/contribution-tracker/internal/features/ledger"
	"github.com/0xCipherCoder/contribution-tracker/internal/features/periods"
	"github.com/0xCipherCoder/contribution-tracker/internal/features/settlement"
	"github.com/0xCipherCoder/contribution-tracker/internal/metrics"
	"github.com/0xCipherCoder/contribution-tracker/internal/storage/memory"
	"github.com/0xCipherCoder/contribution-tracker/internal/validation"
)

const admin = "tg:1"

type apiEnv struct {
	ctx          context.Context
	clock        *domain.ManualClock
	periods      *periods.Service
	ledger       *ledger.Service
	settlement   *settlement.Service
	distribution *distribution.Service
	handler      http.Handler
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	clock := domain.NewManualClock(1_700_000_000)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	e := &apiEnv{ctx: context.Background(), clock: clock}
	e.periods = periods.NewService(store, clock, m)
	e.ledger = ledger.NewService(store, clock, m)
	e.settlement = settlement.NewService(store, settlement.VaultTransferer{},
		settlement.Vaults{Reward: "vault:reward", Reserve: "vault:reserve"}, clock, m)
	e.distribution = distribution.NewService(store, e.settlement, clock, m)

	cfg := &config.Config{AppEnv: "test", HTTPAddr: "127.0.0.1:0"}
	h := NewHandler(e.periods, e.ledger, e.settlement, e.distribution)
	e.handler = NewServer(cfg, h, reg).Handler()
	return e
}

// seed запускает трекер, одобряет вклад tg:5 на 10 баллов и финализирует период 0.
func (e *apiEnv) seed(t *testing.T) {
	t.Helper()
	_, _, err := e.periods.Bootstrap(e.ctx, admin, validation.TrackerSettings{
		PeriodDuration: 86400, MinimumPointsThreshold: 100, TokensPerPeriod: 1000,
	})
	require.NoError(t, err)
	_, err = e.settlement.Fund(e.ctx, admin, 10_000)
	require.NoError(t, err)

	c, err := e.ledger.Submit(e.ctx, "tg:5", domain.BugFix, domain.Critical, "падение")
	require.NoError(t, err)
	_, err = e.ledger.Review(e.ctx, admin, c.ID, true)
	require.NoError(t, err)

	e.clock.Advance(86400)
	_, err = e.distribution.Finalize(e.ctx, admin, 0)
	require.NoError(t, err)
}

func (e *apiEnv) get(t *testing.T, path string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var body map[string]any
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec.Code, body
}

func TestHealthz(t *testing.T) {
	e := newAPIEnv(t)
	code, body := e.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestTrackerNotInitialized(t *testing.T) {
	e := newAPIEnv(t)
	code, body := e.get(t, "/api/tracker")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "трекер ещё не запущен", body["error"])
	assert.Equal(t, "state", body["category"])
}

func TestTrackerAndPeriods(t *testing.T) {
	e := newAPIEnv(t)
	e.seed(t)

	code, body := e.get(t, "/api/tracker")
	require.Equal(t, http.StatusOK, code)
	data := body["data"].(map[string]any)
	assert.Equal(t, admin, data["admin"])
	assert.EqualValues(t, 500, data["reserve_pool_amount"])
	current := data["current"].(map[string]any)
	assert.Equal(t, "finalized", current["state"])

	code, body = e.get(t, "/api/periods/0")
	require.Equal(t, http.StatusOK, code)
	period := body["data"].(map[string]any)
	assert.EqualValues(t, 10, period["total_points"])
	assert.EqualValues(t, 500, period["tokens_allocated"])
	assert.Equal(t, true, period["distribution_processed"])

	code, _ = e.get(t, "/api/periods/7")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = e.get(t, "/api/periods/-1")
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = e.get(t, "/api/periods/0/contributions")
	require.Equal(t, http.StatusOK, code)
	list := body["data"].([]any)
	require.Len(t, list, 1)
	first := list[0].(map[string]any)
	assert.Equal(t, "bug_fix", first["category"])
	assert.Equal(t, "critical", first["severity"])
	assert.Equal(t, "approved", first["status"])
}

func TestContributorEndpoints(t *testing.T) {
	e := newAPIEnv(t)
	e.seed(t)

	code, body := e.get(t, "/api/contributors/tg:5/preview/0")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 500, body["data"].(map[string]any)["reward"])

	_, err := e.distribution.Claim(e.ctx, "tg:5", 0)
	require.NoError(t, err)

	code, body = e.get(t, "/api/contributors/tg:5")
	require.Equal(t, http.StatusOK, code)
	data := body["data"].(map[string]any)
	assert.EqualValues(t, 500, data["balance"])
	assert.EqualValues(t, 0, data["last_claimed_period"])
	assert.Equal(t, false, data["never_claimed"])

	code, body = e.get(t, "/api/contributors/tg:5/settlements")
	require.Equal(t, http.StatusOK, code)
	history := body["data"].([]any)
	require.Len(t, history, 1)
	assert.Equal(t, "claim", history[0].(map[string]any)["kind"])

	code, body = e.get(t, "/api/contributors/tg:5/contributions")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["data"].([]any), 1)

	// Повторный прогноз после получения: конфликт состояния
	code, body = e.get(t, "/api/contributors/tg:5/preview/0")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "награда за этот период уже получена", body["error"])

	code, _ = e.get(t, "/api/contributors/tg:404")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSettlementsLimitValidation(t *testing.T) {
	e := newAPIEnv(t)

	code, body := e.get(t, "/api/contributors/tg:5/settlements?limit=0")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "limit: минимум 1", body["error"])

	code, body = e.get(t, "/api/contributors/tg:5/settlements?limit=500")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "limit: максимум 100", body["error"])

	code, _ = e.get(t, "/api/contributors/tg:5/settlements?limit=abc")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestMetricsExposed(t *testing.T) {
	e := newAPIEnv(t)
	e.seed(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "contributions_submitted_total")
	assert.Contains(t, rec.Body.String(), `periods_finalized_total{mode="distribution"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	e := newAPIEnv(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/tracker", nil)
	req.Header.Set("Origin", "http://example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
