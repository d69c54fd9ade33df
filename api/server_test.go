package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rubex-exchange/rubex/internal/commission"
	"github.com/rubex-exchange/rubex/internal/identities"
	"github.com/rubex-exchange/rubex/internal/orders"
	"github.com/rubex-exchange/rubex/internal/partner"
	"github.com/rubex-exchange/rubex/internal/quote"
	"github.com/rubex-exchange/rubex/internal/rates"
	"github.com/rubex-exchange/rubex/internal/requisites"
	"github.com/rubex-exchange/rubex/pkg/models"
)

type testEnv struct {
	server *Server
	db     *gorm.DB
	store  *rates.Store
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Order{}, &models.Withdrawal{},
		&models.CommissionTier{}, &models.RateSnapshot{}, &models.Requisite{},
	))

	log := zap.NewNop()

	identitiesSvc, err := identities.NewService(log, db, "test-secret", 24)
	require.NoError(t, err)
	commissionsSvc, err := commission.NewService(log, db)
	require.NoError(t, err)
	require.NoError(t, commissionsSvc.Ensure(context.Background()))

	store := rates.NewStore()
	quotesSvc, err := quote.NewService(log, store, commissionsSvc)
	require.NoError(t, err)
	ordersSvc, err := orders.NewService(log, db, nil)
	require.NoError(t, err)
	partnersSvc, err := partner.NewService(log, db, nil, decimal.Zero)
	require.NoError(t, err)
	requisitesSvc, err := requisites.NewService(log, db)
	require.NoError(t, err)

	server := NewServer(log, identitiesSvc, quotesSvc, ordersSvc, partnersSvc, requisitesSvc, commissionsSvc, store)
	return &testEnv{server: server, db: db, store: store}
}

func (e *testEnv) request(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.server.Router().ServeHTTP(w, req)
	return w
}

func (e *testEnv) registerAndLogin(t *testing.T, login string) string {
	t.Helper()
	w := e.request(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"login":    login,
		"email":    login + "@example.com",
		"password": "password123",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = e.request(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"login":    login,
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func (e *testEnv) seedRates() {
	e.store.Replace(&rates.Snapshot{
		Rates: map[string]decimal.Decimal{
			"RUB":  decimal.NewFromInt(1),
			"USDT": decimal.NewFromInt(90),
			"BTC":  decimal.NewFromInt(6000000),
		},
		Timestamp: time.Now(),
	})
}

func TestHealthCheck(t *testing.T) {
	env := setupTestServer(t)
	w := env.request(t, http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestQuoteBeforeFirstSnapshot(t *testing.T) {
	env := setupTestServer(t)
	w := env.request(t, http.MethodPost, "/api/v1/rates/quote", "", gin.H{
		"from_currency": "RUB",
		"to_currency":   "USDT",
		"amount":        "10000",
		"fixed_side":    "give",
	})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestQuoteEndpoint(t *testing.T) {
	env := setupTestServer(t)
	env.seedRates()

	w := env.request(t, http.MethodPost, "/api/v1/rates/quote", "", gin.H{
		"from_currency": "RUB",
		"to_currency":   "USDT",
		"amount":        "10000",
		"fixed_side":    "give",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result models.QuoteResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "106.67", result.ResultAmount)

	// Cross-crypto pairs are rejected.
	w = env.request(t, http.MethodPost, "/api/v1/rates/quote", "", gin.H{
		"from_currency": "BTC",
		"to_currency":   "USDT",
		"amount":        "1",
		"fixed_side":    "give",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Symbols must be uppercase tickers.
	w = env.request(t, http.MethodPost, "/api/v1/rates/quote", "", gin.H{
		"from_currency": "rub",
		"to_currency":   "USDT",
		"amount":        "10000",
		"fixed_side":    "give",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown fixed_side fails binding validation.
	w = env.request(t, http.MethodPost, "/api/v1/rates/quote", "", gin.H{
		"from_currency": "RUB",
		"to_currency":   "USDT",
		"amount":        "10000",
		"fixed_side":    "both",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetRates(t *testing.T) {
	env := setupTestServer(t)

	w := env.request(t, http.MethodGet, "/api/v1/rates", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	env.seedRates()
	w = env.request(t, http.MethodGet, "/api/v1/rates", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Rates map[string]string `json:"rates"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "90", resp.Rates["USDT"])
}

func TestAnonymousOrderFlow(t *testing.T) {
	env := setupTestServer(t)

	w := env.request(t, http.MethodPost, "/api/v1/orders", "", gin.H{
		"amount_give":      "10000",
		"currency_give":    "RUB",
		"amount_receive":   "106.67",
		"currency_receive": "USDT",
		"contact":          "@someone",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var created struct {
		OrderID string `json:"order_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.OrderID)

	w = env.request(t, http.MethodGet, "/api/v1/orders/"+created.OrderID, "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.request(t, http.MethodGet, "/api/v1/orders/deadbeef", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuthenticatedOrderOwnership(t *testing.T) {
	env := setupTestServer(t)
	token := env.registerAndLogin(t, "alice")

	w := env.request(t, http.MethodPost, "/api/v1/orders", token, gin.H{
		"amount_give":      "10000",
		"currency_give":    "RUB",
		"amount_receive":   "106.67",
		"currency_receive": "USDT",
		"contact":          "@alice",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.request(t, http.MethodGet, "/api/v1/user/orders", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Orders []models.Order `json:"orders"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Orders, 1)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := setupTestServer(t)

	for _, path := range []string{"/api/v1/user/profile", "/api/v1/partner/info", "/api/v1/requisites"} {
		w := env.request(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}

	w := env.request(t, http.MethodGet, "/api/v1/user/profile", "bogus-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminRoutesRequireRole(t *testing.T) {
	env := setupTestServer(t)
	token := env.registerAndLogin(t, "alice")

	w := env.request(t, http.MethodGet, "/api/v1/admin/orders", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Promote and retry.
	require.NoError(t, env.db.Model(&models.User{}).Where("login = ?", "alice").Update("role", "admin").Error)
	w = env.request(t, http.MethodGet, "/api/v1/admin/orders", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminOrderStatusTransition(t *testing.T) {
	env := setupTestServer(t)
	adminToken := env.registerAndLogin(t, "admin")
	require.NoError(t, env.db.Model(&models.User{}).Where("login = ?", "admin").Update("role", "admin").Error)

	w := env.request(t, http.MethodPost, "/api/v1/orders", "", gin.H{
		"amount_give":      "10000",
		"currency_give":    "RUB",
		"amount_receive":   "106.67",
		"currency_receive": "USDT",
		"contact":          "@someone",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var created struct {
		OrderID string `json:"order_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = env.request(t, http.MethodPatch, "/api/v1/admin/orders/"+created.OrderID+"/status", adminToken, gin.H{
		"status": "completed",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.request(t, http.MethodPatch, "/api/v1/admin/orders/"+created.OrderID+"/status", adminToken, gin.H{
		"status": "bogus",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.request(t, http.MethodPatch, "/api/v1/admin/orders/deadbeef/status", adminToken, gin.H{
		"status": "completed",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWithdrawalEndpoint(t *testing.T) {
	env := setupTestServer(t)
	token := env.registerAndLogin(t, "alice")

	// No bonus balance yet.
	w := env.request(t, http.MethodPost, "/api/v1/partner/withdrawals", token, gin.H{
		"amount":  "100",
		"contact": "@alice",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	require.NoError(t, env.db.Model(&models.User{}).Where("login = ?", "alice").
		Update("bonus_balance", decimal.NewFromInt(500)).Error)

	w = env.request(t, http.MethodPost, "/api/v1/partner/withdrawals", token, gin.H{
		"amount":  "400",
		"contact": "@alice",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.request(t, http.MethodGet, "/api/v1/partner/withdrawals", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Withdrawals []models.Withdrawal `json:"withdrawals"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Withdrawals, 1)
}

func TestCommissionAdminEndpoints(t *testing.T) {
	env := setupTestServer(t)
	adminToken := env.registerAndLogin(t, "admin")
	require.NoError(t, env.db.Model(&models.User{}).Where("login = ?", "admin").Update("role", "admin").Error)

	w := env.request(t, http.MethodGet, "/api/v1/admin/commissions", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var tiers map[string][]models.CommissionTier
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tiers))
	assert.Len(t, tiers["usdt"], 3)

	w = env.request(t, http.MethodPatch, "/api/v1/admin/commissions", adminToken, gin.H{
		"usdt": []gin.H{{"min": "1000", "max": "1000000", "commission": "0.01"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Invalid tiers are rejected.
	w = env.request(t, http.MethodPatch, "/api/v1/admin/commissions", adminToken, gin.H{
		"usdt": []gin.H{{"min": "1000000", "max": "1000", "commission": "0.01"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequisiteEndpoints(t *testing.T) {
	env := setupTestServer(t)
	token := env.registerAndLogin(t, "alice")

	w := env.request(t, http.MethodPost, "/api/v1/requisites", token, gin.H{
		"system":         "Sber",
		"account_number": "4276000000000000",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.request(t, http.MethodGet, "/api/v1/requisites", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Requisites []models.Requisite `json:"requisites"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Requisites, 1)
}
