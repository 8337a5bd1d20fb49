package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"wallet-gate-api/internal/config"
	"wallet-gate-api/internal/handlers"
	"wallet-gate-api/internal/models"
	"wallet-gate-api/internal/services"
	"wallet-gate-api/pkg/logger"
	"wallet-gate-api/pkg/metrics"
	"wallet-gate-api/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testGoldWallet  = "So11111111111111111111111111111111111111112"
	testEmptyWallet = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
)

// MockOracle implements services.Oracle for testing
type MockOracle struct {
	balances    map[string]float64
	mu          sync.RWMutex
	callCount   int64
	shouldError bool
	errorMsg    string
}

// NewMockOracle creates a new mock balance oracle
func NewMockOracle() *MockOracle {
	return &MockOracle{
		balances: make(map[string]float64),
	}
}

// SetBalance sets a mock token balance for a wallet address
func (m *MockOracle) SetBalance(address string, balance float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[address] = balance
}

// SetError configures the oracle to return errors
func (m *MockOracle) SetError(shouldError bool, errorMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shouldError = shouldError
	m.errorMsg = errorMsg
}

// FetchBalance returns the mock balance for an address
func (m *MockOracle) FetchBalance(_ context.Context, address string) (float64, bool, error) {
	atomic.AddInt64(&m.callCount, 1)

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.shouldError {
		return 0, false, fmt.Errorf("%s", m.errorMsg)
	}

	return m.balances[address], false, nil
}

// IsHealthy always reports healthy for testing
func (m *MockOracle) IsHealthy() error {
	return nil
}

// GetCallCount returns the number of balance fetches made
func (m *MockOracle) GetCallCount() int64 {
	return atomic.LoadInt64(&m.callCount)
}

// testActions returns a small rate-limit table with a tight window for tests
func testActions() map[string]config.ActionLimit {
	return map[string]config.ActionLimit{
		"generate": {Window: time.Minute, MaxRequests: 2, KeyBy: "wallet"},
		"metadata": {Window: time.Minute, MaxRequests: 100, KeyBy: "wallet"},
		"stats":    {Window: time.Minute, MaxRequests: 3, KeyBy: "ip"},
	}
}

type testEnv struct {
	engine *gin.Engine
	oracle *MockOracle
	window *services.AccessWindow
	ledger *services.UsageLedger
}

// setupTestServer wires the full router over mock and in-memory dependencies
func setupTestServer(t *testing.T, windowCfg *config.AccessWindowConfig) *testEnv {
	t.Helper()

	if err := logger.Initialize(&logger.Config{
		Level:       "error",
		Environment: "test",
		OutputPaths: []string{"stdout"},
	}); err != nil {
		t.Fatalf("Failed to initialize logger: %v", err)
	}

	if windowCfg == nil {
		// Default to a window whose free-access period has elapsed
		windowCfg = &config.AccessWindowConfig{
			LaunchTime: time.Now().Add(-100 * time.Hour).UTC().Format(time.RFC3339),
			Duration:   48 * time.Hour,
			StatePath:  filepath.Join(t.TempDir(), "access_window.json"),
		}
	}

	collector := metrics.NewMetricsCollector()
	oracle := NewMockOracle()
	oracle.SetBalance(testGoldWallet, 700_000)
	oracle.SetBalance(testEmptyWallet, 0)

	balanceService := services.NewBalanceService(oracle, 10*time.Second, collector)
	store := services.NewMemoryLedgerStore(0)
	ledger := services.NewUsageLedger(store, collector)
	window := services.NewAccessWindow(windowCfg)
	tiers := services.NewTierTable(false)
	entitlements := services.NewEntitlementService(balanceService, tiers, ledger, window, collector)

	registry := ratelimiter.NewRegistry()
	actions := testActions()
	for action, limit := range actions {
		registry.Register(action, limit.MaxRequests, limit.Window)
	}

	router := handlers.NewRouter(handlers.RouterDeps{
		Balances:     balanceService,
		Tiers:        tiers,
		Entitlements: entitlements,
		Window:       window,
		Registry:     registry,
		Actions:      actions,
		Metrics:      collector,
		Health:       services.NewHealthChecker(store, oracle),
	})

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	router.SetupRoutes(engine)
	router.SetupHealthRoutes(engine)

	t.Cleanup(func() {
		balanceService.Stop()
		ledger.Stop()
		window.Stop()
	})

	return &testEnv{
		engine: engine,
		oracle: oracle,
		window: window,
		ledger: ledger,
	}
}

// postJSON performs a JSON POST against the test engine
func postJSON(t *testing.T, engine *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	jsonBody, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", path, bytes.NewBuffer(jsonBody))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func getPath(t *testing.T, engine *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestVerifyTokenEndpoint(t *testing.T) {
	env := setupTestServer(t, nil)

	t.Run("BalanceMapsToTier", func(t *testing.T) {
		w := postJSON(t, env.engine, "/api/verify-token", models.VerifyTokenRequest{
			WalletAddress: testGoldWallet,
		})

		assert.Equal(t, http.StatusOK, w.Code)

		var response models.VerifyTokenResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))

		assert.True(t, response.Success)
		assert.Equal(t, 700_000.0, response.Balance)
		assert.Equal(t, "gold", response.Tier)
		assert.Equal(t, 20, response.DailyLimit)
		assert.False(t, response.Unlimited)
		assert.False(t, response.Cached)
	})

	t.Run("SecondLookupServedFromCache", func(t *testing.T) {
		before := env.oracle.GetCallCount()

		w := postJSON(t, env.engine, "/api/verify-token", models.VerifyTokenRequest{
			WalletAddress: testGoldWallet,
		})

		assert.Equal(t, http.StatusOK, w.Code)

		var response models.VerifyTokenResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))

		assert.True(t, response.Cached)
		assert.Equal(t, before, env.oracle.GetCallCount())
	})

	t.Run("InvalidWalletRejected", func(t *testing.T) {
		w := postJSON(t, env.engine, "/api/verify-token", models.VerifyTokenRequest{
			WalletAddress: "not-a-wallet",
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var response models.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, models.ErrorCodeInvalidWallet, response.Error.Code)
	})

	t.Run("MalformedJSONRejected", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/verify-token", bytes.NewBufferString("{nope"))
		req.Header.Set("Content-Type", "application/json")

		w := httptest.NewRecorder()
		env.engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("OracleFailureFailsOpenToZero", func(t *testing.T) {
		env.oracle.SetError(true, "rpc unavailable")
		defer env.oracle.SetError(false, "")

		w := postJSON(t, env.engine, "/api/verify-token", models.VerifyTokenRequest{
			WalletAddress: testEmptyWallet,
		})

		assert.Equal(t, http.StatusOK, w.Code)

		var response models.VerifyTokenResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))

		assert.Equal(t, 0.0, response.Balance)
		assert.Equal(t, "none", response.Tier)
	})
}

func TestRateLimitEndpoint(t *testing.T) {
	env := setupTestServer(t, nil)

	t.Run("WindowExhaustionReturns429", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			w := postJSON(t, env.engine, "/api/rate-limit", models.RateLimitRequest{
				WalletAddress: testGoldWallet,
				Action:        "generate",
			})
			require.Equal(t, http.StatusOK, w.Code)

			var response models.RateLimitResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Equal(t, 1-i, response.Remaining)
			assert.False(t, response.ResetAt.IsZero())
		}

		w := postJSON(t, env.engine, "/api/rate-limit", models.RateLimitRequest{
			WalletAddress: testGoldWallet,
			Action:        "generate",
		})

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.NotEmpty(t, w.Header().Get("Retry-After"))
	})

	t.Run("ActionsAreIndependent", func(t *testing.T) {
		// The generate window for this wallet is exhausted above
		w := postJSON(t, env.engine, "/api/rate-limit", models.RateLimitRequest{
			WalletAddress: testGoldWallet,
			Action:        "metadata",
		})

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("UnknownActionRejected", func(t *testing.T) {
		w := postJSON(t, env.engine, "/api/rate-limit", models.RateLimitRequest{
			WalletAddress: testGoldWallet,
			Action:        "no-such-action",
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var response models.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, models.ErrorCodeUnknownAction, response.Error.Code)
	})
}

func TestEntitlementAndUsageFlow(t *testing.T) {
	env := setupTestServer(t, nil)

	evaluate := func(t *testing.T, wallet string) models.EntitlementResponse {
		t.Helper()
		w := postJSON(t, env.engine, "/api/entitlement", models.EntitlementRequest{
			WalletAddress: wallet,
			Action:        "generate",
		})
		require.Equal(t, http.StatusOK, w.Code)

		var response models.EntitlementResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		return response
	}

	t.Run("GoldWalletConsumesDailyQuota", func(t *testing.T) {
		first := evaluate(t, testGoldWallet)
		assert.True(t, first.Allowed)
		assert.Equal(t, "gold", first.Tier)
		assert.Equal(t, 20, first.DailyLimit)
		assert.Equal(t, 0, first.Used)

		// Charge the full daily quota
		for i := 1; i <= 20; i++ {
			w := postJSON(t, env.engine, "/api/usage", models.UsageRequest{
				WalletAddress: testGoldWallet,
			})
			require.Equal(t, http.StatusOK, w.Code)

			var usage models.UsageResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &usage))
			assert.Equal(t, i, usage.Used)
		}

		exhausted := evaluate(t, testGoldWallet)
		assert.False(t, exhausted.Allowed)
		assert.Equal(t, string(models.ErrorCodeQuotaExceeded), exhausted.Reason)
		assert.Equal(t, 20, exhausted.Used)
		assert.Equal(t, 0, exhausted.Remaining)
	})

	t.Run("EvaluateNeverCharges", func(t *testing.T) {
		before := evaluate(t, testEmptyWallet).Used
		for i := 0; i < 5; i++ {
			evaluate(t, testEmptyWallet)
		}
		assert.Equal(t, before, evaluate(t, testEmptyWallet).Used)
	})

	t.Run("ZeroBalanceWalletDenied", func(t *testing.T) {
		response := evaluate(t, testEmptyWallet)
		assert.False(t, response.Allowed)
		assert.Equal(t, "none", response.Tier)
		assert.Equal(t, 0, response.DailyLimit)
	})
}

func TestFreeAccessWindow(t *testing.T) {
	t.Run("OpenWindowBypassesQuota", func(t *testing.T) {
		env := setupTestServer(t, &config.AccessWindowConfig{
			Open:      true,
			Duration:  48 * time.Hour,
			StatePath: filepath.Join(t.TempDir(), "access_window.json"),
		})

		w := postJSON(t, env.engine, "/api/entitlement", models.EntitlementRequest{
			WalletAddress: testEmptyWallet,
			Action:        "generate",
		})
		require.Equal(t, http.StatusOK, w.Code)

		var response models.EntitlementResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))

		assert.True(t, response.Allowed)
		assert.True(t, response.FreeAccess)
		// Tier fields still populated for display
		assert.Equal(t, "none", response.Tier)
	})

	t.Run("StateEndpointReflectsWindow", func(t *testing.T) {
		env := setupTestServer(t, &config.AccessWindowConfig{
			Open:      true,
			Duration:  48 * time.Hour,
			StatePath: filepath.Join(t.TempDir(), "access_window.json"),
		})

		w := getPath(t, env.engine, "/api/access-window")
		require.Equal(t, http.StatusOK, w.Code)

		var response models.AccessWindowResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))

		assert.True(t, response.Open)
		assert.True(t, response.Permanent)
	})

	t.Run("StartReopensClosedWindow", func(t *testing.T) {
		env := setupTestServer(t, nil) // elapsed window

		w := getPath(t, env.engine, "/api/access-window")
		var before models.AccessWindowResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &before))
		require.False(t, before.Open)

		w = postJSON(t, env.engine, "/api/access-window/start", gin.H{})
		require.Equal(t, http.StatusOK, w.Code)

		w = getPath(t, env.engine, "/api/access-window")
		var after models.AccessWindowResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &after))
		assert.True(t, after.Open)
		assert.Greater(t, after.RemainingSeconds, int64(0))
	})
}

func TestHealthEndpoints(t *testing.T) {
	env := setupTestServer(t, nil)

	t.Run("OverallHealth", func(t *testing.T) {
		w := getPath(t, env.engine, "/health")
		assert.Equal(t, http.StatusOK, w.Code)

		var response handlers.HealthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, services.HealthStatusHealthy, response.Status)
		assert.Contains(t, response.Services, "ledger_store")
		assert.Contains(t, response.Services, "balance_oracle")
	})

	t.Run("Liveness", func(t *testing.T) {
		w := getPath(t, env.engine, "/health/live")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Readiness", func(t *testing.T) {
		w := getPath(t, env.engine, "/health/ready")
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
