package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"stocktracker/internal/logger"
	"stocktracker/internal/marketdata"
	"stocktracker/internal/middleware"
	"stocktracker/internal/models"
	"stocktracker/internal/services"
	"stocktracker/internal/testutil"
	"stocktracker/internal/validator"
)

const testAPIKey = "pipeline-secret"

// testApp holds the full application stack backed by an in-memory database
// and a fake market data provider.
type testApp struct {
	DB       *gorm.DB
	Provider *testutil.FakeProvider
	Router   *gin.Engine
}

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	logger.Init("test")
	validator.Register()
	os.Exit(m.Run())
}

func setupApp(t *testing.T) *testApp {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.TeardownTestDB(t, db) })
	provider := testutil.NewFakeProvider()

	stocks := services.NewStockService(db, provider, services.StockServiceOptions{})
	svc := Services{
		Users:     services.NewUserService(db),
		Stocks:    stocks,
		Holdings:  services.NewHoldingService(db, stocks),
		Watchlist: services.NewWatchlistService(db, stocks),
		Portfolio: services.NewPortfolioService(db),
		Updater:   services.NewUpdaterService(db, stocks),
		Audit:     services.NewAuditService(db),
	}
	r := New(svc, Options{PipelineAPIKey: testAPIKey})

	return &testApp{DB: db, Provider: provider, Router: r}
}

// request makes an HTTP request to the test router and returns the recorder.
func (app *testApp) request(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	return rec
}

func (app *testApp) pipeline(method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set(middleware.APIKeyHeader, testAPIKey)
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	return rec
}

func parseJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, rec.Body.String())
	}
	return result
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	errObj, ok := parseJSON(t, rec)["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error object in %s", rec.Body.String())
	}
	return errObj["code"].(string)
}

func assertDecimalField(t *testing.T, want string, got interface{}) {
	t.Helper()
	s, ok := got.(string)
	if !ok {
		t.Fatalf("expected decimal string, got %T %v", got, got)
	}
	if !decimal.RequireFromString(s).Equal(decimal.RequireFromString(want)) {
		t.Errorf("expected %s, got %s", want, s)
	}
}

// registerUser registers a new user and returns the access and refresh tokens.
func (app *testApp) registerUser(t *testing.T, email string) (accessToken, refreshToken string) {
	t.Helper()
	body := fmt.Sprintf(`{"email":%q,"password":"password123","first_name":"Test","last_name":"User"}`, email)
	rec := app.request("POST", "/api/v1/auth/register", body, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("register failed: %d %s", rec.Code, rec.Body.String())
	}
	result := parseJSON(t, rec)
	return result["access_token"].(string), result["refresh_token"].(string)
}

func TestHealth(t *testing.T) {
	app := setupApp(t)

	rec := app.request("GET", "/api/health", "", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthFlow(t *testing.T) {
	app := setupApp(t)
	access, refresh := app.registerUser(t, "flow@test.com")

	rec := app.request("GET", "/api/v1/profile", "", access)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for profile, got %d: %s", rec.Code, rec.Body.String())
	}
	user := parseJSON(t, rec)["user"].(map[string]interface{})
	if user["email"] != "flow@test.com" {
		t.Errorf("expected flow@test.com, got %v", user["email"])
	}

	rec = app.request("POST", "/api/v1/auth/login", `{"email":"flow@test.com","password":"wrong-password"}`, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", rec.Code)
	}

	rec = app.request("POST", "/api/v1/auth/refresh", fmt.Sprintf(`{"refresh_token":%q}`, refresh), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for refresh, got %d: %s", rec.Code, rec.Body.String())
	}
	rotated := parseJSON(t, rec)["refresh_token"].(string)
	if rotated == refresh {
		t.Error("expected a new refresh token")
	}

	// The first refresh token was superseded by the rotation.
	rec = app.request("POST", "/api/v1/auth/refresh", fmt.Sprintf(`{"refresh_token":%q}`, refresh), "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for superseded token, got %d", rec.Code)
	}

	rec = app.request("GET", "/api/v1/stocks/AAPL", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestStockFlow_GetOrRefresh(t *testing.T) {
	app := setupApp(t)
	token, _ := app.registerUser(t, "stocks@test.com")
	app.Provider.SetStock("AAPL", "Apple Inc.", "187.25", time.Now(), "180", "185", "187.25")

	// Absent row is fetched and cached with its history.
	rec := app.request("GET", "/api/v1/stocks/aapl", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	result := parseJSON(t, rec)
	stock := result["stock"].(map[string]interface{})
	if stock["symbol"] != "AAPL" {
		t.Errorf("expected AAPL, got %v", stock["symbol"])
	}
	assertDecimalField(t, "187.25", stock["current_price"])
	if history := result["history"].([]interface{}); len(history) != 3 {
		t.Errorf("expected 3 history bars, got %d", len(history))
	}

	// A fresh row is served from the cache.
	rec = app.request("GET", "/api/v1/quote?symbol=AAPL", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if calls := app.Provider.Calls("AAPL"); calls != 1 {
		t.Errorf("expected 1 provider call, got %d", calls)
	}

	// Force refreshes even a fresh row.
	rec = app.request("GET", "/api/v1/stocks/AAPL?force=true&history=0", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if calls := app.Provider.Calls("AAPL"); calls != 2 {
		t.Errorf("expected 2 provider calls, got %d", calls)
	}

	var count int64
	app.DB.Model(&models.StockHistory{}).Count(&count)
	if count != 3 {
		t.Errorf("expected history replaced not appended, got %d rows", count)
	}

	rec = app.request("GET", "/api/v1/stocks/AAPL/history?page_size=2", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for history, got %d", rec.Code)
	}
	if pages := parseJSON(t, rec)["total_pages"]; pages != float64(2) {
		t.Errorf("expected 2 pages, got %v", pages)
	}

	rec = app.request("GET", "/api/v1/stocks/AAPL/indicators?names=sma2", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for indicators, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = app.request("GET", "/api/v1/search/stocks?query=apple", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for search, got %d", rec.Code)
	}
	if found := parseJSON(t, rec)["stocks"].([]interface{}); len(found) != 1 {
		t.Errorf("expected 1 search result, got %d", len(found))
	}
}

func TestStockFlow_Errors(t *testing.T) {
	app := setupApp(t)
	token, _ := app.registerUser(t, "errors@test.com")

	rec := app.request("GET", "/api/v1/stocks/1234567", "", token)
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "INVALID_SYMBOL" {
		t.Fatalf("expected 400 INVALID_SYMBOL, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = app.request("GET", "/api/v1/stocks/ZZZZ", "", token)
	if rec.Code != http.StatusNotFound || errorCode(t, rec) != "NO_DATA_AVAILABLE" {
		t.Fatalf("expected 404 NO_DATA_AVAILABLE, got %d: %s", rec.Code, rec.Body.String())
	}
	var count int64
	app.DB.Model(&models.Stock{}).Count(&count)
	if count != 0 {
		t.Errorf("expected no stock row created, got %d", count)
	}

	app.Provider.SetQuote("TSLA", marketdata.QuoteFailed(errors.New("timeout")))
	rec = app.request("GET", "/api/v1/stocks/TSLA", "", token)
	if rec.Code != http.StatusServiceUnavailable || errorCode(t, rec) != "PROVIDER_UNAVAILABLE" {
		t.Fatalf("expected 503 PROVIDER_UNAVAILABLE, got %d: %s", rec.Code, rec.Body.String())
	}

	// A stale cached row is still served when the provider fails.
	old := time.Now().Add(-time.Hour)
	testutil.CreateTestStock(t, app.DB, "TSLA", "175", &old)
	rec = app.request("GET", "/api/v1/stocks/TSLA", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 stale, got %d: %s", rec.Code, rec.Body.String())
	}
	result := parseJSON(t, rec)
	if result["stale"] != true {
		t.Errorf("expected stale=true, got %v", result["stale"])
	}
	assertDecimalField(t, "175", result["stock"].(map[string]interface{})["current_price"])
}

func TestHoldingAndPortfolioFlow(t *testing.T) {
	app := setupApp(t)
	token, _ := app.registerUser(t, "holder@test.com")
	app.Provider.SetStock("AAPL", "Apple Inc.", "200", time.Now(), "150", "190", "200")

	rec := app.request("GET", "/api/v1/stocks/AAPL", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = app.request("POST", "/api/v1/holdings", `{"symbol":"AAPL","quantity":"10","price":"100"}`, token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	holdingID := parseJSON(t, rec)["holding"].(map[string]interface{})["id"].(string)

	rec = app.request("POST", "/api/v1/holdings", `{"symbol":"aapl","quantity":"30","price":"200"}`, token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	holding := parseJSON(t, rec)["holding"].(map[string]interface{})
	if holding["id"] != holdingID {
		t.Errorf("expected purchase merged into %s, got %v", holdingID, holding["id"])
	}
	assertDecimalField(t, "40", holding["quantity"])
	assertDecimalField(t, "175", holding["average_price"])

	rec = app.request("GET", "/api/v1/holdings", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	list := parseJSON(t, rec)["data"].([]interface{})
	if len(list) != 1 {
		t.Fatalf("expected 1 holding, got %d", len(list))
	}
	assertDecimalField(t, "8000", list[0].(map[string]interface{})["market_value"])

	rec = app.request("GET", "/api/v1/portfolio/stats", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	stats := parseJSON(t, rec)
	assertDecimalField(t, "8000", stats["total_value"])
	assertDecimalField(t, "7000", stats["total_cost"])
	assertDecimalField(t, "1000", stats["total_gain"])

	rec = app.request("GET", "/api/v1/portfolio/value?days=10", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if points := parseJSON(t, rec)["points"].([]interface{}); len(points) != 3 {
		t.Errorf("expected 3 value points, got %d", len(points))
	}

	rec = app.request("GET", "/api/v1/portfolio/performance", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	// Holdings are private to their owner.
	other, _ := app.registerUser(t, "other@test.com")
	rec = app.request("GET", "/api/v1/holdings/"+holdingID, "", other)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another user's holding, got %d", rec.Code)
	}

	rec = app.request("DELETE", "/api/v1/holdings/"+holdingID, "", token)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestWatchlistFlow(t *testing.T) {
	app := setupApp(t)
	token, _ := app.registerUser(t, "watcher@test.com")
	app.Provider.SetStock("MSFT", "Microsoft Corp", "410", time.Now(), "400", "410")

	rec := app.request("POST", "/api/v1/watchlist", `{"symbol":"msft"}`, token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = app.request("POST", "/api/v1/watchlist", `{"symbol":"MSFT"}`, token)
	if rec.Code != http.StatusConflict || errorCode(t, rec) != "ALREADY_IN_WATCHLIST" {
		t.Fatalf("expected 409 ALREADY_IN_WATCHLIST, got %d", rec.Code)
	}

	rec = app.request("GET", "/api/v1/watchlist", "", token)
	if items := parseJSON(t, rec)["items"].([]interface{}); len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}

	rec = app.request("DELETE", "/api/v1/watchlist/MSFT", "", token)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	rec = app.request("DELETE", "/api/v1/watchlist/MSFT", "", token)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second remove, got %d", rec.Code)
	}
}

func TestPipelineFlow(t *testing.T) {
	app := setupApp(t)
	token, _ := app.registerUser(t, "pipeline@test.com")
	app.Provider.SetStock("AAPL", "Apple Inc.", "187", time.Now(), "180", "187")
	app.Provider.SetStock("MSFT", "Microsoft Corp", "410", time.Now(), "400", "410")

	for _, sym := range []string{"AAPL", "MSFT"} {
		rec := app.request("POST", "/api/v1/watchlist", fmt.Sprintf(`{"symbol":%q}`, sym), token)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201 watching %s, got %d", sym, rec.Code)
		}
	}
	app.Provider.SetQuote("MSFT", marketdata.QuoteFailed(errors.New("timeout")))

	rec := app.request("POST", "/api/v1/pipeline/stocks/refresh", "", "")
	if rec.Code != http.StatusUnauthorized || errorCode(t, rec) != "INVALID_API_KEY" {
		t.Fatalf("expected 401 INVALID_API_KEY, got %d", rec.Code)
	}

	rec = app.pipeline("POST", "/api/v1/pipeline/stocks/refresh")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	result := parseJSON(t, rec)
	if result["total"] != float64(2) || result["updated"] != float64(1) {
		t.Errorf("expected 1 of 2 updated, got %v", result)
	}
	failed := result["failed"].([]interface{})
	if len(failed) != 1 || failed[0].(map[string]interface{})["symbol"] != "MSFT" {
		t.Errorf("expected MSFT reported as failed, got %v", failed)
	}

	rec = app.pipeline("POST", "/api/v1/pipeline/stocks/AAPL/backfill?period=5d")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for backfill, got %d: %s", rec.Code, rec.Body.String())
	}
	if bars := parseJSON(t, rec)["bars"]; bars != float64(2) {
		t.Errorf("expected 2 bars, got %v", bars)
	}

	rec = app.pipeline("DELETE", "/api/v1/pipeline/stocks/AAPL")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	rec = app.request("GET", "/api/v1/watchlist", "", token)
	if items := parseJSON(t, rec)["items"].([]interface{}); len(items) != 1 {
		t.Errorf("expected delete to cascade to the watchlist, got %d items", len(items))
	}
	var count int64
	app.DB.Model(&models.AuditLog{}).Where("action = ?", services.AuditActionDeleteStock).Count(&count)
	if count != 1 {
		t.Errorf("expected 1 delete audit entry, got %d", count)
	}
}

func TestPipelineDisabledWithoutKey(t *testing.T) {
	app := setupApp(t)
	app.Router = New(Services{}, Options{})

	rec := app.pipeline("POST", "/api/v1/pipeline/stocks/refresh")

	if rec.Code != http.StatusServiceUnavailable || errorCode(t, rec) != "PIPELINE_NOT_CONFIGURED" {
		t.Fatalf("expected 503 PIPELINE_NOT_CONFIGURED, got %d", rec.Code)
	}
}
