package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/pixwave-ai/pixwave-server/internal/billing"
	"github.com/pixwave-ai/pixwave-server/internal/http/api/front"
	"github.com/pixwave-ai/pixwave-server/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := conn.AutoMigrate(
		&models.User{},
		&models.BillingRule{},
		&models.BillingPrice{},
		&models.UsageRecord{},
		&models.CreditTransaction{},
	); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	router := gin.New()
	front.RegisterRoutes(router, billing.NewService(conn, nil, nil), conn)
	return router, conn
}

func seedTestUser(t *testing.T, conn *gorm.DB, credits int64) models.User {
	t.Helper()
	user := models.User{Email: "front-test@example.com", Name: "Front Test", Credits: credits, IsActive: true}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("seed user: %v", errCreate)
	}
	return user
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if errDecode := json.Unmarshal(recorder.Body.Bytes(), &body); errDecode != nil {
		t.Fatalf("decode response: %v", errDecode)
	}
	return body
}

func TestEstimateEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/billing/estimate", strings.NewReader(`{"duration":3.4}`))
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200: %s", recorder.Code, recorder.Body.String())
	}
	body := decodeBody(t, recorder)
	if credits, _ := body["credits"].(float64); credits != 34 {
		t.Fatalf("credits: got %v, want 34", body["credits"])
	}
	if original, _ := body["originalCredits"].(float64); original != 34 {
		t.Fatalf("originalCredits: got %v, want 34", body["originalCredits"])
	}
	if isFree, _ := body["isFreeUsage"].(bool); isFree {
		t.Fatal("unidentified caller read as free")
	}
}

func TestEstimateEndpointUsesRule(t *testing.T) {
	router, conn := newTestRouter(t)

	rule := models.BillingRule{
		Name:        "flux pricing",
		AIModelID:   "flux-pro",
		BillingType: models.BillingTypePerImage,
		BaseCredits: 20,
		IsActive:    true,
		Prices: []models.BillingPrice{
			{Dimension: models.DimensionResolution, Value: "1024x1024", CreditsPerUnit: 15, IsActive: true},
		},
	}
	if errCreate := conn.Create(&rule).Error; errCreate != nil {
		t.Fatalf("seed rule: %v", errCreate)
	}

	payload := `{"aiModelId":"flux-pro","quantity":2,"resolution":"1024x1024"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/billing/estimate", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200: %s", recorder.Code, recorder.Body.String())
	}
	body := decodeBody(t, recorder)
	if credits, _ := body["credits"].(float64); credits != 30 {
		t.Fatalf("credits: got %v, want 30", body["credits"])
	}
}

func TestEstimateEndpointRejectsBadJSON(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/billing/estimate", strings.NewReader("{broken"))
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", recorder.Code)
	}
}

func TestBalanceEndpoint(t *testing.T) {
	router, conn := newTestRouter(t)
	user := seedTestUser(t, conn, 75)

	req := httptest.NewRequest(http.MethodGet, "/v1/credits", nil)
	req.Header.Set("X-User-ID", user.ID)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200: %s", recorder.Code, recorder.Body.String())
	}
	body := decodeBody(t, recorder)
	if credits, _ := body["credits"].(float64); credits != 75 {
		t.Fatalf("credits: got %v, want 75", body["credits"])
	}
}

func TestBalanceEndpointRequiresUser(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/credits", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("missing user: got %d, want 400", recorder.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/credits?user_id=missing", nil)
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("unknown user: got %d, want 404", recorder.Code)
	}
}

func TestTransactionsEndpointFiltersByType(t *testing.T) {
	router, conn := newTestRouter(t)
	user := seedTestUser(t, conn, 100)

	entries := []models.CreditTransaction{
		{UserID: user.ID, Type: models.TransactionConsume, Amount: -30, Balance: 70, Description: "Image generation"},
		{UserID: user.ID, Type: models.TransactionRefund, Amount: 30, Balance: 100, Description: "task failed: refunded 30 credits"},
		{UserID: user.ID, Type: models.TransactionGift, Amount: 50, Balance: 150, Description: "welcome gift"},
	}
	if errCreate := conn.Create(&entries).Error; errCreate != nil {
		t.Fatalf("seed transactions: %v", errCreate)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/credits/transactions?type=REFUND", nil)
	req.Header.Set("X-User-ID", user.ID)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200: %s", recorder.Code, recorder.Body.String())
	}
	body := decodeBody(t, recorder)
	if total, _ := body["total"].(float64); total != 1 {
		t.Fatalf("total: got %v, want 1", body["total"])
	}
	items, _ := body["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("items: got %d, want 1", len(items))
	}
}

func TestUsageRecordsEndpointPaginates(t *testing.T) {
	router, conn := newTestRouter(t)
	user := seedTestUser(t, conn, 100)

	for i := 0; i < 3; i++ {
		record := models.UsageRecord{UserID: user.ID, NodeType: "aiImage", CreditsCharged: 20}
		if errCreate := conn.Create(&record).Error; errCreate != nil {
			t.Fatalf("seed usage record: %v", errCreate)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/usage-records?page=1&page_size=2", nil)
	req.Header.Set("X-User-ID", user.ID)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200: %s", recorder.Code, recorder.Body.String())
	}
	body := decodeBody(t, recorder)
	if total, _ := body["total"].(float64); total != 3 {
		t.Fatalf("total: got %v, want 3", body["total"])
	}
	items, _ := body["items"].([]any)
	if len(items) != 2 {
		t.Fatalf("items: got %d, want 2", len(items))
	}
}
