package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"superfan/pkg/logger"
	"superfan/pkg/models"
	"superfan/services/payment/internal/processor"
	"superfan/services/payment/internal/usecase"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockCheckoutUseCase is a mock implementation of CheckoutUseCase
type MockCheckoutUseCase struct {
	mock.Mock
}

func (m *MockCheckoutUseCase) CreateCheckout(_ context.Context, userID string, req usecase.CheckoutRequest) (*usecase.CheckoutResult, error) {
	args := m.Called(userID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.CheckoutResult), args.Error(1)
}

var _ usecase.CheckoutUseCase = (*MockCheckoutUseCase)(nil)

// MockCampaignUseCase is a mock implementation of CampaignUseCase
type MockCampaignUseCase struct {
	mock.Mock
}

func (m *MockCampaignUseCase) GetCampaign(_ context.Context, campaignID string) (*usecase.CampaignView, error) {
	args := m.Called(campaignID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.CampaignView), args.Error(1)
}

func (m *MockCampaignUseCase) Pledge(_ context.Context, userID string, req usecase.PledgeRequest) (*usecase.PledgeResult, error) {
	args := m.Called(userID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.PledgeResult), args.Error(1)
}

func (m *MockCampaignUseCase) ConfirmPresale(_ context.Context, conf usecase.PresaleConfirmation) (*models.Purchase, error) {
	args := m.Called(conf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Purchase), args.Error(1)
}

func (m *MockCampaignUseCase) CreditFunding(_ context.Context, purchaseID, campaignID string, cents, receivedCents, units int64) error {
	args := m.Called(purchaseID, campaignID, cents, receivedCents, units)
	return args.Error(0)
}

func (m *MockCampaignUseCase) RefundCampaign(_ context.Context, campaignID string) (*usecase.RefundSummary, error) {
	args := m.Called(campaignID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.RefundSummary), args.Error(1)
}

func (m *MockCampaignUseCase) ExpireCampaigns(_ context.Context) (int64, error) {
	args := m.Called()
	return args.Get(0).(int64), args.Error(1)
}

var _ usecase.CampaignUseCase = (*MockCampaignUseCase)(nil)

// MockWebhookUseCase is a mock implementation of WebhookUseCase
type MockWebhookUseCase struct {
	mock.Mock
}

func (m *MockWebhookUseCase) HandleEvent(_ context.Context, payload []byte, sigHeader string) (*usecase.WebhookOutcome, error) {
	args := m.Called(payload, sigHeader)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.WebhookOutcome), args.Error(1)
}

var _ usecase.WebhookUseCase = (*MockWebhookUseCase)(nil)

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func newTestHandler() (*PaymentHandler, *MockCheckoutUseCase, *MockCampaignUseCase, *MockWebhookUseCase) {
	checkout := new(MockCheckoutUseCase)
	campaigns := new(MockCampaignUseCase)
	webhooks := new(MockWebhookUseCase)
	handler := NewPaymentHandler(checkout, campaigns, webhooks, logger.New())
	return handler, checkout, campaigns, webhooks
}

func TestCreateCheckout_Success(t *testing.T) {
	handler, checkout, _, _ := newTestHandler()

	checkout.On("CreateCheckout", "user-1", usecase.CheckoutRequest{
		Type:   usecase.CheckoutCredits,
		ClubID: "club-1",
		Points: 500,
	}).Return(&usecase.CheckoutResult{
		PurchaseID:  "purchase-1",
		SessionID:   "cs_1",
		RedirectURL: "https://pay.example/cs_1",
		AmountCents: 500,
		Currency:    "usd",
	}, nil)

	router := setupTestRouter()
	router.POST("/checkout", func(c *gin.Context) {
		c.Set("user_id", "user-1")
		handler.CreateCheckout(c)
	})

	body, _ := json.Marshal(map[string]interface{}{
		"type":    "credits",
		"club_id": "club-1",
		"points":  500,
	})
	req := httptest.NewRequest("POST", "/checkout", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "cs_1", response["session_id"])
	assert.Equal(t, "https://pay.example/cs_1", response["redirect_url"])
	assert.Equal(t, float64(500), response["amount_cents"])
	checkout.AssertExpectations(t)
}

func TestCreateCheckout_MissingType(t *testing.T) {
	handler, _, _, _ := newTestHandler()

	router := setupTestRouter()
	router.POST("/checkout", func(c *gin.Context) {
		c.Set("user_id", "user-1")
		handler.CreateCheckout(c)
	})

	req := httptest.NewRequest("POST", "/checkout", bytes.NewBufferString(`{"points":500}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateCheckout_RewardNotFound(t *testing.T) {
	handler, checkout, _, _ := newTestHandler()

	checkout.On("CreateCheckout", "user-1", mock.Anything).Return(nil, usecase.ErrRewardNotFound)

	router := setupTestRouter()
	router.POST("/checkout", func(c *gin.Context) {
		c.Set("user_id", "user-1")
		handler.CreateCheckout(c)
	})

	req := httptest.NewRequest("POST", "/checkout", bytes.NewBufferString(`{"type":"reward","reward_id":"missing"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleWebhook_Success(t *testing.T) {
	handler, _, _, webhooks := newTestHandler()

	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	webhooks.On("HandleEvent", payload, "t=1,v1=abc").
		Return(&usecase.WebhookOutcome{Status: usecase.WebhookProcessed, EventID: "evt_1"}, nil)

	router := setupTestRouter()
	router.POST("/webhooks/processor", handler.HandleWebhook)

	req := httptest.NewRequest("POST", "/webhooks/processor", bytes.NewBuffer(payload))
	req.Header.Set(SignatureHeader, "t=1,v1=abc")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "processed", response["status"])
	webhooks.AssertExpectations(t)
}

func TestHandleWebhook_BadSignature(t *testing.T) {
	handler, _, _, webhooks := newTestHandler()

	webhooks.On("HandleEvent", mock.Anything, mock.Anything).Return(nil, processor.ErrInvalidSignature)

	router := setupTestRouter()
	router.POST("/webhooks/processor", handler.HandleWebhook)

	req := httptest.NewRequest("POST", "/webhooks/processor", bytes.NewBufferString(`{}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleWebhook_TransientFailure(t *testing.T) {
	handler, _, _, webhooks := newTestHandler()

	webhooks.On("HandleEvent", mock.Anything, mock.Anything).Return(nil, assert.AnError)

	router := setupTestRouter()
	router.POST("/webhooks/processor", handler.HandleWebhook)

	req := httptest.NewRequest("POST", "/webhooks/processor", bytes.NewBufferString(`{}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	// 5xx keeps the processor redelivering.
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGetCampaign_NotFound(t *testing.T) {
	handler, _, campaigns, _ := newTestHandler()

	campaigns.On("GetCampaign", "missing").Return(nil, usecase.ErrCampaignNotFound)

	router := setupTestRouter()
	router.GET("/campaigns/:id", handler.GetCampaign)

	req := httptest.NewRequest("GET", "/campaigns/missing", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPledge_Success(t *testing.T) {
	handler, _, campaigns, _ := newTestHandler()

	campaigns.On("Pledge", "user-1", usecase.PledgeRequest{
		CampaignID:  "camp-1",
		Points:      300,
		ReferenceID: "ref-1",
	}).Return(&usecase.PledgeResult{
		Purchase:      &models.Purchase{ID: "purchase-1"},
		CreditedCents: 300,
	}, nil)

	router := setupTestRouter()
	router.POST("/campaigns/:id/pledge", func(c *gin.Context) {
		c.Set("user_id", "user-1")
		handler.Pledge(c)
	})

	body, _ := json.Marshal(map[string]interface{}{"points": 300, "reference_id": "ref-1"})
	req := httptest.NewRequest("POST", "/campaigns/camp-1/pledge", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, float64(300), response["credited_cents"])
	campaigns.AssertExpectations(t)
}

func TestPledge_CampaignNotActive(t *testing.T) {
	handler, _, campaigns, _ := newTestHandler()

	campaigns.On("Pledge", "user-1", mock.Anything).Return(nil, usecase.ErrCampaignNotActive)

	router := setupTestRouter()
	router.POST("/campaigns/:id/pledge", func(c *gin.Context) {
		c.Set("user_id", "user-1")
		handler.Pledge(c)
	})

	req := httptest.NewRequest("POST", "/campaigns/camp-1/pledge", bytes.NewBufferString(`{"points":300}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response map[string]string
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "campaign_not_active", response["reason"])
}

func TestConfirmPresale_Success(t *testing.T) {
	handler, _, campaigns, _ := newTestHandler()

	campaigns.On("ConfirmPresale", usecase.PresaleConfirmation{
		CampaignID:  "camp-1",
		UserID:      "user-1",
		TxHash:      "0xabc",
		AmountCents: 5000,
		Units:       2,
	}).Return(&models.Purchase{ID: "purchase-1", Method: models.MethodPresalePurchase}, nil)

	router := setupTestRouter()
	router.POST("/presale/confirm", func(c *gin.Context) {
		c.Set("user_id", "user-1")
		handler.ConfirmPresale(c)
	})

	body, _ := json.Marshal(map[string]interface{}{
		"campaign_id":  "camp-1",
		"tx_hash":      "0xabc",
		"amount_cents": 5000,
		"units":        2,
	})
	req := httptest.NewRequest("POST", "/presale/confirm", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	campaigns.AssertExpectations(t)
}

func TestRefundCampaign_Success(t *testing.T) {
	handler, _, campaigns, _ := newTestHandler()

	campaigns.On("RefundCampaign", "camp-1").Return(&usecase.RefundSummary{
		CampaignID:    "camp-1",
		RefundedCount: 3,
		Errors:        []string{"purchase p2: processor unavailable"},
	}, nil)

	router := setupTestRouter()
	router.POST("/campaigns/:id/refund", handler.RefundCampaign)

	req := httptest.NewRequest("POST", "/campaigns/camp-1/refund", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, float64(3), response["refunded_count"])
}

func TestExpireCampaigns_Success(t *testing.T) {
	handler, _, campaigns, _ := newTestHandler()

	campaigns.On("ExpireCampaigns").Return(int64(2), nil)

	router := setupTestRouter()
	router.POST("/campaigns/expire", handler.ExpireCampaigns)

	req := httptest.NewRequest("POST", "/campaigns/expire", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, float64(2), response["expired_count"])
}
