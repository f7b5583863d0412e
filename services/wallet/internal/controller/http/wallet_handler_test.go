package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"superfan/pkg/ledger"
	"superfan/pkg/logger"
	"superfan/pkg/models"
	"superfan/pkg/status"
	"superfan/services/wallet/internal/usecase"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockWalletUseCase is a mock implementation of WalletUseCase
type MockWalletUseCase struct {
	mock.Mock
}

func (m *MockWalletUseCase) GetWallet(_ context.Context, userID, clubID string) (*usecase.WalletView, error) {
	args := m.Called(userID, clubID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.WalletView), args.Error(1)
}

func (m *MockWalletUseCase) Spend(_ context.Context, userID, clubID string, points int64, preserveStatus bool, ref string) (*ledger.SpendResult, error) {
	args := m.Called(userID, clubID, points, preserveStatus, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.SpendResult), args.Error(1)
}

func (m *MockWalletUseCase) GetTransactions(_ context.Context, userID, clubID string, limit, offset int) ([]models.PointTransaction, error) {
	args := m.Called(userID, clubID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.PointTransaction), args.Error(1)
}

func (m *MockWalletUseCase) GetStatus(_ context.Context, userID, clubID string) (*usecase.StatusView, error) {
	args := m.Called(userID, clubID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.StatusView), args.Error(1)
}

func (m *MockWalletUseCase) Escrow(_ context.Context, userID, clubID string, points int64, ref string) (*models.Wallet, error) {
	args := m.Called(userID, clubID, points, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Wallet), args.Error(1)
}

func (m *MockWalletUseCase) ReleaseEscrow(_ context.Context, userID, clubID string, points int64, ref string) (*models.Wallet, error) {
	args := m.Called(userID, clubID, points, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Wallet), args.Error(1)
}

var _ usecase.WalletUseCase = (*MockWalletUseCase)(nil)

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func TestGetWallet_Success(t *testing.T) {
	mockUseCase := new(MockWalletUseCase)
	logger := logger.New()
	handler := NewWalletHandler(mockUseCase, logger)

	router := setupTestRouter()
	router.GET("/wallet", func(c *gin.Context) {
		c.Set("user_id", "user-123")
		handler.GetWallet(c)
	})

	view := &usecase.WalletView{
		WalletID:        "wallet-123",
		ClubID:          "club-123",
		Balance:         130,
		EarnedPoints:    100,
		PurchasedPoints: 30,
		StatusPoints:    100,
		Tier: usecase.TierInfo{
			Current:      status.TierCadet,
			Effective:    status.TierCadet,
			Next:         status.TierResident,
			Progress:     20,
			PointsToNext: 400,
		},
	}
	mockUseCase.On("GetWallet", "user-123", "club-123").Return(view, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/wallet?club_id=club-123", nil)

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, float64(130), response["balance"])
	assert.Equal(t, float64(100), response["status_points"])

	mockUseCase.AssertExpectations(t)
}

func TestGetWallet_MissingClubID(t *testing.T) {
	mockUseCase := new(MockWalletUseCase)
	logger := logger.New()
	handler := NewWalletHandler(mockUseCase, logger)

	router := setupTestRouter()
	router.GET("/wallet", handler.GetWallet)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/wallet", nil)

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockUseCase.AssertExpectations(t)
}

func TestGetWallet_NotAMember(t *testing.T) {
	mockUseCase := new(MockWalletUseCase)
	logger := logger.New()
	handler := NewWalletHandler(mockUseCase, logger)

	router := setupTestRouter()
	router.GET("/wallet", func(c *gin.Context) {
		c.Set("user_id", "user-123")
		handler.GetWallet(c)
	})

	mockUseCase.On("GetWallet", "user-123", "club-999").Return(nil, usecase.ErrNotAMember)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/wallet?club_id=club-999", nil)

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	mockUseCase.AssertExpectations(t)
}

func TestSpend_Success(t *testing.T) {
	mockUseCase := new(MockWalletUseCase)
	logger := logger.New()
	handler := NewWalletHandler(mockUseCase, logger)

	router := setupTestRouter()
	router.POST("/wallet/spend", func(c *gin.Context) {
		c.Set("user_id", "user-123")
		handler.Spend(c)
	})

	result := &ledger.SpendResult{
		SpentPurchased:   30,
		SpentEarned:      20,
		RemainingBalance: 80,
		StatusPreserved:  false,
	}
	mockUseCase.On("Spend", "user-123", "club-123", int64(50), false, "order-1").Return(result, nil)

	spendJSON := `{"club_id":"club-123","points":50,"reference_id":"order-1"}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/wallet/spend", bytes.NewBufferString(spendJSON))
	req.Header.Set("Content-Type", "application/json")

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, float64(50), response["points_spent"])
	assert.Equal(t, float64(80), response["remaining_balance"])
	breakdown := response["spent_breakdown"].(map[string]interface{})
	assert.Equal(t, float64(30), breakdown["purchased"])
	assert.Equal(t, float64(20), breakdown["earned"])

	mockUseCase.AssertExpectations(t)
}

func TestSpend_StatusProtection(t *testing.T) {
	mockUseCase := new(MockWalletUseCase)
	logger := logger.New()
	handler := NewWalletHandler(mockUseCase, logger)

	router := setupTestRouter()
	router.POST("/wallet/spend", func(c *gin.Context) {
		c.Set("user_id", "user-123")
		handler.Spend(c)
	})

	mockUseCase.On("Spend", "user-123", "club-123", int64(100), true, "").
		Return(nil, ledger.ErrInsufficientPointsStatusProtection)

	spendJSON := `{"club_id":"club-123","points":100,"preserve_status":true}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/wallet/spend", bytes.NewBufferString(spendJSON))
	req.Header.Set("Content-Type", "application/json")

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, "status_protection", response["reason"])

	mockUseCase.AssertExpectations(t)
}

func TestSpend_InsufficientPoints(t *testing.T) {
	mockUseCase := new(MockWalletUseCase)
	logger := logger.New()
	handler := NewWalletHandler(mockUseCase, logger)

	router := setupTestRouter()
	router.POST("/wallet/spend", func(c *gin.Context) {
		c.Set("user_id", "user-123")
		handler.Spend(c)
	})

	mockUseCase.On("Spend", "user-123", "club-123", int64(500), false, "").
		Return(nil, ledger.ErrInsufficientPoints)

	spendJSON := `{"club_id":"club-123","points":500}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/wallet/spend", bytes.NewBufferString(spendJSON))
	req.Header.Set("Content-Type", "application/json")

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, "insufficient_points", response["reason"])

	mockUseCase.AssertExpectations(t)
}

func TestSpend_WalletNotFound(t *testing.T) {
	mockUseCase := new(MockWalletUseCase)
	logger := logger.New()
	handler := NewWalletHandler(mockUseCase, logger)

	router := setupTestRouter()
	router.POST("/wallet/spend", func(c *gin.Context) {
		c.Set("user_id", "user-123")
		handler.Spend(c)
	})

	mockUseCase.On("Spend", "user-123", "club-999", int64(10), false, "").
		Return(nil, ledger.ErrWalletNotFound)

	spendJSON := `{"club_id":"club-999","points":10}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/wallet/spend", bytes.NewBufferString(spendJSON))
	req.Header.Set("Content-Type", "application/json")

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	mockUseCase.AssertExpectations(t)
}

func TestSpend_InvalidBody(t *testing.T) {
	mockUseCase := new(MockWalletUseCase)
	logger := logger.New()
	handler := NewWalletHandler(mockUseCase, logger)

	router := setupTestRouter()
	router.POST("/wallet/spend", handler.Spend)

	spendJSON := `{"club_id":"club-123","points":-5}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/wallet/spend", bytes.NewBufferString(spendJSON))
	req.Header.Set("Content-Type", "application/json")

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockUseCase.AssertExpectations(t)
}

func TestGetTransactions_Success(t *testing.T) {
	mockUseCase := new(MockWalletUseCase)
	logger := logger.New()
	handler := NewWalletHandler(mockUseCase, logger)

	router := setupTestRouter()
	router.GET("/wallet/transactions", func(c *gin.Context) {
		c.Set("user_id", "user-123")
		handler.GetTransactions(c)
	})

	transactions := []models.PointTransaction{
		{ID: "tx-1", Type: models.TransactionTypeCredit, Points: 100, Source: models.SourceEarned},
		{ID: "tx-2", Type: models.TransactionTypeDebit, Points: 50, Source: models.SourceSpent},
	}
	mockUseCase.On("GetTransactions", "user-123", "club-123", 10, 0).Return(transactions, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/wallet/transactions?club_id=club-123&limit=10", nil)

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, float64(2), response["count"])

	mockUseCase.AssertExpectations(t)
}

func TestGetStatus_Success(t *testing.T) {
	mockUseCase := new(MockWalletUseCase)
	logger := logger.New()
	handler := NewWalletHandler(mockUseCase, logger)

	router := setupTestRouter()
	router.GET("/wallet/status", func(c *gin.Context) {
		c.Set("user_id", "user-123")
		handler.GetStatus(c)
	})

	view := &usecase.StatusView{
		StatusPoints: 600,
		Tier: usecase.TierInfo{
			Current:      status.TierResident,
			Effective:    status.TierResident,
			Next:         status.TierHeadliner,
			Progress:     10,
			PointsToNext: 900,
		},
		Thresholds: map[string]int64{
			"cadet":     0,
			"resident":  500,
			"headliner": 1500,
			"superfan":  4000,
		},
	}
	mockUseCase.On("GetStatus", "user-123", "club-123").Return(view, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/wallet/status?club_id=club-123", nil)

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, float64(600), response["status_points"])

	mockUseCase.AssertExpectations(t)
}

func TestEscrow_Success(t *testing.T) {
	mockUseCase := new(MockWalletUseCase)
	logger := logger.New()
	handler := NewWalletHandler(mockUseCase, logger)

	router := setupTestRouter()
	router.POST("/wallet/escrow", handler.Escrow)

	wallet := &models.Wallet{
		ID:             "wallet-123",
		EarnedPoints:   200,
		EscrowedPoints: 50,
	}
	mockUseCase.On("Escrow", "user-456", "club-123", int64(50), "preorder-1").Return(wallet, nil)

	escrowJSON := `{"user_id":"user-456","club_id":"club-123","points":50,"reference_id":"preorder-1"}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/wallet/escrow", bytes.NewBufferString(escrowJSON))
	req.Header.Set("Content-Type", "application/json")

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, float64(50), response["escrowed_points"])

	mockUseCase.AssertExpectations(t)
}

func TestEscrow_ExceedsEarned(t *testing.T) {
	mockUseCase := new(MockWalletUseCase)
	logger := logger.New()
	handler := NewWalletHandler(mockUseCase, logger)

	router := setupTestRouter()
	router.POST("/wallet/escrow", handler.Escrow)

	mockUseCase.On("Escrow", "user-456", "club-123", int64(500), "").
		Return(nil, ledger.ErrEscrowExceedsEarned)

	escrowJSON := `{"user_id":"user-456","club_id":"club-123","points":500}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/wallet/escrow", bytes.NewBufferString(escrowJSON))
	req.Header.Set("Content-Type", "application/json")

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, "escrow_exceeds_earned", response["reason"])

	mockUseCase.AssertExpectations(t)
}

func TestReleaseEscrow_ExceedsEscrowed(t *testing.T) {
	mockUseCase := new(MockWalletUseCase)
	logger := logger.New()
	handler := NewWalletHandler(mockUseCase, logger)

	router := setupTestRouter()
	router.POST("/wallet/escrow/release", handler.ReleaseEscrow)

	mockUseCase.On("ReleaseEscrow", "user-456", "club-123", int64(80), "").
		Return(nil, ledger.ErrReleaseExceedsEscrow)

	releaseJSON := `{"user_id":"user-456","club_id":"club-123","points":80}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/wallet/escrow/release", bytes.NewBufferString(releaseJSON))
	req.Header.Set("Content-Type", "application/json")

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, "release_exceeds_escrow", response["reason"])

	mockUseCase.AssertExpectations(t)
}

func TestNewWalletHandler(t *testing.T) {
	mockUseCase := new(MockWalletUseCase)
	logger := logger.New()
	handler := NewWalletHandler(mockUseCase, logger)

	assert.NotNil(t, handler)
}
