package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"superfan/pkg/logger"
	"superfan/services/notify/internal/entity"
	"superfan/services/notify/internal/usecase"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockNotificationUseCase is a mock implementation of NotificationUseCase
type MockNotificationUseCase struct {
	mock.Mock
}

func (m *MockNotificationUseCase) SendNotification(userID, title, message, notificationType string, data map[string]interface{}) (*entity.Notification, error) {
	args := m.Called(userID, title, message, notificationType, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Notification), args.Error(1)
}

func (m *MockNotificationUseCase) BroadcastNotification(userIDs []string, title, message, notificationType string, data map[string]interface{}) (int, error) {
	args := m.Called(userIDs, title, message, notificationType, data)
	return args.Int(0), args.Error(1)
}

func (m *MockNotificationUseCase) GetNotifications(userID string, limit, offset int) ([]entity.Notification, int64, error) {
	args := m.Called(userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]entity.Notification), args.Get(1).(int64), args.Error(2)
}

func (m *MockNotificationUseCase) DismissCampaignNotifications(userID, campaignID string) (int, error) {
	args := m.Called(userID, campaignID)
	return args.Int(0), args.Error(1)
}

func (m *MockNotificationUseCase) IsClubMuted(userID, clubID string) (bool, error) {
	args := m.Called(userID, clubID)
	return args.Bool(0), args.Error(1)
}

func (m *MockNotificationUseCase) MuteClub(userID, clubID string) error {
	args := m.Called(userID, clubID)
	return args.Error(0)
}

func (m *MockNotificationUseCase) UnmuteClub(userID, clubID string) error {
	args := m.Called(userID, clubID)
	return args.Error(0)
}

func (m *MockNotificationUseCase) ProcessNotificationQueue() (int64, error) {
	args := m.Called()
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockNotificationUseCase) HandleRewardRedeemed(task map[string]interface{}) error {
	args := m.Called(task)
	return args.Error(0)
}

func (m *MockNotificationUseCase) HandleRefundProcessed(task map[string]interface{}) error {
	args := m.Called(task)
	return args.Error(0)
}

func (m *MockNotificationUseCase) HandleCampaignFunded(task map[string]interface{}) error {
	args := m.Called(task)
	return args.Error(0)
}

var _ usecase.NotificationUseCase = (*MockNotificationUseCase)(nil)

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func newTestHandler() (*NotificationHandler, *MockNotificationUseCase) {
	mockUseCase := new(MockNotificationUseCase)
	handler := NewNotificationHandler(mockUseCase, nil, logger.New(), nil)
	return handler, mockUseCase
}

func TestGetNotifications_Success(t *testing.T) {
	handler, mockUseCase := newTestHandler()

	mockUseCase.On("GetNotifications", "user-1", 50, 0).Return([]entity.Notification{
		{UserID: "user-1", Title: "Reward Redeemed", Type: "reward.redeemed"},
		{UserID: "user-1", Title: "Campaign Funded!", Type: "campaign.funded"},
	}, int64(7), nil)

	router := setupTestRouter()
	router.GET("/notifications", func(c *gin.Context) {
		c.Set("user_id", "user-1")
		handler.GetNotifications(c)
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/notifications", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, float64(2), response["count"])
	assert.Equal(t, float64(7), response["total"])
	mockUseCase.AssertExpectations(t)
}

func TestGetNotifications_LimitClamped(t *testing.T) {
	handler, mockUseCase := newTestHandler()

	// Out-of-range limits fall back to the default page size.
	mockUseCase.On("GetNotifications", "user-1", 50, 0).Return([]entity.Notification{}, int64(0), nil)

	router := setupTestRouter()
	router.GET("/notifications", func(c *gin.Context) {
		c.Set("user_id", "user-1")
		handler.GetNotifications(c)
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/notifications?limit=500", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockUseCase.AssertExpectations(t)
}

func TestGetNotifications_Unauthorized(t *testing.T) {
	handler, _ := newTestHandler()

	router := setupTestRouter()
	router.GET("/notifications", handler.GetNotifications)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/notifications", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Contains(t, response["error"], "Unauthorized")
}

func TestDismissCampaignNotifications_Success(t *testing.T) {
	handler, mockUseCase := newTestHandler()

	mockUseCase.On("DismissCampaignNotifications", "user-1", "camp-1").Return(3, nil)

	router := setupTestRouter()
	router.DELETE("/notifications/campaigns/:campaign_id", func(c *gin.Context) {
		c.Set("user_id", "user-1")
		handler.DismissCampaignNotifications(c)
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("DELETE", "/notifications/campaigns/camp-1", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, float64(3), response["dismissed"])
	mockUseCase.AssertExpectations(t)
}

func TestGetMuteSetting_Success(t *testing.T) {
	handler, mockUseCase := newTestHandler()

	mockUseCase.On("IsClubMuted", "user-1", "club-1").Return(true, nil)

	router := setupTestRouter()
	router.GET("/notifications/mute/:club_id", func(c *gin.Context) {
		c.Set("user_id", "user-1")
		handler.GetMuteSetting(c)
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/notifications/mute/club-1", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, true, response["muted"])
}

func TestMuteClub_Success(t *testing.T) {
	handler, mockUseCase := newTestHandler()

	mockUseCase.On("MuteClub", "user-1", "club-1").Return(nil)

	router := setupTestRouter()
	router.POST("/notifications/mute/:club_id", func(c *gin.Context) {
		c.Set("user_id", "user-1")
		handler.MuteClub(c)
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/notifications/mute/club-1", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, true, response["muted"])
	mockUseCase.AssertExpectations(t)
}

func TestUnmuteClub_Unauthorized(t *testing.T) {
	handler, _ := newTestHandler()

	router := setupTestRouter()
	router.DELETE("/notifications/mute/:club_id", handler.UnmuteClub)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("DELETE", "/notifications/mute/club-1", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSendNotification_Success(t *testing.T) {
	handler, mockUseCase := newTestHandler()

	mockUseCase.On("SendNotification", "user-1", "Heads up", "Your order shipped", "system", mock.Anything).
		Return(&entity.Notification{UserID: "user-1", Title: "Heads up", Type: "system"}, nil)

	router := setupTestRouter()
	router.POST("/notifications/send", handler.SendNotification)

	body, _ := json.Marshal(map[string]interface{}{
		"user_id": "user-1",
		"title":   "Heads up",
		"message": "Your order shipped",
		"type":    "system",
	})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/notifications/send", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockUseCase.AssertExpectations(t)
}

func TestSendNotification_InvalidBody(t *testing.T) {
	handler, _ := newTestHandler()

	router := setupTestRouter()
	router.POST("/notifications/send", handler.SendNotification)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/notifications/send", bytes.NewBufferString(`{"title":"no user"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBroadcastNotification_Success(t *testing.T) {
	handler, mockUseCase := newTestHandler()

	mockUseCase.On("BroadcastNotification", []string{"user-1", "user-2"}, "Show announced", "Tour dates are live", "system", mock.Anything).
		Return(2, nil)

	router := setupTestRouter()
	router.POST("/notifications/broadcast", handler.BroadcastNotification)

	body, _ := json.Marshal(map[string]interface{}{
		"user_ids": []string{"user-1", "user-2"},
		"title":    "Show announced",
		"message":  "Tour dates are live",
		"type":     "system",
	})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/notifications/broadcast", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, float64(2), response["sent_count"])
	mockUseCase.AssertExpectations(t)
}
