package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"superfan/pkg/jwt"
	"superfan/pkg/logger"
	"superfan/services/notify/internal/usecase"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type NotificationHandler struct {
	notificationUseCase usecase.NotificationUseCase
	redisClient         *redis.Client
	logger              *logger.Logger
	jwtService          *jwt.Service
}

func NewNotificationHandler(notificationUseCase usecase.NotificationUseCase, redisClient *redis.Client, logger *logger.Logger, jwtService *jwt.Service) *NotificationHandler {
	return &NotificationHandler{
		notificationUseCase: notificationUseCase,
		redisClient:         redisClient,
		logger:              logger,
		jwtService:          jwtService,
	}
}

type SendNotificationRequest struct {
	UserID  string                 `json:"user_id" binding:"required"`
	Title   string                 `json:"title" binding:"required"`
	Message string                 `json:"message" binding:"required"`
	Type    string                 `json:"type"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

type BroadcastNotificationRequest struct {
	UserIDs []string               `json:"user_ids" binding:"required"`
	Title   string                 `json:"title" binding:"required"`
	Message string                 `json:"message" binding:"required"`
	Type    string                 `json:"type"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

func (h *NotificationHandler) SendNotification(c *gin.Context) {
	var req SendNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	notification, err := h.notificationUseCase.SendNotification(req.UserID, req.Title, req.Message, req.Type, req.Data)
	if err != nil {
		h.logger.Error("Failed to send notification: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send notification"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "Notification sent successfully",
		"notification": notification,
	})
}

func (h *NotificationHandler) BroadcastNotification(c *gin.Context) {
	var req BroadcastNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sentCount, err := h.notificationUseCase.BroadcastNotification(req.UserIDs, req.Title, req.Message, req.Type, req.Data)
	if err != nil {
		h.logger.Error("Failed to broadcast notification: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to broadcast notification"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Notifications sent successfully",
		"sent_count": sentCount,
	})
}

// GetNotifications godoc
// @Summary      Get member notifications
// @Description  Get the authenticated member's notification inbox, newest first
// @Tags         notifications
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        limit query int false "Number of notifications to return (max 100)"
// @Param        offset query int false "Offset for pagination"
// @Success      200  {object}  map[string]interface{}
// @Failure      500  {object}  map[string]string
// @Router       /notifications [get]
func (h *NotificationHandler) GetNotifications(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}

	offset := 0
	if offsetStr := c.Query("offset"); offsetStr != "" {
		if parsedOffset, err := strconv.Atoi(offsetStr); err == nil && parsedOffset >= 0 {
			offset = parsedOffset
		}
	}

	notifications, totalCount, err := h.notificationUseCase.GetNotifications(userID, limit, offset)
	if err != nil {
		h.logger.Error("Failed to get notifications: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get notifications"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"notifications": notifications,
		"count":         len(notifications),
		"total":         totalCount,
		"offset":        offset,
	})
}

// DismissCampaignNotifications godoc
// @Summary      Dismiss campaign notifications
// @Description  Remove inbox entries about a campaign once the member has seen it
// @Tags         notifications
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        campaign_id path string true "Campaign ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      500  {object}  map[string]string
// @Router       /notifications/campaigns/{campaign_id} [delete]
func (h *NotificationHandler) DismissCampaignNotifications(c *gin.Context) {
	userID := c.GetString("user_id")
	campaignID := c.Param("campaign_id")

	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	if campaignID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Campaign ID required"})
		return
	}

	dismissedCount, err := h.notificationUseCase.DismissCampaignNotifications(userID, campaignID)
	if err != nil {
		h.logger.Error("Failed to dismiss notifications: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to dismiss notifications"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "Notifications dismissed",
		"dismissed": dismissedCount,
	})
}

// GetMuteSetting godoc
// @Summary      Get club mute setting
// @Description  Check whether club broadcasts are muted for the authenticated member
// @Tags         notifications
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        club_id path string true "Club ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      500  {object}  map[string]string
// @Router       /notifications/mute/{club_id} [get]
func (h *NotificationHandler) GetMuteSetting(c *gin.Context) {
	userID := c.GetString("user_id")
	clubID := c.Param("club_id")

	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	muted, err := h.notificationUseCase.IsClubMuted(userID, clubID)
	if err != nil {
		h.logger.Error("Failed to get mute setting: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get mute setting"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"muted": muted})
}

// MuteClub godoc
// @Summary      Mute club broadcasts
// @Description  Stop funded-campaign broadcasts from a club for the authenticated member
// @Tags         notifications
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        club_id path string true "Club ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      500  {object}  map[string]string
// @Router       /notifications/mute/{club_id} [post]
func (h *NotificationHandler) MuteClub(c *gin.Context) {
	userID := c.GetString("user_id")
	clubID := c.Param("club_id")

	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	if err := h.notificationUseCase.MuteClub(userID, clubID); err != nil {
		h.logger.Error("Failed to mute club: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Club broadcasts muted", "muted": true})
}

// UnmuteClub godoc
// @Summary      Unmute club broadcasts
// @Description  Resume funded-campaign broadcasts from a club for the authenticated member
// @Tags         notifications
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        club_id path string true "Club ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      500  {object}  map[string]string
// @Router       /notifications/mute/{club_id} [delete]
func (h *NotificationHandler) UnmuteClub(c *gin.Context) {
	userID := c.GetString("user_id")
	clubID := c.Param("club_id")

	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	if err := h.notificationUseCase.UnmuteClub(userID, clubID); err != nil {
		h.logger.Error("Failed to unmute club: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to unmute club"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Club broadcasts unmuted", "muted": false})
}

func (h *NotificationHandler) ProcessNotificationQueue(c *gin.Context) {
	queueLength, err := h.notificationUseCase.ProcessNotificationQueue()
	if err != nil {
		h.logger.Error("Failed to get queue length: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get queue length"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "Queue consumption runs in the service itself. This endpoint reports backlog only.",
		"queue_length": queueLength,
	})
}

// HandleWebSocket streams the member's notifications live over a redis
// subscription. Auth comes from the query token because browsers cannot set
// headers on websocket upgrades.
func (h *NotificationHandler) HandleWebSocket(c *gin.Context) {
	userID := c.GetString("user_id")

	if userID == "" {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Token required"})
			return
		}

		claims, err := h.jwtService.ValidateToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		userID = claims.UserID
	}

	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection to WebSocket: %v", err)
		return
	}
	defer conn.Close()

	h.logger.Info("WebSocket connected for user %s", userID)

	ctx := context.Background()
	pubsub := h.redisClient.Subscribe(ctx, fmt.Sprintf("notifications:%s", userID))
	defer pubsub.Close()

	redisChannel := pubsub.Channel()
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return
			case msg := <-redisChannel:
				if msg == nil {
					continue
				}
				if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
					h.logger.Error("Failed to write WebSocket message: %v", err)
					return
				}
			}
		}
	}()

	for {
		messageType, _, err := conn.ReadMessage()
		if err != nil {
			h.logger.Warn("WebSocket read error: %v", err)
			break
		}
		if messageType == websocket.CloseMessage {
			break
		}
		if messageType == websocket.PingMessage {
			conn.WriteMessage(websocket.PongMessage, nil)
		}
	}

	close(done)
	h.logger.Info("WebSocket disconnected for user %s", userID)
}
