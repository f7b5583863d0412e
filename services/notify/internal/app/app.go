package internal

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"superfan/pkg/config"
	"superfan/pkg/jwt"
	"superfan/pkg/logger"
	"superfan/pkg/middleware"
	"superfan/pkg/queue"
	notifyHTTP "superfan/services/notify/internal/controller/http"
	"superfan/services/notify/internal/repo/persistent"
	"superfan/services/notify/internal/usecase"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"

	_ "superfan/services/notify/docs" // Swagger docs
)

func Run(cfg *config.Config, log *logger.Logger, db *gorm.DB, redisClient *redis.Client, queueClient *queue.Client) {
	jwtService := jwt.NewService(cfg.JWTSecret)

	// Initialize Repository
	notificationRepo := persistent.NewNotificationRepository(db)

	// Initialize UseCase
	notificationUseCase := usecase.NewNotificationUseCase(notificationRepo, redisClient, queueClient, log)

	// Initialize HTTP handlers
	notificationHandler := notifyHTTP.NewNotificationHandler(notificationUseCase, redisClient, log, jwtService)

	// Setup router
	r := gin.Default()

	// CORS middleware
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "http://127.0.0.1:3000", "*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * 3600,
	}))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Swagger documentation
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api/v1")
	// Protected routes - require authentication
	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(jwtService))
	{
		protected.GET("/notifications", notificationHandler.GetNotifications)
		protected.DELETE("/notifications/campaigns/:campaign_id", notificationHandler.DismissCampaignNotifications)
		protected.GET("/notifications/mute/:club_id", notificationHandler.GetMuteSetting)
		protected.POST("/notifications/mute/:club_id", notificationHandler.MuteClub)
		protected.DELETE("/notifications/mute/:club_id", notificationHandler.UnmuteClub)
	}
	// WebSocket endpoint - handles authentication internally via query parameter
	api.GET("/notifications/ws", notificationHandler.HandleWebSocket)
	// Internal routes - no auth required (for service-to-service calls)
	{
		api.POST("/notifications/send", notificationHandler.SendNotification)
		api.POST("/notifications/broadcast", notificationHandler.BroadcastNotification)
		api.POST("/notifications/process-queue", notificationHandler.ProcessNotificationQueue)
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// Start consuming member event tasks in a goroutine
	go func() {
		log.Info("Starting member event consumer...")

		err := queueClient.ConsumeMemberEventTasks(func(task map[string]interface{}) error {
			taskType, _ := task["type"].(string)

			log.Info("[NOTIFY HANDLER] Processing member event task: type=%s", taskType)

			switch taskType {
			case queue.TaskRewardRedeemed:
				return notificationUseCase.HandleRewardRedeemed(task)
			case queue.TaskRefundProcessed:
				return notificationUseCase.HandleRefundProcessed(task)
			case queue.TaskCampaignFunded:
				return notificationUseCase.HandleCampaignFunded(task)
			default:
				log.Error("[NOTIFY HANDLER] Unknown member event type: %s, task=%+v", taskType, task)
				return fmt.Errorf("unknown member event type: %s", taskType)
			}
		})
		if err != nil {
			log.Error("Error starting member event consumer: %v", err)
		}
	}()

	// Start server in a goroutine
	go func() {
		log.Info("Notify service starting on port %s", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Failed to start server: %v", err)
			panic(err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down notify service...")

	// The context is used to inform the server it has 5 seconds to finish
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Close database connection
	sqlDB, err := db.DB()
	if err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Error("Error closing database: %v", err)
		}
	}

	// Close Redis connection
	if err := redisClient.Close(); err != nil {
		log.Error("Error closing Redis: %v", err)
	}

	// Close RabbitMQ connection
	if queueClient != nil {
		queueClient.Close()
	}

	// Shutdown server
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown: %v", err)
		panic(err)
	}

	log.Info("Notify service exited")
}
