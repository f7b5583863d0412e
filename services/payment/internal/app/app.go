package internal

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"superfan/pkg/config"
	"superfan/pkg/jwt"
	"superfan/pkg/ledger"
	"superfan/pkg/logger"
	"superfan/pkg/middleware"
	"superfan/pkg/queue"
	paymentHTTP "superfan/services/payment/internal/controller/http"
	"superfan/services/payment/internal/processor"
	"superfan/services/payment/internal/repo/persistent"
	"superfan/services/payment/internal/usecase"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"

	_ "superfan/services/payment/docs" // Swagger docs
)

func Run(cfg *config.Config, log *logger.Logger, db *gorm.DB, redisClient *redis.Client, queueClient *queue.Client) {
	jwtService := jwt.NewService(cfg.JWTSecret)

	// Initialize ledger, processor client and repositories
	pointLedger := ledger.New(db, log)
	processorClient := processor.NewClient(cfg, log)
	purchaseRepo := persistent.NewPurchaseRepository(db)
	campaignRepo := persistent.NewCampaignRepository(db)
	rewardRepo := persistent.NewRewardRepository(db)
	membershipRepo := persistent.NewMembershipRepository(db)
	webhookEventRepo := persistent.NewWebhookEventRepository(db)

	// Initialize use cases
	campaignUseCase := usecase.NewCampaignUseCase(campaignRepo, purchaseRepo, membershipRepo, pointLedger, processorClient, redisClient, queueClient, cfg, log)
	checkoutUseCase := usecase.NewCheckoutUseCase(purchaseRepo, rewardRepo, campaignRepo, membershipRepo, processorClient, cfg, log)
	webhookUseCase := usecase.NewWebhookUseCase(webhookEventRepo, purchaseRepo, pointLedger, campaignUseCase, cfg, log)

	// Initialize HTTP handlers
	paymentHandler := paymentHTTP.NewPaymentHandler(checkoutUseCase, campaignUseCase, webhookUseCase, log)

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

	// Processor webhooks authenticate by signature, not by bearer token
	r.POST("/webhooks/processor", paymentHandler.HandleWebhook)

	api := r.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(jwtService))
	api.Use(middleware.RateLimitMiddleware(redisClient, 100, time.Minute))

	{
		api.POST("/checkout", paymentHandler.CreateCheckout)
		api.GET("/campaigns/:id", paymentHandler.GetCampaign)
		api.POST("/campaigns/:id/pledge", paymentHandler.Pledge)
		api.POST("/presale/confirm", paymentHandler.ConfirmPresale)
	}

	admin := api.Group("/")
	admin.Use(middleware.RequireRole("admin"))
	{
		admin.POST("/campaigns/:id/refund", paymentHandler.RefundCampaign)
		admin.POST("/campaigns/expire", paymentHandler.ExpireCampaigns)
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// Start server in a goroutine
	go func() {
		log.Info("Payment service starting on port %s", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Failed to start server: %v", err)
			panic(err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down payment service...")

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

	// Close queue connection
	if queueClient != nil {
		if err := queueClient.Close(); err != nil {
			log.Error("Error closing queue: %v", err)
		}
	}

	// Shutdown server
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown: %v", err)
		panic(err)
	}

	log.Info("Payment service exited")
}
