package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/kasuwa/escrow-api/internal/auth"
	"github.com/kasuwa/escrow-api/internal/codes"
	"github.com/kasuwa/escrow-api/internal/database"
	"github.com/kasuwa/escrow-api/internal/escrow"
	"github.com/kasuwa/escrow-api/internal/notify"
	"github.com/kasuwa/escrow-api/internal/payments"
	"github.com/kasuwa/escrow-api/internal/trade"
	"github.com/kasuwa/escrow-api/pkg/config"
	"github.com/kasuwa/escrow-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// configureLogging sets the logger up from the loaded configuration.
// Outside production it enables pretty printing with timestamps.
func configureLogging(cfg *config.Config) {
	if cfg.Env != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the escrow API server with graceful shutdown
// support. It sets up the database, domain services, the background expiry
// sweeper, and the API routes.
func main() {
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	configureLogging(cfg)

	// Initialize database
	db, err := database.NewDatabase(cfg.DatabasePath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	authService := auth.NewService(cfg.JWTSecret)
	authHandlers := auth.NewGinHandlers(authService)

	// Real deployments provision credentials out of band; the demo pair keeps
	// the token endpoint usable in development
	if cfg.Env != "production" {
		authService.RegisterAPICredentials(auth.DemoAPIKey, auth.DemoAPISecret, auth.DemoUserID)
	}

	notifier := notify.NewRelay(db)
	mailer := notify.NewLogMailer()
	generator := codes.NewCryptoGenerator()
	providers := payments.NewRegistry(payments.NewMockProvider())

	escrowService := escrow.NewService(db, notifier, mailer, generator, providers, cfg.EscrowWindow)
	escrowHandlers := escrow.NewGinHandlers(escrowService)

	tradeService := trade.NewService(db, notifier, generator)
	tradeHandlers := trade.NewGinHandlers(tradeService)

	// Create and start the expiry sweeper
	sweeper := escrow.NewSweeper(escrowService.GetDB(), notifier, cfg.SweepInterval)
	sweeperCtx, sweeperCancel := context.WithCancel(context.Background())
	defer sweeperCancel()

	go sweeper.Start(sweeperCtx)

	// Setup API routes
	setupRoutes(router, cfg.JWTSecret, authHandlers, escrowHandlers, tradeHandlers)

	// Create server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: Public endpoints for authentication
// - Escrow and trade routes: Protected by JWT authentication
// - Internal routes: Payment confirmations, protected by internal auth
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	escrowHandlers *escrow.GinHandlers,
	tradeHandlers *trade.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes, rate limited per client IP
		authGroup := v1.Group("/auth")
		authGroup.Use(middleware.RateLimit())
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Escrow routes. The limiter runs after JWT auth so the key is the
		// authenticated user, not the IP.
		escrowGroup := v1.Group("/escrow")
		escrowGroup.Use(middleware.JWTAuth(jwtSecret), middleware.RateLimit())
		{
			escrowGroup.POST("/purchases", escrowHandlers.InitiateHandler())
			escrowGroup.GET("/orders/:order_id", escrowHandlers.GetByOrderIDHandler())
			escrowGroup.POST("/orders/:order_id/confirm", escrowHandlers.ConfirmReceiptHandler())
			escrowGroup.GET("/fees/preview", escrowHandlers.PreviewFeesHandler())
		}

		// Trade routes
		tradeGroup := v1.Group("/trades")
		tradeGroup.Use(middleware.JWTAuth(jwtSecret), middleware.RateLimit())
		{
			tradeGroup.GET("/:offer_id", tradeHandlers.GetOfferHandler())
			tradeGroup.POST("/:offer_id/lock", tradeHandlers.LockDealHandler())
			tradeGroup.POST("/:offer_id/pickup", tradeHandlers.VerifyPickupHandler())
			tradeGroup.POST("/:offer_id/dispute", tradeHandlers.RaiseDisputeHandler())
		}

		// Internal routes (should additionally be protected by internal network)
		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(jwtSecret))
		{
			internal.POST("/escrow/:escrow_id/payment", escrowHandlers.PaymentSuccessHandler())
		}
	}
}
