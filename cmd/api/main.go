package main

import (
	"fmt"
	"net/http"
	"os"

	"splithaus/internal/config"
	"splithaus/internal/database"
	"splithaus/internal/handlers"
	"splithaus/internal/logger"
	"splithaus/internal/middleware"
	"splithaus/internal/services"
	"splithaus/internal/splitwise"
	"splithaus/internal/validator"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Initialize logger (use ENV var if available, default to development)
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Get()

	// Load configuration
	appConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize database configuration
	dbConfig, err := database.NewConfig()
	if err != nil {
		return fmt.Errorf("failed to load database configuration: %w", err)
	}

	// Create database manager
	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}

	// Run migrations
	if err := dbManager.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	// Register custom binding validators
	validator.Register()

	// Splitwise API client
	client := splitwise.NewClient(
		appConfig.SplitwiseBaseURL,
		appConfig.SplitwiseAPIBase,
		appConfig.SplitwiseClientID,
		appConfig.SplitwiseClientSecret,
	)
	if !appConfig.SplitwiseConfigured() {
		log.Warn("Splitwise OAuth credentials are not configured; connect and sync will be unavailable")
	}

	// Initialize services
	db := dbManager.DB()
	userService := services.NewUserService(db, client)
	tokenService := services.NewTokenService(db, client)
	householdService := services.NewHouseholdService(db, client, tokenService)
	syncService := services.NewSyncService(db, client, tokenService)
	billService := services.NewBillService(db, householdService, syncService)
	auditService := services.NewAuditService(db)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(userService)
	userHandler := handlers.NewUserHandler(userService)
	householdHandler := handlers.NewHouseholdHandler(householdService, syncService, auditService)
	billHandler := handlers.NewBillHandler(billService, auditService)
	splitwiseHandler := handlers.NewSplitwiseHandler(userService, tokenService, client)

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.ErrorHandler())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// Health check endpoint
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 group
	v1 := router.Group("/api/v1")

	// Public routes
	auth := v1.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	// OAuth redirect target: the provider sends the browser here, so it
	// cannot carry an Authorization header.
	auth.GET("/splitwise/callback", splitwiseHandler.Callback)

	// Protected routes
	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware())

	// User profile and search
	protected.GET("/profile", authHandler.GetProfile)
	protected.GET("/users/search", userHandler.Search)

	// Splitwise connection and passthrough routes
	sw := protected.Group("/splitwise")
	sw.POST("/connect", splitwiseHandler.Connect)
	sw.GET("/status", splitwiseHandler.Status)
	sw.GET("/me", splitwiseHandler.CurrentUser)
	sw.GET("/groups", splitwiseHandler.Groups)
	sw.GET("/expenses", splitwiseHandler.Expenses)

	// Household routes
	households := protected.Group("/households")
	households.POST("", householdHandler.Create)
	households.GET("", householdHandler.List)
	households.POST("/import-splitwise", householdHandler.ImportSplitwise)
	households.GET("/:id", householdHandler.Get)
	households.PATCH("/:id", householdHandler.Update)
	households.POST("/:id/members", householdHandler.AddMember)
	households.DELETE("/:id/members/:userID", householdHandler.RemoveMember)
	households.POST("/:id/sync", householdHandler.Sync)

	// Bill routes, scoped to a household
	bills := households.Group("/:id/bills")
	bills.POST("", billHandler.Create)
	bills.GET("", billHandler.List)
	bills.GET("/:billID", billHandler.Get)
	bills.PUT("/:billID", billHandler.Update)
	bills.DELETE("/:billID", billHandler.Delete)

	log.Infof("Starting splithaus backend server on port %s", appConfig.Port)
	return router.Run(":" + appConfig.Port)
}
