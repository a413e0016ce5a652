package main

import (
	"context"
	"log"
	"time"

	_ "procurement/api/swagger" // swagger docs
	"procurement/internal/config"
	"procurement/internal/database"
	"procurement/internal/handler"
	"procurement/internal/middleware"
	"procurement/internal/repository"
	"procurement/internal/scheduler"
	"procurement/internal/service"
	"procurement/internal/websocket"
	"procurement/internal/workflow"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           Procurement Workflow API
// @version         1.0
// @description     Demand forms and requests through the approval chain, tenders and supplier orders.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	db, err := database.NewConnection(cfg.Database.DSN(), database.DefaultOptions(cfg.IsDev()))
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	log.Println("Connected to PostgreSQL successfully.")
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Database migration failed: %v", err)
	}

	middleware.InitAuth([]byte(cfg.JWT.Secret), cfg.IsProd())

	// Set up WebSocket Hub
	wsHub := websocket.NewHub(cfg.AllowedOrigins...)
	go wsHub.Run()

	// Set up dependencies (Repository -> Service -> Handler)
	txManager := repository.NewTransactionManager(db)
	auditRepo := repository.NewAuditRepository(db)
	requisitionRepo := repository.NewRequisitionRepository(db)
	tenderRepo := repository.NewTenderRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	userRepo := repository.NewUserRepository(db)
	statisticsRepo := repository.NewStatisticsRepository(db)

	requisitionService := service.NewRequisitionService(requisitionRepo, auditRepo, txManager, wsHub)
	tenderService := service.NewTenderService(tenderRepo, requisitionRepo, auditRepo, txManager, wsHub)
	orderService := service.NewOrderService(orderRepo, tenderRepo, requisitionService, auditRepo, txManager, wsHub)
	userService := service.NewUserService(userRepo, auditRepo, txManager, service.AuthSettings{
		Secret:     []byte(cfg.JWT.Secret),
		AccessTTL:  cfg.JWT.AccessTTL,
		RefreshTTL: cfg.JWT.RefreshTTL,
	})
	auditService := service.NewAuditService(auditRepo)
	statisticsService := service.NewStatisticsService(statisticsRepo)

	seedCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := userService.EnsureSuperAdmin(seedCtx, cfg.SuperAdmin.Email, cfg.SuperAdmin.Password); err != nil {
		log.Fatalf("Super admin seed failed: %v", err)
	}
	cancel()

	if cfg.TenderAutoClose.Enabled {
		closer, err := scheduler.StartTenderCloser(cfg.TenderAutoClose.Schedule, tenderService)
		if err != nil {
			log.Fatalf("Tender closer failed to start: %v", err)
		}
		defer closer.Stop()
	}

	// Initialize Handlers
	userHandler := handler.NewUserHandler(userService, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	demandFormHandler := handler.NewRequisitionHandler(requisitionService, workflow.KindDemandForm)
	requestHandler := handler.NewRequisitionHandler(requisitionService, workflow.KindRequest)
	tenderHandler := handler.NewTenderHandler(tenderService)
	orderHandler := handler.NewOrderHandler(orderService)
	auditHandler := handler.NewAuditHandler(auditService)
	statisticsHandler := handler.NewStatisticsHandler(statisticsService)

	if cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "OK", "ws_clients": wsHub.ClientCount()})
	})

	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c)
	})

	// API Routing
	api := router.Group("")
	userHandler.RegisterRoutes(api)
	demandFormHandler.RegisterRoutes(api)
	requestHandler.RegisterRoutes(api)
	tenderHandler.RegisterRoutes(api)
	orderHandler.RegisterRoutes(api)
	auditHandler.RegisterRoutes(api)
	statisticsHandler.RegisterRoutes(api)

	log.Printf("Server listening on :%s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
