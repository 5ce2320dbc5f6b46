package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/matdesk/requisition-service/internal/application"
	"github.com/matdesk/requisition-service/internal/domain"
	mongoRepo "github.com/matdesk/requisition-service/internal/infrastructure/mongodb"
	"github.com/matdesk/requisition-service/pkg/api"
	"github.com/matdesk/requisition-service/pkg/errors"
	"github.com/matdesk/requisition-service/pkg/kafka"
	"github.com/matdesk/requisition-service/pkg/logging"
	"github.com/matdesk/requisition-service/pkg/metrics"
	"github.com/matdesk/requisition-service/pkg/middleware"
	"github.com/matdesk/requisition-service/pkg/mongodb"
	"github.com/matdesk/requisition-service/pkg/tracing"
)

const serviceName = "requisition-service"

func main() {
	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = logging.LogLevel(getEnv("LOG_LEVEL", "info"))
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting requisition-service API")

	config := loadConfig()
	ctx := context.Background()

	// OpenTelemetry tracing
	tracingConfig := tracing.DefaultConfig(serviceName)
	tracingConfig.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	tracingConfig.Environment = getEnv("ENVIRONMENT", "development")
	tracingConfig.Enabled = getEnv("TRACING_ENABLED", "true") == "true"

	tracerProvider, err := tracing.Initialize(ctx, tracingConfig)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
		// Continue without tracing
	} else if tracerProvider != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Failed to shutdown tracer")
			}
		}()
		logger.Info("Tracing initialized", "endpoint", tracingConfig.OTLPEndpoint)
	}

	// Prometheus metrics
	m := metrics.New(metrics.DefaultConfig(serviceName))
	logger.Info("Metrics initialized")

	// MongoDB
	mongoClient, err := mongodb.NewClient(ctx, config.MongoDB)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to MongoDB")
		os.Exit(1)
	}
	defer mongoClient.Close(ctx)
	logger.Info("Connected to MongoDB", "database", config.MongoDB.Database)

	// Repositories
	materialRepo, err := mongoRepo.NewMaterialRepository(ctx, mongoClient, logger, m)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize material repository")
		os.Exit(1)
	}
	logRepo, err := mongoRepo.NewMaterialLogRepository(ctx, mongoClient, logger, m)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize material log repository")
		os.Exit(1)
	}
	requisitionRepo, err := mongoRepo.NewRequisitionRepository(ctx, mongoClient, logger, m)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize requisition repository")
		os.Exit(1)
	}

	// Kafka producer behind a circuit breaker; publishing is best-effort
	var publisher domain.EventPublisher
	if config.KafkaEnabled {
		producer := kafka.NewProducer(config.Kafka)
		defer producer.Close()
		publisher = application.NewKafkaEventPublisher(producer, logger, m)
		logger.Info("Kafka producer initialized", "brokers", config.Kafka.Brokers)
	} else {
		publisher = application.NoopEventPublisher{}
		logger.Info("Kafka disabled, events will be dropped")
	}

	// Application services
	clock := domain.SystemClock{}
	requisitionService := application.NewRequisitionService(
		materialRepo, logRepo, requisitionRepo, publisher, clock, logger, m,
	)
	materialService := application.NewMaterialService(
		materialRepo, logRepo, publisher, clock, logger, m,
	)

	// Gin router with the standard middleware chain
	router := gin.New()
	middleware.Setup(router, middleware.DefaultConfig(serviceName, logger.Logger))
	router.Use(middleware.MetricsMiddleware(m))
	router.Use(middleware.SimpleTracingMiddleware(serviceName))

	router.NoRoute(middleware.NoRoute())
	router.NoMethod(middleware.NoMethod())

	router.GET("/health", middleware.HealthCheck(serviceName))
	router.GET("/ready", middleware.ReadinessCheck(serviceName, func() error {
		return mongoClient.HealthCheck(ctx)
	}))
	router.GET("/metrics", middleware.MetricsEndpoint(m))

	// All API routes require actor headers
	v1 := router.Group("/api/v1")
	v1.Use(middleware.ActorAuth(&middleware.ActorAuthConfig{Required: true}))
	{
		requisitions := v1.Group("/requisitions")
		{
			requisitions.POST("", submitRequisitionHandler(requisitionService, logger))
			requisitions.GET("", listRequisitionsHandler(requisitionService, logger))
			requisitions.GET("/:id", getRequisitionHandler(requisitionService, logger))
			requisitions.GET("/:id/ledger", getRequisitionLedgerHandler(requisitionService, logger))
			requisitions.POST("/:id/cancel", cancelRequisitionHandler(requisitionService, logger))
		}

		materials := v1.Group("/materials")
		{
			// Static routes before wildcard routes
			materials.GET("", listMaterialsHandler(materialService, logger))
			materials.GET("/low-stock", listLowStockHandler(materialService, logger))
			materials.GET("/:id", getMaterialHandler(materialService, logger))
			materials.GET("/:id/ledger", getMaterialLedgerHandler(materialService, logger))

			admin := materials.Group("")
			admin.Use(middleware.RequireElevated())
			{
				admin.POST("", createMaterialHandler(materialService, logger))
				admin.POST("/:id/adjust", adjustStockHandler(materialService, logger))
			}
		}
	}

	srv := &http.Server{
		Addr:         config.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
		}
	}()
	logger.Info("Server started", "addr", config.ServerAddr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server stopped")
}

// Config holds application configuration
type Config struct {
	ServerAddr   string
	MongoDB      *mongodb.Config
	Kafka        *kafka.Config
	KafkaEnabled bool
}

func loadConfig() *Config {
	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8012"),
		MongoDB: &mongodb.Config{
			URI:            getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database:       getEnv("MONGODB_DATABASE", "requisition_db"),
			ConnectTimeout: 10 * time.Second,
			MaxPoolSize:    100,
			MinPoolSize:    10,
		},
		Kafka: &kafka.Config{
			Brokers:      strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			ClientID:     serviceName,
			BatchSize:    100,
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: -1,
		},
		KafkaEnabled: getEnv("KAFKA_ENABLED", "true") == "true",
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func respondError(responder *middleware.ErrorResponder, err error) {
	if appErr, ok := err.(*errors.AppError); ok {
		responder.RespondWithAppError(appErr)
		return
	}
	responder.RespondWithAppError(errors.MapDomainError(err))
}

func submitRequisitionHandler(service *application.RequisitionService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req struct {
			Items []struct {
				MaterialID string `json:"materialId" binding:"required"`
				VariantID  string `json:"variantId" binding:"required"`
				Quantity   int64  `json:"quantity" binding:"required"`
			} `json:"items" binding:"required,min=1"`
			TicketRef string `json:"ticketRef" binding:"omitempty,max=100,safe_string"`
			Note      string `json:"note" binding:"omitempty,max=500,safe_string"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			responder.RespondBadRequest(err.Error())
			return
		}

		items := make([]application.RequisitionLine, len(req.Items))
		for i, item := range req.Items {
			items[i] = application.RequisitionLine{
				MaterialID: item.MaterialID,
				VariantID:  item.VariantID,
				Quantity:   item.Quantity,
			}
		}

		cmd := application.SubmitRequisitionCommand{
			Items:     items,
			Applicant: middleware.GetActor(c),
			TicketRef: req.TicketRef,
			Note:      req.Note,
		}

		requisition, err := service.Submit(c.Request.Context(), cmd)
		if err != nil {
			respondError(responder, err)
			return
		}

		c.JSON(http.StatusCreated, requisition)
	}
}

func cancelRequisitionHandler(service *application.RequisitionService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req struct {
			Reason string `json:"reason" binding:"omitempty,max=200,safe_string"`
		}
		// Body is optional; an empty cancel reason gets a default
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				responder.RespondBadRequest(err.Error())
				return
			}
		}

		cmd := application.CancelRequisitionCommand{
			RequisitionID: c.Param("id"),
			Actor:         middleware.GetActor(c),
			Reason:        req.Reason,
		}

		requisition, err := service.Cancel(c.Request.Context(), cmd)
		if err != nil {
			respondError(responder, err)
			return
		}

		c.JSON(http.StatusOK, requisition)
	}
}

func getRequisitionHandler(service *application.RequisitionService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		query := application.GetRequisitionQuery{
			RequisitionID: c.Param("id"),
			Actor:         middleware.GetActor(c),
		}

		requisition, err := service.GetRequisition(c.Request.Context(), query)
		if err != nil {
			respondError(responder, err)
			return
		}

		c.JSON(http.StatusOK, requisition)
	}
}

func listRequisitionsHandler(service *application.RequisitionService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)
		page := api.ParsePagination(c)

		query := application.ListRequisitionsQuery{
			ApplicantID: c.Query("applicantId"),
			Status:      c.Query("status"),
			Department:  c.Query("department"),
			Actor:       middleware.GetActor(c),
			Limit:       page.GetLimit(),
			Offset:      page.GetOffset(),
		}

		requisitions, total, err := service.ListRequisitions(c.Request.Context(), query)
		if err != nil {
			respondError(responder, err)
			return
		}

		c.JSON(http.StatusOK, api.NewPageResponse(requisitions, page.Page, page.PageSize, total))
	}
}

func getRequisitionLedgerHandler(service *application.RequisitionService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		entries, err := service.GetRequisitionLedger(c.Request.Context(), c.Param("id"), middleware.GetActor(c))
		if err != nil {
			respondError(responder, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"entries": entries})
	}
}

func createMaterialHandler(service *application.MaterialService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req struct {
			MaterialNo  string `json:"materialNo" binding:"required,material_no"`
			Name        string `json:"name" binding:"required"`
			Description string `json:"description"`
			Category    string `json:"category"`
			Unit        string `json:"unit" binding:"required"`
			Variants    []struct {
				VariantID   string `json:"variantId" binding:"required"`
				Label       string `json:"label" binding:"required"`
				CostPrice   int64  `json:"costPrice" binding:"min=0"`
				SalePrice   int64  `json:"salePrice" binding:"min=0"`
				Stock       int64  `json:"stock" binding:"min=0"`
				SafetyStock int64  `json:"safetyStock" binding:"min=0"`
				ImageURL    string `json:"imageUrl"`
			} `json:"variants" binding:"required,min=1"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			responder.RespondBadRequest(err.Error())
			return
		}

		variants := make([]application.CreateVariantCommand, len(req.Variants))
		for i, v := range req.Variants {
			variants[i] = application.CreateVariantCommand{
				VariantID:   v.VariantID,
				Label:       v.Label,
				CostPrice:   v.CostPrice,
				SalePrice:   v.SalePrice,
				Stock:       v.Stock,
				SafetyStock: v.SafetyStock,
				ImageURL:    v.ImageURL,
			}
		}

		cmd := application.CreateMaterialCommand{
			MaterialNo:  req.MaterialNo,
			Name:        req.Name,
			Description: req.Description,
			Category:    req.Category,
			Unit:        req.Unit,
			Variants:    variants,
			CreatedBy:   middleware.GetActor(c),
		}

		material, err := service.CreateMaterial(c.Request.Context(), cmd)
		if err != nil {
			respondError(responder, err)
			return
		}

		c.JSON(http.StatusCreated, material)
	}
}

func adjustStockHandler(service *application.MaterialService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req struct {
			VariantID string `json:"variantId" binding:"required"`
			Direction string `json:"direction" binding:"required,oneof=in out"`
			Quantity  int64  `json:"quantity" binding:"required,min=1"`
			Reason    string `json:"reason" binding:"required,max=200,safe_string"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			responder.RespondBadRequest(err.Error())
			return
		}

		cmd := application.AdjustStockCommand{
			MaterialID: c.Param("id"),
			VariantID:  req.VariantID,
			Direction:  req.Direction,
			Quantity:   req.Quantity,
			Reason:     req.Reason,
			Actor:      middleware.GetActor(c),
		}

		material, err := service.AdjustStock(c.Request.Context(), cmd)
		if err != nil {
			respondError(responder, err)
			return
		}

		c.JSON(http.StatusOK, material)
	}
}

func getMaterialHandler(service *application.MaterialService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		query := application.GetMaterialQuery{MaterialID: c.Param("id")}
		material, err := service.GetMaterial(c.Request.Context(), query, middleware.GetActor(c))
		if err != nil {
			respondError(responder, err)
			return
		}

		c.JSON(http.StatusOK, material)
	}
}

func listMaterialsHandler(service *application.MaterialService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)
		page := api.ParsePagination(c)

		query := application.ListMaterialsQuery{
			Status:   c.Query("status"),
			Category: c.Query("category"),
			Search:   c.Query("search"),
			Limit:    page.GetLimit(),
			Offset:   page.GetOffset(),
		}

		materials, total, err := service.ListMaterials(c.Request.Context(), query, middleware.GetActor(c))
		if err != nil {
			respondError(responder, err)
			return
		}

		c.JSON(http.StatusOK, api.NewPageResponse(materials, page.Page, page.PageSize, total))
	}
}

func listLowStockHandler(service *application.MaterialService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		materials, err := service.ListLowStock(c.Request.Context(), middleware.GetActor(c))
		if err != nil {
			respondError(responder, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"materials": materials})
	}
}

func getMaterialLedgerHandler(service *application.MaterialService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)
		page := api.ParsePagination(c)

		query := application.ListMaterialLogsQuery{
			MaterialID: c.Param("id"),
			Limit:      page.GetLimit(),
			Offset:     page.GetOffset(),
		}

		entries, total, err := service.GetMaterialLedger(c.Request.Context(), query)
		if err != nil {
			respondError(responder, err)
			return
		}

		c.JSON(http.StatusOK, api.NewPageResponse(entries, page.Page, page.PageSize, total))
	}
}
