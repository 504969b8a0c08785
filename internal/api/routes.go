package api

import (
	"net/http"

	"github.com/Sharvin27/contracts-management-aptosc5/internal/api/handlers"
	"github.com/Sharvin27/contracts-management-aptosc5/internal/api/middleware"
	"github.com/Sharvin27/contracts-management-aptosc5/internal/repository"
	"github.com/Sharvin27/contracts-management-aptosc5/pkg/metrics"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Router struct {
	engine          *gin.Engine
	logger          *zap.Logger
	metrics         *metrics.Collector
	docHandler      *handlers.DocumentHandler
	categoryHandler *handlers.CategoryHandler
	sessionMW       *middleware.SessionMiddleware
	requestMW       *middleware.RequestMiddleware
}

func NewRouter(
	logger *zap.Logger,
	collector *metrics.Collector,
	repo *repository.Repository,
	signerFor handlers.SignerFactory,
	baseURL string,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	requestMW := middleware.NewRequestMiddleware(logger)
	sessionMW := middleware.NewSessionMiddleware(logger)

	engine.Use(requestMW.ProcessRequest())
	engine.Use(requestMW.RecoverPanic())

	docHandler := handlers.NewDocumentHandler(repo, signerFor, baseURL, logger)
	categoryHandler := handlers.NewCategoryHandler(repo, logger)

	return &Router{
		engine:          engine,
		logger:          logger,
		metrics:         collector,
		docHandler:      docHandler,
		categoryHandler: categoryHandler,
		sessionMW:       sessionMW,
		requestMW:       requestMW,
	}
}

func (r *Router) SetupRoutes() {
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "up", "name": "contracts-management"})
	})

	r.engine.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"counters":  r.metrics.GetCounters(),
			"latencies": r.metrics.GetLatencies(),
			"sizes":     r.metrics.GetSizes(),
		})
	})

	api := r.engine.Group("/api")
	api.Use(r.sessionMW.RequireWallet())
	{
		api.GET("/documents", r.docHandler.ListDocuments)
		api.GET("/documents/owned", r.docHandler.ListOwned)
		api.GET("/documents/pending", r.docHandler.ListPending)
		api.GET("/documents/categorized", r.categoryHandler.ListCategorized)
		api.GET("/documents/:id/content", r.docHandler.GetContent)
		api.GET("/documents/:id/share-link", r.docHandler.ShareLink)
		api.POST("/documents", r.requestMW.ThrottleCreates(), r.docHandler.CreateDocument)
		api.POST("/refresh", r.docHandler.RefreshCache)
	}
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}

// Close releases the router's background resources.
func (r *Router) Close() {
	r.requestMW.Stop()
}

func (r *Router) Run(addr string) error {
	r.logger.Info("Starting HTTP server", zap.String("address", addr))
	return r.engine.Run(addr)
}
