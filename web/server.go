package web

import (
	"context"
	"net/http"
	"time"

	"case-explainer/config"
	"case-explainer/metrics"
	"case-explainer/web/handlers"
	"case-explainer/web/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	router  *gin.Engine
	service handlers.CaseService
	limiter *middleware.CaseRateLimiter
	logger  *zap.Logger
	config  *config.Config
}

func NewServer(service handlers.CaseService, logger *zap.Logger, config *config.Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestMiddleware(logger))

	server := &Server{
		router:  router,
		service: service,
		limiter: middleware.NewCaseRateLimiter(middleware.RateLimiterConfig{
			QuestionsPerMinute: config.RateLimitQuestionsPerMin,
			BurstSize:          config.RateLimitBurstSize,
			CleanupInterval:    10 * time.Minute,
		}, logger),
		logger: logger,
		config: config,
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	caseHandler := handlers.NewCaseHandler(s.service, s.logger)

	s.router.GET("/healthz", caseHandler.Health)
	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := s.router.Group("/api")
	api.GET("/stats", caseHandler.Stats)

	cases := api.Group("/cases/:caseID")
	cases.POST("/answer", middleware.RateLimitMiddleware(s.limiter), caseHandler.Answer)
	cases.DELETE("/cache", caseHandler.Invalidate)
	cases.GET("/history", caseHandler.History)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(ctx context.Context, addr string) error {
	s.logger.Info("Starting web server", zap.String("address", addr))

	srv := &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Web server failed to start", zap.Error(err))
		}
	}()

	<-ctx.Done()

	s.logger.Info("Shutting down web server")
	s.limiter.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
