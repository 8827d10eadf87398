package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cloudhut/kafka-web/browse"
	"github.com/cloudhut/kafka-web/groups"
	"github.com/cloudhut/kafka-web/kafka"
	"github.com/cloudhut/kafka-web/lag"
)

// AdminConnector opens request scoped admin connections.
type AdminConnector interface {
	NewAdmin(purpose string) (kafka.AdminClient, error)
}

type Producer interface {
	Produce(ctx context.Context, topic string, record kafka.ProduceRecord) (kafka.ProducedRecord, error)
}

// Dependencies are the services the api exposes.
type Dependencies struct {
	Connector AdminConnector
	Producer  Producer
	Lag       *lag.Calculator
	Remover   *groups.Remover
	Browser   *browse.Service
	Sessions  *browse.Sessions
	Gatherer  prometheus.Gatherer
}

type Server struct {
	cfg    Config
	logger *zap.Logger
	deps   Dependencies
	router *gin.Engine
}

func NewServer(cfg Config, logger *zap.Logger, deps Dependencies) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		cfg:    cfg,
		logger: logger.With(zap.String("source", "api")),
		deps:   deps,
		router: gin.New(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(gin.Recovery(), logMiddleware(s.logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "Status: Healthy")
	})
	if s.deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api", errorMiddleware())
	{
		api.GET("/topics", handle(s.listTopics))
		api.POST("/topics", handle(s.createTopic))
		api.DELETE("/topics/:topic", handle(s.deleteTopic))
		api.GET("/topics/:topic/lag", handle(s.topicLag))
		api.POST("/topics/:topic/messages", handle(s.produceMessage))
		api.POST("/topics/:topic/messages/poll", handle(s.pollMessages))
		api.GET("/lag", handle(s.lagOverview))

		api.GET("/groups", handle(s.listGroups))
		api.DELETE("/groups/:group", handle(s.deleteGroup))
		api.POST("/groups/:group/force-remove", handle(s.forceRemoveGroup))

		api.DELETE("/sessions/:sessionId", handle(s.deleteSession))
	}
}

// Handler returns the http handler serving all routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done and shuts down gracefully afterwards.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.address(),
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.cfg.TLSCertFile != "" {
			err = srv.ListenAndServeTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		errCh <- err
	}()
	s.logger.Info("listening on address", zap.String("listen_address", srv.Addr), zap.Bool("tls", s.cfg.TLSCertFile != ""))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server", zap.Duration("timeout", s.cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
