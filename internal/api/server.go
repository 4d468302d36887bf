// Package api — HTTP-интерфейс трекера только для чтения: состояние трекера,
// периоды, участники, журнал выплат и метрики Prometheus.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/0xCipherCoder/contribution-tracker/internal/config"
)

const shutdownTimeout = 5 * time.Second

// Server — HTTP-сервер API.
type Server struct {
	engine *gin.Engine
	addr   string
}

// NewServer собирает роутер. gatherer отдаётся на /metrics.
func NewServer(cfg *config.Config, h *Handler, gatherer prometheus.Gatherer) *Server {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	setupCORS(router, cfg.HTTPAllowedOrigins)
	router.Use(gin.Recovery())
	router.Use(requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := router.Group("/api")
	{
		api.GET("/tracker", h.GetTracker)

		periods := api.Group("/periods")
		periods.GET("/current", h.GetCurrentPeriod)
		periods.GET("/:number", h.GetPeriod)
		periods.GET("/:number/contributions", h.GetPeriodContributions)

		contributors := api.Group("/contributors/:authority")
		contributors.GET("", h.GetContributor)
		contributors.GET("/contributions", h.GetContributorContributions)
		contributors.GET("/settlements", h.GetContributorSettlements)
		contributors.GET("/preview/:number", h.GetPreview)
	}

	return &Server{engine: router, addr: cfg.HTTPAddr}
}

// Handler возвращает http.Handler сервера.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run слушает адрес до отмены ctx, затем корректно останавливает сервер.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", s.addr).Info("HTTP API запущен")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("ошибка HTTP-сервера: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка остановки HTTP-сервера: %w", err)
	}
	<-errCh
	log.Info("HTTP API остановлен")
	return nil
}

func setupCORS(router *gin.Engine, origins []string) {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "HEAD", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	router.Use(cors.New(cfg))
}

// requestLogger пишет запросы в logrus вместо стандартного логгера gin.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := log.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.WithFields(fields).Warn("HTTP запрос")
			return
		}
		log.WithFields(fields).Debug("HTTP запрос")
	}
}
