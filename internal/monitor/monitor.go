// Package monitor serves a small read-only HTTP surface during long
// migration runs: liveness, live batch progress, and Prometheus metrics.
package monitor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/list-cutter/cutover/internal/models"
)

// ProgressSource is the read-only state-store surface the monitor needs.
type ProgressSource interface {
	ListBatches(ctx context.Context, status models.BatchStatus, limit int) ([]models.Batch, error)
	Progress(ctx context.Context, batchID string) (*models.BatchProgress, error)
}

// Server wraps the monitoring HTTP server.
type Server struct {
	srv *http.Server
	log *logrus.Logger
}

// New builds the monitor server on addr. Routes are read-only; nothing
// here can mutate migration state.
func New(addr string, store ProgressSource, log *logrus.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.SetTrustedProxies(nil) //nolint:errcheck // nil always succeeds.
	r.Use(requestID())
	r.Use(ginLogger(log))
	r.Use(gin.Recovery())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := &handler{store: store, log: log, started: time.Now()}
	r.GET("/health", h.health)

	api := r.Group("/api/v1")
	api.GET("/batches", h.listBatches)
	api.GET("/batches/:id/progress", h.progress)

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log,
	}
}

// Start serves until Shutdown; a closed-server return is not an error.
func (s *Server) Start() error {
	s.log.WithField("addr", s.srv.Addr).Info("monitor server listening")

	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

type handler struct {
	store   ProgressSource
	log     *logrus.Logger
	started time.Time
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"uptime_seconds": time.Since(h.started).Seconds(),
	})
}

func (h *handler) listBatches(c *gin.Context) {
	status := models.BatchStatus(c.Query("status"))

	batches, err := h.store.ListBatches(c.Request.Context(), status, 0)
	if err != nil {
		h.log.WithError(err).Error("listing batches")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list batches"})

		return
	}

	c.JSON(http.StatusOK, gin.H{"batches": batches})
}

func (h *handler) progress(c *gin.Context) {
	progress, err := h.store.Progress(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, models.ErrBatchNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})

			return
		}

		h.log.WithError(err).Error("reading batch progress")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read progress"})

		return
	}

	c.JSON(http.StatusOK, progress)
}

const (
	requestIDKey    = "request_id"
	requestIDHeader = "X-Request-ID"
)

// requestID tags every request with a fresh server-side UUID. Client
// supplied X-Request-ID values are never trusted as the canonical ID.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.New().String()
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// ginLogger logs one structured line per request.
func ginLogger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		fields := logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
			"client":   c.ClientIP(),
		}
		if rid, exists := c.Get(requestIDKey); exists {
			fields["request_id"] = rid
		}
		log.WithFields(fields).Info("request")
	}
}
