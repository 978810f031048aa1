// Package httpapi is the HTTP ingress for the registry: it submits inbound
// messages to the engine and serves read views of the ACL, the version
// catalog and the entity records.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/aclreg/internal/engine"
	"github.com/roach88/aclreg/internal/metrics"
	"github.com/roach88/aclreg/internal/registry"
	"github.com/roach88/aclreg/internal/wire"
)

// Storage is the slice of the store the health check reads.
type Storage interface {
	Ping(ctx context.Context) error
	CountMessages(ctx context.Context, action string) (int, error)
}

// Options configures the router.
type Options struct {
	// Metrics, when set, records request metrics.
	Metrics *metrics.Metrics
	// Gatherer backs GET /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// Store is checked by GET /health. Nil skips the check.
	Store Storage
	// Timeout bounds how long a request waits on the engine. Default 10s.
	Timeout time.Duration
}

// Server holds the HTTP handlers.
type Server struct {
	engine  *engine.Engine
	store   Storage
	timeout time.Duration
}

// MessageResponse is the body returned by POST /messages.
type MessageResponse struct {
	MessageID string        `json:"message_id"`
	Seq       int64         `json:"seq"`
	Outcome   string        `json:"outcome"`
	Duplicate bool          `json:"duplicate,omitempty"`
	Notices   []wire.Notice `json:"notices"`
	Error     string        `json:"error,omitempty"`
}

// NewRouter builds the gin router over e.
func NewRouter(e *engine.Engine, opts Options) *gin.Engine {
	s := &Server{engine: e, store: opts.Store, timeout: opts.Timeout}
	if s.timeout <= 0 {
		s.timeout = 10 * time.Second
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if opts.Metrics != nil {
		router.Use(metrics.Middleware(opts.Metrics))
	}

	router.POST("/messages", s.PostMessage)
	router.GET("/acl", s.GetACL)
	router.GET("/acl/:address", s.GetAddressACL)
	router.GET("/versions", s.GetVersions)
	router.GET("/entities", s.GetEntities)
	router.GET("/entities/:id", s.GetEntity)
	router.GET("/health", s.Health)
	if opts.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}
	return router
}

// PostMessage submits one inbound message and returns its notices.
// Registry rejections are 200 responses: they are notices, not HTTP errors.
func (s *Server) PostMessage(c *gin.Context) {
	var msg wire.Message
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if msg.Action == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "action is required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.timeout)
	defer cancel()

	reply, err := s.engine.Submit(ctx, msg)
	resp := MessageResponse{
		MessageID: reply.MessageID,
		Seq:       reply.Seq,
		Outcome:   reply.Outcome,
		Duplicate: reply.Duplicate,
		Notices:   reply.Notices,
	}
	if resp.Notices == nil {
		resp.Notices = []wire.Notice{}
	}

	switch {
	case err == nil:
		c.JSON(http.StatusOK, resp)
	case errors.Is(err, engine.ErrStopped):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
	default:
		// Not persisted: the registry was rolled back and nothing was sent.
		slog.Error("message not persisted",
			"id", reply.MessageID,
			"seq", reply.Seq,
			"error", err,
		)
		resp.Error = err.Error()
		c.JSON(http.StatusInternalServerError, resp)
	}
}

// GetACL returns the full address -> affiliations projection.
func (s *Server) GetACL(c *gin.Context) {
	var snapshot map[string]registry.Affiliations
	if s.query(c, func(r *registry.Registry) { snapshot = r.ACLSnapshot() }) {
		c.JSON(http.StatusOK, snapshot)
	}
}

// GetAddressACL returns the affiliations of one address. Unknown addresses
// have empty lists, never 404.
func (s *Server) GetAddressACL(c *gin.Context) {
	address := c.Param("address")
	var aff registry.Affiliations
	if s.query(c, func(r *registry.Registry) { aff = r.ACL(address) }) {
		c.JSON(http.StatusOK, aff)
	}
}

// GetVersions returns the catalog in version order.
func (s *Server) GetVersions(c *gin.Context) {
	var versions []registry.VersionRecord
	if s.query(c, func(r *registry.Registry) { versions = r.SortedVersions() }) {
		if versions == nil {
			versions = []registry.VersionRecord{}
		}
		c.JSON(http.StatusOK, versions)
	}
}

// GetEntities returns every entity record ordered by id.
func (s *Server) GetEntities(c *gin.Context) {
	var entities []registry.EntityRecord
	if s.query(c, func(r *registry.Registry) { entities = r.Entities() }) {
		c.JSON(http.StatusOK, entities)
	}
}

// GetEntity returns one entity record.
func (s *Server) GetEntity(c *gin.Context) {
	id := c.Param("id")
	var (
		rec   registry.EntityRecord
		found bool
	)
	if !s.query(c, func(r *registry.Registry) { rec, found = r.Entity(id) }) {
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "entity not registered", "entity_id": id})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Health reports liveness of the engine loop and the store.
func (s *Server) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.timeout)
	defer cancel()

	var entities, versions int
	if err := s.engine.Query(ctx, func(r *registry.Registry) { entities, versions = r.Counts() }); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	body := gin.H{
		"status":   "ok",
		"seq":      s.engine.Clock().Current(),
		"entities": entities,
		"versions": versions,
	}
	if s.store != nil {
		err := s.store.Ping(ctx)
		var logged int
		if err == nil {
			logged, err = s.store.CountMessages(ctx, "")
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		body["messages"] = logged
	}
	c.JSON(http.StatusOK, body)
}

// query runs fn in the engine loop and writes an error response if it could
// not. Returns true when fn ran.
func (s *Server) query(c *gin.Context, fn func(*registry.Registry)) bool {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.timeout)
	defer cancel()

	if err := s.engine.Query(ctx, fn); err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return false
	}
	return true
}

// Serve runs handler on addr until ctx is cancelled, then shuts down
// gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http ingress listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		slog.Info("http ingress shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
