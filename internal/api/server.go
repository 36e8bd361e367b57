// Package api serves the calendar over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/theakshaypant/crmcal/internal/calendar"
	"github.com/theakshaypant/crmcal/internal/config"
	"github.com/theakshaypant/crmcal/internal/core"
	"github.com/theakshaypant/crmcal/internal/logging"
)

const requestIDHeader = "X-Request-ID"

// Options configures a Server.
type Options struct {
	// Calendar is the template every request's controller is built from.
	// View, Anchor and Filter are replaced per request.
	Calendar calendar.Options
	Auth     config.AuthConfig
	Logger   *logging.Logger
	// Nil disables /metrics.
	Metrics       *Metrics
	UpcomingLimit int
}

// Server exposes one event store through the calendar controller.
type Server struct {
	store   core.EventStore
	opts    Options
	log     *logging.Logger
	metrics *Metrics
}

// New builds a server over store.
func New(store core.EventStore, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logging.New("crmcal-api")
	}
	if opts.Calendar.Now == nil {
		opts.Calendar.Now = time.Now
	}
	if opts.Calendar.Logger == nil {
		opts.Calendar.Logger = log.Entry
	}
	if opts.Metrics != nil && opts.Calendar.Observer == nil {
		opts.Calendar.Observer = opts.Metrics
	}
	if opts.Calendar.Customers == nil {
		if dir, ok := store.(core.CustomerDirectory); ok {
			opts.Calendar.Customers = dir
		}
	}
	if opts.UpcomingLimit <= 0 {
		opts.UpcomingLimit = calendar.DefaultUpcomingLimit
	}
	return &Server{store: store, opts: opts, log: log, metrics: opts.Metrics}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestID(), s.accessLog())
	if s.metrics != nil {
		r.Use(s.metrics.Middleware())
		r.GET("/metrics", s.metrics.Handler())
	}
	r.GET("/healthz", s.health)

	v1 := r.Group("/api/v1")
	if s.opts.Auth.Enabled() {
		v1.Use(AuthMiddleware(s.opts.Auth))
	}
	v1.GET("/calendar", s.getCalendar)
	v1.GET("/calendar/upcoming", s.getUpcoming)
	v1.GET("/calendar/day/:date", s.getDay)
	v1.POST("/events", s.createEvent)
	v1.PATCH("/events/:id", s.updateEvent)
	v1.DELETE("/events/:id", s.deleteEvent)
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithRequestID(c.GetString("request_id")).WithFields(map[string]interface{}{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("request")
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "store": s.store.ID()})
}

// controller builds a fresh controller anchored at date with the given view and filter.
func (s *Server) controller(view calendar.ViewType, anchor time.Time, f calendar.Filter) *calendar.Controller {
	opts := s.opts.Calendar
	opts.View = view
	opts.Anchor = anchor
	opts.Filter = f
	return calendar.NewController(s.store, opts)
}

func (s *Server) location() *time.Location {
	if loc := s.opts.Calendar.Calculator.Location; loc != nil {
		return loc
	}
	return time.Local
}
