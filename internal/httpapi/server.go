// Package httpapi exposes the roster, sync controls and live events to the
// ward UI over HTTP.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"wardroster/internal/auth"
	"wardroster/internal/localstore"
	"wardroster/internal/roster"
	"wardroster/internal/syncengine"
	"wardroster/pkg/domain"
)

// Deps are the collaborators served over HTTP. Session is nil when the
// remote driver carries its own credentials; Metrics is nil to disable
// /metrics.
type Deps struct {
	Roster      *roster.Manager
	Store       *localstore.Store
	Engine      *syncengine.Engine
	Session     *auth.Session
	Metrics     http.Handler
	Logger      *zap.Logger
	CORSOrigins []string
	Now         func() time.Time
}

// Server owns the gin router and the event hub.
type Server struct {
	roster  *roster.Manager
	store   *localstore.Store
	engine  *syncengine.Engine
	session *auth.Session
	metrics http.Handler
	logger  *zap.Logger
	origins []string
	nowFn   func() time.Time

	hub         *Hub
	unsubscribe func()
}

// New wires d into a Server and starts forwarding roster, conflict and
// sign-in events to the hub.
func New(d Deps) *Server {
	s := &Server{
		roster:  d.Roster,
		store:   d.Store,
		engine:  d.Engine,
		session: d.Session,
		metrics: d.Metrics,
		logger:  d.Logger,
		origins: d.CORSOrigins,
		nowFn:   d.Now,
		hub:     NewHub(32),
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}
	s.unsubscribe = s.store.Subscribe(func(snap domain.RosterSnapshot) {
		s.hub.Publish(Event{Name: EventRosterChanged, Data: rosterSummary(snap)})
	})
	s.engine.OnConflictDetected(func(c syncengine.Conflict) {
		s.hub.Publish(Event{Name: EventConflictDetected, Data: c})
	})
	if s.session != nil {
		s.session.OnChange(func(authenticated bool) {
			s.hub.Publish(Event{Name: EventAuthChanged, Data: gin.H{"authenticated": authenticated}})
		})
	}
	return s
}

// Hub returns the event hub.
func (s *Server) Hub() *Hub { return s.hub }

// Close stops forwarding roster events.
func (s *Server) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// Handler builds the HTTP router.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	r.Use(cors.New(s.corsConfig()))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
	}

	api := r.Group("/api")
	{
		api.GET("/patients", s.listPatients)
		api.POST("/patients", s.createPatient)
		api.GET("/patients/:id", s.getPatient)
		api.PUT("/patients/:id", s.updatePatient)
		api.DELETE("/patients/:id", s.removePatient)
		api.POST("/patients/:id/move", s.movePatient)
		api.POST("/patients/:id/swap", s.swapPatients)

		api.GET("/sync/status", s.syncStatus)
		api.POST("/sync", s.syncNow)
		api.PUT("/sync/auto", s.setAutoSync)
		api.GET("/sync/conflict", s.pendingConflict)
		api.POST("/sync/conflict/resolve", s.resolveConflict)

		api.POST("/auth/signin", s.signIn)
		api.POST("/auth/signout", s.signOut)

		api.GET("/export/handover.xlsx", s.exportHandover)
		api.GET("/events", s.events)
	}
	return r
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}
	for _, o := range s.origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(s.origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = s.origins
	return cfg
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.FullPath() == "/api/events" {
			return
		}
		s.logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func rosterSummary(snap domain.RosterSnapshot) gin.H {
	return gin.H{
		"version":     snap.Version,
		"lastUpdated": snap.LastUpdated,
		"patients":    len(snap.Patients),
	}
}
