package web

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"rabbitwatch/internal/alerts"
	"rabbitwatch/internal/journal"
)

const maxNotificationsLimit = 500

type AlertLister interface {
	Active() []alerts.AlertView
}

type NotificationLister interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
}

type Readiness interface {
	Ready() bool
	LastSuccess() time.Time
}

type Server struct {
	alerts  AlertLister
	journal NotificationLister
	ready   Readiness
	log     zerolog.Logger
}

func NewServer(a AlertLister, j NotificationLister, r Readiness, logger zerolog.Logger) *Server {
	return &Server{alerts: a, journal: j, ready: r, log: logger}
}

func (s *Server) Routes() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.log))

	r.GET("/healthz", s.handleHealthz)
	r.GET("/readyz", s.handleReadyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.GET("/alerts", s.handleAlerts)
	api.GET("/notifications", s.handleNotifications)
	return r
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// handleReadyz turns ready once the management API has answered at least once.
func (s *Server) handleReadyz(c *gin.Context) {
	if !s.ready.Ready() {
		c.String(http.StatusServiceUnavailable, "no successful poll yet")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       "ready",
		"last_success": s.ready.LastSuccess(),
	})
}

func (s *Server) handleAlerts(c *gin.Context) {
	c.JSON(http.StatusOK, s.alerts.Active())
}

func (s *Server) handleNotifications(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(parsed, maxNotificationsLimit)
	}
	entries, err := s.journal.Recent(c.Request.Context(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("journal read failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "journal unavailable"})
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	c.JSON(http.StatusOK, entries)
}
