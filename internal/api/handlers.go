package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"peasurvey/internal/conversation"
	"peasurvey/internal/models"
	"peasurvey/internal/ui"
	"peasurvey/internal/worker"
)

// QueryManager runs queries for a session.
type QueryManager interface {
	Submit(worker.QueryRequest) (*models.Message, error)
	Purge(ctx context.Context, sessionID string)
}

type Config struct {
	// ConfigErr is set when the service started without usable configuration.
	// Every query route then answers 503 and the page shows the notice.
	ConfigErr      error
	Located        func() bool
	AllowedOrigins []string
	SessionTTL     time.Duration
	SecureCookie   bool
}

// Handler wires HTTP routes to the conversation stores and the query manager.
type Handler struct {
	workers      QueryManager
	sessions     *conversation.Registry
	configErr    error
	located      func() bool
	origins      []string
	sessionTTL   time.Duration
	secureCookie bool
}

func NewHandler(workers QueryManager, sessions *conversation.Registry, cfg Config) *Handler {
	if cfg.Located == nil {
		cfg.Located = func() bool { return false }
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = conversation.DefaultSessionTTL
	}
	return &Handler{
		workers:      workers,
		sessions:     sessions,
		configErr:    cfg.ConfigErr,
		located:      cfg.Located,
		origins:      cfg.AllowedOrigins,
		sessionTTL:   cfg.SessionTTL,
		secureCookie: cfg.SecureCookie,
	}
}

// NewRouter builds the gin engine with templates, CORS and all routes.
func NewRouter(h *Handler) (*gin.Engine, error) {
	tmpl, err := ui.Templates()
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	router := gin.Default()
	router.SetHTMLTemplate(tmpl)
	if len(h.origins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     h.origins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete},
			AllowHeaders:     []string{"Origin", "Content-Type", CSRFHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	h.RegisterRoutes(router)
	return router, nil
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", h.health)

	pages := router.Group("/")
	pages.Use(h.sessionMiddleware())
	pages.GET("", h.index)
	pages.GET("partials/conversation", h.requireConfigured(), h.conversationPartial)

	api := router.Group("/api")
	api.Use(h.sessionMiddleware(), h.requireConfigured(), h.csrfMiddleware())
	api.GET("/messages", h.listMessages)
	api.POST("/query", h.submitQuery)
	api.DELETE("/session", h.resetSession)
	api.GET("/events", h.events)
}

func (h *Handler) requireConfigured() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.configErr != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": ui.ConfigErrorDetail})
			return
		}
		c.Next()
	}
}

func (h *Handler) health(c *gin.Context) {
	if h.configErr != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "misconfigured", "error": h.configErr.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": h.sessions.Len()})
}

func (h *Handler) store(c *gin.Context) (*conversation.Store, bool) {
	id, ok := SessionIDFromContext(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing session"})
		return nil, false
	}
	return h.sessions.Get(c.Request.Context(), id), true
}

func (h *Handler) view(st *conversation.Store) ui.View {
	return ui.BuildView(st.Messages(), st.Loading(), h.located())
}

func (h *Handler) index(c *gin.Context) {
	if h.configErr != nil {
		c.HTML(http.StatusServiceUnavailable, ui.ConfigErrorTemplate, ui.NewConfigErrorView())
		return
	}
	st, ok := h.store(c)
	if !ok {
		return
	}
	h.issueCSRF(c)
	c.HTML(http.StatusOK, ui.PageTemplate, h.view(st))
}

func (h *Handler) conversationPartial(c *gin.Context) {
	st, ok := h.store(c)
	if !ok {
		return
	}
	c.HTML(http.StatusOK, ui.ConversationTemplate, h.view(st))
}

func (h *Handler) listMessages(c *gin.Context) {
	st, ok := h.store(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": st.SessionID(),
		"loading":    st.Loading(),
		"messages":   st.Messages(),
	})
}

type queryRequest struct {
	Query     string   `json:"query"`
	Latitude  *float64 `json:"latitude" binding:"omitempty,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" binding:"omitempty,gte=-180,lte=180"`
}

func (r queryRequest) bias() *models.GeoBias {
	if r.Latitude == nil || r.Longitude == nil {
		return nil
	}
	return &models.GeoBias{Latitude: *r.Latitude, Longitude: *r.Longitude}
}

func (h *Handler) submitQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	id, ok := SessionIDFromContext(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing session"})
		return
	}
	msg, err := h.workers.Submit(worker.QueryRequest{
		Context:   c.Request.Context(),
		SessionID: id,
		Query:     req.Query,
		Bias:      req.bias(),
	})
	if err != nil {
		status, text := queryErrorStatus(err)
		if status >= http.StatusInternalServerError {
			log.Printf("query for session %s: %v", id, err)
		}
		c.JSON(status, gin.H{"error": text})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func queryErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, worker.ErrEmptyQuery):
		return http.StatusBadRequest, "query is empty"
	case errors.Is(err, conversation.ErrBusy):
		return http.StatusConflict, "a query is already in progress"
	case errors.Is(err, worker.ErrRateLimited), errors.Is(err, worker.ErrQueueFull):
		return http.StatusTooManyRequests, err.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// The reply still lands in the conversation.
		return http.StatusAccepted, "reply pending"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (h *Handler) resetSession(c *gin.Context) {
	id, ok := SessionIDFromContext(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing session"})
		return
	}
	h.workers.Purge(c.Request.Context(), id)
	h.clearSession(c)
	c.Status(http.StatusNoContent)
}
