package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/luthierworks/tabliste/backend/internal/auth"
	"github.com/luthierworks/tabliste/backend/internal/tabs"
	"go.uber.org/zap"
)

const userIDContextKey = "tabliste_user_id"

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingTabStore         = errors.New("tab store dependency required")
	errMissingTokenService     = errors.New("token service dependency required")
)

// SessionValidator checks the externally issued session attached to a request.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

// TokenService issues and consumes single-use file-access tokens.
type TokenService interface {
	Issue(ctx context.Context, tabID string) (string, error)
	Consume(ctx context.Context, value, tabID string) error
}

// Dependencies carries the collaborators of the HTTP surface.
type Dependencies struct {
	Sessions   SessionValidator
	TabStore   *tabs.Store
	Tokens     TokenService
	Logger     *zap.Logger
	DevOrigins []string
}

// NewHTTPHandler wires the REST routes over the tab document store.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Sessions == nil {
		return nil, errMissingSessionValidator
	}
	if deps.TabStore == nil {
		return nil, errMissingTabStore
	}
	if deps.Tokens == nil {
		return nil, errMissingTokenService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if len(deps.DevOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     deps.DevOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders:     []string{"Content-Type"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	handler := &httpHandler{
		sessions: deps.Sessions,
		store:    deps.TabStore,
		tokens:   deps.Tokens,
		logger:   logger,
	}

	api := router.Group("/api")
	api.GET("/health", handler.handleHealth)

	// Public tabs and temp tokens authorize themselves per request; everything
	// else requires a session.
	api.GET("/tab/:id", handler.handleGetTab)
	api.GET("/tab/:id/file", handler.handleGetTabFile)
	api.GET("/tab/:id/temp-token", handler.handleTempToken)

	protected := api.Group("/")
	protected.Use(handler.requireSession)
	protected.POST("/new-tab", handler.handleNewTab)
	protected.GET("/tabs", handler.handleListTabs)
	protected.POST("/tab/:id", handler.handleUpdateTab)
	protected.POST("/tab/:id/fav", handler.handleSetFavorite)
	protected.POST("/tab/:id/replace", handler.handleReplaceTab)
	protected.DELETE("/tab/:id", handler.handleDeleteTab)
	protected.POST("/tab/:id/audio", handler.handleAddAudio)
	protected.POST("/tab/:id/audio/sync", handler.handleAudioSync)
	protected.DELETE("/tab/:id/audio", handler.handleRemoveAudio)
	protected.POST("/tab/:id/youtube", handler.handleAddYoutube)
	protected.POST("/tab/:id/youtube/:videoID", handler.handleYoutubeSync)
	protected.DELETE("/tab/:id/youtube/:videoID", handler.handleRemoveYoutube)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "msg": "not found"})
	})

	return router, nil
}

type httpHandler struct {
	sessions SessionValidator
	store    *tabs.Store
	tokens   TokenService
	logger   *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// requireSession aborts the request unless the external auth service's
// session cookie validates.
func (h *httpHandler) requireSession(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) || errors.Is(err, auth.ErrMissingSessionToken) {
			h.logger.Info("session validation failed", zap.Error(err))
		} else {
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "msg": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, claims.UserID)
	c.Next()
}

// hasSession reports whether the request carries a valid session without
// aborting on failure.
func (h *httpHandler) hasSession(c *gin.Context) bool {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		return false
	}
	c.Set(userIDContextKey, claims.UserID)
	return true
}

// respondStoreError maps store failures onto HTTP status codes with the
// {ok,msg} response envelope.
func (h *httpHandler) respondStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, tabs.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "msg": err.Error()})
	case errors.Is(err, tabs.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"ok": false, "msg": err.Error()})
	case errors.Is(err, tabs.ErrValidation),
		errors.Is(err, tabs.ErrUnsafeFilename),
		errors.Is(err, tabs.ErrInvalidTabID),
		errors.Is(err, tabs.ErrInvalidSyncMethod):
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "msg": err.Error()})
	default:
		h.logger.Error("tab operation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "msg": "internal error"})
	}
}

func parseTabID(c *gin.Context) (tabs.TabID, bool) {
	id, err := tabs.NewTabID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "msg": "invalid tab id"})
		return "", false
	}
	return id, true
}
