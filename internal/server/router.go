package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/notevault/internal/failure"
	"github.com/MarcoPoloResearchLab/notevault/internal/notes"
	"github.com/MarcoPoloResearchLab/notevault/internal/presentation"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	subjectContextKey        = "notevault_subject"
	accessTokenQueryKey      = "access_token"
	defaultHeartbeatInterval = 25 * time.Second
)

var (
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingController    = errors.New("notes controller dependency required")
	errMissingDispatcher    = errors.New("state dispatcher dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// TokenValidator verifies launch tokens presented by the UI.
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// NotesController is the presentation surface exposed over HTTP.
type NotesController interface {
	Current() presentation.State
	SearchChanged(query string)
	Add(message string, isPinned bool, deletedAt *int64)
	Update(id int64, message string, isPinned bool, deletedAt *int64)
	Delete(id int64)
	Purge(id int64)
	TogglePin(id int64)
	Export(ctx context.Context) (string, error)
	Import(ctx context.Context, path string) error
}

type Dependencies struct {
	TokenManager      TokenValidator
	Controller        NotesController
	Dispatcher        *StateDispatcher
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Controller == nil {
		return nil, errMissingController
	}
	if deps.Dispatcher == nil {
		return nil, errMissingDispatcher
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		tokens:     deps.TokenManager,
		controller: deps.Controller,
		dispatcher: deps.Dispatcher,
		heartbeat:  heartbeat,
		logger:     logger,
	}

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/notes", handler.handleListNotes)
	protected.GET("/notes/stream", handler.handleNotesStream)
	protected.POST("/notes", handler.handleAddNote)
	protected.PATCH("/notes/:id", handler.handleUpdateNote)
	protected.DELETE("/notes/:id", handler.handleDeleteNote)
	protected.DELETE("/notes/:id/purge", handler.handlePurgeNote)
	protected.POST("/notes/:id/pin", handler.handleTogglePin)
	protected.PUT("/search", handler.handleSearch)
	protected.POST("/export", handler.handleExport)
	protected.POST("/import", handler.handleImport)

	return router, nil
}

// corsMiddleware admits the configured UI origins. With none configured every cross-origin
// request is refused; same-origin and non-browser clients are unaffected.
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Last-Event-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	origins := make([]string, 0, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		config.AllowOriginFunc = func(string) bool { return false }
	} else {
		config.AllowOrigins = origins
	}
	return cors.New(config)
}

type httpHandler struct {
	tokens     TokenValidator
	controller NotesController
	dispatcher *StateDispatcher
	heartbeat  time.Duration
	logger     *zap.Logger
}

type notePayload struct {
	Message   *string `json:"message"`
	IsPinned  bool    `json:"isPinned"`
	DeletedAt *int64  `json:"deletedAt"`
}

type searchPayload struct {
	Query string `json:"query"`
}

type importPayload struct {
	Path string `json:"path"`
}

type streamPayload struct {
	Source    string             `json:"source"`
	State     presentation.State `json:"state"`
	Timestamp int64              `json:"timestamp"`
}

func (h *httpHandler) handleListNotes(c *gin.Context) {
	c.JSON(http.StatusOK, h.controller.Current())
}

func (h *httpHandler) handleNotesStream(c *gin.Context) {
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	stream, unsubscribe := h.dispatcher.Subscribe(ctx)
	defer unsubscribe()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	c.SSEvent(RealtimeEventNotes, newStreamPayload(h.controller.Current(), time.Now().UTC()))
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, newStreamPayload(message.State, message.Timestamp))
			return true
		case tick := <-ticker.C:
			if _, err := fmt.Fprintf(w, ": %s %d\n\n", realtimeEventHeartbeat, tick.UTC().Unix()); err != nil {
				h.logger.Debug("stream heartbeat failed", zap.Error(err))
				return false
			}
			return true
		}
	})
}

func (h *httpHandler) handleAddNote(c *gin.Context) {
	var request notePayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Message == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	deletedAt, err := notes.ValidateDeletedAt(request.DeletedAt)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_deleted_at"})
		return
	}
	h.controller.Add(*request.Message, request.IsPinned, deletedAt)
	c.Status(http.StatusAccepted)
}

func (h *httpHandler) handleUpdateNote(c *gin.Context) {
	id, ok := h.noteID(c)
	if !ok {
		return
	}
	var request notePayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Message == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	deletedAt, err := notes.ValidateDeletedAt(request.DeletedAt)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_deleted_at"})
		return
	}
	h.controller.Update(id, *request.Message, request.IsPinned, deletedAt)
	c.Status(http.StatusAccepted)
}

func (h *httpHandler) handleDeleteNote(c *gin.Context) {
	id, ok := h.noteID(c)
	if !ok {
		return
	}
	h.controller.Delete(id)
	c.Status(http.StatusAccepted)
}

func (h *httpHandler) handlePurgeNote(c *gin.Context) {
	id, ok := h.noteID(c)
	if !ok {
		return
	}
	h.controller.Purge(id)
	c.Status(http.StatusAccepted)
}

func (h *httpHandler) handleTogglePin(c *gin.Context) {
	id, ok := h.noteID(c)
	if !ok {
		return
	}
	h.controller.TogglePin(id)
	c.Status(http.StatusAccepted)
}

func (h *httpHandler) handleSearch(c *gin.Context) {
	var request searchPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	h.controller.SearchChanged(request.Query)
	c.Status(http.StatusAccepted)
}

func (h *httpHandler) handleExport(c *gin.Context) {
	path, err := h.controller.Export(c.Request.Context())
	if err != nil {
		h.logger.Error("export failed", zap.Error(err))
		c.JSON(statusForFailure(err), gin.H{"error": "export_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": path})
}

func (h *httpHandler) handleImport(c *gin.Context) {
	var request importPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Path) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.controller.Import(c.Request.Context(), request.Path); err != nil {
		h.logger.Error("import failed", zap.String("path", request.Path), zap.Error(err))
		c.JSON(statusForFailure(err), gin.H{"error": "import_failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) noteID(c *gin.Context) (int64, bool) {
	id, err := notes.ParseNoteID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_note_id"})
		return 0, false
	}
	return id, true
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(subjectContextKey, subject)
	c.Next()
}

// bearerToken reads the Authorization header, falling back to the access_token query
// parameter for EventSource clients that cannot set headers.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		if !strings.HasPrefix(header, "Bearer ") {
			return ""
		}
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return strings.TrimSpace(c.Query(accessTokenQueryKey))
}

func statusForFailure(err error) int {
	kind, ok := failure.KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case failure.KindSerialization, failure.KindEncryption:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func newStreamPayload(state presentation.State, timestamp time.Time) streamPayload {
	return streamPayload{
		Source:    realtimeSourceBackend,
		State:     state,
		Timestamp: timestamp.UnixMilli(),
	}
}
