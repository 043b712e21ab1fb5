package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/saker-ai/assistant-bridge/internal/metrics"
	"github.com/saker-ai/assistant-bridge/internal/protocol"
	"github.com/saker-ai/assistant-bridge/internal/storage"
	"github.com/saker-ai/assistant-bridge/internal/turn"
	"github.com/saker-ai/assistant-bridge/internal/ws"
	"github.com/saker-ai/assistant-bridge/pkg/assistant"
)

// MaxTurnAudioBytes bounds the request body of a turn.
const MaxTurnAudioBytes = 16 << 20

var errAudioTooLarge = errors.New("turn audio exceeds size limit")

// Conversations is the service behind the API.
type Conversations interface {
	Start(ctx context.Context) (storage.Conversation, error)
	End(ctx context.Context, id string) error
	Converse(ctx context.Context, id string, audio io.Reader) (turn.Reply, error)
	AudioPath(name string) (string, error)
}

// NewRouter builds the HTTP API. wsHandler and m may be nil to disable live
// streaming and /metrics.
func NewRouter(svc Conversations, wsHandler *ws.Handler, m *metrics.Metrics, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	router := gin.New()
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, protocol.HealthResponse{Status: "ok"})
	})
	if m != nil {
		router.GET("/metrics", gin.WrapH(m.Handler()))
	}

	h := &handlers{svc: svc, logger: logger}
	v1 := router.Group("/v1")
	v1.POST("/conversations", h.startConversation)
	v1.POST("/conversations/:id/turns", h.converse)
	v1.DELETE("/conversations/:id", h.endConversation)
	v1.GET("/audio/:name", h.audio)
	if wsHandler != nil {
		v1.GET("/conversations/:id/stream", func(c *gin.Context) {
			wsHandler.Handle(c.Writer, c.Request, c.Param("id"))
		})
	}

	return router
}

type handlers struct {
	svc    Conversations
	logger *zap.Logger
}

func (h *handlers) startConversation(c *gin.Context) {
	conv, err := h.svc.Start(c.Request.Context())
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusCreated, protocol.ConversationResponse{
		ID:        conv.ID,
		Turns:     conv.Turns,
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
	})
}

func (h *handlers) converse(c *gin.Context) {
	if c.Request.ContentLength == 0 {
		h.fail(c, turn.ErrEmptyAudio, nil)
		return
	}
	if c.Request.ContentLength > MaxTurnAudioBytes {
		h.fail(c, errAudioTooLarge, nil)
		return
	}
	body := http.MaxBytesReader(c.Writer, c.Request.Body, MaxTurnAudioBytes)
	reply, err := h.svc.Converse(c.Request.Context(), c.Param("id"), body)
	if err != nil {
		if errors.Is(err, turn.ErrTurnFailed) {
			h.fail(c, err, reply)
			return
		}
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, reply)
}

func (h *handlers) endConversation(c *gin.Context) {
	if err := h.svc.End(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err, nil)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) audio(c *gin.Context) {
	name := c.Param("name")
	path, err := h.svc.AudioPath(name)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.Header("Content-Type", audioContentType(name))
	c.File(path)
}

func (h *handlers) fail(c *gin.Context, err error, reply any) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Warn("http request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, protocol.ErrorResponse{Error: err.Error(), Reply: reply})
}

func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, errAudioTooLarge), errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, turn.ErrAudioNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrInvalidID), errors.Is(err, turn.ErrEmptyAudio), errors.Is(err, turn.ErrIncompleteAudio):
		return http.StatusBadRequest
	case errors.Is(err, assistant.ErrSessionActive):
		return http.StatusConflict
	case errors.Is(err, turn.ErrTurnFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func audioContentType(name string) string {
	switch {
	case strings.HasSuffix(name, ".mp3"):
		return "audio/mpeg"
	case strings.HasSuffix(name, ".ogg"):
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("status", c.Writer.Status()),
			zap.Int("bytes", c.Writer.Size()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
