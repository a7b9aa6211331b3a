package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"repair-agent/internal/agent"
	"repair-agent/internal/domain"
	"repair-agent/internal/logging"
	"repair-agent/internal/usecase"
	"repair-agent/internal/wire"
)

const maxRequestBody = 1 << 20

// Handler exposes the chat streaming HTTP surface.
type Handler struct {
	service  *usecase.ChatService
	registry *agent.Registry
	logger   logging.Logger
}

type streamRequest struct {
	Messages  []domain.IncomingMessage `json:"messages"`
	SessionID string                   `json:"sessionId"`
	UserID    string                   `json:"userId"`
}

// NewHandler creates the HTTP handler.
func NewHandler(service *usecase.ChatService, registry *agent.Registry, logger logging.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("handler: service must not be nil")
	}
	if registry == nil {
		return nil, errors.New("handler: registry must not be nil")
	}
	if logger == nil {
		return nil, errors.New("handler: logger must not be nil")
	}
	return &Handler{service: service, registry: registry, logger: logger}, nil
}

// RegisterRoutes wires the chat routes onto the router.
func RegisterRoutes(router gin.IRoutes, h *Handler) {
	router.POST("/api/agents/:agentId/stream", h.StreamAgent)
	router.GET("/api/agents/:agentId/stream", h.StreamMethodNotAllowed)
	router.GET("/health", h.Health)
}

// StreamAgent handles one chat exchange and writes the streaming wire
// protocol. Once headers are flushed the HTTP status is committed, so every
// later failure degrades inside the protocol instead of changing it.
func (h *Handler) StreamAgent(c *gin.Context) {
	started := time.Now()
	agentID := c.Param("agentId")

	var req streamRequest
	if body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRequestBody)); err == nil {
		// Unparseable bodies fail open to an empty message list; the
		// normalizer and the agent both tolerate that.
		if err := json.Unmarshal(body, &req); err != nil {
			h.logger.WithError(err).Debug("Unparseable request body, continuing with empty messages")
			req = streamRequest{}
		}
	}

	sess := h.resolveSession(c, req)
	c.Header("X-Session-ID", sess.SessionID)
	if sess.UserID != "" {
		c.Header("X-User-ID", sess.UserID)
	}

	ag, err := h.service.Resolve(agentID)
	if err != nil {
		h.writeError(c, err)
		streamRequestsTotal.WithLabelValues(agentID, "rejected").Inc()
		return
	}

	wire.PrepareHeaders(c.Writer)

	in := usecase.StreamInput{Messages: req.Messages, Session: sess}
	result := h.service.Run(c.Request.Context(), ag, in)

	enc := wire.NewEncoder(c.Writer)
	enc.WriteMessageID(wire.NewMessageID())
	enc.WriteText(result.Text)
	enc.WriteFinish(result.Usage)
	enc.WriteDone(result.Usage)

	// Finalization must survive a client disconnect.
	h.service.Finalize(context.WithoutCancel(c.Request.Context()), in, result)

	status := "ok"
	if result.Degraded {
		status = "degraded"
	}
	streamRequestsTotal.WithLabelValues(ag.ID, status).Inc()
	streamDuration.Observe(time.Since(started).Seconds())
	llmTokensTotal.WithLabelValues("input").Add(float64(result.Usage.PromptTokens))
	llmTokensTotal.WithLabelValues("output").Add(float64(result.Usage.CompletionTokens))
}

// StreamMethodNotAllowed rejects GETs on the stream route.
func (h *Handler) StreamMethodNotAllowed(c *gin.Context) {
	c.JSON(http.StatusMethodNotAllowed, gin.H{
		"error":   "Method Not Allowed",
		"message": "Use POST with a JSON body to stream agent responses",
	})
}

// Health reports liveness and the number of registered agents.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "repair-agent",
		"agents":  h.registry.Len(),
	})
}

// resolveSession picks the session id from the header, then the body, then
// generates a fresh one. It always succeeds.
func (h *Handler) resolveSession(c *gin.Context, req streamRequest) domain.StreamSession {
	sessionID := c.GetHeader("X-Session-ID")
	if sessionID == "" {
		sessionID = req.SessionID
	}
	if sessionID == "" {
		sessionID = usecase.NewSessionID()
	}
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		userID = req.UserID
	}
	return domain.StreamSession{
		SessionID: sessionID,
		UserID:    userID,
		StartedAt: time.Now().UTC(),
	}
}

func (h *Handler) writeError(c *gin.Context, err error) {
	var ucErr *usecase.Error
	if errors.As(err, &ucErr) {
		switch ucErr.Code {
		case usecase.ErrorAgentNotFound:
			// The frontend SDK treats any non-200 as terminal; the original
			// surface reports unknown agents as a server-side 500.
			c.JSON(http.StatusInternalServerError, gin.H{"error": "agent not found"})
			return
		case usecase.ErrorInvalidInput:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
	}
	h.logger.WithError(err).Error("Stream request failed before headers were sent")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
