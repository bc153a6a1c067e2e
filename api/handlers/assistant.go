package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oro-os/backend/internal/assistant"
	"github.com/oro-os/backend/internal/model"
)

// Replier answers assistant prompts.
type Replier interface {
	Reply(ctx context.Context, prompt string) (assistant.Reply, error)
}

// AssistantHandler serves the design assistant endpoint.
type AssistantHandler struct {
	replier Replier
}

// NewAssistantHandler creates a new AssistantHandler.
func NewAssistantHandler(replier Replier) *AssistantHandler {
	return &AssistantHandler{replier: replier}
}

// AssistantRequest is the body of POST /api/assistant/reply.
type AssistantRequest struct {
	Prompt string `json:"prompt"`
}

// Reply handles POST /api/assistant/reply.
func (h *AssistantHandler) Reply(c *gin.Context) {
	var req AssistantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}

	reply, err := h.replier.Reply(c.Request.Context(), req.Prompt)
	if err != nil {
		if errors.Is(err, model.ErrPromptRequired) {
			sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Prompt is required")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to generate reply: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, reply)
}

// RegisterRoutes registers the assistant route with optional extra
// middleware, e.g. rate limiting.
func (h *AssistantHandler) RegisterRoutes(rg *gin.RouterGroup, mw ...gin.HandlerFunc) {
	chain := append(mw, h.Reply)
	rg.POST("/assistant/reply", chain...)
}
