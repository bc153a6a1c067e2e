package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/oro-os/backend/internal/ws"
)

// WebSocketHandler exposes the collaboration hub over WebSocket.
type WebSocketHandler struct {
	wsHandler *ws.Handler
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(wsHandler *ws.Handler) *WebSocketHandler {
	return &WebSocketHandler{wsHandler: wsHandler}
}

// Connect handles GET /ws. Upgrade and join failures are answered and logged
// by the ws package.
func (h *WebSocketHandler) Connect(c *gin.Context) {
	_ = h.wsHandler.HandleConnection(c.Writer, c.Request)
}

// RegisterRoutes registers the WebSocket route.
func (h *WebSocketHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/ws", h.Connect)
}
