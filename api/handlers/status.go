package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oro-os/backend/internal/model"
)

// Roster is the read side of the hub used by the status endpoints.
type Roster interface {
	Count() int
	Participants() []model.Participant
}

// StatusHandler serves the health and participant endpoints.
type StatusHandler struct {
	roster Roster
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(roster Roster) *StatusHandler {
	return &StatusHandler{roster: roster}
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status                 string `json:"status"`
	ActiveParticipantCount int    `json:"activeParticipantCount"`
}

// ParticipantsResponse is the body of GET /api/users.
type ParticipantsResponse struct {
	Count        int                 `json:"count"`
	Participants []model.Participant `json:"participants"`
}

// Health handles GET /api/health.
func (h *StatusHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:                 "OK",
		ActiveParticipantCount: h.roster.Count(),
	})
}

// Participants handles GET /api/users.
func (h *StatusHandler) Participants(c *gin.Context) {
	participants := h.roster.Participants()
	if participants == nil {
		participants = []model.Participant{}
	}
	c.JSON(http.StatusOK, ParticipantsResponse{
		Count:        len(participants),
		Participants: participants,
	})
}

// Liveness handles GET /health.
func (h *StatusHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// RegisterRoutes registers the status routes. Liveness is mounted by the
// router at the root.
func (h *StatusHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/health", h.Health)
	rg.GET("/users", h.Participants)
}
