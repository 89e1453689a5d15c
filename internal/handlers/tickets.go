package handlers

import (
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gatewarden/gatewarden/internal/models"
	"github.com/gatewarden/gatewarden/internal/services"
	"github.com/gatewarden/gatewarden/pkg/errors"
	"github.com/gatewarden/gatewarden/pkg/response"
)

type TicketHandler struct {
	svc *services.TicketService
}

func NewTicketHandler(svc *services.TicketService) (*TicketHandler, error) {
	if svc == nil {
		return nil, stderrors.New("ticket service must be provided")
	}
	return &TicketHandler{svc: svc}, nil
}

// GET /api/guilds/:guildID/tickets
func (h *TicketHandler) List(c *gin.Context) {
	guildID := c.Param("guildID")

	var status models.TicketStatus
	switch strings.ToLower(c.DefaultQuery("status", "open")) {
	case "open":
		status = models.TicketStatusOpen
	case "closed":
		status = models.TicketStatusClosed
	case "all":
		status = ""
	default:
		response.Error(c, errors.NewBadRequest("status must be open, closed or all"))
		return
	}

	tickets, err := h.svc.List(requestContext(c), guildID, status)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, tickets)
}

type closeTicketRequest struct {
	ActorID string `json:"actor_id" validate:"required"`
	Reason  string `json:"reason" validate:"max=512"`
}

// POST /api/tickets/:ticketID/close
func (h *TicketHandler) Close(c *gin.Context) {
	var req closeTicketRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.svc.Close(requestContext(c), services.CloseTicketInput{
		TicketID: c.Param("ticketID"),
		ActorID:  req.ActorID,
		Reason:   req.Reason,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"status":  result.Status,
		"outcome": result.Outcome,
	})
}
