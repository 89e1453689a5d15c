package handlers

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gatewarden/gatewarden/internal/services"
	"github.com/gatewarden/gatewarden/pkg/response"
)

type SettingsHandler struct {
	svc *services.GuildSettingsService
}

func NewSettingsHandler(svc *services.GuildSettingsService) (*SettingsHandler, error) {
	if svc == nil {
		return nil, stderrors.New("guild settings service must be provided")
	}
	return &SettingsHandler{svc: svc}, nil
}

// GET /api/guilds/:guildID/settings
func (h *SettingsHandler) Get(c *gin.Context) {
	cfg, err := h.svc.Get(requestContext(c), c.Param("guildID"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, cfg)
}

type updateSettingsRequest struct {
	ModRoleIDs          []string `json:"mod_role_ids" validate:"max=25,dive,required"`
	TicketParentID      string   `json:"ticket_parent_id" validate:"max=32"`
	LogChannelID        string   `json:"log_channel_id" validate:"max=32"`
	DeleteOnClose       *bool    `json:"delete_on_close"`
	AutoCloseOnDecision *bool    `json:"auto_close_on_decision"`
}

// PUT /api/guilds/:guildID/settings
func (h *SettingsHandler) Update(c *gin.Context) {
	var req updateSettingsRequest
	if !bindAndValidate(c, &req) {
		return
	}

	cfg, err := h.svc.Upsert(requestContext(c), c.Param("guildID"), services.UpdateSettingsInput{
		ModRoleIDs:          req.ModRoleIDs,
		TicketParentID:      req.TicketParentID,
		LogChannelID:        req.LogChannelID,
		DeleteOnClose:       req.DeleteOnClose,
		AutoCloseOnDecision: req.AutoCloseOnDecision,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, cfg)
}
