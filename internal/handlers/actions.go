package handlers

import (
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gatewarden/gatewarden/internal/services"
	"github.com/gatewarden/gatewarden/pkg/response"
)

type ActionHandler struct {
	svc *services.ReviewLogService
}

func NewActionHandler(svc *services.ReviewLogService) (*ActionHandler, error) {
	if svc == nil {
		return nil, stderrors.New("review log service must be provided")
	}
	return &ActionHandler{svc: svc}, nil
}

// GET /api/applications/:appID/actions
func (h *ActionHandler) ListForApplication(c *gin.Context) {
	h.list(c, services.ActionFilters{AppID: c.Param("appID")})
}

// GET /api/guilds/:guildID/actions
func (h *ActionHandler) ListForGuild(c *gin.Context) {
	h.list(c, services.ActionFilters{GuildID: c.Param("guildID")})
}

func (h *ActionHandler) list(c *gin.Context, filters services.ActionFilters) {
	page := parseIntQuery(c, "page", 1)
	per := parseIntQuery(c, "per_page", 50)

	filters.ActorID = c.Query("actor_id")
	filters.Action = c.Query("action")
	if s := c.Query("since"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			filters.Since = &t
		}
	}
	if u := c.Query("until"); u != "" {
		if t, err := time.Parse(time.RFC3339, u); err == nil {
			filters.Until = &t
		}
	}

	entries, total, err := h.svc.List(requestContext(c), services.ActionListOptions{
		Page:     page,
		PageSize: per,
		Filters:  filters,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, entries, &response.Meta{Page: page, PerPage: per, Total: int(total)})
}
