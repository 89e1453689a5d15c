package handlers

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gatewarden/gatewarden/internal/models"
	"github.com/gatewarden/gatewarden/internal/services"
	"github.com/gatewarden/gatewarden/pkg/errors"
	"github.com/gatewarden/gatewarden/pkg/response"
)

type ApplicationHandler struct {
	apps      *services.ApplicationService
	claims    *services.ClaimService
	decisions *services.DecisionService
}

func NewApplicationHandler(apps *services.ApplicationService, claims *services.ClaimService, decisions *services.DecisionService) (*ApplicationHandler, error) {
	if apps == nil || claims == nil || decisions == nil {
		return nil, stderrors.New("application, claim and decision services must be provided")
	}
	return &ApplicationHandler{apps: apps, claims: claims, decisions: decisions}, nil
}

// GET /api/applications/:appID
func (h *ApplicationHandler) Get(c *gin.Context) {
	app, err := h.apps.Get(requestContext(c), c.Param("appID"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, app)
}

// GET /api/guilds/:guildID/applications
func (h *ApplicationHandler) Pending(c *gin.Context) {
	apps, err := h.apps.Pending(requestContext(c), c.Param("guildID"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, apps)
}

type actorRequest struct {
	ActorID string `json:"actor_id" validate:"required"`
}

// POST /api/applications/:appID/claim
func (h *ApplicationHandler) Claim(c *gin.Context) {
	var req actorRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.claims.Claim(requestContext(c), c.Param("appID"), req.ActorID)
	if err != nil {
		response.Error(c, err)
		return
	}

	code := http.StatusOK
	if result.Status == services.ClaimStatusAlreadyClaimed {
		code = http.StatusConflict
	}
	response.Success(c, code, gin.H{
		"status":    result.Status,
		"holder_id": result.HolderID,
	})
}

// DELETE /api/applications/:appID/claim
func (h *ApplicationHandler) Unclaim(c *gin.Context) {
	var req actorRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.claims.Unclaim(requestContext(c), c.Param("appID"), req.ActorID)
	if err != nil {
		response.Error(c, err)
		return
	}

	code := http.StatusOK
	if result.Status == services.UnclaimStatusClaimedByOther {
		code = http.StatusConflict
	}
	response.Success(c, code, gin.H{
		"status":    result.Status,
		"holder_id": result.HolderID,
	})
}

type decisionRequest struct {
	ActorID  string `json:"actor_id" validate:"required"`
	Decision string `json:"decision" validate:"required"`
	Reason   string `json:"reason" validate:"max=512"`
}

// POST /api/applications/:appID/decision
func (h *ApplicationHandler) Decide(c *gin.Context) {
	var req decisionRequest
	if !bindAndValidate(c, &req) {
		return
	}

	decision := models.Decision(req.Decision)
	if !decision.Valid() {
		response.Error(c, errors.NewBadRequest("decision must be approve, reject, perm_reject or kick"))
		return
	}

	result, err := h.decisions.ApplyDecision(requestContext(c), services.ApplyDecisionInput{
		AppID:    c.Param("appID"),
		ActorID:  req.ActorID,
		Decision: decision,
		Reason:   req.Reason,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	code := http.StatusOK
	switch result.Status {
	case services.DecisionStatusNotFound:
		code = http.StatusNotFound
	case services.DecisionStatusClaimedByOther, services.DecisionStatusAlready:
		code = http.StatusConflict
	}
	response.Success(c, code, gin.H{
		"status":    result.Status,
		"action_id": result.ActionID,
		"holder_id": result.HolderID,
		"message":   result.Message,
	})
}
