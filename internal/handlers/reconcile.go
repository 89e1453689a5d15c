package handlers

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gatewarden/gatewarden/internal/services"
	"github.com/gatewarden/gatewarden/pkg/response"
)

type ReconcileHandler struct {
	svc *services.ReconcilerService
}

func NewReconcileHandler(svc *services.ReconcilerService) (*ReconcileHandler, error) {
	if svc == nil {
		return nil, stderrors.New("reconciler service must be provided")
	}
	return &ReconcileHandler{svc: svc}, nil
}

// POST /api/guilds/:guildID/reconcile
func (h *ReconcileHandler) Run(c *gin.Context) {
	counts, err := h.svc.ReconcileGuild(requestContext(c), c.Param("guildID"))
	if err != nil {
		// Partial repairs still happened; report the counts alongside.
		response.Success(c, http.StatusOK, gin.H{
			"counts": counts,
			"error":  err.Error(),
		})
		return
	}

	response.Success(c, http.StatusOK, gin.H{"counts": counts})
}
