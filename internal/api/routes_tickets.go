package api

import (
	"github.com/gin-gonic/gin"

	"github.com/gatewarden/gatewarden/internal/handlers"
)

func registerTicketRoutes(api *gin.RouterGroup, svcs Services) error {
	ticketHandler, err := handlers.NewTicketHandler(svcs.Tickets)
	if err != nil {
		return err
	}
	reconcileHandler, err := handlers.NewReconcileHandler(svcs.Reconciler)
	if err != nil {
		return err
	}

	api.GET("/guilds/:guildID/tickets", ticketHandler.List)
	api.POST("/tickets/:ticketID/close", ticketHandler.Close)
	api.POST("/guilds/:guildID/reconcile", reconcileHandler.Run)

	return nil
}
