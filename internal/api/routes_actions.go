package api

import (
	"github.com/gin-gonic/gin"

	"github.com/gatewarden/gatewarden/internal/handlers"
)

func registerActionRoutes(api *gin.RouterGroup, svcs Services) error {
	actionHandler, err := handlers.NewActionHandler(svcs.Actions)
	if err != nil {
		return err
	}

	api.GET("/applications/:appID/actions", actionHandler.ListForApplication)
	api.GET("/guilds/:guildID/actions", actionHandler.ListForGuild)

	return nil
}
