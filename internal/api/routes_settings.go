package api

import (
	"github.com/gin-gonic/gin"

	"github.com/gatewarden/gatewarden/internal/handlers"
)

func registerSettingsRoutes(api *gin.RouterGroup, svcs Services) error {
	settingsHandler, err := handlers.NewSettingsHandler(svcs.Settings)
	if err != nil {
		return err
	}

	api.GET("/guilds/:guildID/settings", settingsHandler.Get)
	api.PUT("/guilds/:guildID/settings", settingsHandler.Update)

	return nil
}
