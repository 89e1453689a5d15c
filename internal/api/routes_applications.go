package api

import (
	"github.com/gin-gonic/gin"

	"github.com/gatewarden/gatewarden/internal/handlers"
)

func registerApplicationRoutes(api *gin.RouterGroup, svcs Services) error {
	appHandler, err := handlers.NewApplicationHandler(svcs.Applications, svcs.Claims, svcs.Decisions)
	if err != nil {
		return err
	}

	api.GET("/applications/:appID", appHandler.Get)
	api.GET("/guilds/:guildID/applications", appHandler.Pending)
	api.POST("/applications/:appID/claim", appHandler.Claim)
	api.DELETE("/applications/:appID/claim", appHandler.Unclaim)
	api.POST("/applications/:appID/decision", appHandler.Decide)

	return nil
}
