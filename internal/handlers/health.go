package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/gatewarden/gatewarden/pkg/response"
)

// Health returns a simple status payload useful for readiness checks.
// When a database handle is provided the check includes a ping.
func Health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "ok"
		dbStatus := "ok"

		if db != nil {
			sqlDB, err := db.DB()
			if err == nil {
				ctx, cancel := context.WithTimeout(requestContext(c), 2*time.Second)
				defer cancel()
				err = sqlDB.PingContext(ctx)
			}
			if err != nil {
				status = "degraded"
				dbStatus = "unreachable"
			}
		}

		code := http.StatusOK
		if status != "ok" {
			code = http.StatusServiceUnavailable
		}
		response.Success(c, code, gin.H{"status": status, "database": dbStatus})
	}
}
