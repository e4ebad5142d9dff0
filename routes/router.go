// Package routes mounts the controllers on a gin engine.
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"idprivacy/controllers"
)

// SetupRouter mounts the health check.
func SetupRouter(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// SetupDepositRouter mounts the paymaster deposit endpoints.
func SetupDepositRouter(r *gin.Engine, depositController *controllers.DepositController) {
	g := r.Group("/api/paymaster")
	g.GET("/deposit", depositController.GetDeposit)
	g.POST("/deposit", depositController.Deposit)
}
