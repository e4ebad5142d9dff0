package routes

import (
	"github.com/gin-gonic/gin"

	"idprivacy/controllers"
)

// SetupUserOpRouter mounts the raw operation endpoints under
// /api/operations.
func SetupUserOpRouter(r *gin.Engine, userOpController *controllers.UserOpController) {
	g := r.Group("/api/operations")
	g.POST("/send-user-op", userOpController.SendUserOp)
	g.POST("/user-op-status", userOpController.UserOpStatus)
	g.POST("/transaction-status", userOpController.TransactionStatus)
	g.POST("/user-op-hash", userOpController.UserOpHash)
	g.POST("/pack-user-op", userOpController.PackUserOp)
	g.POST("/handle-ops", userOpController.StoreUserOp)
}
