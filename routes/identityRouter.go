package routes

import (
	"github.com/gin-gonic/gin"

	"idprivacy/controllers"
)

// SetupIdentityRouter mounts account, registration, proof and UserData
// endpoints under /api/identity.
func SetupIdentityRouter(r *gin.Engine, identityController *controllers.IdentityController) {
	g := r.Group("/api/identity")
	g.POST("/smart-accounts", identityController.CreateSmartAccount)
	g.POST("/leaf", identityController.Leaf)
	g.POST("/register", identityController.Register)
	g.POST("/proof", identityController.Proof)
	g.POST("/user-data/deploy", identityController.DeployUserData)
	g.POST("/user-data/update", identityController.UpdateUserData)
}
