package routes

import (
	"github.com/gin-gonic/gin"

	"idprivacy/controllers"
)

// SetupSimulationRouter mounts the simulated user endpoints under
// /api/simulation.
func SetupSimulationRouter(r *gin.Engine, simulationController *controllers.SimulationController) {
	g := r.Group("/api/simulation")
	g.POST("/single-user", simulationController.SingleUser)
	g.POST("/multiple-users", simulationController.MultipleUsers)
	g.GET("/wallets", simulationController.ListWallets)
	g.POST("/wallets", simulationController.PrepareWallets)
	g.POST("/wallets/fund", simulationController.FundWallets)
}
