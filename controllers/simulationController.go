package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"idprivacy/models"
	"idprivacy/operations"
	"idprivacy/simulation"
	"idprivacy/store"
)

const defaultWalletCount = 10

// SimulationController drives simulated users and manages their wallets.
type SimulationController struct {
	Simulator *simulation.Simulator
}

func NewSimulationController(s *simulation.Simulator) *SimulationController {
	return &SimulationController{Simulator: s}
}

// SingleUser creates the account for a secret, registers it in privacy
// mode and deploys a UserData contract.
func (ctrl *SimulationController) SingleUser(c *gin.Context) {
	var req models.SimulateUserRequest
	if !bindJSON(c, &req) {
		return
	}
	mode, err := operations.ParseMode(req.Mode)
	if err != nil {
		respondError(c, err)
		return
	}
	res, err := ctrl.Simulator.SimulateUser(c.Request.Context(), req.Secret, mode)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "result": res})
}

// MultipleUsers runs the listed wallets one after another.
func (ctrl *SimulationController) MultipleUsers(c *gin.Context) {
	var req models.SimulateWalletsRequest
	if !bindJSON(c, &req) {
		return
	}
	mode, err := operations.ParseMode(req.Mode)
	if err != nil {
		respondError(c, err)
		return
	}
	results, err := ctrl.Simulator.SimulateStored(c.Request.Context(), req.Wallets, mode)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "results": results})
}

// ListWallets returns the stored wallets without their keys.
func (ctrl *SimulationController) ListWallets(c *gin.Context) {
	all, err := ctrl.Simulator.Wallets.All(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, redacted(all))
}

// PrepareWallets generates wallets, assigns secrets and optionally funds
// them.
func (ctrl *SimulationController) PrepareWallets(c *gin.Context) {
	var req models.PrepareWalletsRequest
	if !bindJSON(c, &req) {
		return
	}
	opts := simulation.PrepareOptions{Count: req.Count, Secrets: true, Fund: req.FundAmount.Big()}
	if opts.Count == 0 {
		opts.Count = defaultWalletCount
	}
	if req.GenerateSecret != nil {
		opts.Secrets = *req.GenerateSecret
	}
	all, err := ctrl.Simulator.PrepareWallets(c.Request.Context(), opts)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, redacted(all))
}

// FundWallets sends the same amount to every stored wallet.
func (ctrl *SimulationController) FundWallets(c *gin.Context) {
	var req models.FundWalletsRequest
	if !bindJSON(c, &req) {
		return
	}
	funded, err := ctrl.Simulator.Fund(c.Request.Context(), req.Amount.Big())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, funded)
}

func redacted(wallets []store.Wallet) []store.Wallet {
	for i := range wallets {
		wallets[i].PrivateKey = ""
	}
	return wallets
}
