package controllers

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/gin-gonic/gin"

	"idprivacy/errs"
	"idprivacy/identity"
	"idprivacy/models"
	"idprivacy/operations"
	"idprivacy/zkp"
)

// IdentityController serves account creation, registration, proofs and
// the UserData flows.
type IdentityController struct {
	Factory    *identity.AccountFactory
	Registry   *identity.Registry
	Proofs     *zkp.Adapter
	Operations *operations.Service
}

func NewIdentityController(factory *identity.AccountFactory, registry *identity.Registry, proofs *zkp.Adapter, ops *operations.Service) *IdentityController {
	return &IdentityController{Factory: factory, Registry: registry, Proofs: proofs, Operations: ops}
}

// CreateSmartAccount deploys the account for a secret, or reports the
// existing one.
func (ctrl *IdentityController) CreateSmartAccount(c *gin.Context) {
	var req models.SmartAccountRequest
	if !bindJSON(c, &req) {
		return
	}
	account, err := ctrl.Factory.CreateSmartAccount(c.Request.Context(), req.Secret, identity.CreateOptions{
		Salt:    req.Salt.Big(),
		CountID: req.CountID,
		Force:   req.Force,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SmartAccountResponse{
		Address:    account.Address,
		Commitment: account.Commitment.String(),
		Deployed:   account.Deployed,
		TxHash:     account.TxHash,
	})
}

// Leaf computes the registration leaf of a credential without touching the
// chain.
func (ctrl *IdentityController) Leaf(c *gin.Context) {
	var req models.Credential
	if !bindJSON(c, &req) {
		return
	}
	leaf, err := identity.CalculateLeaf(req.Address, req.Secret, req.Nullifier.Big())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.LeafResponse{Leaf: leaf.String()})
}

// Register inserts the credential's leaf into the registry unless present.
func (ctrl *IdentityController) Register(c *gin.Context) {
	var req models.Credential
	if !bindJSON(c, &req) {
		return
	}
	reg, err := ctrl.Registry.Register(c.Request.Context(), req.Address, req.Secret, req.Nullifier.Big())
	if err != nil {
		respondError(c, err)
		return
	}
	resp := models.RegisterResponse{Leaf: reg.Leaf.String(), Index: reg.Index, AlreadyRegistered: reg.AlreadyRegistered}
	if !reg.AlreadyRegistered {
		resp.TxHash = &reg.TxHash
	}
	c.JSON(http.StatusOK, resp)
}

// Proof generates a membership proof over the registry's current leaves.
func (ctrl *IdentityController) Proof(c *gin.Context) {
	var req models.Credential
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	leaves, err := ctrl.Registry.Leaves(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	proof, err := ctrl.Proofs.GenerateMembershipProof(ctx, zkp.MembershipRequest{
		Address:   req.Address,
		Secret:    req.Secret,
		Nullifier: req.Nullifier.Big(),
		Leaves:    leaves,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	known, err := ctrl.Registry.IsKnownRoot(ctx, proof.Root)
	if err != nil {
		respondError(c, err)
		return
	}
	if !known {
		log.Warn("Proof root not known to the registry", "root", proof.Root, "leaves", len(leaves))
	}
	c.JSON(http.StatusOK, models.ProofResponse{
		Proof:         hexutil.Encode(proof.Encoded),
		Root:          proof.Root.String(),
		KnownRoot:     known,
		PublicSignals: proof.PublicSignals,
	})
}

// sponsored answers 503 unless sponsored operations can be sent.
func (ctrl *IdentityController) sponsored(c *gin.Context) bool {
	if ctrl.Operations == nil || !ctrl.Operations.Sponsored() {
		respondError(c, errs.Ef(errs.Unavailable, "controllers.UserData", "no sponsor key configured"))
		return false
	}
	return true
}

// DeployUserData deploys a UserData contract through the sender the mode
// selects.
func (ctrl *IdentityController) DeployUserData(c *gin.Context) {
	var req models.UserDataRequest
	if !bindJSON(c, &req) {
		return
	}
	mode, err := operations.ParseMode(req.Mode)
	if err != nil {
		respondError(c, err)
		return
	}
	if !ctrl.sponsored(c) {
		return
	}
	res, err := ctrl.Operations.DeployUserData(c.Request.Context(), mode, req.Identity(), req.Data)
	ctrl.respondResult(c, res, err)
}

// UpdateUserData replaces the data of a deployed UserData contract.
func (ctrl *IdentityController) UpdateUserData(c *gin.Context) {
	var req models.UserDataRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.UserData == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userData is required"})
		return
	}
	mode, err := operations.ParseMode(req.Mode)
	if err != nil {
		respondError(c, err)
		return
	}
	if !ctrl.sponsored(c) {
		return
	}
	res, err := ctrl.Operations.UpdateUserData(c.Request.Context(), mode, req.Identity(), *req.UserData, req.Data)
	ctrl.respondResult(c, res, err)
}

// respondResult reports a run. A run that reached the relay is reported
// with its submission even when it failed.
func (ctrl *IdentityController) respondResult(c *gin.Context, res *operations.Result, err error) {
	if res == nil || res.Submission == nil {
		respondError(c, err)
		return
	}
	body := models.FromResult(res)
	if err != nil {
		c.JSON(statusOf(err), body)
		return
	}
	c.JSON(http.StatusOK, body)
}
