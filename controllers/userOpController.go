package controllers

import (
	"context"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/gin-gonic/gin"

	"idprivacy/chain"
	"idprivacy/contracts"
	"idprivacy/errs"
	"idprivacy/models"
	"idprivacy/poll"
	"idprivacy/submission"
	"idprivacy/userop"
)

// ChainReader is the node side the operation endpoints need.
type ChainReader interface {
	submission.ReceiptReader
	ChainID(ctx context.Context) (*big.Int, error)
}

// UserOpController relays raw user operations, reports their progress and
// exposes the codec.
type UserOpController struct {
	Relay      submission.Relay
	Chain      ChainReader
	EntryPoint common.Address
	Policy     poll.Policy
	// Tx submits handleOps directly when no bundler should be involved.
	Tx *chain.Transactor
}

func NewUserOpController(relay submission.Relay, c ChainReader, entryPoint common.Address, tx *chain.Transactor) *UserOpController {
	return &UserOpController{Relay: relay, Chain: c, EntryPoint: entryPoint, Policy: poll.Default(), Tx: tx}
}

// SendUserOp forwards a user operation to the bundler. Unspecified fields
// take the codec defaults.
func (ctrl *UserOpController) SendUserOp(c *gin.Context) {
	var req models.SendUserOpRequest
	if !bindJSON(c, &req) {
		return
	}
	op := userop.FillDefaults(req.UserOp, userop.Defaults())
	hash, err := ctrl.Relay.SendUserOperation(c.Request.Context(), op)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SendUserOpResponse{UserOpHash: hash})
}

func (ctrl *UserOpController) policy(req models.StatusRequest) poll.Policy {
	p := ctrl.Policy
	if req.MaxAttempts > 0 {
		p.MaxAttempts = req.MaxAttempts
	}
	if req.DelayMs != 0 {
		p.Delay = time.Duration(req.DelayMs) * time.Millisecond
	}
	return p
}

// UserOpStatus waits for the bundler to include an operation and returns
// the bundle transaction hash.
func (ctrl *UserOpController) UserOpStatus(c *gin.Context) {
	var req models.StatusRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.UserOpHash == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userOpHash is required"})
		return
	}
	tx, err := submission.WaitPacked(c.Request.Context(), ctrl.Relay, *req.UserOpHash, ctrl.policy(req))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"txHash": tx})
}

// TransactionStatus waits for a transaction receipt. The body is null when
// the transaction is still unmined after the last attempt.
func (ctrl *UserOpController) TransactionStatus(c *gin.Context) {
	var req models.StatusRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.TxHash == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "txHash is required"})
		return
	}
	p := ctrl.policy(req)
	receipt, err := submission.WaitMined(c.Request.Context(), ctrl.Chain, *req.TxHash, p)
	if err != nil {
		respondError(c, err)
		return
	}
	if receipt == nil {
		log.Debug("Transaction not mined yet", "tx", req.TxHash, "attempts", p.WithDefaults().MaxAttempts)
	}
	// a receipt still pending after every attempt is reported as null
	c.JSON(http.StatusOK, receipt)
}

// UserOpHash computes the operation hash for an entry point and chain,
// defaulting to the configured ones.
func (ctrl *UserOpController) UserOpHash(c *gin.Context) {
	var req models.UserOpHashRequest
	if !bindJSON(c, &req) {
		return
	}
	entryPoint := ctrl.EntryPoint
	if req.EntryPointAddress != nil {
		entryPoint = *req.EntryPointAddress
	}
	chainID := req.ChainID.Big()
	if chainID == nil {
		var err error
		if chainID, err = ctrl.Chain.ChainID(c.Request.Context()); err != nil {
			respondError(c, err)
			return
		}
	}
	hash, err := userop.Hash(userop.FillDefaults(req.UserOp, userop.Defaults()), entryPoint, chainID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.UserOpHashResponse{UserOpHash: hash})
}

// PackUserOp returns the wire form of an operation.
func (ctrl *UserOpController) PackUserOp(c *gin.Context) {
	var req models.SendUserOpRequest
	if !bindJSON(c, &req) {
		return
	}
	packed, err := userop.Pack(userop.FillDefaults(req.UserOp, userop.Defaults()))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.FromPacked(packed))
}

// StoreUserOp takes an already packed operation and submits it to the
// entry point's handleOps from the service key, bypassing the bundler.
// The service account is the beneficiary.
func (ctrl *UserOpController) StoreUserOp(c *gin.Context) {
	var body models.PackedUserOperation
	if !bindJSON(c, &body) {
		return
	}
	packed, err := body.Decode()
	if err != nil {
		respondError(c, err)
		return
	}
	if ctrl.Tx == nil {
		respondError(c, errs.Ef(errs.Unavailable, "controllers.StoreUserOp", "no signer configured"))
		return
	}
	txHash, err := ctrl.processAndSendUserOp(c.Request.Context(), packed)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "UserOp received and sent", "transactionHash": txHash})
}

func (ctrl *UserOpController) processAndSendUserOp(ctx context.Context, packed userop.PackedUserOperation) (common.Hash, error) {
	data, err := contracts.EntryPoint.Pack("handleOps", []userop.PackedUserOperation{packed}, ctrl.Tx.From())
	if err != nil {
		return common.Hash{}, errs.E(errs.Validation, "controllers.handleOps", err)
	}
	entryPoint := ctrl.EntryPoint
	tx, err := ctrl.Tx.Send(ctx, &entryPoint, nil, data)
	if err != nil {
		return common.Hash{}, err
	}
	log.Info("Submitted handleOps", "sender", packed.Sender, "nonce", packed.Nonce, "tx", tx.Hash())
	return tx.Hash(), nil
}
