package controllers

import (
	"context"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"idprivacy/chain"
	"idprivacy/contracts"
	"idprivacy/errs"
	"idprivacy/models"
)

// DepositController funds the verifying paymaster's entry point deposit.
type DepositController struct {
	Paymaster common.Address
	Tx        *chain.Transactor
	contract  *bind.BoundContract
}

func NewDepositController(paymaster common.Address, backend chain.Backend, tx *chain.Transactor) *DepositController {
	return &DepositController{
		Paymaster: paymaster,
		Tx:        tx,
		contract:  bind.NewBoundContract(paymaster, contracts.Paymaster, backend, backend, backend),
	}
}

func (ctrl *DepositController) deposit(ctx context.Context) (*big.Int, error) {
	var out []interface{}
	if err := ctrl.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getDeposit"); err != nil {
		return nil, errors.Wrap(err, "getDeposit")
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// GetDeposit reports the paymaster's current deposit in wei.
func (ctrl *DepositController) GetDeposit(c *gin.Context) {
	amount, err := ctrl.deposit(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.DepositResponse{Paymaster: ctrl.Paymaster, Deposit: amount.String()})
}

// Deposit sends amount wei to the paymaster's deposit() from the service
// key and waits for it to be mined.
func (ctrl *DepositController) Deposit(c *gin.Context) {
	var req models.DepositRequest
	if !bindJSON(c, &req) {
		return
	}
	amount := req.Amount.Big()
	if amount.Sign() == 0 {
		respondError(c, errs.Ef(errs.Validation, "controllers.Deposit", "amount must be positive"))
		return
	}
	if ctrl.Tx == nil {
		respondError(c, errs.Ef(errs.Unavailable, "controllers.Deposit", "no signer configured"))
		return
	}
	ctx := c.Request.Context()
	input, err := contracts.Paymaster.Pack("deposit")
	if err != nil {
		respondError(c, err)
		return
	}
	receipt, err := ctrl.Tx.SendAndWait(ctx, ctrl.Paymaster, amount, input)
	if err != nil {
		respondError(c, err)
		return
	}
	total, err := ctrl.deposit(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.DepositResponse{Paymaster: ctrl.Paymaster, Deposit: total.String(), TxHash: &receipt.TxHash})
}
