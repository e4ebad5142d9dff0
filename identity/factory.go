package identity

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"

	"idprivacy/chain"
	"idprivacy/contracts"
	"idprivacy/errs"
)

// DefaultSalt is the factory salt used when none is given.
var DefaultSalt = big.NewInt(1)

// CreateOptions tune CreateSmartAccount. A nil Salt means DefaultSalt.
type CreateOptions struct {
	Salt    *big.Int
	CountID uint64
	Force   bool
}

// SmartAccount is the result of CreateSmartAccount.
type SmartAccount struct {
	Address    common.Address `json:"address"`
	Commitment *big.Int       `json:"commitment"`
	Deployed   bool           `json:"deployed"`
	TxHash     *common.Hash   `json:"txHash,omitempty"`
}

// AccountFactory predicts and deploys commitment-controlled accounts.
type AccountFactory struct {
	address  common.Address
	backend  chain.Backend
	tx       *chain.Transactor
	contract *bind.BoundContract
}

// NewAccountFactory binds the factory at address. tx may be nil when only
// addresses are predicted.
func NewAccountFactory(address common.Address, backend chain.Backend, tx *chain.Transactor) *AccountFactory {
	return &AccountFactory{
		address:  address,
		backend:  backend,
		tx:       tx,
		contract: bind.NewBoundContract(address, contracts.Factory, backend, backend, backend),
	}
}

// GetSender is the counterfactual account address for (commitment, salt).
func (f *AccountFactory) GetSender(ctx context.Context, commitment, salt *big.Int) (common.Address, error) {
	if salt == nil {
		salt = DefaultSalt
	}
	var out []interface{}
	if err := f.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getSender", commitment, salt); err != nil {
		return common.Address{}, errors.Wrap(err, "getSender")
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// CreateSmartAccount deploys the account controlled by the commitment of
// (secret, CountID). An account whose code already exists is left alone
// unless Force is set.
func (f *AccountFactory) CreateSmartAccount(ctx context.Context, secret string, opts CreateOptions) (SmartAccount, error) {
	salt := opts.Salt
	if salt == nil {
		salt = DefaultSalt
	}
	commitment, err := ComputeCommitment(secret, opts.CountID)
	if err != nil {
		return SmartAccount{}, err
	}
	predicted, err := f.GetSender(ctx, commitment, salt)
	if err != nil {
		return SmartAccount{}, err
	}
	res := SmartAccount{Address: predicted, Commitment: commitment}

	code, err := f.backend.CodeAt(ctx, predicted, nil)
	if err != nil {
		return SmartAccount{}, errors.Wrap(err, "account code")
	}
	if len(code) > 0 && !opts.Force {
		log.Info("Smart account already deployed", "address", predicted)
		return res, nil
	}
	if f.tx == nil {
		return SmartAccount{}, errs.Ef(errs.Unavailable, "identity.CreateSmartAccount", "account factory has no signer")
	}
	input, err := contracts.Factory.Pack("createAccount", commitment, salt)
	if err != nil {
		return SmartAccount{}, err
	}
	receipt, err := f.tx.SendAndWait(ctx, f.address, nil, input)
	if err != nil {
		return SmartAccount{}, err
	}
	res.Deployed = true
	res.TxHash = &receipt.TxHash
	log.Info("Smart account created", "address", predicted, "tx", receipt.TxHash)
	return res, nil
}
