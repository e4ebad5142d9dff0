package userop

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"

	"idprivacy/contracts"
	"idprivacy/errs"
)

// ChainReader is what the filler reads chain state through.
type ChainReader interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// Filler completes partial operations from chain state.
type Filler struct {
	Chain      ChainReader
	EntryPoint common.Address
	Defaults   UserOperation
}

// NewFiller uses the package defaults.
func NewFiller(chain ChainReader, entryPoint common.Address) *Filler {
	return &Filler{Chain: chain, EntryPoint: entryPoint, Defaults: Defaults()}
}

// Fill resolves unspecified fields: the nonce from the account's getNonce(),
// the call gas limit by estimating callData as sent from the entry point,
// maxFeePerGas as the latest base fee plus the priority fee. Paymaster gas
// limits fall back to the defaults when a paymaster is set.
func (f *Filler) Fill(ctx context.Context, partial Fields) (UserOperation, error) {
	if partial.Sender == nil || *partial.Sender == (common.Address{}) {
		return UserOperation{}, errs.Ef(errs.Validation, "userop.Fill", "sender is required")
	}
	sender := *partial.Sender

	if partial.Nonce == nil {
		nonce, err := f.nonce(ctx, sender)
		if err != nil {
			return UserOperation{}, err
		}
		partial.Nonce = NewQuantity(nonce)
	}

	if partial.CallGasLimit == nil && partial.CallData != nil {
		data := []byte(*partial.CallData)
		gas, err := f.Chain.EstimateGas(ctx, ethereum.CallMsg{From: f.EntryPoint, To: &sender, Data: data})
		if err != nil {
			return UserOperation{}, errors.Wrap(err, "estimate call gas")
		}
		partial.CallGasLimit = NewQuantity(new(big.Int).SetUint64(gas))
	}

	if partial.Paymaster != nil && *partial.Paymaster != (common.Address{}) {
		if partial.PaymasterVerificationGasLimit == nil {
			partial.PaymasterVerificationGasLimit = NewQuantity(f.Defaults.PaymasterVerificationGasLimit)
		}
		if partial.PaymasterPostOpGasLimit == nil {
			partial.PaymasterPostOpGasLimit = NewQuantity(f.Defaults.PaymasterPostOpGasLimit)
		}
	}

	if partial.MaxPriorityFeePerGas == nil {
		partial.MaxPriorityFeePerGas = NewQuantity(f.Defaults.MaxPriorityFeePerGas)
	}
	if partial.MaxFeePerGas == nil {
		head, err := f.Chain.HeaderByNumber(ctx, nil)
		if err != nil {
			return UserOperation{}, errors.Wrap(err, "latest header")
		}
		baseFee := new(big.Int)
		if head.BaseFee != nil {
			baseFee.Set(head.BaseFee)
		}
		partial.MaxFeePerGas = NewQuantity(baseFee.Add(baseFee, partial.MaxPriorityFeePerGas.Big()))
	}
	return FillDefaults(partial, f.Defaults), nil
}

// FillOperation is Fill for an operation whose nil fields are unspecified.
func (f *Filler) FillOperation(ctx context.Context, op UserOperation) (UserOperation, error) {
	fields := FieldsOf(op)
	if op.CallData == nil {
		fields.CallData = nil
	}
	return f.Fill(ctx, fields)
}

func (f *Filler) nonce(ctx context.Context, sender common.Address) (*big.Int, error) {
	input, err := contracts.Account.Pack("getNonce")
	if err != nil {
		return nil, err
	}
	out, err := f.Chain.CallContract(ctx, ethereum.CallMsg{To: &sender, Data: input}, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "getNonce of %s", sender.Hex())
	}
	res, err := contracts.Account.Unpack("getNonce", out)
	if err != nil || len(res) == 0 {
		return nil, errors.Errorf("getNonce of %s returned %s", sender.Hex(), hexutil.Encode(out))
	}
	return res[0].(*big.Int), nil
}
