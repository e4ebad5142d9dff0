package userop

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"idprivacy/errs"
)

// RPCOperation is the v0.7 JSON shape bundlers accept in
// eth_sendUserOperation: init code split into factory and factory data,
// paymaster fields omitted when there is no sponsor.
type RPCOperation struct {
	Sender                        common.Address  `json:"sender"`
	Nonce                         *hexutil.Big    `json:"nonce"`
	Factory                       *common.Address `json:"factory,omitempty"`
	FactoryData                   hexutil.Bytes   `json:"factoryData,omitempty"`
	CallData                      hexutil.Bytes   `json:"callData"`
	CallGasLimit                  *hexutil.Big    `json:"callGasLimit"`
	VerificationGasLimit          *hexutil.Big    `json:"verificationGasLimit"`
	PreVerificationGas            *hexutil.Big    `json:"preVerificationGas"`
	MaxFeePerGas                  *hexutil.Big    `json:"maxFeePerGas"`
	MaxPriorityFeePerGas          *hexutil.Big    `json:"maxPriorityFeePerGas"`
	Paymaster                     *common.Address `json:"paymaster,omitempty"`
	PaymasterVerificationGasLimit *hexutil.Big    `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       *hexutil.Big    `json:"paymasterPostOpGasLimit,omitempty"`
	PaymasterData                 hexutil.Bytes   `json:"paymasterData,omitempty"`
	Signature                     hexutil.Bytes   `json:"signature"`
}

func hexBig(v *big.Int) *hexutil.Big {
	if v == nil {
		return (*hexutil.Big)(new(big.Int))
	}
	return (*hexutil.Big)(new(big.Int).Set(v))
}

func fromHexBig(v *hexutil.Big) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v.ToInt())
}

// ToRPC converts op to the bundler JSON form.
func ToRPC(op UserOperation) (RPCOperation, error) {
	factory, factoryData, err := SplitInitCode(op.InitCode)
	if err != nil {
		return RPCOperation{}, err
	}
	if op.Nonce == nil {
		return RPCOperation{}, errs.Ef(errs.Validation, "userop.ToRPC", "nonce is not set")
	}
	r := RPCOperation{
		Sender:               op.Sender,
		Nonce:                hexBig(op.Nonce),
		Factory:              factory,
		FactoryData:          factoryData,
		CallData:             nonNil(op.CallData),
		CallGasLimit:         hexBig(op.CallGasLimit),
		VerificationGasLimit: hexBig(op.VerificationGasLimit),
		PreVerificationGas:   hexBig(op.PreVerificationGas),
		MaxFeePerGas:         hexBig(op.MaxFeePerGas),
		MaxPriorityFeePerGas: hexBig(op.MaxPriorityFeePerGas),
		Signature:            nonNil(op.Signature),
	}
	if op.HasPaymaster() {
		pm := op.Paymaster
		r.Paymaster = &pm
		r.PaymasterVerificationGasLimit = hexBig(op.PaymasterVerificationGasLimit)
		r.PaymasterPostOpGasLimit = hexBig(op.PaymasterPostOpGasLimit)
		r.PaymasterData = nonNil(op.PaymasterData)
	}
	return r, nil
}

// FromRPC converts the bundler JSON form back to an operation.
func FromRPC(r RPCOperation) UserOperation {
	op := UserOperation{
		Sender:               r.Sender,
		Nonce:                fromHexBig(r.Nonce),
		CallData:             nonNil(r.CallData),
		CallGasLimit:         fromHexBig(r.CallGasLimit),
		VerificationGasLimit: fromHexBig(r.VerificationGasLimit),
		PreVerificationGas:   fromHexBig(r.PreVerificationGas),
		MaxFeePerGas:         fromHexBig(r.MaxFeePerGas),
		MaxPriorityFeePerGas: fromHexBig(r.MaxPriorityFeePerGas),
		PaymasterData:        nonNil(r.PaymasterData),
		Signature:            nonNil(r.Signature),
		InitCode:             []byte{},
	}
	if r.Factory != nil {
		op.InitCode = append(r.Factory.Bytes(), r.FactoryData...)
	}
	if r.Paymaster != nil {
		op.Paymaster = *r.Paymaster
	}
	op.PaymasterVerificationGasLimit = fromHexBig(r.PaymasterVerificationGasLimit)
	op.PaymasterPostOpGasLimit = fromHexBig(r.PaymasterPostOpGasLimit)
	return op
}
