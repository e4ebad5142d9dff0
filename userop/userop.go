// Package userop is the bit-exact codec for ERC-4337 v0.7 user operations:
// packing into the PackedUserOperation wire form, the signature encoding and
// the entry point's domain separated operation hash. Everything here is pure.
package userop

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// UserOperation is the unpacked form callers build and fill.
type UserOperation struct {
	Sender                        common.Address
	Nonce                         *big.Int
	InitCode                      []byte
	CallData                      []byte
	CallGasLimit                  *big.Int
	VerificationGasLimit          *big.Int
	PreVerificationGas            *big.Int
	MaxFeePerGas                  *big.Int
	MaxPriorityFeePerGas          *big.Int
	Paymaster                     common.Address
	PaymasterVerificationGasLimit *big.Int
	PaymasterPostOpGasLimit       *big.Int
	PaymasterData                 []byte
	Signature                     []byte
}

// Defaults returns the default field values.
func Defaults() UserOperation {
	return UserOperation{
		Nonce:                         new(big.Int),
		InitCode:                      []byte{},
		CallData:                      []byte{},
		CallGasLimit:                  new(big.Int),
		VerificationGasLimit:          big.NewInt(150_000),
		PreVerificationGas:            big.NewInt(21_000),
		MaxFeePerGas:                  new(big.Int),
		MaxPriorityFeePerGas:          big.NewInt(1_000_000_000),
		PaymasterVerificationGasLimit: big.NewInt(300_000),
		PaymasterPostOpGasLimit:       new(big.Int),
		PaymasterData:                 []byte{},
		Signature:                     []byte{},
	}
}

// Fields is a partially specified operation. A nil field is unspecified;
// JSON null decodes to nil, so an explicit null also means unspecified.
type Fields struct {
	Sender                        *common.Address `json:"sender"`
	Nonce                         *Quantity       `json:"nonce"`
	InitCode                      *hexutil.Bytes  `json:"initCode"`
	CallData                      *hexutil.Bytes  `json:"callData"`
	CallGasLimit                  *Quantity       `json:"callGasLimit"`
	VerificationGasLimit          *Quantity       `json:"verificationGasLimit"`
	PreVerificationGas            *Quantity       `json:"preVerificationGas"`
	MaxFeePerGas                  *Quantity       `json:"maxFeePerGas"`
	MaxPriorityFeePerGas          *Quantity       `json:"maxPriorityFeePerGas"`
	Paymaster                     *common.Address `json:"paymaster"`
	PaymasterVerificationGasLimit *Quantity       `json:"paymasterVerificationGasLimit"`
	PaymasterPostOpGasLimit       *Quantity       `json:"paymasterPostOpGasLimit"`
	PaymasterData                 *hexutil.Bytes  `json:"paymasterData"`
	Signature                     *hexutil.Bytes  `json:"signature"`
}

// FieldsOf turns a complete operation into a fully specified partial.
func FieldsOf(op UserOperation) Fields {
	f := Fields{
		Sender:    &op.Sender,
		Paymaster: &op.Paymaster,
	}
	q := func(v *big.Int) *Quantity {
		if v == nil {
			return nil
		}
		return NewQuantity(v)
	}
	b := func(v []byte) *hexutil.Bytes {
		if v == nil {
			return nil
		}
		c := hexutil.Bytes(common.CopyBytes(v))
		return &c
	}
	f.Nonce = q(op.Nonce)
	f.InitCode = b(op.InitCode)
	f.CallData = b(op.CallData)
	f.CallGasLimit = q(op.CallGasLimit)
	f.VerificationGasLimit = q(op.VerificationGasLimit)
	f.PreVerificationGas = q(op.PreVerificationGas)
	f.MaxFeePerGas = q(op.MaxFeePerGas)
	f.MaxPriorityFeePerGas = q(op.MaxPriorityFeePerGas)
	f.PaymasterVerificationGasLimit = q(op.PaymasterVerificationGasLimit)
	f.PaymasterPostOpGasLimit = q(op.PaymasterPostOpGasLimit)
	f.PaymasterData = b(op.PaymasterData)
	f.Signature = b(op.Signature)
	return f
}

// FillDefaults merges partial over defaults. Unspecified fields, whether
// absent or explicitly null, take the default value.
func FillDefaults(partial Fields, defaults UserOperation) UserOperation {
	op := defaults.Copy()
	if partial.Sender != nil {
		op.Sender = *partial.Sender
	}
	if partial.Paymaster != nil {
		op.Paymaster = *partial.Paymaster
	}
	setBig := func(dst **big.Int, v *Quantity) {
		if v != nil {
			*dst = v.Big()
		}
	}
	setBytes := func(dst *[]byte, v *hexutil.Bytes) {
		if v != nil {
			*dst = common.CopyBytes(*v)
			if *dst == nil {
				*dst = []byte{}
			}
		}
	}
	setBig(&op.Nonce, partial.Nonce)
	setBytes(&op.InitCode, partial.InitCode)
	setBytes(&op.CallData, partial.CallData)
	setBig(&op.CallGasLimit, partial.CallGasLimit)
	setBig(&op.VerificationGasLimit, partial.VerificationGasLimit)
	setBig(&op.PreVerificationGas, partial.PreVerificationGas)
	setBig(&op.MaxFeePerGas, partial.MaxFeePerGas)
	setBig(&op.MaxPriorityFeePerGas, partial.MaxPriorityFeePerGas)
	setBig(&op.PaymasterVerificationGasLimit, partial.PaymasterVerificationGasLimit)
	setBig(&op.PaymasterPostOpGasLimit, partial.PaymasterPostOpGasLimit)
	setBytes(&op.PaymasterData, partial.PaymasterData)
	setBytes(&op.Signature, partial.Signature)
	return op
}

// Copy returns a deep copy.
func (op UserOperation) Copy() UserOperation {
	cp := op
	cb := func(v *big.Int) *big.Int {
		if v == nil {
			return nil
		}
		return new(big.Int).Set(v)
	}
	cp.Nonce = cb(op.Nonce)
	cp.CallGasLimit = cb(op.CallGasLimit)
	cp.VerificationGasLimit = cb(op.VerificationGasLimit)
	cp.PreVerificationGas = cb(op.PreVerificationGas)
	cp.MaxFeePerGas = cb(op.MaxFeePerGas)
	cp.MaxPriorityFeePerGas = cb(op.MaxPriorityFeePerGas)
	cp.PaymasterVerificationGasLimit = cb(op.PaymasterVerificationGasLimit)
	cp.PaymasterPostOpGasLimit = cb(op.PaymasterPostOpGasLimit)
	cp.InitCode = common.CopyBytes(op.InitCode)
	cp.CallData = common.CopyBytes(op.CallData)
	cp.PaymasterData = common.CopyBytes(op.PaymasterData)
	cp.Signature = common.CopyBytes(op.Signature)
	return cp
}

// HasPaymaster reports whether a sponsor is set.
func (op *UserOperation) HasPaymaster() bool {
	return op.Paymaster != (common.Address{})
}
