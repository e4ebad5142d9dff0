package userop

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"idprivacy/contracts"
	"idprivacy/errs"
)

// SignatureLength is the size of an ECDSA signature in r || s || v form.
const SignatureLength = 65

// Window bounds the validity of a sponsor signature, in unix seconds.
type Window struct {
	ValidUntil uint64
	ValidAfter uint64
}

var uint48T = mustType("uint48")

var windowArgs = abi.Arguments{{Type: uint48T}, {Type: uint48T}}

// EncodeWindow returns abi.encode(uint48 validUntil, uint48 validAfter).
func EncodeWindow(w Window) ([]byte, error) {
	out, err := windowArgs.Pack(new(big.Int).SetUint64(w.ValidUntil), new(big.Int).SetUint64(w.ValidAfter))
	if err != nil {
		return nil, errs.E(errs.Validation, "userop.EncodeWindow", err)
	}
	return out, nil
}

// PaymasterData returns the verifying paymaster's data: the encoded window
// followed by the sponsor signature. A nil sig is replaced by a zero
// placeholder of signature length, used while the sponsor hash is computed.
func PaymasterData(w Window, sig []byte) ([]byte, error) {
	enc, err := EncodeWindow(w)
	if err != nil {
		return nil, err
	}
	if sig == nil {
		sig = make([]byte, SignatureLength)
	}
	return append(enc, sig...), nil
}

// ExecuteCallData encodes account.execute(dest, value, data). A zero dest
// asks the account to deploy data as init code.
func ExecuteCallData(dest common.Address, value *big.Int, data []byte) ([]byte, error) {
	if value == nil {
		value = new(big.Int)
	}
	out, err := contracts.Account.Pack("execute", dest, value, nonNil(data))
	if err != nil {
		return nil, errs.E(errs.Validation, "userop.ExecuteCallData", err)
	}
	return out, nil
}

// DefaultOperation returns the template the operation flows start from:
// fixed gas limits and fees, and a placeholder paymaster data.
func DefaultOperation(sender, paymaster common.Address, w Window) (UserOperation, error) {
	op := Defaults()
	op.Sender = sender
	op.Nonce = nil
	op.CallGasLimit = big.NewInt(0x7A1200)
	op.VerificationGasLimit = big.NewInt(0x186A0)
	op.PreVerificationGas = big.NewInt(0x25F90)
	op.MaxFeePerGas = big.NewInt(0x956703D00)
	op.MaxPriorityFeePerGas = big.NewInt(0x13AB668000)
	op.Paymaster = paymaster
	op.PaymasterVerificationGasLimit = big.NewInt(0x927C)
	op.PaymasterPostOpGasLimit = big.NewInt(0x927C0)
	data, err := PaymasterData(w, nil)
	if err != nil {
		return UserOperation{}, err
	}
	op.PaymasterData = data
	return op, nil
}

// SplitInitCode separates init code into factory address and factory data.
func SplitInitCode(initCode []byte) (*common.Address, []byte, error) {
	if len(initCode) == 0 {
		return nil, nil, nil
	}
	if len(initCode) < common.AddressLength {
		return nil, nil, errs.Ef(errs.Validation, "userop.SplitInitCode", "init code shorter than an address")
	}
	factory := common.BytesToAddress(initCode[:common.AddressLength])
	return &factory, common.CopyBytes(initCode[common.AddressLength:]), nil
}
