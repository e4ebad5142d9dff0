package userop

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	"idprivacy/errs"
)

// PackedUserOperation is the on-chain wire form. Field names follow the
// Solidity struct so it can be passed to abi.Pack as a tuple.
type PackedUserOperation struct {
	Sender             common.Address
	Nonce              *big.Int
	InitCode           []byte
	CallData           []byte
	AccountGasLimits   [32]byte
	PreVerificationGas *big.Int
	GasFees            [32]byte
	PaymasterAndData   []byte
	Signature          []byte
}

var maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

func check128(op, name string, v *big.Int) error {
	if v == nil {
		return errs.Ef(errs.Validation, op, "%s is not set", name)
	}
	if v.Sign() < 0 || v.Cmp(maxUint128) > 0 {
		return errs.Ef(errs.Validation, op, "%s %s does not fit 128 bits", name, v)
	}
	return nil
}

// PackTwo128 zero-pads a and b to 16 bytes each and concatenates them, a in
// the high half. It packs both the gas limit pair and the fee pair.
func PackTwo128(a, b *big.Int) ([32]byte, error) {
	var out [32]byte
	if err := check128("userop.PackTwo128", "high value", a); err != nil {
		return out, err
	}
	if err := check128("userop.PackTwo128", "low value", b); err != nil {
		return out, err
	}
	math.ReadBits(a, out[:16])
	math.ReadBits(b, out[16:])
	return out, nil
}

// UnpackTwo128 splits a packed word into its high and low halves.
func UnpackTwo128(word [32]byte) (high, low *big.Int) {
	return new(big.Int).SetBytes(word[:16]), new(big.Int).SetBytes(word[16:])
}

// PackPaymasterAndData concatenates the paymaster address, its two 16-byte
// gas limits and data. The zero address yields an empty byte string.
func PackPaymasterAndData(paymaster common.Address, verificationGasLimit, postOpGasLimit *big.Int, data []byte) ([]byte, error) {
	if paymaster == (common.Address{}) {
		return []byte{}, nil
	}
	const op = "userop.PackPaymasterAndData"
	if err := check128(op, "paymasterVerificationGasLimit", verificationGasLimit); err != nil {
		return nil, err
	}
	if err := check128(op, "paymasterPostOpGasLimit", postOpGasLimit); err != nil {
		return nil, err
	}
	out := make([]byte, 0, common.AddressLength+32+len(data))
	out = append(out, paymaster.Bytes()...)
	out = append(out, math.PaddedBigBytes(verificationGasLimit, 16)...)
	out = append(out, math.PaddedBigBytes(postOpGasLimit, 16)...)
	out = append(out, data...)
	return out, nil
}

// Pack converts op into its wire form.
func Pack(op UserOperation) (PackedUserOperation, error) {
	const name = "userop.Pack"
	if op.Nonce == nil || op.Nonce.Sign() < 0 {
		return PackedUserOperation{}, errs.Ef(errs.Validation, name, "nonce is not set")
	}
	if op.PreVerificationGas == nil || op.PreVerificationGas.Sign() < 0 {
		return PackedUserOperation{}, errs.Ef(errs.Validation, name, "preVerificationGas is not set")
	}
	accountGasLimits, err := PackTwo128(op.VerificationGasLimit, op.CallGasLimit)
	if err != nil {
		return PackedUserOperation{}, err
	}
	gasFees, err := PackTwo128(op.MaxPriorityFeePerGas, op.MaxFeePerGas)
	if err != nil {
		return PackedUserOperation{}, err
	}
	paymasterAndData, err := PackPaymasterAndData(op.Paymaster, op.PaymasterVerificationGasLimit, op.PaymasterPostOpGasLimit, op.PaymasterData)
	if err != nil {
		return PackedUserOperation{}, err
	}
	return PackedUserOperation{
		Sender:             op.Sender,
		Nonce:              new(big.Int).Set(op.Nonce),
		InitCode:           nonNil(op.InitCode),
		CallData:           nonNil(op.CallData),
		AccountGasLimits:   accountGasLimits,
		PreVerificationGas: new(big.Int).Set(op.PreVerificationGas),
		GasFees:            gasFees,
		PaymasterAndData:   paymasterAndData,
		Signature:          nonNil(op.Signature),
	}, nil
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return common.CopyBytes(b)
}
