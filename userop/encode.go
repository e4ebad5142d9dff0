package userop

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"idprivacy/errs"
)

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

var (
	addressT = mustType("address")
	uint256T = mustType("uint256")
	bytes32T = mustType("bytes32")
	bytesT   = mustType("bytes")

	// address, nonce, keccak(initCode), keccak(callData), accountGasLimits,
	// preVerificationGas, gasFees, keccak(paymasterAndData)
	signatureArgs = abi.Arguments{
		{Type: addressT}, {Type: uint256T}, {Type: bytes32T}, {Type: bytes32T},
		{Type: bytes32T}, {Type: uint256T}, {Type: bytes32T}, {Type: bytes32T},
	}
	// the packed operation with variable-length fields inline
	submissionArgs = abi.Arguments{
		{Type: addressT}, {Type: uint256T}, {Type: bytesT}, {Type: bytesT},
		{Type: bytes32T}, {Type: uint256T}, {Type: bytes32T}, {Type: bytesT}, {Type: bytesT},
	}
	domainArgs = abi.Arguments{{Type: bytes32T}, {Type: addressT}, {Type: uint256T}}
)

func keccak(b []byte) [32]byte {
	return [32]byte(crypto.Keccak256Hash(b))
}

// EncodePacked ABI-encodes a packed operation. With forSignature the
// variable-length fields are replaced by their keccak hashes and the
// signature is left out, giving a fixed-size encoding.
func EncodePacked(p PackedUserOperation, forSignature bool) ([]byte, error) {
	var (
		out []byte
		err error
	)
	if forSignature {
		out, err = signatureArgs.Pack(
			p.Sender, p.Nonce,
			keccak(p.InitCode), keccak(p.CallData),
			p.AccountGasLimits, p.PreVerificationGas, p.GasFees,
			keccak(p.PaymasterAndData),
		)
	} else {
		out, err = submissionArgs.Pack(
			p.Sender, p.Nonce,
			p.InitCode, p.CallData,
			p.AccountGasLimits, p.PreVerificationGas, p.GasFees,
			p.PaymasterAndData, p.Signature,
		)
	}
	if err != nil {
		return nil, errs.E(errs.Validation, "userop.Encode", err)
	}
	return out, nil
}

// Encode packs op and ABI-encodes it, see EncodePacked.
func Encode(op UserOperation, forSignature bool) ([]byte, error) {
	p, err := Pack(op)
	if err != nil {
		return nil, err
	}
	return EncodePacked(p, forSignature)
}

// Hash is the operation hash the entry point computes:
// keccak(abi.encode(keccak(Encode(op, true)), entryPoint, chainID)).
func (p PackedUserOperation) Hash(entryPoint common.Address, chainID *big.Int) (common.Hash, error) {
	if chainID == nil || chainID.Sign() < 0 {
		return common.Hash{}, errs.Ef(errs.Validation, "userop.Hash", "invalid chain id")
	}
	enc, err := EncodePacked(p, true)
	if err != nil {
		return common.Hash{}, err
	}
	outer, err := domainArgs.Pack(keccak(enc), entryPoint, chainID)
	if err != nil {
		return common.Hash{}, errs.E(errs.Validation, "userop.Hash", err)
	}
	return crypto.Keccak256Hash(outer), nil
}

// Hash packs op and returns its operation hash.
func Hash(op UserOperation, entryPoint common.Address, chainID *big.Int) (common.Hash, error) {
	p, err := Pack(op)
	if err != nil {
		return common.Hash{}, err
	}
	return p.Hash(entryPoint, chainID)
}
