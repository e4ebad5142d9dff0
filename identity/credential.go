// Package identity derives identity credentials (commitments and accumulator
// leaves) and talks to the on-chain registry and account factory.
package identity

import (
	"math/big"
	"strconv"
	"strings"
	"unicode"

	"github.com/ethereum/go-ethereum/common"
	"github.com/iden3/go-iden3-crypto/utils"

	"idprivacy/babyjub"
	"idprivacy/errs"
)

// MaxSecretBytes is the largest secret that fits one field word.
const MaxSecretBytes = 32

// EncodeSecret turns a secret into the field element fed to the hashes. A
// 0x prefixed hex string is read as a big-endian integer, anything else as
// its UTF-8 bytes in little-endian order. Values at or above the BN254
// scalar modulus are rejected since the circuit could never prove them.
func EncodeSecret(secret string) (*big.Int, error) {
	const op = "identity.EncodeSecret"
	if secret == "" {
		return nil, errs.Ef(errs.Validation, op, "secret is empty")
	}
	var v *big.Int
	if digits, ok := hexDigits(secret); ok {
		v, _ = new(big.Int).SetString(digits, 16)
		if v.BitLen() > 8*MaxSecretBytes {
			return nil, errs.Ef(errs.Validation, op, "hex secret exceeds %d bytes", MaxSecretBytes)
		}
	} else {
		raw := []byte(secret)
		if len(raw) > MaxSecretBytes {
			return nil, errs.Ef(errs.Validation, op, "secret exceeds %d bytes", MaxSecretBytes)
		}
		v = babyjub.LEBytesToInt(raw)
	}
	if !utils.CheckBigIntInField(v) {
		return nil, errs.Ef(errs.Validation, op, "secret is not a field element")
	}
	return v, nil
}

// hexDigits returns the digits of a 0x prefixed hex string.
func hexDigits(s string) (string, bool) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return "", false
	}
	digits := s[2:]
	if digits == "" {
		return "", false
	}
	for _, c := range digits {
		if !unicode.Is(unicode.ASCII_Hex_Digit, c) {
			return "", false
		}
	}
	return digits, true
}

// CalculateLeaf binds (address, secret, nullifier) into one accumulator
// leaf: the y coordinate of the multi-input Pedersen hash point. A nil
// nullifier counts as zero.
func CalculateLeaf(address common.Address, secret string, nullifier *big.Int) (*big.Int, error) {
	s, err := EncodeSecret(secret)
	if err != nil {
		return nil, err
	}
	return LeafOf(address, s, nullifier)
}

// LeafOf is CalculateLeaf for an already encoded secret.
func LeafOf(address common.Address, secret, nullifier *big.Int) (*big.Int, error) {
	if nullifier == nil {
		nullifier = new(big.Int)
	}
	if nullifier.Sign() < 0 {
		return nil, errs.Ef(errs.Validation, "identity.CalculateLeaf", "negative nullifier")
	}
	packed, err := babyjub.HashMultipleInputs(new(big.Int).SetBytes(address.Bytes()), secret, nullifier)
	if err != nil {
		return nil, errs.E(errs.Validation, "identity.CalculateLeaf", err)
	}
	p, ok := babyjub.Unpack(packed)
	if !ok {
		return nil, errs.Ef(errs.Cryptographic, "identity.CalculateLeaf", "hash is not a curve point")
	}
	return new(big.Int).Set(p.Y), nil
}

// ComputeCommitment hashes secret followed by the decimal counter with
// HashMessage. The counter is the number of times the holder has rotated
// the account's credential.
func ComputeCommitment(secret string, counter uint64) (*big.Int, error) {
	if secret == "" {
		return nil, errs.Ef(errs.Validation, "identity.ComputeCommitment", "secret is empty")
	}
	return HashMessage(secret + strconv.FormatUint(counter, 10))
}

// HashMessage is the Pedersen hash of msg zero padded to 32 bytes, the
// packed point read as a little-endian integer. UserData contracts are
// bound to HashMessage(secret).
func HashMessage(msg string) (*big.Int, error) {
	if msg == "" {
		return nil, errs.Ef(errs.Validation, "identity.HashMessage", "message is empty")
	}
	if len(msg) > MaxSecretBytes {
		return nil, errs.Ef(errs.Validation, "identity.HashMessage", "message exceeds %d bytes", MaxSecretBytes)
	}
	padded := make([]byte, MaxSecretBytes)
	copy(padded, msg)
	h := babyjub.PedersenHash(padded)
	return babyjub.LEBytesToInt(h[:]), nil
}
