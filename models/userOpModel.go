// Package models holds the JSON bodies of the HTTP API.
package models

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"idprivacy/errs"
	"idprivacy/userop"
)

// PackedUserOperation is the wire form with every field as a 0x-prefixed
// hex string, as the entry point's handleOps receives it.
type PackedUserOperation struct {
	Sender             string `json:"sender"`
	Nonce              string `json:"nonce"`
	InitCode           string `json:"initCode"`
	CallData           string `json:"callData"`
	AccountGasLimits   string `json:"accountGasLimits"`
	PreVerificationGas string `json:"preVerificationGas"`
	GasFees            string `json:"gasFees"`
	PaymasterAndData   string `json:"paymasterAndData"`
	Signature          string `json:"signature"`
}

// FromPacked renders p in hex.
func FromPacked(p userop.PackedUserOperation) PackedUserOperation {
	return PackedUserOperation{
		Sender:             p.Sender.Hex(),
		Nonce:              hexutil.EncodeBig(p.Nonce),
		InitCode:           hexutil.Encode(p.InitCode),
		CallData:           hexutil.Encode(p.CallData),
		AccountGasLimits:   hexutil.Encode(p.AccountGasLimits[:]),
		PreVerificationGas: hexutil.EncodeBig(p.PreVerificationGas),
		GasFees:            hexutil.Encode(p.GasFees[:]),
		PaymasterAndData:   hexutil.Encode(p.PaymasterAndData),
		Signature:          hexutil.Encode(p.Signature),
	}
}

// Decode validates every field and returns the wire form.
func (m PackedUserOperation) Decode() (userop.PackedUserOperation, error) {
	var p userop.PackedUserOperation
	if !common.IsHexAddress(m.Sender) {
		return p, invalid("sender", fmt.Errorf("not an address"))
	}
	p.Sender = common.HexToAddress(m.Sender)

	var err error
	if p.Nonce, err = userop.ParseQuantity(strings.TrimSpace(m.Nonce)); err != nil {
		return p, invalid("nonce", err)
	}
	if p.PreVerificationGas, err = userop.ParseQuantity(strings.TrimSpace(m.PreVerificationGas)); err != nil {
		return p, invalid("preVerificationGas", err)
	}
	fields := []struct {
		name string
		src  string
		dst  *[]byte
	}{
		{"initCode", m.InitCode, &p.InitCode},
		{"callData", m.CallData, &p.CallData},
		{"paymasterAndData", m.PaymasterAndData, &p.PaymasterAndData},
		{"signature", m.Signature, &p.Signature},
	}
	for _, f := range fields {
		if *f.dst, err = validateAndDecodeHexString(f.src); err != nil {
			return p, invalid(f.name, err)
		}
	}
	if p.AccountGasLimits, err = validateAndDecodeFixedSizeHexString(m.AccountGasLimits); err != nil {
		return p, invalid("accountGasLimits", err)
	}
	if p.GasFees, err = validateAndDecodeFixedSizeHexString(m.GasFees); err != nil {
		return p, invalid("gasFees", err)
	}
	return p, nil
}

func invalid(field string, err error) error {
	return errs.E(errs.Validation, "models.PackedUserOperation", fmt.Errorf("invalid %s: %w", field, err))
}

// validateAndDecodeHexString decodes a 0x-prefixed hex string. "0x" is the
// empty byte string.
func validateAndDecodeHexString(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") {
		return nil, fmt.Errorf("invalid hex string %q", s)
	}
	return hexutil.Decode(s)
}

func validateAndDecodeFixedSizeHexString(s string) ([32]byte, error) {
	var out [32]byte
	decoded, err := validateAndDecodeHexString(s)
	if err != nil {
		return out, err
	}
	if len(decoded) != len(out) {
		return out, fmt.Errorf("got %d bytes, expected %d", len(decoded), len(out))
	}
	copy(out[:], decoded)
	return out, nil
}

// quantity renders an optional value as hex.
func quantity(v *big.Int) string {
	if v == nil {
		return ""
	}
	return hexutil.EncodeBig(v)
}
