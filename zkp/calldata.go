package zkp

import (
	"math/big"
	"reflect"
	"strconv"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fp"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/pkg/errors"

	"idprivacy/errs"
)

// CallData is a proof in the argument layout of a Solidity Groth16
// verifier: verifyProof(uint[2] a, uint[2][2] b, uint[2] c, uint[N] inputs).
type CallData struct {
	A      [2]*big.Int
	B      [2][2]*big.Int
	C      [2]*big.Int
	Inputs []*big.Int
}

func parseDecimal(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, errors.Errorf("not a decimal field element: %q", s)
	}
	return v, nil
}

func baseElement(s string) (fp.Element, *big.Int, error) {
	var e fp.Element
	v, err := parseDecimal(s)
	if err != nil {
		return e, nil, err
	}
	if v.Cmp(fp.Modulus()) >= 0 {
		return e, nil, errors.Errorf("coordinate %s exceeds the base field", s)
	}
	e.SetBigInt(v)
	return e, v, nil
}

// g1 parses a snarkjs [x, y, z] affine point.
func g1(coords []string) (bn254.G1Affine, [2]*big.Int, error) {
	var p bn254.G1Affine
	var out [2]*big.Int
	if len(coords) < 2 {
		return p, out, errors.New("G1 point needs two coordinates")
	}
	var err error
	if p.X, out[0], err = baseElement(coords[0]); err != nil {
		return p, out, err
	}
	if p.Y, out[1], err = baseElement(coords[1]); err != nil {
		return p, out, err
	}
	if !p.IsOnCurve() {
		return p, out, errors.New("G1 point is not on the curve")
	}
	return p, out, nil
}

// g2 parses a snarkjs [[x0, x1], [y0, y1], ...] point. The returned
// coordinates are in verifier order, imaginary part first.
func g2(coords [][]string) (bn254.G2Affine, [2][2]*big.Int, error) {
	var p bn254.G2Affine
	var out [2][2]*big.Int
	if len(coords) < 2 || len(coords[0]) != 2 || len(coords[1]) != 2 {
		return p, out, errors.New("G2 point needs two coordinate pairs")
	}
	var err error
	if p.X.A0, out[0][1], err = baseElement(coords[0][0]); err != nil {
		return p, out, err
	}
	if p.X.A1, out[0][0], err = baseElement(coords[0][1]); err != nil {
		return p, out, err
	}
	if p.Y.A0, out[1][1], err = baseElement(coords[1][0]); err != nil {
		return p, out, err
	}
	if p.Y.A1, out[1][0], err = baseElement(coords[1][1]); err != nil {
		return p, out, err
	}
	if !p.IsOnCurve() {
		return p, out, errors.New("G2 point is not on the curve")
	}
	return p, out, nil
}

func publicInputs(signals []string) ([]*big.Int, error) {
	out := make([]*big.Int, len(signals))
	for i, s := range signals {
		v, err := parseDecimal(s)
		if err != nil {
			return nil, err
		}
		if v.Cmp(fr.Modulus()) >= 0 {
			return nil, errors.Errorf("public signal %d exceeds the scalar field", i)
		}
		out[i] = v
	}
	return out, nil
}

// ExportCallData converts a snarkjs proof to verifier order, swapping the
// G2 coordinate pairs. Every point is checked to be on the curve.
func ExportCallData(raw *RawProof) (CallData, error) {
	const op = "zkp.ExportCallData"
	if raw == nil {
		return CallData{}, errs.Ef(errs.Cryptographic, op, "no proof")
	}
	var cd CallData
	var err error
	if _, cd.A, err = g1(raw.PiA); err != nil {
		return CallData{}, errs.E(errs.Cryptographic, op, errors.Wrap(err, "pi_a"))
	}
	if _, cd.B, err = g2(raw.PiB); err != nil {
		return CallData{}, errs.E(errs.Cryptographic, op, errors.Wrap(err, "pi_b"))
	}
	if _, cd.C, err = g1(raw.PiC); err != nil {
		return CallData{}, errs.E(errs.Cryptographic, op, errors.Wrap(err, "pi_c"))
	}
	if cd.Inputs, err = publicInputs(raw.PublicSignals); err != nil {
		return CallData{}, errs.E(errs.Cryptographic, op, err)
	}
	return cd, nil
}

var (
	uint2   = mustType("uint256[2]")
	uint2x2 = mustType("uint256[2][2]")
)

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

func proofArgs(n int) (abi.Arguments, error) {
	inputs, err := abi.NewType("uint256["+strconv.Itoa(n)+"]", "", nil)
	if err != nil {
		return nil, err
	}
	return abi.Arguments{{Type: uint2}, {Type: uint2x2}, {Type: uint2}, {Type: inputs}}, nil
}

// Encode ABI encodes the proof as (uint[2], uint[2][2], uint[2], uint[n]).
// The proof must carry exactly n public inputs.
func Encode(cd CallData, n int) ([]byte, error) {
	const op = "zkp.Encode"
	if n <= 0 || len(cd.Inputs) != n {
		return nil, errs.Ef(errs.Cryptographic, op, "proof has %d public inputs, want %d", len(cd.Inputs), n)
	}
	args, err := proofArgs(n)
	if err != nil {
		return nil, errs.E(errs.Cryptographic, op, err)
	}
	enc, err := args.Pack(cd.A, cd.B, cd.C, cd.Inputs)
	if err != nil {
		return nil, errs.E(errs.Cryptographic, op, err)
	}
	return enc, nil
}

// Decode reverses Encode.
func Decode(data []byte, n int) (CallData, error) {
	args, err := proofArgs(n)
	if err != nil {
		return CallData{}, err
	}
	values, err := args.Unpack(data)
	if err != nil {
		return CallData{}, errs.E(errs.Validation, "zkp.Decode", err)
	}
	var cd CallData
	cd.A = *abi.ConvertType(values[0], new([2]*big.Int)).(*[2]*big.Int)
	cd.B = *abi.ConvertType(values[1], new([2][2]*big.Int)).(*[2][2]*big.Int)
	cd.C = *abi.ConvertType(values[2], new([2]*big.Int)).(*[2]*big.Int)
	inputs := reflect.ValueOf(values[3])
	for i := 0; i < inputs.Len(); i++ {
		cd.Inputs = append(cd.Inputs, inputs.Index(i).Interface().(*big.Int))
	}
	return cd, nil
}
