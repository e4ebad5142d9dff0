package zkp

import (
	"encoding/json"
	"math/big"
	"os"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/pkg/errors"

	"idprivacy/errs"
)

// VerifyingKey is a Groth16 verification key in snarkjs JSON form.
type VerifyingKey struct {
	Protocol string     `json:"protocol"`
	Curve    string     `json:"curve"`
	NPublic  int        `json:"nPublic"`
	Alpha    []string   `json:"vk_alpha_1"`
	Beta     [][]string `json:"vk_beta_2"`
	Gamma    [][]string `json:"vk_gamma_2"`
	Delta    [][]string `json:"vk_delta_2"`
	IC       [][]string `json:"IC"`
}

// LoadVerifyingKey reads a snarkjs verification_key.json.
func LoadVerifyingKey(path string) (*VerifyingKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var vk VerifyingKey
	if err := json.Unmarshal(data, &vk); err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return &vk, nil
}

// VerifyLocally runs the Groth16 pairing check
// e(-A, B) e(alpha, beta) e(vk_x, gamma) e(C, delta) == 1
// for raw against vk, without touching the chain.
func VerifyLocally(vk *VerifyingKey, raw *RawProof) (bool, error) {
	const op = "zkp.VerifyLocally"
	if vk == nil || raw == nil {
		return false, errs.Ef(errs.Validation, op, "missing key or proof")
	}
	if len(vk.IC) != len(raw.PublicSignals)+1 {
		return false, errs.Ef(errs.Cryptographic, op, "key expects %d public signals, proof has %d", len(vk.IC)-1, len(raw.PublicSignals))
	}

	a, _, err := g1(raw.PiA)
	if err != nil {
		return false, errs.E(errs.Cryptographic, op, errors.Wrap(err, "pi_a"))
	}
	b, _, err := g2(raw.PiB)
	if err != nil {
		return false, errs.E(errs.Cryptographic, op, errors.Wrap(err, "pi_b"))
	}
	c, _, err := g1(raw.PiC)
	if err != nil {
		return false, errs.E(errs.Cryptographic, op, errors.Wrap(err, "pi_c"))
	}
	inputs, err := publicInputs(raw.PublicSignals)
	if err != nil {
		return false, errs.E(errs.Cryptographic, op, err)
	}

	alpha, _, err := g1(vk.Alpha)
	if err != nil {
		return false, errs.E(errs.Validation, op, errors.Wrap(err, "vk_alpha_1"))
	}
	var g2s [3]bn254.G2Affine
	for i, coords := range [][][]string{vk.Beta, vk.Gamma, vk.Delta} {
		if g2s[i], _, err = g2(coords); err != nil {
			return false, errs.E(errs.Validation, op, errors.Wrap(err, "verification key G2 point"))
		}
	}

	var vkx bn254.G1Jac
	ic0, _, err := g1(vk.IC[0])
	if err != nil {
		return false, errs.E(errs.Validation, op, errors.Wrap(err, "IC[0]"))
	}
	vkx.FromAffine(&ic0)
	for i, in := range inputs {
		ic, _, err := g1(vk.IC[i+1])
		if err != nil {
			return false, errs.E(errs.Validation, op, errors.Wrapf(err, "IC[%d]", i+1))
		}
		var term bn254.G1Jac
		term.FromAffine(&ic)
		term.ScalarMultiplication(&term, new(big.Int).Set(in))
		vkx.AddAssign(&term)
	}
	var vkxAff, negA bn254.G1Affine
	vkxAff.FromJacobian(&vkx)
	negA.Neg(&a)

	ok, err := bn254.PairingCheck(
		[]bn254.G1Affine{negA, alpha, vkxAff, c},
		[]bn254.G2Affine{b, g2s[0], g2s[1], g2s[2]},
	)
	if err != nil {
		return false, errs.E(errs.Cryptographic, op, err)
	}
	return ok, nil
}
