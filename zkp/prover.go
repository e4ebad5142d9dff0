// Package zkp adapts an external Groth16 prover to the two proofs the system
// needs: accumulator membership and secret ownership. Proofs are exported
// in the layout Solidity verifiers take and ABI encoded for embedding in an
// operation's signature or call data.
package zkp

import (
	"context"
	"path/filepath"
)

// Circuit locates the compiled artifacts of one circuit.
type Circuit struct {
	Name string
	Wasm string
	Zkey string
	// VerificationKey is the snarkjs verification key JSON, if exported.
	VerificationKey string
}

// CircuitAt uses the snarkjs build layout: <dir>/<name>_js/<name>.wasm,
// <dir>/<name>_final.zkey and <dir>/<name>_vk.json.
func CircuitAt(dir, name string) Circuit {
	return Circuit{
		Name:            name,
		Wasm:            filepath.Join(dir, name+"_js", name+".wasm"),
		Zkey:            filepath.Join(dir, name+"_final.zkey"),
		VerificationKey: filepath.Join(dir, name+"_vk.json"),
	}
}

const (
	RegisterCircuit   = "register"
	CommitmentCircuit = "commitment"
)

// Circuits is the pair of circuits the adapter proves against.
type Circuits struct {
	Membership Circuit
	Ownership  Circuit
}

// DefaultCircuits reads both circuits from one build directory.
func DefaultCircuits(dir string) Circuits {
	return Circuits{
		Membership: CircuitAt(dir, RegisterCircuit),
		Ownership:  CircuitAt(dir, CommitmentCircuit),
	}
}

// RawProof is a Groth16 proof as snarkjs writes it: decimal strings,
// projective coordinates included.
type RawProof struct {
	PiA           []string   `json:"pi_a"`
	PiB           [][]string `json:"pi_b"`
	PiC           []string   `json:"pi_c"`
	Protocol      string     `json:"protocol,omitempty"`
	Curve         string     `json:"curve,omitempty"`
	PublicSignals []string   `json:"-"`
}

// Prover computes a witness for input and proves it.
type Prover interface {
	FullProve(ctx context.Context, circuit Circuit, input map[string]interface{}) (*RawProof, error)
}
