// Package zkptest provides a deterministic zkp.Prover for tests.
package zkptest

import (
	"context"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254"

	"idprivacy/zkp"
)

// Call is one recorded FullProve invocation.
type Call struct {
	Circuit zkp.Circuit
	Input   map[string]interface{}
}

// Prover answers every request with Proof, sized for the circuit's public
// inputs, or with Err when set.
type Prover struct {
	mu    sync.Mutex
	Calls []Call
	Err   error
}

func (p *Prover) FullProve(ctx context.Context, circuit zkp.Circuit, input map[string]interface{}) (*zkp.RawProof, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, Call{Circuit: circuit, Input: input})
	if p.Err != nil {
		return nil, p.Err
	}
	n := zkp.OwnershipInputs
	if circuit.Name == zkp.RegisterCircuit {
		n = zkp.MembershipInputs
	}
	return Proof(n), nil
}

// Last returns the most recent call.
func (p *Prover) Last() Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Calls) == 0 {
		return Call{}
	}
	return p.Calls[len(p.Calls)-1]
}

// Proof is a curve-valid proof with n public signals. It does not satisfy
// any verifying key.
func Proof(n int) *zkp.RawProof {
	_, _, g1, g2 := bn254.Generators()
	var a, c bn254.G1Affine
	var b bn254.G2Affine
	a.ScalarMultiplication(&g1, big.NewInt(3))
	b.ScalarMultiplication(&g2, big.NewInt(5))
	c.ScalarMultiplication(&g1, big.NewInt(7))
	raw := &zkp.RawProof{
		PiA:      []string{a.X.String(), a.Y.String(), "1"},
		PiB:      [][]string{{b.X.A0.String(), b.X.A1.String()}, {b.Y.A0.String(), b.Y.A1.String()}, {"1", "0"}},
		PiC:      []string{c.X.String(), c.Y.String(), "1"},
		Protocol: "groth16",
		Curve:    "bn128",
	}
	for i := 0; i < n; i++ {
		raw.PublicSignals = append(raw.PublicSignals, big.NewInt(int64(i+11)).String())
	}
	return raw
}
