package zkp

import (
	"context"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"idprivacy/babyjub"
	"idprivacy/errs"
	"idprivacy/identity"
	"idprivacy/merkle"
)

// Public input counts of the two circuits.
const (
	MembershipInputs = 2
	OwnershipInputs  = 1
)

// Fixed witness values of the membership circuit. The circuit binds them
// but the verifier contracts do not interpret them.
var membershipPlaceholders = map[string]string{
	"nullifierHash": "987654321",
	"recipient":     "100",
	"relayer":       "50",
	"fee":           "10",
	"refund":        "5",
}

// MembershipRequest names the credential whose membership is proven.
type MembershipRequest struct {
	Address   common.Address
	Secret    string
	Nullifier *big.Int
	// Leaves is every registered leaf in insertion order.
	Leaves []*big.Int
}

// Proof is a generated proof, ABI encoded and in raw form.
type Proof struct {
	Encoded       []byte
	CallData      CallData
	PublicSignals []string
	// Root is the accumulator root the membership proof is against.
	Root *big.Int
}

// Adapter turns credentials into encoded proofs.
type Adapter struct {
	Prover   Prover
	Circuits Circuits
	Levels   int
}

// NewAdapter uses the default accumulator depth.
func NewAdapter(prover Prover, circuits Circuits) *Adapter {
	return &Adapter{Prover: prover, Circuits: circuits, Levels: merkle.DefaultLevels}
}

func decimal(v *big.Int) string { return v.Text(10) }

// MembershipWitness rebuilds the accumulator from the leaves and assembles
// the register circuit input for the request's leaf.
func (a *Adapter) MembershipWitness(req MembershipRequest) (map[string]interface{}, *merkle.Proof, error) {
	secret, err := identity.EncodeSecret(req.Secret)
	if err != nil {
		return nil, nil, err
	}
	nullifier := req.Nullifier
	if nullifier == nil {
		nullifier = new(big.Int)
	}
	leaf, err := identity.LeafOf(req.Address, secret, nullifier)
	if err != nil {
		return nil, nil, err
	}
	levels := a.Levels
	if levels == 0 {
		levels = merkle.DefaultLevels
	}
	path, err := merkle.BuildProof(levels, req.Leaves, leaf)
	if err != nil {
		return nil, nil, err
	}
	if !merkle.Verify(path) {
		return nil, nil, errs.Ef(errs.Cryptographic, "zkp.MembershipWitness", "path for leaf %d does not reach the root", path.Index)
	}

	elements := make([]string, len(path.PathElements))
	for i, e := range path.PathElements {
		elements[i] = decimal(e)
	}
	input := map[string]interface{}{
		"root":         decimal(path.Root),
		"nullifier":    decimal(nullifier),
		"secret":       decimal(secret),
		"pathElements": elements,
		"pathIndices":  path.PathIndices,
		"address":      decimal(new(big.Int).SetBytes(req.Address.Bytes())),
	}
	for k, v := range membershipPlaceholders {
		input[k] = v
	}
	return input, path, nil
}

// GenerateMembershipProof proves that the request's leaf is in the
// accumulator built from req.Leaves.
func (a *Adapter) GenerateMembershipProof(ctx context.Context, req MembershipRequest) (*Proof, error) {
	input, path, err := a.MembershipWitness(req)
	if err != nil {
		return nil, err
	}
	proof, err := a.prove(ctx, a.Circuits.Membership, input, MembershipInputs)
	if err != nil {
		return nil, err
	}
	proof.Root = path.Root
	log.Info("Generated membership proof", "root", path.Root, "index", path.Index, "leaves", len(req.Leaves))
	return proof, nil
}

// OwnershipSecret is the commitment circuit's secret input: the UTF-8 bytes
// of secret followed by domain, read little-endian and reduced into the
// scalar field.
func OwnershipSecret(secret, domain string) (*big.Int, error) {
	if secret == "" {
		return nil, errs.Ef(errs.Validation, "zkp.OwnershipSecret", "secret is empty")
	}
	v := babyjub.LEBytesToInt([]byte(secret + domain))
	return v.Mod(v, fr.Modulus()), nil
}

// GenerateOwnershipProof proves knowledge of secret for the given domain,
// typically the address of the contract the proof is consumed by.
func (a *Adapter) GenerateOwnershipProof(ctx context.Context, secret, domain string) (*Proof, error) {
	s, err := OwnershipSecret(secret, domain)
	if err != nil {
		return nil, err
	}
	input := map[string]interface{}{"secret": decimal(s)}
	return a.prove(ctx, a.Circuits.Ownership, input, OwnershipInputs)
}

func (a *Adapter) prove(ctx context.Context, circuit Circuit, input map[string]interface{}, n int) (*Proof, error) {
	if a.Prover == nil {
		return nil, errs.Ef(errs.Cryptographic, "zkp.prove", "no prover configured")
	}
	raw, err := a.Prover.FullProve(ctx, circuit, input)
	if err != nil {
		if errs.KindOf(err) == errs.Other {
			err = errs.E(errs.Cryptographic, "zkp.prove", err)
		}
		return nil, err
	}
	cd, err := ExportCallData(raw)
	if err != nil {
		return nil, err
	}
	enc, err := Encode(cd, n)
	if err != nil {
		return nil, err
	}
	return &Proof{Encoded: enc, CallData: cd, PublicSignals: raw.PublicSignals}, nil
}
