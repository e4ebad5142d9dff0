// Package operations builds and submits sponsored user operations. A
// Strategy pairs a credential, which picks the sender and proves the
// caller may act through it, with the call data to execute. Standard mode
// acts through the holder's own smart account with an ownership proof;
// privacy mode acts through a shared Runner with a membership proof, so
// the holder's account never appears on chain.
package operations

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"idprivacy/errs"
	"idprivacy/zkp"
)

// Mode selects the credential an operation is authorized with.
type Mode int

const (
	Standard Mode = iota
	Privacy
)

func (m Mode) String() string {
	switch m {
	case Standard:
		return "standard"
	case Privacy:
		return "privacy"
	}
	return "unknown"
}

// ParseMode accepts "standard" and "privacy", case-insensitively. An empty
// string is Standard.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standard":
		return Standard, nil
	case "privacy":
		return Privacy, nil
	}
	return 0, errs.Ef(errs.Validation, "operations.ParseMode", "unknown mode %q", s)
}

// Identity is the holder an operation acts for.
type Identity struct {
	Secret string
	// SmartAccount is the holder's account. It is the sender in standard
	// mode and the leaf owner in privacy mode.
	SmartAccount common.Address
	// Nullifier is the value the holder registered with; nil means 0.
	Nullifier *big.Int
}

// CredentialProver chooses the sender and produces the operation
// signature.
type CredentialProver interface {
	Sender(ctx context.Context, id Identity) (common.Address, error)
	Prove(ctx context.Context, id Identity) ([]byte, error)
}

// CallDataBuilder produces the call data the sender executes.
type CallDataBuilder interface {
	Build(ctx context.Context, id Identity) ([]byte, error)
}

// CallDataFunc adapts a function to CallDataBuilder.
type CallDataFunc func(ctx context.Context, id Identity) ([]byte, error)

func (f CallDataFunc) Build(ctx context.Context, id Identity) ([]byte, error) { return f(ctx, id) }

// Strategy is one way of turning an identity into a user operation.
type Strategy struct {
	Credential CredentialProver
	CallData   CallDataBuilder
}

// OwnershipCredential signs with a proof of the holder's secret. The
// sender is the holder's smart account.
type OwnershipCredential struct {
	Proofs *zkp.Adapter
}

func (c OwnershipCredential) Sender(ctx context.Context, id Identity) (common.Address, error) {
	if id.SmartAccount == (common.Address{}) {
		return common.Address{}, errs.Ef(errs.Validation, "operations.OwnershipCredential", "smart account address is required")
	}
	return id.SmartAccount, nil
}

func (c OwnershipCredential) Prove(ctx context.Context, id Identity) ([]byte, error) {
	proof, err := c.Proofs.GenerateOwnershipProof(ctx, id.Secret, "")
	if err != nil {
		return nil, err
	}
	return proof.Encoded, nil
}

// LeafSource lists the registered leaves in insertion order.
type LeafSource interface {
	Leaves(ctx context.Context) ([]*big.Int, error)
}

// RunnerSource names the shared account privacy-mode operations go
// through.
type RunnerSource interface {
	Runner(ctx context.Context) (common.Address, error)
}

// MembershipCredential signs with a proof that the holder's leaf is in the
// registry. The sender is the first deployed Runner.
type MembershipCredential struct {
	Proofs  *zkp.Adapter
	Leaves  LeafSource
	Runners RunnerSource
}

func (c MembershipCredential) Sender(ctx context.Context, id Identity) (common.Address, error) {
	return c.Runners.Runner(ctx)
}

func (c MembershipCredential) Prove(ctx context.Context, id Identity) ([]byte, error) {
	leaves, err := c.Leaves.Leaves(ctx)
	if err != nil {
		return nil, err
	}
	proof, err := c.Proofs.GenerateMembershipProof(ctx, zkp.MembershipRequest{
		Address:   id.SmartAccount,
		Secret:    id.Secret,
		Nullifier: id.Nullifier,
		Leaves:    leaves,
	})
	if err != nil {
		return nil, err
	}
	return proof.Encoded, nil
}
