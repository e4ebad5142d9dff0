package store

import (
	"context"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// Well-known deployment names.
const (
	EntryPoint         = "EntryPoint"
	Registry           = "MerkleRegistry"
	AccountFactory     = "MyAccountFactory"
	VerifyingPaymaster = "VerifyingPaymaster"
	CommitmentVerifier = "CommitmentVerifier"
	RegisterVerifier   = "RegisterVerifier"
	Runner             = "Runner"
)

const addressPrefix = "address/"

// Addresses maps deployment names to contract addresses. Runner holds a
// list, every other name a single address.
type Addresses struct {
	kv KV
}

func NewAddresses(kv KV) *Addresses { return &Addresses{kv: kv} }

// Get returns the address deployed under name.
func (a *Addresses) Get(ctx context.Context, name string) (common.Address, error) {
	if name == Runner {
		return a.Runner(ctx)
	}
	raw, err := a.kv.Get(ctx, addressPrefix+name)
	if err != nil {
		return common.Address{}, errors.Wrapf(err, "address of %s", name)
	}
	var addr common.Address
	if err := json.Unmarshal(raw, &addr); err != nil {
		return common.Address{}, errors.Wrapf(err, "decode address of %s", name)
	}
	return addr, nil
}

// Set records the deployment of name.
func (a *Addresses) Set(ctx context.Context, name string, addr common.Address) error {
	if name == Runner {
		return a.AddRunner(ctx, addr)
	}
	enc, _ := json.Marshal(addr)
	return a.kv.Set(ctx, addressPrefix+name, enc)
}

// IsDeployed reports whether name has a recorded address.
func (a *Addresses) IsDeployed(ctx context.Context, name string) (bool, error) {
	_, err := a.kv.Get(ctx, addressPrefix+name)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Runners lists every deployed Runner in deployment order.
func (a *Addresses) Runners(ctx context.Context) ([]common.Address, error) {
	raw, err := a.kv.Get(ctx, addressPrefix+Runner)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []common.Address
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.Wrap(err, "decode runners")
	}
	return out, nil
}

// Runner is the first deployed Runner, the sender of privacy-mode
// operations.
func (a *Addresses) Runner(ctx context.Context) (common.Address, error) {
	runners, err := a.Runners(ctx)
	if err != nil {
		return common.Address{}, err
	}
	if len(runners) == 0 {
		return common.Address{}, errors.Wrap(ErrNotFound, "no Runner deployed")
	}
	return runners[0], nil
}

// AddRunner appends a Runner address unless it is already listed.
func (a *Addresses) AddRunner(ctx context.Context, addr common.Address) error {
	runners, err := a.Runners(ctx)
	if err != nil {
		return err
	}
	for _, r := range runners {
		if r == addr {
			return nil
		}
	}
	enc, err := json.Marshal(append(runners, addr))
	if err != nil {
		return err
	}
	return a.kv.Set(ctx, addressPrefix+Runner, enc)
}
