package identity

import (
	"context"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"

	"idprivacy/chain"
	"idprivacy/contracts"
	"idprivacy/errs"
)

// RegisteredLeaf is one UserRegistered event.
type RegisteredLeaf struct {
	Leaf  *big.Int
	Index uint32
	Block uint64
}

// Registration is the outcome of RegisterIfAbsent.
type Registration struct {
	Leaf              *big.Int    `json:"leaf"`
	Index             uint32      `json:"index"`
	AlreadyRegistered bool        `json:"alreadyRegistered"`
	TxHash            common.Hash `json:"txHash,omitempty"`
}

// Registry reads and appends to the on-chain accumulator.
type Registry struct {
	address  common.Address
	backend  chain.Backend
	tx       *chain.Transactor
	contract *bind.BoundContract
	log      log.Logger

	// Serializes check-then-register within this process.
	mu sync.Mutex
}

// NewRegistry binds the registry at address. tx may be nil for read-only use.
func NewRegistry(address common.Address, backend chain.Backend, tx *chain.Transactor) *Registry {
	return &Registry{
		address:  address,
		backend:  backend,
		tx:       tx,
		contract: bind.NewBoundContract(address, contracts.Registry, backend, backend, backend),
		log:      log.New("module", "registry", "address", address),
	}
}

// Address is the registry contract address.
func (r *Registry) Address() common.Address { return r.address }

// Events returns every UserRegistered event, ascending by leaf index.
func (r *Registry) Events(ctx context.Context) ([]RegisteredLeaf, error) {
	event := contracts.Registry.Events["UserRegistered"]
	logs, err := r.backend.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int),
		Addresses: []common.Address{r.address},
		Topics:    [][]common.Hash{{event.ID}},
	})
	if err != nil {
		return nil, errors.Wrap(err, "query UserRegistered events")
	}
	out := make([]RegisteredLeaf, 0, len(logs))
	for _, l := range logs {
		if l.Removed {
			continue
		}
		ev, err := decodeRegistered(l)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

// Leaves returns the registered leaves in insertion order.
func (r *Registry) Leaves(ctx context.Context) ([]*big.Int, error) {
	events, err := r.Events(ctx)
	if err != nil {
		return nil, err
	}
	leaves := make([]*big.Int, len(events))
	for i, ev := range events {
		leaves[i] = ev.Leaf
	}
	return leaves, nil
}

func decodeRegistered(l types.Log) (RegisteredLeaf, error) {
	values, err := contracts.Registry.Unpack("UserRegistered", l.Data)
	if err != nil || len(values) != 2 {
		return RegisteredLeaf{}, errors.Errorf("malformed UserRegistered log in tx %s", l.TxHash.Hex())
	}
	leaf, ok1 := values[0].(*big.Int)
	index, ok2 := values[1].(uint32)
	if !ok1 || !ok2 {
		return RegisteredLeaf{}, errors.Errorf("unexpected UserRegistered types in tx %s", l.TxHash.Hex())
	}
	return RegisteredLeaf{Leaf: leaf, Index: index, Block: l.BlockNumber}, nil
}

// IsKnownRoot asks the registry whether root is in its root history.
func (r *Registry) IsKnownRoot(ctx context.Context, root *big.Int) (bool, error) {
	var out []interface{}
	if err := r.contract.Call(&bind.CallOpts{Context: ctx}, &out, "isKnownRoot", root); err != nil {
		return false, errors.Wrap(err, "isKnownRoot")
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// LastRoot is the registry's current root.
func (r *Registry) LastRoot(ctx context.Context) (*big.Int, error) {
	var out []interface{}
	if err := r.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getLastRoot"); err != nil {
		return nil, errors.Wrap(err, "getLastRoot")
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// RegisterIfAbsent inserts leaf unless a UserRegistered event for it already
// exists, in which case the existing registration is returned unchanged.
// A reverted registration is reported, not retried.
func (r *Registry) RegisterIfAbsent(ctx context.Context, leaf *big.Int) (Registration, error) {
	if leaf == nil || leaf.Sign() < 0 {
		return Registration{}, errs.Ef(errs.Validation, "identity.Register", "invalid leaf")
	}
	if r.tx == nil {
		return Registration{}, errs.Ef(errs.Unavailable, "identity.Register", "registry has no signer")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	events, err := r.Events(ctx)
	if err != nil {
		return Registration{}, err
	}
	for _, ev := range events {
		if ev.Leaf.Cmp(leaf) == 0 {
			r.log.Info("Leaf already registered", "leaf", leaf, "index", ev.Index)
			return Registration{Leaf: ev.Leaf, Index: ev.Index, AlreadyRegistered: true}, nil
		}
	}

	input, err := contracts.Registry.Pack("registerUser", leaf)
	if err != nil {
		return Registration{}, errs.E(errs.Validation, "identity.Register", err)
	}
	receipt, err := r.tx.SendAndWait(ctx, r.address, nil, input)
	if err != nil {
		return Registration{}, err
	}
	reg := Registration{Leaf: new(big.Int).Set(leaf), TxHash: receipt.TxHash, Index: uint32(len(events))}
	event := contracts.Registry.Events["UserRegistered"]
	for _, l := range receipt.Logs {
		if l.Address != r.address || len(l.Topics) == 0 || l.Topics[0] != event.ID {
			continue
		}
		if ev, err := decodeRegistered(*l); err == nil && ev.Leaf.Cmp(leaf) == 0 {
			reg.Index = ev.Index
		}
	}
	r.log.Info("Registered leaf", "leaf", leaf, "index", reg.Index, "tx", reg.TxHash)
	return reg, nil
}

// Register derives the leaf for (address, secret, nullifier) and registers
// it if absent.
func (r *Registry) Register(ctx context.Context, address common.Address, secret string, nullifier *big.Int) (Registration, error) {
	leaf, err := CalculateLeaf(address, secret, nullifier)
	if err != nil {
		return Registration{}, err
	}
	return r.RegisterIfAbsent(ctx, leaf)
}
