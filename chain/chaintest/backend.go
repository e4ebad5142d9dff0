// Package chaintest provides an in-memory chain.Backend for tests.
package chaintest

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Backend records calls and answers them from its fields. Hooks left nil
// produce empty results.
type Backend struct {
	mu sync.Mutex

	Chain   *big.Int
	BaseFee *big.Int
	Head    uint64
	Gas     uint64

	Code     map[common.Address][]byte
	Logs     []types.Log
	Receipts map[common.Hash]*types.Receipt

	// CallFn answers eth_call.
	CallFn func(call ethereum.CallMsg) ([]byte, error)
	// OnSend mines a sent transaction: the receipt is stored and the logs
	// appended. A nil receipt leaves the transaction pending.
	OnSend func(tx *types.Transaction) (*types.Receipt, []types.Log)

	Sent         []*types.Transaction
	Calls        []ethereum.CallMsg
	ReceiptCalls int
	HeaderCalls  int
	FilterCalls  int
}

// New returns a backend for chain id 31337 with a 1 gwei base fee.
func New() *Backend {
	return &Backend{
		Chain:    big.NewInt(31337),
		BaseFee:  big.NewInt(1_000_000_000),
		Head:     100,
		Gas:      50_000,
		Code:     make(map[common.Address][]byte),
		Receipts: make(map[common.Hash]*types.Receipt),
	}
}

func (b *Backend) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Code[contract], nil
}

func (b *Backend) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return b.CodeAt(ctx, account, nil)
}

func (b *Backend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	b.mu.Lock()
	b.Calls = append(b.Calls, call)
	fn := b.CallFn
	b.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(call)
}

func (b *Backend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.HeaderCalls++
	n := new(big.Int).SetUint64(b.Head)
	if number != nil {
		n = new(big.Int).Set(number)
	}
	return &types.Header{Number: n, BaseFee: new(big.Int).Set(b.BaseFee), GasLimit: 30_000_000}, nil
}

func (b *Backend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return uint64(len(b.Sent)), nil
}

func (b *Backend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(2_000_000_000), nil
}

func (b *Backend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (b *Backend) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Gas, nil
}

func (b *Backend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Sent = append(b.Sent, tx)
	if b.OnSend == nil {
		return nil
	}
	receipt, logs := b.OnSend(tx)
	if receipt != nil {
		b.Head++
		receipt.TxHash = tx.Hash()
		receipt.BlockNumber = new(big.Int).SetUint64(b.Head)
		b.Receipts[tx.Hash()] = receipt
	}
	b.Logs = append(b.Logs, logs...)
	return nil
}

func (b *Backend) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.FilterCalls++
	var out []types.Log
	for _, l := range b.Logs {
		if !matches(q, l) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func matches(q ethereum.FilterQuery, l types.Log) bool {
	if len(q.Addresses) > 0 {
		found := false
		for _, a := range q.Addresses {
			if a == l.Address {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	for i, set := range q.Topics {
		if len(set) == 0 {
			continue
		}
		if i >= len(l.Topics) {
			return false
		}
		found := false
		for _, topic := range set {
			if topic == l.Topics[i] {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (b *Backend) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return nil, errors.New("subscriptions not supported")
}

func (b *Backend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ReceiptCalls++
	if r, ok := b.Receipts[txHash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (b *Backend) BlockNumber(ctx context.Context) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Head, nil
}

func (b *Backend) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.Chain), nil
}

// SetReceipt stores a mined receipt for txHash.
func (b *Backend) SetReceipt(txHash common.Hash, blockNumber uint64) *types.Receipt {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      txHash,
		BlockNumber: new(big.Int).SetUint64(blockNumber),
	}
	b.Receipts[txHash] = r
	return r
}
