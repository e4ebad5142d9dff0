package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	lru "github.com/hashicorp/golang-lru"
)

// DefaultCacheSize bounds each of the receipt and header caches.
const DefaultCacheSize = 1024

// Cache serves mined receipts and numbered headers from memory once seen.
// Pending lookups (nil receipt, "latest" header) always go to the node.
type Cache struct {
	Backend

	receipts *lru.Cache
	headers  *lru.Cache
}

// NewCache wraps backend.
func NewCache(backend Backend, size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	receipts, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	headers, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Cache{Backend: backend, receipts: receipts, headers: headers}, nil
}

// TransactionReceipt returns the receipt of txHash, caching it once it
// carries a block number.
func (c *Cache) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if r, ok := c.receipts.Get(txHash); ok {
		return r.(*types.Receipt), nil
	}
	receipt, err := c.Backend.TransactionReceipt(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if receipt != nil && receipt.BlockNumber != nil {
		c.receipts.Add(txHash, receipt)
	}
	return receipt, nil
}

// HeaderByNumber caches headers requested by explicit number.
func (c *Cache) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	if number == nil {
		return c.Backend.HeaderByNumber(ctx, nil)
	}
	key := number.Uint64()
	if h, ok := c.headers.Get(key); ok {
		return h.(*types.Header), nil
	}
	header, err := c.Backend.HeaderByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if header != nil {
		c.headers.Add(key, header)
	}
	return header, nil
}

// Len reports the number of cached receipts and headers.
func (c *Cache) Len() (receipts, headers int) {
	return c.receipts.Len(), c.headers.Len()
}
