// Package chain holds the node-facing side of the service: the backend
// interface every component talks to and a read-through cache for chain
// data that no longer changes.
package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
)

// Backend is the subset of an Ethereum JSON-RPC client used here.
// *ethclient.Client implements it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend

	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

var _ Backend = (*ethclient.Client)(nil)

// Dial connects to a node and wraps it in a Cache of the given size.
func Dial(ctx context.Context, url string, cacheSize int) (*Cache, *ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	cache, err := NewCache(client, cacheSize)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	log.Info("Connected to chain node", "url", url, "cache", cacheSize)
	return cache, client, nil
}
