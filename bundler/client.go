// Package bundler is the JSON-RPC client for an ERC-4337 relay.
package bundler

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"

	"idprivacy/errs"
	"idprivacy/userop"
)

// Caller is the part of *rpc.Client the relay client needs.
type Caller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// UserOperationInfo is the eth_getUserOperationByHash result.
type UserOperationInfo struct {
	UserOperation   *userop.RPCOperation `json:"userOperation,omitempty"`
	EntryPoint      common.Address       `json:"entryPoint"`
	BlockNumber     *hexutil.Big         `json:"blockNumber"`
	BlockHash       *common.Hash         `json:"blockHash"`
	TransactionHash *common.Hash         `json:"transactionHash"`
}

// Client talks to one bundler for one entry point.
type Client struct {
	rpc        Caller
	entryPoint common.Address
	log        log.Logger
}

// Dial connects to the bundler endpoint.
func Dial(ctx context.Context, url string, entryPoint common.Address) (*Client, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, errs.E(errs.TransportTimeout, "bundler.Dial", err)
	}
	return New(c, entryPoint), nil
}

// New wraps an existing RPC caller.
func New(c Caller, entryPoint common.Address) *Client {
	return &Client{rpc: c, entryPoint: entryPoint, log: log.New("module", "bundler")}
}

// EntryPoint returns the entry point operations are sent to.
func (c *Client) EntryPoint() common.Address { return c.entryPoint }

// classify splits relay-reported errors from transport failures.
func classify(op string, err error) error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		rel := &errs.RelayError{Code: rpcErr.ErrorCode(), Message: rpcErr.Error()}
		var dataErr rpc.DataError
		if errors.As(err, &dataErr) {
			rel.Data = dataErr.ErrorData()
		}
		return errs.E(errs.RelayRejection, op, rel)
	}
	return errs.E(errs.TransportTimeout, op, err)
}

// SendUserOperation submits op and returns the operation hash the relay
// assigned. It is never retried here.
func (c *Client) SendUserOperation(ctx context.Context, op userop.UserOperation) (common.Hash, error) {
	wire, err := userop.ToRPC(op)
	if err != nil {
		return common.Hash{}, err
	}
	var hash common.Hash
	if err := c.rpc.CallContext(ctx, &hash, "eth_sendUserOperation", wire, c.entryPoint); err != nil {
		c.log.Warn("Bundler refused user operation", "sender", op.Sender, "err", err)
		return common.Hash{}, classify("eth_sendUserOperation", err)
	}
	c.log.Info("Submitted user operation", "sender", op.Sender, "nonce", op.Nonce, "hash", hash)
	return hash, nil
}

// GetUserOperationByHash returns nil when the relay does not know the hash
// or has not bundled it yet.
func (c *Client) GetUserOperationByHash(ctx context.Context, hash common.Hash) (*UserOperationInfo, error) {
	var info *UserOperationInfo
	if err := c.rpc.CallContext(ctx, &info, "eth_getUserOperationByHash", hash); err != nil {
		return nil, classify("eth_getUserOperationByHash", err)
	}
	return info, nil
}

// SupportedEntryPoints lists the entry points the relay serves.
func (c *Client) SupportedEntryPoints(ctx context.Context) ([]common.Address, error) {
	var eps []common.Address
	if err := c.rpc.CallContext(ctx, &eps, "eth_supportedEntryPoints"); err != nil {
		return nil, classify("eth_supportedEntryPoints", err)
	}
	return eps, nil
}
