package chain

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"
)

// ErrReverted is returned for mined transactions whose receipt status is 0.
var ErrReverted = errors.New("transaction reverted")

// Transactor signs and sends legacy EIP-155 transactions from one key.
// Sends are serialized so pending nonces never collide.
type Transactor struct {
	backend Backend
	key     *ecdsa.PrivateKey
	from    common.Address

	mu      sync.Mutex
	chainID *big.Int
}

// NewTransactor binds key to backend.
func NewTransactor(backend Backend, key *ecdsa.PrivateKey) *Transactor {
	return &Transactor{
		backend: backend,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
	}
}

// HexTransactor parses a hex private key, with or without 0x.
func HexTransactor(backend Backend, hexKey string) (*Transactor, error) {
	if len(hexKey) > 1 && hexKey[0] == '0' && (hexKey[1] == 'x' || hexKey[1] == 'X') {
		hexKey = hexKey[2:]
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, errors.Wrap(err, "invalid private key")
	}
	return NewTransactor(backend, key), nil
}

// From is the signing address.
func (t *Transactor) From() common.Address { return t.from }

// Key is the signing key.
func (t *Transactor) Key() *ecdsa.PrivateKey { return t.key }

// Backend is the node the transactor sends through.
func (t *Transactor) Backend() Backend { return t.backend }

// Send builds, signs and broadcasts a transaction. A nil to deploys data as
// contract creation code.
func (t *Transactor) Send(ctx context.Context, to *common.Address, value *big.Int, data []byte) (*types.Transaction, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.chainID == nil {
		id, err := t.backend.ChainID(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "error getting chain ID")
		}
		t.chainID = id
	}
	if value == nil {
		value = new(big.Int)
	}
	nonce, err := t.backend.PendingNonceAt(ctx, t.from)
	if err != nil {
		return nil, errors.Wrap(err, "error getting nonce")
	}
	gasPrice, err := t.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "error getting gas price")
	}
	gasLimit, err := t.backend.EstimateGas(ctx, ethereum.CallMsg{From: t.from, To: to, Value: value, Data: data})
	if err != nil {
		return nil, errors.Wrap(err, "error estimating gas")
	}
	// Headroom for state changes between estimate and inclusion.
	gasLimit += gasLimit / 5

	var tx *types.Transaction
	if to == nil {
		tx = types.NewContractCreation(nonce, value, gasLimit, gasPrice, data)
	} else {
		tx = types.NewTransaction(nonce, *to, value, gasLimit, gasPrice, data)
	}
	signed, err := types.SignTx(tx, types.NewEIP155Signer(t.chainID), t.key)
	if err != nil {
		return nil, errors.Wrap(err, "error signing transaction")
	}
	if err := t.backend.SendTransaction(ctx, signed); err != nil {
		return nil, errors.Wrap(err, "error sending transaction")
	}
	log.Info("Transaction sent", "from", t.from, "to", to, "nonce", nonce, "hash", signed.Hash())
	return signed, nil
}

// SendAndWait sends and blocks until the transaction is mined. A reverted
// receipt is returned together with ErrReverted.
func (t *Transactor) SendAndWait(ctx context.Context, to common.Address, value *big.Int, data []byte) (*types.Receipt, error) {
	tx, err := t.Send(ctx, &to, value, data)
	if err != nil {
		return nil, err
	}
	return Wait(ctx, t.backend, tx)
}

// Wait blocks until tx is mined and checks its status.
func Wait(ctx context.Context, backend bind.DeployBackend, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, backend, tx)
	if err != nil {
		return nil, errors.Wrapf(err, "waiting for %s", tx.Hash().Hex())
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, errors.Wrapf(ErrReverted, "tx %s", tx.Hash().Hex())
	}
	return receipt, nil
}
