package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// ErrWalletsExist stops Generate from overwriting existing wallets.
var ErrWalletsExist = errors.New("store: wallets already generated")

const walletPrefix = "wallet/"

// Wallet is a simulated user: an EOA, its identity secret and the smart
// account derived from it.
type Wallet struct {
	Index               int             `json:"index"`
	Address             common.Address  `json:"address"`
	PrivateKey          string          `json:"privateKey"`
	Secret              string          `json:"secret"`
	SmartAccountAddress *common.Address `json:"smartAccountAddress"`
}

// Wallets keeps Wallet records in a KV.
type Wallets struct {
	kv KV
}

func NewWallets(kv KV) *Wallets { return &Wallets{kv: kv} }

func walletKey(index int) string { return fmt.Sprintf("%s%06d", walletPrefix, index) }

// Generate creates n fresh keys. It refuses to run when wallets exist.
func (w *Wallets) Generate(ctx context.Context, n int) ([]Wallet, error) {
	existing, err := w.kv.List(ctx, walletPrefix)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, ErrWalletsExist
	}
	out := make([]Wallet, 0, n)
	for i := 0; i < n; i++ {
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		wallet := Wallet{
			Index:      i,
			Address:    crypto.PubkeyToAddress(key.PublicKey),
			PrivateKey: hexutil.Encode(crypto.FromECDSA(key)),
		}
		if err := w.Put(ctx, wallet); err != nil {
			return nil, err
		}
		out = append(out, wallet)
	}
	return out, nil
}

// Put stores or replaces a wallet.
func (w *Wallets) Put(ctx context.Context, wallet Wallet) error {
	enc, err := json.Marshal(wallet)
	if err != nil {
		return err
	}
	return w.kv.Set(ctx, walletKey(wallet.Index), enc)
}

// Get loads the wallet at index.
func (w *Wallets) Get(ctx context.Context, index int) (Wallet, error) {
	raw, err := w.kv.Get(ctx, walletKey(index))
	if err != nil {
		return Wallet{}, err
	}
	var wallet Wallet
	if err := json.Unmarshal(raw, &wallet); err != nil {
		return Wallet{}, errors.Wrapf(err, "decode wallet %d", index)
	}
	return wallet, nil
}

// All returns every wallet ordered by index.
func (w *Wallets) All(ctx context.Context) ([]Wallet, error) {
	keys, err := w.kv.List(ctx, walletPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]Wallet, 0, len(keys))
	for _, k := range keys {
		idx, err := strconv.Atoi(strings.TrimPrefix(k, walletPrefix))
		if err != nil {
			continue
		}
		wallet, err := w.Get(ctx, idx)
		if err != nil {
			return nil, err
		}
		out = append(out, wallet)
	}
	return out, nil
}

// AssignSecrets gives every wallet without a secret the secret
// "secret<index>" and reports how many were updated.
func (w *Wallets) AssignSecrets(ctx context.Context) (int, error) {
	all, err := w.All(ctx)
	if err != nil {
		return 0, err
	}
	updated := 0
	for _, wallet := range all {
		if wallet.Secret != "" {
			continue
		}
		wallet.Secret = "secret" + strconv.Itoa(wallet.Index)
		if err := w.Put(ctx, wallet); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

// SetSmartAccount records the smart account created for wallet index.
func (w *Wallets) SetSmartAccount(ctx context.Context, index int, account common.Address) error {
	wallet, err := w.Get(ctx, index)
	if err != nil {
		return err
	}
	wallet.SmartAccountAddress = &account
	return w.Put(ctx, wallet)
}
