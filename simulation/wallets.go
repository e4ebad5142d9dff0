package simulation

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"idprivacy/errs"
	"idprivacy/store"
)

// Funding is one transfer made by Fund.
type Funding struct {
	Index   int            `json:"index"`
	Address common.Address `json:"address"`
	TxHash  common.Hash    `json:"txHash"`
}

// Fund sends amount wei from the service key to every stored wallet, one
// transfer at a time.
func (s *Simulator) Fund(ctx context.Context, amount *big.Int) ([]Funding, error) {
	const op = "simulation.Fund"
	if amount == nil || amount.Sign() <= 0 {
		return nil, errs.Ef(errs.Validation, op, "amount must be positive")
	}
	if s.Funder == nil {
		return nil, errs.Ef(errs.Unavailable, op, "no signer configured")
	}
	if s.Wallets == nil {
		return nil, errs.Ef(errs.Unavailable, op, "no wallet store")
	}
	all, err := s.Wallets.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Funding, 0, len(all))
	for _, w := range all {
		receipt, err := s.Funder.SendAndWait(ctx, w.Address, amount, nil)
		if err != nil {
			return out, err
		}
		s.logger().Info("Funded wallet", "index", w.Index, "address", w.Address, "amount", amount, "tx", receipt.TxHash)
		out = append(out, Funding{Index: w.Index, Address: w.Address, TxHash: receipt.TxHash})
	}
	return out, nil
}

// PrepareOptions tune PrepareWallets.
type PrepareOptions struct {
	Count   int
	Secrets bool
	// Fund is the amount sent to each wallet; nil or zero skips funding.
	Fund *big.Int
}

// PrepareWallets generates Count wallets, then optionally assigns their
// secrets and funds them. It returns the stored wallets.
func (s *Simulator) PrepareWallets(ctx context.Context, opts PrepareOptions) ([]store.Wallet, error) {
	const op = "simulation.PrepareWallets"
	if opts.Count <= 0 {
		return nil, errs.Ef(errs.Validation, op, "count must be positive")
	}
	if s.Wallets == nil {
		return nil, errs.Ef(errs.Unavailable, op, "no wallet store")
	}
	if opts.Fund != nil && opts.Fund.Sign() > 0 && s.Funder == nil {
		return nil, errs.Ef(errs.Unavailable, op, "no signer configured")
	}
	if _, err := s.Wallets.Generate(ctx, opts.Count); err != nil {
		if err == store.ErrWalletsExist {
			return nil, errs.E(errs.Validation, op, err)
		}
		return nil, err
	}
	if opts.Secrets {
		if _, err := s.Wallets.AssignSecrets(ctx); err != nil {
			return nil, err
		}
	}
	if opts.Fund != nil && opts.Fund.Sign() > 0 {
		if _, err := s.Fund(ctx, opts.Fund); err != nil {
			return nil, err
		}
	}
	return s.Wallets.All(ctx)
}
