// Package simulation drives simulated users end to end: each wallet gets a
// smart account, is registered when it acts in privacy mode, and then
// deploys a UserData contract through the chosen mode. Users run strictly
// one after another so nonces and registry indices stay predictable.
package simulation

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"

	"idprivacy/errs"
	"idprivacy/identity"
	"idprivacy/operations"
	"idprivacy/store"
	"idprivacy/submission"
)

// DefaultData is what simulated users store in their UserData contract.
const DefaultData = "My User Data"

// AccountCreator deploys or looks up the account controlled by a secret.
type AccountCreator interface {
	CreateSmartAccount(ctx context.Context, secret string, opts identity.CreateOptions) (identity.SmartAccount, error)
}

// Registrar inserts an identity leaf into the registry.
type Registrar interface {
	Register(ctx context.Context, address common.Address, secret string, nullifier *big.Int) (identity.Registration, error)
}

// Deployer runs the UserData deployment operation.
type Deployer interface {
	DeployUserData(ctx context.Context, mode operations.Mode, id operations.Identity, data string) (*operations.Result, error)
}

// Funder sends value from the service key and waits for it to be mined.
type Funder interface {
	SendAndWait(ctx context.Context, to common.Address, value *big.Int, data []byte) (*types.Receipt, error)
}

// UserResult is what one simulated user produced.
type UserResult struct {
	Index        int              `json:"index"`
	SmartAccount common.Address   `json:"smartAccount"`
	Leaf         string           `json:"leaf,omitempty"`
	UserData     *common.Address  `json:"userData"`
	State        submission.State `json:"state"`
	TxHash       *common.Hash     `json:"txHash"`
}

// Simulator composes account creation, registration and UserData
// deployment. Wallets and Funder are only needed by the wallet helpers.
type Simulator struct {
	Accounts AccountCreator
	Registry Registrar
	Deployer Deployer
	Wallets  *store.Wallets
	Funder   Funder
	Data     string

	log log.Logger
}

func New(accounts AccountCreator, registry Registrar, deployer Deployer, wallets *store.Wallets, funder Funder) *Simulator {
	return &Simulator{
		Accounts: accounts,
		Registry: registry,
		Deployer: deployer,
		Wallets:  wallets,
		Funder:   funder,
		Data:     DefaultData,
		log:      log.New("module", "simulation"),
	}
}

func (s *Simulator) logger() log.Logger {
	if s.log == nil {
		s.log = log.New("module", "simulation")
	}
	return s.log
}

// SimulateUser runs one user. In privacy mode the account's leaf is
// registered before the deployment so the membership proof can find it.
func (s *Simulator) SimulateUser(ctx context.Context, secret string, mode operations.Mode) (UserResult, error) {
	if secret == "" {
		return UserResult{}, errs.Ef(errs.Validation, "simulation.SimulateUser", "secret is required")
	}
	logger := s.logger().New("mode", mode)

	account, err := s.Accounts.CreateSmartAccount(ctx, secret, identity.CreateOptions{})
	if err != nil {
		return UserResult{}, errors.Wrap(err, "create smart account")
	}
	res := UserResult{SmartAccount: account.Address}
	logger.Info("Smart account ready", "address", account.Address, "deployed", account.Deployed)

	if mode == operations.Privacy {
		reg, err := s.Registry.Register(ctx, account.Address, secret, nil)
		if err != nil {
			return res, errors.Wrap(err, "register")
		}
		res.Leaf = reg.Leaf.String()
		logger.Info("User registered", "account", account.Address, "index", reg.Index, "existing", reg.AlreadyRegistered)
	}

	data := s.Data
	if data == "" {
		data = DefaultData
	}
	out, err := s.Deployer.DeployUserData(ctx, mode, operations.Identity{Secret: secret, SmartAccount: account.Address}, data)
	if out != nil && out.Submission != nil {
		res.State = out.Submission.State
		res.TxHash = out.Submission.TxHash
		if len(out.Deployed) > 0 {
			res.UserData = &out.Deployed[0]
		}
	}
	if err != nil {
		return res, errors.Wrap(err, "deploy user data")
	}
	logger.Info("UserData deployed", "account", account.Address, "userData", res.UserData, "state", res.State)
	return res, nil
}

// SimulateWallets runs every wallet in order and stops at the first
// failure, returning the results so far. Wallets without a secret are
// skipped. Created accounts are recorded on the wallet.
func (s *Simulator) SimulateWallets(ctx context.Context, wallets []store.Wallet, mode operations.Mode) ([]UserResult, error) {
	out := make([]UserResult, 0, len(wallets))
	for _, w := range wallets {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if w.Secret == "" {
			s.logger().Warn("Skipping wallet without secret", "index", w.Index)
			continue
		}
		res, err := s.SimulateUser(ctx, w.Secret, mode)
		res.Index = w.Index
		if res.SmartAccount != (common.Address{}) && s.Wallets != nil {
			if serr := s.Wallets.SetSmartAccount(ctx, w.Index, res.SmartAccount); serr != nil {
				return out, serr
			}
		}
		if err != nil {
			return out, errors.Wrapf(err, "wallet %d", w.Index)
		}
		out = append(out, res)
	}
	return out, nil
}

// SimulateStored runs the given wallet indices from the store, or every
// stored wallet when indices is empty.
func (s *Simulator) SimulateStored(ctx context.Context, indices []int, mode operations.Mode) ([]UserResult, error) {
	if s.Wallets == nil {
		return nil, errs.Ef(errs.Unavailable, "simulation.SimulateStored", "no wallet store")
	}
	if len(indices) == 0 {
		all, err := s.Wallets.All(ctx)
		if err != nil {
			return nil, err
		}
		return s.SimulateWallets(ctx, all, mode)
	}
	wallets := make([]store.Wallet, 0, len(indices))
	for _, i := range indices {
		w, err := s.Wallets.Get(ctx, i)
		if errors.Is(err, store.ErrNotFound) {
			return nil, errs.Ef(errs.Validation, "simulation.SimulateStored", "wallet %d does not exist", i)
		}
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return s.SimulateWallets(ctx, wallets, mode)
}
