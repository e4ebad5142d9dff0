package cli

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"

	"idprivacy/bundler"
	"idprivacy/chain"
	"idprivacy/config"
	"idprivacy/identity"
	"idprivacy/operations"
	"idprivacy/simulation"
	"idprivacy/store"
	"idprivacy/submission"
	"idprivacy/zkp"
)

// env is the set of collaborators a command works with. Fields the
// command did not ask for stay nil.
type env struct {
	settings  config.Settings
	kv        store.KV
	addresses *store.Addresses
	wallets   *store.Wallets

	client  *ethclient.Client
	chain   *chain.Cache
	tx      *chain.Transactor
	relay   *bundler.Client
	closers []func()
}

func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// openEnv loads settings and the store. With withChain it also dials the
// node and the bundler and loads the service key when one is set.
func openEnv(ctx context.Context, withChain bool) (*env, error) {
	s, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	e := &env{settings: s}
	kv, closeKV, err := config.OpenStore(ctx, s)
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, closeKV)
	e.kv = kv
	e.addresses = store.NewAddresses(kv)
	e.wallets = store.NewWallets(kv)
	if !withChain {
		return e, nil
	}

	if err := s.RequireChain(); err != nil {
		e.Close()
		return nil, err
	}
	if e.chain, e.client, err = chain.Dial(ctx, s.RPCURL, s.CacheSize); err != nil {
		e.Close()
		return nil, errors.Wrap(err, "dial node")
	}
	e.closers = append(e.closers, e.client.Close)
	if e.relay, err = bundler.Dial(ctx, s.BundlerURL, s.EntryPoint); err != nil {
		e.Close()
		return nil, errors.Wrap(err, "dial bundler")
	}
	e.checkEntryPoint(ctx)
	if s.PrivateKey != "" {
		if e.tx, err = chain.HexTransactor(e.chain, s.PrivateKey); err != nil {
			e.Close()
			return nil, err
		}
		log.Info("Loaded service key", "address", e.tx.From())
	}
	return e, nil
}

// checkEntryPoint warns when the bundler does not list the configured
// entry point. Some bundlers do not implement the query.
func (e *env) checkEntryPoint(ctx context.Context) {
	eps, err := e.relay.SupportedEntryPoints(ctx)
	if err != nil {
		log.Debug("Could not list bundler entry points", "err", err)
		return
	}
	for _, ep := range eps {
		if ep == e.settings.EntryPoint {
			return
		}
	}
	log.Warn("Bundler does not list the configured entry point", "entryPoint", e.settings.EntryPoint, "supported", eps)
}

// address resolves a deployment name, logging when it is unknown so the
// service can still start with the endpoints that do not need it.
func (e *env) address(ctx context.Context, name string) common.Address {
	addr, err := e.addresses.Get(ctx, name)
	if err != nil {
		log.Warn("Contract address not recorded", "name", name, "err", err)
	}
	return addr
}

func (e *env) registry(ctx context.Context) *identity.Registry {
	return identity.NewRegistry(e.address(ctx, store.Registry), e.chain, e.tx)
}

func (e *env) factory(ctx context.Context) *identity.AccountFactory {
	return identity.NewAccountFactory(e.address(ctx, store.AccountFactory), e.chain, e.tx)
}

func (e *env) proofs() *zkp.Adapter {
	a := zkp.NewAdapter(&zkp.Snarkjs{Binary: e.settings.SnarkjsBin}, zkp.DefaultCircuits(e.settings.CircuitsPath))
	a.Levels = e.settings.TreeLevels
	return a
}

// machine builds the submission machine. Without a service key it has no
// sponsor and the operations service refuses to run.
func (e *env) machine(paymaster common.Address) *submission.Machine {
	var sponsor *submission.Sponsor
	if e.tx != nil {
		sponsor = submission.NewSponsor(paymaster, e.tx.Key(), e.chain, e.settings.Window)
	}
	m := submission.NewMachine(e.chain, e.relay, e.settings.EntryPoint, sponsor)
	m.Policy = e.settings.Poll
	m.ChainID = e.settings.ChainID
	return m
}

// operations wires the strategy service against the recorded deployments.
func (e *env) operations(ctx context.Context, registry *identity.Registry, proofs *zkp.Adapter) *operations.Service {
	paymaster := e.address(ctx, store.VerifyingPaymaster)
	svc := operations.NewService(e.machine(paymaster), paymaster, proofs, registry, e.addresses)
	svc.Window = e.settings.Window
	svc.Verifier = e.address(ctx, store.CommitmentVerifier)
	if path := e.settings.UserDataArtifact; path != "" {
		code, err := operations.LoadBytecode(path)
		if err != nil {
			log.Warn("UserData bytecode unavailable", "path", path, "err", err)
		} else {
			svc.Bytecode = code
		}
	}
	return svc
}

// simulator composes the identity and operations wiring for simulated
// users. Funding needs the service key.
func (e *env) simulator(ctx context.Context, registry *identity.Registry, ops *operations.Service) *simulation.Simulator {
	var funder simulation.Funder
	if e.tx != nil {
		funder = e.tx
	}
	return simulation.New(e.factory(ctx), registry, ops, e.wallets, funder)
}
