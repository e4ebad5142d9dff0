package submission

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"

	"idprivacy/bundler"
	"idprivacy/contracts"
	"idprivacy/errs"
	"idprivacy/poll"
	"idprivacy/userop"
)

// State is the position of a submission in its lifecycle.
type State int

const (
	Built State = iota
	Signed
	Submitted
	Packed
	Mined
	BundlerRejected
	PackTimeout
	MineTimeout
	Failed
)

var stateNames = [...]string{
	Built:           "built",
	Signed:          "signed",
	Submitted:       "submitted",
	Packed:          "packed",
	Mined:           "mined",
	BundlerRejected: "bundler-rejected",
	PackTimeout:     "pack-timeout",
	MineTimeout:     "mine-timeout",
	Failed:          "failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool { return s >= Mined }

// Submission records one run of the machine.
type Submission struct {
	State State
	Op    userop.UserOperation
	// OpHash is the locally computed operation hash.
	OpHash common.Hash
	// RelayHash is the hash the bundler returned.
	RelayHash common.Hash
	TxHash    *common.Hash
	Receipt   *types.Receipt
	Err       error
}

// Relay is the bundler side of the machine.
type Relay interface {
	SendUserOperation(ctx context.Context, op userop.UserOperation) (common.Hash, error)
	GetUserOperationByHash(ctx context.Context, hash common.Hash) (*bundler.UserOperationInfo, error)
}

// ReceiptReader looks up transaction receipts.
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Chain is the node side of the machine.
type Chain interface {
	userop.ChainReader
	ReceiptReader
	ChainID(ctx context.Context) (*big.Int, error)
}

// Machine runs submissions against one entry point.
type Machine struct {
	Chain      Chain
	Relay      Relay
	Filler     *userop.Filler
	EntryPoint common.Address
	// Sponsor co-signs every operation when set.
	Sponsor *Sponsor
	// SkipPreVerify disables the local signature check before submission.
	SkipPreVerify bool
	Policy        poll.Policy
	// ChainID is the chain the operation hash is bound to. It is read from
	// the node on first use when nil.
	ChainID *big.Int

	mu sync.Mutex
}

// NewMachine wires a machine with the default polling policy.
func NewMachine(c Chain, relay Relay, entryPoint common.Address, sponsor *Sponsor) *Machine {
	return &Machine{
		Chain:      c,
		Relay:      relay,
		Filler:     userop.NewFiller(c, entryPoint),
		EntryPoint: entryPoint,
		Sponsor:    sponsor,
		Policy:     poll.Default(),
	}
}

func (m *Machine) chainIDOf(ctx context.Context) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ChainID != nil {
		return m.ChainID, nil
	}
	id, err := m.Chain.ChainID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "chain id")
	}
	m.ChainID = id
	return id, nil
}

// Prepare fills op, obtains the sponsor signature and refills, leaving the
// submission Signed with its local hash. A machine without a sponsor only
// fills.
func (m *Machine) Prepare(ctx context.Context, op userop.UserOperation) (*Submission, error) {
	sub := &Submission{State: Built, Op: op}
	fail := func(err error) (*Submission, error) {
		sub.State, sub.Err = Failed, err
		return sub, err
	}

	filled, err := m.Filler.FillOperation(ctx, op)
	if err != nil {
		return fail(err)
	}
	if m.Sponsor != nil {
		signed, err := m.Sponsor.Sign(ctx, filled)
		if err != nil {
			return fail(err)
		}
		if filled, err = m.Filler.FillOperation(ctx, signed); err != nil {
			return fail(err)
		}
	}
	sub.Op = filled

	chainID, err := m.chainIDOf(ctx)
	if err != nil {
		return fail(err)
	}
	if sub.OpHash, err = userop.Hash(filled, m.EntryPoint, chainID); err != nil {
		return fail(err)
	}
	sub.State = Signed
	return sub, nil
}

// PreVerify asks the sender to check the operation's signature against its
// hash with an eth_call. A revert means the proof is not acceptable.
func (m *Machine) PreVerify(ctx context.Context, op userop.UserOperation, hash common.Hash) error {
	input, err := contracts.Account.Pack("preVerifySignature", op.Signature, hash)
	if err != nil {
		return errs.E(errs.Validation, "submission.PreVerify", err)
	}
	sender := op.Sender
	if _, err := m.Chain.CallContract(ctx, ethereum.CallMsg{From: m.EntryPoint, To: &sender, Data: input}, nil); err != nil {
		return errs.E(errs.Cryptographic, "submission.PreVerify", err)
	}
	return nil
}

// Run takes op through the whole lifecycle. The returned submission is
// always non-nil and reflects the last state reached. A mine timeout is not
// an error: the submission ends in MineTimeout with a nil receipt.
func (m *Machine) Run(ctx context.Context, op userop.UserOperation) (*Submission, error) {
	sub, err := m.Prepare(ctx, op)
	if err != nil {
		return sub, err
	}
	logger := log.New("sender", sub.Op.Sender, "nonce", sub.Op.Nonce, "hash", sub.OpHash)

	if !m.SkipPreVerify {
		if err := m.PreVerify(ctx, sub.Op, sub.OpHash); err != nil {
			logger.Warn("Pre-verification failed", "err", err)
			sub.State, sub.Err = Failed, err
			return sub, err
		}
	}

	relayHash, err := m.Relay.SendUserOperation(ctx, sub.Op)
	if err != nil {
		sub.State, sub.Err = Failed, err
		if errs.Is(err, errs.RelayRejection) {
			sub.State = BundlerRejected
		}
		return sub, err
	}
	sub.RelayHash = relayHash
	sub.State = Submitted
	if relayHash != sub.OpHash {
		logger.Warn("Bundler returned a different operation hash", "relay", relayHash)
	}

	txHash, err := WaitPacked(ctx, m.Relay, relayHash, m.Policy)
	if err != nil {
		sub.Err = err
		switch {
		case errs.Is(err, errs.TransportTimeout):
			sub.State = PackTimeout
		case errs.Is(err, errs.RelayRejection):
			sub.State = BundlerRejected
		default:
			sub.State = Failed
		}
		return sub, err
	}
	sub.TxHash = &txHash
	sub.State = Packed
	logger.Info("User operation bundled", "tx", txHash)

	receipt, err := WaitMined(ctx, m.Chain, txHash, m.Policy)
	if err != nil {
		sub.State, sub.Err = Failed, err
		return sub, err
	}
	if receipt == nil {
		logger.Warn("Bundle not mined within the polling budget", "tx", txHash)
		sub.State = MineTimeout
		return sub, nil
	}
	sub.Receipt = receipt
	sub.State = Mined
	logger.Info("User operation mined", "tx", txHash, "block", receipt.BlockNumber, "status", receipt.Status)
	return sub, nil
}

// WaitPacked polls the relay until it reports the bundle transaction
// carrying hash. Running out of attempts is a TransportTimeout error. Relay
// rejections abort; transport failures count as an unanswered attempt.
func WaitPacked(ctx context.Context, relay Relay, hash common.Hash, p poll.Policy) (common.Hash, error) {
	p = p.WithDefaults()
	tx, done, err := poll.Until(ctx, p, "user operation bundle", func(ctx context.Context) (common.Hash, bool, error) {
		info, err := relay.GetUserOperationByHash(ctx, hash)
		if err != nil {
			if errs.Is(err, errs.RelayRejection) {
				return common.Hash{}, false, err
			}
			log.Debug("Bundler unreachable while polling", "hash", hash, "err", err)
			return common.Hash{}, false, nil
		}
		if info == nil || info.TransactionHash == nil {
			return common.Hash{}, false, nil
		}
		return *info.TransactionHash, true, nil
	})
	if err != nil {
		return common.Hash{}, err
	}
	if !done {
		return common.Hash{}, errs.Ef(errs.TransportTimeout, "submission.WaitPacked",
			"user operation %s was not bundled after %d attempts", hash.Hex(), p.MaxAttempts)
	}
	return tx, nil
}

// WaitMined polls for the receipt of txHash. Running out of attempts yields
// a nil receipt and no error.
func WaitMined(ctx context.Context, chain ReceiptReader, txHash common.Hash, p poll.Policy) (*types.Receipt, error) {
	p = p.WithDefaults()
	receipt, _, err := poll.Until(ctx, p, "transaction receipt", func(ctx context.Context) (*types.Receipt, bool, error) {
		r, err := chain.TransactionReceipt(ctx, txHash)
		if errors.Is(err, ethereum.NotFound) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, errors.Wrapf(err, "receipt of %s", txHash.Hex())
		}
		if r == nil || r.BlockNumber == nil {
			return nil, false, nil
		}
		return r, true, nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}
