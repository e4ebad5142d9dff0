package operations

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"idprivacy/errs"
	"idprivacy/submission"
	"idprivacy/userop"
	"idprivacy/zkp"
)

// Request is an operation to run for a holder.
type Request struct {
	Identity Identity
	CallData CallDataBuilder
}

// Result is a finished run.
type Result struct {
	Mode       Mode
	Sender     common.Address
	Submission *submission.Submission
	// Deployed lists contracts the sender announced while executing.
	Deployed []common.Address
}

// Service runs strategies through one submission machine.
type Service struct {
	Machine     *submission.Machine
	Paymaster   common.Address
	Window      userop.Window
	Credentials map[Mode]CredentialProver

	// Proofs, Verifier and Bytecode back the UserData helpers.
	Proofs   *zkp.Adapter
	Verifier common.Address
	Bytecode []byte

	log log.Logger
}

// NewService wires both modes: ownership proofs for standard operations
// and membership proofs over leaves, sent through runners, for privacy
// operations.
func NewService(m *submission.Machine, paymaster common.Address, proofs *zkp.Adapter, leaves LeafSource, runners RunnerSource) *Service {
	return &Service{
		Machine:   m,
		Paymaster: paymaster,
		Window:    submission.MockWindow,
		Credentials: map[Mode]CredentialProver{
			Standard: OwnershipCredential{Proofs: proofs},
			Privacy:  MembershipCredential{Proofs: proofs, Leaves: leaves, Runners: runners},
		},
		Proofs: proofs,
		log:    log.New("module", "operations"),
	}
}

func (s *Service) logger() log.Logger {
	if s.log == nil {
		s.log = log.New("module", "operations")
	}
	return s.log
}

// Sponsored reports whether the machine has a sponsor key to co-sign the
// paymaster data DefaultOperation reserves.
func (s *Service) Sponsored() bool {
	return s.Machine != nil && s.Machine.Sponsor != nil
}

// Strategy returns the strategy for mode and call data.
func (s *Service) Strategy(mode Mode, calldata CallDataBuilder) (Strategy, error) {
	cred, ok := s.Credentials[mode]
	if !ok {
		return Strategy{}, errs.Ef(errs.Validation, "operations.Strategy", "mode %s is not configured", mode)
	}
	return Strategy{Credential: cred, CallData: calldata}, nil
}

// Execute builds the default operation for the mode's sender, signs it
// with the credential proof, attaches the call data and runs it through
// the machine. The result is non-nil whenever a submission was started.
func (s *Service) Execute(ctx context.Context, mode Mode, req Request) (*Result, error) {
	if !s.Sponsored() {
		return nil, errs.Ef(errs.Unavailable, "operations.Execute", "no sponsor key configured")
	}
	strategy, err := s.Strategy(mode, req.CallData)
	if err != nil {
		return nil, err
	}
	if strategy.CallData == nil {
		return nil, errs.Ef(errs.Validation, "operations.Execute", "call data is required")
	}
	sender, err := strategy.Credential.Sender(ctx, req.Identity)
	if err != nil {
		return nil, err
	}
	op, err := userop.DefaultOperation(sender, s.Paymaster, s.Window)
	if err != nil {
		return nil, err
	}
	if op.Signature, err = strategy.Credential.Prove(ctx, req.Identity); err != nil {
		return nil, err
	}
	if op.CallData, err = strategy.CallData.Build(ctx, req.Identity); err != nil {
		return nil, err
	}

	s.logger().Info("Submitting user operation", "mode", mode, "sender", sender)
	sub, err := s.Machine.Run(ctx, op)
	res := &Result{Mode: mode, Sender: sender, Submission: sub}
	if sub != nil {
		res.Deployed = DeployedContracts(sub.Receipt, sender)
	}
	return res, err
}

// DeployUserData deploys a UserData contract holding data, bound to the
// holder's secret.
func (s *Service) DeployUserData(ctx context.Context, mode Mode, id Identity, data string) (*Result, error) {
	return s.Execute(ctx, mode, Request{
		Identity: id,
		CallData: DeployUserData(s.Verifier, nil, data, s.Bytecode),
	})
}

// UpdateUserData replaces the data held by the UserData contract at
// userData.
func (s *Service) UpdateUserData(ctx context.Context, mode Mode, id Identity, userData common.Address, newData string) (*Result, error) {
	if s.Proofs == nil {
		return nil, errs.Ef(errs.Validation, "operations.UpdateUserData", "no proof adapter configured")
	}
	return s.Execute(ctx, mode, Request{
		Identity: id,
		CallData: UpdateUserData(s.Proofs, userData, newData),
	})
}
