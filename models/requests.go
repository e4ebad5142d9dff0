package models

import (
	"github.com/ethereum/go-ethereum/common"

	"idprivacy/operations"
	"idprivacy/submission"
	"idprivacy/userop"
)

// Credential names a holder. Nullifier defaults to 0.
type Credential struct {
	Address   common.Address   `json:"address" binding:"required"`
	Secret    string           `json:"secret" binding:"required"`
	Nullifier *userop.Quantity `json:"nullifier"`
}

type SmartAccountRequest struct {
	Secret  string           `json:"secret" binding:"required"`
	Salt    *userop.Quantity `json:"salt"`
	CountID uint64           `json:"countId"`
	Force   bool             `json:"force"`
}

type SmartAccountResponse struct {
	Address    common.Address `json:"address"`
	Commitment string         `json:"commitment"`
	Deployed   bool           `json:"deployed"`
	TxHash     *common.Hash   `json:"txHash,omitempty"`
}

type LeafResponse struct {
	Leaf string `json:"leaf"`
}

type RegisterResponse struct {
	Leaf              string       `json:"leaf"`
	Index             uint32       `json:"index"`
	AlreadyRegistered bool         `json:"alreadyRegistered"`
	TxHash            *common.Hash `json:"txHash,omitempty"`
}

// ProofResponse carries the encoded proof. KnownRoot reports whether the
// registry accepts the root the proof was built against.
type ProofResponse struct {
	Proof         string   `json:"proof"`
	Root          string   `json:"root"`
	KnownRoot     bool     `json:"knownRoot"`
	PublicSignals []string `json:"publicSignals"`
}

// UserDataRequest runs a UserData operation. Mode is "standard" (default)
// or "privacy". Data is the initial value on deploy and the replacement on
// update; UserData names the contract to update.
type UserDataRequest struct {
	Mode         string           `json:"mode"`
	Secret       string           `json:"secret" binding:"required"`
	SmartAccount common.Address   `json:"smartAccount" binding:"required"`
	Nullifier    *userop.Quantity `json:"nullifier"`
	Data         string           `json:"data"`
	UserData     *common.Address  `json:"userData"`
}

// Identity converts the request to the operations form.
func (r UserDataRequest) Identity() operations.Identity {
	return operations.Identity{Secret: r.Secret, SmartAccount: r.SmartAccount, Nullifier: r.Nullifier.Big()}
}

type SubmissionResponse struct {
	State       string           `json:"state"`
	Sender      *common.Address  `json:"sender,omitempty"`
	UserOpHash  common.Hash      `json:"userOpHash"`
	RelayHash   *common.Hash     `json:"relayHash,omitempty"`
	TxHash      *common.Hash     `json:"txHash,omitempty"`
	BlockNumber string           `json:"blockNumber,omitempty"`
	Status      *uint64          `json:"status,omitempty"`
	Deployed    []common.Address `json:"deployed,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// FromSubmission summarizes sub.
func FromSubmission(sub *submission.Submission) SubmissionResponse {
	r := SubmissionResponse{State: sub.State.String(), UserOpHash: sub.OpHash, TxHash: sub.TxHash}
	if sub.RelayHash != (common.Hash{}) {
		h := sub.RelayHash
		r.RelayHash = &h
	}
	if sub.Receipt != nil {
		r.BlockNumber = quantity(sub.Receipt.BlockNumber)
		status := sub.Receipt.Status
		r.Status = &status
	}
	if sub.Err != nil {
		r.Error = sub.Err.Error()
	}
	return r
}

// FromResult summarizes an operations run.
func FromResult(res *operations.Result) SubmissionResponse {
	r := FromSubmission(res.Submission)
	sender := res.Sender
	r.Sender = &sender
	r.Deployed = res.Deployed
	return r
}

type SendUserOpRequest struct {
	UserOp userop.Fields `json:"userOp"`
}

type SendUserOpResponse struct {
	UserOpHash common.Hash `json:"userOpHash"`
}

// StatusRequest polls for a user operation or a transaction. Zero values
// use the configured policy; a negative DelayMs polls without pausing.
type StatusRequest struct {
	UserOpHash  *common.Hash `json:"userOpHash"`
	TxHash      *common.Hash `json:"txHash"`
	MaxAttempts int          `json:"maxAttempts"`
	DelayMs     int          `json:"delayMs"`
}

type UserOpHashRequest struct {
	UserOp            userop.Fields    `json:"userOp"`
	EntryPointAddress *common.Address  `json:"entryPointAddress"`
	ChainID           *userop.Quantity `json:"chainId"`
}

type UserOpHashResponse struct {
	UserOpHash common.Hash `json:"userOpHash"`
}

type DepositRequest struct {
	Amount *userop.Quantity `json:"amount" binding:"required"`
}

type DepositResponse struct {
	Paymaster common.Address `json:"paymaster"`
	Deposit   string         `json:"deposit"`
	TxHash    *common.Hash   `json:"txHash,omitempty"`
}

// SimulateUserRequest runs one simulated user. Mode defaults to standard.
type SimulateUserRequest struct {
	Secret string `json:"secret" binding:"required"`
	Mode   string `json:"mode"`
}

// SimulateWalletsRequest runs the stored wallets with the given indices in
// order.
type SimulateWalletsRequest struct {
	Wallets []int  `json:"wallets" binding:"required,min=1"`
	Mode    string `json:"mode"`
}

// PrepareWalletsRequest generates wallets. Count defaults to 10 and
// GenerateSecret to true; FundAmount, when set, is sent to every wallet.
type PrepareWalletsRequest struct {
	Count          int              `json:"count"`
	GenerateSecret *bool            `json:"generateSecret"`
	FundAmount     *userop.Quantity `json:"fundAmount"`
}

type FundWalletsRequest struct {
	Amount *userop.Quantity `json:"amount" binding:"required"`
}
