// Package submission drives a user operation from a built template to
// on-chain inclusion: fill, sponsor co-signature, local pre-verification,
// relay submission and bounded polling for the bundle and its receipt.
package submission

import (
	"context"
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"idprivacy/contracts"
	"idprivacy/userop"
)

// MockWindow is the validity window used by the test paymaster deployment.
var MockWindow = userop.Window{ValidUntil: 0xdeadbeef, ValidAfter: 0x1234}

// Sponsor co-signs operations for a verifying paymaster.
type Sponsor struct {
	Paymaster common.Address
	Window    userop.Window

	key      *ecdsa.PrivateKey
	contract *bind.BoundContract
}

// NewSponsor binds the paymaster at address with the sponsor's key.
func NewSponsor(paymaster common.Address, key *ecdsa.PrivateKey, caller bind.ContractCaller, w userop.Window) *Sponsor {
	return &Sponsor{
		Paymaster: paymaster,
		Window:    w,
		key:       key,
		contract:  bind.NewBoundContract(paymaster, contracts.Paymaster, caller, nil, nil),
	}
}

// Address is the sponsor signer the paymaster trusts.
func (s *Sponsor) Address() common.Address { return crypto.PubkeyToAddress(s.key.PublicKey) }

// Hash asks the paymaster for the hash it expects the sponsor to sign.
func (s *Sponsor) Hash(ctx context.Context, op userop.UserOperation) (common.Hash, error) {
	packed, err := userop.Pack(op)
	if err != nil {
		return common.Hash{}, err
	}
	var out []interface{}
	err = s.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getHash", packed,
		new(big.Int).SetUint64(s.Window.ValidUntil), new(big.Int).SetUint64(s.Window.ValidAfter))
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "paymaster getHash")
	}
	return common.Hash(*abi.ConvertType(out[0], new([32]byte)).(*[32]byte)), nil
}

// SignHash signs hash as an EIP-191 personal message, v in {27, 28}.
func SignHash(key *ecdsa.PrivateKey, hash common.Hash) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(hash[:]), key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// RecoverSigner returns the address that produced an EIP-191 signature over
// hash.
func RecoverSigner(hash common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, errors.Errorf("signature length %d", len(sig))
	}
	cp := common.CopyBytes(sig)
	if cp[crypto.RecoveryIDOffset] >= 27 {
		cp[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(hash[:]), cp)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Sign returns op with the paymaster set and paymasterData carrying the
// validity window and the sponsor signature.
func (s *Sponsor) Sign(ctx context.Context, op userop.UserOperation) (userop.UserOperation, error) {
	op = op.Copy()
	op.Paymaster = s.Paymaster
	if len(op.PaymasterData) == 0 {
		placeholder, err := userop.PaymasterData(s.Window, nil)
		if err != nil {
			return userop.UserOperation{}, err
		}
		op.PaymasterData = placeholder
	}
	hash, err := s.Hash(ctx, op)
	if err != nil {
		return userop.UserOperation{}, err
	}
	sig, err := SignHash(s.key, hash)
	if err != nil {
		return userop.UserOperation{}, errors.Wrap(err, "sponsor signature")
	}
	data, err := userop.PaymasterData(s.Window, sig)
	if err != nil {
		return userop.UserOperation{}, err
	}
	op.PaymasterData = data
	return op, nil
}
