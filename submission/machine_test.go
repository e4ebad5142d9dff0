package submission

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idprivacy/bundler"
	"idprivacy/chain/chaintest"
	"idprivacy/contracts"
	"idprivacy/errs"
	"idprivacy/poll"
	"idprivacy/userop"
)

var (
	entryPoint = common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")
	paymaster  = common.HexToAddress("0x00000000000000000000000000000000000000ba")
	sender     = common.HexToAddress("0x7a8D610A51C988E7c621d4Ff048845b48476D6b6")
	sponsorMsg = common.HexToHash("0x5151515151515151515151515151515151515151515151515151515151515151")
	bundleTx   = common.HexToHash("0xb0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0")
	fastPolicy = poll.Policy{MaxAttempts: 3, Delay: -1}
)

type fakeRelay struct {
	sent      []userop.UserOperation
	sendErr   error
	lookupErr error
	packAfter int
	lookups   int
}

func (r *fakeRelay) SendUserOperation(ctx context.Context, op userop.UserOperation) (common.Hash, error) {
	if r.sendErr != nil {
		return common.Hash{}, r.sendErr
	}
	r.sent = append(r.sent, op)
	return userop.Hash(op, entryPoint, big.NewInt(31337))
}

func (r *fakeRelay) GetUserOperationByHash(ctx context.Context, hash common.Hash) (*bundler.UserOperationInfo, error) {
	r.lookups++
	if r.lookupErr != nil {
		return nil, r.lookupErr
	}
	if r.packAfter < 0 || r.lookups <= r.packAfter {
		return nil, nil
	}
	tx := bundleTx
	return &bundler.UserOperationInfo{EntryPoint: entryPoint, TransactionHash: &tx}, nil
}

// accountChain answers getNonce, getHash and preVerifySignature.
func accountChain(t *testing.T, preVerifyErr error) *chaintest.Backend {
	b := chaintest.New()
	getNonce := contracts.Account.Methods["getNonce"]
	getHash := contracts.Paymaster.Methods["getHash"]
	preVerify := contracts.Account.Methods["preVerifySignature"]
	b.CallFn = func(call ethereum.CallMsg) ([]byte, error) {
		switch {
		case bytes.HasPrefix(call.Data, getNonce.ID):
			return getNonce.Outputs.Pack(big.NewInt(7))
		case bytes.HasPrefix(call.Data, getHash.ID):
			require.Equal(t, paymaster, *call.To)
			return getHash.Outputs.Pack([32]byte(sponsorMsg))
		case bytes.HasPrefix(call.Data, preVerify.ID):
			require.Equal(t, sender, *call.To)
			return nil, preVerifyErr
		}
		return nil, errors.New("unexpected call")
	}
	return b
}

func newMachine(t *testing.T, b *chaintest.Backend, relay Relay) (*Machine, *Sponsor) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	sponsor := NewSponsor(paymaster, key, b, MockWindow)
	m := NewMachine(b, relay, entryPoint, sponsor)
	m.Policy = fastPolicy
	return m, sponsor
}

func template(t *testing.T) userop.UserOperation {
	op, err := userop.DefaultOperation(sender, paymaster, MockWindow)
	require.NoError(t, err)
	op.CallData = []byte{0xb6, 0x1d, 0x27, 0xf6}
	op.Signature = []byte{0x01, 0x02}
	return op
}

func TestRunMined(t *testing.T) {
	b := accountChain(t, nil)
	b.SetReceipt(bundleTx, 150)
	relay := &fakeRelay{packAfter: 1}
	m, sponsor := newMachine(t, b, relay)

	sub, err := m.Run(context.Background(), template(t))
	require.NoError(t, err)
	assert.Equal(t, Mined, sub.State)
	require.NotNil(t, sub.Receipt)
	assert.Equal(t, uint64(150), sub.Receipt.BlockNumber.Uint64())
	assert.Equal(t, bundleTx, *sub.TxHash)
	assert.Equal(t, sub.OpHash, sub.RelayHash)
	assert.Equal(t, 2, relay.lookups)

	require.Len(t, relay.sent, 1)
	op := relay.sent[0]
	assert.Equal(t, int64(7), op.Nonce.Int64())
	assert.Equal(t, paymaster, op.Paymaster)

	window, err := userop.EncodeWindow(MockWindow)
	require.NoError(t, err)
	require.Len(t, op.PaymasterData, len(window)+crypto.SignatureLength)
	assert.Equal(t, window, op.PaymasterData[:len(window)])
	signer, err := RecoverSigner(sponsorMsg, op.PaymasterData[len(window):])
	require.NoError(t, err)
	assert.Equal(t, sponsor.Address(), signer)
	assert.Contains(t, []byte{27, 28}, op.PaymasterData[len(op.PaymasterData)-1])

	want, err := userop.Hash(op, entryPoint, big.NewInt(31337))
	require.NoError(t, err)
	assert.Equal(t, want, sub.OpHash)
}

func TestRunPreVerifyRevertStopsBeforeRelay(t *testing.T) {
	b := accountChain(t, errors.New("execution reverted: invalid proof"))
	relay := &fakeRelay{}
	m, _ := newMachine(t, b, relay)

	sub, err := m.Run(context.Background(), template(t))
	assert.True(t, errs.Is(err, errs.Cryptographic))
	assert.Equal(t, Failed, sub.State)
	assert.Empty(t, relay.sent)
}

func TestRunBundlerRejected(t *testing.T) {
	b := accountChain(t, nil)
	rejection := errs.E(errs.RelayRejection, "eth_sendUserOperation", &errs.RelayError{Code: -32500, Message: "AA23 reverted"})
	relay := &fakeRelay{sendErr: rejection}
	m, _ := newMachine(t, b, relay)

	sub, err := m.Run(context.Background(), template(t))
	assert.True(t, errs.Is(err, errs.RelayRejection))
	assert.Equal(t, BundlerRejected, sub.State)
	assert.Zero(t, relay.lookups)
	var rel *errs.RelayError
	require.True(t, errors.As(err, &rel))
	assert.Equal(t, -32500, rel.Code)
}

func TestRunRejectedWhilePolling(t *testing.T) {
	b := accountChain(t, nil)
	rejection := errs.E(errs.RelayRejection, "eth_getUserOperationByHash", &errs.RelayError{Code: -32602, Message: "unknown operation"})
	relay := &fakeRelay{lookupErr: rejection}
	m, _ := newMachine(t, b, relay)

	sub, err := m.Run(context.Background(), template(t))
	assert.True(t, errs.Is(err, errs.RelayRejection))
	assert.Equal(t, BundlerRejected, sub.State)
	assert.Equal(t, 1, relay.lookups)
	assert.Nil(t, sub.TxHash)
}

func TestRunPackTimeout(t *testing.T) {
	b := accountChain(t, nil)
	relay := &fakeRelay{packAfter: -1}
	m, _ := newMachine(t, b, relay)

	sub, err := m.Run(context.Background(), template(t))
	assert.True(t, errs.Is(err, errs.TransportTimeout))
	assert.Equal(t, PackTimeout, sub.State)
	assert.Equal(t, fastPolicy.MaxAttempts, relay.lookups)
	assert.Nil(t, sub.TxHash)
}

func TestRunMineTimeout(t *testing.T) {
	b := accountChain(t, nil)
	relay := &fakeRelay{}
	m, _ := newMachine(t, b, relay)

	sub, err := m.Run(context.Background(), template(t))
	require.NoError(t, err)
	assert.Equal(t, MineTimeout, sub.State)
	assert.Nil(t, sub.Receipt)
	assert.Equal(t, fastPolicy.MaxAttempts, b.ReceiptCalls)
}

func TestRunWithoutSponsorKeepsPaymasterData(t *testing.T) {
	b := accountChain(t, nil)
	b.SetReceipt(bundleTx, 101)
	relay := &fakeRelay{}
	m, _ := newMachine(t, b, relay)
	m.Sponsor = nil
	m.SkipPreVerify = true

	op := template(t)
	sub, err := m.Run(context.Background(), op)
	require.NoError(t, err)
	assert.Equal(t, Mined, sub.State)
	assert.Equal(t, op.PaymasterData, relay.sent[0].PaymasterData)
	for _, call := range b.Calls {
		assert.False(t, bytes.HasPrefix(call.Data, contracts.Paymaster.Methods["getHash"].ID))
	}
}

func TestWaitMinedReturnsReceipt(t *testing.T) {
	b := chaintest.New()
	b.SetReceipt(bundleTx, 9)
	r, err := WaitMined(context.Background(), b, bundleTx, fastPolicy)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, 1, b.ReceiptCalls)
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "pack-timeout", PackTimeout.String())
	assert.True(t, MineTimeout.Terminal())
	assert.False(t, Submitted.Terminal())
	text, err := BundlerRejected.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "bundler-rejected", string(text))
}
