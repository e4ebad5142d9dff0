package identity

import (
	"bytes"
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idprivacy/chain"
	"idprivacy/chain/chaintest"
	"idprivacy/contracts"
	"idprivacy/errs"
)

var (
	registryAddr = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	factoryAddr  = common.HexToAddress("0x00000000000000000000000000000000000000fa")
	accountAddr  = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

func TestEncodeSecret(t *testing.T) {
	v, err := EncodeSecret("0x0a")
	require.NoError(t, err)
	assert.Equal(t, int64(10), v.Int64())

	v, err = EncodeSecret("ab")
	require.NoError(t, err)
	assert.Equal(t, int64(0x6261), v.Int64())

	// Not hex, so read as text.
	v, err = EncodeSecret("0xzz")
	require.NoError(t, err)
	want := new(big.Int).SetBytes([]byte{'z', 'z', 'x', '0'})
	assert.Equal(t, want, v)

	_, err = EncodeSecret("")
	assert.True(t, errs.Is(err, errs.Validation))

	_, err = EncodeSecret(strings.Repeat("s", MaxSecretBytes+1))
	assert.True(t, errs.Is(err, errs.Validation))

	_, err = EncodeSecret("0x" + strings.Repeat("ff", MaxSecretBytes+1))
	assert.True(t, errs.Is(err, errs.Validation))

	// 32 bytes, but at or above the scalar modulus
	_, err = EncodeSecret(strings.Repeat("z", MaxSecretBytes))
	assert.True(t, errs.Is(err, errs.Validation))
	_, err = EncodeSecret("0x" + fr.Modulus().Text(16))
	assert.True(t, errs.Is(err, errs.Validation))

	v, err = EncodeSecret("0x" + new(big.Int).Sub(fr.Modulus(), big.NewInt(1)).Text(16))
	require.NoError(t, err)
	assert.Equal(t, 0, v.Cmp(new(big.Int).Sub(fr.Modulus(), big.NewInt(1))))
}

func TestCalculateLeaf(t *testing.T) {
	a, err := CalculateLeaf(accountAddr, "hello world", big.NewInt(0))
	require.NoError(t, err)
	// circomlibjs pedersenHash over address || secret || nullifier
	assert.Equal(t, "13306912523844023578497130685334374102932480143697960616584653715411302622901", a.String())

	b, err := CalculateLeaf(accountAddr, "hello world", nil)
	require.NoError(t, err)
	assert.Equal(t, a, b, "nil nullifier is zero")

	c, err := CalculateLeaf(accountAddr, "hello world", big.NewInt(1))
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	d, err := CalculateLeaf(common.HexToAddress("0x2222222222222222222222222222222222222222"), "hello world", nil)
	require.NoError(t, err)
	assert.NotEqual(t, a, d)

	_, err = CalculateLeaf(accountAddr, "", nil)
	assert.True(t, errs.Is(err, errs.Validation))
}

func TestComputeCommitment(t *testing.T) {
	a, err := ComputeCommitment("hello world", 0)
	require.NoError(t, err)
	again, err := ComputeCommitment("hello world", 0)
	require.NoError(t, err)
	assert.Equal(t, a, again)
	assert.Equal(t, "73337125664467053991946749568999530803066166801882207925688168956322003761355", a.String())

	b, err := ComputeCommitment("hello world", 1)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	_, err = ComputeCommitment(strings.Repeat("s", MaxSecretBytes), 0)
	assert.True(t, errs.Is(err, errs.Validation))

	plain, err := HashMessage("hello world0")
	require.NoError(t, err)
	assert.Equal(t, a, plain)
	_, err = HashMessage("")
	assert.True(t, errs.Is(err, errs.Validation))
}

// registryChain emulates the registry: every registerUser transaction is
// mined with a UserRegistered log carrying the next index.
func registryChain(t *testing.T) *chaintest.Backend {
	b := chaintest.New()
	next := uint32(0)
	method := contracts.Registry.Methods["registerUser"]
	event := contracts.Registry.Events["UserRegistered"]
	b.OnSend = func(tx *types.Transaction) (*types.Receipt, []types.Log) {
		if tx.To() == nil || *tx.To() != registryAddr || !bytes.HasPrefix(tx.Data(), method.ID) {
			return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
		}
		args, err := method.Inputs.Unpack(tx.Data()[4:])
		require.NoError(t, err)
		data, err := event.Inputs.Pack(args[0].(*big.Int), next)
		require.NoError(t, err)
		next++
		l := types.Log{Address: registryAddr, Topics: []common.Hash{event.ID}, Data: data, TxHash: tx.Hash()}
		return &types.Receipt{Status: types.ReceiptStatusSuccessful, Logs: []*types.Log{&l}}, []types.Log{l}
	}
	return b
}

func newTransactor(t *testing.T, b chain.Backend) *chain.Transactor {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return chain.NewTransactor(b, key)
}

func TestRegisterIsIdempotent(t *testing.T) {
	b := registryChain(t)
	reg := NewRegistry(registryAddr, b, newTransactor(t, b))
	ctx := context.Background()

	first, err := reg.Register(ctx, accountAddr, "hello world", big.NewInt(0))
	require.NoError(t, err)
	assert.False(t, first.AlreadyRegistered)
	assert.Equal(t, uint32(0), first.Index)
	assert.NotEqual(t, common.Hash{}, first.TxHash)

	second, err := reg.Register(ctx, accountAddr, "hello world", big.NewInt(0))
	require.NoError(t, err)
	assert.True(t, second.AlreadyRegistered)
	assert.Equal(t, first.Leaf, second.Leaf)
	assert.Equal(t, first.Index, second.Index)

	assert.Len(t, b.Sent, 1)
	leaves, err := reg.Leaves(ctx)
	require.NoError(t, err)
	assert.Equal(t, []*big.Int{first.Leaf}, leaves)
}

func TestLeavesSortedByIndex(t *testing.T) {
	b := chaintest.New()
	event := contracts.Registry.Events["UserRegistered"]
	for _, e := range []struct {
		leaf  int64
		index uint32
	}{{30, 2}, {10, 0}, {20, 1}} {
		data, err := event.Inputs.Pack(big.NewInt(e.leaf), e.index)
		require.NoError(t, err)
		b.Logs = append(b.Logs, types.Log{Address: registryAddr, Topics: []common.Hash{event.ID}, Data: data})
	}
	// Same event from another contract is ignored.
	data, err := event.Inputs.Pack(big.NewInt(99), uint32(0))
	require.NoError(t, err)
	b.Logs = append(b.Logs, types.Log{Address: factoryAddr, Topics: []common.Hash{event.ID}, Data: data})

	leaves, err := NewRegistry(registryAddr, b, nil).Leaves(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []*big.Int{big.NewInt(10), big.NewInt(20), big.NewInt(30)}, leaves)
}

func TestRegisterWithoutSigner(t *testing.T) {
	b := chaintest.New()
	_, err := NewRegistry(registryAddr, b, nil).RegisterIfAbsent(context.Background(), big.NewInt(1))
	assert.Error(t, err)
}

func TestIsKnownRoot(t *testing.T) {
	b := chaintest.New()
	method := contracts.Registry.Methods["isKnownRoot"]
	b.CallFn = func(call ethereum.CallMsg) ([]byte, error) {
		args, err := method.Inputs.Unpack(call.Data[4:])
		if err != nil {
			return nil, err
		}
		return method.Outputs.Pack(args[0].(*big.Int).Int64() == 7)
	}
	reg := NewRegistry(registryAddr, b, nil)

	known, err := reg.IsKnownRoot(context.Background(), big.NewInt(7))
	require.NoError(t, err)
	assert.True(t, known)
	known, err = reg.IsKnownRoot(context.Background(), big.NewInt(8))
	require.NoError(t, err)
	assert.False(t, known)
}

func factoryChain(t *testing.T, predicted common.Address) *chaintest.Backend {
	b := chaintest.New()
	getSender := contracts.Factory.Methods["getSender"]
	b.CallFn = func(call ethereum.CallMsg) ([]byte, error) {
		require.Equal(t, factoryAddr, *call.To)
		require.True(t, bytes.HasPrefix(call.Data, getSender.ID))
		return getSender.Outputs.Pack(predicted)
	}
	b.OnSend = func(tx *types.Transaction) (*types.Receipt, []types.Log) {
		return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
	}
	return b
}

func TestCreateSmartAccount(t *testing.T) {
	b := factoryChain(t, accountAddr)
	f := NewAccountFactory(factoryAddr, b, newTransactor(t, b))
	ctx := context.Background()

	acct, err := f.CreateSmartAccount(ctx, "hello world", CreateOptions{})
	require.NoError(t, err)
	assert.True(t, acct.Deployed)
	assert.Equal(t, accountAddr, acct.Address)
	require.Len(t, b.Sent, 1)

	commitment, err := ComputeCommitment("hello world", 0)
	require.NoError(t, err)
	want, err := contracts.Factory.Pack("createAccount", commitment, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, want, b.Sent[0].Data())

	// Code present: nothing is sent unless forced.
	b.Code[accountAddr] = []byte{0x60, 0x80}
	acct, err = f.CreateSmartAccount(ctx, "hello world", CreateOptions{})
	require.NoError(t, err)
	assert.False(t, acct.Deployed)
	assert.Len(t, b.Sent, 1)

	acct, err = f.CreateSmartAccount(ctx, "hello world", CreateOptions{Force: true, Salt: big.NewInt(5)})
	require.NoError(t, err)
	assert.True(t, acct.Deployed)
	assert.Len(t, b.Sent, 2)
}
