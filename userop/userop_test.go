package userop

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idprivacy/chain/chaintest"
	"idprivacy/contracts"
	"idprivacy/errs"
)

var (
	testEntryPoint = common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")
	testSender     = common.HexToAddress("0xC26Cbf92EdD4D0bE0d73264f097F76432ffb81D1")
	testPaymaster  = common.HexToAddress("0xF988D980A36c3E8da79AB91B4562fD81adA7ECE3")
)

func sampleOp() UserOperation {
	op := Defaults()
	op.Sender = testSender
	op.Nonce = big.NewInt(3)
	op.CallData = []byte{0xde, 0xad, 0xbe, 0xef}
	op.CallGasLimit = big.NewInt(8_000_000)
	op.MaxFeePerGas = big.NewInt(40_000_000_000)
	op.Signature = []byte{1, 2, 3}
	return op
}

func TestPackTwo128RoundTrip(t *testing.T) {
	word, err := PackTwo128(big.NewInt(600000), big.NewInt(8000000))
	require.NoError(t, err)
	assert.Equal(t, "0x000000000000000000000000000927c0000000000000000000000000007a1200", hexutil.Encode(word[:]))

	high, low := UnpackTwo128(word)
	assert.Equal(t, int64(600000), high.Int64())
	assert.Equal(t, int64(8000000), low.Int64())

	max := new(big.Int).Set(maxUint128)
	word, err = PackTwo128(max, big.NewInt(0))
	require.NoError(t, err)
	high, low = UnpackTwo128(word)
	assert.Equal(t, 0, high.Cmp(max))
	assert.Equal(t, 0, low.Sign())
}

func TestPackTwo128Overflow(t *testing.T) {
	tooBig := new(big.Int).Lsh(big.NewInt(1), 128)
	_, err := PackTwo128(tooBig, big.NewInt(1))
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Validation))

	_, err = PackTwo128(big.NewInt(1), big.NewInt(-1))
	assert.Error(t, err)
	_, err = PackTwo128(nil, big.NewInt(1))
	assert.Error(t, err)
}

func TestPackPaymasterAndData(t *testing.T) {
	out, err := PackPaymasterAndData(common.Address{}, big.NewInt(1), big.NewInt(2), []byte{9})
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.NotNil(t, out)

	data := []byte{0xaa, 0xbb, 0xcc}
	out, err = PackPaymasterAndData(testPaymaster, big.NewInt(0x927C), big.NewInt(0x927C0), data)
	require.NoError(t, err)
	require.Len(t, out, 20+16+16+len(data))
	assert.Equal(t, testPaymaster.Bytes(), out[:20])
	assert.Equal(t, int64(0x927C), new(big.Int).SetBytes(out[20:36]).Int64())
	assert.Equal(t, int64(0x927C0), new(big.Int).SetBytes(out[36:52]).Int64())
	assert.Equal(t, data, out[52:])
}

func TestPackLayout(t *testing.T) {
	op := sampleOp()
	p, err := Pack(op)
	require.NoError(t, err)

	ver, call := UnpackTwo128(p.AccountGasLimits)
	assert.Equal(t, 0, ver.Cmp(op.VerificationGasLimit))
	assert.Equal(t, 0, call.Cmp(op.CallGasLimit))
	prio, max := UnpackTwo128(p.GasFees)
	assert.Equal(t, 0, prio.Cmp(op.MaxPriorityFeePerGas))
	assert.Equal(t, 0, max.Cmp(op.MaxFeePerGas))
	assert.Empty(t, p.PaymasterAndData)

	op.Paymaster = testPaymaster
	op.PaymasterData = []byte{1, 2}
	p, err = Pack(op)
	require.NoError(t, err)
	assert.Len(t, p.PaymasterAndData, 20+16+16+2)

	op.Nonce = nil
	_, err = Pack(op)
	assert.True(t, errs.Is(err, errs.Validation))
}

func TestEncodeSizes(t *testing.T) {
	op := sampleOp()
	sig, err := Encode(op, true)
	require.NoError(t, err)
	assert.Len(t, sig, 8*32)

	op.CallData = make([]byte, 1000)
	sig2, err := Encode(op, true)
	require.NoError(t, err)
	assert.Len(t, sig2, 8*32)

	full, err := Encode(op, false)
	require.NoError(t, err)
	assert.Greater(t, len(full), 1000)
}

func TestHashPure(t *testing.T) {
	op := sampleOp()
	chainID := big.NewInt(80002)
	h1, err := Hash(op, testEntryPoint, chainID)
	require.NoError(t, err)
	h2, err := Hash(op, testEntryPoint, chainID)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	// the signature is not part of the hash
	op2 := op.Copy()
	op2.Signature = []byte{9, 9, 9}
	h3, err := Hash(op2, testEntryPoint, chainID)
	require.NoError(t, err)
	assert.Equal(t, h1, h3)
}

// EntryPoint v0.7 getUserOpHash for sampleOp on chain 80002
func TestHashKnownValue(t *testing.T) {
	h, err := Hash(sampleOp(), testEntryPoint, big.NewInt(80002))
	require.NoError(t, err)
	assert.Equal(t, "0x9107cfcab0b605303656d75dfaffcc0a8d0852fd13569c2070a410f16bd408f7", h.Hex())
}

func TestHashSensitivity(t *testing.T) {
	base := sampleOp()
	chainID := big.NewInt(80002)
	ref, err := Hash(base, testEntryPoint, chainID)
	require.NoError(t, err)

	mutations := map[string]func(op *UserOperation){
		"nonce":                func(op *UserOperation) { op.Nonce = big.NewInt(4) },
		"sender":               func(op *UserOperation) { op.Sender = testPaymaster },
		"callData":             func(op *UserOperation) { op.CallData = []byte{0xde, 0xad} },
		"initCode":             func(op *UserOperation) { op.InitCode = testPaymaster.Bytes() },
		"callGasLimit":         func(op *UserOperation) { op.CallGasLimit = big.NewInt(1) },
		"verificationGasLimit": func(op *UserOperation) { op.VerificationGasLimit = big.NewInt(1) },
		"preVerificationGas":   func(op *UserOperation) { op.PreVerificationGas = big.NewInt(1) },
		"maxFeePerGas":         func(op *UserOperation) { op.MaxFeePerGas = big.NewInt(1) },
		"maxPriorityFeePerGas": func(op *UserOperation) { op.MaxPriorityFeePerGas = big.NewInt(1) },
		"paymaster":            func(op *UserOperation) { op.Paymaster = testPaymaster },
	}
	for name, mutate := range mutations {
		op := base.Copy()
		mutate(&op)
		h, err := Hash(op, testEntryPoint, chainID)
		require.NoError(t, err, name)
		assert.NotEqual(t, ref, h, name)
	}

	h, err := Hash(base, testSender, chainID)
	require.NoError(t, err)
	assert.NotEqual(t, ref, h)
	h, err = Hash(base, testEntryPoint, big.NewInt(1))
	require.NoError(t, err)
	assert.NotEqual(t, ref, h)
}

func TestFillDefaultsNullIsUnspecified(t *testing.T) {
	var partial Fields
	require.NoError(t, json.Unmarshal([]byte(`{
		"sender": "0xC26Cbf92EdD4D0bE0d73264f097F76432ffb81D1",
		"nonce": null,
		"callData": "0x1234",
		"verificationGasLimit": null,
		"maxFeePerGas": "1000",
		"callGasLimit": "0x10"
	}`), &partial))

	op := FillDefaults(partial, Defaults())
	assert.Equal(t, testSender, op.Sender)
	assert.Equal(t, int64(0), op.Nonce.Int64())
	assert.Equal(t, int64(150_000), op.VerificationGasLimit.Int64())
	assert.Equal(t, int64(1000), op.MaxFeePerGas.Int64())
	assert.Equal(t, int64(16), op.CallGasLimit.Int64())
	assert.Equal(t, []byte{0x12, 0x34}, op.CallData)
	assert.Equal(t, int64(1_000_000_000), op.MaxPriorityFeePerGas.Int64())
}

func TestFillDefaultsDoesNotAlias(t *testing.T) {
	defaults := Defaults()
	op := FillDefaults(Fields{}, defaults)
	op.VerificationGasLimit.SetInt64(1)
	assert.Equal(t, int64(150_000), defaults.VerificationGasLimit.Int64())
}

func TestQuantity(t *testing.T) {
	for in, want := range map[string]int64{`12`: 12, `"12"`: 12, `"0x0c"`: 12, `"0x"`: 0} {
		var q Quantity
		require.NoError(t, json.Unmarshal([]byte(in), &q), in)
		assert.Equal(t, want, q.Big().Int64(), in)
	}
	var q Quantity
	assert.Error(t, json.Unmarshal([]byte(`"-1"`), &q))
	assert.Error(t, json.Unmarshal([]byte(`true`), &q))

	out, err := json.Marshal(NewQuantity(big.NewInt(255)))
	require.NoError(t, err)
	assert.Equal(t, `"0xff"`, string(out))
}

func TestRPCConversion(t *testing.T) {
	op := sampleOp()
	op.InitCode = append(testPaymaster.Bytes(), 0x01, 0x02)
	op.Paymaster = testPaymaster
	op.PaymasterData = []byte{7}

	r, err := ToRPC(op)
	require.NoError(t, err)
	require.NotNil(t, r.Factory)
	assert.Equal(t, testPaymaster, *r.Factory)
	assert.Equal(t, hexutil.Bytes{0x01, 0x02}, r.FactoryData)

	back := FromRPC(r)
	h1, err := Hash(op, testEntryPoint, big.NewInt(1))
	require.NoError(t, err)
	h2, err := Hash(back, testEntryPoint, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	plain := sampleOp()
	r, err = ToRPC(plain)
	require.NoError(t, err)
	raw, err := json.Marshal(r)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "paymaster")
	assert.NotContains(t, string(raw), "factory")
}

func TestDefaultOperation(t *testing.T) {
	op, err := DefaultOperation(testSender, testPaymaster, Window{ValidUntil: 0xdeadbeef, ValidAfter: 0x1234})
	require.NoError(t, err)
	assert.Len(t, op.PaymasterData, 64+SignatureLength)
	assert.Equal(t, uint64(0xdeadbeef), new(big.Int).SetBytes(op.PaymasterData[:32]).Uint64())
	assert.Equal(t, uint64(0x1234), new(big.Int).SetBytes(op.PaymasterData[32:64]).Uint64())
	assert.Nil(t, op.Nonce)
}

func TestExecuteCallData(t *testing.T) {
	data, err := ExecuteCallData(common.Address{}, nil, []byte{1})
	require.NoError(t, err)
	assert.Equal(t, contracts.Account.Methods["execute"].ID, data[:4])
}

func TestFillerResolvesFromChain(t *testing.T) {
	backend := chaintest.New()
	backend.Gas = 77_000
	backend.BaseFee = big.NewInt(30)
	backend.CallFn = func(call ethereum.CallMsg) ([]byte, error) {
		return contracts.Account.Methods["getNonce"].Outputs.Pack(big.NewInt(5))
	}
	f := NewFiller(backend, testEntryPoint)

	callData := hexutil.Bytes{0x01}
	paymaster := testPaymaster
	op, err := f.Fill(context.Background(), Fields{
		Sender:    &testSender,
		CallData:  &callData,
		Paymaster: &paymaster,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), op.Nonce.Int64())
	assert.Equal(t, int64(77_000), op.CallGasLimit.Int64())
	assert.Equal(t, int64(1_000_000_030), op.MaxFeePerGas.Int64())
	assert.Equal(t, int64(300_000), op.PaymasterVerificationGasLimit.Int64())

	require.Len(t, backend.Calls, 1)
	assert.Equal(t, testSender, *backend.Calls[0].To)
}

func TestFillerRequiresSender(t *testing.T) {
	f := NewFiller(chaintest.New(), testEntryPoint)
	_, err := f.Fill(context.Background(), Fields{})
	assert.True(t, errs.Is(err, errs.Validation))
}
