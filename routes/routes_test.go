package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idprivacy/bundler"
	"idprivacy/chain"
	"idprivacy/chain/chaintest"
	"idprivacy/contracts"
	"idprivacy/controllers"
	"idprivacy/errs"
	"idprivacy/identity"
	"idprivacy/models"
	"idprivacy/operations"
	"idprivacy/simulation"
	"idprivacy/store"
	"idprivacy/submission"
	"idprivacy/userop"
)

var (
	entryPoint = common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")
	registry   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	paymaster  = common.HexToAddress("0x00000000000000000000000000000000000000ba")
	sender     = common.HexToAddress("0x7a8D610A51C988E7c621d4Ff048845b48476D6b6")
	bundleTx   = common.HexToHash("0xb0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0")
)

type relay struct {
	info *bundler.UserOperationInfo
	err  error
}

func (r *relay) SendUserOperation(ctx context.Context, op userop.UserOperation) (common.Hash, error) {
	if r.err != nil {
		return common.Hash{}, r.err
	}
	return userop.Hash(op, entryPoint, big.NewInt(31337))
}

func (r *relay) GetUserOperationByHash(ctx context.Context, hash common.Hash) (*bundler.UserOperationInfo, error) {
	return r.info, r.err
}

type server struct {
	engine  *gin.Engine
	backend *chaintest.Backend
	relay   *relay
}

// newServer mounts every router against an in-memory chain. With signer
// the service key is set.
func newServer(t *testing.T, signer bool) *server {
	gin.SetMode(gin.TestMode)
	b := chaintest.New()
	b.OnSend = func(tx *types.Transaction) (*types.Receipt, []types.Log) {
		return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
	}
	var tx *chain.Transactor
	if signer {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		tx = chain.NewTransactor(b, key)
	}
	rl := &relay{}

	r := gin.New()
	SetupRouter(r)
	SetupIdentityRouter(r, controllers.NewIdentityController(
		identity.NewAccountFactory(common.Address{}, b, tx),
		identity.NewRegistry(registry, b, tx),
		nil, nil))
	SetupUserOpRouter(r, controllers.NewUserOpController(rl, b, entryPoint, tx))
	SetupDepositRouter(r, controllers.NewDepositController(paymaster, b, tx))
	return &server{engine: r, backend: b, relay: rl}
}

func (s *server) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	out := map[string]interface{}{}
	if w.Body.Len() > 0 && w.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func TestHealth(t *testing.T) {
	s := newServer(t, false)
	w, body := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestLeaf(t *testing.T) {
	s := newServer(t, false)
	want, err := identity.CalculateLeaf(sender, "secret0", big.NewInt(3))
	require.NoError(t, err)

	w, body := s.do(t, http.MethodPost, "/api/identity/leaf", gin.H{"address": sender, "secret": "secret0", "nullifier": 3})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, want.String(), body["leaf"])

	w, _ = s.do(t, http.MethodPost, "/api/identity/leaf", gin.H{"address": sender})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = s.do(t, http.MethodPost, "/api/identity/leaf", gin.H{"address": sender, "secret": string(make([]byte, 40))})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", body["kind"])
}

func TestRegister(t *testing.T) {
	s := newServer(t, true)
	event := contracts.Registry.Events["UserRegistered"]
	s.backend.OnSend = func(tx *types.Transaction) (*types.Receipt, []types.Log) {
		args, err := contracts.Registry.Methods["registerUser"].Inputs.Unpack(tx.Data()[4:])
		require.NoError(t, err)
		data, err := event.Inputs.Pack(args[0].(*big.Int), uint32(0))
		require.NoError(t, err)
		l := types.Log{Address: registry, Topics: []common.Hash{event.ID}, Data: data}
		return &types.Receipt{Status: types.ReceiptStatusSuccessful, Logs: []*types.Log{&l}}, []types.Log{l}
	}
	req := gin.H{"address": sender, "secret": "secret0"}

	w, body := s.do(t, http.MethodPost, "/api/identity/register", req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, false, body["alreadyRegistered"])
	assert.NotEmpty(t, body["txHash"])
	require.Len(t, s.backend.Sent, 1)
	assert.Equal(t, registry, *s.backend.Sent[0].To())

	w, body = s.do(t, http.MethodPost, "/api/identity/register", req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["alreadyRegistered"])
	assert.Len(t, s.backend.Sent, 1)
}

func TestWritesWithoutSigner(t *testing.T) {
	s := newServer(t, false)
	w, body := s.do(t, http.MethodPost, "/api/identity/register", gin.H{"address": sender, "secret": "secret0"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code, w.Body.String())
	assert.Equal(t, "unavailable", body["kind"])
	assert.Empty(t, s.backend.Sent)

	w, body = s.do(t, http.MethodPost, "/api/identity/user-data/deploy", gin.H{"secret": "secret0", "smartAccount": sender, "data": "hello"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code, w.Body.String())
	assert.Equal(t, "unavailable", body["kind"])

	w, _ = s.do(t, http.MethodPost, "/api/paymaster/deposit", gin.H{"amount": 1})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestUserDataRequestValidation(t *testing.T) {
	s := newServer(t, false)
	w, _ := s.do(t, http.MethodPost, "/api/identity/user-data/update", gin.H{"secret": "secret0", "smartAccount": sender})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body := s.do(t, http.MethodPost, "/api/identity/user-data/deploy", gin.H{"secret": "secret0", "smartAccount": sender, "mode": "stealth"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", body["kind"])
}

func TestPackUserOp(t *testing.T) {
	s := newServer(t, false)
	w, body := s.do(t, http.MethodPost, "/api/operations/pack-user-op", gin.H{
		"userOp": gin.H{"sender": sender, "nonce": "0x1", "callData": "0xdeadbeef"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, sender.Hex(), body["sender"])
	assert.Equal(t, "0x1", body["nonce"])
	assert.Equal(t, "0xdeadbeef", body["callData"])
	assert.Equal(t, "0x", body["initCode"])
}

func TestUserOpHash(t *testing.T) {
	s := newServer(t, false)
	partial := userop.Fields{Sender: &sender}
	op := userop.FillDefaults(partial, userop.Defaults())

	want, err := userop.Hash(op, entryPoint, big.NewInt(31337))
	require.NoError(t, err)
	w, body := s.do(t, http.MethodPost, "/api/operations/user-op-hash", gin.H{"userOp": partial})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, want.Hex(), body["userOpHash"])

	other := common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")
	want, err = userop.Hash(op, other, big.NewInt(1))
	require.NoError(t, err)
	_, body = s.do(t, http.MethodPost, "/api/operations/user-op-hash", gin.H{"userOp": partial, "entryPointAddress": other, "chainId": 1})
	assert.Equal(t, want.Hex(), body["userOpHash"])
}

func TestSendUserOpRejected(t *testing.T) {
	s := newServer(t, false)
	s.relay.err = errs.E(errs.RelayRejection, "bundler.Send", &errs.RelayError{Code: -32602, Message: "invalid params"})
	w, body := s.do(t, http.MethodPost, "/api/operations/send-user-op", gin.H{"userOp": gin.H{"sender": sender}})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.EqualValues(t, -32602, body["code"])
}

func TestUserOpStatus(t *testing.T) {
	s := newServer(t, false)
	opHash := common.HexToHash("0x01")

	w, _ := s.do(t, http.MethodPost, "/api/operations/user-op-status", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/operations/user-op-status", gin.H{"userOpHash": opHash, "maxAttempts": 2, "delayMs": -1})
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)

	tx := bundleTx
	s.relay.info = &bundler.UserOperationInfo{EntryPoint: entryPoint, TransactionHash: &tx}
	w, body := s.do(t, http.MethodPost, "/api/operations/user-op-status", gin.H{"userOpHash": opHash, "maxAttempts": 2, "delayMs": -1})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, bundleTx.Hex(), body["txHash"])
}

func TestTransactionStatus(t *testing.T) {
	s := newServer(t, false)
	w, _ := s.do(t, http.MethodPost, "/api/operations/transaction-status", gin.H{"txHash": bundleTx, "maxAttempts": 1, "delayMs": -1})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "null", w.Body.String())

	w, _ = s.do(t, http.MethodPost, "/api/operations/transaction-status", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	s.backend.SetReceipt(bundleTx, 120)
	w, body := s.do(t, http.MethodPost, "/api/operations/transaction-status", gin.H{"txHash": bundleTx, "maxAttempts": 1, "delayMs": -1})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, bundleTx.Hex(), body["transactionHash"])
}

func packedBody(t *testing.T) models.PackedUserOperation {
	op := userop.Defaults()
	op.Sender = sender
	packed, err := userop.Pack(op)
	require.NoError(t, err)
	return models.FromPacked(packed)
}

func TestHandleOps(t *testing.T) {
	s := newServer(t, true)
	w, body := s.do(t, http.MethodPost, "/api/operations/handle-ops", packedBody(t))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, s.backend.Sent, 1)
	sent := s.backend.Sent[0]
	assert.Equal(t, entryPoint, *sent.To())
	assert.Equal(t, contracts.EntryPoint.Methods["handleOps"].ID, sent.Data()[:4])
	assert.Equal(t, sent.Hash().Hex(), body["transactionHash"])

	bad := packedBody(t)
	bad.AccountGasLimits = "0x1234"
	w, _ = s.do(t, http.MethodPost, "/api/operations/handle-ops", bad)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleOpsWithoutSigner(t *testing.T) {
	s := newServer(t, false)
	w, body := s.do(t, http.MethodPost, "/api/operations/handle-ops", packedBody(t))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unavailable", body["kind"])
}

func TestDeposit(t *testing.T) {
	s := newServer(t, true)
	getDeposit := contracts.Paymaster.Methods["getDeposit"]
	deposited := big.NewInt(5)
	s.backend.CallFn = func(call ethereum.CallMsg) ([]byte, error) {
		if bytes.HasPrefix(call.Data, getDeposit.ID) {
			return getDeposit.Outputs.Pack(deposited)
		}
		return nil, errors.New("unexpected call")
	}
	s.backend.OnSend = func(tx *types.Transaction) (*types.Receipt, []types.Log) {
		deposited = new(big.Int).Add(deposited, tx.Value())
		return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
	}

	w, body := s.do(t, http.MethodGet, "/api/paymaster/deposit", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "5", body["deposit"])

	w, _ = s.do(t, http.MethodPost, "/api/paymaster/deposit", gin.H{"amount": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = s.do(t, http.MethodPost, "/api/paymaster/deposit", gin.H{"amount": "0x7"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "12", body["deposit"])
	require.Len(t, s.backend.Sent, 1)
	assert.Equal(t, paymaster, *s.backend.Sent[0].To())
	assert.Equal(t, big.NewInt(7), s.backend.Sent[0].Value())
}

// users stands in for the factory, registry and operations service.
type users struct{ deployed []string }

func (u *users) CreateSmartAccount(ctx context.Context, secret string, opts identity.CreateOptions) (identity.SmartAccount, error) {
	return identity.SmartAccount{Address: common.BytesToAddress(crypto.Keccak256([]byte(secret))), Commitment: big.NewInt(1)}, nil
}

func (u *users) Register(ctx context.Context, address common.Address, secret string, nullifier *big.Int) (identity.Registration, error) {
	return identity.Registration{Leaf: big.NewInt(9)}, nil
}

func (u *users) DeployUserData(ctx context.Context, mode operations.Mode, id operations.Identity, data string) (*operations.Result, error) {
	u.deployed = append(u.deployed, mode.String()+":"+id.Secret)
	return &operations.Result{Mode: mode, Submission: &submission.Submission{State: submission.Mined}}, nil
}

func TestSimulation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	u := &users{}
	r := gin.New()
	SetupSimulationRouter(r, controllers.NewSimulationController(simulation.New(u, u, u, store.NewWallets(store.NewMemory()), nil)))
	s := &server{engine: r}

	w, _ := s.do(t, http.MethodPost, "/api/simulation/wallets", gin.H{"count": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var wallets []store.Wallet
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &wallets))
	require.Len(t, wallets, 2)
	assert.Equal(t, "secret1", wallets[1].Secret)
	assert.Empty(t, wallets[0].PrivateKey)

	w, _ = s.do(t, http.MethodPost, "/api/simulation/wallets", gin.H{"count": 2})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/simulation/wallets", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &wallets))
	assert.Len(t, wallets, 2)

	w, body := s.do(t, http.MethodPost, "/api/simulation/single-user", gin.H{"secret": "alice", "mode": "privacy"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "ok", body["status"])

	w, _ = s.do(t, http.MethodPost, "/api/simulation/single-user", gin.H{"mode": "privacy"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/simulation/multiple-users", gin.H{"wallets": []int{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = s.do(t, http.MethodPost, "/api/simulation/multiple-users", gin.H{"wallets": []int{1, 0}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, body["results"], 2)
	assert.Equal(t, []string{"privacy:alice", "standard:secret1", "standard:secret0"}, u.deployed)

	w, body = s.do(t, http.MethodPost, "/api/simulation/wallets/fund", gin.H{"amount": "1000"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unavailable", body["kind"])
}
