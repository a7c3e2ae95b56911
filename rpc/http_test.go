package rpc

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"stakevault/core/types"
	"stakevault/crypto"
	"stakevault/native/registry"
	"stakevault/native/rewardtoken"
	"stakevault/native/vault"
	"stakevault/state"
	"stakevault/storage"
)

const (
	testRPCToken  = "test-rpc-token"
	testJWTSecret = "test-admin-secret"
)

type manualClock struct {
	height uint64
	ts     uint64
}

func (c *manualClock) Height() uint64    { return c.height }
func (c *manualClock) Timestamp() uint64 { return c.ts }

type testHarness struct {
	server *httptest.Server
	srv    *Server
	reg    *registry.Registry
	clock  *manualClock
	admin  [20]byte
	nextID int
}

func makeAddr(suffix byte) [20]byte {
	var out [20]byte
	out[19] = suffix
	return out
}

func bech(addr [20]byte) string {
	return crypto.MustNewAddress(crypto.StakePrefix, addr[:]).String()
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	t.Setenv("VAULT_RPC_TOKEN", testRPCToken)

	manager := state.NewManager(storage.NewMemDB())
	clock := &manualClock{height: 1, ts: 1_000}
	admin := makeAddr(0xAA)

	reg := registry.NewRegistry()
	reg.SetState(manager)
	rewards := rewardtoken.NewLedger()
	rewards.SetState(manager)

	engine := vault.NewEngine(vault.ModuleAddress(), admin)
	engine.SetState(manager)
	engine.SetRegistry(reg)
	engine.SetIssuer(rewards)
	engine.SetClock(clock)

	require.NoError(t, manager.PutParams(vault.Params{
		RewardRatePerTokenPerHeight:    big.NewInt(1),
		WithdrawalWaitingPeriodSeconds: 100,
	}))

	adminAuth := NewAdminAuthenticator(AdminAuthConfig{HMACSecret: testJWTSecret})
	srv := NewServer(engine, reg, rewards, adminAuth)

	harness := &testHarness{
		server: httptest.NewServer(http.HandlerFunc(srv.handle)),
		srv:    srv,
		reg:    reg,
		clock:  clock,
		admin:  admin,
	}
	t.Cleanup(harness.server.Close)
	return harness
}

type callOption func(*http.Request)

func withBearer(token string) callOption {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}

func withAdminJWT(t *testing.T, secret string) callOption {
	t.Helper()
	claims := jwt.MapClaims{
		"scope": AdminScope,
		"exp":   time.Now().Add(time.Hour).Unix(),
		"iat":   time.Now().Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return func(r *http.Request) {
		r.Header.Set("X-Admin-Token", token)
	}
}

func (h *testHarness) call(t *testing.T, method string, params interface{}, opts ...callOption) *RPCResponse {
	t.Helper()
	h.nextID++
	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      h.nextID,
		"method":  method,
	}
	if params != nil {
		payload["params"] = []interface{}{params}
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, h.server.URL, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for _, opt := range opts {
		opt(req)
	}
	resp, err := h.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var rpcResp RPCResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rpcResp))
	return &rpcResp
}

func (h *testHarness) mustCall(t *testing.T, method string, params interface{}, opts ...callOption) *RPCResponse {
	t.Helper()
	resp := h.call(t, method, params, opts...)
	require.Nilf(t, resp.Error, "method %s: %+v", method, resp.Error)
	return resp
}

func TestStakeWithdrawFlowOverRPC(t *testing.T) {
	h := newTestHarness(t)
	owner := makeAddr(1)

	h.mustCall(t, "registry_mint", map[string]string{
		"owner": bech(owner), "tokenId": "7",
	}, withBearer(testRPCToken))

	h.mustCall(t, "vault_stake", map[string]string{
		"caller": bech(owner), "tokenId": "7",
	}, withBearer(testRPCToken))

	resp := h.mustCall(t, "vault_stakedTotal", nil)
	var total uint64
	require.NoError(t, json.Unmarshal(mustRaw(t, resp.Result), &total))
	require.Equal(t, uint64(1), total)

	resp = h.mustCall(t, "vault_getToken", map[string]string{"tokenId": "7"})
	var token tokenResult
	require.NoError(t, json.Unmarshal(mustRaw(t, resp.Result), &token))
	require.Equal(t, bech(owner), token.Controller)
	require.Equal(t, uint64(1), token.StakedAtHeight)

	h.mustCall(t, "vault_requestWithdrawal", map[string]string{
		"caller": bech(owner), "tokenId": "7",
	}, withBearer(testRPCToken))

	h.clock.ts += 101
	h.clock.height = 50
	h.mustCall(t, "vault_withdraw", map[string]string{
		"caller": bech(owner), "tokenId": "7",
	}, withBearer(testRPCToken))

	resp = h.mustCall(t, "reward_balance", map[string]string{"address": bech(owner)})
	var balance map[string]string
	require.NoError(t, json.Unmarshal(mustRaw(t, resp.Result), &balance))
	require.Equal(t, "49", balance["balance"])

	resp = h.mustCall(t, "registry_owner", map[string]string{"tokenId": "7"})
	var ownerResp map[string]string
	require.NoError(t, json.Unmarshal(mustRaw(t, resp.Result), &ownerResp))
	require.Equal(t, bech(owner), ownerResp["owner"])
}

func TestMutatingMethodsRequireBearer(t *testing.T) {
	h := newTestHarness(t)
	owner := makeAddr(1)

	resp := h.call(t, "vault_stake", map[string]string{
		"caller": bech(owner), "tokenId": "7",
	})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	resp = h.call(t, "vault_stake", map[string]string{
		"caller": bech(owner), "tokenId": "7",
	}, withBearer("wrong-token"))
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)
}

func TestWithdrawBeforeRequestReturnsStateViolation(t *testing.T) {
	h := newTestHarness(t)
	owner := makeAddr(1)

	h.mustCall(t, "registry_mint", map[string]string{
		"owner": bech(owner), "tokenId": "7",
	}, withBearer(testRPCToken))
	h.mustCall(t, "vault_stake", map[string]string{
		"caller": bech(owner), "tokenId": "7",
	}, withBearer(testRPCToken))

	resp := h.call(t, "vault_withdraw", map[string]string{
		"caller": bech(owner), "tokenId": "7",
	}, withBearer(testRPCToken))
	require.NotNil(t, resp.Error)
	require.Equal(t, codeStateViolation, resp.Error.Code)
}

func TestStakeUnownedTokenReturnsTransferRejected(t *testing.T) {
	h := newTestHarness(t)
	owner := makeAddr(1)

	resp := h.call(t, "vault_stake", map[string]string{
		"caller": bech(owner), "tokenId": "99",
	}, withBearer(testRPCToken))
	require.NotNil(t, resp.Error)
	require.Equal(t, codeTransferRejected, resp.Error.Code)
}

func TestAdminMethodsRequireJWT(t *testing.T) {
	h := newTestHarness(t)

	resp := h.call(t, "vault_setRewardRate", map[string]string{
		"caller": bech(h.admin), "rate": "5",
	}, withBearer(testRPCToken))
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	badJWT := withAdminJWT(t, "wrong-secret")
	resp = h.call(t, "vault_setRewardRate", map[string]string{
		"caller": bech(h.admin), "rate": "5",
	}, badJWT)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	h.mustCall(t, "vault_setRewardRate", map[string]string{
		"caller": bech(h.admin), "rate": "5",
	}, withAdminJWT(t, testJWTSecret))

	resp = h.mustCall(t, "vault_getParams", nil)
	var params paramsResult
	require.NoError(t, json.Unmarshal(mustRaw(t, resp.Result), &params))
	require.Equal(t, "5", params.RewardRatePerTokenPerHeight)
}

func TestAdminJWTRejectsMissingScope(t *testing.T) {
	h := newTestHarness(t)

	claims := jwt.MapClaims{
		"scope": "some.other.scope",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)

	resp := h.call(t, "vault_setWithdrawalWaitingPeriod", map[string]interface{}{
		"caller": bech(h.admin), "seconds": 60,
	}, func(r *http.Request) {
		r.Header.Set("X-Admin-Token", token)
	})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)
}

func TestNonPOSTRejectedBeforeBodyRead(t *testing.T) {
	h := newTestHarness(t)

	req, err := http.NewRequest(http.MethodGet, h.server.URL, nil)
	require.NoError(t, err)
	resp, err := h.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	var rpcResp RPCResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rpcResp))
	require.NotNil(t, rpcResp.Error)
	require.Equal(t, codeInvalidRequest, rpcResp.Error.Code)
}

func TestReadHandlersWaitForMutations(t *testing.T) {
	h := newTestHarness(t)
	owner := makeAddr(1)

	h.mustCall(t, "registry_mint", map[string]string{
		"owner": bech(owner), "tokenId": "7",
	}, withBearer(testRPCToken))

	// The transfer hook fires while vault_stake still holds the server's
	// write lock, so a reader arriving at that moment must be locked out.
	readerGotIn := true
	h.reg.SetTransferHook(func(from, to [20]byte, tokenID types.TokenID) {
		readerGotIn = h.srv.mu.TryRLock()
		if readerGotIn {
			h.srv.mu.RUnlock()
		}
	})
	h.mustCall(t, "vault_stake", map[string]string{
		"caller": bech(owner), "tokenId": "7",
	}, withBearer(testRPCToken))
	require.False(t, readerGotIn, "read lock must not be acquirable while a mutation is in flight")
}

func TestUnknownMethod(t *testing.T) {
	h := newTestHarness(t)
	resp := h.call(t, "vault_doesNotExist", nil)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestInvalidParams(t *testing.T) {
	h := newTestHarness(t)

	resp := h.call(t, "vault_getToken", map[string]string{"tokenId": "not-a-number"})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	resp = h.call(t, "vault_getAccount", map[string]string{"address": "not-bech32"})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestClaimRewardNeedsNoAuth(t *testing.T) {
	h := newTestHarness(t)
	owner := makeAddr(1)

	h.mustCall(t, "registry_mint", map[string]string{
		"owner": bech(owner), "tokenId": "7",
	}, withBearer(testRPCToken))
	h.mustCall(t, "vault_stake", map[string]string{
		"caller": bech(owner), "tokenId": "7",
	}, withBearer(testRPCToken))

	h.clock.height = 11
	resp := h.mustCall(t, "vault_claimReward", map[string]string{"address": bech(owner)})
	var result map[string]string
	require.NoError(t, json.Unmarshal(mustRaw(t, resp.Result), &result))
	require.Equal(t, "10", result["balance"])
}

func TestPreviewReward(t *testing.T) {
	h := newTestHarness(t)
	owner := makeAddr(1)

	h.mustCall(t, "registry_mint", map[string]string{
		"owner": bech(owner), "tokenId": "7",
	}, withBearer(testRPCToken))
	h.mustCall(t, "vault_stake", map[string]string{
		"caller": bech(owner), "tokenId": "7",
	}, withBearer(testRPCToken))

	h.clock.height = 100
	resp := h.mustCall(t, "vault_previewReward", map[string]string{"address": bech(owner)})
	var result map[string]string
	require.NoError(t, json.Unmarshal(mustRaw(t, resp.Result), &result))
	require.Equal(t, "99", result["pending"])
}

func mustRaw(t *testing.T, v interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}
