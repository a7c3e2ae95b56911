package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"stakevault/native/registry"
	"stakevault/native/rewardtoken"
	"stakevault/native/vault"
	"stakevault/observability/metrics"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError       = -32700
	codeInvalidRequest   = -32600
	codeMethodNotFound   = -32601
	codeInvalidParams    = -32602
	codeUnauthorized     = -32001
	codeServerError      = -32000
	codeStateViolation   = -32030
	codeTransferRejected = -32031
)

// Server exposes the vault, registry, and reward ledgers over JSON-RPC 2.0.
// Mutating ledger calls hold the write lock and read handlers the read lock:
// the ledger's invariants hold only under strictly serialized execution, and
// a reader must never observe the middle of a multi-key mutation.
type Server struct {
	vault    *vault.Engine
	registry *registry.Registry
	rewards  *rewardtoken.Ledger

	authToken string
	admin     *AdminAuthenticator
	metrics   *metrics.VaultMetrics

	mu sync.RWMutex
}

// NewServer wires the RPC surface. The bearer token guarding mutating calls
// is read from VAULT_RPC_TOKEN; admin calls additionally require a JWT
// validated by the authenticator, when one is configured.
func NewServer(vaultEngine *vault.Engine, reg *registry.Registry, rewards *rewardtoken.Ledger, admin *AdminAuthenticator) *Server {
	return &Server{
		vault:     vaultEngine,
		registry:  reg,
		rewards:   rewards,
		authToken: strings.TrimSpace(os.Getenv("VAULT_RPC_TOKEN")),
		admin:     admin,
		metrics:   metrics.Vault(),
	}
}

// Start serves the RPC endpoint on addr and blocks.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	return http.ListenAndServe(addr, mux)
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, nil, codeInvalidRequest, "POST required", nil)
		return
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "failed to read request body", err.Error())
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON-RPC request", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported JSON-RPC version", nil)
		return
	}

	switch req.Method {
	case "vault_stake":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleVaultStake(w, r, &req)
	case "vault_requestWithdrawal":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleVaultRequestWithdrawal(w, r, &req)
	case "vault_withdraw":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleVaultWithdraw(w, r, &req)
	case "vault_claimReward":
		// Anyone may trigger a claim; the payout goes to the named account.
		s.handleVaultClaimReward(w, r, &req)
	case "vault_getStaked":
		s.handleVaultGetStaked(w, r, &req)
	case "vault_getToken":
		s.handleVaultGetToken(w, r, &req)
	case "vault_getAccount":
		s.handleVaultGetAccount(w, r, &req)
	case "vault_stakedTotal":
		s.handleVaultStakedTotal(w, r, &req)
	case "vault_previewReward":
		s.handleVaultPreviewReward(w, r, &req)
	case "vault_getParams":
		s.handleVaultGetParams(w, r, &req)
	case "vault_setRewardRate":
		if authErr := s.requireAdmin(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleVaultSetRewardRate(w, r, &req)
	case "vault_setWithdrawalWaitingPeriod":
		if authErr := s.requireAdmin(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleVaultSetWaitingPeriod(w, r, &req)
	case "registry_mint":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleRegistryMint(w, r, &req)
	case "registry_owner":
		s.handleRegistryOwner(w, r, &req)
	case "reward_balance":
		s.handleRewardBalance(w, r, &req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method), nil)
	}
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

func (s *Server) requireAdmin(r *http.Request) *RPCError {
	if s.admin == nil {
		return &RPCError{Code: codeUnauthorized, Message: "admin surface not configured"}
	}
	if err := s.admin.Authenticate(r); err != nil {
		return &RPCError{Code: codeUnauthorized, Message: err.Error()}
	}
	return nil
}

// rpcErrorFor maps ledger errors onto RPC status and error codes.
func rpcErrorFor(err error) (int, int) {
	switch {
	case errors.Is(err, vault.ErrNotController), errors.Is(err, vault.ErrUnauthorized):
		return http.StatusForbidden, codeUnauthorized
	case errors.Is(err, vault.ErrWithdrawalNotRequested), errors.Is(err, vault.ErrWaitingPeriodNotElapsed), errors.Is(err, vault.ErrReentrantCall):
		return http.StatusConflict, codeStateViolation
	case errors.Is(err, registry.ErrTransferRejected), errors.Is(err, registry.ErrTokenExists):
		return http.StatusConflict, codeTransferRejected
	default:
		return http.StatusInternalServerError, codeServerError
	}
}
