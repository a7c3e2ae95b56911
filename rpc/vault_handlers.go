package rpc

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"stakevault/core/types"
	"stakevault/crypto"
)

type accountTokenParams struct {
	Caller  string `json:"caller"`
	TokenID string `json:"tokenId"`
}

type accountParams struct {
	Address string `json:"address"`
}

type tokenParams struct {
	TokenID string `json:"tokenId"`
}

type setRateParams struct {
	Caller string `json:"caller"`
	Rate   string `json:"rate"`
}

type setPeriodParams struct {
	Caller  string `json:"caller"`
	Seconds uint64 `json:"seconds"`
}

type tokenResult struct {
	TokenID               string `json:"tokenId"`
	Controller            string `json:"controller"`
	StakedAtHeight        uint64 `json:"stakedAtHeight"`
	WithdrawalRequestedAt uint64 `json:"withdrawalRequestedAt,omitempty"`
}

type accountResult struct {
	Address           string   `json:"address"`
	StakedTokens      []string `json:"stakedTokens"`
	LastSettledHeight uint64   `json:"lastSettledHeight"`
	CumulativeReward  string   `json:"cumulativeReward"`
}

type paramsResult struct {
	RewardRatePerTokenPerHeight    string `json:"rewardRatePerTokenPerHeight"`
	WithdrawalWaitingPeriodSeconds uint64 `json:"withdrawalWaitingPeriodSeconds"`
}

func parseAccountAddr(value, field string) ([20]byte, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return [20]byte{}, fmt.Errorf("%s is required", field)
	}
	addr, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return [20]byte{}, fmt.Errorf("invalid %s: %w", field, err)
	}
	return addr.Array(), nil
}

func parseToken(value string) (types.TokenID, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, fmt.Errorf("tokenId is required")
	}
	id, err := types.ParseTokenID(trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid tokenId: %w", err)
	}
	return id, nil
}

func (s *Server) decodeSingleParam(w http.ResponseWriter, req *RPCRequest, out interface{}) bool {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "exactly one parameter object expected", nil)
		return false
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return false
	}
	return true
}

func (s *Server) writeLedgerError(w http.ResponseWriter, req *RPCRequest, method string, err error) {
	status, code := rpcErrorFor(err)
	s.metrics.ObserveOperation(method, "error")
	writeError(w, status, req.ID, code, err.Error(), nil)
}

func (s *Server) refreshGauges() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if total, err := s.vault.StakedTotal(); err == nil {
		s.metrics.SetStakedTotal(total)
	}
	if params, err := s.vault.Params(); err == nil {
		s.metrics.SetWaitingPeriod(params.WithdrawalWaitingPeriodSeconds)
	}
}

func (s *Server) handleVaultStake(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params accountTokenParams
	if !s.decodeSingleParam(w, req, &params) {
		return
	}
	caller, err := parseAccountAddr(params.Caller, "caller")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	tokenID, err := parseToken(params.TokenID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	s.mu.Lock()
	err = s.vault.Stake(caller, tokenID)
	s.mu.Unlock()
	if err != nil {
		s.writeLedgerError(w, req, "stake", err)
		return
	}
	s.metrics.ObserveOperation("stake", "ok")
	s.refreshGauges()
	writeResult(w, req.ID, map[string]string{"status": "staked", "tokenId": tokenID.String()})
}

func (s *Server) handleVaultRequestWithdrawal(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params accountTokenParams
	if !s.decodeSingleParam(w, req, &params) {
		return
	}
	caller, err := parseAccountAddr(params.Caller, "caller")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	tokenID, err := parseToken(params.TokenID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	s.mu.Lock()
	err = s.vault.RequestWithdrawal(caller, tokenID)
	s.mu.Unlock()
	if err != nil {
		s.writeLedgerError(w, req, "requestWithdrawal", err)
		return
	}
	s.metrics.ObserveOperation("requestWithdrawal", "ok")
	writeResult(w, req.ID, map[string]string{"status": "requested", "tokenId": tokenID.String()})
}

func (s *Server) handleVaultWithdraw(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params accountTokenParams
	if !s.decodeSingleParam(w, req, &params) {
		return
	}
	caller, err := parseAccountAddr(params.Caller, "caller")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	tokenID, err := parseToken(params.TokenID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	s.mu.Lock()
	err = s.vault.Withdraw(caller, tokenID)
	s.mu.Unlock()
	if err != nil {
		s.writeLedgerError(w, req, "withdraw", err)
		return
	}
	s.metrics.ObserveOperation("withdraw", "ok")
	s.refreshGauges()
	writeResult(w, req.ID, map[string]string{"status": "withdrawn", "tokenId": tokenID.String()})
}

func (s *Server) handleVaultClaimReward(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params accountParams
	if !s.decodeSingleParam(w, req, &params) {
		return
	}
	account, err := parseAccountAddr(params.Address, "address")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	s.mu.Lock()
	err = s.vault.ClaimReward(account)
	var balance *big.Int
	if err == nil {
		balance, err = s.rewards.BalanceOf(account)
	}
	s.mu.Unlock()
	if err != nil {
		s.writeLedgerError(w, req, "claimReward", err)
		return
	}
	s.metrics.ObserveOperation("claimReward", "ok")
	writeResult(w, req.ID, map[string]string{
		"status":  "claimed",
		"balance": balance.String(),
	})
}

func (s *Server) handleVaultGetStaked(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params accountParams
	if !s.decodeSingleParam(w, req, &params) {
		return
	}
	account, err := parseAccountAddr(params.Address, "address")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	s.mu.RLock()
	tokens, err := s.vault.StakedTokens(account)
	s.mu.RUnlock()
	if err != nil {
		s.writeLedgerError(w, req, "getStaked", err)
		return
	}
	out := make([]string, len(tokens))
	for i, id := range tokens {
		out[i] = id.String()
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleVaultGetToken(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params tokenParams
	if !s.decodeSingleParam(w, req, &params) {
		return
	}
	tokenID, err := parseToken(params.TokenID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	s.mu.RLock()
	record, err := s.vault.Token(tokenID)
	s.mu.RUnlock()
	if err != nil {
		s.writeLedgerError(w, req, "getToken", err)
		return
	}
	if record == nil {
		writeResult(w, req.ID, nil)
		return
	}
	writeResult(w, req.ID, tokenResult{
		TokenID:               tokenID.String(),
		Controller:            crypto.MustNewAddress(crypto.StakePrefix, record.Controller[:]).String(),
		StakedAtHeight:        record.StakedAtHeight,
		WithdrawalRequestedAt: record.WithdrawalRequestedAt,
	})
}

func (s *Server) handleVaultGetAccount(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params accountParams
	if !s.decodeSingleParam(w, req, &params) {
		return
	}
	account, err := parseAccountAddr(params.Address, "address")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	s.mu.RLock()
	acct, err := s.vault.Account(account)
	s.mu.RUnlock()
	if err != nil {
		s.writeLedgerError(w, req, "getAccount", err)
		return
	}
	if acct == nil {
		writeResult(w, req.ID, nil)
		return
	}
	tokens := make([]string, len(acct.StakedTokens))
	for i, id := range acct.StakedTokens {
		tokens[i] = id.String()
	}
	reward := "0"
	if acct.CumulativeReward != nil {
		reward = acct.CumulativeReward.String()
	}
	writeResult(w, req.ID, accountResult{
		Address:           crypto.MustNewAddress(crypto.StakePrefix, acct.Address[:]).String(),
		StakedTokens:      tokens,
		LastSettledHeight: acct.LastSettledHeight,
		CumulativeReward:  reward,
	})
}

func (s *Server) handleVaultStakedTotal(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.mu.RLock()
	total, err := s.vault.StakedTotal()
	s.mu.RUnlock()
	if err != nil {
		s.writeLedgerError(w, req, "stakedTotal", err)
		return
	}
	writeResult(w, req.ID, total)
}

func (s *Server) handleVaultPreviewReward(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params accountParams
	if !s.decodeSingleParam(w, req, &params) {
		return
	}
	account, err := parseAccountAddr(params.Address, "address")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	s.mu.RLock()
	pending, err := s.vault.PendingReward(account)
	s.mu.RUnlock()
	if err != nil {
		s.writeLedgerError(w, req, "previewReward", err)
		return
	}
	writeResult(w, req.ID, map[string]string{"pending": pending.String()})
}

func (s *Server) handleVaultGetParams(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.mu.RLock()
	params, err := s.vault.Params()
	s.mu.RUnlock()
	if err != nil {
		s.writeLedgerError(w, req, "getParams", err)
		return
	}
	writeResult(w, req.ID, paramsResult{
		RewardRatePerTokenPerHeight:    params.RewardRatePerTokenPerHeight.String(),
		WithdrawalWaitingPeriodSeconds: params.WithdrawalWaitingPeriodSeconds,
	})
}

func (s *Server) handleVaultSetRewardRate(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params setRateParams
	if !s.decodeSingleParam(w, req, &params) {
		return
	}
	caller, err := parseAccountAddr(params.Caller, "caller")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	rate, ok := new(big.Int).SetString(strings.TrimSpace(params.Rate), 10)
	if !ok || rate.Sign() < 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid rate", nil)
		return
	}
	s.mu.Lock()
	err = s.vault.SetRewardRate(caller, rate)
	s.mu.Unlock()
	if err != nil {
		s.writeLedgerError(w, req, "setRewardRate", err)
		return
	}
	s.metrics.ObserveOperation("setRewardRate", "ok")
	writeResult(w, req.ID, map[string]string{"status": "updated", "rate": rate.String()})
}

func (s *Server) handleVaultSetWaitingPeriod(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params setPeriodParams
	if !s.decodeSingleParam(w, req, &params) {
		return
	}
	caller, err := parseAccountAddr(params.Caller, "caller")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if params.Seconds == 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "seconds must be positive", nil)
		return
	}
	s.mu.Lock()
	err = s.vault.SetWithdrawalWaitingPeriod(caller, params.Seconds)
	s.mu.Unlock()
	if err != nil {
		s.writeLedgerError(w, req, "setWithdrawalWaitingPeriod", err)
		return
	}
	s.metrics.ObserveOperation("setWithdrawalWaitingPeriod", "ok")
	s.refreshGauges()
	writeResult(w, req.ID, map[string]interface{}{"status": "updated", "seconds": params.Seconds})
}

func (s *Server) handleRegistryMint(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params struct {
		Owner   string `json:"owner"`
		TokenID string `json:"tokenId"`
	}
	if !s.decodeSingleParam(w, req, &params) {
		return
	}
	owner, err := parseAccountAddr(params.Owner, "owner")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	tokenID, err := parseToken(params.TokenID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	s.mu.Lock()
	err = s.registry.Mint(owner, tokenID)
	s.mu.Unlock()
	if err != nil {
		s.writeLedgerError(w, req, "mint", err)
		return
	}
	writeResult(w, req.ID, map[string]string{"status": "minted", "tokenId": tokenID.String()})
}

func (s *Server) handleRegistryOwner(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params tokenParams
	if !s.decodeSingleParam(w, req, &params) {
		return
	}
	tokenID, err := parseToken(params.TokenID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	s.mu.RLock()
	owner, ok, err := s.registry.Owner(tokenID)
	s.mu.RUnlock()
	if err != nil {
		s.writeLedgerError(w, req, "owner", err)
		return
	}
	if !ok {
		writeResult(w, req.ID, nil)
		return
	}
	writeResult(w, req.ID, map[string]string{
		"tokenId": tokenID.String(),
		"owner":   crypto.MustNewAddress(crypto.StakePrefix, owner[:]).String(),
	})
}

func (s *Server) handleRewardBalance(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params accountParams
	if !s.decodeSingleParam(w, req, &params) {
		return
	}
	account, err := parseAccountAddr(params.Address, "address")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	s.mu.RLock()
	balance, err := s.rewards.BalanceOf(account)
	s.mu.RUnlock()
	if err != nil {
		s.writeLedgerError(w, req, "balance", err)
		return
	}
	writeResult(w, req.ID, map[string]string{"balance": balance.String()})
}
