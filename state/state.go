package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"stakevault/core/types"
	"stakevault/native/vault"
	"stakevault/storage"
)

var (
	tokenPrefix    = []byte("vault/token/")
	accountPrefix  = []byte("vault/account/")
	paramsKey      = []byte("vault/params")
	stakedTotalKey = []byte("vault/total")
	ownerPrefix    = []byte("registry/owner/")
	balancePrefix  = []byte("reward/balance/")
)

// Manager persists the vault, registry, and reward-token state in a single
// key-value store using RLP-encoded records. It satisfies the state
// interfaces of all three engines.
//
// A batch opened with BeginBatch stages every write in memory until
// CommitBatch flushes them as one storage batch; reads issued in between
// observe the staged writes. Batching follows the ledger's serialized
// execution model and is not safe for concurrent use.
type Manager struct {
	db      storage.Database
	pending map[string]pendingWrite
}

type pendingWrite struct {
	value   []byte
	deleted bool
}

// NewManager wraps the given database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// BeginBatch starts staging writes. A batch already open keeps its staged
// writes.
func (m *Manager) BeginBatch() {
	if m.pending == nil {
		m.pending = make(map[string]pendingWrite)
	}
}

// CommitBatch applies every staged write to the store as a single atomic
// batch and closes the batch.
func (m *Manager) CommitBatch() error {
	if m.pending == nil {
		return nil
	}
	batch := m.db.NewBatch()
	for key, w := range m.pending {
		if w.deleted {
			batch.Delete([]byte(key))
		} else {
			batch.Put([]byte(key), w.value)
		}
	}
	m.pending = nil
	return batch.Write()
}

// DiscardBatch drops every staged write and closes the batch.
func (m *Manager) DiscardBatch() {
	m.pending = nil
}

func (m *Manager) put(key, value []byte) error {
	if m.pending != nil {
		m.pending[string(key)] = pendingWrite{value: value}
		return nil
	}
	return m.db.Put(key, value)
}

func (m *Manager) delete(key []byte) error {
	if m.pending != nil {
		m.pending[string(key)] = pendingWrite{deleted: true}
		return nil
	}
	return m.db.Delete(key)
}

func tokenKey(prefix []byte, id types.TokenID) []byte {
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], uint64(id))
	return key
}

func addressKey(prefix []byte, addr [20]byte) []byte {
	key := make([]byte, len(prefix)+20)
	copy(key, prefix)
	copy(key[len(prefix):], addr[:])
	return key
}

func (m *Manager) get(key []byte) ([]byte, bool, error) {
	if m.pending != nil {
		if w, ok := m.pending[string(key)]; ok {
			if w.deleted {
				return nil, false, nil
			}
			return w.value, true, nil
		}
	}
	data, err := m.db.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// --- vault state ---

type storedToken struct {
	Controller            [20]byte
	StakedAtHeight        uint64
	WithdrawalRequestedAt uint64
}

type storedAccount struct {
	Address           [20]byte
	StakedTokens      []uint64
	LastSettledHeight uint64
	CumulativeReward  *big.Int
}

type storedParams struct {
	RewardRatePerTokenPerHeight    *big.Int
	WithdrawalWaitingPeriodSeconds uint64
}

// GetToken loads the custody record for a token, nil when absent.
func (m *Manager) GetToken(tokenID types.TokenID) (*vault.TokenRecord, error) {
	data, ok, err := m.get(tokenKey(tokenPrefix, tokenID))
	if err != nil || !ok {
		return nil, err
	}
	var stored storedToken
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, fmt.Errorf("decode token %s: %w", tokenID, err)
	}
	return &vault.TokenRecord{
		Controller:            stored.Controller,
		StakedAtHeight:        stored.StakedAtHeight,
		WithdrawalRequestedAt: stored.WithdrawalRequestedAt,
	}, nil
}

// PutToken writes the custody record for a token.
func (m *Manager) PutToken(tokenID types.TokenID, record *vault.TokenRecord) error {
	if record == nil {
		return fmt.Errorf("nil token record for %s", tokenID)
	}
	data, err := rlp.EncodeToBytes(&storedToken{
		Controller:            record.Controller,
		StakedAtHeight:        record.StakedAtHeight,
		WithdrawalRequestedAt: record.WithdrawalRequestedAt,
	})
	if err != nil {
		return err
	}
	return m.put(tokenKey(tokenPrefix, tokenID), data)
}

// DeleteToken removes the custody record for a token.
func (m *Manager) DeleteToken(tokenID types.TokenID) error {
	return m.delete(tokenKey(tokenPrefix, tokenID))
}

// GetAccount loads the accrual state for an address, nil when the address has
// never staked.
func (m *Manager) GetAccount(addr [20]byte) (*vault.AccountState, error) {
	data, ok, err := m.get(addressKey(accountPrefix, addr))
	if err != nil || !ok {
		return nil, err
	}
	var stored storedAccount
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}
	acct := vault.NewAccountState(stored.Address)
	acct.LastSettledHeight = stored.LastSettledHeight
	if stored.CumulativeReward != nil {
		acct.CumulativeReward = new(big.Int).Set(stored.CumulativeReward)
	}
	if len(stored.StakedTokens) > 0 {
		acct.StakedTokens = make([]types.TokenID, len(stored.StakedTokens))
		for i, id := range stored.StakedTokens {
			acct.StakedTokens[i] = types.TokenID(id)
		}
	}
	return acct, nil
}

// PutAccount writes the accrual state for an account.
func (m *Manager) PutAccount(account *vault.AccountState) error {
	if account == nil {
		return fmt.Errorf("nil account state")
	}
	stored := storedAccount{
		Address:           account.Address,
		LastSettledHeight: account.LastSettledHeight,
		CumulativeReward:  account.CumulativeReward,
	}
	if stored.CumulativeReward == nil {
		stored.CumulativeReward = big.NewInt(0)
	}
	if len(account.StakedTokens) > 0 {
		stored.StakedTokens = make([]uint64, len(account.StakedTokens))
		for i, id := range account.StakedTokens {
			stored.StakedTokens[i] = uint64(id)
		}
	}
	data, err := rlp.EncodeToBytes(&stored)
	if err != nil {
		return err
	}
	return m.put(addressKey(accountPrefix, account.Address), data)
}

// GetParams loads the persisted vault parameters, nil when none were written
// yet.
func (m *Manager) GetParams() (*vault.Params, error) {
	data, ok, err := m.get(paramsKey)
	if err != nil || !ok {
		return nil, err
	}
	var stored storedParams
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	params := vault.Params{
		RewardRatePerTokenPerHeight:    stored.RewardRatePerTokenPerHeight,
		WithdrawalWaitingPeriodSeconds: stored.WithdrawalWaitingPeriodSeconds,
	}
	if params.RewardRatePerTokenPerHeight == nil {
		params.RewardRatePerTokenPerHeight = big.NewInt(0)
	}
	return &params, nil
}

// PutParams persists the vault parameters.
func (m *Manager) PutParams(params vault.Params) error {
	stored := storedParams{
		RewardRatePerTokenPerHeight:    params.RewardRatePerTokenPerHeight,
		WithdrawalWaitingPeriodSeconds: params.WithdrawalWaitingPeriodSeconds,
	}
	if stored.RewardRatePerTokenPerHeight == nil {
		stored.RewardRatePerTokenPerHeight = big.NewInt(0)
	}
	data, err := rlp.EncodeToBytes(&stored)
	if err != nil {
		return err
	}
	return m.put(paramsKey, data)
}

// GetStakedTotal loads the global staked counter.
func (m *Manager) GetStakedTotal() (uint64, error) {
	data, ok, err := m.get(stakedTotalKey)
	if err != nil || !ok {
		return 0, err
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("corrupt staked total")
	}
	return binary.BigEndian.Uint64(data), nil
}

// PutStakedTotal persists the global staked counter.
func (m *Manager) PutStakedTotal(total uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, total)
	return m.put(stakedTotalKey, buf)
}

// --- registry state ---

// GetOwner loads the controlling account of a token.
func (m *Manager) GetOwner(tokenID types.TokenID) ([20]byte, bool, error) {
	data, ok, err := m.get(tokenKey(ownerPrefix, tokenID))
	if err != nil || !ok {
		return [20]byte{}, false, err
	}
	if len(data) != 20 {
		return [20]byte{}, false, fmt.Errorf("corrupt owner record for token %s", tokenID)
	}
	var owner [20]byte
	copy(owner[:], data)
	return owner, true, nil
}

// PutOwner writes the controlling account of a token.
func (m *Manager) PutOwner(tokenID types.TokenID, owner [20]byte) error {
	return m.put(tokenKey(ownerPrefix, tokenID), owner[:])
}

// --- reward-token state ---

// GetBalance loads the payable reward balance of an account, nil when the
// account was never paid.
func (m *Manager) GetBalance(addr [20]byte) (*big.Int, error) {
	data, ok, err := m.get(addressKey(balancePrefix, addr))
	if err != nil || !ok {
		return nil, err
	}
	return new(big.Int).SetBytes(data), nil
}

// PutBalance persists the payable reward balance of an account.
func (m *Manager) PutBalance(addr [20]byte, balance *big.Int) error {
	if balance == nil || balance.Sign() < 0 {
		return fmt.Errorf("invalid balance")
	}
	return m.put(addressKey(balancePrefix, addr), balance.Bytes())
}
