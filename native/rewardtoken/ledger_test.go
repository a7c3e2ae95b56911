package rewardtoken

import (
	"errors"
	"math/big"
	"testing"

	"stakevault/core/events"
)

type mockLedgerState struct {
	balances map[[20]byte]*big.Int
}

func newMockLedgerState() *mockLedgerState {
	return &mockLedgerState{balances: make(map[[20]byte]*big.Int)}
}

func (m *mockLedgerState) GetBalance(addr [20]byte) (*big.Int, error) {
	return m.balances[addr], nil
}

func (m *mockLedgerState) PutBalance(addr [20]byte, balance *big.Int) error {
	m.balances[addr] = new(big.Int).Set(balance)
	return nil
}

type captureEmitter struct {
	seen []events.Event
}

func (c *captureEmitter) Emit(evt events.Event) { c.seen = append(c.seen, evt) }

func TestIssueAccumulates(t *testing.T) {
	ledger := NewLedger()
	ledger.SetState(newMockLedgerState())
	emitter := &captureEmitter{}
	ledger.SetEmitter(emitter)

	var account [20]byte
	account[19] = 1

	if err := ledger.Issue(account, big.NewInt(40)); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := ledger.Issue(account, big.NewInt(2)); err != nil {
		t.Fatalf("issue: %v", err)
	}
	balance, err := ledger.BalanceOf(account)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("expected 42, got %s", balance)
	}
	if len(emitter.seen) != 2 || emitter.seen[0].EventType() != events.TypeRewardIssued {
		t.Fatalf("expected two issued events, got %v", emitter.seen)
	}
}

func TestIssueRejectsNonPositiveAmounts(t *testing.T) {
	ledger := NewLedger()
	ledger.SetState(newMockLedgerState())

	var account [20]byte
	if err := ledger.Issue(account, nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for nil, got %v", err)
	}
	if err := ledger.Issue(account, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero, got %v", err)
	}
	if err := ledger.Issue(account, big.NewInt(-5)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for negative, got %v", err)
	}
}

func TestBalanceOfUnknownAccountIsZero(t *testing.T) {
	ledger := NewLedger()
	ledger.SetState(newMockLedgerState())

	var account [20]byte
	balance, err := ledger.BalanceOf(account)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Sign() != 0 {
		t.Fatalf("expected zero balance, got %s", balance)
	}
}
