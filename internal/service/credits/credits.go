// Package credits meters costed discovery work against a per-principal balance.
package credits

import (
	"context"
	"strings"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/octobees/leads-discovery/internal/entity"
)

var (
	// ErrInsufficientCredits is returned when a balance cannot cover a debit.
	ErrInsufficientCredits = eris.New("insufficient credits")
	// ErrInvalidAmount is returned for non-positive debits.
	ErrInvalidAmount = eris.New("debit amount must be positive")
	// ErrUnknownPrincipal is returned when a principal carries no id.
	ErrUnknownPrincipal = eris.New("principal id is required")
)

// Ledger stores balances. Debit must check and subtract atomically and
// return ErrInsufficientCredits when the balance is short.
type Ledger interface {
	Balance(ctx context.Context, principalID string) (int, error)
	Debit(ctx context.Context, principalID string, amount int, reason string) error
}

// Gate is the credit client used by the orchestrator.
type Gate struct {
	ledger Ledger
}

// NewGate wraps a ledger.
func NewGate(ledger Ledger) *Gate {
	return &Gate{ledger: ledger}
}

// CheckBalance returns the principal's remaining credits.
func (g *Gate) CheckBalance(ctx context.Context, principal entity.Principal) (int, error) {
	id := strings.TrimSpace(principal.ID)
	if id == "" {
		return 0, ErrUnknownPrincipal
	}
	balance, err := g.ledger.Balance(ctx, id)
	if err != nil {
		return 0, eris.Wrapf(err, "read balance for %s", id)
	}
	return balance, nil
}

// Debit charges amount credits to the principal.
func (g *Gate) Debit(ctx context.Context, principal entity.Principal, amount int, reason string) error {
	id := strings.TrimSpace(principal.ID)
	if id == "" {
		return ErrUnknownPrincipal
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if err := g.ledger.Debit(ctx, id, amount, reason); err != nil {
		return eris.Wrapf(err, "debit %d credits from %s", amount, id)
	}
	return nil
}

// Transaction is one recorded debit.
type Transaction struct {
	PrincipalID string
	Amount      int
	Reason      string
}

// MemoryLedger is an in-process Ledger. Principals it has never seen start
// with the configured default balance.
type MemoryLedger struct {
	mu           sync.Mutex
	balances     map[string]int
	transactions []Transaction
	initial      int
}

// NewMemoryLedger builds a ledger that grants initial credits to new principals.
func NewMemoryLedger(initial int) *MemoryLedger {
	if initial < 0 {
		initial = 0
	}
	return &MemoryLedger{balances: make(map[string]int), initial: initial}
}

// SetBalance overrides a principal's balance.
func (l *MemoryLedger) SetBalance(principalID string, balance int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[principalID] = balance
}

// Balance implements Ledger.
func (l *MemoryLedger) Balance(ctx context.Context, principalID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balanceLocked(principalID), nil
}

// Debit implements Ledger.
func (l *MemoryLedger) Debit(ctx context.Context, principalID string, amount int, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	balance := l.balanceLocked(principalID)
	if balance < amount {
		return ErrInsufficientCredits
	}
	l.balances[principalID] = balance - amount
	l.transactions = append(l.transactions, Transaction{PrincipalID: principalID, Amount: amount, Reason: reason})
	return nil
}

// Transactions returns the recorded debits in order.
func (l *MemoryLedger) Transactions() []Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Transaction(nil), l.transactions...)
}

func (l *MemoryLedger) balanceLocked(principalID string) int {
	balance, ok := l.balances[principalID]
	if !ok {
		balance = l.initial
		l.balances[principalID] = balance
	}
	return balance
}
