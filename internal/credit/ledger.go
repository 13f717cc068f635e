// Package credit tracks the generation credit balance.
package credit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hpungsan/muse/internal/errors"
)

// LowBalanceThreshold is the balance below which Status reports Low.
const LowBalanceThreshold = 5

// Ledger is an integer credit balance. Implementations are safe for concurrent use.
type Ledger interface {
	Balance(ctx context.Context) (int, error)

	// HasSufficientCredits reports balance >= required. It is advisory only;
	// use TryDeduct to check and deduct atomically.
	HasSufficientCredits(ctx context.Context, required int) (bool, error)

	// Deduct decrements the balance by amount without re-checking sufficiency.
	Deduct(ctx context.Context, amount int) error

	// TryDeduct decrements the balance by amount only if it covers amount,
	// returning INSUFFICIENT_CREDITS otherwise.
	TryDeduct(ctx context.Context, amount int) error

	// Refund increments the balance by amount, never past the reset allowance.
	Refund(ctx context.Context, amount int) error
}

// Account is a Ledger that can also describe its allowance and reset timing.
type Account interface {
	Ledger
	Status(ctx context.Context) (*Status, error)
}

// Status is a snapshot of the ledger for display.
type Status struct {
	Balance     int        `json:"balance"`
	Allowance   int        `json:"allowance"`
	LastResetAt *time.Time `json:"last_reset_at,omitempty"`
	NextResetAt *time.Time `json:"next_reset_at,omitempty"`
	Low         bool       `json:"low"`
}

func checkAmount(amount int) error {
	if amount <= 0 {
		return errors.NewInvalidRequest(fmt.Sprintf("credit amount must be positive, got %d", amount))
	}
	return nil
}

func checkRequired(required int) error {
	if required < 0 {
		return errors.NewInvalidRequest(fmt.Sprintf("required credits must be non-negative, got %d", required))
	}
	return nil
}

// Memory is an in-process Ledger.
type Memory struct {
	mu        sync.Mutex
	balance   int
	allowance int
}

var _ Account = (*Memory)(nil)

// NewMemory returns a ledger holding balance, which is also its reset allowance.
func NewMemory(balance int) *Memory {
	return &Memory{balance: balance, allowance: balance}
}

func (m *Memory) Balance(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance, nil
}

func (m *Memory) HasSufficientCredits(ctx context.Context, required int) (bool, error) {
	if err := checkRequired(required); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance >= required, nil
}

func (m *Memory) Deduct(ctx context.Context, amount int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	m.mu.Lock()
	m.balance -= amount
	m.mu.Unlock()
	return nil
}

func (m *Memory) TryDeduct(ctx context.Context, amount int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balance < amount {
		return errors.NewInsufficientCredits(amount, m.balance)
	}
	m.balance -= amount
	return nil
}

func (m *Memory) Refund(ctx context.Context, amount int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	m.mu.Lock()
	if m.balance+amount > m.allowance {
		m.balance = max(m.balance, m.allowance)
	} else {
		m.balance += amount
	}
	m.mu.Unlock()
	return nil
}

// Reset restores the balance to the allowance.
func (m *Memory) Reset() {
	m.mu.Lock()
	m.balance = m.allowance
	m.mu.Unlock()
}

// Set overwrites the balance.
func (m *Memory) Set(balance int) {
	m.mu.Lock()
	m.balance = balance
	m.mu.Unlock()
}

func (m *Memory) Status(ctx context.Context) (*Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &Status{
		Balance:   m.balance,
		Allowance: m.allowance,
		Low:       m.balance < LowBalanceThreshold,
	}, nil
}
