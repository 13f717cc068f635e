package credit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hpungsan/muse/internal/db"
	"github.com/hpungsan/muse/internal/errors"
	"github.com/hpungsan/muse/internal/logger"
)

// Store is a Ledger persisted in the SQLite credits table, shared by every
// muse process using the same database. Each operation first applies a reset
// if the schedule has fired since the last one.
type Store struct {
	db        *sql.DB
	allowance int
	schedule  cron.Schedule
	now       func() time.Time
	log       *slog.Logger
}

var _ Account = (*Store)(nil)

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger used for reset messages.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.log = l }
}

// NewStore opens the ledger, creating the credit row with a full allowance on first use.
// spec is a standard 5-field cron expression.
func NewStore(ctx context.Context, sqlDB *sql.DB, allowance int, spec string, opts ...StoreOption) (*Store, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid reset schedule %q: %v", spec, err))
	}

	s := &Store{
		db:        sqlDB,
		allowance: allowance,
		schedule:  schedule,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Default()
	}

	if err := db.EnsureCredits(ctx, sqlDB, allowance, s.now().Unix()); err != nil {
		return nil, err
	}
	return s, nil
}

// ResetIfDue restores the allowance when the schedule has fired since the last reset.
// Returns whether this call performed the reset.
func (s *Store) ResetIfDue(ctx context.Context) (bool, error) {
	row, err := db.GetCredits(ctx, s.db)
	if err != nil {
		return false, err
	}

	now := s.now()
	next := s.schedule.Next(time.Unix(row.LastResetAt, 0))
	if now.Before(next) {
		return false, nil
	}

	done, err := db.ResetCredits(ctx, s.db, s.allowance, row.LastResetAt, now.Unix())
	if err != nil {
		return false, err
	}
	if done {
		s.log.Info("credits reset", "balance", s.allowance, "previous", row.Balance)
	}
	return done, nil
}

// Reset restores the allowance unconditionally.
func (s *Store) Reset(ctx context.Context) error {
	row, err := db.GetCredits(ctx, s.db)
	if err != nil {
		return err
	}
	_, err = db.ResetCredits(ctx, s.db, s.allowance, row.LastResetAt, s.now().Unix())
	return err
}

func (s *Store) Balance(ctx context.Context) (int, error) {
	if _, err := s.ResetIfDue(ctx); err != nil {
		return 0, err
	}
	row, err := db.GetCredits(ctx, s.db)
	if err != nil {
		return 0, err
	}
	return row.Balance, nil
}

func (s *Store) HasSufficientCredits(ctx context.Context, required int) (bool, error) {
	if err := checkRequired(required); err != nil {
		return false, err
	}
	balance, err := s.Balance(ctx)
	if err != nil {
		return false, err
	}
	return balance >= required, nil
}

func (s *Store) Deduct(ctx context.Context, amount int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if _, err := s.ResetIfDue(ctx); err != nil {
		return err
	}
	return db.AdjustBalance(ctx, s.db, -amount)
}

func (s *Store) TryDeduct(ctx context.Context, amount int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if _, err := s.ResetIfDue(ctx); err != nil {
		return err
	}
	ok, err := db.TryDebit(ctx, s.db, amount)
	if err != nil {
		return err
	}
	if !ok {
		// Balance read after the failed debit is for the message only.
		row, err := db.GetCredits(ctx, s.db)
		if err != nil {
			return err
		}
		return errors.NewInsufficientCredits(amount, row.Balance)
	}
	return nil
}

// Refund gives amount back, capped at the allowance. A reset that landed
// between the deduction and the refund has already restored the balance.
func (s *Store) Refund(ctx context.Context, amount int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if _, err := s.ResetIfDue(ctx); err != nil {
		return err
	}
	return db.RefundCredits(ctx, s.db, amount, s.allowance)
}

func (s *Store) Status(ctx context.Context) (*Status, error) {
	if _, err := s.ResetIfDue(ctx); err != nil {
		return nil, err
	}
	row, err := db.GetCredits(ctx, s.db)
	if err != nil {
		return nil, err
	}
	last := time.Unix(row.LastResetAt, 0)
	next := s.schedule.Next(last)
	return &Status{
		Balance:     row.Balance,
		Allowance:   s.allowance,
		LastResetAt: &last,
		NextResetAt: &next,
		Low:         row.Balance < LowBalanceThreshold,
	}, nil
}
