package db

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/hpungsan/muse/internal/errors"
	"github.com/hpungsan/muse/internal/record"
)

// Generation lifecycle states as stored in generations.status.
const (
	StatusStreaming = "streaming"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ErrNoCreditRow means EnsureCredits was never called on this database.
var ErrNoCreditRow = stderrors.New("credit ledger not initialized")

// Credits is the single row of the credits table.
type Credits struct {
	Balance     int   `json:"balance"`
	LastResetAt int64 `json:"last_reset_at"`
	UpdatedAt   int64 `json:"updated_at"`
}

// Generation is one persisted generation session.
type Generation struct {
	ID              string            `json:"id"`
	Mode            string            `json:"mode"`
	Status          string            `json:"status"`
	Input           json.RawMessage   `json:"input,omitempty"`
	CreditsUsed     int               `json:"credits_used"`
	CreditsRefunded int               `json:"credits_refunded"`
	RecordCount     int               `json:"record_count"`
	DroppedCount    int               `json:"dropped_count"`
	Records         []record.Envelope `json:"records,omitempty"`
	ErrorCode       *string           `json:"error_code,omitempty"`
	ErrorMessage    *string           `json:"error_message,omitempty"`
	CreatedAt       int64             `json:"created_at"`
	FinishedAt      *int64            `json:"finished_at,omitempty"`
}

// EnsureCredits creates the credit row with the given balance if it does not exist yet.
func EnsureCredits(ctx context.Context, db *sql.DB, balance int, now int64) error {
	_, err := db.ExecContext(ctx, `
		INSERT OR IGNORE INTO credits (id, balance, last_reset_at, updated_at)
		VALUES (1, ?, ?, ?)
	`, balance, now, now)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetCredits returns the credit row.
func GetCredits(ctx context.Context, db *sql.DB) (*Credits, error) {
	var c Credits
	err := db.QueryRowContext(ctx,
		"SELECT balance, last_reset_at, updated_at FROM credits WHERE id = 1",
	).Scan(&c.Balance, &c.LastResetAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewInternal(ErrNoCreditRow)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return &c, nil
}

// TryDebit subtracts amount only if the balance covers it, in one statement.
// Returns false when the balance was insufficient.
func TryDebit(ctx context.Context, db *sql.DB, amount int) (bool, error) {
	result, err := db.ExecContext(ctx, `
		UPDATE credits
		SET balance = balance - ?, updated_at = ?
		WHERE id = 1 AND balance >= ?
	`, amount, time.Now().Unix(), amount)
	if err != nil {
		return false, errors.NewInternal(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return rowsAffected == 1, nil
}

// AdjustBalance adds delta (which may be negative) to the balance without any check.
func AdjustBalance(ctx context.Context, db *sql.DB, delta int) error {
	result, err := db.ExecContext(ctx, `
		UPDATE credits
		SET balance = balance + ?, updated_at = ?
		WHERE id = 1
	`, delta, time.Now().Unix())
	if err != nil {
		return errors.NewInternal(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewInternal(ErrNoCreditRow)
	}
	return nil
}

// RefundCredits adds amount to the balance without raising it above ceiling.
// A balance already above ceiling is left as is.
func RefundCredits(ctx context.Context, db *sql.DB, amount, ceiling int) error {
	result, err := db.ExecContext(ctx, `
		UPDATE credits
		SET balance = CASE WHEN balance + ? > ? THEN MAX(balance, ?) ELSE balance + ? END,
			updated_at = ?
		WHERE id = 1
	`, amount, ceiling, ceiling, amount, time.Now().Unix())
	if err != nil {
		return errors.NewInternal(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewInternal(ErrNoCreditRow)
	}
	return nil
}

// ResetCredits sets the balance and reset time, but only if last_reset_at still equals
// prevResetAt. Concurrent processes racing on the same reset therefore apply it once.
// Returns whether this call performed the reset.
func ResetCredits(ctx context.Context, db *sql.DB, balance int, prevResetAt, now int64) (bool, error) {
	result, err := db.ExecContext(ctx, `
		UPDATE credits
		SET balance = ?, last_reset_at = ?, updated_at = ?
		WHERE id = 1 AND last_reset_at = ?
	`, balance, now, now, prevResetAt)
	if err != nil {
		return false, errors.NewInternal(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return rowsAffected == 1, nil
}

// InsertGeneration stores a new generation row.
func InsertGeneration(ctx context.Context, db *sql.DB, g *Generation) error {
	recordsJSON, err := marshalRecords(g.Records)
	if err != nil {
		return errors.NewInternal(err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO generations (
			id, mode, status, input_json, credits_used, credits_refunded,
			record_count, dropped_count, records_json, error_code, error_message,
			created_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		g.ID, g.Mode, g.Status, rawToNull(g.Input), g.CreditsUsed, g.CreditsRefunded,
		g.RecordCount, g.DroppedCount, recordsJSON, toNullString(g.ErrorCode), toNullString(g.ErrorMessage),
		g.CreatedAt, toNullInt64(g.FinishedAt),
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// FinishGeneration writes the terminal state of a generation.
func FinishGeneration(ctx context.Context, db *sql.DB, g *Generation) error {
	recordsJSON, err := marshalRecords(g.Records)
	if err != nil {
		return errors.NewInternal(err)
	}

	result, err := db.ExecContext(ctx, `
		UPDATE generations
		SET status = ?, credits_used = ?, credits_refunded = ?, record_count = ?,
			dropped_count = ?, records_json = ?, error_code = ?, error_message = ?,
			finished_at = ?
		WHERE id = ?
	`,
		g.Status, g.CreditsUsed, g.CreditsRefunded, g.RecordCount,
		g.DroppedCount, recordsJSON, toNullString(g.ErrorCode), toNullString(g.ErrorMessage),
		toNullInt64(g.FinishedAt), g.ID,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound(g.ID)
	}
	return nil
}

const generationColumns = `
	id, mode, status, input_json, credits_used, credits_refunded,
	record_count, dropped_count, records_json, error_code, error_message,
	created_at, finished_at
`

// GetGeneration retrieves a generation with its records.
func GetGeneration(ctx context.Context, db *sql.DB, id string) (*Generation, error) {
	row := db.QueryRowContext(ctx, "SELECT "+generationColumns+" FROM generations WHERE id = ?", id)
	g, err := scanGeneration(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return g, nil
}

// ListGenerations returns generations newest first, without their records,
// plus the total count matching the filter. An empty mode matches all modes.
func ListGenerations(ctx context.Context, db *sql.DB, mode string, limit, offset int) ([]*Generation, int, error) {
	where := ""
	args := []any{}
	if mode != "" {
		where = " WHERE mode = ?"
		args = append(args, mode)
	}

	var total int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM generations"+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	query := "SELECT " + generationColumns + " FROM generations" + where +
		" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	rows, err := db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	items := make([]*Generation, 0)
	for rows.Next() {
		g, err := scanGeneration(rows)
		if err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		g.Records = nil
		items = append(items, g)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	return items, total, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanGeneration scans a single row into a Generation struct.
func scanGeneration(row scanner) (*Generation, error) {
	var (
		g            Generation
		inputJSON    sql.NullString
		recordsJSON  sql.NullString
		errorCode    sql.NullString
		errorMessage sql.NullString
		finishedAt   sql.NullInt64
	)

	err := row.Scan(
		&g.ID, &g.Mode, &g.Status, &inputJSON, &g.CreditsUsed, &g.CreditsRefunded,
		&g.RecordCount, &g.DroppedCount, &recordsJSON, &errorCode, &errorMessage,
		&g.CreatedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}

	if inputJSON.Valid && inputJSON.String != "" {
		g.Input = json.RawMessage(inputJSON.String)
	}
	g.ErrorCode = fromNullString(errorCode)
	g.ErrorMessage = fromNullString(errorMessage)
	if finishedAt.Valid {
		g.FinishedAt = &finishedAt.Int64
	}

	if recordsJSON.Valid && recordsJSON.String != "" {
		if err := json.Unmarshal([]byte(recordsJSON.String), &g.Records); err != nil {
			return nil, err
		}
	}

	return &g, nil
}

func marshalRecords(records []record.Envelope) (sql.NullString, error) {
	if len(records) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(records)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func rawToNull(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

// toNullString converts a *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNullString converts a sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func toNullInt64(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}
