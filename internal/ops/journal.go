package ops

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/hpungsan/muse/internal/db"
	"github.com/hpungsan/muse/internal/errors"
	"github.com/hpungsan/muse/internal/generate"
	"github.com/hpungsan/muse/internal/record"
)

// Journal records generation sessions in the generations table.
type Journal struct {
	db *sql.DB
}

// NewJournal returns a Journal writing to database.
func NewJournal(database *sql.DB) *Journal {
	return &Journal{db: database}
}

// Started inserts a streaming row for res.
func (j *Journal) Started(ctx context.Context, res *generate.Result, req generate.Request) error {
	input, err := json.Marshal(req)
	if err != nil {
		return errors.NewInternal(err)
	}
	return db.InsertGeneration(ctx, j.db, &db.Generation{
		ID:        res.ID,
		Mode:      res.Mode,
		Status:    db.StatusStreaming,
		Input:     input,
		Records:   []record.Envelope{},
		CreatedAt: res.StartedAt.Unix(),
	})
}

// Finished stores the outcome and every record decoded before it.
func (j *Journal) Finished(ctx context.Context, res *generate.Result, cause error) error {
	envelopes := make([]record.Envelope, 0, len(res.Records))
	for _, r := range res.Records {
		env, err := record.Wrap(r)
		if err != nil {
			return errors.NewInternal(err)
		}
		envelopes = append(envelopes, env)
	}

	finishedAt := res.FinishedAt.Unix()
	g := &db.Generation{
		ID:              res.ID,
		Status:          db.StatusCompleted,
		CreditsUsed:     res.CreditsUsed,
		CreditsRefunded: res.CreditsRefunded,
		RecordCount:     len(res.Records),
		DroppedCount:    res.Dropped,
		Records:         envelopes,
		FinishedAt:      &finishedAt,
	}
	if cause != nil {
		mErr := errors.As(cause)
		code := string(mErr.Code)
		g.Status = db.StatusFailed
		g.ErrorCode = &code
		g.ErrorMessage = &mErr.Message
	}
	return db.FinishGeneration(ctx, j.db, g)
}
