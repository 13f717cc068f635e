package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hpungsan/muse/internal/db"
	"github.com/hpungsan/muse/internal/errors"
	"github.com/hpungsan/muse/internal/generate"
)

// HistoryInput contains parameters for the History operation.
type HistoryInput struct {
	Mode   string // optional filter
	Limit  int    // default: 20, max: 100
	Offset int    // default: 0
}

// HistoryOutput contains the result of the History operation.
type HistoryOutput struct {
	Items      []*db.Generation `json:"items"`
	Pagination Pagination       `json:"pagination"`
	Sort       string           `json:"sort"`
}

// History lists past generations newest first, without their records.
func History(ctx context.Context, database *sql.DB, input HistoryInput) (*HistoryOutput, error) {
	mode := ""
	if strings.TrimSpace(input.Mode) != "" {
		m, err := generate.ModeByName(input.Mode)
		if err != nil {
			return nil, err
		}
		mode = m.Name
	}

	limit, offset := clampPage(input.Limit, input.Offset)

	items, total, err := db.ListGenerations(ctx, database, mode, limit, offset)
	if err != nil {
		return nil, err
	}

	return &HistoryOutput{
		Items: items,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(items) < total,
			Total:   total,
		},
		Sort: "created_at_desc",
	}, nil
}

// Show returns one generation with its records.
func Show(ctx context.Context, database *sql.DB, id string) (*db.Generation, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}
	return db.GetGeneration(ctx, database, id)
}
