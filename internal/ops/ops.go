// Package ops implements the operations shared by the CLI, MCP and HTTP
// surfaces: generation, credit status, history and export.
package ops

import (
	"fmt"
	"time"

	"github.com/hpungsan/muse/internal/db"
	"github.com/hpungsan/muse/internal/errors"
	"github.com/hpungsan/muse/internal/generate"
	"github.com/hpungsan/muse/internal/record"
	"github.com/hpungsan/muse/internal/render"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// clampPage applies limit defaults and bounds.
func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return limit, max(offset, 0)
}

var documentTitles = map[string]string{
	generate.Ideas.Name:     "Content Ideas",
	generate.Caption.Name:   "Optimized Caption",
	generate.Repurpose.Name: "Repurposed Content",
}

// Document converts a stored generation into a render.Document.
func Document(g *db.Generation) (render.Document, error) {
	title, ok := documentTitles[g.Mode]
	if !ok {
		title = "Generation " + g.ID
	}

	records := make([]record.Record, 0, len(g.Records))
	for i, env := range g.Records {
		r, err := record.Unwrap(env)
		if err != nil {
			return render.Document{}, errors.NewInternal(fmt.Errorf("record %d of %s: %w", i, g.ID, err))
		}
		records = append(records, r)
	}

	return render.Document{
		Title:     title,
		Mode:      g.Mode,
		CreatedAt: time.Unix(g.CreatedAt, 0),
		Records:   records,
	}, nil
}
