package ops

import (
	"context"

	"github.com/hpungsan/muse/internal/generate"
	"github.com/hpungsan/muse/internal/prefs"
	"github.com/hpungsan/muse/internal/record"
)

// GenerateInput contains parameters for the Generate operation.
type GenerateInput struct {
	Mode        string // ideas, caption or repurpose
	Preferences prefs.Preferences
	Draft       string   // caption only
	Source      string   // repurpose only
	Formats     []string // repurpose only
}

// GenerateOutput contains the result of the Generate operation.
type GenerateOutput struct {
	ID              string          `json:"id"`
	Mode            string          `json:"mode"`
	Kind            record.Kind     `json:"kind"`
	State           generate.State  `json:"state"`
	Records         []record.Record `json:"records"`
	Dropped         int             `json:"dropped"`
	CreditsUsed     int             `json:"credits_used"`
	CreditsRefunded int             `json:"credits_refunded"`
}

// Generate runs one session of the requested mode. Records are passed to
// emit as they arrive; emit may be nil.
//
// On failure the output still describes the session (records decoded before
// the failure, credits used and refunded) and is returned with the error.
func Generate(ctx context.Context, tools *generate.Toolset, input GenerateInput, emit func(record.Record)) (*GenerateOutput, error) {
	tool, err := tools.Tool(input.Mode)
	if err != nil {
		return nil, err
	}

	req := generate.Request{
		Preferences: input.Preferences,
		Draft:       input.Draft,
		Source:      input.Source,
		Formats:     generate.ParseFormats(input.Formats),
	}

	res, err := tool.Run(ctx, req, emit)
	return &GenerateOutput{
		ID:              res.ID,
		Mode:            res.Mode,
		Kind:            tool.Mode().Kind,
		State:           res.State,
		Records:         res.Records,
		Dropped:         res.Dropped,
		CreditsUsed:     res.CreditsUsed,
		CreditsRefunded: res.CreditsRefunded,
	}, err
}
