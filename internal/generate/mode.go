// Package generate runs streaming generation sessions against the remote service.
package generate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hpungsan/muse/internal/errors"
	"github.com/hpungsan/muse/internal/frame"
	"github.com/hpungsan/muse/internal/prefs"
	"github.com/hpungsan/muse/internal/record"
)

// Wire delimiters between records in a response body.
const (
	IdeaSeparator      = "___IDEA_SEPARATOR___"
	RepurposeSeparator = "___REPURPOSE_SEPARATOR___"
)

// Mode describes one kind of generation: where it is sent, how its response
// is framed, what it costs, and what records it yields.
type Mode struct {
	Name string
	Path string
	Kind record.Kind

	NewDecoder func() frame.Decoder

	// Cost is the number of credits the request consumes on acceptance.
	Cost func(Request) int

	// Body builds the JSON request body.
	Body func(Request) any

	// Validate checks and normalizes the mode-specific payload.
	Validate func(*Request) error

	SuccessTitle string
	FailureTitle string
}

// Request is the input to one session. Only the fields of the chosen mode are used.
type Request struct {
	Preferences prefs.Preferences `json:"settings"`
	Draft       string            `json:"draft,omitempty"`
	Source      string            `json:"source,omitempty"`
	Formats     []record.Format   `json:"formats,omitempty"`
}

type ideasBody struct {
	Settings prefs.Preferences `json:"settings"`
}

type captionBody struct {
	Draft    string            `json:"draft"`
	Settings prefs.Preferences `json:"settings"`
}

type repurposeBody struct {
	SourceContent string            `json:"sourceContent"`
	TargetFormats []record.Format   `json:"targetFormats"`
	Settings      prefs.Preferences `json:"settings"`
}

func costOne(Request) int { return 1 }

var (
	Ideas = &Mode{
		Name:       "ideas",
		Path:       "generate-ideas",
		Kind:       record.KindIdea,
		NewDecoder: func() frame.Decoder { return frame.NewDelimited(IdeaSeparator) },
		Cost:       costOne,
		Body: func(r Request) any {
			return ideasBody{Settings: r.Preferences}
		},
		Validate:     func(*Request) error { return nil },
		SuccessTitle: "Ideas generated!",
		FailureTitle: "Generation Failed",
	}

	Caption = &Mode{
		Name:       "caption",
		Path:       "generate-caption",
		Kind:       record.KindCaption,
		NewDecoder: func() frame.Decoder { return frame.NewWhole() },
		Cost:       costOne,
		Body: func(r Request) any {
			return captionBody{Draft: r.Draft, Settings: r.Preferences}
		},
		Validate: func(r *Request) error {
			if strings.TrimSpace(r.Draft) == "" {
				return errors.NewInvalidRequest("draft caption is empty")
			}
			return nil
		},
		SuccessTitle: "Caption optimized!",
		FailureTitle: "Optimization Failed",
	}

	Repurpose = &Mode{
		Name:       "repurpose",
		Path:       "repurpose-content",
		Kind:       record.KindRepurposed,
		NewDecoder: func() frame.Decoder { return frame.NewDelimited(RepurposeSeparator) },
		Cost:       func(r Request) int { return len(r.Formats) },
		Body: func(r Request) any {
			return repurposeBody{SourceContent: r.Source, TargetFormats: r.Formats, Settings: r.Preferences}
		},
		Validate: func(r *Request) error {
			if strings.TrimSpace(r.Source) == "" {
				return errors.NewInvalidRequest("source content is empty")
			}
			formats, err := normalizeFormats(r.Formats)
			if err != nil {
				return err
			}
			r.Formats = formats
			return nil
		},
		SuccessTitle: "Content repurposed!",
		FailureTitle: "Repurposing Failed",
	}
)

var modes = map[string]*Mode{
	Ideas.Name:     Ideas,
	Caption.Name:   Caption,
	Repurpose.Name: Repurpose,
}

// ModeByName returns the mode called name.
func ModeByName(name string) (*Mode, error) {
	m, ok := modes[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown mode %q (want one of: %s)", name, strings.Join(ModeNames(), ", ")))
	}
	return m, nil
}

// ModeNames lists the mode names in sorted order.
func ModeNames() []string {
	names := make([]string, 0, len(modes))
	for name := range modes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// normalizeFormats trims, deduplicates and validates target formats.
func normalizeFormats(in []record.Format) ([]record.Format, error) {
	seen := make(map[record.Format]bool, len(in))
	out := make([]record.Format, 0, len(in))
	for _, f := range in {
		f = record.Format(strings.TrimSpace(string(f)))
		if f == "" || seen[f] {
			continue
		}
		if !f.Valid() {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown target format %q", f))
		}
		seen[f] = true
		out = append(out, f)
	}
	if len(out) == 0 {
		return nil, errors.NewInvalidRequest("no target formats selected")
	}
	return out, nil
}

// ParseFormats converts strings such as flag values into target formats.
func ParseFormats(values []string) []record.Format {
	out := make([]record.Format, 0, len(values))
	for _, v := range values {
		out = append(out, record.Format(v))
	}
	return out
}
