package record

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hpungsan/muse/internal/errors"
)

// Parse decodes one frame into a record of the given kind.
// On failure it returns a MALFORMED_RECORD error carrying the raw frame;
// callers drop the frame and keep decoding.
func Parse(frame string, kind Kind) (Record, error) {
	switch kind {
	case KindIdea:
		return parseIdea(frame)
	case KindCaption:
		return parseCaption(frame)
	case KindRepurposed:
		return parseRepurposed(frame)
	default:
		return nil, errors.NewMalformedRecord(string(kind), frame, fmt.Errorf("unknown record kind"))
	}
}

func parseIdea(frame string) (Record, error) {
	var raw struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal([]byte(frame), &raw); err != nil {
		return nil, errors.NewMalformedRecord(string(KindIdea), frame, err)
	}
	if strings.TrimSpace(raw.Title) == "" {
		return nil, errors.NewMalformedRecord(string(KindIdea), frame, fmt.Errorf("title is required"))
	}
	return Idea{
		ID:          newID(),
		Title:       raw.Title,
		Description: raw.Description,
	}, nil
}

func parseCaption(frame string) (Record, error) {
	var raw struct {
		Caption  string   `json:"caption"`
		Hashtags []string `json:"hashtags"`
	}
	if err := json.Unmarshal([]byte(frame), &raw); err != nil {
		return nil, errors.NewMalformedRecord(string(KindCaption), frame, err)
	}
	if strings.TrimSpace(raw.Caption) == "" {
		return nil, errors.NewMalformedRecord(string(KindCaption), frame, fmt.Errorf("caption is required"))
	}
	if raw.Hashtags == nil {
		raw.Hashtags = []string{}
	}
	return OptimizedCaption{
		Caption:  raw.Caption,
		Hashtags: raw.Hashtags,
	}, nil
}

func parseRepurposed(frame string) (Record, error) {
	var raw struct {
		Format  Format `json:"format"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(frame), &raw); err != nil {
		return nil, errors.NewMalformedRecord(string(KindRepurposed), frame, err)
	}
	if !raw.Format.Valid() {
		return nil, errors.NewMalformedRecord(string(KindRepurposed), frame, fmt.Errorf("unknown format %q", raw.Format))
	}
	if strings.TrimSpace(raw.Content) == "" {
		return nil, errors.NewMalformedRecord(string(KindRepurposed), frame, fmt.Errorf("content is required"))
	}
	return RepurposedItem{
		ID:      newID(),
		Format:  raw.Format,
		Content: raw.Content,
	}, nil
}

// Envelope is the tagged JSON form of a record, used wherever records of
// mixed kinds are stored or streamed.
type Envelope struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Wrap encodes r into an Envelope.
func Wrap(r Record) (Envelope, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Kind: r.Kind(), Data: data}, nil
}

// Unwrap decodes an Envelope back into a typed record, keeping stored IDs.
func Unwrap(e Envelope) (Record, error) {
	switch e.Kind {
	case KindIdea:
		var r Idea
		err := json.Unmarshal(e.Data, &r)
		return r, err
	case KindCaption:
		var r OptimizedCaption
		err := json.Unmarshal(e.Data, &r)
		return r, err
	case KindRepurposed:
		var r RepurposedItem
		err := json.Unmarshal(e.Data, &r)
		return r, err
	default:
		return nil, fmt.Errorf("unknown record kind %q", e.Kind)
	}
}
