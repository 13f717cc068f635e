package prefs

import (
	"strings"

	"github.com/hpungsan/muse/internal/errors"
)

// Known platforms and tones offered by the settings collaborator. The gate only
// checks presence; these lists exist for help text and completion.
var (
	KnownPlatforms = []string{"Instagram", "TikTok", "Threads", "YouTube", "X (Twitter)", "LinkedIn", "Blog"}
	KnownTones     = []string{"Funny", "Educational", "Motivational", "Inspirational", "Professional", "Casual", "Sarcastic"}
)

// Preferences is the snapshot of user settings sent with every generation request.
type Preferences struct {
	Niche     string   `json:"niche"`
	Platforms []string `json:"platforms"`
	Tone      string   `json:"tone"`
}

// Normalize trims every field and reduces Platforms to a set,
// keeping the order of first occurrence.
func Normalize(p Preferences) Preferences {
	return Preferences{
		Niche:     strings.TrimSpace(p.Niche),
		Platforms: dedupe(p.Platforms),
		Tone:      strings.TrimSpace(p.Tone),
	}
}

// Check reports which required preferences are missing.
// Returns nil only when niche, platforms and tone are all set.
func Check(p Preferences) error {
	p = Normalize(p)

	var missing []string
	if p.Niche == "" {
		missing = append(missing, "niche")
	}
	if len(p.Platforms) == 0 {
		missing = append(missing, "platforms")
	}
	if p.Tone == "" {
		missing = append(missing, "tone")
	}

	if len(missing) > 0 {
		return errors.NewMissingPreference(missing)
	}
	return nil
}

// SplitList parses a comma-separated list such as a --platforms flag value.
func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return dedupe(strings.Split(s, ","))
}

// dedupe trims entries and drops blanks and duplicates.
func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	result := make([]string, 0, len(items))
	for _, s := range items {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
