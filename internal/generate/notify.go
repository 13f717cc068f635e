package generate

import (
	"fmt"

	"github.com/hpungsan/muse/internal/errors"
)

// Level is the severity of a Notice.
type Level string

const (
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is a user-facing message about a session.
type Notice struct {
	Level       Level  `json:"level"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Action      string `json:"action,omitempty"`
}

// Notifier receives notices. Delivery is fire-and-forget; implementations must not block.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

// Notify implements Notifier.
func (f NotifierFunc) Notify(n Notice) { f(n) }

type discardNotifier struct{}

func (discardNotifier) Notify(Notice) {}

// failureNotice maps a session error to the notice shown for it.
func failureNotice(m *Mode, err error) Notice {
	mErr := errors.As(err)
	switch mErr.Code {
	case errors.ErrMissingPreference:
		return Notice{
			Level:       LevelError,
			Title:       "Missing Preferences",
			Description: "Please set your niche, platforms, and tone in the settings first.",
			Action:      errors.ActionOpenSettings,
		}
	case errors.ErrInsufficientCredits:
		balance, _ := mErr.Details["balance"].(int)
		required, _ := mErr.Details["required"].(int)
		if balance <= 0 {
			return Notice{
				Level:       LevelError,
				Title:       "You're out of credits!",
				Description: "Your credits will reset tomorrow.",
			}
		}
		return Notice{
			Level:       LevelError,
			Title:       "Not enough credits!",
			Description: fmt.Sprintf("You need %d credits but only have %d. Your credits will reset tomorrow.", required, balance),
		}
	case errors.ErrInvalidRequest:
		return Notice{Level: LevelWarning, Title: "Invalid request", Description: mErr.Message}
	case errors.ErrCancelled:
		return Notice{Level: LevelWarning, Title: "Generation cancelled"}
	case errors.ErrSessionBusy:
		return Notice{Level: LevelWarning, Title: "Already running", Description: mErr.Message}
	default:
		return Notice{
			Level:       LevelError,
			Title:       m.FailureTitle,
			Description: "Could not connect to the AI service. Please try again.",
		}
	}
}

func successNotice(m *Mode, cost int) Notice {
	desc := "1 credit was used."
	if cost != 1 {
		desc = fmt.Sprintf("%d credits were used.", cost)
	}
	return Notice{Level: LevelSuccess, Title: m.SuccessTitle, Description: desc}
}
