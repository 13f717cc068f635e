package generate

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hpungsan/muse/internal/errors"
	"github.com/hpungsan/muse/internal/record"
)

// Tool runs at most one session of its mode at a time. A second Run while
// one is in flight fails immediately with SESSION_BUSY.
type Tool struct {
	session *Session
	sem     *semaphore.Weighted
}

// NewTool wraps session with a single-flight guard.
func NewTool(session *Session) *Tool {
	return &Tool{session: session, sem: semaphore.NewWeighted(1)}
}

// Mode returns the tool's mode.
func (t *Tool) Mode() *Mode { return t.session.mode }

// Run starts a session unless one is already running.
func (t *Tool) Run(ctx context.Context, req Request, emit func(record.Record)) (*Result, error) {
	if !t.sem.TryAcquire(1) {
		err := errors.NewSessionBusy(t.session.mode.Name)
		t.session.opts.Notifier.Notify(failureNotice(t.session.mode, err))
		now := time.Now()
		return &Result{
			Mode:       t.session.mode.Name,
			State:      StateFailed,
			Records:    []record.Record{},
			StartedAt:  now,
			FinishedAt: now,
		}, err
	}
	defer t.sem.Release(1)

	return t.session.Run(ctx, req, emit)
}

// Toolset holds one Tool per mode, sharing ledger, client and journal.
type Toolset struct {
	tools map[string]*Tool
}

// NewToolset builds a Tool for every mode.
func NewToolset(opts Options) *Toolset {
	ts := &Toolset{tools: make(map[string]*Tool, len(modes))}
	for name, mode := range modes {
		ts.tools[name] = NewTool(NewSession(mode, opts))
	}
	return ts
}

// Tool returns the tool for the named mode.
func (ts *Toolset) Tool(name string) (*Tool, error) {
	mode, err := ModeByName(name)
	if err != nil {
		return nil, err
	}
	return ts.tools[mode.Name], nil
}
