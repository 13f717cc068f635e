package generate

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/hpungsan/muse/internal/config"
	"github.com/hpungsan/muse/internal/credit"
	"github.com/hpungsan/muse/internal/errors"
	"github.com/hpungsan/muse/internal/logger"
	"github.com/hpungsan/muse/internal/metrics"
	"github.com/hpungsan/muse/internal/prefs"
	"github.com/hpungsan/muse/internal/record"
)

// readSize must be at least the transform.Reader buffer (4 KiB) so every
// read receives whole runes.
const readSize = 32 * 1024

// State is the lifecycle position of a session.
type State int

const (
	StateIdle State = iota
	StatePreconditionsChecked
	StateRequesting
	StateStreaming
	StateCompleted
	StateFailed
)

var stateNames = [...]string{
	StateIdle:                 "idle",
	StatePreconditionsChecked: "preconditions_checked",
	StateRequesting:           "requesting",
	StateStreaming:            "streaming",
	StateCompleted:            "completed",
	StateFailed:               "failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Result describes one finished session.
type Result struct {
	ID              string          `json:"id"`
	Mode            string          `json:"mode"`
	State           State           `json:"state"`
	Records         []record.Record `json:"records"`
	Dropped         int             `json:"dropped"`
	CreditsUsed     int             `json:"credits_used"`
	CreditsRefunded int             `json:"credits_refunded"`
	StartedAt       time.Time       `json:"started_at"`
	FinishedAt      time.Time       `json:"finished_at"`
}

// Journal persists sessions that reach the request phase.
// Journal errors are logged and never fail the session.
type Journal interface {
	Started(ctx context.Context, res *Result, req Request) error
	Finished(ctx context.Context, res *Result, cause error) error
}

// Options are shared by every session of a Toolset.
type Options struct {
	Client       *Client
	Ledger       credit.Ledger
	RefundPolicy string
	Timeout      time.Duration
	Notifier     Notifier
	Journal      Journal
	Logger       *slog.Logger
}

// Session runs generation requests for one mode. Each Run is independent;
// Tool adds the one-at-a-time guard.
type Session struct {
	mode *Mode
	opts Options
}

// NewSession returns a Session for mode.
func NewSession(mode *Mode, opts Options) *Session {
	if opts.Notifier == nil {
		opts.Notifier = discardNotifier{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}
	if opts.RefundPolicy == "" {
		opts.RefundPolicy = config.RefundNone
	}
	return &Session{mode: mode, opts: opts}
}

// Mode returns the session's mode.
func (s *Session) Mode() *Mode { return s.mode }

// Run executes one request and streams its records to emit in arrival order.
// The returned Result is never nil; on error it holds whatever was decoded
// before the failure.
func (s *Session) Run(ctx context.Context, req Request, emit func(record.Record)) (*Result, error) {
	if emit == nil {
		emit = func(record.Record) {}
	}

	res := &Result{
		ID:        ulid.Make().String(),
		Mode:      s.mode.Name,
		State:     StateIdle,
		Records:   []record.Record{},
		StartedAt: time.Now(),
	}

	ctx = logger.WithContext(ctx, logger.GenerationIDKey, res.ID)
	ctx = logger.WithContext(ctx, logger.ModeKey, s.mode.Name)
	if s.opts.Client != nil {
		ctx = logger.WithContext(ctx, logger.SessionIDKey, s.opts.Client.SessionID)
	}
	log := logger.FromContext(ctx, s.opts.Logger)

	cost, err := s.checkPreconditions(ctx, &req)
	if err != nil {
		res.State = StateFailed
		res.FinishedAt = time.Now()
		log.Info("generation rejected", "error", err)
		metrics.RecordSession(s.mode.Name, metrics.StatusRejected, 0)
		s.opts.Notifier.Notify(failureNotice(s.mode, err))
		return res, err
	}
	res.State = StatePreconditionsChecked
	log.Info("generation started", "cost", cost)

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if s.opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	res.State = StateRequesting
	if s.opts.Journal != nil {
		if jErr := s.opts.Journal.Started(ctx, res, req); jErr != nil {
			log.Warn("history: failed to record start", "error", jErr)
		}
	}

	err = s.stream(ctx, runCtx, req, cost, res, emit, log)
	res.FinishedAt = time.Now()
	elapsed := res.FinishedAt.Sub(res.StartedAt).Seconds()

	if err != nil {
		res.State = StateFailed
		s.maybeRefund(ctx, res, err, log)
		log.Warn("generation failed", "error", err, "records", len(res.Records), "dropped", res.Dropped)
		metrics.RecordSession(s.mode.Name, metrics.StatusFailed, elapsed)
		s.opts.Notifier.Notify(failureNotice(s.mode, err))
	} else {
		res.State = StateCompleted
		log.Info("generation completed", "records", len(res.Records), "dropped", res.Dropped, "credits", res.CreditsUsed)
		metrics.RecordSession(s.mode.Name, metrics.StatusCompleted, elapsed)
		if len(res.Records) == 0 {
			s.opts.Notifier.Notify(Notice{
				Level:       LevelWarning,
				Title:       "Nothing to show",
				Description: "The AI service returned no usable content.",
			})
		}
	}

	if s.opts.Journal != nil {
		if jErr := s.opts.Journal.Finished(context.WithoutCancel(ctx), res, err); jErr != nil {
			log.Warn("history: failed to record result", "error", jErr)
		}
	}

	return res, err
}

// checkPreconditions validates req in place and returns the credit cost.
// No request is sent when it fails.
func (s *Session) checkPreconditions(ctx context.Context, req *Request) (int, error) {
	if ctx.Err() != nil {
		return 0, errors.NewCancelled(s.mode.Name + " generation")
	}

	req.Preferences = prefs.Normalize(req.Preferences)
	if err := prefs.Check(req.Preferences); err != nil {
		return 0, err
	}
	if err := s.mode.Validate(req); err != nil {
		return 0, err
	}

	cost := s.mode.Cost(*req)
	ok, err := s.opts.Ledger.HasSufficientCredits(ctx, cost)
	if err != nil {
		return 0, err
	}
	if !ok {
		balance, err := s.opts.Ledger.Balance(ctx)
		if err != nil {
			return 0, err
		}
		return 0, errors.NewInsufficientCredits(cost, balance)
	}
	return cost, nil
}

// stream performs requesting -> streaming -> end of stream.
func (s *Session) stream(ctx, runCtx context.Context, req Request, cost int, res *Result, emit func(record.Record), log *slog.Logger) error {
	resp, err := s.opts.Client.Post(runCtx, s.mode.Path, s.mode.Body(req))
	if err != nil {
		return s.interrupted(ctx, runCtx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.NewRequestFailed(resp.StatusCode, nil)
	}
	if resp.Body == http.NoBody {
		return errors.NewRequestFailed(resp.StatusCode, fmt.Errorf("response has no body"))
	}

	// Accepted: charge before consuming any of the body.
	if err := s.opts.Ledger.TryDeduct(runCtx, cost); err != nil {
		return err
	}
	res.CreditsUsed = cost
	metrics.RecordCredits(s.mode.Name, cost)
	res.State = StateStreaming
	log.Info("generation accepted", "status", resp.StatusCode, "credits", cost)
	s.opts.Notifier.Notify(successNotice(s.mode, cost))

	body := transform.NewReader(resp.Body, unicode.UTF8.NewDecoder())
	dec := s.mode.NewDecoder()
	buf := make([]byte, readSize)

	for {
		if err := runCtx.Err(); err != nil {
			return s.interrupted(ctx, runCtx, err)
		}
		n, err := body.Read(buf)
		if n > 0 {
			s.consume(dec.Feed(string(buf[:n])), res, emit, log)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return s.interrupted(ctx, runCtx, err)
		}
	}

	s.consume(dec.Finish(), res, emit, log)
	return nil
}

// consume parses frames and emits the records; malformed frames are dropped.
func (s *Session) consume(frames []string, res *Result, emit func(record.Record), log *slog.Logger) {
	for _, f := range frames {
		rec, err := record.Parse(f, s.mode.Kind)
		if err != nil {
			res.Dropped++
			metrics.RecordsDroppedTotal.WithLabelValues(s.mode.Name).Inc()
			log.Warn("dropping malformed frame", "error", err, "frame", logger.Truncate(f, 200))
			continue
		}
		res.Records = append(res.Records, rec)
		metrics.RecordsEmittedTotal.WithLabelValues(s.mode.Name).Inc()
		emit(rec)
	}
}

// interrupted classifies a transport or context error. Cancellation of the
// caller's context wins over everything else.
func (s *Session) interrupted(ctx, runCtx context.Context, err error) error {
	if ctx.Err() != nil {
		return errors.NewCancelled(s.mode.Name + " generation")
	}
	if stderrors.Is(runCtx.Err(), context.DeadlineExceeded) || stderrors.Is(err, context.DeadlineExceeded) {
		return errors.NewRequestFailed(0, fmt.Errorf("timed out after %s", s.opts.Timeout))
	}
	return errors.NewRequestFailed(0, err)
}

// maybeRefund applies the refund policy after a failure. Only transport
// failures after deduction are refunded, never cancellations.
func (s *Session) maybeRefund(ctx context.Context, res *Result, err error, log *slog.Logger) {
	if s.opts.RefundPolicy != config.RefundOnFailure || res.CreditsUsed == 0 {
		return
	}
	if !errors.Is(err, errors.ErrRequestFailed) {
		return
	}
	if rErr := s.opts.Ledger.Refund(context.WithoutCancel(ctx), res.CreditsUsed); rErr != nil {
		log.Error("refund failed", "error", rErr, "credits", res.CreditsUsed)
		return
	}
	res.CreditsRefunded = res.CreditsUsed
	metrics.RecordCredits(s.mode.Name, -res.CreditsUsed)
	log.Info("credits refunded", "credits", res.CreditsUsed)
}
