package credit

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// StartResetJob runs ResetIfDue on the store's schedule until ctx is done.
// The returned stop function waits up to five seconds for a running reset.
func StartResetJob(ctx context.Context, s *Store, spec string) (stop func(), err error) {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if _, err := s.ResetIfDue(context.Background()); err != nil {
			s.log.Error("[cron] credit reset failed", "error", err)
		}
	}); err != nil {
		return nil, err
	}

	c.Start()
	s.log.Debug("[cron] credit reset scheduled", "schedule", spec)

	var once sync.Once
	stopped := make(chan struct{})
	stop = func() {
		once.Do(func() {
			close(stopped)
			select {
			case <-c.Stop().Done():
			case <-time.After(5 * time.Second):
				s.log.Warn("[cron] stop timeout waiting for running reset")
			}
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-stopped:
		}
	}()

	return stop, nil
}
