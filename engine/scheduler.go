package engine

import (
	"context"
	"time"

	"github.com/rustyeddy/pairtrader/logging"
	"github.com/rustyeddy/pairtrader/pkg/outcome"
)

// Cycler is anything that runs one trading pass.
type Cycler interface {
	Cycle(ctx context.Context) outcome.Result[CycleReport]
}

// NextRun returns the first candle boundary plus buffer strictly after now.
func NextRun(now time.Time, granularity, buffer time.Duration) time.Time {
	next := now.Truncate(granularity).Add(buffer)
	if !next.After(now) {
		next = next.Add(granularity)
	}
	return next
}

// Scheduler runs a Cycler shortly after every candle closes.
type Scheduler struct {
	c           Cycler
	granularity time.Duration
	buffer      time.Duration
	log         logging.LoggerInterface
	now         func() time.Time
	after       func(time.Duration) <-chan time.Time
}

func NewScheduler(c Cycler, granularity, buffer time.Duration, log logging.LoggerInterface) *Scheduler {
	if log == nil {
		log = logging.Nop()
	}
	if granularity <= 0 {
		granularity = 15 * time.Minute
	}
	return &Scheduler{
		c:           c,
		granularity: granularity,
		buffer:      buffer,
		log:         log,
		now:         time.Now,
		after:       time.After,
	}
}

// Once runs a single cycle and logs its result.
func (s *Scheduler) Once(ctx context.Context) outcome.Result[CycleReport] {
	res := s.c.Cycle(ctx)
	switch {
	case res.IsOk():
		s.log.Debug("cycle ok")
	case res.IsSkip():
		s.log.Info("cycle skipped: %s", res.Reason)
	default:
		s.log.Error("cycle failed: %v", res.Err)
	}
	return res
}

// Run cycles immediately and then at every boundary until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Once(ctx)
	for {
		next := NextRun(s.now(), s.granularity, s.buffer)
		s.log.Debug("next cycle at %s", next.Format(time.RFC3339))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.after(next.Sub(s.now())):
		}
		s.Once(ctx)
	}
}
