package async

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/hedisam/filedrop/lib/chans"
	"github.com/hedisam/filedrop/server/internal/lifecycle"
)

// ReapInterval is the fixed pause between reap cycles.
const ReapInterval = 30 * time.Second

type Reaper interface {
	Reap(ctx context.Context) (*lifecycle.ReapResult, error)
}

type ReapObserver interface {
	ObserveCycle(purged, failed int, err error, took time.Duration)
}

// ReapScheduler drives reap cycles on a fixed interval without jitter or backoff. A failed cycle is logged and the
// next one runs on schedule.
type ReapScheduler struct {
	logger   *logrus.Logger
	reaper   Reaper
	observer ReapObserver
	clock    clock.Clock
	interval time.Duration
}

func NewReapScheduler(logger *logrus.Logger, reaper Reaper, observer ReapObserver, clk clock.Clock) *ReapScheduler {
	return &ReapScheduler{
		logger:   logger,
		reaper:   reaper,
		observer: observer,
		clock:    clk,
		interval: ReapInterval,
	}
}

// Run reaps once right away and then on every tick until ctx is done.
func (s *ReapScheduler) Run(ctx context.Context) {
	s.logger.WithContext(ctx).WithField("interval", s.interval).Info("Running Reaper")

	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	s.cycle(ctx)
	for range chans.ReceiveOrDoneSeq(ctx, ticker.C) {
		s.cycle(ctx)
	}
}

func (s *ReapScheduler) cycle(ctx context.Context) {
	start := s.clock.Now()
	res, err := s.reaper.Reap(ctx)
	took := s.clock.Since(start)

	if res == nil {
		res = &lifecycle.ReapResult{}
	}
	if s.observer != nil {
		s.observer.ObserveCycle(res.Purged, res.Failed, err, took)
	}
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(logrus.Fields{
			"purged": res.Purged,
			"failed": res.Failed,
		}).Error("Reap cycle finished with errors")
	}
}
