package async_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hedisam/filedrop/server/api/async"
	"github.com/hedisam/filedrop/server/internal/lifecycle"
)

type fakeReaper struct {
	calls chan struct{}
	err   error
}

func (f *fakeReaper) Reap(_ context.Context) (*lifecycle.ReapResult, error) {
	f.calls <- struct{}{}
	if f.err != nil {
		return &lifecycle.ReapResult{Purged: 1, Failed: 2}, f.err
	}
	return &lifecycle.ReapResult{Purged: 3}, nil
}

type observation struct {
	purged, failed int
	err            error
}

type fakeObserver struct {
	mu  sync.Mutex
	obs []observation
}

func (f *fakeObserver) ObserveCycle(purged, failed int, err error, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.obs = append(f.obs, observation{purged: purged, failed: failed, err: err})
}

func (f *fakeObserver) observations() []observation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]observation(nil), f.obs...)
}

func waitCall(t *testing.T, calls <-chan struct{}) {
	t.Helper()
	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("reap cycle did not run")
	}
}

func TestReapSchedulerRun(t *testing.T) {
	reapErr := errors.New("db down")

	tests := map[string]struct {
		err  error
		want observation
	}{
		"successful cycles": {
			want: observation{purged: 3},
		},
		"failing cycles keep the schedule": {
			err:  reapErr,
			want: observation{purged: 1, failed: 2, err: reapErr},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			logger := logrus.New()
			logger.SetOutput(io.Discard)
			clk := clock.NewMock()
			reaper := &fakeReaper{calls: make(chan struct{}), err: tc.err}
			observer := &fakeObserver{}

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				defer close(done)
				async.NewReapScheduler(logger, reaper, observer, clk).Run(ctx)
			}()

			// first cycle runs immediately
			waitCall(t, reaper.calls)

			go clk.Add(async.ReapInterval)
			waitCall(t, reaper.calls)

			go clk.Add(async.ReapInterval)
			waitCall(t, reaper.calls)

			cancel()
			select {
			case <-done:
			case <-time.After(2 * time.Second):
				t.Fatal("scheduler did not stop")
			}

			obs := observer.observations()
			require.Len(t, obs, 3)
			for _, o := range obs {
				assert.Equal(t, tc.want, o)
			}
		})
	}
}

func TestReapSchedulerWaitsForInterval(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	clk := clock.NewMock()
	reaper := &fakeReaper{calls: make(chan struct{}, 10)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go async.NewReapScheduler(logger, reaper, nil, clk).Run(ctx)

	waitCall(t, reaper.calls)
	clk.Add(async.ReapInterval - time.Second)

	select {
	case <-reaper.calls:
		t.Fatal("cycle ran before the interval elapsed")
	case <-time.After(50 * time.Millisecond):
	}
}
