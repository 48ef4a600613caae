package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"lawncast/internal/types"
)

type stubSettings struct {
	settings types.Settings
	found    bool
	err      error
}

func (s *stubSettings) Settings(_ context.Context) (types.Settings, bool, error) {
	return s.settings, s.found, s.err
}

type countingLedger struct {
	calls atomic.Int64
}

func (c *countingLedger) RefreshIfStale(_ context.Context, _ types.Settings) (*types.WeatherRecord, error) {
	c.calls.Add(1)
	return &types.WeatherRecord{}, nil
}

func TestRun_TicksUntilCancelled(t *testing.T) {
	ledger := &countingLedger{}
	r := NewRefresher(&stubSettings{found: true}, ledger, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return ledger.calls.Load() >= 3
	}, time.Second, 5*time.Millisecond, "expected the immediate tick plus ticker ticks")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestTick_SkipsBeforeOnboarding(t *testing.T) {
	ledger := &countingLedger{}
	r := NewRefresher(&stubSettings{found: false}, ledger, time.Minute, nil)

	r.tick(context.Background())
	assert.Zero(t, ledger.calls.Load())
}

func TestTick_SettingsErrorDoesNotRefresh(t *testing.T) {
	ledger := &countingLedger{}
	r := NewRefresher(&stubSettings{err: errors.New("db closed")}, ledger, time.Minute, nil)

	r.tick(context.Background())
	assert.Zero(t, ledger.calls.Load())
}
