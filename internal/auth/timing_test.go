package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/BradenHooton/loginguard/internal/auth"
	"github.com/stretchr/testify/assert"
)

func TestTimingDelay_WaitFrom_PadsToTarget(t *testing.T) {
	timing := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelay:   100 * time.Millisecond,
		RandomDelay: 50 * time.Millisecond,
	})
	startTime := time.Now()

	timing.WaitFrom(context.Background(), startTime)

	elapsed := time.Since(startTime)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, 300*time.Millisecond)
}

func TestTimingDelay_WaitFrom_AccountsForElapsedTime(t *testing.T) {
	timing := auth.NewTimingDelay(auth.TimingConfig{BaseDelay: 100 * time.Millisecond})

	// Work already took longer than the target
	startTime := time.Now().Add(-200 * time.Millisecond)
	before := time.Now()

	timing.WaitFrom(context.Background(), startTime)

	assert.Less(t, time.Since(before), 20*time.Millisecond)
}

func TestTimingDelay_WaitFrom_StopsOnCancel(t *testing.T) {
	timing := auth.NewTimingDelay(auth.TimingConfig{BaseDelay: 5 * time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	startTime := time.Now()
	timing.WaitFrom(ctx, startTime)

	assert.Less(t, time.Since(startTime), time.Second)
}

func TestTimingDelay_Target_WithinBounds(t *testing.T) {
	timing := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelay:   10 * time.Millisecond,
		RandomDelay: 5 * time.Millisecond,
	})

	for i := 0; i < 100; i++ {
		target := timing.Target()
		assert.GreaterOrEqual(t, target, 10*time.Millisecond)
		assert.Less(t, target, 15*time.Millisecond)
	}
}

func TestTimingDelay_ZeroConfigNoDelay(t *testing.T) {
	timing := auth.NewTimingDelay(auth.TimingConfig{})
	startTime := time.Now()

	timing.WaitFrom(context.Background(), startTime)

	assert.Less(t, time.Since(startTime), 10*time.Millisecond)
}
