package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestElapsedTimePolicy(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := NewElapsedTime(5 * time.Minute)
	p.now = fixedClock(now)

	assert.False(t, p.ShouldSnapshot(0, now.Add(-time.Minute)))
	assert.True(t, p.ShouldSnapshot(0, now.Add(-5*time.Minute)))
	assert.True(t, p.ShouldSnapshot(0, now.Add(-time.Hour)))
}

func TestEventCountPolicy(t *testing.T) {
	p := NewEventCount(100)
	last := time.Now()

	assert.False(t, p.ShouldSnapshot(99, last))
	assert.True(t, p.ShouldSnapshot(100, last))
	assert.True(t, p.ShouldSnapshot(250, last))
}

func TestHybridIsEitherPolicy(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := NewHybrid(100, 5*time.Minute)
	p.elapsed.now = fixedClock(now)

	recent := now.Add(-time.Minute)
	stale := now.Add(-10 * time.Minute)

	assert.False(t, p.ShouldSnapshot(10, recent), "neither condition met")
	assert.True(t, p.ShouldSnapshot(100, recent), "count alone suffices")
	assert.True(t, p.ShouldSnapshot(10, stale), "elapsed time alone suffices")
	assert.True(t, p.ShouldSnapshot(100, stale))
}
