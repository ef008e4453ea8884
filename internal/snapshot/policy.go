package snapshot

import "time"

// Policy decides when the manager should persist a snapshot. All policies
// are pure functions of the events accumulated since the last snapshot and
// the time it was taken.
type Policy interface {
	ShouldSnapshot(eventsSinceSnapshot int64, lastSnapshotTime time.Time) bool
}

// ElapsedTime approves a snapshot once the interval has passed since the
// last one.
type ElapsedTime struct {
	interval time.Duration
	now      func() time.Time
}

// NewElapsedTime returns a wall-clock interval policy.
func NewElapsedTime(interval time.Duration) *ElapsedTime {
	return &ElapsedTime{interval: interval, now: time.Now}
}

func (p *ElapsedTime) ShouldSnapshot(eventsSinceSnapshot int64, lastSnapshotTime time.Time) bool {
	return p.now().Sub(lastSnapshotTime) >= p.interval
}

// EventCount approves a snapshot once enough events have accumulated.
type EventCount struct {
	maxEvents int64
}

// NewEventCount returns an event-count policy.
func NewEventCount(maxEvents int64) *EventCount {
	return &EventCount{maxEvents: maxEvents}
}

func (p *EventCount) ShouldSnapshot(eventsSinceSnapshot int64, lastSnapshotTime time.Time) bool {
	return eventsSinceSnapshot >= p.maxEvents
}

// Hybrid approves a snapshot when either the count or the interval policy
// does.
type Hybrid struct {
	count   *EventCount
	elapsed *ElapsedTime
}

// NewHybrid returns the logical OR of NewEventCount and NewElapsedTime.
func NewHybrid(maxEvents int64, interval time.Duration) *Hybrid {
	return &Hybrid{count: NewEventCount(maxEvents), elapsed: NewElapsedTime(interval)}
}

func (p *Hybrid) ShouldSnapshot(eventsSinceSnapshot int64, lastSnapshotTime time.Time) bool {
	return p.count.ShouldSnapshot(eventsSinceSnapshot, lastSnapshotTime) ||
		p.elapsed.ShouldSnapshot(eventsSinceSnapshot, lastSnapshotTime)
}
