package download

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type recorder struct {
	events []Event
}

func (r *recorder) emit(ev Event) {
	r.events = append(r.events, ev)
}

func newTestThrottle(interval time.Duration) (*Throttle, *fakeClock, *recorder) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	rec := &recorder{}
	return NewThrottle(interval, rec.emit).WithClock(clock.Now), clock, rec
}

func TestThrottle_LimitsProgress(t *testing.T) {
	th, clock, rec := newTestThrottle(500 * time.Millisecond)

	th.Emit(Started{})
	th.Emit(Progress{BytesTransferred: 1, TotalBytes: 100})
	th.Emit(Progress{BytesTransferred: 2, TotalBytes: 100})
	clock.Advance(200 * time.Millisecond)
	th.Emit(Progress{BytesTransferred: 3, TotalBytes: 100})
	clock.Advance(300 * time.Millisecond)
	th.Emit(Progress{BytesTransferred: 4, TotalBytes: 100})

	assert.Equal(t, []Event{
		Started{},
		Progress{BytesTransferred: 1, TotalBytes: 100},
		Progress{BytesTransferred: 4, TotalBytes: 100},
	}, rec.events)
}

func TestThrottle_FlushesPendingBeforeTerminal(t *testing.T) {
	th, clock, rec := newTestThrottle(time.Second)

	th.Emit(Progress{BytesTransferred: 10, TotalBytes: 100})
	clock.Advance(10 * time.Millisecond)
	th.Emit(Progress{BytesTransferred: 90, TotalBytes: 100})
	th.Emit(Completed{Path: "/tmp/a.mp4", Size: 100})

	require.Len(t, rec.events, 3)
	assert.Equal(t, Progress{BytesTransferred: 90, TotalBytes: 100}, rec.events[1])
	assert.Equal(t, Completed{Path: "/tmp/a.mp4", Size: 100}, rec.events[2])
}

func TestThrottle_DropsAfterTerminal(t *testing.T) {
	th, clock, rec := newTestThrottle(time.Second)

	th.Emit(Canceled{})
	clock.Advance(time.Hour)
	th.Emit(Progress{BytesTransferred: 50, TotalBytes: -1})
	th.Emit(Failed{Err: errors.New("late")})
	th.Emit(Completed{})

	assert.Equal(t, []Event{Canceled{}}, rec.events)
}

func TestThrottle_DefaultInterval(t *testing.T) {
	th := NewThrottle(0, func(Event) {})
	assert.Equal(t, DefaultProgressInterval, th.interval)
}
