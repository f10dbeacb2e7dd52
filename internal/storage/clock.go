package storage

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/atomic"
)

// Clock hands out strictly increasing microsecond timestamps so that turns
// appended in quick succession keep their order in the log.
type Clock struct {
	last atomic.Int64
	now  func() time.Time
}

// NewClock creates a clock over the wall clock
func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// Now returns a UTC time later than every previous result
func (c *Clock) Now() time.Time {
	for {
		last := c.last.Load()
		next := c.now().UTC().UnixMicro()
		if next <= last {
			next = last + 1
		}
		if c.last.CompareAndSwap(last, next) {
			return time.UnixMicro(next).UTC()
		}
	}
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewMessageID returns a lexically sortable id for a log row
func NewMessageID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// stamp fills in the server-assigned id and timestamp.
func stamp(clock *Clock, id *string, ts *time.Time) {
	if ts.IsZero() {
		*ts = clock.Now()
	}
	if *id == "" {
		*id = NewMessageID(*ts)
	}
}
