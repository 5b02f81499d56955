package engine

import (
	"sync"
	"time"
)

// admissionClock hands out strictly increasing UTC timestamps. Postgres
// stores microseconds, so two orders admitted within the same microsecond
// would otherwise tie on created_at and lose their arrival order.
type admissionClock struct {
	mu   sync.Mutex
	last time.Time
}

// Now returns the current UTC time, nudged forward by a microsecond
// whenever the wall clock has not advanced past the previous admission.
func (c *admissionClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC().Truncate(time.Microsecond)
	if !now.After(c.last) {
		now = c.last.Add(time.Microsecond)
	}
	c.last = now
	return now
}
