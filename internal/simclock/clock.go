package simclock

import (
	"BrokerLedger/internal/txn"
	"sync"
	"time"
)

// Clock is the simulated time source. It moves only when Advance is called.
type Clock struct {
	mu       sync.RWMutex
	start    time.Time
	now      time.Time
	slotSize time.Duration
}

func NewClock(start time.Time, slotSize time.Duration) *Clock {
	start = start.UTC()
	return &Clock{
		start:    start,
		now:      start,
		slotSize: slotSize,
	}
}

func (c *Clock) CurrentTime() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Advance moves simulated time forward one timeslot and returns the new time.
func (c *Clock) Advance() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.slotSize)
	return c.now
}

// CurrentTimeslot derives the timeslot containing the current time.
// Serials count from zero at the simulation start.
func (c *Clock) CurrentTimeslot() (txn.Timeslot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.now.Before(c.start) || c.slotSize <= 0 {
		return txn.Timeslot{}, false
	}
	serial := int(c.now.Sub(c.start) / c.slotSize)
	return txn.Timeslot{
		Serial:    serial,
		StartTime: c.start.Add(time.Duration(serial) * c.slotSize),
	}, true
}
