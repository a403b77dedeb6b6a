package quiz

import (
	"sync"
	"time"
)

// TickInterval is the countdown granularity.
const TickInterval = time.Second

// Countdown drives a timed session's clock. It invokes tick once per interval
// until tick reports the session is finished or Stop is called. The countdown
// never pauses; the caller must Stop it when the session ends early or is
// abandoned.
type Countdown struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

// StartCountdown begins ticking at the given interval. tick returns true when
// the session has finished and the countdown should stop itself. tick is
// always called from a single goroutine; the caller is responsible for any
// locking around shared session state.
func StartCountdown(interval time.Duration, tick func() bool) *Countdown {
	c := &Countdown{
		ticker: time.NewTicker(interval),
		done:   make(chan struct{}),
	}
	go c.run(tick)
	return c
}

func (c *Countdown) run(tick func() bool) {
	for {
		select {
		case <-c.done:
			return
		case <-c.ticker.C:
			if tick() {
				c.Stop()
				return
			}
		}
	}
}

// Stop halts the countdown. Stop is idempotent and safe to call from the tick
// callback's goroutine or any other.
func (c *Countdown) Stop() {
	c.once.Do(func() {
		c.ticker.Stop()
		close(c.done)
	})
}
