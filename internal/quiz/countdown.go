package quiz

import (
	"sync"
	"time"
)

// TickPeriod is how often the countdown consumes a second of the budget.
const TickPeriod = time.Second

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type NewTickerFunc func(d time.Duration) Ticker

// NewTicker wraps time.NewTicker.
func NewTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }

func (t timeTicker) Stop() { t.t.Stop() }

// Countdown calls tick on every ticker period until tick returns false or Stop
// is called. It owns its ticker and goroutine.
type Countdown struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func startCountdown(newTicker NewTickerFunc, tick func(c *Countdown) bool) *Countdown {
	c := &Countdown{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	t := newTicker(TickPeriod)

	go func() {
		defer close(c.done)
		defer t.Stop()

		for {
			select {
			case <-c.stop:
				return
			case <-t.C():
				if !tick(c) {
					return
				}
			}
		}
	}()

	return c
}

// Stop is safe to call more than once and from within tick.
func (c *Countdown) Stop() {
	c.once.Do(func() { close(c.stop) })
}

// Done is closed once the countdown goroutine has exited.
func (c *Countdown) Done() <-chan struct{} {
	return c.done
}
