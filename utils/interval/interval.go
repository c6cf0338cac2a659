package interval

import (
	"sync"
	"time"
)

// Interval implements a javascript like interval or timeout. Handlers
// are never invoked after Clear returns, unless one was already running.
type Interval struct {
	mx      sync.Mutex
	timer   *time.Timer
	ticker  *time.Ticker
	done    chan struct{}
	cleared bool
}

// Clear stops the interval. It is safe to call more than once and from
// within the handler.
func (i *Interval) Clear() {
	i.mx.Lock()
	defer i.mx.Unlock()

	if i.cleared {
		return
	}
	i.cleared = true

	if i.timer != nil {
		i.timer.Stop()
	}
	if i.ticker != nil {
		i.ticker.Stop()
		close(i.done)
	}
}

// Cleared returns true once the interval was cleared or the timeout fired
func (i *Interval) Cleared() bool {
	i.mx.Lock()
	defer i.mx.Unlock()
	return i.cleared
}

// SetInterval imitates the built-in javascript function
func SetInterval(handler func(i *Interval), timeout time.Duration) *Interval {
	i := &Interval{
		ticker: time.NewTicker(timeout),
		done:   make(chan struct{}),
	}

	go func() {
		for {
			select {
			case <-i.done:
				return

			case <-i.ticker.C:
				if i.Cleared() {
					return
				}
				handler(i)
			}
		}
	}()

	return i
}

// ClearInterval imitates the builtin javascript function
func ClearInterval(i *Interval) {
	if i != nil {
		i.Clear()
	}
}

// SetTimeout runs handler once after timeout unless cleared first
func SetTimeout(handler func(), timeout time.Duration) *Interval {
	i := &Interval{}

	i.mx.Lock()
	defer i.mx.Unlock()

	i.timer = time.AfterFunc(timeout, func() {
		i.mx.Lock()
		if i.cleared {
			i.mx.Unlock()
			return
		}
		i.cleared = true
		i.mx.Unlock()

		handler()
	})

	return i
}

// ClearTimeout imitates the builtin javascript function
func ClearTimeout(i *Interval) {
	if i != nil {
		i.Clear()
	}
}
