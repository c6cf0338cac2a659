package backoff

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

const (
	DefaultMin    = 500 * time.Millisecond
	DefaultFactor = 2
)

// Backoff is an exponential reconnection policy with a bounded number of
// attempts. The attempt counter is reset when a connection opens.
type Backoff struct {
	mx          sync.Mutex
	min         time.Duration
	max         time.Duration
	jitter      float64
	factor      float64
	attempts    int
	maxAttempts int
}

type Options struct {
	// Min is the delay before the first attempt
	Min time.Duration
	// Max caps the delay, zero leaves it uncapped
	Max    time.Duration
	Jitter float64
	Factor float64
	// MaxAttempts bounds consecutive attempts, zero means never retry
	MaxAttempts int
}

func NewBackoff(opts *Options) *Backoff {
	if opts == nil {
		opts = &Options{}
	}

	min := DefaultMin
	if opts.Min > 0 {
		min = opts.Min
	}

	var max time.Duration
	if opts.Max > 0 {
		max = opts.Max
		if max < min {
			max = min
		}
	}

	var factor float64 = DefaultFactor
	if opts.Factor > 1 {
		factor = opts.Factor
	}

	var jitter float64 = 0
	if opts.Jitter > 0 && opts.Jitter <= 1 {
		jitter = opts.Jitter
	}

	maxAttempts := 0
	if opts.MaxAttempts > 0 {
		maxAttempts = opts.MaxAttempts
	}

	return &Backoff{
		min:         min,
		max:         max,
		factor:      factor,
		jitter:      jitter,
		maxAttempts: maxAttempts,
	}
}

func (b *Backoff) Attempts() int {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.attempts
}

func (b *Backoff) MaxAttempts() int {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.maxAttempts
}

// Next consumes an attempt and returns the delay to wait before it. It
// returns false once the attempts are exhausted.
func (b *Backoff) Next() (time.Duration, bool) {
	b.mx.Lock()
	defer b.mx.Unlock()

	if b.attempts >= b.maxAttempts {
		return 0, false
	}

	b.attempts++
	return b.duration(b.attempts), true
}

// Duration returns the delay for the given attempt without consuming it
func (b *Backoff) Duration(attempt int) time.Duration {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.duration(attempt)
}

// duration is min * factor^(attempt-1)
func (b *Backoff) duration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	ms := float64(b.min.Milliseconds()) * math.Pow(b.factor, float64(attempt-1))

	if b.jitter > 0 {
		r := rand.Float64()
		deviation := math.Floor(r * b.jitter * ms)
		tmp := int(math.Floor(r*10)) & 1
		if tmp == 0 {
			ms = ms - deviation
		} else {
			ms = ms + deviation
		}
	}

	if b.max > 0 {
		ms = math.Min(ms, float64(b.max.Milliseconds()))
	}

	return time.Duration(ms) * time.Millisecond
}

func (b *Backoff) Reset() {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.attempts = 0
}
