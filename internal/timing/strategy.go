package timing

import (
	"context"
	"math/rand"
	"time"

	"golang.org/x/time/rate"
)

// Mode selects a request-rate sub-mode.
type Mode string

const (
	ModeFixedSchedule    Mode = "fixed_schedule"
	ModeConstant         Mode = "constant"
	ModePoisson          Mode = "poisson"
	ModeConcurrencyBurst Mode = "concurrency_burst"
)

// ScheduledCredit is one instant this strategy says to drop a credit,
// optionally tied to a specific conversation (fixed-schedule mode).
type ScheduledCredit struct {
	// DropNs is the scheduled send instant, or 0 for concurrency_burst
	//.
	DropNs         int64
	ConversationID string
}

// Strategy issues the next scheduled credit instant. Next blocks (sleeping
// to the next instant for rate-based strategies) until it is time to send,
// ctx is cancelled, or the strategy is exhausted (fixed-schedule only).
type Strategy interface {
	// Next returns the next credit to drop. ok is false when ctx is
	// cancelled, or when a fixed-schedule strategy has no more entries.
	Next(ctx context.Context) (ScheduledCredit, bool)
}

// ConcurrencyBurstStrategy sends as fast as concurrency admission allows;
// it never sleeps and never sets DropNs.
type ConcurrencyBurstStrategy struct{}

func (ConcurrencyBurstStrategy) Next(ctx context.Context) (ScheduledCredit, bool) {
	select {
	case <-ctx.Done():
		return ScheduledCredit{}, false
	default:
	}
	return ScheduledCredit{}, true
}

// ConstantRateStrategy sends at a fixed rate λ: next instant = last + 1/λ
//. A burst-1 token bucket spaces reservations exactly 1/λ apart; the
// reserved instant becomes credit_drop_ns so workers can measure how late
// the request actually left.
type ConstantRateStrategy struct {
	RequestsPerSec float64
	lim            *rate.Limiter
}

// NewConstantRateStrategy builds a strategy anchored at first use (the
// first Next returns immediately).
func NewConstantRateStrategy(requestsPerSec float64) *ConstantRateStrategy {
	return &ConstantRateStrategy{
		RequestsPerSec: requestsPerSec,
		lim:            rate.NewLimiter(rate.Limit(requestsPerSec), 1),
	}
}

func (c *ConstantRateStrategy) Next(ctx context.Context) (ScheduledCredit, bool) {
	r := c.lim.ReserveN(time.Now(), 1)
	target := time.Now().Add(r.Delay())

	if !sleepUntil(ctx, target) {
		r.Cancel()
		return ScheduledCredit{}, false
	}
	return ScheduledCredit{DropNs: target.UnixNano()}, true
}

// PoissonStrategy samples inter-arrival gaps ~ Exp(λ) using a seeded RNG for
// reproducible runs.
type PoissonStrategy struct {
	RequestsPerSec float64
	rng            *rand.Rand

	start time.Time
	next  time.Duration
	first bool
}

// NewPoissonStrategy builds a seeded Poisson arrival strategy. A nil seed
// uses a time-derived seed (non-reproducible).
func NewPoissonStrategy(requestsPerSec float64, seed *int64) *PoissonStrategy {
	var src rand.Source
	if seed != nil {
		src = rand.NewSource(*seed)
	} else {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &PoissonStrategy{RequestsPerSec: requestsPerSec, rng: rand.New(src)}
}

func (p *PoissonStrategy) Next(ctx context.Context) (ScheduledCredit, bool) {
	if p.start.IsZero() {
		p.start = time.Now()
		p.first = true
	}
	if p.first {
		p.first = false
	} else {
		gapSec := p.rng.ExpFloat64() / p.RequestsPerSec
		p.next += time.Duration(gapSec * float64(time.Second))
	}
	target := p.start.Add(p.next)
	if !sleepUntil(ctx, target) {
		return ScheduledCredit{}, false
	}
	return ScheduledCredit{DropNs: target.UnixNano()}, true
}

// FixedScheduleStrategy replays a dataset-provided list of
// (timestamp, conversation_id) tuples.
type FixedScheduleStrategy struct {
	Entries []ScheduledCredit // DropNs here is an absolute wall-clock ns instant
	idx     int
}

func NewFixedScheduleStrategy(entries []ScheduledCredit) *FixedScheduleStrategy {
	return &FixedScheduleStrategy{Entries: entries}
}

func (f *FixedScheduleStrategy) Next(ctx context.Context) (ScheduledCredit, bool) {
	if f.idx >= len(f.Entries) {
		return ScheduledCredit{}, false
	}
	entry := f.Entries[f.idx]
	f.idx++

	target := time.Unix(0, entry.DropNs)
	if !sleepUntil(ctx, target) {
		return ScheduledCredit{}, false
	}
	return entry, true
}

// sleepUntil blocks until target or ctx cancellation. It reports whether it
// returned because target was reached (true) vs cancellation (false).
func sleepUntil(ctx context.Context, target time.Time) bool {
	d := time.Until(target)
	if d <= 0 {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
