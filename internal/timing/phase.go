// Package timing implements the Timing Manager's credit engine: the
// per-phase state tracked only by the Timing Manager, the
// pluggable credit-issuing strategies, and the phase state machine that
// drives warmup then profiling to completion or cancellation.
package timing

import (
	"errors"
	"sync/atomic"
	"time"
)

var errExactlyOne = errors.New("timing: exactly one of TotalExpectedRequests / ExpectedDurationSec must be set")

// Phase names a credit phase (re-exported from models for convenience of
// callers that only import this package).
type Phase string

const (
	PhaseWarmup    Phase = "warmup"
	PhaseProfiling Phase = "profiling"
)

// Config is one phase's configuration. Exactly one of
// TotalExpectedRequests / ExpectedDurationSec is set.
type Config struct {
	TotalExpectedRequests *int
	ExpectedDurationSec   *float64
}

// Validate enforces the exactly-one-of invariant.
func (c Config) Validate() error {
	hasCount := c.TotalExpectedRequests != nil
	hasDuration := c.ExpectedDurationSec != nil
	if hasCount == hasDuration {
		return errExactlyOne
	}
	return nil
}

// IsCountBounded reports whether this phase is bounded by request count.
func (c Config) IsCountBounded() bool { return c.TotalExpectedRequests != nil }

// Stats tracks one phase's mutable state. Only the Timing Manager mutates
// it, but from more than one goroutine: the send loop records sends while
// credit-return callbacks record completions, so every counter is atomic.
type Stats struct {
	StartNs     int64
	sent        int64
	completed   int64
	sentEndNs   int64
	endNs       int64
	sendingDone int32
}

// Sent returns the number of credits sent so far.
func (s *Stats) Sent() int { return int(atomic.LoadInt64(&s.sent)) }

// Completed returns the number of credits returned so far.
func (s *Stats) Completed() int { return int(atomic.LoadInt64(&s.completed)) }

// InFlight is sent - completed.
func (s *Stats) InFlight() int { return s.Sent() - s.Completed() }

// RecordSend increments sent and returns the new count.
func (s *Stats) RecordSend() int { return int(atomic.AddInt64(&s.sent, 1)) }

// RecordCompletion increments completed and returns the new count.
func (s *Stats) RecordCompletion() int { return int(atomic.AddInt64(&s.completed, 1)) }

// MarkSendingDone records sent_end_ns and flips the sending-complete flag
func (s *Stats) MarkSendingDone(nowNs int64) {
	atomic.StoreInt64(&s.sentEndNs, nowNs)
	atomic.StoreInt32(&s.sendingDone, 1)
}

// SendingDone reports whether the send loop has exited.
func (s *Stats) SendingDone() bool { return atomic.LoadInt32(&s.sendingDone) == 1 }

// MarkEnd records end_ns, the phase's final timestamp.
func (s *Stats) MarkEnd(nowNs int64) { atomic.StoreInt64(&s.endNs, nowNs) }

// EndNs returns the recorded end timestamp, or 0 if the phase has not ended.
func (s *Stats) EndNs() int64 { return atomic.LoadInt64(&s.endNs) }

// SentEndNs returns the recorded sending-complete timestamp.
func (s *Stats) SentEndNs() int64 { return atomic.LoadInt64(&s.sentEndNs) }

// ShouldSend implements the should_send rule: for a duration-bounded phase, keep
// sending while elapsed wall-clock time hasn't exceeded the configured
// duration; for a count-bounded phase, keep sending while sent < total.
//
// Wall-clock (time.Now().UnixNano()) is used consistently for both StartNs
// capture and the running check, since durations in Config are specified in
// seconds of wall-clock time.
func (s *Stats) ShouldSend(cfg Config, nowNs int64, cancelled bool) bool {
	if cancelled {
		return false
	}
	if cfg.IsCountBounded() {
		return s.Sent() < *cfg.TotalExpectedRequests
	}
	elapsedSec := float64(nowNs-s.StartNs) / float64(time.Second)
	return elapsedSec <= *cfg.ExpectedDurationSec
}

// IsComplete reports whether sending has stopped and nothing
// remains in flight.
func (s *Stats) IsComplete() bool {
	return s.SendingDone() && s.InFlight() == 0
}
