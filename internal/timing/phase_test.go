package timing

import "testing"

func intPtr(n int) *int { return &n }
func f64Ptr(f float64) *float64 { return &f }

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"count only", Config{TotalExpectedRequests: intPtr(4)}, true},
		{"duration only", Config{ExpectedDurationSec: f64Ptr(1.5)}, true},
		{"both set", Config{TotalExpectedRequests: intPtr(4), ExpectedDurationSec: f64Ptr(1.5)}, false},
		{"neither set", Config{}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.cfg.Validate()
			if (err == nil) != c.ok {
				t.Fatalf("Validate() error = %v, want ok=%v", err, c.ok)
			}
		})
	}
}

func TestStatsShouldSendCountBounded(t *testing.T) {
	cfg := Config{TotalExpectedRequests: intPtr(2)}
	s := &Stats{}

	if !s.ShouldSend(cfg, 0, false) {
		t.Fatal("expected ShouldSend true with 0 sent of 2")
	}
	s.RecordSend()
	if !s.ShouldSend(cfg, 0, false) {
		t.Fatal("expected ShouldSend true with 1 sent of 2")
	}
	s.RecordSend()
	if s.ShouldSend(cfg, 0, false) {
		t.Fatal("expected ShouldSend false once sent == total")
	}
}

func TestStatsShouldSendCancelled(t *testing.T) {
	cfg := Config{TotalExpectedRequests: intPtr(10)}
	s := &Stats{}
	if s.ShouldSend(cfg, 0, true) {
		t.Fatal("cancelled run must never ShouldSend")
	}
}

func TestStatsInFlightAndComplete(t *testing.T) {
	s := &Stats{}
	s.RecordSend()
	s.RecordSend()
	if got := s.InFlight(); got != 2 {
		t.Fatalf("InFlight() = %d, want 2", got)
	}
	if s.IsComplete() {
		t.Fatal("phase with sends in flight and sending not done must not be complete")
	}
	s.MarkSendingDone(100)
	if s.IsComplete() {
		t.Fatal("phase with 2 in flight must not be complete even after sending stops")
	}
	s.RecordCompletion()
	s.RecordCompletion()
	if !s.IsComplete() {
		t.Fatal("phase with sending done and 0 in flight must be complete")
	}
}
