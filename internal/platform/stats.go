// Package platform samples per-process resource usage for
// WorkerHealthMessage via github.com/shirou/gopsutil/v3: the process handle
// is opened once and reused for every sample.
package platform

import (
	"os"
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v3/process"
)

// Sampler reports the current process's CPU percent, RSS, and goroutine
// count. It keeps one *process.Process handle open for the life of the
// service rather than re-resolving the PID on every sample.
type Sampler struct {
	mu   sync.Mutex
	proc *process.Process
}

// NewSampler opens a handle to the current process.
func NewSampler() (*Sampler, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &Sampler{proc: p}, nil
}

// Stats is one point-in-time snapshot.
type Stats struct {
	CPUPercent    float64
	MemoryRSS     uint64
	NumGoroutines int
}

// Sample returns the current process stats. CPUPercent is gopsutil's
// process.CPUPercent: total CPU time over wall time since the process
// started, a lifetime average rather than the usage since the last call.
func (s *Sampler) Sample() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	cpuPct, _ := s.proc.CPUPercent()
	memInfo, _ := s.proc.MemoryInfo()

	st := Stats{
		CPUPercent:    cpuPct,
		NumGoroutines: runtime.NumGoroutine(),
	}
	if memInfo != nil {
		st.MemoryRSS = memInfo.RSS
	}
	return st
}
