package recordsmgr

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiperf/aiperf/internal/aierrors"
	"github.com/aiperf/aiperf/internal/comms"
	"github.com/aiperf/aiperf/internal/comms/zmq"
	"github.com/aiperf/aiperf/internal/messages"
	"github.com/aiperf/aiperf/internal/models"
)

// ProcessingStats counts records seen and errored, tracked per worker and
// globally.
type ProcessingStats struct {
	Processed int
	Errors    int
}

// TelemetryProcessor is the telemetry-side results processor; the Manager
// forwards TelemetryRecordsMessages to it and includes its summary rows in
// the final results.
type TelemetryProcessor interface {
	AddRecord(rec models.TelemetryRecord)
	Summarize(ctx context.Context) ([]messages.MetricResult, error)
}

// Manager is the Records Manager service.
type Manager struct {
	*comms.Service
	logger zerolog.Logger

	publisher comms.Publisher
	primary   *PrimaryProcessor
	results   []ResultsProcessor
	telemetry TelemetryProcessor

	mu                sync.Mutex
	workerStats       map[string]*ProcessingStats
	globalStats       ProcessingStats
	totalRecords      int
	finalRequestCount int
	startTimeNs       int64
	endTimeNs         int64
	durationSec       float64
	gracePeriodSec    float64
	timeBounded       bool
	wasCancelled      bool
	summarized        bool
	errorCounts       map[aierrors.ErrorDetails]int
}

// New builds the Records Manager. primary is always included in results;
// telemetry may be nil when GPU telemetry is disabled.
func New(serviceID string, logger zerolog.Logger, pull *zmq.PullWorker, subscriber *zmq.Subscriber, publisher comms.Publisher, primary *PrimaryProcessor, telemetry TelemetryProcessor, gracePeriodSec float64, heartbeatInterval time.Duration) (*Manager, error) {
	m := &Manager{
		logger:         logger,
		publisher:      publisher,
		primary:        primary,
		results:        []ResultsProcessor{primary},
		telemetry:      telemetry,
		workerStats:    make(map[string]*ProcessingStats),
		gracePeriodSec: gracePeriodSec,
		errorCounts:    make(map[aierrors.ErrorDetails]int),
	}

	hooks := comms.Hooks{
		OnInit: func(ctx context.Context) error {
			pull.RegisterPullCallback(messages.TypeMetricRecords, func(msg messages.Message) {
				m.handleMetricRecords(ctx, msg)
			})
			pull.RegisterPullCallback(messages.TypeTelemetryRecords, func(msg messages.Message) {
				m.handleTelemetryRecords(msg)
			})
			if err := comms.WireCommands(ctx, subscriber, publisher, serviceID, "records_manager", logger, m.handleCommand); err != nil {
				return err
			}
			return subscriber.SubscribeAll(map[string]zmq.Callback{
				messages.TypeCreditPhaseStart:    m.handlePhaseStart,
				messages.TypeCreditPhaseComplete: m.handlePhaseComplete,
			})
		},
	}

	m.Service = comms.NewService("records_manager", serviceID, logger, publisher, heartbeatInterval, hooks, nil)
	return m, nil
}

// handlePhaseStart records start_time_ns and the expected total.
func (m *Manager) handlePhaseStart(msg messages.Message) {
	start, ok := msg.(*messages.CreditPhaseStartMessage)
	if !ok || start.CreditPhase != models.PhaseProfiling {
		return
	}
	m.mu.Lock()
	m.startTimeNs = start.StartNs
	if start.Config.TotalExpectedRequests != nil {
		m.finalRequestCount = *start.Config.TotalExpectedRequests
	}
	if start.Config.ExpectedDurationSec != nil {
		m.durationSec = *start.Config.ExpectedDurationSec
		m.timeBounded = true
	}
	m.mu.Unlock()
	m.installFilter()
}

// handlePhaseComplete records the final request count and end time.
func (m *Manager) handlePhaseComplete(msg messages.Message) {
	complete, ok := msg.(*messages.CreditPhaseCompleteMessage)
	if !ok || complete.CreditPhase != models.PhaseProfiling {
		return
	}
	m.mu.Lock()
	m.finalRequestCount = complete.Completed
	m.endTimeNs = complete.EndNs
	reached := m.totalRecords >= m.finalRequestCount && m.finalRequestCount > 0
	m.mu.Unlock()

	if reached {
		m.allRecordsReceived(context.Background())
	}
}

func (m *Manager) installFilter() {
	m.mu.Lock()
	f := DurationFilter{
		StartTimeNs:    m.startTimeNs,
		DurationSec:    m.durationSec,
		GracePeriodSec: m.gracePeriodSec,
		Enabled:        m.timeBounded && m.gracePeriodSec > 0,
	}
	m.mu.Unlock()
	m.primary.SetDurationFilter(f)
}

// handleMetricRecords folds one MetricRecordsMessage into the accumulators
//. Warmup-phase messages are skipped entirely.
func (m *Manager) handleMetricRecords(ctx context.Context, msg messages.Message) {
	records, ok := msg.(*messages.MetricRecordsMessage)
	if !ok {
		return
	}
	if records.CreditPhase != models.PhaseProfiling {
		return
	}

	m.mu.Lock()
	ws, ok := m.workerStats[records.WorkerID]
	if !ok {
		ws = &ProcessingStats{}
		m.workerStats[records.WorkerID] = ws
	}
	ws.Processed += len(records.Results)
	m.globalStats.Processed += len(records.Results)
	if records.Error != nil {
		ws.Errors++
		m.globalStats.Errors++
		m.errorCounts[*records.Error]++
	}
	m.totalRecords += len(records.Results)
	total := m.totalRecords
	final := m.finalRequestCount
	m.mu.Unlock()

	for i, result := range records.Results {
		metadata := models.MetricRecordMetadata{WorkerID: records.WorkerID, CreditPhase: records.CreditPhase}
		if i < len(records.Metadata) {
			metadata = records.Metadata[i]
		}
		for _, rp := range m.results {
			rp.ProcessResult(result, metadata)
		}
	}

	if final > 0 && total >= final {
		m.allRecordsReceived(ctx)
	}
}

func (m *Manager) handleTelemetryRecords(msg messages.Message) {
	tel, ok := msg.(*messages.TelemetryRecordsMessage)
	if !ok || m.telemetry == nil {
		return
	}
	for _, rec := range tel.Records {
		m.telemetry.AddRecord(rec)
	}
}

// handleCommand serves PROCESS_RECORDS and PROFILE_CANCEL, both of which
// trigger summarization; the latter also flags cancellation.
func (m *Manager) handleCommand(ctx context.Context, cmd *messages.CommandMessage) error {
	switch cmd.Command {
	case messages.CommandProcessRecords:
		m.summarize(ctx)
	case messages.CommandProfileCancel:
		m.mu.Lock()
		m.wasCancelled = true
		m.mu.Unlock()
		m.summarize(ctx)
	case messages.CommandShutdown:
		m.TriggerShutdown()
	}
	return nil
}

// allRecordsReceived publishes AllRecordsReceivedMessage exactly once and
// triggers summarization.
func (m *Manager) allRecordsReceived(ctx context.Context) {
	m.mu.Lock()
	if m.summarized {
		m.mu.Unlock()
		return
	}
	total := m.totalRecords
	m.mu.Unlock()

	m.publisher.Publish(&messages.AllRecordsReceivedMessage{
		Envelope:     messages.Envelope{MessageType: messages.TypeAllRecordsReceived, RequestNs: time.Now().UnixNano()},
		TotalRecords: total,
	}, "")
	m.summarize(ctx)
}

// summarize runs every results processor concurrently, then publishes the
// ProfileResults.
func (m *Manager) summarize(ctx context.Context) {
	m.mu.Lock()
	if m.summarized {
		m.mu.Unlock()
		return
	}
	m.summarized = true
	m.mu.Unlock()

	type summary struct {
		rows []messages.MetricResult
		err  error
	}

	procs := make([]func(context.Context) ([]messages.MetricResult, error), 0, len(m.results)+1)
	for _, rp := range m.results {
		procs = append(procs, rp.Summarize)
	}
	if m.telemetry != nil {
		procs = append(procs, m.telemetry.Summarize)
	}

	summaries := make([]summary, len(procs))
	var wg sync.WaitGroup
	for i, p := range procs {
		wg.Add(1)
		go func(i int, p func(context.Context) ([]messages.MetricResult, error)) {
			defer wg.Done()
			rows, err := p(ctx)
			summaries[i] = summary{rows: rows, err: err}
		}(i, p)
	}
	wg.Wait()

	var rows []messages.MetricResult
	for _, s := range summaries {
		if s.err != nil {
			m.logger.Error().Err(s.err).Msg("recordsmgr: results processor summarize failed")
			continue
		}
		rows = append(rows, s.rows...)
	}

	m.mu.Lock()
	results := messages.ProfileResults{
		Records:      rows,
		Completed:    m.totalRecords,
		StartNs:      m.startTimeNs,
		EndNs:        m.endTimeNs,
		WasCancelled: m.wasCancelled,
		ErrorSummary: m.errorSummaryLocked(),
	}
	m.mu.Unlock()

	m.publisher.Publish(&messages.ProcessRecordsResultMessage{
		Envelope: messages.Envelope{MessageType: messages.TypeProcessRecordsResult, RequestNs: time.Now().UnixNano()},
		Results:  results,
	}, "")
}

func (m *Manager) errorSummaryLocked() []aierrors.ErrorDetailsCount {
	out := make([]aierrors.ErrorDetailsCount, 0, len(m.errorCounts))
	for details, count := range m.errorCounts {
		out = append(out, aierrors.ErrorDetailsCount{ErrorDetails: details, Count: count})
	}
	return out
}

// Stats returns a snapshot of the global processing stats.
func (m *Manager) Stats() ProcessingStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.globalStats
}
