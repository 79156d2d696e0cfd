package telemetry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aiperf/aiperf/internal/messages"
	"github.com/aiperf/aiperf/internal/models"
	"github.com/aiperf/aiperf/internal/recordsmgr"
)

// GpuMetadata is the static identity of one GPU, stored once and shared by
// every snapshot rather than duplicated per sample.
type GpuMetadata struct {
	GPUIndex  int
	GPUUUID   string
	ModelName string
	PCIBusID  string
	Device    string
	Hostname  string
}

// GpuTelemetrySnapshot groups every metric value collected at one poll
// instant, eliminating timestamp duplication across metrics.
type GpuTelemetrySnapshot struct {
	TimestampNs int64
	Metrics     map[string]float64
}

// GpuTelemetryData is one GPU's metadata plus its time series.
type GpuTelemetryData struct {
	Metadata   GpuMetadata
	TimeSeries []GpuTelemetrySnapshot
}

// TimestampedValue is one (value, timestamp) observation of a metric.
type TimestampedValue struct {
	Value       float64
	TimestampNs int64
}

// Hierarchy stores telemetry as dcgm_url -> gpu_uuid -> GpuTelemetryData.
// It is owned by one results processor; no cross-process sharing.
type Hierarchy struct {
	mu   sync.Mutex
	data map[string]map[string]*GpuTelemetryData
}

// NewHierarchy builds an empty store.
func NewHierarchy() *Hierarchy {
	return &Hierarchy{data: make(map[string]map[string]*GpuTelemetryData)}
}

// AddRecord appends one record's snapshot. Metadata installation is
// idempotent over (dcgm_url, gpu_uuid): the first record for a GPU fixes its
// metadata; later records only extend the time series.
func (h *Hierarchy) AddRecord(rec models.TelemetryRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	byUUID, ok := h.data[rec.DCGMURL]
	if !ok {
		byUUID = make(map[string]*GpuTelemetryData)
		h.data[rec.DCGMURL] = byUUID
	}
	gpu, ok := byUUID[rec.GPUUUID]
	if !ok {
		gpu = &GpuTelemetryData{Metadata: GpuMetadata{
			GPUIndex:  rec.GPUIndex,
			GPUUUID:   rec.GPUUUID,
			ModelName: rec.GPUModelName,
			PCIBusID:  rec.PCIBusID,
			Device:    rec.Device,
			Hostname:  rec.Hostname,
		}}
		byUUID[rec.GPUUUID] = gpu
	}

	values := metricValues(rec.Metrics)
	if len(values) == 0 {
		return
	}
	gpu.TimeSeries = append(gpu.TimeSeries, GpuTelemetrySnapshot{
		TimestampNs: rec.TimestampNs,
		Metrics:     values,
	})
}

// MetricValues extracts one metric's (value, timestamp) pairs for one GPU
func (h *Hierarchy) MetricValues(dcgmURL, gpuUUID, name string) []TimestampedValue {
	h.mu.Lock()
	defer h.mu.Unlock()

	gpu, ok := h.data[dcgmURL][gpuUUID]
	if !ok {
		return nil
	}
	var out []TimestampedValue
	for _, snap := range gpu.TimeSeries {
		if v, ok := snap.Metrics[name]; ok {
			out = append(out, TimestampedValue{Value: v, TimestampNs: snap.TimestampNs})
		}
	}
	return out
}

// Metadata returns one GPU's stored metadata.
func (h *Hierarchy) Metadata(dcgmURL, gpuUUID string) (GpuMetadata, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	gpu, ok := h.data[dcgmURL][gpuUUID]
	if !ok {
		return GpuMetadata{}, false
	}
	return gpu.Metadata, true
}

// ResultsProcessor summarizes the hierarchy per (dcgm_url, gpu_uuid,
// metric_name) triple with hierarchically named result tags. It satisfies
// recordsmgr.TelemetryProcessor.
type ResultsProcessor struct {
	hierarchy *Hierarchy
}

// NewResultsProcessor builds a processor over its own hierarchy.
func NewResultsProcessor() *ResultsProcessor {
	return &ResultsProcessor{hierarchy: NewHierarchy()}
}

// AddRecord folds one TelemetryRecord into the hierarchy.
func (p *ResultsProcessor) AddRecord(rec models.TelemetryRecord) {
	p.hierarchy.AddRecord(rec)
}

// Hierarchy exposes the underlying store for tests and exporters.
func (p *ResultsProcessor) Hierarchy() *Hierarchy { return p.hierarchy }

// Summarize computes percentile summaries per (dcgm_url, gpu_uuid, metric)
// triple; result tags are named hierarchically.
func (p *ResultsProcessor) Summarize(_ context.Context) ([]messages.MetricResult, error) {
	p.hierarchy.mu.Lock()
	urls := make([]string, 0, len(p.hierarchy.data))
	for url := range p.hierarchy.data {
		urls = append(urls, url)
	}
	sort.Strings(urls)

	type triple struct {
		url, uuid, metric string
		values            []float64
	}
	var triples []triple
	for _, url := range urls {
		uuids := make([]string, 0, len(p.hierarchy.data[url]))
		for uuid := range p.hierarchy.data[url] {
			uuids = append(uuids, uuid)
		}
		sort.Strings(uuids)
		for _, uuid := range uuids {
			gpu := p.hierarchy.data[url][uuid]
			for _, name := range metricNames {
				var values []float64
				for _, snap := range gpu.TimeSeries {
					if v, ok := snap.Metrics[name]; ok {
						values = append(values, v)
					}
				}
				if len(values) > 0 {
					triples = append(triples, triple{url: url, uuid: uuid, metric: name, values: values})
				}
			}
		}
	}
	p.hierarchy.mu.Unlock()

	results := make([]messages.MetricResult, 0, len(triples))
	for _, t := range triples {
		tag := fmt.Sprintf("telemetry.%s.%s.%s", t.url, t.uuid, t.metric)
		results = append(results, recordsmgr.Summarize(tag, telemetryUnit(t.metric), t.values))
	}
	return results, nil
}

func telemetryUnit(metric string) string {
	switch metric {
	case "gpu_power_usage", "power_management_limit":
		return "W"
	case "energy_consumption":
		return "MJ"
	case "gpu_utilization", "memory_copy_utilization":
		return "%"
	case "gpu_memory_used", "gpu_memory_free", "gpu_memory_total":
		return "GB"
	case "sm_clock_frequency", "memory_clock_frequency":
		return "MHz"
	case "gpu_temperature", "memory_temperature":
		return "C"
	case "power_violation", "thermal_violation":
		return "us"
	default:
		return ""
	}
}
