package telemetry

import (
	"io"
	"math"
	"strconv"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/aiperf/aiperf/internal/aierrors"
	"github.com/aiperf/aiperf/internal/models"
)

// ParseDCGM parses one DCGM Prometheus text scrape into per-GPU
// TelemetryRecords. All metric values scraped at one
// poll share one timestampNs, giving the hierarchy one snapshot per poll.
func ParseDCGM(body io.Reader, dcgmURL string, timestampNs int64) ([]models.TelemetryRecord, error) {
	parser := expfmt.TextParser{}
	families, err := parser.TextToMetricFamilies(body)
	if err != nil {
		return nil, aierrors.Wrap(aierrors.KindTelemetry, "parse_dcgm", err)
	}

	// gpu_uuid is the primary identity; rows accumulate per UUID.
	records := make(map[string]*models.TelemetryRecord)
	var order []string

	for name, family := range families {
		spec, known := dcgmFields[name]
		if !known {
			continue
		}
		for _, metric := range family.GetMetric() {
			labels := labelMap(metric)

			uuid := labels["UUID"]
			if uuid == "" {
				continue
			}
			gpuIndex, err := strconv.Atoi(labels["gpu"])
			if err != nil {
				// Rows with a non-numeric gpu index are rejected.
				continue
			}

			value := sampleValue(metric)
			if math.IsNaN(value) || math.IsInf(value, 0) {
				// NaN/Inf values are dropped, leaving the field unset.
				continue
			}

			rec, ok := records[uuid]
			if !ok {
				rec = &models.TelemetryRecord{
					TimestampNs:  timestampNs,
					DCGMURL:      dcgmURL,
					GPUUUID:      uuid,
					GPUIndex:     gpuIndex,
					GPUModelName: labels["modelName"],
					Hostname:     labels["Hostname"],
					PCIBusID:     labels["pci_bus_id"],
					Device:       labels["device"],
				}
				records[uuid] = rec
				order = append(order, uuid)
			}
			spec.assign(&rec.Metrics, value*spec.scale)
		}
	}

	out := make([]models.TelemetryRecord, 0, len(order))
	for _, uuid := range order {
		out = append(out, *records[uuid])
	}
	return out, nil
}

func labelMap(m *dto.Metric) map[string]string {
	labels := make(map[string]string, len(m.GetLabel()))
	for _, l := range m.GetLabel() {
		labels[l.GetName()] = l.GetValue()
	}
	return labels
}

// sampleValue reads the value regardless of metric family type; DCGM
// exports gauges and counters.
func sampleValue(m *dto.Metric) float64 {
	switch {
	case m.GetGauge() != nil:
		return m.GetGauge().GetValue()
	case m.GetCounter() != nil:
		return m.GetCounter().GetValue()
	case m.GetUntyped() != nil:
		return m.GetUntyped().GetValue()
	default:
		return math.NaN()
	}
}
