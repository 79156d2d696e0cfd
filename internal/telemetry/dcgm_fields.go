// Package telemetry implements GPU telemetry collection: the per-endpoint
// DCGM collector, the manager that probes and supervises collectors, and the
// results processor that stores and summarizes GPU metrics.
package telemetry

import "github.com/aiperf/aiperf/internal/models"

// fieldSpec maps one DCGM Prometheus metric name to its TelemetryMetrics
// field and the scaling applied on ingest. The name set is fixed.
type fieldSpec struct {
	scale  float64
	assign func(m *models.TelemetryMetrics, v float64)
}

const (
	scaleNone     = 1.0
	scaleMJToMJ   = 1e-9        // millijoules -> megajoules
	scaleMiBToGB  = 1.048576e-3 // MiB -> GB (decimal)
)

var dcgmFields = map[string]fieldSpec{
	"DCGM_FI_DEV_POWER_USAGE": {scaleNone, func(m *models.TelemetryMetrics, v float64) { m.PowerUsageW = &v }},
	"DCGM_FI_DEV_POWER_MGMT_LIMIT": {scaleNone, func(m *models.TelemetryMetrics, v float64) { m.PowerManagementLimitW = &v }},
	"DCGM_FI_DEV_TOTAL_ENERGY_CONSUMPTION": {scaleMJToMJ, func(m *models.TelemetryMetrics, v float64) { m.EnergyConsumptionMJ = &v }},
	"DCGM_FI_DEV_GPU_UTIL": {scaleNone, func(m *models.TelemetryMetrics, v float64) { m.GPUUtilization = &v }},
	"DCGM_FI_DEV_MEM_COPY_UTIL": {scaleNone, func(m *models.TelemetryMetrics, v float64) { m.MemoryCopyUtilization = &v }},
	"DCGM_FI_DEV_FB_USED": {scaleMiBToGB, func(m *models.TelemetryMetrics, v float64) { m.MemoryUsedGB = &v }},
	"DCGM_FI_DEV_FB_FREE": {scaleMiBToGB, func(m *models.TelemetryMetrics, v float64) { m.MemoryFreeGB = &v }},
	"DCGM_FI_DEV_FB_TOTAL": {scaleMiBToGB, func(m *models.TelemetryMetrics, v float64) { m.MemoryTotalGB = &v }},
	"DCGM_FI_DEV_SM_CLOCK": {scaleNone, func(m *models.TelemetryMetrics, v float64) { m.SMClockMHz = &v }},
	"DCGM_FI_DEV_MEM_CLOCK": {scaleNone, func(m *models.TelemetryMetrics, v float64) { m.MemoryClockMHz = &v }},
	"DCGM_FI_DEV_GPU_TEMP": {scaleNone, func(m *models.TelemetryMetrics, v float64) { m.GPUTempC = &v }},
	"DCGM_FI_DEV_MEMORY_TEMP": {scaleNone, func(m *models.TelemetryMetrics, v float64) { m.MemoryTempC = &v }},
	"DCGM_FI_DEV_POWER_VIOLATION": {scaleNone, func(m *models.TelemetryMetrics, v float64) { m.PowerViolations = &v }},
	"DCGM_FI_DEV_THERMAL_VIOLATION": {scaleNone, func(m *models.TelemetryMetrics, v float64) { m.ThermalViolations = &v }},
	"DCGM_FI_DEV_XID_ERRORS": {scaleNone, func(m *models.TelemetryMetrics, v float64) { m.XIDErrors = &v }},
}

// metricNames enumerates every TelemetryMetrics field for the hierarchy's
// name -> value flattening, in stable order.
var metricNames = []string{
	"gpu_power_usage",
	"power_management_limit",
	"energy_consumption",
	"gpu_utilization",
	"memory_copy_utilization",
	"gpu_memory_used",
	"gpu_memory_free",
	"gpu_memory_total",
	"sm_clock_frequency",
	"memory_clock_frequency",
	"gpu_temperature",
	"memory_temperature",
	"power_violation",
	"thermal_violation",
	"xid_errors",
}

// metricValues flattens a TelemetryMetrics into name -> value, skipping
// unset fields.
func metricValues(m models.TelemetryMetrics) map[string]float64 {
	out := make(map[string]float64)
	set := func(name string, p *float64) {
		if p != nil {
			out[name] = *p
		}
	}
	set("gpu_power_usage", m.PowerUsageW)
	set("power_management_limit", m.PowerManagementLimitW)
	set("energy_consumption", m.EnergyConsumptionMJ)
	set("gpu_utilization", m.GPUUtilization)
	set("memory_copy_utilization", m.MemoryCopyUtilization)
	set("gpu_memory_used", m.MemoryUsedGB)
	set("gpu_memory_free", m.MemoryFreeGB)
	set("gpu_memory_total", m.MemoryTotalGB)
	set("sm_clock_frequency", m.SMClockMHz)
	set("memory_clock_frequency", m.MemoryClockMHz)
	set("gpu_temperature", m.GPUTempC)
	set("memory_temperature", m.MemoryTempC)
	set("power_violation", m.PowerViolations)
	set("thermal_violation", m.ThermalViolations)
	set("xid_errors", m.XIDErrors)
	return out
}
