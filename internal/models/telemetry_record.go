package models

// TelemetryMetrics is the ~15 optional float fields scraped from one DCGM
// snapshot. A nil pointer means "not reported by this exporter build",
// distinct from zero.
type TelemetryMetrics struct {
	PowerUsageW       *float64 `json:"power_usage_w,omitempty"`
	PowerManagementLimitW *float64 `json:"power_management_limit_w,omitempty"`
	EnergyConsumptionMJ *float64 `json:"energy_consumption_mj,omitempty"`
	GPUUtilization    *float64 `json:"gpu_utilization,omitempty"`
	MemoryCopyUtilization *float64 `json:"memory_copy_utilization,omitempty"`
	MemoryUsedGB      *float64 `json:"memory_used_gb,omitempty"`
	MemoryFreeGB      *float64 `json:"memory_free_gb,omitempty"`
	MemoryTotalGB     *float64 `json:"memory_total_gb,omitempty"`
	SMClockMHz        *float64 `json:"sm_clock_mhz,omitempty"`
	MemoryClockMHz    *float64 `json:"memory_clock_mhz,omitempty"`
	GPUTempC          *float64 `json:"gpu_temp_c,omitempty"`
	MemoryTempC       *float64 `json:"memory_temp_c,omitempty"`
	PowerViolations   *float64 `json:"power_violations,omitempty"`
	ThermalViolations *float64 `json:"thermal_violations,omitempty"`
	XIDErrors         *float64 `json:"xid_errors,omitempty"`
}

// TelemetryRecord is one GPU snapshot at one instant.
type TelemetryRecord struct {
	TimestampNs int64  `json:"timestamp_ns"`
	DCGMURL     string `json:"dcgm_url"`
	GPUUUID     string `json:"gpu_uuid"`
	GPUIndex    int    `json:"gpu_index"`
	GPUModelName string `json:"gpu_model_name,omitempty"`

	Hostname  string `json:"hostname,omitempty"`
	PCIBusID  string `json:"pci_bus_id,omitempty"`
	Device    string `json:"device,omitempty"`

	Metrics TelemetryMetrics `json:"metrics"`
}
