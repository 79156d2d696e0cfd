package telemetry

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/aiperf/aiperf/internal/models"
)

func TestNormalizeURLsDedup(t *testing.T) {
	got := NormalizeURLs("http://localhost:9401/metrics", []string{
		"http://n1:9401",
		"http://n1:9401/metrics",
		"http://n1:9401/",
	})
	want := []string{"http://localhost:9401/metrics", "http://n1:9401/metrics"}
	if len(got) != len(want) {
		t.Fatalf("got %d urls %v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("url[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

const dcgmSample = `# HELP DCGM_FI_DEV_POWER_USAGE Power draw (in W)
# TYPE DCGM_FI_DEV_POWER_USAGE gauge
DCGM_FI_DEV_POWER_USAGE{gpu="0",UUID="GPU-aaa",pci_bus_id="00000000:02:00.0",device="nvidia0",modelName="NVIDIA H100",Hostname="node1"} 22.5
DCGM_FI_DEV_POWER_USAGE{gpu="1",UUID="GPU-bbb",pci_bus_id="00000000:03:00.0",device="nvidia1",modelName="NVIDIA H100",Hostname="node1"} 30.0
DCGM_FI_DEV_POWER_USAGE{gpu="bad",UUID="GPU-ccc",pci_bus_id="00000000:04:00.0",device="nvidia2",modelName="NVIDIA H100",Hostname="node1"} 40.0
# HELP DCGM_FI_DEV_TOTAL_ENERGY_CONSUMPTION Total energy consumption since boot (in mJ)
# TYPE DCGM_FI_DEV_TOTAL_ENERGY_CONSUMPTION counter
DCGM_FI_DEV_TOTAL_ENERGY_CONSUMPTION{gpu="0",UUID="GPU-aaa",pci_bus_id="00000000:02:00.0",device="nvidia0",modelName="NVIDIA H100",Hostname="node1"} 955287014
# HELP DCGM_FI_DEV_FB_USED Framebuffer memory used (in MiB)
# TYPE DCGM_FI_DEV_FB_USED gauge
DCGM_FI_DEV_FB_USED{gpu="0",UUID="GPU-aaa",pci_bus_id="00000000:02:00.0",device="nvidia0",modelName="NVIDIA H100",Hostname="node1"} 1024
# HELP DCGM_FI_DEV_GPU_UTIL GPU utilization (in %)
# TYPE DCGM_FI_DEV_GPU_UTIL gauge
DCGM_FI_DEV_GPU_UTIL{gpu="0",UUID="GPU-aaa",pci_bus_id="00000000:02:00.0",device="nvidia0",modelName="NVIDIA H100",Hostname="node1"} NaN
`

func TestParseDCGM(t *testing.T) {
	records, err := ParseDCGM(strings.NewReader(dcgmSample), "http://node1:9401/metrics", 12345)
	if err != nil {
		t.Fatal(err)
	}

	byUUID := make(map[string]models.TelemetryRecord)
	for _, r := range records {
		byUUID[r.GPUUUID] = r
	}

	if _, ok := byUUID["GPU-ccc"]; ok {
		t.Error("row with non-numeric gpu index should be rejected")
	}
	if len(byUUID) != 2 {
		t.Fatalf("expected 2 GPUs, got %d", len(byUUID))
	}

	aaa := byUUID["GPU-aaa"]
	if aaa.TimestampNs != 12345 || aaa.GPUIndex != 0 || aaa.Hostname != "node1" || aaa.PCIBusID != "00000000:02:00.0" {
		t.Errorf("metadata = %+v", aaa)
	}
	if aaa.Metrics.PowerUsageW == nil || *aaa.Metrics.PowerUsageW != 22.5 {
		t.Errorf("power = %v, want 22.5 unscaled", aaa.Metrics.PowerUsageW)
	}
	if aaa.Metrics.EnergyConsumptionMJ == nil || math.Abs(*aaa.Metrics.EnergyConsumptionMJ-955287014e-9) > 1e-12 {
		t.Errorf("energy = %v, want mJ->MJ scaling", aaa.Metrics.EnergyConsumptionMJ)
	}
	if aaa.Metrics.MemoryUsedGB == nil || math.Abs(*aaa.Metrics.MemoryUsedGB-1024*1.048576e-3) > 1e-12 {
		t.Errorf("memory = %v, want MiB->GB scaling", aaa.Metrics.MemoryUsedGB)
	}
	if aaa.Metrics.GPUUtilization != nil {
		t.Errorf("NaN utilization should be dropped, got %v", *aaa.Metrics.GPUUtilization)
	}
}

func record(url, uuid string, tsNs int64, power float64) models.TelemetryRecord {
	return models.TelemetryRecord{
		TimestampNs:  tsNs,
		DCGMURL:      url,
		GPUUUID:      uuid,
		GPUIndex:     0,
		GPUModelName: "NVIDIA H100",
		Metrics:      models.TelemetryMetrics{PowerUsageW: &power},
	}
}

func TestHierarchyMetadataIdempotent(t *testing.T) {
	h := NewHierarchy()
	first := record("http://n1/metrics", "GPU-aaa", 1, 10)
	h.AddRecord(first)

	second := record("http://n1/metrics", "GPU-aaa", 2, 20)
	second.GPUModelName = "changed"
	h.AddRecord(second)

	meta, ok := h.Metadata("http://n1/metrics", "GPU-aaa")
	if !ok {
		t.Fatal("metadata missing")
	}
	if meta.ModelName != "NVIDIA H100" {
		t.Errorf("metadata overwritten by later record: %q", meta.ModelName)
	}

	values := h.MetricValues("http://n1/metrics", "GPU-aaa", "gpu_power_usage")
	if len(values) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(values))
	}
	if values[0].TimestampNs != 1 || values[1].TimestampNs != 2 {
		t.Errorf("timestamps = %v", values)
	}
}

func TestResultsProcessorSummarizePerTriple(t *testing.T) {
	p := NewResultsProcessor()
	p.AddRecord(record("http://n1/metrics", "GPU-aaa", 1, 10))
	p.AddRecord(record("http://n1/metrics", "GPU-aaa", 2, 30))
	p.AddRecord(record("http://n1/metrics", "GPU-bbb", 1, 50))

	rows, err := p.Summarize(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected one row per (url, gpu, metric) triple, got %d", len(rows))
	}
	if rows[0].Tag != "telemetry.http://n1/metrics.GPU-aaa.gpu_power_usage" {
		t.Errorf("tag = %q", rows[0].Tag)
	}
	if rows[0].Avg != 20 || rows[0].Count != 2 {
		t.Errorf("GPU-aaa summary = %+v", rows[0])
	}
	if rows[1].Avg != 50 || rows[1].Count != 1 {
		t.Errorf("GPU-bbb summary = %+v", rows[1])
	}
}
