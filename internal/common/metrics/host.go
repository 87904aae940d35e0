// Package metrics exports host resource gauges next to the judge metrics.
package metrics

import (
	"context"
	"time"

	"codejudge/pkg/utils/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"go.uber.org/zap"
)

const defaultHostInterval = 5 * time.Second

// HostSample is one reading of host resources.
type HostSample struct {
	CPUPercent    float64
	MemoryUsed    uint64
	MemoryPercent float64
	DiskUsed      uint64
}

// SampleFunc reads host resources.
type SampleFunc func(ctx context.Context) (HostSample, error)

// HostCollector periodically samples the host into gauges.
type HostCollector struct {
	cpuUsage      prometheus.Gauge
	memoryUsed    prometheus.Gauge
	memoryPercent prometheus.Gauge
	diskUsed      prometheus.Gauge
	interval      time.Duration
	sample        SampleFunc
}

// NewHostCollector registers host gauges on reg. A nil sample reads the
// local machine through gopsutil.
func NewHostCollector(reg prometheus.Registerer, interval time.Duration, sample SampleFunc) *HostCollector {
	if interval <= 0 {
		interval = defaultHostInterval
	}
	if sample == nil {
		sample = SampleHost
	}
	f := promauto.With(reg)
	return &HostCollector{
		cpuUsage: f.NewGauge(prometheus.GaugeOpts{
			Name: "system_cpu_usage_percent",
			Help: "Total CPU usage percentage across all cores",
		}),
		memoryUsed: f.NewGauge(prometheus.GaugeOpts{
			Name: "system_memory_used_bytes",
			Help: "Total used memory in bytes",
		}),
		memoryPercent: f.NewGauge(prometheus.GaugeOpts{
			Name: "system_memory_used_percent",
			Help: "Used memory as a percentage of total",
		}),
		diskUsed: f.NewGauge(prometheus.GaugeOpts{
			Name: "system_disk_used_bytes",
			Help: "Disk usage in bytes for the root filesystem",
		}),
		interval: interval,
		sample:   sample,
	}
}

// Run samples until ctx is done.
func (h *HostCollector) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		h.Collect(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Collect takes one sample. Failures are logged and leave the gauges unchanged.
func (h *HostCollector) Collect(ctx context.Context) {
	s, err := h.sample(ctx)
	if err != nil {
		logger.Debug(ctx, "host sample failed", zap.Error(err))
		return
	}
	h.cpuUsage.Set(s.CPUPercent)
	h.memoryUsed.Set(float64(s.MemoryUsed))
	h.memoryPercent.Set(s.MemoryPercent)
	h.diskUsed.Set(float64(s.DiskUsed))
}

// SampleHost reads CPU, memory and root disk usage of the local machine.
func SampleHost(ctx context.Context) (HostSample, error) {
	var s HostSample
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return s, err
	}
	if len(percents) > 0 {
		s.CPUPercent = percents[0]
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return s, err
	}
	s.MemoryUsed = vm.Used
	s.MemoryPercent = vm.UsedPercent
	du, err := disk.UsageWithContext(ctx, "/")
	if err != nil {
		return s, err
	}
	s.DiskUsed = du.Used
	return s, nil
}
