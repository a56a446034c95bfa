package telemetry

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	"go.opentelemetry.io/otel"
)

var meter = otel.Meter("go.perf_stats")
var rssGauge, _ = meter.Int64Gauge("rss_mb")
var cpuGauge, _ = meter.Float64Gauge("cpu_usage")
var goroutineGauge, _ = meter.Int64Gauge("goroutine_count")

// PerfStats is a point-in-time sample of this process.
type PerfStats struct {
	RssMB      int64
	CPUPercent float64
	Goroutines int
}

// SamplePerfStats reads the resident memory and cpu usage of the current process.
// Browser sessions live in child processes, so this mostly tracks our own heap and the
// cost of the buffered batch.
func SamplePerfStats(ctx context.Context) (PerfStats, error) {
	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return PerfStats{}, err
	}
	mem, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return PerfStats{}, err
	}
	cpu, err := proc.CPUPercentWithContext(ctx)
	if err != nil {
		return PerfStats{}, err
	}
	stats := PerfStats{
		RssMB:      int64(mem.RSS / 1_000_000),
		CPUPercent: cpu,
		Goroutines: runtime.NumGoroutine(),
	}
	rssGauge.Record(ctx, stats.RssMB)
	cpuGauge.Record(ctx, stats.CPUPercent)
	goroutineGauge.Record(ctx, int64(stats.Goroutines))
	return stats, nil
}

// InstrumentPerfStats samples perf stats every interval until ctx is done.
func InstrumentPerfStats(ctx context.Context, tel API, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				stats, err := SamplePerfStats(ctx)
				if err != nil {
					tel.ReportWarning("perf_stats.sample", err)
					continue
				}
				tel.ReportDebug("perf stats", stats.RssMB, stats.CPUPercent, stats.Goroutines)
			case <-ctx.Done():
				return
			}
		}
	}()
}
