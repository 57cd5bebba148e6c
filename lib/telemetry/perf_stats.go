package telemetry

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/process"
	"go.opentelemetry.io/otel"
)

var meter = otel.Meter("go.perf_stats")
var cpuGauge, _ = meter.Float64Gauge("cpu_usage")
var residentGauge, _ = meter.Int64Gauge("resident_mb")
var heapGauge, _ = meter.Int64Gauge("heap_allocated_mb")
var liveObjectsGauge, _ = meter.Int64Gauge("live_objects")
var goroutineGauge, _ = meter.Int64Gauge("goroutine_count")

const perfStatsInterval = time.Second * 30

// cpu sampling window per tick; the batch runs for hours so a coarse
// reading is plenty
const cpuSampleWindow = time.Minute

// InstrumentPerfStats publishes process CPU, resident memory and Go
// runtime gauges until the context is cancelled.
func InstrumentPerfStats(ctx context.Context) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		slog.WarnContext(ctx, "failed to open own process handle", "err", err)
	}

	go func() {
		ticker := time.NewTicker(perfStatsInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				samplePerfStats(ctx, proc, cpuSampleWindow)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func samplePerfStats(ctx context.Context, proc *process.Process, cpuWindow time.Duration) {
	cpuUsage, err := cpu.Percent(cpuWindow, false)
	if err != nil || len(cpuUsage) == 0 {
		slog.WarnContext(ctx, "failed to read cpu usage", "err", err)
	} else {
		cpuGauge.Record(ctx, cpuUsage[0])
	}

	if proc != nil {
		memInfo, err := proc.MemoryInfo()
		if err != nil {
			slog.WarnContext(ctx, "failed to read process memory", "err", err)
		} else {
			residentGauge.Record(ctx, int64(memInfo.RSS/1_000_000))
		}
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	heapGauge.Record(ctx, int64(memStats.Alloc/1_000_000))
	liveObjectsGauge.Record(ctx, int64(memStats.Mallocs)-int64(memStats.Frees))
	goroutineGauge.Record(ctx, int64(runtime.NumGoroutine()))
}
