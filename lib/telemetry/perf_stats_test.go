package telemetry

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	"github.com/stretchr/testify/require"
)

func TestSamplePerfStats(t *testing.T) {
	cleanup := SetupForTesting(t, "test:telemetry")
	defer cleanup()

	proc, err := process.NewProcess(int32(os.Getpid()))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	samplePerfStats(ctx, proc, time.Millisecond*50)

	// a missing process handle degrades to a logged warning, the
	// runtime gauges still record
	samplePerfStats(ctx, nil, time.Millisecond*50)
}

func TestInstrumentPerfStatsStops(t *testing.T) {
	cleanup := SetupForTesting(t, "test:telemetry")
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	InstrumentPerfStats(ctx)
	cancel()
}
