package chartbatch

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"platscore-backend/lib/chartstore"
	"platscore-backend/lib/telemetry"

	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) chartstore.Store {
	database, err := chartstore.Open(":memory:", "")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return chartstore.NewStore(database)
}

func TestWriteSnapshot(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:chartbatch")
	defer cleanup()

	store := testStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	path := filepath.Join(t.TempDir(), "out", "data.json")

	{
		// an empty table still writes a valid, empty JSON array
		rows, err := WriteSnapshot(ctx, store, path)
		require.NoError(t, err)
		require.Equal(t, 0, rows)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		var decoded []chartstore.SnapshotRow
		require.NoError(t, json.Unmarshal(data, &decoded))
		require.Len(t, decoded, 0)
	}

	{
		err := store.UpsertCharts(ctx, []chartstore.ChartRecord{
			{Title: "Titania", Diff: "MASTER", Level: "14+"},
			{Title: "Opfer", Diff: "LUNATIC", Level: "14+"},
		})
		require.NoError(t, err)

		rows, err := WriteSnapshot(ctx, store, path)
		require.NoError(t, err)
		require.Equal(t, 2, rows)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		var decoded []chartstore.SnapshotRow
		require.NoError(t, json.Unmarshal(data, &decoded))
		require.Len(t, decoded, 2)
	}
}

func TestNotifierDisabled(t *testing.T) {
	// no server configured means no notifier, and the nil notifier has
	// to be safe to call from the pipeline
	notifier := NewNotifier(SmtpConfig{}, "", "run-1")
	require.Nil(t, notifier)

	ctx := context.Background()
	notifier.NotifyStart(ctx)
	notifier.NotifyCompletion(ctx, "summary")
	notifier.NotifyError(ctx, context.Canceled)
}

func TestRenderSummary(t *testing.T) {
	summary := renderSummary([]stageCount{
		{"catalog", 1200},
		{"snapshot rows", 1200},
	})
	require.Contains(t, summary, "catalog")
	require.Contains(t, summary, "1200")
}
