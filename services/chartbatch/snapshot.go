package chartbatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	"platscore-backend/lib/chartstore"
)

// WriteSnapshot pages the whole charts table out of storage and writes
// it as one JSON array for static consumption by the site. returns the
// number of rows written.
func WriteSnapshot(ctx context.Context, store chartstore.Store, path string) (int, error) {
	ctx, span := tracer.Start(ctx, "WriteSnapshot")
	defer span.End()

	rows, err := store.ExportAll(ctx)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	if rows == nil {
		rows = []chartstore.SnapshotRow{}
	}

	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	err = os.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	err = os.WriteFile(path, data, 0o644)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	slog.InfoContext(ctx, "wrote snapshot", "path", path, "rows", len(rows))
	return len(rows), nil
}
