// Package chartstore persists the charts table: one row per chart
// identity carrying the union of every collected record kind.
package chartstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"platscore-backend/lib/chartid"
	"platscore-backend/lib/chartstore/db"

	"github.com/antzucaro/matchr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

var tracer = otel.Tracer("chartstore")

const (
	upsertBatchSize = 500
	updateBatchSize = 10
)

// Open connects to the charts database. a libsql:// or https:// URL
// goes to the remote store with the auth token attached, anything else
// is treated as a local sqlite file (":memory:" included).
func Open(dbUrl, authToken string) (*sql.DB, error) {
	if dbUrl == "" {
		return nil, fmt.Errorf("a database url was not specified")
	}

	if strings.HasPrefix(dbUrl, "libsql://") ||
		strings.HasPrefix(dbUrl, "https://") ||
		strings.HasPrefix(dbUrl, "http://") {
		dsn := dbUrl
		if authToken != "" {
			dsn = fmt.Sprintf("%s?authToken=%s", dbUrl, authToken)
		}
		database, err := sql.Open("libsql", dsn)
		if err != nil {
			return nil, err
		}
		_, err = database.Exec(db.Schema)
		if err != nil && !strings.Contains(err.Error(), "already exists") {
			return nil, err
		}
		return database, nil
	}

	if dbUrl != ":memory:" {
		_, statErr := os.Stat(dbUrl)
		if os.IsNotExist(statErr) {
			f, err := os.Create(dbUrl)
			if err != nil {
				return nil, err
			}
			f.Close()
		}
	}

	database, err := sql.Open("sqlite", dbUrl)
	if err != nil {
		return nil, err
	}
	// see this stackoverflow post for information on why the following
	// lines exist: https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
	database.SetMaxOpenConns(1)
	if dbUrl != ":memory:" {
		_, err = database.Exec("PRAGMA journal_mode=WAL")
		if err != nil {
			return nil, err
		}
	}
	_, err = database.Exec(db.Schema)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return nil, err
	}

	return database, nil
}

type Store struct {
	db *sql.DB
}

func NewStore(database *sql.DB) Store {
	return Store{db: database}
}

type ChartRecord struct {
	Title string
	Diff  string
	Level string
}

// UpsertCharts is the only path that may create rows. insert-or-replace
// by identity, batched.
func (s Store) UpsertCharts(ctx context.Context, records []ChartRecord) error {
	ctx, span := tracer.Start(ctx, "UpsertCharts")
	defer span.End()

	for start := 0; start < len(records); start += upsertBatchSize {
		batch := records[start:min(start+upsertBatchSize, len(records))]

		var sb strings.Builder
		sb.WriteString("INSERT INTO charts (id, title, diff, level) VALUES ")
		args := make([]any, 0, len(batch)*4)
		for i, record := range batch {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("(?, ?, ?, ?)")
			args = append(
				args,
				chartid.ChartID(record.Title, record.Diff, record.Level),
				record.Title,
				record.Diff,
				record.Level,
			)
		}
		sb.WriteString(` ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			diff = excluded.diff,
			level = excluded.level`)

		_, err := s.db.ExecContext(ctx, sb.String(), args...)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "upsert batch failed")
			return fmt.Errorf("upsert charts batch at %d: %w", start, err)
		}
	}

	slog.InfoContext(ctx, "upserted chart catalog", "rows", len(records))
	return nil
}

type TechFlagRecord struct {
	Title string
	Diff  string
	Level string
}

// UpdateTechFlags sets the challenge flag on rows that already exist.
// the flag is monotonic: it is never cleared, and unknown identities
// are skipped rather than created.
func (s Store) UpdateTechFlags(ctx context.Context, records []TechFlagRecord) error {
	ctx, span := tracer.Start(ctx, "UpdateTechFlags")
	defer span.End()

	updated := 0
	misses := s.newMissLogger()
	for _, record := range records {
		id := chartid.ChartID(record.Title, record.Diff, record.Level)

		var existing string
		err := s.db.QueryRowContext(ctx, "SELECT id FROM charts WHERE id = ?", id).Scan(&existing)
		if err == sql.ErrNoRows {
			misses.warn(ctx, id, record.Title)
			continue
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "tech flag existence check failed")
			return err
		}

		_, err = s.db.ExecContext(ctx, "UPDATE charts SET tech_flag = 1 WHERE id = ?", id)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "tech flag update failed")
			return err
		}
		updated++
	}

	slog.InfoContext(ctx, "updated tech flags", "rows", updated, "skipped", len(records)-updated)
	return nil
}

type ConstantRecord struct {
	Title      string
	Diff       string
	Level      string
	ChartConst float64
	Ps5Rating  float64
	Ps4Rating  float64
	Ps3Rating  float64
	Ps2Rating  float64
	Ps1Rating  float64
}

// UpdateConstants overwrites the constant columns of rows that already
// exist, batched existence checks, never inserts.
func (s Store) UpdateConstants(ctx context.Context, records []ConstantRecord) error {
	ctx, span := tracer.Start(ctx, "UpdateConstants")
	defer span.End()

	updated := 0
	misses := s.newMissLogger()
	for start := 0; start < len(records); start += updateBatchSize {
		batch := records[start:min(start+updateBatchSize, len(records))]

		ids := make([]string, len(batch))
		for i, record := range batch {
			ids[i] = chartid.ChartID(record.Title, record.Diff, record.Level)
		}
		exists, err := s.existingIDs(ctx, ids)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "constants existence check failed")
			return err
		}

		for i, record := range batch {
			if !exists[ids[i]] {
				misses.warn(ctx, ids[i], record.Title)
				continue
			}
			_, err := s.db.ExecContext(ctx, `UPDATE charts SET
				chart_const = ?,
				ps_5_rating = ?,
				ps_4_rating = ?,
				ps_3_rating = ?,
				ps_2_rating = ?,
				ps_1_rating = ?
				WHERE id = ?`,
				record.ChartConst,
				record.Ps5Rating,
				record.Ps4Rating,
				record.Ps3Rating,
				record.Ps2Rating,
				record.Ps1Rating,
				ids[i],
			)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "constants update failed")
				return err
			}
			updated++
		}
	}

	slog.InfoContext(ctx, "updated chart constants", "rows", updated, "skipped", len(records)-updated)
	return nil
}

type RankingRecord struct {
	Title string
	Diff  string
	Level string

	TsTheoryCounts  []int
	PsTheoryScore   int
	Ps5Tolerance    int
	Ps5MinScore     int
	Ps5RainbowCount int
	Ps5Count        int
	Ps4Count        int
	Ps3Count        int
	Ps2Count        int
	Ps1Count        int
	PsTheoryCount   int
}

// UpdateRankingStats overwrites the ranking columns of rows that
// already exist, batched existence checks, never inserts.
func (s Store) UpdateRankingStats(ctx context.Context, records []RankingRecord) error {
	ctx, span := tracer.Start(ctx, "UpdateRankingStats")
	defer span.End()

	updated := 0
	misses := s.newMissLogger()
	for start := 0; start < len(records); start += updateBatchSize {
		batch := records[start:min(start+updateBatchSize, len(records))]

		ids := make([]string, len(batch))
		for i, record := range batch {
			ids[i] = chartid.ChartID(record.Title, record.Diff, record.Level)
		}
		exists, err := s.existingIDs(ctx, ids)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "ranking existence check failed")
			return err
		}

		for i, record := range batch {
			if !exists[ids[i]] {
				misses.warn(ctx, ids[i], record.Title)
				continue
			}

			theoryCounts, err := json.Marshal(record.TsTheoryCounts)
			if err != nil {
				return err
			}
			_, err = s.db.ExecContext(ctx, `UPDATE charts SET
				ps_theory_score = ?,
				ps_5_tolerance = ?,
				ps_5_min_score = ?,
				ts_theory_counts = ?,
				ps_5_total_count = ?,
				ps_5_rainbow_count = ?,
				ps_5_count = ?,
				ps_4_count = ?,
				ps_3_count = ?,
				ps_2_count = ?,
				ps_1_count = ?,
				ps_theory_count = ?
				WHERE id = ?`,
				record.PsTheoryScore,
				record.Ps5Tolerance,
				record.Ps5MinScore,
				string(theoryCounts),
				record.Ps5RainbowCount+record.Ps5Count,
				record.Ps5RainbowCount,
				record.Ps5Count,
				record.Ps4Count,
				record.Ps3Count,
				record.Ps2Count,
				record.Ps1Count,
				record.PsTheoryCount,
				ids[i],
			)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "ranking update failed")
				return err
			}
			updated++
		}
	}

	slog.InfoContext(ctx, "updated ranking stats", "rows", updated, "skipped", len(records)-updated)
	return nil
}

func (s Store) existingIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	placeholders := strings.Repeat("?, ", len(ids))
	placeholders = placeholders[:len(placeholders)-2]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(
		ctx,
		fmt.Sprintf("SELECT id FROM charts WHERE id IN (%s)", placeholders),
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	exists := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		exists[id] = true
	}
	return exists, rows.Err()
}

// missLogger logs skipped identities together with the closest title
// already in storage, which is usually enough to spot a rename or a
// disambiguation mismatch at a glance. the title list is read once per
// reconciliation call, a first run against an empty remote store misses
// on every record and must not pay a table scan per miss.
type missLogger struct {
	store  Store
	titles []string
	loaded bool
}

func (s Store) newMissLogger() *missLogger {
	return &missLogger{store: s}
}

func (m *missLogger) warn(ctx context.Context, id, title string) {
	if !m.loaded {
		m.titles = m.store.knownTitles(ctx)
		m.loaded = true
	}

	slog.WarnContext(ctx, "chart not present in storage, skipping record",
		"id", id,
		"title", title,
		"closest_known_title", closestTitle(title, m.titles),
	)
}

func (s Store) knownTitles(ctx context.Context) []string {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT title FROM charts")
	if err != nil {
		return nil
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var title string
		if rows.Scan(&title) != nil {
			break
		}
		titles = append(titles, title)
	}
	return titles
}

func closestTitle(title string, known []string) string {
	suggestion := ""
	var similarity float64
	for _, k := range known {
		sim := matchr.JaroWinkler(title, k, false)
		if sim > similarity {
			similarity = sim
			suggestion = k
		}
	}
	return suggestion
}
