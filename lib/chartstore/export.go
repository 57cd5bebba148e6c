package chartstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
)

const exportPageSize = 1000

// SnapshotRow mirrors the charts table in the column naming the
// published JSON snapshot has always used.
type SnapshotRow struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Diff     string `json:"diff"`
	Level    string `json:"level"`
	TechFlag bool   `json:"tech_flag"`

	ChartConst *float64 `json:"chart_const"`
	Ps5Rating  *float64 `json:"ps_5_rating"`
	Ps4Rating  *float64 `json:"ps_4_rating"`
	Ps3Rating  *float64 `json:"ps_3_rating"`
	Ps2Rating  *float64 `json:"ps_2_rating"`
	Ps1Rating  *float64 `json:"ps_1_rating"`

	PsTheoryScore   *int64 `json:"ps_theory_score"`
	Ps5Tolerance    *int64 `json:"ps_5_tolerance"`
	Ps5MinScore     *int64 `json:"ps_5_min_score"`
	TsTheoryCounts  []int  `json:"ts_theory_counts"`
	Ps5TotalCount   *int64 `json:"ps_5_total_count"`
	Ps5RainbowCount *int64 `json:"ps_5_rainbow_count"`
	Ps5Count        *int64 `json:"ps_5_count"`
	Ps4Count        *int64 `json:"ps_4_count"`
	Ps3Count        *int64 `json:"ps_3_count"`
	Ps2Count        *int64 `json:"ps_2_count"`
	Ps1Count        *int64 `json:"ps_1_count"`
	PsTheoryCount   *int64 `json:"ps_theory_count"`
}

// ExportAll pages the whole table out for the static snapshot.
func (s Store) ExportAll(ctx context.Context) ([]SnapshotRow, error) {
	ctx, span := tracer.Start(ctx, "ExportAll")
	defer span.End()

	var all []SnapshotRow
	for offset := 0; ; offset += exportPageSize {
		page, err := s.exportPage(ctx, offset)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		all = append(all, page...)
		if len(page) < exportPageSize {
			break
		}
	}

	slog.InfoContext(ctx, "exported charts table", "rows", len(all))
	return all, nil
}

func (s Store) exportPage(ctx context.Context, offset int) ([]SnapshotRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		id, title, diff, level, tech_flag,
		chart_const, ps_5_rating, ps_4_rating, ps_3_rating, ps_2_rating, ps_1_rating,
		ps_theory_score, ps_5_tolerance, ps_5_min_score, ts_theory_counts,
		ps_5_total_count, ps_5_rainbow_count, ps_5_count, ps_4_count,
		ps_3_count, ps_2_count, ps_1_count, ps_theory_count
		FROM charts ORDER BY id LIMIT ? OFFSET ?`,
		exportPageSize, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var page []SnapshotRow
	for rows.Next() {
		var row SnapshotRow
		var techFlag int64
		var theoryCounts sql.NullString
		err := rows.Scan(
			&row.ID, &row.Title, &row.Diff, &row.Level, &techFlag,
			&row.ChartConst, &row.Ps5Rating, &row.Ps4Rating, &row.Ps3Rating,
			&row.Ps2Rating, &row.Ps1Rating,
			&row.PsTheoryScore, &row.Ps5Tolerance, &row.Ps5MinScore, &theoryCounts,
			&row.Ps5TotalCount, &row.Ps5RainbowCount, &row.Ps5Count, &row.Ps4Count,
			&row.Ps3Count, &row.Ps2Count, &row.Ps1Count, &row.PsTheoryCount,
		)
		if err != nil {
			return nil, err
		}
		row.TechFlag = techFlag != 0
		if theoryCounts.Valid {
			err := json.Unmarshal([]byte(theoryCounts.String), &row.TsTheoryCounts)
			if err != nil {
				slog.WarnContext(ctx, "failed to unmarshal stored theory counts", "id", row.ID, "err", err)
			}
		}
		page = append(page, row)
	}
	return page, rows.Err()
}
