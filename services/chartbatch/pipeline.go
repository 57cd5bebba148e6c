// Package chartbatch drives the full scrape-normalize-reconcile run:
// one login, four collection stages feeding the store, then the static
// snapshot for the presentation layer.
package chartbatch

import (
	"context"
	"fmt"
	"log/slog"

	"platscore-backend/lib/chartstore"
	"platscore-backend/lib/scrapers/ongekinet"
	"platscore-backend/lib/scrapers/scorenet"

	"github.com/jedib0t/go-pretty/v6/table"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/chartbatch")

type Options struct {
	Ongeki   *ongekinet.Client
	Scorenet *scorenet.Client
	Store    chartstore.Store
	// nil disables mail
	Notifier     *Notifier
	SnapshotPath string
}

type Pipeline struct {
	ongeki       *ongekinet.Client
	scorenet     *scorenet.Client
	store        chartstore.Store
	notifier     *Notifier
	snapshotPath string
}

func NewPipeline(opts Options) Pipeline {
	return Pipeline{
		ongeki:       opts.Ongeki,
		scorenet:     opts.Scorenet,
		store:        opts.Store,
		notifier:     opts.Notifier,
		snapshotPath: opts.SnapshotPath,
	}
}

type stageCount struct {
	stage   string
	records int
}

// Run executes the whole pipeline in stage order. a stage error aborts
// the run, the only internal recovery is the aggregator's re-login
// loop.
func (p Pipeline) Run(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()

	p.notifier.NotifyStart(ctx)
	err := p.run(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.notifier.NotifyError(ctx, err)
		return err
	}
	return nil
}

func (p Pipeline) run(ctx context.Context) error {
	creds, err := p.ongeki.Login(ctx)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	charts, err := p.ongeki.CollectCatalog(ctx, creds)
	if err != nil {
		return fmt.Errorf("collect catalog: %w", err)
	}
	err = p.store.UpsertCharts(ctx, chartRecords(charts))
	if err != nil {
		return fmt.Errorf("upsert catalog: %w", err)
	}

	flagged, err := p.ongeki.CollectChallengeFlags(ctx, creds)
	if err != nil {
		return fmt.Errorf("collect challenge flags: %w", err)
	}
	err = p.store.UpdateTechFlags(ctx, techFlagRecords(flagged))
	if err != nil {
		return fmt.Errorf("update challenge flags: %w", err)
	}

	constants, err := p.scorenet.CollectConstants(ctx)
	if err != nil {
		return fmt.Errorf("collect constants: %w", err)
	}
	err = p.store.UpdateConstants(ctx, constantRecords(constants))
	if err != nil {
		return fmt.Errorf("update constants: %w", err)
	}

	stats, err := p.collectRankingStats(ctx, creds, charts)
	if err != nil {
		return fmt.Errorf("collect ranking stats: %w", err)
	}
	err = p.store.UpdateRankingStats(ctx, rankingRecords(stats))
	if err != nil {
		return fmt.Errorf("update ranking stats: %w", err)
	}

	exported, err := WriteSnapshot(ctx, p.store, p.snapshotPath)
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	summary := renderSummary([]stageCount{
		{"catalog", len(charts)},
		{"challenge flags", len(flagged)},
		{"chart constants", len(constants)},
		{"ranking stats", len(stats)},
		{"snapshot rows", exported},
	})
	slog.InfoContext(ctx, "pipeline complete\n"+summary)
	p.notifier.NotifyCompletion(ctx, summary)
	return nil
}

func renderSummary(counts []stageCount) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"stage", "records"})
	for _, c := range counts {
		t.AppendRow(table.Row{c.stage, c.records})
	}
	return t.Render()
}

func chartRecords(charts []ongekinet.Chart) []chartstore.ChartRecord {
	records := make([]chartstore.ChartRecord, len(charts))
	for i, chart := range charts {
		records[i] = chartstore.ChartRecord{
			Title: chart.Title,
			Diff:  string(chart.Diff),
			Level: chart.Level,
		}
	}
	return records
}

func techFlagRecords(flagged []ongekinet.FlaggedChart) []chartstore.TechFlagRecord {
	records := make([]chartstore.TechFlagRecord, len(flagged))
	for i, chart := range flagged {
		records[i] = chartstore.TechFlagRecord{
			Title: chart.Title,
			Diff:  string(chart.Diff),
			Level: chart.Level,
		}
	}
	return records
}

func constantRecords(constants []scorenet.ChartConstant) []chartstore.ConstantRecord {
	records := make([]chartstore.ConstantRecord, len(constants))
	for i, c := range constants {
		records[i] = chartstore.ConstantRecord{
			Title:      c.Title,
			Diff:       c.Diff,
			Level:      c.Level,
			ChartConst: c.ChartConst,
			Ps5Rating:  c.Ps5Rating,
			Ps4Rating:  c.Ps4Rating,
			Ps3Rating:  c.Ps3Rating,
			Ps2Rating:  c.Ps2Rating,
			Ps1Rating:  c.Ps1Rating,
		}
	}
	return records
}

func rankingRecords(stats []ongekinet.RankingStats) []chartstore.RankingRecord {
	records := make([]chartstore.RankingRecord, len(stats))
	for i, s := range stats {
		records[i] = chartstore.RankingRecord{
			Title:           s.Title,
			Diff:            string(s.Diff),
			Level:           s.Level,
			TsTheoryCounts:  s.TsTheoryCounts,
			PsTheoryScore:   s.PsTheoryScore,
			Ps5Tolerance:    s.Ps5Tolerance,
			Ps5MinScore:     s.Ps5MinScore,
			Ps5RainbowCount: s.Ps5RainbowCount,
			Ps5Count:        s.Ps5Count,
			Ps4Count:        s.Ps4Count,
			Ps3Count:        s.Ps3Count,
			Ps2Count:        s.Ps2Count,
			Ps1Count:        s.Ps1Count,
			PsTheoryCount:   s.PsTheoryCount,
		}
	}
	return records
}
