package chartbatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"platscore-backend/lib/scrapers/ongekinet"

	"go.opentelemetry.io/otel/codes"
)

const (
	rankingBatchSize = 3
	rankingMaxRetry  = 50
	rankingPause     = time.Second
)

// the aggregator is a small state machine so the re-login heuristic
// stays visible instead of hiding inside exception plumbing
type aggregatorState int

const (
	stateRunning aggregatorState = iota
	stateAwaitingReauth
	stateDone
	stateFailed
)

// collectRankingStats derives the ranking record for every cataloged
// chart, index-aligned with the input. any error inside a batch moves
// the machine to AwaitingReauth: credentials are refreshed and
// processing resumes from the current cursor, never from zero.
func (p Pipeline) collectRankingStats(
	ctx context.Context,
	creds ongekinet.Credentials,
	charts []ongekinet.Chart,
) ([]ongekinet.RankingStats, error) {
	ctx, span := tracer.Start(ctx, "collectRankingStats")
	defer span.End()

	results := make([]ongekinet.RankingStats, 0, len(charts))
	lastIndex := 0
	retryCount := 0
	state := stateRunning
	var lastErr error

	for state != stateDone && state != stateFailed {
		switch state {
		case stateRunning:
			err := p.processRankingBatches(ctx, creds, charts, &lastIndex, &results)
			if err == nil {
				state = stateDone
				break
			}
			lastErr = err
			retryCount++
			if retryCount > rankingMaxRetry {
				state = stateFailed
				break
			}
			slog.WarnContext(ctx, "ranking batch failed, re-authenticating",
				"retry", retryCount,
				"max_retry", rankingMaxRetry,
				"last_index", lastIndex,
				"err", err,
			)
			state = stateAwaitingReauth

		case stateAwaitingReauth:
			newCreds, err := p.ongeki.Login(ctx)
			if err != nil {
				// a failing login is an auth failure, not a transient
				// page problem: abort rather than burn retries
				span.RecordError(err)
				span.SetStatus(codes.Error, "re-login failed")
				return nil, err
			}
			creds = newCreds
			state = stateRunning
		}
	}

	if state == stateFailed {
		err := fmt.Errorf(
			"ranking aggregation gave up after %d retries at index %d: %w",
			rankingMaxRetry, lastIndex, lastErr,
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	slog.InfoContext(ctx, "collected ranking stats", "charts", len(results))
	return results, nil
}

func (p Pipeline) processRankingBatches(
	ctx context.Context,
	creds ongekinet.Credentials,
	charts []ongekinet.Chart,
	lastIndex *int,
	results *[]ongekinet.RankingStats,
) error {
	inputOrder := map[string]int{}
	for i, chart := range charts {
		inputOrder[chartKey(chart.Title, chart.Level, chart.Diff)] = i
	}

	for *lastIndex < len(charts) {
		batch := charts[*lastIndex:min(*lastIndex+rankingBatchSize, len(charts))]

		batchResults := make([]ongekinet.RankingStats, len(batch))
		batchErrs := make([]error, len(batch))
		var wg sync.WaitGroup
		for i, chart := range batch {
			wg.Add(1)
			go func(i int, chart ongekinet.Chart) {
				defer wg.Done()
				batchResults[i], batchErrs[i] = p.ongeki.FetchRankingStats(ctx, creds, chart)
			}(i, chart)
		}
		wg.Wait()

		if err := errors.Join(batchErrs...); err != nil {
			return err
		}

		// goroutines complete in arbitrary order, so order the batch by
		// chart identity against the caller's list rather than trusting
		// slot position
		sort.Slice(batchResults, func(a, b int) bool {
			ka := chartKey(batchResults[a].Title, batchResults[a].Level, batchResults[a].Diff)
			kb := chartKey(batchResults[b].Title, batchResults[b].Level, batchResults[b].Diff)
			return inputOrder[ka] < inputOrder[kb]
		})

		for i, stats := range batchResults {
			slog.InfoContext(ctx, "ranking stats",
				"n", *lastIndex+i+1,
				"title", stats.Title,
				"diff", stats.Diff,
				"level", stats.Level,
				"ts_theory_counts", stats.TsTheoryCounts,
				"ps_theory_score", stats.PsTheoryScore,
				"ps_theory_count", stats.PsTheoryCount,
			)
		}

		*results = append(*results, batchResults...)
		*lastIndex += len(batch)
		// the pause separates batches, nothing follows the last one
		if *lastIndex < len(charts) {
			time.Sleep(rankingPause)
		}
	}
	return nil
}

func chartKey(title, level string, diff ongekinet.Difficulty) string {
	return title + "\x00" + level + "\x00" + string(diff)
}
