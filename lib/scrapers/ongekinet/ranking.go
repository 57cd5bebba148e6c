package ongekinet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"platscore-backend/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// ErrReloginRequired signals that a page came back in the logged-out
// shape. a theory score of zero is the only reliable tell, the site
// serves the login screen with a 200.
var ErrReloginRequired = errors.New("session expired, relogin required")

// counts below this on the technical ranking are placeholder glyphs,
// not player counts
const theoryCountFloor = 10

// RankingStats is the derived score-distribution record for one chart.
type RankingStats struct {
	Title string
	Level string
	Diff  Difficulty

	TsTheoryCounts  []int
	PsTheoryScore   int
	Ps5RainbowCount int
	Ps5Count        int
	Ps4Count        int
	Ps3Count        int
	Ps2Count        int
	Ps1Count        int
	PsTheoryCount   int
	Ps5Tolerance    int
	Ps5MinScore     int
}

type platinumRow struct {
	star    int
	rainbow bool
	score   int
}

// FetchRankingStats reads the two ranking-detail pages of one chart and
// derives its distribution stats. a failed page fetch degrades to an
// empty result for that page, which then trips the zero-score guard so
// nothing bogus is ever handed to the caller as valid.
func (c *Client) FetchRankingStats(ctx context.Context, creds Credentials, chart Chart) (RankingStats, error) {
	var tsTheoryCounts []int
	tsDoc, err := c.FetchDocument(ctx, fmt.Sprintf(
		"ranking/musicRankingDetail/?idx=%s&scoreType=2&rankingType=99&diff=%s",
		chart.Idx, chart.DiffNum,
	), creds)
	if err != nil {
		slog.WarnContext(ctx, "failed to fetch technical ranking page",
			"title", chart.Title, "diff", chart.Diff, "level", chart.Level, "err", err)
	} else {
		tsTheoryCounts = parseTheoryCounts(tsDoc)
	}

	var psTheoryScore int
	var rows []platinumRow
	psDoc, err := c.FetchDocument(ctx, fmt.Sprintf(
		"ranking/musicRankingDetail/?idx=%s&scoreType=5&rankingType=99&diff=%s",
		chart.Idx, chart.DiffNum,
	), creds)
	if err != nil {
		slog.WarnContext(ctx, "failed to fetch platinum ranking page",
			"title", chart.Title, "diff", chart.Diff, "level", chart.Level, "err", err)
	} else {
		psTheoryScore, rows = parsePlatinumDetail(psDoc, chart.Diff)
	}

	stats := RankingStats{
		Title:          chart.Title,
		Level:          chart.Level,
		Diff:           chart.Diff,
		TsTheoryCounts: tsTheoryCounts,
		PsTheoryScore:  psTheoryScore,
	}
	for _, row := range rows {
		switch {
		case row.rainbow && row.star == 5:
			stats.Ps5RainbowCount++
		case row.star == 5:
			stats.Ps5Count++
		case row.star == 4:
			stats.Ps4Count++
		case row.star == 3:
			stats.Ps3Count++
		case row.star == 2:
			stats.Ps2Count++
		case row.star == 1:
			stats.Ps1Count++
		}
		if psTheoryScore > 0 && row.score == psTheoryScore {
			stats.PsTheoryCount++
		}
	}
	if psTheoryScore > 0 {
		stats.Ps5Tolerance = psTheoryScore * 2 / 100
		stats.Ps5MinScore = psTheoryScore - stats.Ps5Tolerance
	}

	if psTheoryScore == 0 {
		slog.ErrorContext(ctx, "platinum theory score resolved to zero",
			"title", chart.Title, "diff", chart.Diff, "level", chart.Level)
		return RankingStats{}, ErrReloginRequired
	}

	// the detail ranking lists at most 100 rows, anything beyond that
	// means the row selector started matching something new
	total := stats.Ps5RainbowCount + stats.Ps5Count + stats.Ps4Count +
		stats.Ps3Count + stats.Ps2Count + stats.Ps1Count
	if total >= 101 {
		slog.WarnContext(ctx, "platinum bucket total exceeds page row cap",
			"title", chart.Title, "diff", chart.Diff, "level", chart.Level, "total", total)
	}

	return stats, nil
}

// parseTheoryCounts harvests every per-rank theoretical-score count off
// the technical ranking page, in document order.
func parseTheoryCounts(doc *goquery.Document) []int {
	var counts []int
	doc.Find("table.music_detail_ranking_inner_table table tbody tr").Each(func(_ int, tr *goquery.Selection) {
		block := tr.Find(".theory_block .theory_text_block")
		if len(block.Nodes) == 0 {
			return
		}
		counts = append(counts, htmlutil.Numbers(block.Text(), theoryCountFloor)...)
	})
	return counts
}

// parsePlatinumDetail reads the chart's own color-coded results block
// for the theory score and the detail table for per-player rows.
func parsePlatinumDetail(doc *goquery.Document, diff Difficulty) (int, []platinumRow) {
	own := doc.Find(fmt.Sprintf(
		"div.border_block.%s_score_back.m_15.p_5.t_l",
		strings.ToLower(string(diff)),
	))
	theory := htmlutil.TrailingNumber(own.Find(".platinum_score_text_block").Text())

	var rows []platinumRow
	doc.Find("table.music_ranking_inner_table table tbody tr").Each(func(_ int, tr *goquery.Selection) {
		row := platinumRow{score: -1}

		starRainbow := tr.Find(".platinum_score_star_r_block")
		starPlain := tr.Find(".platinum_score_star_block")
		if len(starRainbow.Nodes) > 0 {
			row.star = htmlutil.Digits(starRainbow.Text())
			row.rainbow = true
		} else if len(starPlain.Nodes) > 0 {
			row.star = htmlutil.Digits(starPlain.Text())
		}

		scoreBlock := tr.Find(".platinum_score_text_block")
		if len(scoreBlock.Nodes) > 0 {
			row.score = htmlutil.Digits(scoreBlock.Text())
		}

		rows = append(rows, row)
	})
	return theory, rows
}
