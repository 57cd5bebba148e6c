package ongekinet

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"platscore-backend/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/codes"
)

// event cards carry this phrase only while describing a technical
// challenge period
const techChallengeMarker = "テクニカルチャレンジ開催期間"

// pause between event detail fetches, the event pages sit behind a
// stricter rate limit than the ranking search
const eventFetchPause = time.Second

// CollectChallengeFlags walks past and current technical-challenge
// event pages and returns every chart they list.
func (c *Client) CollectChallengeFlags(ctx context.Context, creds Credentials) ([]FlaggedChart, error) {
	ctx, span := tracer.Start(ctx, "client:CollectChallengeFlags")
	defer span.End()

	var flagged []FlaggedChart

	pastIdx, err := c.fetchEventIndexes(ctx, creds, "record/eventlog/")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list past events")
		return nil, err
	}
	for _, idx := range pastIdx {
		slog.InfoContext(ctx, "fetching past event charts", "idx", idx)
		charts, err := c.fetchEventCharts(ctx, creds, fmt.Sprintf("record/eventlogTech/?idx=%s", idx))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to fetch past event page")
			return nil, err
		}
		flagged = append(flagged, charts...)
		time.Sleep(eventFetchPause)
	}

	currentIdx, err := c.fetchEventIndexes(ctx, creds, "event/")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list current events")
		return nil, err
	}
	for _, idx := range currentIdx {
		slog.InfoContext(ctx, "fetching current event charts", "idx", idx)
		charts, err := c.fetchEventCharts(ctx, creds, fmt.Sprintf("event/techChallenge/?idx=%s", idx))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to fetch current event page")
			return nil, err
		}
		flagged = append(flagged, charts...)
		time.Sleep(eventFetchPause)
	}

	slog.InfoContext(ctx, "collected challenge flags", "charts", len(flagged))
	return flagged, nil
}

func (c *Client) fetchEventIndexes(ctx context.Context, creds Credentials, path string) ([]string, error) {
	doc, err := c.FetchDocument(ctx, path, creds)
	if err != nil {
		return nil, err
	}
	return parseEventIndexes(doc), nil
}

func parseEventIndexes(doc *goquery.Document) []string {
	var indexes []string
	doc.Find("div.basic_btn.event_back.m_15.f_0").Each(func(_ int, card *goquery.Selection) {
		form := card.Find("form")
		if len(form.Nodes) == 0 {
			return
		}
		if !strings.Contains(card.Text(), techChallengeMarker) {
			return
		}
		idx := form.Find("input[name=idx]").AttrOr("value", "")
		if idx != "" {
			indexes = append(indexes, idx)
		}
	})
	return indexes
}

func (c *Client) fetchEventCharts(ctx context.Context, creds Credentials, path string) ([]FlaggedChart, error) {
	doc, err := c.FetchDocument(ctx, path, creds)
	if err != nil {
		return nil, err
	}

	charts := parseEventCharts(doc)

	// event pages mix the whole ladder into one list, so the rename
	// scope is the page, not a tier
	var indexes []int
	for i, chart := range charts {
		if chart.Title == AmbiguousTitle {
			indexes = append(indexes, i)
		}
	}
	RenameSingularity(indexes, c.singularity.Events, func(entryIdx int, newTitle string) {
		charts[entryIdx].Title = newTitle
	})

	for _, chart := range charts {
		slog.InfoContext(ctx, "challenge chart", "title", chart.Title, "diff", chart.Diff, "level", chart.Level)
	}
	return charts, nil
}

// each card signals its difficulty through one of five style classes
var eventCardStyles = []struct {
	class string
	diff  Difficulty
}{
	{"basic_score_back", DiffBasic},
	{"advanced_score_back", DiffAdvanced},
	{"expert_score_back", DiffExpert},
	{"master_score_back", DiffMaster},
	{"lunatic_score_back", DiffLunatic},
}

func parseEventCharts(doc *goquery.Document) []FlaggedChart {
	var charts []FlaggedChart
	doc.Find("div.basic_btn").Each(func(_ int, card *goquery.Selection) {
		var diff Difficulty
		for _, style := range eventCardStyles {
			if card.HasClass(style.class) {
				diff = style.diff
				break
			}
		}
		if diff == "" {
			return
		}

		title := htmlutil.CleanText(card.Find(".music_label").Text())
		level := htmlutil.CleanText(card.Find(".score_level").Text())
		if title == "" || level == "" {
			return
		}

		charts = append(charts, FlaggedChart{
			Title: title,
			Level: level,
			Diff:  diff,
		})
	})
	return charts
}
