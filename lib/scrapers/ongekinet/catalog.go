package ongekinet

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"platscore-backend/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/codes"
)

// CollectCatalog enumerates the authoritative chart list, one ranking
// search pass per difficulty tier.
func (c *Client) CollectCatalog(ctx context.Context, creds Credentials) ([]Chart, error) {
	ctx, span := tracer.Start(ctx, "client:CollectCatalog")
	defer span.End()

	var all []Chart
	for _, diffNum := range CatalogDiffNums {
		doc, err := c.FetchDocument(ctx, fmt.Sprintf(
			"ranking/search/?genre=99&scoreType=2&rankingType=99&diff=%s",
			diffNum,
		), creds)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to fetch catalog tier")
			return nil, err
		}

		all = append(all, parseCatalogTier(doc)...)

		// lunatic reuses card markup from the main ladder, its ambiguous
		// entries are already covered by the master pass
		if diffNum != "10" {
			tier := diffByNum[diffNum]
			var indexes []int
			for i, chart := range all {
				if chart.Title == AmbiguousTitle && chart.Diff == tier {
					indexes = append(indexes, i)
				}
			}
			RenameSingularity(indexes, c.singularity.Catalog, func(entryIdx int, newTitle string) {
				all[entryIdx].Title = newTitle
			})
		}
	}

	slog.InfoContext(ctx, "collected chart catalog", "charts", len(all))
	return all, nil
}

func parseCatalogTier(doc *goquery.Document) []Chart {
	var charts []Chart
	doc.Find(`div[class*="_score_back"]`).Each(func(_ int, card *goquery.Selection) {
		title := htmlutil.CleanText(card.Find(".music_label").Text())
		level := htmlutil.CleanText(card.Find(".score_level").Text())
		rawIdx := card.Find("input[name=idx]").AttrOr("value", "")
		diffNum := card.Find("input[name=diff]").AttrOr("value", "")

		diff, ok := diffByNum[diffNum]
		if !ok {
			slog.Warn("catalog card with unknown difficulty token", "title", title, "diff", diffNum)
			return
		}

		charts = append(charts, Chart{
			Title:   title,
			Level:   level,
			Diff:    diff,
			DiffNum: diffNum,
			Idx:     url.QueryEscape(rawIdx),
		})
	})
	return charts
}
