// Package scorenet pulls the community-maintained chart constant table.
// no session needed, but the host fronts with cloudflare.
package scorenet

import (
	"bytes"
	"context"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"platscore-backend/lib/htmlutil"
	"platscore-backend/lib/scrapers/ongekinet"
	"platscore-backend/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/scorenet")

// ChartConstant is one row of the ratings feed plus the projected
// platinum ratings derived from it.
type ChartConstant struct {
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

type Client struct {
	Http *resty.Client

	tableUrl    string
	singularity []string
}

type ClientOptions struct {
	// the full URL of the constants table page
	TableUrl string
	// expected discovery order for the ambiguous title, page-global
	Singularity []string
}

func NewClient(opts ClientOptions) *Client {
	client := resty.New()
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	telemetry.InstrumentResty(client, "scrapers/scorenet/http")

	return &Client{
		Http:        client,
		tableUrl:    opts.TableUrl,
		singularity: opts.Singularity,
	}
}

// CollectConstants fetches the ratings table and derives the five
// projected platinum ratings per chart.
func (c *Client) CollectConstants(ctx context.Context) ([]ChartConstant, error) {
	ctx, span := tracer.Start(ctx, "client:CollectConstants")
	defer span.End()

	res, err := c.Http.R().
		SetContext(ctx).
		Get(c.tableUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch constants table")
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse constants table")
		return nil, err
	}

	constants := parseConstantsTable(doc)

	var indexes []int
	for i, record := range constants {
		if record.Title == ongekinet.AmbiguousTitle {
			indexes = append(indexes, i)
		}
	}
	ongekinet.RenameSingularity(indexes, c.singularity, func(entryIdx int, newTitle string) {
		constants[entryIdx].Title = newTitle
		slog.InfoContext(ctx, "renamed ambiguous constants row",
			"index", entryIdx,
			"title", newTitle,
			"chart_const", constants[entryIdx].ChartConst,
		)
	})

	slog.InfoContext(ctx, "collected chart constants", "charts", len(constants))
	return constants, nil
}

func parseConstantsTable(doc *goquery.Document) []ChartConstant {
	var constants []ChartConstant
	doc.Find("table tbody tr").Each(func(_ int, tr *goquery.Selection) {
		tds := tr.Find("td")
		title := htmlutil.CleanText(tds.Eq(0).Find("span.sort-key").Text())
		diff := strings.ToUpper(htmlutil.CleanText(tds.Eq(1).Text()))
		level := htmlutil.CleanText(tds.Eq(2).Text())
		constText := htmlutil.CleanText(tds.Eq(4).Text())

		chartConst, err := strconv.ParseFloat(constText, 64)
		if err != nil || title == "" {
			slog.Debug("skipping unparsable constants row", "title", title, "const", constText)
			return
		}

		constants = append(constants, ChartConstant{
			Title:      title,
			Diff:       diff,
			Level:      level,
			ChartConst: chartConst,
			Ps5Rating:  ProjectedRating(chartConst, 5),
			Ps4Rating:  ProjectedRating(chartConst, 4),
			Ps3Rating:  ProjectedRating(chartConst, 3),
			Ps2Rating:  ProjectedRating(chartConst, 2),
			Ps1Rating:  ProjectedRating(chartConst, 1),
		})
	})
	return constants
}

// ProjectedRating computes the platinum rating a full n-star clear of a
// chart with this constant would grant: const² * n / 1000, rounded to
// three decimals.
func ProjectedRating(chartConst float64, stars int) float64 {
	return math.Round(chartConst*chartConst*float64(stars)) / 1000
}
