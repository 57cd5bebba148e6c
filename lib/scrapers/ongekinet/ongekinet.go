// Package ongekinet scrapes the session-authenticated mobile site that
// publishes per-chart ranking data. read-only: every method's output
// depends solely on its input plus the credentials threaded through it.
package ongekinet

import (
	"bytes"
	"context"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"time"

	"platscore-backend/lib/telemetry"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("scrapers/ongekinet")

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/134.0.0.0 Safari/537.36"

type Difficulty string

const (
	DiffBasic    Difficulty = "BASIC"
	DiffAdvanced Difficulty = "ADVANCED"
	DiffExpert   Difficulty = "EXPERT"
	DiffMaster   Difficulty = "MASTER"
	DiffLunatic  Difficulty = "LUNATIC"
)

// the site encodes difficulty as a number in form fields and query
// strings, lunatic sits apart from the main ladder
var diffByNum = map[string]Difficulty{
	"0":  DiffBasic,
	"1":  DiffAdvanced,
	"2":  DiffExpert,
	"3":  DiffMaster,
	"10": DiffLunatic,
}

// CatalogDiffNums is the fixed tier order the catalog is walked in.
var CatalogDiffNums = []string{"0", "1", "2", "3", "10"}

// Credentials is the short-lived session bundle harvested after login.
// it is passed explicitly into every fetch, Login is the only writer.
type Credentials struct {
	Token          string
	UserID         string
	FriendCodeList string
}

func (c Credentials) cookieHeader() string {
	return fmt.Sprintf(
		"_t=%s; userId=%s; friendCodeList=%s",
		c.Token, c.UserID, c.FriendCodeList,
	)
}

// Chart is one playable difficulty variant of one song as listed by the
// catalog. Idx is the opaque, already URL-encoded page reference token.
type Chart struct {
	Title   string
	Level   string
	Diff    Difficulty
	DiffNum string
	Idx     string
}

// FlaggedChart marks a chart seen on a technical-challenge event page.
type FlaggedChart struct {
	Title string
	Level string
	Diff  Difficulty
}

type Client struct {
	BaseUrl *url.URL
	// ordinary page fetches run without a timeout, the site stalls for
	// minutes under load and a hangup here just wastes a retry
	Http *resty.Client
	// login navigation gets its own client with the 120s cap
	LoginHttp *resty.Client

	username    string
	password    string
	singularity SingularityOrders
}

type ClientOptions struct {
	BaseUrl     string
	Username    string
	Password    string
	Singularity SingularityOrders
}

func NewClient(opts ClientOptions) (*Client, error) {
	if opts.Username == "" || opts.Password == "" {
		return nil, fmt.Errorf("site credentials are not set")
	}

	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	client.SetHeader("User-Agent", userAgent)
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	telemetry.InstrumentResty(client, "scrapers/ongekinet/http")

	loginClient := resty.New()
	loginClient.SetBaseURL(opts.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	loginClient.SetCookieJar(jar)
	loginClient.SetHeader("User-Agent", userAgent)
	loginClient.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	loginClient.SetTimeout(time.Second * 120)
	telemetry.InstrumentResty(loginClient, "scrapers/ongekinet/login_http")

	return &Client{
		BaseUrl:     baseUrl,
		Http:        client,
		LoginHttp:   loginClient,
		username:    opts.Username,
		password:    opts.Password,
		singularity: opts.Singularity,
	}, nil
}

// FetchDocument issues one authenticated GET and parses the body.
// no retry logic lives here, callers decide what a failure means.
func (c *Client) FetchDocument(ctx context.Context, path string, creds Credentials) (*goquery.Document, error) {
	res, err := c.Http.R().
		SetContext(ctx).
		SetHeader("Cookie", creds.cookieHeader()).
		Get(path)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
}
