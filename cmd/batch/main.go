package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"platscore-backend/lib/chartstore"
	"platscore-backend/lib/configutil"
	"platscore-backend/lib/scrapers/ongekinet"
	"platscore-backend/lib/scrapers/scorenet"
	"platscore-backend/lib/telemetry"
	"platscore-backend/services/chartbatch"

	"github.com/jedib0t/go-pretty/v6/table"
	random "github.com/mazen160/go-random"
	"github.com/spf13/cobra"
)

type OngekiConfig struct {
	BaseUrl string `json:"base_url"`
}

type ScorenetConfig struct {
	TableUrl string `json:"table_url"`
}

type Config struct {
	Ongeki       OngekiConfig                `json:"ongeki"`
	Scorenet     ScorenetConfig              `json:"scorenet"`
	SnapshotPath string                      `json:"snapshot_path"`
	Singularity  ongekinet.SingularityOrders `json:"singularity"`
	Smtp         chartbatch.SmtpConfig       `json:"smtp"`
}

func readConfig() Config {
	config, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil && !os.IsNotExist(err) {
		fatal("failed to read config", err)
	}

	if config.Ongeki.BaseUrl == "" {
		config.Ongeki.BaseUrl = "https://ongeki-net.com/ongeki-mobile/"
	}
	if config.Scorenet.TableUrl == "" {
		config.Scorenet.TableUrl = "https://ongeki-score.net/music"
	}
	if config.SnapshotPath == "" {
		config.SnapshotPath = "data/data.json"
	}
	if len(config.Singularity.Catalog) == 0 &&
		len(config.Singularity.Events) == 0 &&
		len(config.Singularity.Constants) == 0 {
		config.Singularity = ongekinet.DefaultSingularityOrders()
	}
	return config
}

func fatal(message string, err error) {
	slog.Error(message, "err", err.Error())
	os.Exit(1)
}

func newOngekiClient(config Config) *ongekinet.Client {
	// missing site credentials are a startup failure, not something to
	// discover mid-run
	username, err := configutil.RequireEnv("ONGEKI_NET_USER")
	if err != nil {
		fatal("missing site credentials", err)
	}
	password, err := configutil.RequireEnv("ONGEKI_NET_PASS")
	if err != nil {
		fatal("missing site credentials", err)
	}

	client, err := ongekinet.NewClient(ongekinet.ClientOptions{
		BaseUrl:     config.Ongeki.BaseUrl,
		Username:    username,
		Password:    password,
		Singularity: config.Singularity,
	})
	if err != nil {
		fatal("failed to create site client", err)
	}
	return client
}

func openStore() chartstore.Store {
	dbUrl, err := configutil.RequireEnv("CHARTDB_URL")
	if err != nil {
		fatal("missing storage endpoint", err)
	}
	database, err := chartstore.Open(dbUrl, os.Getenv("CHARTDB_AUTH_TOKEN"))
	if err != nil {
		fatal("failed to open charts database", err)
	}
	return chartstore.NewStore(database)
}

func main() {
	ctx := context.Background()

	root := &cobra.Command{
		Use:   "batch",
		Short: "chart ranking data batch pipeline",
	}

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "run the full scrape, reconcile and snapshot pipeline",
		Run: func(cmd *cobra.Command, args []string) {
			config := readConfig()

			t, err := telemetry.SetupFromEnv(ctx, "batch")
			if err != nil {
				fatal("failed to setup telemetry", err)
			}
			defer t.Shutdown(context.Background())
			telemetry.InstrumentPerfStats(ctx)

			runID, err := random.String(8)
			if err != nil {
				fatal("failed to generate run id", err)
			}
			slog.Info("starting batch run", "run_id", runID)

			scorenetClient := scorenet.NewClient(scorenet.ClientOptions{
				TableUrl:    config.Scorenet.TableUrl,
				Singularity: config.Singularity.Constants,
			})
			pipeline := chartbatch.NewPipeline(chartbatch.Options{
				Ongeki:       newOngekiClient(config),
				Scorenet:     scorenetClient,
				Store:        openStore(),
				Notifier:     chartbatch.NewNotifier(config.Smtp, os.Getenv("SMTP_PASSWORD"), runID),
				SnapshotPath: config.SnapshotPath,
			})
			err = pipeline.Run(ctx)
			if err != nil {
				fatal("batch run failed", err)
			}
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "snapshot",
		Short: "export the charts table to the snapshot file without scraping",
		Run: func(cmd *cobra.Command, args []string) {
			config := readConfig()

			t, err := telemetry.SetupFromEnv(ctx, "batch:snapshot")
			if err != nil {
				fatal("failed to setup telemetry", err)
			}
			defer t.Shutdown(context.Background())

			rows, err := chartbatch.WriteSnapshot(ctx, openStore(), config.SnapshotPath)
			if err != nil {
				fatal("snapshot export failed", err)
			}
			slog.Info("snapshot written", "rows", rows, "path", config.SnapshotPath)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "catalog",
		Short: "login and print the chart catalog, no persistence",
		Run: func(cmd *cobra.Command, args []string) {
			config := readConfig()

			t, err := telemetry.SetupFromEnv(ctx, "batch:catalog")
			if err != nil {
				fatal("failed to setup telemetry", err)
			}
			defer t.Shutdown(context.Background())

			client := newOngekiClient(config)
			creds, err := client.Login(ctx)
			if err != nil {
				fatal("login failed", err)
			}
			charts, err := client.CollectCatalog(ctx, creds)
			if err != nil {
				fatal("catalog collection failed", err)
			}

			out := table.NewWriter()
			out.SetOutputMirror(os.Stdout)
			out.AppendHeader(table.Row{"title", "diff", "level"})
			for _, chart := range charts {
				out.AppendRow(table.Row{chart.Title, chart.Diff, chart.Level})
			}
			out.Render()
			fmt.Printf("%d charts\n", len(charts))
		},
	})

	err := root.Execute()
	if err != nil {
		os.Exit(1)
	}
}
