// backend/cmd/cronjob/main.go

// Command cronjob synchronises the Play Your Life houses panel into the
// houses table. It is meant to be started periodically by an external
// scheduler.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/ps-vitor/pylife-houses/backend/internal/config"
	"github.com/ps-vitor/pylife-houses/backend/internal/repositories"
	"github.com/ps-vitor/pylife-houses/backend/internal/scraping/collectors/pylife"
	services "github.com/ps-vitor/pylife-houses/backend/internal/services/scraping"
	"github.com/ps-vitor/pylife-houses/backend/pkg/logger"
	"github.com/ps-vitor/pylife-houses/backend/pkg/postgres"
)

const (
	exitOK    = 0
	exitFatal = 1
	exitUsage = 2
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout))
}

// run executes one sync and returns the process exit code.
func run(ctx context.Context, args []string, out io.Writer) int {
	flags := flag.NewFlagSet("cronjob", flag.ContinueOnError)
	flags.SetOutput(out)
	forceUpdate := flags.Bool("force-update", false, "updates all house details")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if flags.NArg() > 0 {
		fmt.Fprintf(out, "unexpected arguments: %v\n", flags.Args())
		flags.Usage()
		return exitUsage
	}

	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Fprintf(out, "Could not load configuration: %v\n", err)
		return exitFatal
	}

	log := logger.New(logger.Options{
		Writer: out,
		Level:  logger.ParseLevel(cfg.App.LogLevel),
		JSON:   cfg.App.LogJSON,
	}).With(slog.String("run_id", uuid.NewString()))
	appLog := logger.Component(log, "cronjob")

	appLog.Info("Starting cronjob", slog.String("started_at", time.Now().Format("02/01/2006 15:04:05")))
	appLog.Info("Play Your Life cron script", slog.String("version", cfg.App.Version))
	appLog.Info("Connecting to database...")

	pool, err := postgres.NewClient(ctx, postgres.Config{DatabaseURL: cfg.Database.URI, MaxConns: 1})
	if err != nil {
		appLog.Error("Could not connect to database!", slog.Any("error", err))
		return exitFatal
	}
	defer pool.Close()

	repo, err := repositories.NewPostgresHouseRepository(pool)
	if err != nil {
		appLog.Error("Could not create house repository", slog.Any("error", err))
		return exitFatal
	}

	loc, err := cfg.App.Location()
	if err != nil {
		appLog.Error("Invalid timezone", slog.Any("error", err))
		return exitFatal
	}

	panel := cfg.Scraping.Pylife
	collector, err := pylife.NewCollector(pylife.Config{
		BaseURL:    panel.BaseURL,
		HousesPath: panel.Endpoint("houses", "/domy"),
		HousePath:  panel.Endpoint("house", "/domy/"),
		UserAgent:  panel.UserAgent,
		Referer:    panel.Referer,
		Timeout:    panel.Timeout,
		Location:   loc,
	}, logger.Component(log, "collector"))
	if err != nil {
		appLog.Error("Could not create panel collector", slog.Any("error", err))
		return exitFatal
	}

	appLog.Info("Downloading house data from user panel...", slog.String("url", collector.HousesURL()))

	svc := services.NewScraperService(collector, repo, logger.Component(log, "sync"))
	if _, err := svc.ScrapeAndStore(ctx, *forceUpdate); err != nil {
		appLog.Error("House sync failed!", slog.Any("error", err))
		return exitFatal
	}
	return exitOK
}
