// Package main is the CLI shell around the crawl core. The desktop
// application consumes the same event stream this binary prints.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/seo-audit/crawler/internal/config"
	"github.com/seo-audit/crawler/internal/events"
	"github.com/seo-audit/crawler/internal/report"
	"github.com/seo-audit/crawler/internal/scheduler"
	"github.com/seo-audit/crawler/internal/storage"
)

func main() {
	var (
		dbPath     = flag.String("db", "crawl.db", "path to the crawl store")
		configPath = flag.String("config", "", "optional settings JSON file")
		render     = flag.Bool("render", false, "render pages with the headless browser")
		exportPath = flag.String("export", "", "export results after the crawl (.csv or .xlsx)")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: crawler [flags] <base-url>")
		flag.PrintDefaults()
		os.Exit(1)
	}
	baseURL := flag.Arg(0)

	logger := buildLogger(*verbose)
	defer logger.Sync()

	settings := config.DefaultSettings()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Fatal("failed to load settings", zap.Error(err))
		}
		settings = loaded
	}
	if *render {
		settings.JavaScriptRendering = true
	}

	db, err := storage.Open(*dbPath, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer db.Close()

	bus := events.NewBus(256)

	crawler, err := scheduler.New(baseURL, settings, db, bus, logger)
	if err != nil {
		logger.Fatal("failed to start crawl", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("interrupt received, draining crawl")
		cancel()
	}()

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		consume(bus, logger)
	}()

	summary, err := crawler.Run(ctx)
	bus.Close()
	<-consumerDone
	if err != nil {
		logger.Fatal("crawl failed", zap.Error(err))
	}

	fmt.Println("\n========== Crawl Complete ==========")
	fmt.Printf("Domain:         %s\n", summary.Domain)
	fmt.Printf("Status:         %s\n", summary.Status)
	fmt.Printf("Pages:          %d\n", summary.Pages)
	fmt.Printf("Errors:         %d\n", summary.Errors)
	fmt.Printf("Links:          %d (%d internal / %d external)\n",
		summary.TotalLinks, summary.InternalLinks, summary.ExternalLinks)
	fmt.Printf("Indexable:      %d / %d\n", summary.Indexable, summary.Indexable+summary.NotIndexable)
	fmt.Printf("Elapsed:        %v\n", summary.Elapsed.Round(time.Second))
	if len(summary.Sitemaps) > 0 {
		fmt.Printf("Sitemaps:       %s\n", strings.Join(summary.Sitemaps, ", "))
	}

	if *exportPath != "" {
		if err := exportResults(db, *exportPath); err != nil {
			logger.Error("export failed", zap.Error(err))
			os.Exit(1)
		}
		fmt.Printf("Exported to %s\n", *exportPath)
	}
}

// consume prints the event stream until the bus closes.
func consume(bus *events.Bus, logger *zap.Logger) {
	for ev := range bus.Events() {
		switch ev.Kind {
		case events.KindCrawlResult:
			rec := ev.Result
			fmt.Printf("[%d] %s (%dms, %d links)\n",
				rec.StatusCode, rec.OriginalURL, rec.ResponseTimeMS,
				len(rec.InternalLinks)+len(rec.ExternalLinks))
		case events.KindProgressUpdate:
			p := ev.Progress
			logger.Debug("progress",
				zap.Float64("percentage", p.Percentage),
				zap.Int("crawled", p.CrawledURLs),
				zap.Int("failed", p.FailedURLsCount),
				zap.Int("discovered", p.DiscoveredURLs))
		}
	}
}

func exportResults(db *storage.Database, path string) error {
	pages, err := db.AllPages()
	if err != nil {
		return err
	}

	format := report.FormatCSV
	if strings.HasSuffix(path, ".xlsx") {
		format = report.FormatXLSX
	}
	return report.NewExporter(format, path).Export(pages)
}

func buildLogger(verbose bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}
