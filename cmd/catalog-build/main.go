package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cognicore/inciseg/internal/fetch"
	"github.com/cognicore/inciseg/pkg/inciseg"
	"github.com/cognicore/inciseg/pkg/inciseg/catalog"
	"github.com/cognicore/inciseg/pkg/inciseg/config"
	"github.com/cognicore/inciseg/pkg/inciseg/links"
	"github.com/cognicore/inciseg/pkg/inciseg/report"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Config file (optional, defaults apply)")
		linksPath   = flag.String("links", "", "Links CSV with URL and optional Types columns")
		rescrape    = flag.Bool("rescrape", false, "Re-scrape the failed products listed in the report")
		signalsPath = flag.String("signals", "", "Signal set file (overrides the config)")
	)
	flag.Parse()

	if *linksPath == "" && !*rescrape {
		log.Fatal("--links or --rescrape required")
	}

	loader := config.Loader{ConfigPath: *configPath, SignalsPath: *signalsPath}
	components, err := loader.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}
	cfg := components.Config
	log.Printf("Segmenting with signal set %s", components.Segmenter.SignalSetID())

	cat, err := loadCatalog(cfg)
	if err != nil {
		log.Fatal("Failed to load catalog:", err)
	}

	rep, err := cfg.OpenReport()
	if err != nil {
		log.Fatal("Failed to open report:", err)
	}
	defer rep.Close()
	log.Printf("Report run %s -> %s", rep.RunID(), cfg.Report)

	var source inciseg.PageSource = inciseg.DirSource{Dir: cfg.DebugDir}
	if cfg.Fetch.Source == "http" {
		source = &fetch.Client{UserAgent: cfg.Fetch.UserAgent, Delay: cfg.Fetch.Delay, HTTPClient: &http.Client{Timeout: cfg.Fetch.Timeout}}
	}

	b := inciseg.New(inciseg.Options{
		Segmenter:  components.Segmenter,
		Extractor:  components.Extractor,
		Source:     source,
		Report:     rep,
		Categories: components.Categories,
		Sentinel:   cfg.Sentinel,
		BatchSize:  cfg.BatchSize,
		Checkpoint: func(c *catalog.Catalog) error { return c.Save(cfg.Catalog) },
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sum inciseg.Summary
	if *rescrape {
		failed, err := report.ReadFailed(cfg.Report)
		if err != nil {
			log.Fatal("Failed to read report:", err)
		}
		if len(failed) == 0 {
			log.Println("No failed products to process.")
			return
		}
		log.Printf("Re-scraping %d failed products", len(failed))
		sum, err = b.Rescrape(ctx, failed, cat)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Fatal("Re-scrape failed:", err)
		}
	} else {
		in, err := links.ReadFile(*linksPath)
		if err != nil {
			log.Fatal("Failed to read links:", err)
		}
		log.Printf("Loaded %d links from %s", len(in), *linksPath)
		sum, err = b.Build(ctx, in, cat)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Fatal("Build failed:", err)
		}
	}

	if err := cat.Save(cfg.Catalog); err != nil {
		log.Fatal("Failed to save catalog:", err)
	}

	st, err := cfg.OpenStore(context.Background())
	if err != nil {
		log.Fatal("Failed to open database:", err)
	}
	if st != nil {
		if err := st.SaveCatalog(context.Background(), cat); err != nil {
			log.Fatal("Failed to mirror catalog:", err)
		}
		st.Close()
		log.Printf("Mirrored catalog to %s", cfg.SQLite)
	}

	log.Printf("✓ Done: %d processed, %d skipped, %d duplicates, %d still failing, %d new ingredients (%d total)",
		sum.Processed, sum.Skipped, len(sum.Duplicates), len(sum.Failed), sum.NewIngredients, len(cat.Ingredients))
	if sum.ReportErrors > 0 {
		log.Printf("Warning: %d report lines could not be written to %s", sum.ReportErrors, cfg.Report)
	}
}

func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	cat, err := catalog.Load(cfg.Catalog)
	if errors.Is(err, fs.ErrNotExist) {
		log.Printf("No catalog at %s, starting a new one", cfg.Catalog)
		return catalog.New(cfg.Categories), nil
	}
	return cat, err
}
