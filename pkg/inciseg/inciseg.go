package inciseg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"sync/atomic"

	"github.com/cognicore/inciseg/pkg/inciseg/catalog"
	"github.com/cognicore/inciseg/pkg/inciseg/extract"
	"github.com/cognicore/inciseg/pkg/inciseg/internalerr"
	"github.com/cognicore/inciseg/pkg/inciseg/links"
	"github.com/cognicore/inciseg/pkg/inciseg/registry"
	"github.com/cognicore/inciseg/pkg/inciseg/report"
	"github.com/cognicore/inciseg/pkg/inciseg/segment"
)

// DefaultSentinel is attached to products whose page yields no ingredient.
const DefaultSentinel = "UNKNOWN"

// pageOrigin names where a page came from when no PageSource is set.
const pageOrigin = "html"

// Builder turns product pages into catalog entries
type Builder struct {
	segmenter  *segment.Segmenter
	extractor  *extract.Extractor
	source     PageSource
	report     *report.Log
	categories links.CategoryMap
	sentinel   string
	batchSize  int
	checkpoint func(*catalog.Catalog) error

	reportErrs atomic.Int64
}

// Options configures a Builder
type Options struct {
	Segmenter  *segment.Segmenter
	Extractor  *extract.Extractor
	Source     PageSource
	Report     *report.Log
	Categories links.CategoryMap
	Sentinel   string

	// Checkpoint, when set, is called every BatchSize products so a long
	// run can be resumed from the saved catalog.
	BatchSize  int
	Checkpoint func(*catalog.Catalog) error
}

// New creates a Builder with the given dependencies
func New(opts Options) *Builder {
	if opts.Sentinel == "" {
		opts.Sentinel = DefaultSentinel
	}
	if opts.Segmenter == nil {
		opts.Segmenter = segment.NewDefault()
	}
	if opts.Extractor == nil {
		opts.Extractor, _ = extract.New(extract.DefaultLabels(), "")
	}
	if opts.Report == nil {
		opts.Report = report.New(io.Discard)
	}
	return &Builder{
		segmenter:  opts.Segmenter,
		extractor:  opts.Extractor,
		source:     opts.Source,
		report:     opts.Report,
		categories: opts.Categories,
		sentinel:   opts.Sentinel,
		batchSize:  opts.BatchSize,
		checkpoint: opts.Checkpoint,
	}
}

// PageResult is one processed product page.
type PageResult struct {
	Page        extract.Page
	Candidates  []string
	Ingredients []int64
	Sentinel    bool // no candidate was found and the sentinel was attached
}

// ProcessPage extracts the ingredient block from html, segments it and
// merges the names into reg. A page without candidates gets the sentinel
// ingredient and a report line; it never fails the batch.
func (b *Builder) ProcessPage(html io.Reader, code string, id int64, reg *registry.Registry) (PageResult, error) {
	page, err := b.extractor.Extract(html, code)
	if err != nil {
		return PageResult{}, fmt.Errorf("extract %s: %w", code, err)
	}

	res := PageResult{Page: page, Candidates: b.segmenter.Segment(page.Ingredients)}
	if len(res.Candidates) == 0 {
		b.logged(b.report.ExtractionMiss(code, id, b.sourceName(), page.Context))
		res.Ingredients = b.useSentinel(code, id, reg)
		res.Sentinel = true
		return res, nil
	}

	res.Ingredients = reg.Merge(res.Candidates)
	return res, nil
}

func (b *Builder) sourceName() string {
	if b.source == nil {
		return pageOrigin
	}
	return b.source.Name()
}

// logged keeps the batch running when the report log cannot be written;
// the failure goes to the process log and is counted in the Summary.
func (b *Builder) logged(err error) {
	if err == nil {
		return
	}
	b.reportErrs.Add(1)
	log.Printf("Report write failed: %v", err)
}

func (b *Builder) useSentinel(code string, id int64, reg *registry.Registry) []int64 {
	b.logged(b.report.SentinelUsed(code, id, b.sentinel))
	log.Printf("Using default ingredient %q for %s (ID: %d)", b.sentinel, code, id)
	return reg.Merge([]string{b.sentinel})
}

// Summary describes one Build or Rescrape run.
type Summary struct {
	Processed      int
	Skipped        int // already in the catalog
	Duplicates     []links.Duplicate
	Invalid        []links.Link
	Failed         []report.FailedRef
	NewIngredients int
	ReportErrors   int // report lines that could not be written
}

// Build scrapes every link not yet in cat and appends the products.
// Links are de-duplicated by BP number; the first occurrence wins.
// A registry inconsistency in cat aborts before any page is fetched.
func (b *Builder) Build(ctx context.Context, in []links.Link, cat *catalog.Catalog) (sum Summary, err error) {
	if b.source == nil {
		return Summary{}, fmt.Errorf("build: no page source: %w", internalerr.ErrInvalidInput)
	}
	reg, err := cat.Registry()
	if err != nil {
		return Summary{}, fmt.Errorf("load registry: %w", err)
	}

	start := b.reportErrs.Load()
	defer func() { sum.ReportErrors = int(b.reportErrs.Load() - start) }()
	kept, dups, invalid := links.Dedupe(in)
	sum.Duplicates, sum.Invalid = dups, invalid
	for _, d := range dups {
		log.Printf("Duplicate BP number %s found for URL: %s (already processed as %s)", d.BP, d.URL, d.Existing)
	}
	for _, l := range invalid {
		log.Printf("No BP number found in URL: %s", l.URL)
	}

	existing := make(map[string]struct{}, len(cat.Products))
	for _, p := range cat.Products {
		if p.Link != "" {
			existing[links.BPNumber(p.Link)] = struct{}{}
		}
	}

	appended := 0
	for i, l := range kept {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if _, ok := existing[l.BP()]; ok {
			sum.Skipped++
			continue
		}

		code := l.Code()
		id := cat.NextProductID()
		url := links.CleanURL(l.URL)

		html, err := b.source.Fetch(ctx, url, code)
		if err != nil {
			if ctx.Err() != nil {
				return sum, ctx.Err()
			}
			b.logged(b.report.FetchFailed(code, id, url, err))
			log.Printf("Fetch failed for %s: %v", code, err)
			continue
		}

		res, err := b.ProcessPage(bytes.NewReader(html), code, id, reg)
		if err != nil {
			b.logged(b.report.FetchFailed(code, id, url, err))
			log.Printf("Skipping %s: %v", code, err)
			continue
		}
		if len(res.Page.Images) == 0 {
			b.logged(b.report.NoImages(code, url))
		}

		cat.AddProduct(catalog.Product{
			Name:        res.Page.Name,
			Description: res.Page.Description,
			Using:       res.Page.Using,
			Image:       catalog.SelectImages(res.Page.Images),
			Ingredients: res.Ingredients,
			Category:    b.categories.Category(l.Type),
			Link:        url,
		})
		appended = appendNew(cat, reg, appended)
		existing[l.BP()] = struct{}{}
		sum.Processed++
		if res.Sentinel {
			sum.Failed = append(sum.Failed, report.FailedRef{URL: url, ID: id, Code: code})
		}
		log.Printf("Saved %s (ID: %d) with %d ingredients", code, id, len(res.Ingredients))

		if err := b.maybeCheckpoint(cat, sum.Processed); err != nil {
			return sum, err
		}
		if (i+1)%10 == 0 {
			log.Printf("Processed %d/%d links", i+1, len(kept))
		}
	}

	sum.NewIngredients = appended
	if err := b.report.FailedSummary(sum.Failed); err != nil {
		return sum, fmt.Errorf("write report: %w", err)
	}
	return sum, nil
}

// Rescrape re-extracts and replaces the ingredients of previously failed
// products. Products missing from cat, and products that still need the
// sentinel, are reported again in the closing summary.
func (b *Builder) Rescrape(ctx context.Context, failed []report.FailedRef, cat *catalog.Catalog) (sum Summary, err error) {
	if b.source == nil {
		return Summary{}, fmt.Errorf("rescrape: no page source: %w", internalerr.ErrInvalidInput)
	}
	reg, err := cat.Registry()
	if err != nil {
		return Summary{}, fmt.Errorf("load registry: %w", err)
	}

	start := b.reportErrs.Load()
	defer func() { sum.ReportErrors = int(b.reportErrs.Load() - start) }()
	appended := 0
	for _, f := range failed {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		p := cat.ProductByID(f.ID)
		if p == nil {
			log.Printf("Product ID %d not found in catalog", f.ID)
			sum.Failed = append(sum.Failed, f)
			continue
		}
		log.Printf("Re-scraping product ID %d: %s (%s)", f.ID, p.Name, f.Code)

		var ids []int64
		sentinel := false
		html, err := b.source.Fetch(ctx, f.URL, f.Code)
		switch {
		case err != nil && ctx.Err() != nil:
			return sum, ctx.Err()
		case err != nil:
			b.logged(b.report.FetchFailed(f.Code, f.ID, f.URL, err))
			ids, sentinel = b.useSentinel(f.Code, f.ID, reg), true
		default:
			res, perr := b.ProcessPage(bytes.NewReader(html), f.Code, f.ID, reg)
			if perr != nil {
				b.logged(b.report.FetchFailed(f.Code, f.ID, f.URL, perr))
				ids, sentinel = b.useSentinel(f.Code, f.ID, reg), true
			} else {
				ids, sentinel = res.Ingredients, res.Sentinel
			}
		}

		// The old list stays until the outcome is known, so a cancelled
		// fetch never leaves the product without ingredients.
		p.Ingredients = ids
		appended = appendNew(cat, reg, appended)
		sum.Processed++
		if sentinel {
			sum.Failed = append(sum.Failed, f)
		}
		log.Printf("Updated product ID %d with %d ingredient IDs", f.ID, len(ids))

		if err := b.maybeCheckpoint(cat, sum.Processed); err != nil {
			return sum, err
		}
	}

	sum.NewIngredients = appended
	if err := b.report.FailedSummary(sum.Failed); err != nil {
		return sum, fmt.Errorf("write report: %w", err)
	}
	return sum, nil
}

// appendNew copies registry additions past the first n into the catalog's
// ingredient list and returns the new count.
func appendNew(cat *catalog.Catalog, reg *registry.Registry, n int) int {
	added := reg.Added()
	cat.AppendIngredients(added[n:])
	return len(added)
}

func (b *Builder) maybeCheckpoint(cat *catalog.Catalog, processed int) error {
	if b.checkpoint == nil || b.batchSize <= 0 || processed%b.batchSize != 0 {
		return nil
	}
	if err := b.checkpoint(cat); err != nil {
		return fmt.Errorf("checkpoint after %d products: %w", processed, err)
	}
	log.Printf("Checkpoint saved after %d products", processed)
	return nil
}
