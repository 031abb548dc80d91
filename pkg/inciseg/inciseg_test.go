package inciseg

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cognicore/inciseg/pkg/inciseg/catalog"
	"github.com/cognicore/inciseg/pkg/inciseg/internalerr"
	"github.com/cognicore/inciseg/pkg/inciseg/links"
	"github.com/cognicore/inciseg/pkg/inciseg/registry"
	"github.com/cognicore/inciseg/pkg/inciseg/report"
)

// mapSource serves pages keyed by product code.
type mapSource struct {
	pages   map[string]string
	fetched []string
}

func (m *mapSource) Name() string { return "web" }

func (m *mapSource) Fetch(ctx context.Context, url, code string) ([]byte, error) {
	m.fetched = append(m.fetched, code)
	page, ok := m.pages[code]
	if !ok {
		return nil, internalerr.ErrFetch
	}
	return []byte(page), nil
}

func productHTML(code, name, ingredients string, images int) string {
	var b strings.Builder
	b.WriteString("<html><body><h1>" + name + "</h1><div>")
	for i := 0; i < images; i++ {
		b.WriteString(`<img src="https://img.test/` + code + `_` + string(rune('a'+i)) + `.jpg" alt="` + name + `">`)
	}
	b.WriteString("</div><p>รายละเอียดสินค้า</p>")
	if ingredients != "" {
		b.WriteString("<div><h4>ส่วนประกอบ</h4><p>" + ingredients + "</p></div>")
	}
	b.WriteString("</body></html>")
	return b.String()
}

func newBuilder(src PageSource, buf *bytes.Buffer) *Builder {
	return New(Options{
		Source:     src,
		Report:     report.New(buf),
		Categories: links.DefaultCategoryMap(),
	})
}

func TestProcessPageMergesCandidates(t *testing.T) {
	var buf bytes.Buffer
	b := newBuilder(&mapSource{}, &buf)
	reg, _ := registry.FromEntries([]registry.Entry{{ID: 7, Name: "water"}})

	html := productHTML("WTCTH-1", "Gel", "Water, Glycerin, Fragrance (Limonene, Linalool)", 1)
	res, err := b.ProcessPage(strings.NewReader(html), "WTCTH-1", 1, reg)
	if err != nil {
		t.Fatalf("ProcessPage: %v", err)
	}
	if res.Sentinel {
		t.Fatal("unexpected sentinel")
	}
	want := []int64{7, 8, 9}
	if len(res.Ingredients) != len(want) {
		t.Fatalf("Ingredients = %v, want %v (candidates %v)", res.Ingredients, want, res.Candidates)
	}
	for i := range want {
		if res.Ingredients[i] != want[i] {
			t.Errorf("Ingredients = %v, want %v", res.Ingredients, want)
		}
	}
	if res.Candidates[2] != "FRAGRANCE (LIMONENE, LINALOOL)" {
		t.Errorf("Candidates = %v", res.Candidates)
	}
	if buf.Len() != 0 {
		t.Errorf("no report lines expected, got %q", buf.String())
	}
}

func TestProcessPageSentinel(t *testing.T) {
	var buf bytes.Buffer
	b := newBuilder(&mapSource{}, &buf)
	reg := registry.New()

	html := productHTML("WTCTH-2", "Bar", "", 0)
	res, err := b.ProcessPage(strings.NewReader(html), "WTCTH-2", 4, reg)
	if err != nil {
		t.Fatalf("ProcessPage: %v", err)
	}
	if !res.Sentinel || len(res.Ingredients) != 1 {
		t.Fatalf("result = %+v, want sentinel", res)
	}
	if id, ok := reg.Lookup(DefaultSentinel); !ok || id != res.Ingredients[0] {
		t.Errorf("sentinel not registered: %v %v", id, ok)
	}
	out := buf.String()
	if !strings.Contains(out, "No ingredients found for product WTCTH-2 (ID: 4) from web") ||
		!strings.Contains(out, "Using default ingredient 'UNKNOWN' for product WTCTH-2 (ID: 4)") {
		t.Errorf("report = %q", out)
	}
}

func TestBuild(t *testing.T) {
	src := &mapSource{pages: map[string]string{
		"WTCTH-1": productHTML("WTCTH-1", "Gel", "Water, Glycerin", 3),
		"WTCTH-2": productHTML("WTCTH-2", "Bar", "Glycerin, Sodium Hyaluronate", 1),
		"WTCTH-4": productHTML("WTCTH-4", "Mist", "", 0),
	}}
	var buf bytes.Buffer
	b := newBuilder(src, &buf)

	cat := catalog.New(nil)
	cat.Ingredients = []catalog.Ingredient{{ID: 1, Name: "water"}}

	in := []links.Link{
		{URL: "https://shop.test/th/gel/p/BP_1?x=1", Type: "Sunscreen"},
		{URL: "https://shop.test/th/bar/p/BP_2", Type: "Soap"},
		{URL: "https://shop.test/th/gel-again/p/BP_1"},
		{URL: "https://shop.test/th/missing/p/BP_3"},
		{URL: "https://shop.test/th/mist/p/BP_4", Type: "Shampoo"},
		{URL: "https://shop.test/th/promo"},
	}

	sum, err := b.Build(context.Background(), in, cat)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if sum.Processed != 3 || len(sum.Duplicates) != 1 || len(sum.Invalid) != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if len(cat.Products) != 3 {
		t.Fatalf("products = %+v", cat.Products)
	}

	gel := cat.Products[0]
	if gel.ID != 1 || gel.Category != 1 || gel.Link != "https://shop.test/th/gel/p/BP_1" {
		t.Errorf("gel = %+v", gel)
	}
	if gel.Image.Single || len(gel.Image.URLs) != 3 {
		t.Errorf("three images should be kept as a list: %+v", gel.Image)
	}
	if len(gel.Ingredients) != 2 || gel.Ingredients[0] != 1 || gel.Ingredients[1] != 2 {
		t.Errorf("gel ingredients = %v", gel.Ingredients)
	}

	bar := cat.Products[1]
	if !bar.Image.Single || bar.Category != 3 {
		t.Errorf("bar = %+v", bar)
	}
	if len(bar.Ingredients) != 2 || bar.Ingredients[0] != 2 || bar.Ingredients[1] != 3 {
		t.Errorf("bar ingredients = %v", bar.Ingredients)
	}

	// water, GLYCERIN, SODIUM HYALURONATE, UNKNOWN
	if len(cat.Ingredients) != 4 || sum.NewIngredients != 3 {
		t.Errorf("catalog ingredients = %+v", cat.Ingredients)
	}
	if cat.Ingredients[3].Name != DefaultSentinel {
		t.Errorf("last ingredient = %+v, want sentinel", cat.Ingredients[3])
	}

	mist := cat.Products[2]
	if len(sum.Failed) != 1 || sum.Failed[0].ID != mist.ID || sum.Failed[0].Code != "WTCTH-4" {
		t.Errorf("failed = %+v", sum.Failed)
	}

	failed, err := report.ParseFailed(&buf)
	if err != nil || len(failed) != 1 || failed[0].URL != "https://shop.test/th/mist/p/BP_4" {
		t.Errorf("report summary = %v, %v", failed, err)
	}
	if err := cat.Validate(); err != nil {
		t.Errorf("catalog invalid after build: %v", err)
	}
}

func TestBuildSkipsExistingProducts(t *testing.T) {
	src := &mapSource{pages: map[string]string{
		"WTCTH-1": productHTML("WTCTH-1", "Gel", "Water", 1),
		"WTCTH-2": productHTML("WTCTH-2", "Bar", "Aqua", 1),
	}}
	b := newBuilder(src, &bytes.Buffer{})

	cat := catalog.New(nil)
	cat.Products = []catalog.Product{{ID: 5, Name: "Gel", Link: "https://shop.test/th/gel/p/BP_1"}}

	sum, err := b.Build(context.Background(), []links.Link{
		{URL: "https://shop.test/th/gel/p/BP_1"},
		{URL: "https://shop.test/th/bar/p/BP_2"},
	}, cat)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if sum.Skipped != 1 || sum.Processed != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if len(src.fetched) != 1 || src.fetched[0] != "WTCTH-2" {
		t.Errorf("fetched = %v", src.fetched)
	}
	if cat.Products[1].ID != 6 {
		t.Errorf("new product id = %d, want 6", cat.Products[1].ID)
	}
}

func TestBuildAbortsOnInconsistentRegistry(t *testing.T) {
	src := &mapSource{pages: map[string]string{"WTCTH-1": productHTML("WTCTH-1", "Gel", "Water", 1)}}
	b := newBuilder(src, &bytes.Buffer{})

	cat := catalog.New(nil)
	cat.Ingredients = []catalog.Ingredient{{ID: 1, Name: "WATER"}, {ID: 2, Name: "water"}}

	_, err := b.Build(context.Background(), []links.Link{{URL: "https://shop.test/p/BP_1"}}, cat)
	if !errors.Is(err, internalerr.ErrDuplicate) {
		t.Errorf("err = %v, want ErrDuplicate", err)
	}
	if len(src.fetched) != 0 {
		t.Errorf("pages fetched before the registry check: %v", src.fetched)
	}
}

func TestBuildStopsOnCancel(t *testing.T) {
	src := &mapSource{pages: map[string]string{"WTCTH-1": productHTML("WTCTH-1", "Gel", "Water", 1)}}
	b := newBuilder(src, &bytes.Buffer{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Build(ctx, []links.Link{{URL: "https://shop.test/p/BP_1"}}, catalog.New(nil))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestBuildCheckpoints(t *testing.T) {
	src := &mapSource{pages: map[string]string{
		"WTCTH-1": productHTML("WTCTH-1", "A", "Water", 1),
		"WTCTH-2": productHTML("WTCTH-2", "B", "Water", 1),
		"WTCTH-3": productHTML("WTCTH-3", "C", "Water", 1),
	}}
	var saved []int
	b := New(Options{
		Source:    src,
		BatchSize: 2,
		Checkpoint: func(c *catalog.Catalog) error {
			saved = append(saved, len(c.Products))
			return nil
		},
	})

	_, err := b.Build(context.Background(), []links.Link{
		{URL: "https://shop.test/p/BP_1"},
		{URL: "https://shop.test/p/BP_2"},
		{URL: "https://shop.test/p/BP_3"},
	}, catalog.New(nil))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(saved) != 1 || saved[0] != 2 {
		t.Errorf("checkpoints = %v", saved)
	}
}

func TestRescrape(t *testing.T) {
	src := &mapSource{pages: map[string]string{
		"WTCTH-1": productHTML("WTCTH-1", "Gel", "Aqua, Niacinamide", 1),
	}}
	var buf bytes.Buffer
	b := newBuilder(src, &buf)

	cat := catalog.New(nil)
	cat.Ingredients = []catalog.Ingredient{{ID: 1, Name: "WATER"}, {ID: 2, Name: "UNKNOWN"}}
	cat.Products = []catalog.Product{
		{ID: 1, Name: "Gel", Ingredients: []int64{2}},
		{ID: 2, Name: "Bar", Ingredients: []int64{2}},
	}

	failed := []report.FailedRef{
		{URL: "https://shop.test/p/BP_1", ID: 1, Code: "WTCTH-1"},
		{URL: "https://shop.test/p/BP_2", ID: 2, Code: "WTCTH-2"},
		{URL: "https://shop.test/p/BP_9", ID: 9, Code: "WTCTH-9"},
	}
	sum, err := b.Rescrape(context.Background(), failed, cat)
	if err != nil {
		t.Fatalf("Rescrape: %v", err)
	}

	gel := cat.ProductByID(1)
	if len(gel.Ingredients) != 2 || gel.Ingredients[0] != 3 || gel.Ingredients[1] != 4 {
		t.Errorf("gel ingredients = %v", gel.Ingredients)
	}
	bar := cat.ProductByID(2)
	if len(bar.Ingredients) != 1 || bar.Ingredients[0] != 2 {
		t.Errorf("bar should fall back to the sentinel: %v", bar.Ingredients)
	}
	if sum.Processed != 2 || sum.NewIngredients != 2 || len(cat.Ingredients) != 4 {
		t.Errorf("summary = %+v, ingredients = %+v", sum, cat.Ingredients)
	}
	if len(sum.Failed) != 2 || sum.Failed[0].ID != 2 || sum.Failed[1].ID != 9 {
		t.Errorf("failed = %+v", sum.Failed)
	}

	out := buf.String()
	if !strings.Contains(out, "Web scraping failed for product WTCTH-2 (ID: 2)") {
		t.Errorf("report missing fetch failure: %q", out)
	}
	again, _ := report.ParseFailed(strings.NewReader(out))
	if len(again) != 2 {
		t.Errorf("report summary = %v", again)
	}
}

// cancelSource cancels the run while a page is being fetched.
type cancelSource struct {
	cancel context.CancelFunc
}

func (c *cancelSource) Name() string { return "web" }

func (c *cancelSource) Fetch(ctx context.Context, url, code string) ([]byte, error) {
	c.cancel()
	return nil, ctx.Err()
}

func TestRescrapeCancelKeepsIngredients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := newBuilder(&cancelSource{cancel: cancel}, &bytes.Buffer{})

	cat := catalog.New(nil)
	cat.Ingredients = []catalog.Ingredient{{ID: 1, Name: "WATER"}, {ID: 2, Name: "UNKNOWN"}}
	cat.Products = []catalog.Product{{ID: 1, Name: "Gel", Ingredients: []int64{2}}}

	failed := []report.FailedRef{{URL: "https://shop.test/p/BP_1", ID: 1, Code: "WTCTH-1"}}
	if _, err := b.Rescrape(ctx, failed, cat); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	gel := cat.ProductByID(1)
	if len(gel.Ingredients) != 1 || gel.Ingredients[0] != 2 {
		t.Errorf("cancelled rescrape left ingredients = %v, want [2]", gel.Ingredients)
	}
}

func TestProcessPageWithoutSource(t *testing.T) {
	var buf bytes.Buffer
	b := New(Options{Report: report.New(&buf)})

	page := "<html><body><p>nothing</p></body></html>"
	res, err := b.ProcessPage(strings.NewReader(page), "WTCTH-9", 9, registry.New())
	if err != nil {
		t.Fatalf("ProcessPage: %v", err)
	}
	if !res.Sentinel || len(res.Ingredients) != 1 {
		t.Errorf("result = %+v", res)
	}
	if !strings.Contains(buf.String(), "(ID: 9) from html") {
		t.Errorf("report = %q", buf.String())
	}

	if _, err := b.Build(context.Background(), nil, catalog.New(nil)); !errors.Is(err, internalerr.ErrInvalidInput) {
		t.Errorf("Build without source err = %v, want ErrInvalidInput", err)
	}
	if _, err := b.Rescrape(context.Background(), nil, catalog.New(nil)); !errors.Is(err, internalerr.ErrInvalidInput) {
		t.Errorf("Rescrape without source err = %v, want ErrInvalidInput", err)
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestBuildCountsReportWriteFailures(t *testing.T) {
	src := &mapSource{pages: map[string]string{"WTCTH-1": productHTML("WTCTH-1", "Gel", "", 0)}}
	b := New(Options{Source: src, Report: report.New(failingWriter{})})

	cat := catalog.New(nil)
	sum, err := b.Build(context.Background(), []links.Link{{URL: "https://shop.test/p/BP_1"}}, cat)
	if err == nil || !strings.Contains(err.Error(), "write report") {
		t.Errorf("err = %v, want summary write failure", err)
	}
	if sum.Processed != 1 || len(cat.Products) != 1 {
		t.Errorf("batch should continue past report failures: %+v", sum)
	}
	// extraction miss, sentinel and missing images
	if sum.ReportErrors != 3 {
		t.Errorf("ReportErrors = %d, want 3", sum.ReportErrors)
	}
}

func TestDirSource(t *testing.T) {
	dir := t.TempDir()
	src := DirSource{Dir: dir}
	if err := os.WriteFile(filepath.Join(dir, "debug_page_WTCTH-1_web.html"), []byte("<html></html>"), 0644); err != nil {
		t.Fatal(err)
	}

	data, err := src.Fetch(context.Background(), "ignored", "WTCTH-1")
	if err != nil || string(data) != "<html></html>" {
		t.Errorf("Fetch = %q, %v", data, err)
	}
	if _, err := src.Fetch(context.Background(), "", "WTCTH-2"); !errors.Is(err, internalerr.ErrFetch) {
		t.Errorf("missing page err = %v, want ErrFetch", err)
	}
}
