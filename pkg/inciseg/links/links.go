package links

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
)

// CodePrefix turns a BP number into the site's product code.
const CodePrefix = "WTCTH-"

var (
	productURL = regexp.MustCompile(`^(https?://.+?/p/BP_\d+)`)
	bpNumber   = regexp.MustCompile(`/p/BP_(\d+)`)
)

// Link is one product page to scrape.
type Link struct {
	URL  string
	Type string // product type from the CSV, mapped to a category
}

// BP returns the page's BP number, or "" if the URL has none.
func (l Link) BP() string {
	return BPNumber(l.URL)
}

// Code returns the product code (WTCTH-<bp>), or "" if the URL has no BP number.
func (l Link) Code() string {
	return ProductCode(l.URL)
}

// CleanURL truncates a product URL after its /p/BP_<digits> segment,
// dropping query strings and tracking suffixes.
func CleanURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if m := productURL.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	return raw
}

// BPNumber extracts the digits of /p/BP_<digits>.
func BPNumber(url string) string {
	if m := bpNumber.FindStringSubmatch(url); m != nil {
		return m[1]
	}
	return ""
}

// ProductCode returns CodePrefix + BP number, or "" when there is none.
func ProductCode(url string) string {
	if bp := BPNumber(url); bp != "" {
		return CodePrefix + bp
	}
	return ""
}

// Duplicate records a link skipped because its BP number was already seen.
type Duplicate struct {
	BP       string
	URL      string
	Existing string
}

// Dedupe keeps the first link per BP number. Links without a BP number are
// dropped and returned separately.
func Dedupe(in []Link) (kept []Link, dups []Duplicate, invalid []Link) {
	seen := make(map[string]string, len(in))
	for _, l := range in {
		bp := l.BP()
		if bp == "" {
			invalid = append(invalid, l)
			continue
		}
		if first, ok := seen[bp]; ok {
			dups = append(dups, Duplicate{BP: bp, URL: l.URL, Existing: first})
			continue
		}
		seen[bp] = l.URL
		kept = append(kept, l)
	}
	return kept, dups, invalid
}

// Read parses a links CSV. The header row must contain a URL column; a
// Types column is optional. Rows with an empty URL are skipped.
func Read(r io.Reader) ([]Link, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	urlCol, typeCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		case "url":
			urlCol = i
		case "types", "type":
			typeCol = i
		}
	}
	if urlCol < 0 {
		return nil, fmt.Errorf("links csv: no URL column in header %v", header)
	}

	var out []Link
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if urlCol >= len(rec) || strings.TrimSpace(rec[urlCol]) == "" {
			continue
		}
		l := Link{URL: strings.TrimSpace(rec[urlCol])}
		if typeCol >= 0 && typeCol < len(rec) {
			l.Type = strings.TrimSpace(rec[typeCol])
		}
		out = append(out, l)
	}
	return out, nil
}

// ReadFile reads a links CSV from path.
func ReadFile(path string) ([]Link, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Clean returns the sorted, de-duplicated cleaned URLs of in.
func Clean(in []Link) []string {
	set := make(map[string]struct{}, len(in))
	for _, l := range in {
		if u := CleanURL(l.URL); u != "" {
			set[u] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for u := range set {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// WriteURLs writes a single-column CSV with a URL header.
func WriteURLs(w io.Writer, urls []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"URL"}); err != nil {
		return err
	}
	for _, u := range urls {
		if err := cw.Write([]string{u}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// CategoryMap maps CSV product types to catalog category ids.
type CategoryMap struct {
	ByType  map[string]int64
	Default int64
}

// DefaultCategoryMap is the mapping used by the original catalog.
func DefaultCategoryMap() CategoryMap {
	return CategoryMap{
		ByType: map[string]int64{
			"Sunscreen":             1,
			"facial cleansing foam": 2,
			"Soap":                  3,
			"Shampoo":               4,
			"Body cream":            5,
		},
		Default: 1,
	}
}

// Category returns the id for a product type, ignoring case; unknown types
// get the default.
func (m CategoryMap) Category(typeName string) int64 {
	if id, ok := m.ByType[typeName]; ok {
		return id
	}
	for name, id := range m.ByType {
		if strings.EqualFold(name, strings.TrimSpace(typeName)) {
			return id
		}
	}
	return m.Default
}
