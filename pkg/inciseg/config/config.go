package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/inciseg/pkg/inciseg/catalog"
	"github.com/cognicore/inciseg/pkg/inciseg/extract"
	"github.com/cognicore/inciseg/pkg/inciseg/internalerr"
	"github.com/cognicore/inciseg/pkg/inciseg/links"
)

// Config is the YAML file shared by the catalog commands.
type Config struct {
	Catalog   string `yaml:"catalog"`    // JSON catalog read and rewritten by a build
	Report    string `yaml:"report"`     // append-only report log
	SQLite    string `yaml:"sqlite"`     // optional mirror of the catalog
	DebugDir  string `yaml:"debug_dir"`  // saved pages, debug_page_<code>_web.html
	Signals   string `yaml:"signals"`    // signal set file; empty uses the built-in set
	Sentinel  string `yaml:"sentinel"`   // ingredient attached when a page has none
	BatchSize int    `yaml:"batch_size"` // products between catalog checkpoints; 0 saves only at the end

	Segment    Segment            `yaml:"segment"`
	Extract    Extract            `yaml:"extract"`
	Fetch      Fetch              `yaml:"fetch"`
	Types      TypeMap            `yaml:"types"`
	Categories []catalog.Category `yaml:"categories"`
}

// Segment configures the segmenter.
type Segment struct {
	ScriptMode string   `yaml:"script_mode"` // boundary (default) or delete
	Scripts    []string `yaml:"scripts"`     // unicode script names stripped from the text
	MaxWords   int      `yaml:"max_words"`
}

// Extract configures section extraction.
type Extract struct {
	Labels  extract.Labels `yaml:"labels"`
	Content string         `yaml:"content"` // selector for the description area
}

// Fetch configures the HTTP page source.
type Fetch struct {
	Source    string        `yaml:"source"` // "dir" or "http"
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout"`
	Delay     time.Duration `yaml:"delay"` // pause between requests
}

// TypeMap maps the Types column of a links CSV to category ids.
type TypeMap struct {
	Default int64            `yaml:"default"`
	ByType  map[string]int64 `yaml:"by_type"`
}

// CategoryMap converts the YAML form to links.CategoryMap.
func (t TypeMap) CategoryMap() links.CategoryMap {
	return links.CategoryMap{ByType: t.ByType, Default: t.Default}
}

// Default returns the settings the catalog was originally built with.
func Default() Config {
	types := links.DefaultCategoryMap()
	return Config{
		Catalog:  "catalog.json",
		Report:   "report.txt",
		DebugDir: "debug_html",
		Sentinel: "UNKNOWN",
		Segment: Segment{
			ScriptMode: "boundary",
			Scripts:    []string{"Thai"},
			MaxWords:   4,
		},
		Extract: Extract{Labels: extract.DefaultLabels()},
		Fetch: Fetch{
			Source:    "dir",
			UserAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
			Timeout:   30 * time.Second,
			Delay:     5 * time.Second,
		},
		Types: TypeMap{Default: types.Default, ByType: types.ByType},
		Categories: []catalog.Category{
			{ID: 1, Name: "Sunscreen"},
			{ID: 2, Name: "Facial cleansing foam"},
			{ID: 3, Name: "Soap"},
			{ID: 4, Name: "Shampoo"},
			{ID: 5, Name: "Body cream"},
		},
	}
}

// Load reads a YAML config from path. Keys missing from the file keep
// their Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", internalerr.ErrInvalidConfig, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	if c.Catalog == "" {
		return fmt.Errorf("%w: catalog path is required", internalerr.ErrInvalidConfig)
	}
	if c.Sentinel == "" {
		return fmt.Errorf("%w: sentinel ingredient is required", internalerr.ErrInvalidConfig)
	}
	switch c.Fetch.Source {
	case "dir":
		if c.DebugDir == "" {
			return fmt.Errorf("%w: debug_dir is required for the dir source", internalerr.ErrInvalidConfig)
		}
	case "http":
	default:
		return fmt.Errorf("%w: unknown fetch source %q", internalerr.ErrInvalidConfig, c.Fetch.Source)
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("%w: batch_size %d", internalerr.ErrInvalidConfig, c.BatchSize)
	}
	return nil
}
