package config

import (
	"context"
	"fmt"
	"unicode"

	"golang.org/x/text/unicode/rangetable"

	"github.com/cognicore/inciseg/pkg/inciseg/extract"
	"github.com/cognicore/inciseg/pkg/inciseg/internalerr"
	"github.com/cognicore/inciseg/pkg/inciseg/links"
	"github.com/cognicore/inciseg/pkg/inciseg/report"
	"github.com/cognicore/inciseg/pkg/inciseg/segment"
	"github.com/cognicore/inciseg/pkg/inciseg/signals"
	"github.com/cognicore/inciseg/pkg/inciseg/store"
	"github.com/cognicore/inciseg/pkg/inciseg/store/sqlite"
)

// Loader loads the config file and constructs components
type Loader struct {
	ConfigPath  string // empty uses Default()
	SignalsPath string // overrides Config.Signals when set
}

// Components holds all loaded configuration components
type Components struct {
	Config     *Config
	Segmenter  *segment.Segmenter
	Extractor  *extract.Extractor
	Categories links.CategoryMap
}

// Load reads the config and returns initialized components
func (l *Loader) Load() (*Components, error) {
	cfg := Default()
	if l.ConfigPath != "" {
		loaded, err := Load(l.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = *loaded
	}
	if l.SignalsPath != "" {
		cfg.Signals = l.SignalsPath
	}

	comp := &Components{Config: &cfg, Categories: cfg.Types.CategoryMap()}

	// Signal set
	set := signals.Default()
	if cfg.Signals != "" {
		loaded, err := signals.LoadFromYAML(cfg.Signals)
		if err != nil {
			return nil, fmt.Errorf("load signals: %w", err)
		}
		set = loaded
	}

	// Segmenter
	mode, err := segment.ParseScriptMode(cfg.Segment.ScriptMode)
	if err != nil {
		return nil, err
	}
	excluded, err := ExcludedScripts(cfg.Segment.Scripts)
	if err != nil {
		return nil, err
	}
	comp.Segmenter, err = segment.New(segment.Config{
		Signals:    set,
		Excluded:   excluded,
		ScriptMode: mode,
		MaxWords:   cfg.Segment.MaxWords,
	})
	if err != nil {
		return nil, fmt.Errorf("build segmenter: %w", err)
	}

	// Extractor
	comp.Extractor, err = extract.New(cfg.Extract.Labels, cfg.Extract.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrInvalidConfig, err)
	}

	return comp, nil
}

// ExcludedScripts merges the named unicode scripts into one table.
// No names means Thai.
func ExcludedScripts(names []string) (*unicode.RangeTable, error) {
	if len(names) == 0 {
		return unicode.Thai, nil
	}
	tables := make([]*unicode.RangeTable, 0, len(names))
	for _, name := range names {
		t, ok := unicode.Scripts[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown script %q", internalerr.ErrInvalidConfig, name)
		}
		tables = append(tables, t)
	}
	if len(tables) == 1 {
		return tables[0], nil
	}
	return rangetable.Merge(tables...), nil
}

// OpenStore opens the SQLite mirror, or returns nil when none is configured.
func (c *Config) OpenStore(ctx context.Context) (store.Store, error) {
	if c.SQLite == "" {
		return nil, nil
	}
	return sqlite.OpenSQLite(ctx, c.SQLite)
}

// OpenReport opens the report log for appending.
func (c *Config) OpenReport() (*report.Log, error) {
	if c.Report == "" {
		return nil, fmt.Errorf("%w: report path is required", internalerr.ErrInvalidConfig)
	}
	return report.Open(c.Report)
}
