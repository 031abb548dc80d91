package signals

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/inciseg/pkg/inciseg/internalerr"
)

// SignalSet is a named, versioned vocabulary of words that end an ingredient
// name during segmentation. A word is a signal if it ends with any suffix or
// keyword, or if any pattern matches at its end.
//
// Catalogs built with one set are only reproducible with the same set, so the
// version must be bumped whenever the vocabulary changes.
type SignalSet struct {
	Name     string   `yaml:"name"`
	Version  int      `yaml:"version"`
	Suffixes []string `yaml:"suffixes"`
	Keywords []string `yaml:"keywords"`
	Patterns []string `yaml:"patterns"`
}

// Default returns the pinned "legacy" v1 set used to build the existing catalogs.
func Default() SignalSet {
	return SignalSet{
		Name:    "legacy",
		Version: 1,
		Suffixes: []string{
			"-OH", "-YL", "-IC", "-ATE", "-ONE", "-INE", "-ENE",
			"-ANE", "-OL", "-ID", "-IM", "-AM", "-UM", "-ER",
		},
		Keywords: []string{
			"ACID", "EXTRACT", "ALCOHOL", "POLYMER", "BENZOATE", "GLYCERIN",
			"HYALURONATE", "DIMETHYL", "ETHYLHEXYL", "TRIAZINE", "PHENOL",
			"DIMETHICONE", "PEG", "PPG", "HYDROXY", "CARBOMER", "AMMONIUM",
			"ACRYLATES", "COPOLYMER", "FRAGRANCE", "PANTHENOL", "ADENOSINE",
			"EDTA", "BUTYLENE", "ALOE", "CAMELLIA", "SINENSIS", "LEAF",
			"HYDROLYZED", "EXTENSIN", "BIS-",
		},
		Patterns: []string{`\d+,\d+-`},
	}
}

// LoadFromYAML loads a signal set from a YAML file.
//
// Expected format:
//
//	name: legacy
//	version: 1
//	suffixes: [-ATE, -INE]
//	keywords: [ACID, EXTRACT]
//	patterns: ['\d+,\d+-']
func LoadFromYAML(path string) (SignalSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SignalSet{}, err
	}

	var set SignalSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return SignalSet{}, fmt.Errorf("parse signal set %s: %w", path, err)
	}
	return set, nil
}

// ID returns "name@vN", the identifier recorded alongside generated catalogs.
func (s SignalSet) ID() string {
	return fmt.Sprintf("%s@v%d", s.Name, s.Version)
}

// Matcher answers IsSignal for one compiled SignalSet.
type Matcher struct {
	id       string
	suffixes []string
	patterns []*regexp.Regexp
}

// Compile validates the set and prepares it for matching.
// Suffixes and keywords are upper-cased; patterns are anchored at the word end.
func (s SignalSet) Compile() (*Matcher, error) {
	if strings.TrimSpace(s.Name) == "" {
		return nil, fmt.Errorf("%w: signal set name is required", internalerr.ErrInvalidConfig)
	}
	if s.Version < 1 {
		return nil, fmt.Errorf("%w: signal set %q version must be >= 1", internalerr.ErrInvalidConfig, s.Name)
	}

	m := &Matcher{id: s.ID()}
	seen := make(map[string]struct{})
	for _, list := range [][]string{s.Suffixes, s.Keywords} {
		for _, w := range list {
			w = strings.ToUpper(strings.TrimSpace(w))
			if w == "" {
				continue
			}
			if _, ok := seen[w]; ok {
				continue
			}
			seen[w] = struct{}{}
			m.suffixes = append(m.suffixes, w)
		}
	}

	for _, p := range s.Patterns {
		re, err := regexp.Compile("(?:" + p + ")$")
		if err != nil {
			return nil, fmt.Errorf("%w: signal pattern %q: %v", internalerr.ErrInvalidConfig, p, err)
		}
		m.patterns = append(m.patterns, re)
	}
	return m, nil
}

// MustCompile is like Compile but panics on an invalid set.
func (s SignalSet) MustCompile() *Matcher {
	m, err := s.Compile()
	if err != nil {
		panic(err)
	}
	return m
}

// ID returns the identifier of the set the matcher was compiled from.
func (m *Matcher) ID() string {
	return m.id
}

// IsSignal reports whether word closes an ingredient group.
// word is expected to be upper-case already.
func (m *Matcher) IsSignal(word string) bool {
	for _, s := range m.suffixes {
		if strings.HasSuffix(word, s) {
			return true
		}
	}
	for _, re := range m.patterns {
		if re.MatchString(word) {
			return true
		}
	}
	return false
}
