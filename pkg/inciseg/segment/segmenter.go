package segment

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/cognicore/inciseg/pkg/inciseg/internalerr"
	"github.com/cognicore/inciseg/pkg/inciseg/signals"
)

// ScriptMode selects what happens to runs of excluded-script characters.
type ScriptMode int

const (
	// ScriptBoundary treats every excluded run as a segment delimiter.
	ScriptBoundary ScriptMode = iota
	// ScriptDelete removes excluded runs, fusing the Latin text around them.
	// This reproduces catalogs generated by the original scrapers.
	ScriptDelete
)

// ParseScriptMode maps "boundary" / "delete" to a ScriptMode.
func ParseScriptMode(s string) (ScriptMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "boundary":
		return ScriptBoundary, nil
	case "delete", "legacy":
		return ScriptDelete, nil
	}
	return 0, fmt.Errorf("%w: unknown script mode %q", internalerr.ErrInvalidConfig, s)
}

func (m ScriptMode) String() string {
	if m == ScriptDelete {
		return "delete"
	}
	return "boundary"
}

// DefaultMaxWords bounds the length of a single candidate.
const DefaultMaxWords = 4

// Config controls segmentation.
type Config struct {
	Signals    signals.SignalSet
	Excluded   *unicode.RangeTable // script stripped from the input; nil means unicode.Thai
	ScriptMode ScriptMode
	MaxWords   int
}

// DefaultConfig returns the configuration used for the existing catalogs,
// except that excluded-script runs act as boundaries.
func DefaultConfig() Config {
	return Config{
		Signals:    signals.Default(),
		Excluded:   unicode.Thai,
		ScriptMode: ScriptBoundary,
		MaxWords:   DefaultMaxWords,
	}
}

// codePattern matches short codes that continue a group without closing it,
// e.g. "SODIUM", "C12-15", "PEG-100".
var codePattern = regexp.MustCompile(`^[A-Z0-9]+(?:-[A-Z0-9]+)?$`)

// Segmenter splits raw ingredient text into candidate names.
// A Segmenter holds no mutable state and is safe for concurrent use.
type Segmenter struct {
	signals  *signals.Matcher
	excluded *unicode.RangeTable
	mode     ScriptMode
	maxWords int
}

// New builds a Segmenter from cfg.
func New(cfg Config) (*Segmenter, error) {
	m, err := cfg.Signals.Compile()
	if err != nil {
		return nil, err
	}
	if cfg.Excluded == nil {
		cfg.Excluded = unicode.Thai
	}
	if cfg.MaxWords <= 0 {
		cfg.MaxWords = DefaultMaxWords
	}
	return &Segmenter{
		signals:  m,
		excluded: cfg.Excluded,
		mode:     cfg.ScriptMode,
		maxWords: cfg.MaxWords,
	}, nil
}

// NewDefault builds a Segmenter from DefaultConfig.
func NewDefault() *Segmenter {
	s, err := New(DefaultConfig())
	if err != nil {
		panic(err)
	}
	return s
}

// SignalSetID identifies the vocabulary this segmenter closes groups with.
func (s *Segmenter) SignalSetID() string {
	return s.signals.ID()
}

// Segment turns a raw block into an ordered list of unique candidates.
// It never fails: unusable input yields an empty (non-nil) list.
func (s *Segmenter) Segment(raw string) []string {
	text := s.normalize(raw)

	var groups []string
	for _, seg := range splitTopLevel(text) {
		for _, sub := range refine(seg) {
			groups = append(groups, s.group(tokenize(sub))...)
		}
	}

	out := make([]string, 0, len(groups))
	seen := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		g = strings.TrimSpace(g)
		if !s.valid(g) {
			continue
		}
		key := strings.ToLower(g)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, g)
	}
	return out
}

// normalize applies NFKC, handles the excluded script and upper-cases.
func (s *Segmenter) normalize(raw string) string {
	var script transform.Transformer
	if s.mode == ScriptDelete {
		script = runes.Remove(runes.In(s.excluded))
	} else {
		script = runes.Map(func(r rune) rune {
			if unicode.Is(s.excluded, r) {
				return '\n'
			}
			return r
		})
	}

	out, _, err := transform.String(transform.Chain(norm.NFKC, script), raw)
	if err != nil {
		// Transformers above never fail on valid strings; fall back to raw text
		// and let validation drop anything left over.
		out = raw
	}
	return strings.ToUpper(out)
}

// segment is one top-level piece of the input. open is set when it ends
// inside an unclosed parenthesis.
type segment struct {
	text string
	open bool
}

func isDelimiter(r rune) bool {
	return r == ',' || r == ';' || r == '\n' || r == '\r'
}

// splitTopLevel splits on delimiters outside parentheses.
func splitTopLevel(text string) []segment {
	var out []segment
	var current strings.Builder
	depth := 0

	flush := func() {
		if t := strings.TrimSpace(current.String()); t != "" {
			out = append(out, segment{text: t, open: depth > 0})
		}
		current.Reset()
	}

	for _, r := range text {
		switch {
		case r == '(':
			depth++
		case r == ')':
			if depth > 0 {
				depth--
			}
		case depth == 0 && isDelimiter(r):
			flush()
			continue
		}
		current.WriteRune(r)
	}
	flush()
	return out
}

// refine re-splits a segment whose parentheses never closed. Its commas
// were swallowed by the open group, so the top-level split was too coarse.
func refine(seg segment) []string {
	if !seg.open || !strings.Contains(seg.text, ",") {
		return []string{seg.text}
	}
	var out []string
	for _, part := range strings.Split(seg.text, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// tokenize splits on whitespace outside parentheses; a parenthesised
// qualifier stays one token with its inner whitespace collapsed.
func tokenize(text string) []string {
	var tokens []string
	var current strings.Builder
	depth := 0

	flush := func() {
		if t := strings.TrimSpace(current.String()); t != "" {
			tokens = append(tokens, t)
		}
		current.Reset()
	}

	lastSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if depth == 0 {
				flush()
			} else if !lastSpace {
				current.WriteRune(' ')
			}
			lastSpace = true
			continue
		}
		lastSpace = false
		switch r {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		}
		current.WriteRune(r)
	}
	flush()
	return tokens
}

// group folds tokens into candidate names.
func (s *Segmenter) group(tokens []string) []string {
	var groups []string
	var current []string

	emit := func() {
		if len(current) > 0 {
			groups = append(groups, strings.Join(current, " "))
			current = nil
		}
	}

	for _, tok := range tokens {
		if strings.HasPrefix(tok, "(") {
			n := wordCount([]string{tok})
			switch {
			case len(current) > 0 && wordCount(current)+n <= s.maxWords:
				current = append(current, tok)
				emit()
			case len(current) == 0 && len(groups) > 0 &&
				len(strings.Fields(groups[len(groups)-1]))+n <= s.maxWords:
				groups[len(groups)-1] += " " + tok
			default:
				// Too long to attach: the qualifier opens its own group.
				emit()
				current = []string{tok}
				if n >= s.maxWords {
					emit()
				}
			}
			continue
		}

		current = append(current, tok)
		switch {
		case s.signals.IsSignal(tok):
			emit()
		case wordCount(current) >= s.maxWords:
			emit()
		case codePattern.MatchString(tok):
		default:
			emit()
		}
	}
	emit()
	return groups
}

// wordCount counts whitespace-separated words, including those inside a
// parenthesised token.
func wordCount(tokens []string) int {
	n := 0
	for _, t := range tokens {
		n += len(strings.Fields(t))
	}
	return n
}

func (s *Segmenter) valid(candidate string) bool {
	if candidate == "" {
		return false
	}
	for _, r := range candidate {
		if unicode.Is(s.excluded, r) || !allowedRune(r) {
			return false
		}
	}
	return len(strings.Fields(candidate)) <= s.maxWords
}

// allowedRune reports membership in [A-Z0-9 ()\-./,].
func allowedRune(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	return strings.ContainsRune(" ()-./,", r)
}
