package report

import (
	"bufio"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// TimeLayout is the timestamp format at the start of every incident line.
const TimeLayout = "2006-01-02 15:04:05"

// summaryHeader starts the list of products still failing after a run.
const summaryHeader = "Failed products after re-scraping (no ingredients):"

// Log is the append-only report of products that need another look.
// It is the only place extraction problems surface; the batch never stops
// because of them.
type Log struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	runID  string
	now    func() time.Time
}

// New writes report lines to w.
func New(w io.Writer) *Log {
	return &Log{
		w:     w,
		runID: ulid.MustNew(ulid.Now(), ulid.Monotonic(rand.Reader, 0)).String(),
		now:   time.Now,
	}
}

// Open appends to the report file at path, creating it if needed.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	l := New(f)
	l.closer = f
	return l, nil
}

// RunID identifies the batch run that wrote a line.
func (l *Log) RunID() string {
	return l.runID
}

// Close closes the underlying file, if any.
func (l *Log) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

func (l *Log) printf(format string, args ...any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	line := fmt.Sprintf(format, args...)
	line = strings.NewReplacer("\r", " ", "\n", " ").Replace(line)
	_, err := fmt.Fprintf(l.w, "[%s] [run %s] %s\n", l.now().Format(TimeLayout), l.runID, line)
	return err
}

// ExtractionMiss records a page where no usable ingredient was found.
func (l *Log) ExtractionMiss(code string, id int64, source, context string) error {
	if context == "" {
		context = "No ingredient section found"
	}
	return l.printf("No ingredients found for product %s (ID: %d) from %s. HTML context: %s", code, id, source, context)
}

// FetchFailed records a page that could not be loaded.
func (l *Log) FetchFailed(code string, id int64, url string, err error) error {
	return l.printf("Web scraping failed for product %s (ID: %d) at %s: %v", code, id, url, err)
}

// SentinelUsed records that the placeholder ingredient was attached.
func (l *Log) SentinelUsed(code string, id int64, sentinel string) error {
	return l.printf("Using default ingredient '%s' for product %s (ID: %d) due to no ingredients found.", sentinel, code, id)
}

// NoImages records a page without product images.
func (l *Log) NoImages(code, url string) error {
	return l.printf("No images found for product %s at URL: %s", code, url)
}

// FailedRef identifies a product to re-scrape.
type FailedRef struct {
	URL  string
	ID   int64
	Code string
}

func (f FailedRef) String() string {
	return fmt.Sprintf("%s (ID: %d, Code: %s)", f.URL, f.ID, f.Code)
}

// FailedSummary appends the list of products that are still failing.
func (l *Log) FailedSummary(failed []FailedRef) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "\n[%s] [run %s] %s\n", l.now().Format(TimeLayout), l.runID, summaryHeader)
	if len(failed) == 0 {
		b.WriteString("No failed products after re-scraping.\n")
	}
	for _, f := range failed {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	_, err := io.WriteString(l.w, b.String())
	return err
}

var failedLine = regexp.MustCompile(`^-\s*(https?://\S+)\s*\(ID:\s*(\d+),\s*Code:\s*([A-Z]+-\d+)\)`)

// ParseFailed reads "- <url> (ID: n, Code: X)" lines. When the report holds
// summaries from several runs only the most recent one counts; entries are
// unique by product id.
func ParseFailed(r io.Reader) ([]FailedRef, error) {
	var out []FailedRef
	seen := make(map[int64]struct{})

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasSuffix(line, summaryHeader) {
			out = nil
			seen = make(map[int64]struct{})
			continue
		}
		m := failedLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		id, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, FailedRef{URL: m[1], ID: id, Code: m[3]})
	}
	return out, sc.Err()
}

// ReadFailed parses the report file at path.
func ReadFailed(path string) ([]FailedRef, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseFailed(f)
}
