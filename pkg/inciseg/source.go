package inciseg

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/cognicore/inciseg/pkg/inciseg/internalerr"
)

// PageSource yields the raw HTML of a product page. Browser automation lives
// outside this module; a source may read saved captures or fetch over HTTP.
type PageSource interface {
	Fetch(ctx context.Context, url, code string) ([]byte, error)
	Name() string
}

// DirSource reads pages saved as debug_page_<code>_web.html.
type DirSource struct {
	Dir string
}

// PagePath returns the capture file for a product code.
func (d DirSource) PagePath(code string) string {
	return filepath.Join(d.Dir, "debug_page_"+code+"_web.html")
}

// Name identifies the source in report lines.
func (d DirSource) Name() string { return "file" }

// Fetch reads the saved page for code; url is ignored.
func (d DirSource) Fetch(ctx context.Context, url, code string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(d.PagePath(code))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: no saved page for %s", internalerr.ErrFetch, code)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrFetch, err)
	}
	return data, nil
}
