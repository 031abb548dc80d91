package extract

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Labels are the section headings that introduce the ingredient list and
// the usage instructions, in the site's language.
type Labels struct {
	Ingredients []string `yaml:"ingredients"`
	Usage       []string `yaml:"usage"`
}

// DefaultLabels returns the Thai headings used by the scraped site.
func DefaultLabels() Labels {
	return Labels{
		Ingredients: []string{"ส่วนประกอบ", "ส่วนผสม"},
		Usage:       []string{"วิธีการใช้งาน"},
	}
}

// Page is what the extractor recovers from one product page.
type Page struct {
	Name        string
	Description string
	Using       string
	Ingredients string   // raw block handed to the segmenter
	Images      []string // unique, in document order
	Context     string   // HTML around the ingredients label, for the report log
}

// maxContext bounds Page.Context.
const maxContext = 500

// headingSelector lists elements that may carry a section label.
const headingSelector = "h1, h2, h3, h4, h5, strong, b, span, div, p"

// blockSelector lists siblings that may hold the section body.
const blockSelector = "p, div, span, ul, ol"

// Extractor pulls labeled sections out of product HTML.
type Extractor struct {
	labels  Labels
	content string
	split   *regexp.Regexp
}

// New creates an extractor. content is the selector whose text is used for
// the description and label-split fallback; empty means "body".
func New(labels Labels, content string) (*Extractor, error) {
	if len(labels.Ingredients) == 0 {
		return nil, fmt.Errorf("extract: at least one ingredients label is required")
	}
	if content == "" {
		content = "body"
	}

	all := append(append([]string{}, labels.Ingredients...), labels.Usage...)
	quoted := make([]string, 0, len(all))
	for _, l := range all {
		if l = strings.TrimSpace(l); l != "" {
			quoted = append(quoted, regexp.QuoteMeta(l))
		}
	}

	return &Extractor{
		labels:  labels,
		content: content,
		split:   regexp.MustCompile("(?i)(" + strings.Join(quoted, "|") + ")"),
	}, nil
}

// Extract parses one page. productCode filters images to the product's own
// pictures; an empty code keeps every image.
func (e *Extractor) Extract(r io.Reader, productCode string) (Page, error) {
	root, err := html.Parse(r)
	if err != nil {
		return Page{}, fmt.Errorf("parse html: %w", err)
	}
	doc := goquery.NewDocumentFromNode(root)
	doc.Find("script, style, noscript, template").Remove()

	var page Page
	page.Images, page.Name = images(doc, productCode)
	if page.Name == "" {
		page.Name = collapse(textOf(doc.Find("h1").First()))
	}

	page.Ingredients, page.Context = e.labeledBlock(doc)

	desc, using, ingredients := e.splitSections(textOf(doc.Find(e.content)))
	page.Description = desc
	page.Using = using
	if page.Ingredients == "" {
		page.Ingredients = ingredients
	}
	return page, nil
}

// labeledBlock finds the element carrying an ingredients label and returns
// the text that follows it.
func (e *Extractor) labeledBlock(doc *goquery.Document) (string, string) {
	var block, context string

	doc.Find(headingSelector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		rest, ok := afterLabel(ownText(sel), e.labels.Ingredients)
		if !ok {
			return true
		}
		if context == "" {
			context = snippet(sel.Parent())
		}

		rest = strings.TrimLeftFunc(rest, func(r rune) bool {
			return unicode.IsSpace(r) || unicode.IsPunct(r)
		})
		if hasLatin(rest) {
			block = rest
			return false
		}
		if next := sel.NextAllFiltered(blockSelector).First(); next.Length() > 0 {
			if t := collapse(textOf(next)); t != "" {
				block = t
				return false
			}
		}
		if next := sel.Parent().NextAllFiltered(blockSelector).First(); next.Length() > 0 {
			if t := collapse(textOf(next)); t != "" {
				block = t
				return false
			}
		}
		return true
	})
	return block, context
}

// splitSections splits flattened page text on every label: text after a
// usage label is the usage, text after an ingredients label the ingredient
// block, everything else the description.
func (e *Extractor) splitSections(text string) (desc, using, ingredients string) {
	text = collapse(text)
	locs := e.split.FindAllStringIndex(text, -1)

	var descParts []string
	prev := 0
	current := ""
	assign := func(part string) {
		part = strings.TrimSpace(part)
		if part == "" {
			return
		}
		switch {
		case current != "" && isLabel(current, e.labels.Usage) && using == "":
			using = part
		case current != "" && isLabel(current, e.labels.Ingredients) && ingredients == "":
			ingredients = part
		default:
			descParts = append(descParts, part)
		}
	}

	for _, loc := range locs {
		assign(text[prev:loc[0]])
		current = text[loc[0]:loc[1]]
		prev = loc[1]
	}
	assign(text[prev:])

	return strings.Join(descParts, " "), using, ingredients
}

func images(doc *goquery.Document, productCode string) ([]string, string) {
	var urls []string
	var name string
	seen := make(map[string]struct{})

	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		if src == "" {
			src, _ = img.Attr("data-src")
		}
		if src == "" || (productCode != "" && !strings.Contains(src, productCode)) {
			return
		}
		if _, ok := seen[src]; ok {
			return
		}
		seen[src] = struct{}{}
		urls = append(urls, src)
		if name == "" {
			name = strings.TrimSpace(img.AttrOr("alt", ""))
		}
	})
	return urls, name
}

// afterLabel returns the text following the first label found in text.
// Matching ignores case; the result keeps the original text.
func afterLabel(text string, labels []string) (string, bool) {
	for _, l := range labels {
		if l == "" {
			continue
		}
		if end := indexFoldEnd(text, l); end >= 0 {
			return text[end:], true
		}
	}
	return "", false
}

// indexFoldEnd returns the byte offset just past the first case-insensitive
// match of sub in s, or -1. Offsets always fall on rune boundaries of s.
func indexFoldEnd(s, sub string) int {
	for i := range s {
		j := i
		matched := true
		for _, r := range sub {
			if j >= len(s) {
				matched = false
				break
			}
			c, n := utf8.DecodeRuneInString(s[j:])
			if c != r && unicode.ToLower(c) != unicode.ToLower(r) {
				matched = false
				break
			}
			j += n
		}
		if matched {
			return j
		}
	}
	return -1
}

func isLabel(s string, labels []string) bool {
	for _, l := range labels {
		if strings.EqualFold(s, l) {
			return true
		}
	}
	return false
}

func hasLatin(s string) bool {
	for _, r := range s {
		if r < unicode.MaxASCII && unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// ownText returns the text of the selection's direct text children.
func ownText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, n := range sel.Nodes {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				b.WriteString(c.Data)
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// blockAtoms end a line when flattening text; inline elements only add a space.
var blockAtoms = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Li: true, atom.Br: true, atom.Ul: true,
	atom.Ol: true, atom.Tr: true, atom.Td: true, atom.H1: true, atom.H2: true,
	atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true, atom.Section: true,
}

// textOf flattens the selection to text, keeping block boundaries as newlines.
func textOf(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if t := strings.TrimSpace(n.Data); t != "" {
				b.WriteString(t)
				b.WriteByte(' ')
			}
			return
		case html.CommentNode:
			return
		}
		block := n.Type == html.ElementNode && blockAtoms[n.DataAtom]
		if block {
			b.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			b.WriteByte('\n')
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return b.String()
}

var (
	horizontalSpace = regexp.MustCompile(`[^\S\n]+`)
	lineBreaks      = regexp.MustCompile(`\s*\n\s*`)
)

// collapse squeezes spaces and blank lines while keeping line breaks.
func collapse(s string) string {
	s = horizontalSpace.ReplaceAllString(s, " ")
	s = lineBreaks.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s)
}

func snippet(sel *goquery.Selection) string {
	h, err := goquery.OuterHtml(sel)
	if err != nil {
		return ""
	}
	if len(h) <= maxContext {
		return h
	}
	cut := maxContext
	for cut > 0 && !utf8.RuneStart(h[cut]) {
		cut--
	}
	return h[:cut]
}
