package links

import (
	"bytes"
	"strings"
	"testing"
)

func TestCleanURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://www.watsons.co.th/th/spf50/p/BP_139729?utm=x", "https://www.watsons.co.th/th/spf50/p/BP_139729"},
		{"  https://www.watsons.co.th/th/a/p/BP_1/reviews  ", "https://www.watsons.co.th/th/a/p/BP_1"},
		{"https://www.watsons.co.th/th/promo", "https://www.watsons.co.th/th/promo"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CleanURL(tt.in); got != tt.want {
			t.Errorf("CleanURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestProductCode(t *testing.T) {
	if got := ProductCode("https://x/th/a/p/BP_139729"); got != "WTCTH-139729" {
		t.Errorf("ProductCode = %q", got)
	}
	if got := ProductCode("https://x/th/a"); got != "" {
		t.Errorf("ProductCode without BP = %q, want empty", got)
	}
	l := Link{URL: "https://x/p/BP_42"}
	if l.BP() != "42" || l.Code() != "WTCTH-42" {
		t.Errorf("Link BP/Code = %q/%q", l.BP(), l.Code())
	}
}

func TestDedupe(t *testing.T) {
	in := []Link{
		{URL: "https://x/a/p/BP_1", Type: "Soap"},
		{URL: "https://x/b/p/BP_2"},
		{URL: "https://x/c/p/BP_1?dup"},
		{URL: "https://x/none"},
	}

	kept, dups, invalid := Dedupe(in)
	if len(kept) != 2 || kept[0].Type != "Soap" || kept[1].BP() != "2" {
		t.Errorf("kept = %v", kept)
	}
	if len(dups) != 1 || dups[0].BP != "1" || dups[0].Existing != "https://x/a/p/BP_1" {
		t.Errorf("dups = %v", dups)
	}
	if len(invalid) != 1 {
		t.Errorf("invalid = %v", invalid)
	}
}

func TestReadWithTypes(t *testing.T) {
	in := "\ufeffURL,Types\nhttps://x/p/BP_1, Sunscreen\n,Soap\nhttps://x/p/BP_2\n"
	got, err := Read(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Read = %v, want 2 links", got)
	}
	if got[0].Type != "Sunscreen" || got[1].Type != "" {
		t.Errorf("types = %q, %q", got[0].Type, got[1].Type)
	}
}

func TestReadRequiresURLColumn(t *testing.T) {
	if _, err := Read(strings.NewReader("link\nx\n")); err == nil {
		t.Error("expected error without URL column")
	}
	got, err := Read(strings.NewReader(""))
	if err != nil || len(got) != 0 {
		t.Errorf("empty input = %v, %v", got, err)
	}
}

func TestCleanAndWrite(t *testing.T) {
	in := []Link{
		{URL: "https://x/b/p/BP_2?a"},
		{URL: "https://x/a/p/BP_1"},
		{URL: "https://x/b/p/BP_2"},
	}
	urls := Clean(in)
	if len(urls) != 2 || urls[0] != "https://x/a/p/BP_1" {
		t.Fatalf("Clean = %v", urls)
	}

	var buf bytes.Buffer
	if err := WriteURLs(&buf, urls); err != nil {
		t.Fatalf("WriteURLs: %v", err)
	}
	if buf.String() != "URL\nhttps://x/a/p/BP_1\nhttps://x/b/p/BP_2\n" {
		t.Errorf("WriteURLs output = %q", buf.String())
	}
}

func TestCategoryMap(t *testing.T) {
	m := DefaultCategoryMap()
	tests := []struct {
		in   string
		want int64
	}{
		{"Shampoo", 4},
		{"body cream", 5},
		{"Unknown", 1},
		{"", 1},
	}
	for _, tt := range tests {
		if got := m.Category(tt.in); got != tt.want {
			t.Errorf("Category(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
