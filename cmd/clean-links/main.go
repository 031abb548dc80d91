package main

import (
	"flag"
	"log"
	"os"

	"github.com/cognicore/inciseg/pkg/inciseg/links"
)

func main() {
	var (
		inPath  = flag.String("in", "", "Links CSV to clean (required)")
		outPath = flag.String("out", "", "Output CSV (required)")
		byBP    = flag.Bool("by-bp", false, "Also drop links whose BP number was already seen")
	)
	flag.Parse()

	if *inPath == "" {
		log.Fatal("--in required")
	}
	if *outPath == "" {
		log.Fatal("--out required")
	}

	in, err := links.ReadFile(*inPath)
	if err != nil {
		log.Fatal("Failed to read links:", err)
	}
	if len(in) == 0 {
		log.Fatalf("No URLs found in %s", *inPath)
	}

	if *byBP {
		kept, dups, invalid := links.Dedupe(in)
		for _, d := range dups {
			log.Printf("BP_%s: %s (already listed as %s)", d.BP, d.URL, d.Existing)
		}
		for _, l := range invalid {
			log.Printf("No BP number in %s, keeping as is", l.URL)
		}
		in = append(kept, invalid...)
	}

	urls := links.Clean(in)

	f, err := os.Create(*outPath)
	if err != nil {
		log.Fatal("Failed to create output:", err)
	}
	if err := links.WriteURLs(f, urls); err != nil {
		f.Close()
		log.Fatal("Failed to write links:", err)
	}
	if err := f.Close(); err != nil {
		log.Fatal("Failed to write links:", err)
	}

	log.Printf("✓ %d unique cleaned URLs saved to %s", len(urls), *outPath)
}
