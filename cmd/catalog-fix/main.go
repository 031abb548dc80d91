package main

import (
	"flag"
	"log"

	"github.com/cognicore/inciseg/pkg/inciseg/catalog"
)

func main() {
	var (
		inPath  = flag.String("catalog", "", "Catalog JSON (required)")
		outPath = flag.String("out", "", "Output path (default: rewrite the input)")
		images  = flag.Bool("images", false, "Rewrite single-string image fields as lists")
		codes   = flag.Bool("codes", false, "Fill product_codes from image URLs")
		reset   = flag.Bool("reset-ingredients", false, "Clear the ingredient list and every product's ingredient ids")
	)
	flag.Parse()

	if *inPath == "" {
		log.Fatal("--catalog required")
	}
	if !*images && !*codes && !*reset {
		log.Fatal("nothing to do: pass --images, --codes or --reset-ingredients")
	}
	if *outPath == "" {
		*outPath = *inPath
	}

	cat, err := catalog.Load(*inPath)
	if err != nil {
		log.Fatal("Failed to load catalog:", err)
	}

	if *images {
		n := cat.NormalizeImages()
		log.Printf("Rewrote %d image fields as lists", n)
	}
	if *codes {
		cat.ExtractProductCodes()
		log.Printf("Extracted product codes for %d products", len(cat.Products))
	}
	if *reset {
		n := len(cat.Ingredients)
		cat.ResetIngredients()
		log.Printf("Removed %d ingredients; ids restart at 1 on the next build", n)
	}

	if err := cat.Save(*outPath); err != nil {
		log.Fatal("Failed to save catalog:", err)
	}
	log.Printf("✓ Saved %s", *outPath)
}
