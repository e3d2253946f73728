// initdb bootstraps a dev vimango database pair: the main database in either
// schema variant plus an empty fts database. The real files are owned by the
// vimango application and its sync process; this exists for development and
// experiments only.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"vango/internal/config"
	"vango/internal/search"
	"vango/internal/store"
)

func main() {
	variantName := flag.String("variant", "legacy", "schema variant: legacy or uid")
	flag.Parse()

	var variant store.Variant
	switch *variantName {
	case "legacy":
		variant = store.VariantLegacy
	case "uid":
		variant = store.VariantUID
	default:
		fmt.Fprintf(os.Stderr, "unknown variant %q\n", *variantName)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if cfg.DBPath == "" {
		fmt.Fprintln(os.Stderr, "VANGO_DB is required")
		os.Exit(1)
	}

	ctx := context.Background()
	if err := store.Bootstrap(ctx, cfg.DBPath, variant); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if cfg.FTSPath != "" {
		if err := search.BootstrapFTS(ctx, cfg.FTSPath, variant); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	fmt.Printf("bootstrapped %s schema at %s\n", variant, cfg.DBPath)
}
