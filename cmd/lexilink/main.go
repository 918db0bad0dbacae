// Command lexilink looks up every node of an exported concept tree in the
// City of Chicago contracts dataset and writes the tree back out with a
// sidecar of per-node matches.
//
// Set SOCRATA_APP_TOKEN for better rate limits; anonymous access works but
// is throttled.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"lexigraph/pkg/datalink"
	"lexigraph/pkg/treefile"
)

func main() {
	in := flag.String("in", "", "tree file to read (required)")
	out := flag.String("out", "", "where to write the linked result (required)")
	sample := flag.Int("sample", 5, "sample rows to attach per matched node")
	minTermLen := flag.Int("min-term-len", 3, "drop search terms shorter than this")
	maxTerms := flag.Int("max-terms", 8, "cap on search terms per node")
	flag.Parse()

	if err := run(*in, *out, *sample, *minTermLen, *maxTerms); err != nil {
		fmt.Fprintln(os.Stderr, "lexilink:", err)
		os.Exit(1)
	}
}

func run(in, out string, sample, minTermLen, maxTerms int) error {
	if in == "" || out == "" {
		return fmt.Errorf("-in and -out are required")
	}

	export, err := treefile.Load(in)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var opts []datalink.ClientOption
	if token := os.Getenv("SOCRATA_APP_TOKEN"); token != "" {
		opts = append(opts, datalink.WithAppToken(token))
	} else {
		logger.Warn("SOCRATA_APP_TOKEN not set, requests may be throttled")
	}
	client := datalink.NewClient(opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result, err := datalink.Enrich(ctx, client, export, datalink.Options{
		Sample:     sample,
		MinTermLen: minTermLen,
		MaxTerms:   maxTerms,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}

	logger.Info("done",
		"nodes", result.Linkage.NodesTotal,
		"linked", result.Linkage.NodesLinked,
		"out", out)
	return nil
}
