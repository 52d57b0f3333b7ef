package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/couchcryptid/storm-vp-classifier/internal/adapter/export"
	"github.com/couchcryptid/storm-vp-classifier/internal/cases"
	"github.com/go-gota/gota/dataframe"
)

func runCentroids(ctx context.Context, env *environment, args []string) error {
	fs := flag.NewFlagSet("centroids", flag.ContinueOnError)
	name := fs.String("scheme", "", "name of the stored scheme")
	sortBy := fs.String("sort-by", "", "order clusters by this extra feature")
	out := fs.String("out", "", "output CSV file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := env.loadScheme(ctx, *name)
	if err != nil {
		return err
	}

	// Centroids need no case data; an empty case carries the scheme.
	cent, order, err := cases.New(nil, cases.WithScheme(s)).Centroids(*sortBy)
	if err != nil {
		return err
	}

	return writeFrame(*out, export.CentroidsFrame(cent, order))
}

// writeFrame writes df as CSV to path, or to stdout when path is empty.
func writeFrame(path string, df dataframe.DataFrame) error {
	if path == "" {
		return export.WriteCSV(os.Stdout, df)
	}
	f, err := os.Create(path) //nolint:gosec // CLI tool writes to user-provided path
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := export.WriteCSV(f, df); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
