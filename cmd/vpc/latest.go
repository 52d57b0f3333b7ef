package main

import (
	"context"
	"errors"
	"flag"

	"github.com/couchcryptid/storm-vp-classifier/internal/adapter/export"
	"github.com/couchcryptid/storm-vp-classifier/internal/adapter/sqlite"
)

// runLatest prints the classes of the most recent run of a case from the
// results database.
func runLatest(ctx context.Context, env *environment, args []string) error {
	fs := flag.NewFlagSet("latest", flag.ContinueOnError)
	caseID := fs.String("case", "", "case id, e.g. 140221")
	counts := fs.Bool("counts", false, "print class counts instead of the class series")
	out := fs.String("out", "", "output CSV file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *caseID == "" {
		return errors.New("-case is required")
	}
	if env.cfg.ResultsDB == "" {
		return errors.New("RESULTS_DB is not set")
	}

	db, err := sqlite.Open(env.cfg.ResultsDB)
	if err != nil {
		return err
	}
	env.closers = append(env.closers, db)

	classes, schemeName, err := db.LatestClasses(ctx, *caseID)
	if err != nil {
		return err
	}
	env.logger.Info("latest classification", "case_id", *caseID, "scheme", schemeName, "profiles", classes.Len())

	if *counts {
		return writeFrame(*out, export.CountsFrame(classes))
	}
	return writeFrame(*out, export.ClassesFrame(classes))
}
