package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/couchcryptid/storm-vp-classifier/internal/adapter/export"
	"github.com/couchcryptid/storm-vp-classifier/internal/cases"
	"github.com/couchcryptid/storm-vp-classifier/internal/domain"
	"github.com/couchcryptid/storm-vp-classifier/internal/filtering"
	"github.com/couchcryptid/storm-vp-classifier/internal/pipeline"
	"github.com/couchcryptid/storm-vp-classifier/internal/scheme"
)

func runTrain(ctx context.Context, env *environment, args []string) error {
	def := scheme.DefaultConfig()
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	base := fs.String("name", def.BaseName, "base name of the scheme")
	params := listFlag(def.Params)
	fs.Var(&params, "params", "comma-separated parameters to classify on")
	nEigens := fs.Int("neig", def.NEigens, "number of principal components")
	nClusters := fs.Int("nclus", def.NClusters, "number of clusters in reduced mode")
	reduced := fs.Bool("reduced", def.Reduced, "cluster in the reduced PCA space")
	whiten := fs.Bool("whiten", def.Whiten, "whiten PCA components")
	weights := weightsFlag{}
	fs.Var(weights, "radar-weights", "per-parameter weights, e.g. ZH=1,zdr=0.5")
	extraWeight := fs.Float64("extra-weight", def.ExtraWeight, "weight of extra features")
	useTemp := fs.Bool("use-temperature", false, "add mean surface temperature as an extra feature")
	hMin := fs.Float64("height-min", def.HeightLimits.Lower, "lowest height in metres")
	hMax := fs.Float64("height-max", def.HeightLimits.Upper, "highest height in metres")
	capParam := fs.String("cap-param", "", "parameter whose values above -cap-max are cleared")
	capMax := fs.Float64("cap-max", 0, "cap for -cap-param")
	seed := fs.Uint64("seed", 0, "k-means random seed")
	nInit := fs.Int("ninit", 0, "k-means++ restarts (0 for the default)")
	noFilter := fs.Bool("no-filter", false, "skip despeckling and clutter filtering")
	classesOut := fs.String("classes-out", "", "write the training classes as CSV to this file")
	countsOut := fs.String("counts-out", "", "write the training class counts as CSV to this file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	refs, err := caseRefs(fs.Args())
	if err != nil {
		return err
	}

	cfg := scheme.Config{
		BaseName:     *base,
		Params:       params,
		HeightLimits: domain.HeightLimits{Lower: *hMin, Upper: *hMax},
		NEigens:      *nEigens,
		NClusters:    *nClusters,
		Reduced:      *reduced,
		Whiten:       *whiten,
		RadarWeights: weights,
		ExtraWeight:  *extraWeight,
		NInit:        *nInit,
		Seed:         *seed,
	}
	if *capParam != "" {
		cfg.ValueCap = &domain.ValueCap{Param: *capParam, Max: *capMax}
	}
	s, err := scheme.New(cfg, env.params)
	if err != nil {
		return err
	}

	var filter *filtering.Config
	if !*noFilter {
		f := filtering.DefaultConfig()
		filter = &f
	}
	loaded, err := pipeline.LoadCases(ctx, env.source, refs, env.params, filter)
	if err != nil {
		return err
	}
	training, err := cases.Combine(loaded, cases.WithScheme(s))
	if err != nil {
		return err
	}

	start := time.Now()
	if err := training.Train(ctx, *useTemp); err != nil {
		return err
	}
	env.metrics.TrainDuration.Observe(time.Since(start).Seconds())

	if err := s.Save(ctx, env.store, ""); err != nil {
		return err
	}

	counts, err := training.ClassCounts()
	if err != nil {
		return err
	}
	if *classesOut != "" {
		if err := writeFrame(*classesOut, export.ClassesFrame(*training.Classes)); err != nil {
			return err
		}
	}
	if *countsOut != "" {
		if err := writeFrame(*countsOut, export.CountsFrame(*training.Classes)); err != nil {
			return err
		}
	}
	stats := s.PCA().Stats()
	env.logger.Info("scheme trained",
		"scheme", s.Name(),
		"cases", len(loaded),
		"profiles", len(training.Data.Times),
		"classes", len(counts),
		"explained_variance", fmt.Sprintf("%.3f", stats[len(stats)-1].Cumulative),
		"duration", time.Since(start),
	)
	return nil
}
