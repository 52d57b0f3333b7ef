package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"

	httpadapter "github.com/couchcryptid/storm-vp-classifier/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/storm-vp-classifier/internal/adapter/kafka"
	"github.com/couchcryptid/storm-vp-classifier/internal/adapter/sqlite"
	"github.com/couchcryptid/storm-vp-classifier/internal/filtering"
	"github.com/couchcryptid/storm-vp-classifier/internal/pipeline"
)

func runClassify(ctx context.Context, env *environment, args []string) error {
	fs := flag.NewFlagSet("classify", flag.ContinueOnError)
	name := fs.String("scheme", "", "name of the stored scheme")
	noFilter := fs.Bool("no-filter", false, "skip despeckling and clutter filtering")
	if err := fs.Parse(args); err != nil {
		return err
	}
	refs, err := caseRefs(fs.Args())
	if err != nil {
		return err
	}
	s, err := env.loadScheme(ctx, *name)
	if err != nil {
		return err
	}

	var loaders pipeline.MultiLoader
	if env.cfg.ResultsDB != "" {
		db, err := sqlite.Open(env.cfg.ResultsDB)
		if err != nil {
			return err
		}
		env.closers = append(env.closers, db)
		loaders = append(loaders, db)
	}
	if env.cfg.KafkaEnabled {
		w := kafkaadapter.NewWriter(env.cfg, env.logger)
		env.closers = append(env.closers, w)
		loaders = append(loaders, w)
	}
	if len(loaders) == 0 {
		loaders = append(loaders, pipeline.JSONLoader{W: os.Stdout})
	}

	var filter *filtering.Config
	if !*noFilter {
		f := filtering.DefaultConfig()
		filter = &f
	}
	classifier := pipeline.NewClassifier(s, env.params, filter, env.logger)
	p := pipeline.New(env.source, classifier, loaders, env.logger, env.metrics, env.cfg.BatchSize)

	if env.cfg.HTTPAddr != "" {
		srv := httpadapter.NewServer(env.cfg.HTTPAddr, p, env.logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				env.logger.Error("http server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), env.cfg.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				env.logger.Error("http server shutdown error", "error", err)
			}
		}()
	}

	summary, err := p.Run(ctx, refs)
	if err != nil {
		return err
	}
	if summary.Classified == 0 {
		return errors.New("no case could be classified")
	}
	return nil
}
