package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/couchcryptid/storm-vp-classifier/internal/adapter/cache"
	"github.com/couchcryptid/storm-vp-classifier/internal/adapter/cubefile"
	"github.com/couchcryptid/storm-vp-classifier/internal/adapter/filestore"
	"github.com/couchcryptid/storm-vp-classifier/internal/adapter/netcdf"
	"github.com/couchcryptid/storm-vp-classifier/internal/adapter/s3store"
	"github.com/couchcryptid/storm-vp-classifier/internal/adapter/sqlite"
	"github.com/couchcryptid/storm-vp-classifier/internal/config"
	"github.com/couchcryptid/storm-vp-classifier/internal/domain"
	"github.com/couchcryptid/storm-vp-classifier/internal/observability"
	"github.com/couchcryptid/storm-vp-classifier/internal/pipeline"
	"github.com/couchcryptid/storm-vp-classifier/internal/scheme"
)

// environment bundles what every subcommand needs.
type environment struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	params  domain.ParameterSet
	store   scheme.Store
	source  pipeline.CubeSource
	// lister is set when the backing store can enumerate its schemes.
	lister interface{ List() ([]string, error) }

	closers []io.Closer
}

func newEnvironment(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*environment, error) {
	env := &environment{cfg: cfg, logger: logger, metrics: observability.NewMetrics()}

	params, err := loadParameters(cfg.ParameterTable)
	if err != nil {
		return nil, err
	}
	env.params = params

	store, err := env.openStore(ctx)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.store = cache.NewCachedStore(store, cfg.SchemeCacheSize, env.metrics.SchemeCache)

	switch cfg.CubeFormat {
	case config.FormatNetCDF:
		env.source = netcdf.Source{Fields: cfg.NetCDFFields}
	default:
		env.source = cubefile.Source{}
	}
	return env, nil
}

func (e *environment) openStore(ctx context.Context) (scheme.Store, error) {
	switch e.cfg.SchemeStore {
	case config.StoreSQLite:
		db, err := sqlite.Open(e.cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, db)
		return db, nil
	case config.StoreS3:
		return s3store.New(ctx, s3store.Options{
			Bucket:          e.cfg.S3Bucket,
			Prefix:          e.cfg.S3Prefix,
			Region:          e.cfg.S3Region,
			Endpoint:        e.cfg.S3Endpoint,
			UsePathStyle:    e.cfg.S3UsePathStyle,
			AccessKeyID:     e.cfg.S3AccessKeyID,
			SecretAccessKey: e.cfg.S3SecretKey,
		})
	default:
		fs, err := filestore.New(e.cfg.SchemeDir)
		if err != nil {
			return nil, err
		}
		e.lister = fs
		return fs, nil
	}
}

// Close releases open databases. Safe to call more than once.
func (e *environment) Close() {
	for _, c := range e.closers {
		if err := c.Close(); err != nil {
			e.logger.Error("close error", "error", err)
		}
	}
	e.closers = nil
}

func (e *environment) loadScheme(ctx context.Context, name string) (*scheme.Scheme, error) {
	if name == "" {
		return nil, errors.New("-scheme is required")
	}
	s, err := scheme.Load(ctx, e.store, name)
	if err != nil {
		return nil, err
	}
	if err := checkParameters(s, e.params); err != nil {
		e.logger.Warn("scheme parameter table differs from the configured one", "scheme", name, "error", err)
	}
	return s, nil
}

func loadParameters(path string) (domain.ParameterSet, error) {
	if path == "" {
		return domain.DefaultParameterSet(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return domain.ParameterSet{}, fmt.Errorf("open parameter table: %w", err)
	}
	defer f.Close()
	return domain.LoadParameterSet(f)
}

// checkParameters reports parameters the scheme uses whose scaling limits
// differ from ps. The scheme always scales with its own stored table.
func checkParameters(s *scheme.Scheme, ps domain.ParameterSet) error {
	var errs []error
	for _, name := range s.Metadata().Params {
		want, err := s.Parameters().Lookup(name)
		if err != nil {
			continue
		}
		got, err := ps.Lookup(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if got != want {
			errs = append(errs, fmt.Errorf("parameter %s: scheme has %+v, configured %+v", name, want, got))
		}
	}
	return errors.Join(errs...)
}

// caseRefs turns file arguments into case references. Ids are left empty
// so cases are named by their date range.
func caseRefs(paths []string) ([]domain.CaseRef, error) {
	if len(paths) == 0 {
		return nil, errors.New("no case files given")
	}
	refs := make([]domain.CaseRef, len(paths))
	for i, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		refs[i] = domain.CaseRef{Path: abs}
	}
	return refs, nil
}
