// Package scheme implements the vertical profile classification scheme:
// a PCA basis plus a k-means model trained on scaled radar profiles, with
// the metadata needed to prepare new data the same way.
//
// A Scheme is not safe for concurrent use. Train mutates it; callers must
// not classify from other goroutines while training.
package scheme

import (
	"fmt"
	"time"

	"github.com/couchcryptid/storm-vp-classifier/internal/domain"
	"github.com/couchcryptid/storm-vp-classifier/internal/kmeans"
	"github.com/couchcryptid/storm-vp-classifier/internal/pca"
	"github.com/couchcryptid/storm-vp-classifier/internal/prep"
	"github.com/couchcryptid/storm-vp-classifier/internal/scaling"
)

// State is the lifecycle stage of a scheme.
type State int

const (
	Untrained State = iota
	Trained
	Loaded
)

func (s State) String() string {
	switch s {
	case Untrained:
		return "untrained"
	case Trained:
		return "trained"
	case Loaded:
		return "loaded"
	default:
		return "unknown"
	}
}

// Config describes how a scheme is trained.
type Config struct {
	BaseName     string
	Params       []string
	HeightLimits domain.HeightLimits
	ValueCap     *domain.ValueCap

	NEigens int
	// NClusters is used in reduced mode only; full-space mode clusters into
	// NEigens classes seeded by the PCA basis.
	NClusters int
	Reduced   bool
	Whiten    bool

	// RadarWeights scales the columns of a parameter before projection.
	// Missing entries weigh 1.
	RadarWeights map[string]float64
	// ExtraWeight scales extra features appended after projection.
	ExtraWeight float64

	NInit   int
	MaxIter int
	Seed    uint64
}

// DefaultConfig returns a reduced-mode configuration on ZH and the filtered
// polarimetric fields.
func DefaultConfig() Config {
	return Config{
		BaseName:     "vpc",
		Params:       []string{"ZH", "zdr", "kdp"},
		HeightLimits: domain.DefaultHeightLimits(),
		NEigens:      20,
		NClusters:    20,
		Reduced:      true,
		ExtraWeight:  1,
	}
}

// Metadata records what a scheme was actually trained on.
type Metadata struct {
	Params       []string
	HeightLimits domain.HeightLimits
	Heights      []float64
	ExtraNames   []string
	Reduced      bool
	NEigens      int
	NClusters    int
	TrainedAt    time.Time
}

// Scheme is a trainable, persistable classifier.
type Scheme struct {
	cfg    Config
	params domain.ParameterSet
	scaler scaling.Scaler

	pca   *pca.PCA
	km    *kmeans.Model
	meta  Metadata
	state State

	training domain.ClassSeries
}

// New validates cfg against the parameter set and returns an untrained
// scheme.
func New(cfg Config, ps domain.ParameterSet) (*Scheme, error) {
	if len(cfg.Params) == 0 {
		return nil, fmt.Errorf("new scheme: no parameters configured")
	}
	for _, p := range cfg.Params {
		if _, err := ps.Lookup(p); err != nil {
			return nil, fmt.Errorf("new scheme: %w", err)
		}
	}
	if cfg.NEigens < 1 {
		return nil, fmt.Errorf("new scheme: n_eigens must be positive, got %d", cfg.NEigens)
	}
	if cfg.Reduced && cfg.NClusters < 1 {
		return nil, fmt.Errorf("new scheme: n_clusters must be positive, got %d", cfg.NClusters)
	}
	if cfg.ExtraWeight == 0 {
		cfg.ExtraWeight = 1
	}
	if cfg.BaseName == "" {
		cfg.BaseName = "vpc"
	}
	return &Scheme{cfg: cfg, params: ps, scaler: scaling.New(ps)}, nil
}

// Config returns the training configuration.
func (s *Scheme) Config() Config { return s.cfg }

// State reports the lifecycle stage.
func (s *Scheme) State() State { return s.state }

// Metadata returns what the scheme was trained on.
func (s *Scheme) Metadata() Metadata { return s.meta }

// Parameters returns the parameter set the scheme scales with.
func (s *Scheme) Parameters() domain.ParameterSet { return s.params }

// PCA exposes the fitted basis, or nil before training.
func (s *Scheme) PCA() *pca.PCA { return s.pca }

// NClusters is the number of classes the scheme assigns.
func (s *Scheme) NClusters() int {
	if s.km != nil {
		return s.km.K()
	}
	if s.cfg.Reduced {
		return s.cfg.NClusters
	}
	return s.cfg.NEigens
}

// Name is the conventional artifact name,
// {base}_{eigens}eig{clusters}clus with a _reduced suffix in reduced mode.
func (s *Scheme) Name() string {
	return Name(s.cfg.BaseName, s.cfg.NEigens, s.NClusters(), s.cfg.Reduced)
}

// Name formats a scheme name from its parts.
func Name(base string, nEigens, nClusters int, reduced bool) string {
	suffix := ""
	if reduced {
		suffix = "_reduced"
	}
	return fmt.Sprintf("%s_%deig%dclus%s", base, nEigens, nClusters, suffix)
}

// PrepOptions returns the preparation options for new data: the trained
// parameters and height window once trained, the configuration before.
func (s *Scheme) PrepOptions() prep.Options {
	if s.state == Untrained {
		return prep.Options{Params: s.cfg.Params, HeightLimits: s.cfg.HeightLimits, ValueCap: s.cfg.ValueCap}
	}
	return prep.Options{Params: s.meta.Params, HeightLimits: s.meta.HeightLimits, ValueCap: s.cfg.ValueCap}
}

// TrainingResult returns the class of every training time step.
func (s *Scheme) TrainingResult() (domain.ClassSeries, error) {
	if s.state == Untrained {
		return domain.ClassSeries{}, domain.ErrNotTrained
	}
	return s.training, nil
}

func (s *Scheme) radarWeight(param string) float64 {
	if w, ok := s.cfg.RadarWeights[param]; ok && w > 0 {
		return w
	}
	return 1
}
