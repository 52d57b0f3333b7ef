package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/storm-vp-classifier/internal/cases"
	"github.com/couchcryptid/storm-vp-classifier/internal/domain"
	"github.com/couchcryptid/storm-vp-classifier/internal/filtering"
	"github.com/couchcryptid/storm-vp-classifier/internal/scheme"
)

// SchemeClassifier implements Classifier with a trained scheme, running the
// filtering chain first when a filter config is set.
type SchemeClassifier struct {
	scheme *scheme.Scheme
	params domain.ParameterSet
	filter *filtering.Config
	logger *slog.Logger
}

// NewClassifier creates a SchemeClassifier. Pass a nil filter to classify
// cubes as loaded.
func NewClassifier(s *scheme.Scheme, ps domain.ParameterSet, filter *filtering.Config, logger *slog.Logger) *SchemeClassifier {
	return &SchemeClassifier{scheme: s, params: ps, filter: filter, logger: logger}
}

func (c *SchemeClassifier) Classify(ctx context.Context, ref domain.CaseRef, cube *domain.Cube, temp *domain.Features) (domain.CaseResult, error) {
	data, err := Filter(cube, c.params, c.filter)
	if err != nil {
		return domain.CaseResult{}, err
	}

	cs := cases.New(data, cases.WithScheme(c.scheme), cases.WithTemperature(temp), cases.WithID(ref.ID))
	classes, err := cs.Classify(ctx, nil)
	if err != nil {
		return domain.CaseResult{}, err
	}
	c.logger.Debug("case classified", "case_id", cs.Name(), "scheme", c.scheme.Name(), "profiles", classes.Len())

	return domain.CaseResult{
		CaseID:      cs.Name(),
		Scheme:      c.scheme.Name(),
		Classes:     classes,
		Counts:      classes.Counts(),
		ProcessedAt: domain.Now(),
	}, nil
}

// Filter runs the pre-classification chain when cfg is set.
func Filter(cube *domain.Cube, ps domain.ParameterSet, cfg *filtering.Config) (*domain.Cube, error) {
	if cfg == nil {
		return cube, nil
	}
	out, err := filtering.Prepare(cube, ps, *cfg)
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	return out, nil
}

// LoadCases loads and optionally filters every referenced case. Unlike
// Run, any failure is returned: training needs the full set.
func LoadCases(ctx context.Context, src CubeSource, refs []domain.CaseRef, ps domain.ParameterSet, filter *filtering.Config) ([]*cases.Case, error) {
	out := make([]*cases.Case, 0, len(refs))
	for _, ref := range refs {
		cube, temp, err := src.LoadCube(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("load case %s: %w", ref.ID, err)
		}
		data, err := Filter(cube, ps, filter)
		if err != nil {
			return nil, fmt.Errorf("case %s: %w", ref.ID, err)
		}
		opts := []cases.Option{cases.WithTemperature(temp)}
		if ref.ID != "" {
			opts = append(opts, cases.WithID(ref.ID))
		}
		out = append(out, cases.New(data, opts...))
	}
	return out, nil
}
