package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/couchcryptid/storm-vp-classifier/internal/domain"
)

// MultiLoader fans results out to several loaders. Every loader is tried;
// the errors are joined.
type MultiLoader []ResultLoader

func (m MultiLoader) LoadResults(ctx context.Context, results []domain.CaseResult) error {
	var errs []error
	for _, l := range m {
		if err := l.LoadResults(ctx, results); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// JSONLoader writes one JSON document per result, newline separated.
type JSONLoader struct {
	W io.Writer
}

func (j JSONLoader) LoadResults(_ context.Context, results []domain.CaseResult) error {
	enc := json.NewEncoder(j.W)
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode result %s: %w", r.CaseID, err)
		}
	}
	return nil
}
