// Package cases wraps one precipitation event's profile cube with the state
// derived from it: the prepared and scaled classification tables, the
// assigned classes and the scheme used to produce them.
package cases

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/couchcryptid/storm-vp-classifier/internal/domain"
	"github.com/couchcryptid/storm-vp-classifier/internal/prep"
	"github.com/couchcryptid/storm-vp-classifier/internal/scaling"
	"github.com/couchcryptid/storm-vp-classifier/internal/scheme"
)

var errNoScheme = errors.New("case has no classification scheme")

// Case is one precipitation event. Classes are computed lazily and cached;
// assigning a new scheme leaves them as they are until Classify runs again.
type Case struct {
	Data         *domain.Cube
	ClData       *domain.Table
	ClDataScaled *domain.Table
	Classes      *domain.ClassSeries
	Scheme       *scheme.Scheme
	Temperature  *domain.Features

	id         string
	preparedBy *scheme.Scheme
}

// Option configures a Case.
type Option func(*Case)

// WithScheme assigns the classification scheme.
func WithScheme(s *scheme.Scheme) Option {
	return func(c *Case) { c.Scheme = s }
}

// WithTemperature attaches a surface temperature series.
func WithTemperature(f *domain.Features) Option {
	return func(c *Case) { c.Temperature = f }
}

// WithID overrides the date-range based name.
func WithID(id string) Option {
	return func(c *Case) { c.id = id }
}

// New creates a case around data.
func New(data *domain.Cube, opts ...Option) *Case {
	c := &Case{Data: data}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Combine concatenates the cubes and temperature series of several cases
// into one case, typically for training.
func Combine(cs []*Case, opts ...Option) (*Case, error) {
	if len(cs) == 0 {
		return nil, errors.New("combine cases: nothing to combine")
	}
	cubes := make([]*domain.Cube, len(cs))
	var temps []*domain.Features
	for i, c := range cs {
		cubes[i] = c.Data
		if c.Temperature != nil {
			temps = append(temps, c.Temperature)
		}
	}
	data, err := domain.ConcatTime(cubes...)
	if err != nil {
		return nil, fmt.Errorf("combine cases: %w", err)
	}
	combined := New(data, opts...)
	if len(temps) == len(cs) && combined.Temperature == nil {
		if combined.Temperature, err = domain.ConcatFeatures(temps...); err != nil {
			return nil, fmt.Errorf("combine cases: %w", err)
		}
	}
	return combined, nil
}

// Name is the case id: the explicit id if set, otherwise a compact date
// range such as 140221 or 140221-22.
func (c *Case) Name() string {
	if c.id != "" {
		return c.id
	}
	return DateRangeID(c.Start(), c.End())
}

// Start is the first timestamp of the case.
func (c *Case) Start() time.Time { return c.Data.Start() }

// End is the last timestamp of the case.
func (c *Case) End() time.Time { return c.Data.End() }

// MeanDelta is the mean time step rounded to the minute.
func (c *Case) MeanDelta() time.Duration { return c.Data.MeanDelta().Round(time.Minute) }

// PrepareClData builds and caches the classification table using the
// assigned scheme's options.
func (c *Case) PrepareClData() (*domain.Table, error) {
	if c.Scheme == nil {
		return nil, errNoScheme
	}
	t, err := prep.Prepare(c.Data, c.Scheme.PrepOptions(), c.Scheme.Parameters())
	if err != nil {
		return nil, fmt.Errorf("case %s: %w", c.Name(), err)
	}
	c.ClData = t
	c.ClDataScaled = nil
	c.preparedBy = c.Scheme
	return t, nil
}

// ScaleClData returns the cached scaled table, preparing it if needed.
func (c *Case) ScaleClData() (*domain.Table, error) {
	if c.ClData == nil || c.preparedBy != c.Scheme {
		if _, err := c.PrepareClData(); err != nil {
			return nil, err
		}
	}
	if c.ClDataScaled != nil {
		return c.ClDataScaled, nil
	}
	scaled, err := scaling.New(c.Scheme.Parameters()).ScaleTable(c.ClData)
	if err != nil {
		return nil, fmt.Errorf("case %s: %w", c.Name(), err)
	}
	c.ClDataScaled = scaled
	return scaled, nil
}

// Classify assigns classes with s, or with the current scheme when s is
// nil, and caches them. Surface temperature is passed when the scheme was
// trained with extra features.
func (c *Case) Classify(ctx context.Context, s *scheme.Scheme) (domain.ClassSeries, error) {
	if s != nil {
		c.Scheme = s
	}
	if c.Scheme == nil {
		return domain.ClassSeries{}, errNoScheme
	}
	scaled, err := c.ScaleClData()
	if err != nil {
		return domain.ClassSeries{}, err
	}
	var extra *domain.Features
	if len(c.Scheme.Metadata().ExtraNames) > 0 {
		extra = c.Temperature
	}
	classes, err := c.Scheme.Classify(ctx, scaled, extra)
	if err != nil {
		return domain.ClassSeries{}, fmt.Errorf("case %s: %w", c.Name(), err)
	}
	c.Classes = &classes
	return classes, nil
}

// Train trains the assigned scheme on this case, with surface temperature
// as an extra feature when useTemperature is set.
func (c *Case) Train(ctx context.Context, useTemperature bool) error {
	if c.Scheme == nil {
		return errNoScheme
	}
	var extra *domain.Features
	if useTemperature {
		if c.Temperature == nil {
			return fmt.Errorf("case %s: %w: no surface temperature", c.Name(), domain.ErrShape)
		}
		extra = c.Temperature
	}
	scaled, err := c.ScaleClData()
	if err != nil {
		return err
	}
	if err := c.Scheme.Train(ctx, scaled, extra); err != nil {
		return fmt.Errorf("case %s: %w", c.Name(), err)
	}
	train, err := c.Scheme.TrainingResult()
	if err != nil {
		return err
	}
	c.Classes = &train
	return nil
}

// Centroids returns the scheme's cluster centroids in physical units and
// a display order. With sortBy naming an extra feature, clusters are
// ordered by that feature ascending; otherwise by index.
func (c *Case) Centroids(sortBy string) (*domain.Centroids, []int, error) {
	if c.Scheme == nil {
		return nil, nil, errNoScheme
	}
	cent, err := c.Scheme.ClusterCentroids()
	if err != nil {
		return nil, nil, err
	}
	order := make([]int, cent.K())
	for i := range order {
		order[i] = i
	}
	if sortBy == "" {
		return cent, order, nil
	}
	col, ok := cent.ExtraColumn(sortBy)
	if !ok {
		return nil, nil, fmt.Errorf("sort centroids: no extra feature %q", sortBy)
	}
	sort.SliceStable(order, func(i, j int) bool { return col[order[i]] < col[order[j]] })
	return cent, order, nil
}

// ClassCounts counts time steps per class.
func (c *Case) ClassCounts() (map[int]int, error) {
	if c.Classes == nil {
		return nil, fmt.Errorf("case %s: not classified", c.Name())
	}
	return c.Classes.Counts(), nil
}

// DateRangeID formats a compact yymmdd id, collapsing the shared prefix of
// a range: 140221, 140221-22, 140228-0301, 141231-150101.
func DateRangeID(start, end time.Time) string {
	s := start.UTC().Format("060102")
	if end.IsZero() {
		return s
	}
	e := end.UTC().Format("060102")
	switch {
	case s == e:
		return s
	case s[:4] == e[:4]:
		return s + "-" + e[4:]
	case s[:2] == e[:2]:
		return s + "-" + e[2:]
	default:
		return s + "-" + e
	}
}
