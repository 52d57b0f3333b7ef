package scheme

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/couchcryptid/storm-vp-classifier/internal/domain"
	"github.com/couchcryptid/storm-vp-classifier/internal/kmeans"
	"github.com/couchcryptid/storm-vp-classifier/internal/pca"
	"github.com/golang/snappy"
)

const (
	artifactKind    = "vertical-profile-classification"
	artifactVersion = 1
)

// magic prefixes every encoded scheme.
var magic = []byte("VPCS")

// artifact is the persisted form of a scheme: everything needed to
// classify and reconstruct centroids without retraining.
type artifact struct {
	Kind       string
	Version    int
	Config     Config
	Parameters []domain.Parameter
	PCA        *pca.PCA
	KMeans     *kmeans.Model
	Metadata   Metadata

	TrainingTimes  []time.Time
	TrainingLabels []int
}

// MarshalBinary encodes a trained scheme as a snappy-compressed gob
// behind a magic header.
func (s *Scheme) MarshalBinary() ([]byte, error) {
	if s.state == Untrained {
		return nil, fmt.Errorf("encode scheme: %w", domain.ErrNotTrained)
	}
	a := artifact{
		Kind:           artifactKind,
		Version:        artifactVersion,
		Config:         s.cfg,
		Parameters:     s.params.Parameters(),
		PCA:            s.pca,
		KMeans:         s.km,
		Metadata:       s.meta,
		TrainingTimes:  s.training.Times,
		TrainingLabels: s.training.Labels,
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(a); err != nil {
		return nil, fmt.Errorf("encode scheme: %w", err)
	}
	return append(append([]byte(nil), magic...), snappy.Encode(nil, buf.Bytes())...), nil
}

// UnmarshalBinary replaces s with a decoded scheme. Data that is not a
// scheme artifact fails with ErrNotScheme.
func (s *Scheme) UnmarshalBinary(data []byte) error {
	if !bytes.HasPrefix(data, magic) {
		return fmt.Errorf("decode scheme: %w: missing header", domain.ErrNotScheme)
	}
	raw, err := snappy.Decode(nil, data[len(magic):])
	if err != nil {
		return fmt.Errorf("decode scheme: %w: %v", domain.ErrNotScheme, err)
	}
	var a artifact
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&a); err != nil {
		return fmt.Errorf("decode scheme: %w: %v", domain.ErrNotScheme, err)
	}
	if a.Kind != artifactKind {
		return fmt.Errorf("decode scheme: %w: kind %q", domain.ErrNotScheme, a.Kind)
	}
	if a.Version != artifactVersion {
		return fmt.Errorf("decode scheme: unsupported artifact version %d", a.Version)
	}
	if a.PCA == nil || a.KMeans == nil || len(a.KMeans.Centers) == 0 {
		return fmt.Errorf("decode scheme: %w: artifact has no trained model", domain.ErrNotScheme)
	}

	ps := domain.NewParameterSet(a.Parameters...)
	loaded, err := New(a.Config, ps)
	if err != nil {
		return fmt.Errorf("decode scheme: %w", err)
	}
	loaded.pca = a.PCA
	loaded.km = a.KMeans
	loaded.meta = a.Metadata
	loaded.training = domain.ClassSeries{Times: a.TrainingTimes, Labels: a.TrainingLabels}
	loaded.state = Loaded
	*s = *loaded
	return nil
}

// Decode is a convenience wrapper around UnmarshalBinary.
func Decode(data []byte) (*Scheme, error) {
	s := &Scheme{}
	if err := s.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return s, nil
}
