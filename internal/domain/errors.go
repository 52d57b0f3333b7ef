package domain

import "errors"

// Sentinel errors shared by every stage of the classification pipeline.
// Callers wrap them with context and test with errors.Is.
var (
	// ErrUnknownParameter means a parameter has no scaling limits or NaN
	// replacement in the active ParameterSet. It is a configuration error.
	ErrUnknownParameter = errors.New("unknown parameter")

	// ErrNotTrained is returned when classifying or reconstructing centroids
	// with a scheme that has never been trained or loaded.
	ErrNotTrained = errors.New("scheme not trained")

	// ErrShape reports input whose dimensions do not match what the
	// operation or the trained scheme expects.
	ErrShape = errors.New("shape mismatch")

	// ErrNotScheme is returned when a persisted artifact does not decode to a
	// classification scheme.
	ErrNotScheme = errors.New("artifact is not a classification scheme")
)
