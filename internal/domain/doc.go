// Package domain models vertical radar profile (VP) data for precipitation
// event classification.
//
// # Data Source
//
// Profiles come from vertically pointing or range-height scanning weather
// radars. Each case (one precipitation event) is a [Cube]: a set of named
// fields sampled on a fixed height grid at regularly spaced time steps.
// Cubes are read from JSON fixtures or NetCDF files by the adapters and are
// never mutated by the classification core once prepared.
//
// # Radar Field Conventions
//
// Field names follow the polarimetric radar convention:
//
//	ZH     reflectivity factor, dBZ
//	ZDR    differential reflectivity, dB
//	KDP    specific differential phase, deg/km
//	PHIDP  differential phase, deg (derived from KDP)
//	RHO    co-polar correlation coefficient
//
// Upper-case names are the raw source fields. Lower-case names ("zdr",
// "kdp") are filtered working copies created by the filtering stage; they
// carry their own scaling limits (see [DefaultParameterSet]). Parameter
// lookup tries the exact name first and falls back to the upper-cased name.
//
// Missing measurements are NaN. Before clustering every NaN is replaced by a
// per-parameter fill value so the feature matrix is dense:
//
//	ZH:  -10 dBZ (below detection threshold)
//	ZDR:   0 dB
//	KDP:   0 deg/km
//
// # Scaling
//
// Scaling is deliberately asymmetric: scaled = (raw - lower) / upper and
// raw = scaled*upper + lower. With a zero lower bound this is plain division;
// for ZH the pair (-10, 30) maps -10..20 dBZ onto 0..1. Schemes trained with
// this convention must be reconstructed with the same one.
//
// # Tables
//
// Classification operates on a [Table]: one row per time step with the
// height profiles of every selected parameter concatenated in parameter
// order. Timestamps are rounded to the nearest minute so extra features
// (for example surface temperature) align by exact match.
package domain
