// Package filtering cleans raw polarimetric profiles before classification:
// median despeckling, ground clutter correction near the surface, and
// derivation of differential phase from KDP.
//
// Every exported function leaves its input cube untouched and returns a
// filtered copy.
package filtering

import "sort"

// Window is a median filter footprint in height bins × time bins.
type Window struct {
	Height int
	Time   int
}

// ClutterConfig controls ground clutter correction.
type ClutterConfig struct {
	// Thresholds maps a source field (ZDR, KDP) to the value above which a
	// low-level bin is considered clutter.
	Thresholds map[string]float64

	// FilterHeight is the number of bottom bins fed to the median filter.
	FilterHeight int

	// Crop is the number of bottom bins that may be replaced.
	Crop int

	Window Window
}

// Config holds the fixed filtering constants.
type Config struct {
	// Despeckle maps a source field to its median window. Filtering runs on
	// the lower-cased working copy.
	Despeckle map[string]Window

	Clutter ClutterConfig

	// PhaseSource is integrated into PhaseField. KDPMax caps KDP.
	PhaseSource string
	PhaseField  string
	KDPMax      float64
}

// DefaultConfig returns the constants tuned for 50 m gate spacing.
func DefaultConfig() Config {
	return Config{
		Despeckle: map[string]Window{
			"ZDR": {Height: 5, Time: 1},
			"KDP": {Height: 20, Time: 1},
		},
		Clutter: ClutterConfig{
			Thresholds:   map[string]float64{"ZDR": 3.5, "KDP": 0.22},
			FilterHeight: 35,
			Crop:         20,
			Window:       Window{Height: 22, Time: 2},
		},
		PhaseSource: "KDP",
		PhaseField:  "phidp",
		KDPMax:      0.5,
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
