// Command genmock generates synthetic vertical profile cases for tests and
// local runs. Each case mixes stratiform profiles with a melting layer
// bright band and deep convective profiles, plus a mean surface temperature
// series. With -results-out it also trains a reduced scheme on the cases
// and writes the classification results, using the real pipeline packages
// so fixtures match pipeline behaviour.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock -cases 3 -steps 96 \
//	  -results-out data/mock/results.json
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/couchcryptid/storm-vp-classifier/internal/adapter/cubefile"
	"github.com/couchcryptid/storm-vp-classifier/internal/cases"
	"github.com/couchcryptid/storm-vp-classifier/internal/domain"
	"github.com/couchcryptid/storm-vp-classifier/internal/filtering"
	"github.com/couchcryptid/storm-vp-classifier/internal/pipeline"
	"github.com/couchcryptid/storm-vp-classifier/internal/scheme"
	"github.com/jonboulle/clockwork"
)

var baseDate = time.Date(2014, time.February, 21, 0, 0, 0, 0, time.UTC)

const (
	stepInterval  = 15 * time.Minute
	heightSpacing = 50.0
	lowestHeight  = 100.0
	clutterBins   = 6
)

type genConfig struct {
	cases    int
	steps    int
	top      float64
	clutter  float64
	seed     uint64
	gapEvery int
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	outDir := flag.String("out", "", "directory to write case JSON files into")
	resultsOut := flag.String("results-out", "", "optional path for classification results of the generated cases")
	nCases := flag.Int("cases", 3, "number of cases to generate")
	steps := flag.Int("steps", 96, "profiles per case")
	top := flag.Float64("top", 6000, "highest height bin in metres")
	clutter := flag.Float64("clutter", 0.1, "probability of ground clutter in a profile")
	seed := flag.Uint64("seed", 1, "random seed")
	gapEvery := flag.Int("gap-every", 17, "blank every n-th profile (0 disables)")
	flag.Parse()

	if *outDir == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}
	if *nCases < 1 || *steps < 2 {
		return fmt.Errorf("need at least 1 case of 2 steps, got %d cases of %d", *nCases, *steps)
	}
	if *top <= lowestHeight+heightSpacing {
		return fmt.Errorf("-top must be above %g m", lowestHeight+heightSpacing)
	}
	if *clutter < 0 || *clutter > 1 {
		return fmt.Errorf("-clutter must be in [0, 1], got %g", *clutter)
	}
	if err := os.MkdirAll(*outDir, 0o750); err != nil {
		return err
	}

	// Set a fixed clock for reproducible training and processing timestamps.
	domain.SetClock(clockwork.NewFakeClockAt(baseDate.Add(30 * 24 * time.Hour)))
	defer domain.SetClock(nil)

	cfg := genConfig{cases: *nCases, steps: *steps, top: *top, clutter: *clutter, seed: *seed, gapEvery: *gapEvery}
	rng := rand.New(rand.NewPCG(cfg.seed, cfg.seed^0x9e3779b97f4a7c15))

	refs := make([]domain.CaseRef, 0, cfg.cases)
	var regimes []int
	for i := 0; i < cfg.cases; i++ {
		start := baseDate.Add(time.Duration(i) * 24 * time.Hour)
		cube, temp, kinds := generateCase(rng, cfg, start)
		id := cases.DateRangeID(cube.Start(), cube.End())
		path := filepath.Join(*outDir, id+".json")
		if err := writeCase(path, id, cube, temp); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		log.Printf("%s: %d profiles on %d heights", path, len(cube.Times), len(cube.Heights))
		refs = append(refs, domain.CaseRef{ID: id, Path: path})
		regimes = append(regimes, kinds...)
	}

	if *resultsOut != "" {
		if err := writeResults(*resultsOut, refs); err != nil {
			return err
		}
	}

	printStats(regimes)
	return nil
}

// regime kinds
const (
	stratiform = iota
	convective
	gap
)

func generateCase(rng *rand.Rand, cfg genConfig, start time.Time) (*domain.Cube, *domain.Features, []int) {
	var heights []float64
	for h := lowestHeight; h <= cfg.top; h += heightSpacing {
		heights = append(heights, h)
	}
	times := make([]time.Time, cfg.steps)
	for i := range times {
		times[i] = start.Add(time.Duration(i) * stepInterval)
	}

	nh, nt := len(heights), len(times)
	zh := domain.NewField(nh, nt, math.NaN())
	zdr := domain.NewField(nh, nt, math.NaN())
	kdp := domain.NewField(nh, nt, math.NaN())
	temps := make([]float64, nt)
	kinds := make([]int, nt)

	// The case starts cold and stratiform, warms, and turns convective.
	for t := 0; t < nt; t++ {
		frac := float64(t) / float64(nt-1)
		temps[t] = -2 + 8*frac + rng.NormFloat64()*0.3
		kind := stratiform
		if frac > 0.5 {
			kind = convective
		}
		if cfg.gapEvery > 0 && t > 0 && t%cfg.gapEvery == 0 {
			kind = gap
		}
		kinds[t] = kind

		switch kind {
		case stratiform:
			// Melting layer sits where the surface temperature lapses to zero.
			ml := math.Max(300, 1000+temps[t]*150)
			echoTop := math.Min(heights[nh-1], 4000+rng.Float64()*1000)
			for h, z := range heights {
				if z > echoTop {
					continue
				}
				band := math.Exp(-math.Pow((z-ml)/150, 2))
				zh[h][t] = 18 + 10*band - 4*math.Max(0, z-ml)/1000 + rng.NormFloat64()
				zdr[h][t] = 0.3 + 1.2*band + rng.NormFloat64()*0.1
				kdp[h][t] = math.Abs(0.01 + 0.03*band + rng.NormFloat64()*0.005)
			}
		case convective:
			echoTop := math.Min(heights[nh-1], 7000+rng.Float64()*3000)
			for h, z := range heights {
				if z > echoTop {
					continue
				}
				zh[h][t] = 40 - 3*z/1000 + rng.NormFloat64()*2
				zdr[h][t] = math.Max(0, 2-0.3*z/1000) + rng.NormFloat64()*0.2
				kdp[h][t] = math.Abs(0.3-0.04*z/1000) + rng.NormFloat64()*0.02
			}
		}

		if kind != gap && rng.Float64() < cfg.clutter {
			for h := 0; h < clutterBins && h < nh; h++ {
				zdr[h][t] = 4 + rng.Float64()*2
				kdp[h][t] = 0.3 + rng.Float64()*0.2
			}
		}
	}

	cube := domain.NewCube(heights, times)
	for _, f := range []struct {
		name string
		data [][]float64
	}{{"ZH", zh}, {"ZDR", zdr}, {"KDP", kdp}} {
		if err := cube.SetField(f.name, f.data); err != nil {
			panic(err) // grid shapes are built above
		}
	}
	temp, err := domain.NewFeatureSeries(domain.TemperatureFeature, times, temps)
	if err != nil {
		panic(err)
	}
	return cube, temp, kinds
}

func writeCase(path, id string, cube *domain.Cube, temp *domain.Features) error {
	f, err := os.Create(path) //nolint:gosec // CLI tool writes to user-provided path
	if err != nil {
		return err
	}
	if err := cubefile.Write(f, id, cube, temp); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// writeResults trains a small reduced scheme on the generated cases and
// classifies each one with it.
func writeResults(path string, refs []domain.CaseRef) error {
	ctx := context.Background()
	ps := domain.DefaultParameterSet()
	fcfg := filtering.DefaultConfig()
	src := cubefile.Source{}

	loaded, err := pipeline.LoadCases(ctx, src, refs, ps, &fcfg)
	if err != nil {
		return err
	}
	cfg := scheme.DefaultConfig()
	cfg.BaseName = "mock"
	cfg.NEigens = 6
	cfg.NClusters = 4
	cfg.Seed = 1
	s, err := scheme.New(cfg, ps)
	if err != nil {
		return err
	}
	all, err := cases.Combine(loaded, cases.WithScheme(s))
	if err != nil {
		return err
	}
	if err := all.Train(ctx, false); err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	clf := pipeline.NewClassifier(s, ps, &fcfg, logger)
	results := make([]domain.CaseResult, 0, len(refs))
	for _, ref := range refs {
		cube, temp, err := src.LoadCube(ctx, ref)
		if err != nil {
			return err
		}
		res, err := clf.Classify(ctx, ref, cube, temp)
		if err != nil {
			return fmt.Errorf("classify %s: %w", ref.ID, err)
		}
		res.RunID = "mock"
		results = append(results, res)
	}

	f, err := os.Create(path) //nolint:gosec // CLI tool writes to user-provided path
	if err != nil {
		return err
	}
	if err := (pipeline.JSONLoader{W: f}).LoadResults(ctx, results); err != nil {
		_ = f.Close()
		return err
	}
	log.Printf("wrote %d results with scheme %s to %s", len(results), s.Name(), path)
	return f.Close()
}

func printStats(kinds []int) {
	names := map[int]string{stratiform: "stratiform", convective: "convective", gap: "gap"}
	counts := make(map[string]int)
	for _, k := range kinds {
		counts[names[k]]++
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Total profiles: %d\n", len(kinds))
	for _, k := range keys {
		fmt.Printf("  %-10s %d\n", k, counts[k])
	}
}
