// Command validate performs end-to-end integrity checks on a set of case
// files and, optionally, the classification results produced from them.
// It verifies the scaling round trip, the filtering masks, training and
// reclassification consistency, centroid reconstruction, and scheme
// persistence through the file store.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -cases-dir data/mock \
//	  -results-json data/mock/results.json
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/storm-vp-classifier/internal/adapter/cubefile"
	"github.com/couchcryptid/storm-vp-classifier/internal/adapter/filestore"
	"github.com/couchcryptid/storm-vp-classifier/internal/cases"
	"github.com/couchcryptid/storm-vp-classifier/internal/domain"
	"github.com/couchcryptid/storm-vp-classifier/internal/filtering"
	"github.com/couchcryptid/storm-vp-classifier/internal/scaling"
	"github.com/couchcryptid/storm-vp-classifier/internal/scheme"
	"github.com/jonboulle/clockwork"
)

// fixedNow matches the genmock clock so ProcessedAt can be checked.
var fixedNow = time.Date(2014, time.March, 23, 0, 0, 0, 0, time.UTC)

var rawFields = []string{"ZH", "ZDR", "KDP"}

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// loadedCase is a case file with its raw contents.
type loadedCase struct {
	id   string
	cube *domain.Cube
	temp *domain.Features
}

func main() {
	casesDir := flag.String("cases-dir", "", "directory containing case JSON files")
	resultsJSON := flag.String("results-json", "", "optional newline-delimited classification results")
	nEigens := flag.Int("neig", 6, "eigenvectors for the validation scheme")
	nClusters := flag.Int("nclus", 4, "clusters for the validation scheme")
	flag.Parse()

	if *casesDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*casesDir, *resultsJSON, *nEigens, *nClusters); code != 0 {
		os.Exit(code)
	}
}

func run(casesDir, resultsPath string, nEigens, nClusters int) int {
	domain.SetClock(clockwork.NewFakeClockAt(fixedNow))
	defer domain.SetClock(nil)
	ctx := context.Background()
	ps := domain.DefaultParameterSet()
	fcfg := filtering.DefaultConfig()

	// ── Load all data sources ──
	fmt.Println("=== Vertical Profile Classification Validation ===")
	fmt.Println()

	loaded, err := loadCases(casesDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load cases: %v\n", err)
		return 1
	}

	var results []domain.CaseResult
	if resultsPath != "" {
		if results, err = loadResults(resultsPath); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load results: %v\n", err)
			return 1
		}
	}

	// ── Run validation phases ──
	phases := []*phase{
		validateInputs(loaded),
		validateScaling(loaded, ps),
		validateDespeckle(loaded, ps, fcfg),
		validateClutter(loaded, ps, fcfg),
	}
	trained, p := validateTraining(ctx, loaded, ps, fcfg, nEigens, nClusters)
	phases = append(phases, p)
	if trained != nil {
		phases = append(phases,
			validateCentroids(trained),
			validatePersistence(ctx, trained, loaded, ps, fcfg),
		)
	}
	if results != nil {
		phases = append(phases, validateResults(results, loaded))
	}

	// ── Report results ──
	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Cases: %d, profiles: %d, results: %d\n", len(loaded), countProfiles(loaded), len(results))

	// Print detailed errors.
	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Data loading ──

func loadCases(dir string) ([]loadedCase, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	var out []loadedCase
	for _, path := range paths {
		f, err := os.Open(path) //nolint:gosec // CLI tool reads user-provided paths
		if err != nil {
			return nil, err
		}
		cube, temp, err := cubefile.Read(f)
		_ = f.Close()
		if err != nil || len(cube.Fields()) == 0 {
			// Results files may share the directory; skip anything that is not a cube.
			continue
		}
		out = append(out, loadedCase{id: strings.TrimSuffix(filepath.Base(path), ".json"), cube: cube, temp: temp})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no case files in %s", dir)
	}
	return out, nil
}

func loadResults(path string) ([]domain.CaseResult, error) {
	f, err := os.Open(path) //nolint:gosec // CLI tool reads user-provided paths
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []domain.CaseResult
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 1<<20), 64<<20)
	for line := 1; sc.Scan(); line++ {
		if len(strings.TrimSpace(sc.Text())) == 0 {
			continue
		}
		var r domain.CaseResult
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, r)
	}
	return out, sc.Err()
}

func countProfiles(cs []loadedCase) int {
	n := 0
	for _, c := range cs {
		n += len(c.cube.Times)
	}
	return n
}

// ── Phase 1: inputs ──

func validateInputs(cs []loadedCase) *phase {
	p := &phase{name: "Input cubes"}
	first := cs[0].cube
	for _, c := range cs {
		for _, f := range rawFields {
			if !c.cube.HasField(f) {
				p.errorf("%s: missing field %s", c.id, f)
			}
		}
		if !floatsEqual(c.cube.Heights, first.Heights) {
			p.errorf("%s: height grid differs from %s", c.id, cs[0].id)
		}
		for i := 1; i < len(c.cube.Heights); i++ {
			if c.cube.Heights[i] <= c.cube.Heights[i-1] {
				p.errorf("%s: heights not increasing at bin %d", c.id, i)
				break
			}
		}
		for i := 1; i < len(c.cube.Times); i++ {
			if !c.cube.Times[i].After(c.cube.Times[i-1]) {
				p.errorf("%s: times not increasing at step %d", c.id, i)
				break
			}
		}
		if c.temp == nil {
			p.errorf("%s: no %s series", c.id, domain.TemperatureFeature)
		} else if len(c.temp.Times) != len(c.cube.Times) {
			p.errorf("%s: %d temperature steps for %d profiles", c.id, len(c.temp.Times), len(c.cube.Times))
		}
	}
	return p
}

// ── Phase 2: scaling ──

func validateScaling(cs []loadedCase, ps domain.ParameterSet) *phase {
	p := &phase{name: "Scaling round trip"}
	sc := scaling.New(ps)
	for _, c := range cs {
		scaled, err := sc.ScaleCube(c.cube)
		if err != nil {
			p.errorf("%s: scale: %v", c.id, err)
			continue
		}
		back, err := sc.UnscaleCube(scaled)
		if err != nil {
			p.errorf("%s: unscale: %v", c.id, err)
			continue
		}
		for _, f := range rawFields {
			orig, _ := c.cube.Field(f)
			got, _ := back.Field(f)
			if h, t, ok := firstMismatch(orig, got, 1e-9); !ok {
				p.errorf("%s %s: round trip differs at height %d step %d", c.id, f, h, t)
			}
		}
	}
	return p
}

// ── Phase 3: despeckling ──

func validateDespeckle(cs []loadedCase, ps domain.ParameterSet, cfg filtering.Config) *phase {
	p := &phase{name: "Despeckle null masks"}
	for _, c := range cs {
		out, err := filtering.Despeckle(c.cube, ps, cfg)
		if err != nil {
			p.errorf("%s: %v", c.id, err)
			continue
		}
		for src := range cfg.Despeckle {
			orig, _ := c.cube.Field(src)
			work, ok := out.Field(strings.ToLower(src))
			if !ok {
				p.errorf("%s: no working field for %s", c.id, src)
				continue
			}
			for h := range orig {
				for t := range orig[h] {
					if math.IsNaN(orig[h][t]) != math.IsNaN(work[h][t]) {
						p.errorf("%s %s: null mask changed at height %d step %d", c.id, src, h, t)
					}
				}
			}
		}
		if _, h, ok := firstFieldMismatch(c.cube, out, rawFields); !ok {
			p.errorf("%s: despeckling modified source field %s", c.id, h)
		}
	}
	return p
}

// ── Phase 4: ground clutter ──

func validateClutter(cs []loadedCase, ps domain.ParameterSet, cfg filtering.Config) *phase {
	p := &phase{name: "Ground clutter confined to crop"}
	for _, c := range cs {
		despeckled, err := filtering.Despeckle(c.cube, ps, cfg)
		if err != nil {
			p.errorf("%s: %v", c.id, err)
			continue
		}
		out, err := filtering.GroundClutter(despeckled, ps, cfg)
		if err != nil {
			p.errorf("%s: %v", c.id, err)
			continue
		}
		crop := min(cfg.Clutter.Crop, cfg.Clutter.FilterHeight, len(c.cube.Heights))
		for src := range cfg.Clutter.Thresholds {
			work := strings.ToLower(src)
			before, _ := despeckled.Field(work)
			after, _ := out.Field(work)
			if h, t, ok := firstMismatch(before[crop:], after[crop:], 0); !ok {
				p.errorf("%s %s: bin %d step %d above crop changed", c.id, work, h+crop, t)
			}
		}
	}
	return p
}

// ── Phase 5: training ──

func validateTraining(ctx context.Context, cs []loadedCase, ps domain.ParameterSet, fcfg filtering.Config, nEigens, nClusters int) (*scheme.Scheme, *phase) {
	p := &phase{name: "Training and reclassification"}

	cfg := scheme.DefaultConfig()
	cfg.BaseName = "validate"
	cfg.NEigens = nEigens
	cfg.NClusters = nClusters
	cfg.Seed = 1
	s, err := scheme.New(cfg, ps)
	if err != nil {
		p.errorf("new scheme: %v", err)
		return nil, p
	}

	prepared := make([]*cases.Case, 0, len(cs))
	for _, c := range cs {
		data, err := filtering.Prepare(c.cube, ps, fcfg)
		if err != nil {
			p.errorf("%s: prepare: %v", c.id, err)
			return nil, p
		}
		prepared = append(prepared, cases.New(data, cases.WithTemperature(c.temp), cases.WithID(c.id)))
	}
	all, err := cases.Combine(prepared, cases.WithScheme(s))
	if err != nil {
		p.errorf("combine: %v", err)
		return nil, p
	}
	if err := all.Train(ctx, false); err != nil {
		p.errorf("train: %v", err)
		return nil, p
	}

	train, err := s.TrainingResult()
	if err != nil {
		p.errorf("training result: %v", err)
		return nil, p
	}
	if train.Len() != len(all.Data.Times) {
		p.errorf("%d training labels for %d profiles", train.Len(), len(all.Data.Times))
	}

	again, err := all.Classify(ctx, nil)
	if err != nil {
		p.errorf("reclassify: %v", err)
		return s, p
	}
	for i := range train.Labels {
		if i < again.Len() && train.Labels[i] != again.Labels[i] {
			p.errorf("profile %d: trained as %d, reclassified as %d", i, train.Labels[i], again.Labels[i])
		}
	}
	for _, l := range again.Labels {
		if l < 0 || l >= s.NClusters() {
			p.errorf("label %d outside [0, %d)", l, s.NClusters())
			break
		}
	}
	return s, p
}

// ── Phase 6: centroids ──

func validateCentroids(s *scheme.Scheme) *phase {
	p := &phase{name: "Centroid reconstruction"}
	cent, err := s.ClusterCentroids()
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	if cent.K() != s.NClusters() {
		p.errorf("%d centroids, scheme has %d clusters", cent.K(), s.NClusters())
	}
	sc := scaling.New(s.Parameters())
	for _, param := range cent.Params {
		for k, prof := range cent.Profiles[param] {
			if len(prof) != len(cent.Heights) {
				p.errorf("%s class %d: %d values for %d heights", param, k, len(prof), len(cent.Heights))
				continue
			}
			for h, v := range prof {
				scaled, err := sc.Scale(param, v)
				if err != nil || math.IsNaN(scaled) || scaled < -0.5 || scaled > 1.5 {
					p.errorf("%s class %d height %g: value %g out of range", param, k, cent.Heights[h], v)
				}
			}
		}
	}
	return p
}

// ── Phase 7: persistence ──

func validatePersistence(ctx context.Context, s *scheme.Scheme, cs []loadedCase, ps domain.ParameterSet, fcfg filtering.Config) *phase {
	p := &phase{name: "Scheme persistence round trip"}
	dir, err := os.MkdirTemp("", "vpc-validate-*")
	if err != nil {
		p.errorf("temp dir: %v", err)
		return p
	}
	defer os.RemoveAll(dir)

	st, err := filestore.New(dir)
	if err != nil {
		p.errorf("file store: %v", err)
		return p
	}
	if err := s.Save(ctx, st, ""); err != nil {
		p.errorf("save: %v", err)
		return p
	}
	loaded, err := scheme.Load(ctx, st, s.Name())
	if err != nil {
		p.errorf("load: %v", err)
		return p
	}
	if loaded.State() != scheme.Loaded {
		p.errorf("loaded scheme state %s", loaded.State())
	}
	if !loaded.Metadata().TrainedAt.Equal(fixedNow) {
		p.errorf("trained at %s, want %s", loaded.Metadata().TrainedAt, fixedNow)
	}

	for _, c := range cs {
		data, err := filtering.Prepare(c.cube, ps, fcfg)
		if err != nil {
			p.errorf("%s: prepare: %v", c.id, err)
			continue
		}
		want, err := s.Classify(ctx, data, nil)
		if err != nil {
			p.errorf("%s: classify: %v", c.id, err)
			continue
		}
		got, err := loaded.Classify(ctx, data, nil)
		if err != nil {
			p.errorf("%s: classify with loaded scheme: %v", c.id, err)
			continue
		}
		for i := range want.Labels {
			if want.Labels[i] != got.Labels[i] {
				p.errorf("%s profile %d: %d before save, %d after load", c.id, i, want.Labels[i], got.Labels[i])
				break
			}
		}
	}
	return p
}

// ── Phase 8: results ──

func validateResults(results []domain.CaseResult, cs []loadedCase) *phase {
	p := &phase{name: "Classification results"}
	byID := make(map[string]loadedCase, len(cs))
	for _, c := range cs {
		byID[c.id] = c
	}
	for i, r := range results {
		c, ok := byID[r.CaseID]
		if !ok {
			p.errorf("result %d: unknown case %q", i, r.CaseID)
			continue
		}
		if r.Scheme == "" {
			p.errorf("%s: no scheme name", r.CaseID)
		}
		if len(r.Classes.Times) != len(r.Classes.Labels) {
			p.errorf("%s: %d times for %d labels", r.CaseID, len(r.Classes.Times), len(r.Classes.Labels))
		}
		if r.Classes.Len() != len(c.cube.Times) {
			p.errorf("%s: %d labels for %d profiles", r.CaseID, r.Classes.Len(), len(c.cube.Times))
		}
		total := 0
		for class, n := range r.Counts {
			total += n
			if n != r.Classes.Counts()[class] {
				p.errorf("%s: class %d counted %d, labels have %d", r.CaseID, class, n, r.Classes.Counts()[class])
			}
		}
		if total != r.Classes.Len() {
			p.errorf("%s: counts sum to %d, want %d", r.CaseID, total, r.Classes.Len())
		}
		for j, ts := range r.Classes.Times {
			if j < len(c.cube.Times) && !ts.Equal(domain.RoundTime(c.cube.Times[j])) {
				p.errorf("%s step %d: result time %s, cube time %s", r.CaseID, j, ts, c.cube.Times[j])
				break
			}
		}
		if !r.ProcessedAt.Equal(fixedNow) {
			p.errorf("%s: processed_at %s, want %s", r.CaseID, r.ProcessedAt, fixedNow)
		}
	}
	return p
}

// ── Helpers ──

func firstMismatch(a, b [][]float64, tol float64) (int, int, bool) {
	if len(a) != len(b) {
		return len(b), 0, false
	}
	for h := range a {
		if len(a[h]) != len(b[h]) {
			return h, len(b[h]), false
		}
		for t := range a[h] {
			x, y := a[h][t], b[h][t]
			if math.IsNaN(x) && math.IsNaN(y) {
				continue
			}
			if math.IsNaN(x) != math.IsNaN(y) || math.Abs(x-y) > tol {
				return h, t, false
			}
		}
	}
	return 0, 0, true
}

func firstFieldMismatch(a, b *domain.Cube, fields []string) (int, string, bool) {
	for i, f := range fields {
		x, _ := a.Field(f)
		y, _ := b.Field(f)
		if _, _, ok := firstMismatch(x, y, 0); !ok {
			return i, f, false
		}
	}
	return 0, "", true
}

func floatsEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
