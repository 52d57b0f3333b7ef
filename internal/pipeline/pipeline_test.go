package pipeline_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/storm-vp-classifier/internal/domain"
	"github.com/couchcryptid/storm-vp-classifier/internal/filtering"
	"github.com/couchcryptid/storm-vp-classifier/internal/observability"
	"github.com/couchcryptid/storm-vp-classifier/internal/pipeline"
	"github.com/couchcryptid/storm-vp-classifier/internal/scheme"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2014, time.February, 21, 12, 0, 0, 0, time.UTC)

// --- mocks ---

type mockSource struct {
	cubes map[string]*domain.Cube
}

func (m *mockSource) LoadCube(_ context.Context, ref domain.CaseRef) (*domain.Cube, *domain.Features, error) {
	c, ok := m.cubes[ref.ID]
	if !ok {
		return nil, nil, errors.New("no such case")
	}
	return c, nil, nil
}

type mockLoader struct {
	mu       sync.Mutex
	failures int
	calls    int
	batches  [][]domain.CaseResult
}

func (m *mockLoader) LoadResults(_ context.Context, results []domain.CaseResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failures > 0 {
		m.failures--
		return errors.New("broker unavailable")
	}
	m.batches = append(m.batches, append([]domain.CaseResult(nil), results...))
	return nil
}

func (m *mockLoader) loaded() []domain.CaseResult {
	var out []domain.CaseResult
	for _, b := range m.batches {
		out = append(out, b...)
	}
	return out
}

func newTestMetrics() *observability.Metrics {
	// Use a fresh registry to avoid "already registered" panics in tests.
	return observability.NewMetricsForTesting()
}

// --- fixtures ---

// regimeCube has n steps of convective (ZH ~20 dBZ) or light stratiform
// (ZH ~0 dBZ) profiles on five heights.
func regimeCube(t *testing.T, start time.Time, n int, convective bool) *domain.Cube {
	t.Helper()
	times := make([]time.Time, n)
	for i := range times {
		times[i] = start.Add(time.Duration(i) * 15 * time.Minute)
	}
	base := [3]float64{0, 0.2, 0.01}
	if convective {
		base = [3]float64{20, 1, 0.1}
	}
	c := domain.NewCube([]float64{200, 400, 600, 800, 1000}, times)
	zh := domain.NewField(5, n, 0)
	zdr := domain.NewField(5, n, 0)
	kdp := domain.NewField(5, n, 0)
	for h := range 5 {
		for i := range n {
			zh[h][i] = base[0] + 0.5*math.Sin(float64(h+3*i))
			zdr[h][i] = base[1] + 0.05*math.Cos(float64(2*h+i))
			kdp[h][i] = base[2] + 0.005*math.Sin(float64(h*i))
		}
	}
	require.NoError(t, c.SetField("ZH", zh))
	require.NoError(t, c.SetField("ZDR", zdr))
	require.NoError(t, c.SetField("KDP", kdp))
	return c
}

func trainedScheme(t *testing.T) *scheme.Scheme {
	t.Helper()
	s, err := scheme.New(scheme.Config{
		BaseName:     "test",
		Params:       []string{"ZH", "ZDR", "KDP"},
		HeightLimits: domain.DefaultHeightLimits(),
		NEigens:      4,
		NClusters:    2,
		Reduced:      true,
		ExtraWeight:  1,
		Seed:         1,
	}, domain.DefaultParameterSet())
	require.NoError(t, err)
	train, err := domain.ConcatTime(regimeCube(t, t0, 5, true), regimeCube(t, t0.Add(75*time.Minute), 5, false))
	require.NoError(t, err)
	require.NoError(t, s.Train(context.Background(), train, nil))
	return s
}

func testSource(t *testing.T) *mockSource {
	t.Helper()
	return &mockSource{cubes: map[string]*domain.Cube{
		"conv":  regimeCube(t, t0.AddDate(0, 0, 1), 4, true),
		"strat": regimeCube(t, t0.AddDate(0, 0, 2), 6, false),
		"mixed": func() *domain.Cube {
			c, err := domain.ConcatTime(regimeCube(t, t0.AddDate(0, 0, 3), 3, true), regimeCube(t, t0.AddDate(0, 0, 3).Add(45*time.Minute), 3, false))
			require.NoError(t, err)
			return c
		}(),
	}}
}

func newPipeline(t *testing.T, ldr pipeline.ResultLoader, batchSize int, metrics *observability.Metrics) *pipeline.Pipeline {
	t.Helper()
	cl := pipeline.NewClassifier(trainedScheme(t), domain.DefaultParameterSet(), nil, slog.Default())
	return pipeline.New(testSource(t), cl, ldr, slog.Default(), metrics, batchSize,
		pipeline.WithRetry(3, time.Millisecond, 4*time.Millisecond))
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	fakeClock := clockwork.NewFakeClockAt(time.Date(2024, time.April, 26, 15, 10, 0, 0, time.UTC))
	domain.SetClock(fakeClock)
	t.Cleanup(func() { domain.SetClock(nil) })

	ldr := &mockLoader{}
	metrics := newTestMetrics()
	p := newPipeline(t, ldr, 2, metrics)
	require.False(t, p.Ready())

	refs := []domain.CaseRef{{ID: "conv"}, {ID: "strat"}, {ID: "mixed"}}
	summary, err := p.Run(context.Background(), refs)
	require.NoError(t, err)

	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 3, summary.Cases)
	assert.Equal(t, 3, summary.Classified)
	assert.Zero(t, summary.Failed)
	assert.Equal(t, 16, summary.Profiles)
	assert.Equal(t, 3, summary.Published)
	assert.Equal(t, summary, p.Progress())
	assert.True(t, p.Ready())
	require.NoError(t, p.CheckReadiness(context.Background()))

	require.Len(t, ldr.batches, 2, "batch size 2 gives a full and a partial batch")
	results := ldr.loaded()
	require.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, summary.RunID, r.RunID)
		assert.Equal(t, "test_4eig2clus_reduced", r.Scheme)
		assert.Equal(t, fakeClock.Now(), r.ProcessedAt)
	}

	conv, strat, mixed := results[0], results[1], results[2]
	assert.Equal(t, "conv", conv.CaseID)
	assert.Len(t, conv.Classes.Labels, 4)
	assert.Len(t, conv.Counts, 1, "one regime, one class")
	assert.Len(t, strat.Counts, 1)
	assert.NotEqual(t, conv.Classes.Labels[0], strat.Classes.Labels[0])

	want := []int{conv.Classes.Labels[0], conv.Classes.Labels[0], conv.Classes.Labels[0],
		strat.Classes.Labels[0], strat.Classes.Labels[0], strat.Classes.Labels[0]}
	if diff := cmp.Diff(want, mixed.Classes.Labels); diff != "" {
		t.Errorf("mixed case labels (-want +got):\n%s", diff)
	}

	assert.InDelta(t, 3, testutil.ToFloat64(metrics.CasesProcessed), 0)
	assert.InDelta(t, 16, testutil.ToFloat64(metrics.ProfilesClassified), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(metrics.ResultsPublished), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.PipelineRunning), 0)
}

func TestPipeline_Run_SkipsFailedCases(t *testing.T) {
	ldr := &mockLoader{}
	metrics := newTestMetrics()
	p := newPipeline(t, ldr, 10, metrics)

	summary, err := p.Run(context.Background(), []domain.CaseRef{{ID: "missing"}, {ID: "conv"}})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Classified)
	require.Len(t, ldr.loaded(), 1)
	assert.Equal(t, "conv", ldr.loaded()[0].CaseID)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.CaseErrors), 0)
}

func TestPipeline_Run_ClassifyErrorEmitsNothing(t *testing.T) {
	src := testSource(t)
	narrow := domain.NewCube([]float64{200}, []time.Time{t0})
	require.NoError(t, narrow.SetField("ZH", [][]float64{{10}}))
	src.cubes["narrow"] = narrow

	ldr := &mockLoader{}
	cl := pipeline.NewClassifier(trainedScheme(t), domain.DefaultParameterSet(), nil, slog.Default())
	p := pipeline.New(src, cl, ldr, slog.Default(), newTestMetrics(), 5)

	summary, err := p.Run(context.Background(), []domain.CaseRef{{ID: "narrow"}})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Empty(t, ldr.batches)
	assert.Zero(t, ldr.calls, "no partial results of a failed case")
	assert.False(t, p.Ready())
}

func TestPipeline_Run_RetriesLoader(t *testing.T) {
	ldr := &mockLoader{failures: 2}
	p := newPipeline(t, ldr, 5, newTestMetrics())

	summary, err := p.Run(context.Background(), []domain.CaseRef{{ID: "conv"}})
	require.NoError(t, err)
	assert.Equal(t, 3, ldr.calls)
	assert.Equal(t, 1, summary.Published)
}

func TestPipeline_Run_LoaderExhaustsRetries(t *testing.T) {
	ldr := &mockLoader{failures: 10}
	p := newPipeline(t, ldr, 5, newTestMetrics())

	summary, err := p.Run(context.Background(), []domain.CaseRef{{ID: "conv"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker unavailable")
	assert.Equal(t, 3, ldr.calls)
	assert.Zero(t, summary.Published)
	assert.False(t, p.Ready())
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	ldr := &mockLoader{}
	p := newPipeline(t, ldr, 5, newTestMetrics())

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	_, err := p.Run(ctx, []domain.CaseRef{{ID: "conv"}})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, ldr.batches)
}

func TestClassifier_FiltersBeforeClassifying(t *testing.T) {
	cfg := filtering.DefaultConfig()
	cl := pipeline.NewClassifier(trainedScheme(t), domain.DefaultParameterSet(), &cfg, slog.Default())

	result, err := cl.Classify(context.Background(), domain.CaseRef{}, regimeCube(t, t0, 4, true), nil)
	require.NoError(t, err)
	assert.Equal(t, "140221", result.CaseID, "falls back to the date-range id")
	assert.Len(t, result.Classes.Labels, 4)

	noKDP := domain.NewCube([]float64{200}, []time.Time{t0})
	require.NoError(t, noKDP.SetField("ZH", [][]float64{{1}}))
	_, err = cl.Classify(context.Background(), domain.CaseRef{ID: "x"}, noKDP, nil)
	require.ErrorIs(t, err, domain.ErrShape)
}

func TestLoadCases(t *testing.T) {
	cs, err := pipeline.LoadCases(context.Background(), testSource(t),
		[]domain.CaseRef{{ID: "conv"}, {ID: "strat"}}, domain.DefaultParameterSet(), nil)
	require.NoError(t, err)
	require.Len(t, cs, 2)
	assert.Equal(t, "conv", cs[0].Name())

	_, err = pipeline.LoadCases(context.Background(), testSource(t),
		[]domain.CaseRef{{ID: "conv"}, {ID: "missing"}}, domain.DefaultParameterSet(), nil)
	require.Error(t, err)
}

func TestMultiLoader_JoinsErrors(t *testing.T) {
	ok := &mockLoader{}
	failing := &mockLoader{failures: 1}
	m := pipeline.MultiLoader{failing, ok}

	err := m.LoadResults(context.Background(), []domain.CaseResult{{CaseID: "140221"}})
	require.Error(t, err)
	assert.Len(t, ok.loaded(), 1, "later loaders still run")
}

func TestJSONLoader(t *testing.T) {
	var buf bytes.Buffer
	results := []domain.CaseResult{{CaseID: "a", Scheme: "s"}, {CaseID: "b", Scheme: "s"}}
	require.NoError(t, pipeline.JSONLoader{W: &buf}.LoadResults(context.Background(), results))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var got domain.CaseResult
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &got))
	assert.Equal(t, "b", got.CaseID)
}
