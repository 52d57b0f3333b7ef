//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/storm-vp-classifier/internal/adapter/cubefile"
	"github.com/couchcryptid/storm-vp-classifier/internal/adapter/kafka"
	"github.com/couchcryptid/storm-vp-classifier/internal/cases"
	"github.com/couchcryptid/storm-vp-classifier/internal/config"
	"github.com/couchcryptid/storm-vp-classifier/internal/domain"
	"github.com/couchcryptid/storm-vp-classifier/internal/observability"
	"github.com/couchcryptid/storm-vp-classifier/internal/pipeline"
	"github.com/couchcryptid/storm-vp-classifier/internal/scheme"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const testResultsTopic = "test-vp-classifications"

var baseDate = time.Date(2014, time.February, 21, 0, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	c, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("vpc-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	brokers, err := c.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	cc, err := kafkago.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err)
	defer cc.Close()

	require.NoError(t, cc.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// publishedResult holds a deserialized message read from the results topic.
type publishedResult struct {
	Result  domain.CaseResult
	Key     string
	Headers map[string]string
}

// readResult reads a single message from the consumer and deserializes it.
func readResult(ctx context.Context, t *testing.T, consumer *kafkago.Reader) publishedResult {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from results topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var res domain.CaseResult
	require.NoError(t, json.Unmarshal(msg.Value, &res), "unmarshal result message")
	return publishedResult{Result: res, Key: string(msg.Key), Headers: headers}
}

func newConsumer(t *testing.T, broker, group string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testResultsTopic,
		GroupID:     fmt.Sprintf("%s-%d", group, time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

// writeCase writes a two-regime case starting at start and returns its ref.
func writeCase(t *testing.T, dir string, start time.Time) domain.CaseRef {
	t.Helper()
	const nt = 12
	heights := []float64{200, 400, 600, 800, 1000, 1200}
	times := make([]time.Time, nt)
	temps := make([]float64, nt)
	for i := range times {
		times[i] = start.Add(time.Duration(i) * 15 * time.Minute)
		temps[i] = float64(i) - 3
	}
	c := domain.NewCube(heights, times)
	zh := domain.NewField(len(heights), nt, 0)
	zdr := domain.NewField(len(heights), nt, 0)
	kdp := domain.NewField(len(heights), nt, 0)
	for h := range heights {
		for i := 0; i < nt; i++ {
			base := [3]float64{0, 0.2, 0.01}
			if i >= nt/2 {
				base = [3]float64{25, 1.5, 0.3}
			}
			zh[h][i] = base[0] + 0.5*math.Sin(float64(h+2*i))
			zdr[h][i] = base[1] + 0.05*math.Cos(float64(h+i))
			kdp[h][i] = base[2]
		}
	}
	require.NoError(t, c.SetField("ZH", zh))
	require.NoError(t, c.SetField("ZDR", zdr))
	require.NoError(t, c.SetField("KDP", kdp))
	temp, err := domain.NewFeatureSeries(domain.TemperatureFeature, times, temps)
	require.NoError(t, err)

	id := cases.DateRangeID(c.Start(), c.End())
	path := filepath.Join(dir, id+".json")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, cubefile.Write(f, id, c, temp))
	require.NoError(t, f.Close())
	return domain.CaseRef{ID: id, Path: path}
}

// TestKafkaWriter verifies that kafka.Writer publishes results keyed by case
// with scheme and processed_at headers.
func TestKafkaWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testResultsTopic)

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaResultsTopic: testResultsTopic}
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	processed := baseDate.Add(48 * time.Hour)
	want := domain.CaseResult{
		RunID:  "run-1",
		CaseID: "140221",
		Scheme: "test_4eig2clus_reduced",
		Classes: domain.ClassSeries{
			Times:  []time.Time{baseDate, baseDate.Add(15 * time.Minute), baseDate.Add(30 * time.Minute)},
			Labels: []int{1, 1, 0},
		},
		Counts:      map[int]int{0: 1, 1: 2},
		ProcessedAt: processed,
	}
	require.NoError(t, writer.LoadResults(ctx, []domain.CaseResult{want}))

	got := readResult(ctx, t, newConsumer(t, broker, "test-writer"))
	assert.Equal(t, "140221", got.Key)
	assert.Equal(t, "test_4eig2clus_reduced", got.Headers["scheme"])
	assert.Equal(t, processed.Format(time.RFC3339), got.Headers["processed_at"])
	assert.Equal(t, want.Classes.Labels, got.Result.Classes.Labels)
	assert.Equal(t, want.Counts, got.Result.Counts)
	assert.True(t, want.ProcessedAt.Equal(got.Result.ProcessedAt))
}

// TestPipelineEndToEnd trains a scheme on case files, then runs the pipeline
// (cube files → classifier → Kafka) and checks every case arrives, with an
// unreadable case skipped.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testResultsTopic)

	dir := t.TempDir()
	refs := []domain.CaseRef{
		writeCase(t, dir, baseDate),
		writeCase(t, dir, baseDate.Add(24*time.Hour)),
		{ID: "missing", Path: filepath.Join(dir, "missing.json")},
		writeCase(t, dir, baseDate.Add(48*time.Hour)),
	}

	ps := domain.DefaultParameterSet()
	src := cubefile.Source{}
	loaded, err := pipeline.LoadCases(ctx, src, []domain.CaseRef{refs[0], refs[1]}, ps, nil)
	require.NoError(t, err)

	cfg := scheme.Config{
		BaseName:     "it",
		Params:       []string{"ZH", "ZDR", "KDP"},
		HeightLimits: domain.DefaultHeightLimits(),
		NEigens:      4,
		NClusters:    2,
		Reduced:      true,
		Seed:         1,
	}
	s, err := scheme.New(cfg, ps)
	require.NoError(t, err)
	training, err := cases.Combine(loaded, cases.WithScheme(s))
	require.NoError(t, err)
	require.NoError(t, training.Train(ctx, false))

	writer := kafka.NewWriter(&config.Config{KafkaBrokers: []string{broker}, KafkaResultsTopic: testResultsTopic}, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	clf := pipeline.NewClassifier(s, ps, nil, discardLogger())
	p := pipeline.New(src, clf, writer, discardLogger(), observability.NewMetricsForTesting(), 2)

	summary, err := p.Run(ctx, refs)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Cases)
	assert.Equal(t, 3, summary.Classified)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 3, summary.Published)
	assert.Equal(t, 36, summary.Profiles)

	consumer := newConsumer(t, broker, "test-pipeline")
	received := make(map[string]publishedResult, 3)
	for len(received) < 3 {
		pr := readResult(ctx, t, consumer)
		received[pr.Key] = pr
	}

	for _, ref := range []domain.CaseRef{refs[0], refs[1], refs[3]} {
		pr, ok := received[ref.ID]
		require.True(t, ok, "missing result for %s", ref.ID)
		assert.Equal(t, summary.RunID, pr.Result.RunID)
		assert.Equal(t, s.Name(), pr.Headers["scheme"])
		require.Len(t, pr.Result.Classes.Labels, 12)

		// Each case is half light stratiform, half convective.
		first, last := pr.Result.Classes.Labels[0], pr.Result.Classes.Labels[11]
		assert.NotEqual(t, first, last, ref.ID)
		assert.Equal(t, map[int]int{first: 6, last: 6}, pr.Result.Counts, ref.ID)
	}
	assert.NotContains(t, received, "missing")
}
