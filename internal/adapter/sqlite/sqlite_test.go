package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/storm-vp-classifier/internal/domain"
	"github.com/couchcryptid/storm-vp-classifier/internal/scheme"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "vpc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDB_SchemeRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.Get(ctx, "vpc_20eig20clus_reduced")
	require.ErrorIs(t, err, scheme.ErrNotFound)

	require.NoError(t, db.Put(ctx, "vpc_20eig20clus_reduced", []byte("first")))
	require.NoError(t, db.Put(ctx, "vpc_20eig20clus_reduced", []byte("second")))

	got, err := db.Get(ctx, "vpc_20eig20clus_reduced")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
}

func TestDB_LoadResults(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC))
	t0 := time.Date(2014, 2, 21, 12, 0, 0, 0, time.UTC)
	classes := domain.ClassSeries{
		Times:  []time.Time{t0, t0.Add(15 * time.Minute), t0.Add(30 * time.Minute)},
		Labels: []int{2, 2, 0},
	}

	first := domain.CaseResult{RunID: "run-1", CaseID: "140221", Scheme: "old", Classes: classes, ProcessedAt: clock.Now()}
	clock.Advance(time.Hour)
	second := domain.CaseResult{RunID: "run-2", CaseID: "140221", Scheme: "new",
		Classes: domain.ClassSeries{Times: classes.Times, Labels: []int{1, 1, 1}}, ProcessedAt: clock.Now()}

	require.NoError(t, db.LoadResults(ctx, []domain.CaseResult{first}))
	require.NoError(t, db.LoadResults(ctx, []domain.CaseResult{second}))

	got, name, err := db.LatestClasses(ctx, "140221")
	require.NoError(t, err)
	assert.Equal(t, "new", name)
	assert.Equal(t, []int{1, 1, 1}, got.Labels)
	assert.Equal(t, classes.Times, got.Times)

	_, _, err = db.LatestClasses(ctx, "990101")
	require.Error(t, err)
}
