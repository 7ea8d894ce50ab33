package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/mnistsql/pkg/dataset"
	"github.com/ajitpratap0/mnistsql/pkg/digits"
	"github.com/ajitpratap0/mnistsql/pkg/errors"
	"github.com/ajitpratap0/mnistsql/pkg/store"
	"github.com/ajitpratap0/mnistsql/pkg/testutil"
)

func newConnector(t *testing.T) *store.SQLConnector {
	t.Helper()
	conn, err := store.NewSQLConnector(testutil.SQLiteConfig(t), testutil.TestLogger(t))
	testutil.RequireNoError(t, err, "sqlite connector")
	return conn
}

func smallDigits(t *testing.T, labels ...int) []digits.Record {
	recs := make([]digits.Record, len(labels))
	for i, l := range labels {
		recs[i] = digits.Record{Label: l, Image: testutil.Digit(t, 4, 4, i)}
	}
	return recs
}

func TestIngestEndToEnd(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	conn := newConnector(t)
	src := dataset.NewSliceSource(smallDigits(t, 0, 1, 0, 2, 1, 2, 0, 9))

	res, err := Ingest(ctx, conn, src, Options{
		Limit:  2,
		Labels: []int{0, 1, 2},
		Rows:   4,
		Cols:   4,
		Write: store.WriteAllOptions{
			WriteOptions:    store.WriteOptions{Table: "Digits", BatchSize: 2, Compress: true},
			CreateIfMissing: true,
		},
		Logger: testutil.TestLogger(t),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.True(t, res.Stopped)
	assert.Equal(t, 6, res.Consumed)
	assert.Equal(t, map[int]int{0: 2, 1: 2, 2: 2}, res.Counts)
	assert.Equal(t, 6, res.Written)
	assert.Equal(t, 6, res.Total())

	counts, err := store.NewReader(conn, store.WithDimensions(4, 4)).CountByLabel(ctx, "Digits")
	require.NoError(t, err)
	assert.Equal(t, map[int]int{0: 2, 1: 2, 2: 2}, counts)

	got, found, err := store.NewReader(conn, store.WithDimensions(4, 4)).GetOne(ctx, "Digits", store.ByLabel(1))
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, got.Gzipped)
	assert.True(t, testutil.Digit(t, 4, 4, 1).Equal(got.Image))
}

func TestIngestMissingTableWithoutCreate(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	res, err := Ingest(ctx, newConnector(t), dataset.NewSliceSource(smallDigits(t, 3)), Options{
		Rows: 4,
		Cols: 4,
		Write: store.WriteAllOptions{
			WriteOptions: store.WriteOptions{Table: "Absent"},
		},
	})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeBatchInsert))
	assert.Equal(t, 0, res.Written)
	assert.Equal(t, 1, res.Consumed)
}

func TestIngestCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Ingest(ctx, newConnector(t), dataset.NewSliceSource(smallDigits(t, 1, 2)), Options{
		Write: store.WriteAllOptions{WriteOptions: store.WriteOptions{Table: "Digits"}},
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProgressReporter(t *testing.T) {
	pr := NewProgressReporter(testutil.TestLogger(t), "group", 5*time.Millisecond)
	pr.SetTotal(10)
	pr.Start()

	pr.IncrementProcessed(4)
	pr.IncrementProcessed(1)
	time.Sleep(20 * time.Millisecond)
	pr.Stop()
	pr.Stop()

	processed, total := pr.GetProgress()
	assert.Equal(t, int64(5), processed)
	assert.Equal(t, int64(10), total)
	assert.GreaterOrEqual(t, pr.GetETA(), time.Duration(0))
}
