package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/mnistsql/pkg/codec"
	"github.com/ajitpratap0/mnistsql/pkg/config"
	"github.com/ajitpratap0/mnistsql/pkg/digits"
	"github.com/ajitpratap0/mnistsql/pkg/errors"
)

const table = "MNISTImages"

func dims(t *testing.T) []Option {
	return []Option{WithDimensions(2, 2), WithLogger(zaptest.NewLogger(t))}
}

func TestEnsureTableTwice(t *testing.T) {
	ctx := context.Background()
	conn := newSQLite(t)
	schema := NewSchemaManager(conn, dims(t)...)

	exists, err := schema.Exists(ctx, table)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, schema.EnsureTable(ctx, table))
	require.NoError(t, schema.EnsureTable(ctx, table))

	exists, err = schema.Exists(ctx, table)
	require.NoError(t, err)
	assert.True(t, exists)

	db, err := conn.Open(ctx)
	require.NoError(t, err)
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table)
	require.NoError(t, err)
	defer rows.Close()
	require.True(t, rows.Next())
	var n int
	require.NoError(t, rows.Scan(&n))
	assert.Equal(t, 1, n)
}

func TestEnsureTableCreatesLabelIndex(t *testing.T) {
	ctx := context.Background()
	conn := newSQLite(t)
	require.NoError(t, NewSchemaManager(conn).EnsureTable(ctx, table))

	db, err := conn.Open(ctx)
	require.NoError(t, err)
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'index' AND tbl_name = ?`, table)
	require.NoError(t, err)
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		names = append(names, name)
	}
	assert.Contains(t, names, "IX_MNISTImages_Label")
}

func TestEnsureTableRejectsBadName(t *testing.T) {
	err := NewSchemaManager(newSQLite(t)).EnsureTable(context.Background(), "x; DROP TABLE y")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestWriteLabelEmptyOpensNothing(t *testing.T) {
	rec := &recordingConnector{Connector: newSQLite(t)}
	w := NewBatchWriter(rec, dims(t)...)

	n, err := w.WriteLabel(context.Background(), 3, nil, WriteOptions{Table: table, BatchSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, rec.opens)
	assert.Empty(t, rec.inserts())
}

func TestWriteLabelBatchSizes(t *testing.T) {
	cases := []struct {
		n, b int
		want []int
	}{
		{n: 7, b: 3, want: []int{3, 3, 1}},
		{n: 6, b: 3, want: []int{3, 3}},
		{n: 2, b: 5, want: []int{2}},
		{n: 1, b: 1, want: []int{1}},
	}

	for _, tc := range cases {
		ctx := context.Background()
		rec := &recordingConnector{Connector: newSQLite(t)}
		require.NoError(t, NewSchemaManager(rec).EnsureTable(ctx, table))

		w := NewBatchWriter(rec, dims(t)...)
		n, err := w.WriteLabel(ctx, 4, labeled(t, 4, tc.n), WriteOptions{Table: table, BatchSize: tc.b, Compress: true})
		require.NoError(t, err)
		assert.Equal(t, tc.n, n)
		assert.Equal(t, tc.want, rec.inserts(), "n=%d b=%d", tc.n, tc.b)

		counts, err := NewReader(rec, dims(t)...).CountByLabel(ctx, table)
		require.NoError(t, err)
		assert.Equal(t, map[int]int{4: tc.n}, counts)
	}
}

func TestWriteLabelFailedBatchKeepsEarlierRows(t *testing.T) {
	ctx := context.Background()
	rec := &recordingConnector{Connector: newSQLite(t), failInsert: 2}
	require.NoError(t, NewSchemaManager(rec).EnsureTable(ctx, table))

	w := NewBatchWriter(rec, dims(t)...)
	n, err := w.WriteLabel(ctx, 1, labeled(t, 1, 10), WriteOptions{Table: table, BatchSize: 4})
	require.Error(t, err)
	assert.Equal(t, 4, n)
	assert.True(t, errors.IsType(err, errors.ErrorTypeBatchInsert))
	assert.True(t, errors.IsRetryable(err))

	var typed *errors.Error
	require.True(t, errors.As(err, &typed))
	written, _ := typed.Detail("written")
	batch, _ := typed.Detail("batch")
	assert.Equal(t, 4, written)
	assert.Equal(t, 2, batch)

	counts, err := NewReader(rec, dims(t)...).CountByLabel(ctx, table)
	require.NoError(t, err)
	assert.Equal(t, map[int]int{1: 4}, counts)
}

func TestWriteLabelValidation(t *testing.T) {
	ctx := context.Background()
	rec := &recordingConnector{Connector: newSQLite(t)}
	w := NewBatchWriter(rec, dims(t)...)

	_, err := w.WriteLabel(ctx, 2, labeled(t, 3, 1), WriteOptions{Table: table, BatchSize: 1})
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))

	big, _ := digits.NewImage(3, 3, make([]byte, 9))
	_, err = w.WriteLabel(ctx, 2, []digits.Record{{Label: 2, Image: big}}, WriteOptions{Table: table, BatchSize: 1})
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))

	_, err = w.WriteLabel(ctx, 2, labeled(t, 2, 1), WriteOptions{Table: table, BatchSize: -1})
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	_, err = w.WriteLabel(ctx, 2, labeled(t, 2, 1), WriteOptions{Table: table, BatchSize: 20000})
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	assert.Equal(t, 0, rec.opens)
}

func TestWriteAllAndRead(t *testing.T) {
	ctx := context.Background()
	rec := &recordingConnector{Connector: newSQLite(t)}
	w := NewBatchWriter(rec, dims(t)...)

	buckets := digits.NewBuckets([]int{0, 1, 2, 5})
	buckets[2] = labeled(t, 2, 3)
	buckets[0] = labeled(t, 0, 2)
	buckets[5] = labeled(t, 5, 1)

	total, err := w.WriteAll(ctx, buckets, WriteAllOptions{
		WriteOptions:    WriteOptions{Table: table, BatchSize: 2, Compress: true},
		CreateIfMissing: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 6, total)
	// ensure + labels 0, 2, 5; the empty label 1 opens nothing
	assert.Equal(t, 4, rec.opens)

	r := NewReader(rec, dims(t)...)
	counts, err := r.CountByLabel(ctx, table)
	require.NoError(t, err)
	assert.Equal(t, map[int]int{0: 2, 2: 3, 5: 1}, counts)

	// Labels are written in ascending order, so id 1 is the first record of label 0.
	row, found, err := r.GetOne(ctx, table, ByID(1))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(1), row.ID)
	assert.Equal(t, 0, row.Label)
	assert.True(t, row.Gzipped)
	assert.True(t, buckets[0][0].Image.Equal(row.Image))

	row, found, err = r.GetOne(ctx, table, ByLabel(2))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 2, row.Label)
	assert.True(t, buckets[2][0].Image.Equal(row.Image))
	assert.Equal(t, buckets[2][0], row.Record())

	row, found, err = r.GetOne(ctx, table, Query{})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(1), row.ID)
}

func TestGetOneNotFound(t *testing.T) {
	ctx := context.Background()
	conn := newSQLite(t)
	require.NoError(t, NewSchemaManager(conn).EnsureTable(ctx, table))
	r := NewReader(conn, dims(t)...)

	_, found, err := r.GetOne(ctx, table, ByID(12345))
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = r.GetOne(ctx, table, ByLabel(9))
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = r.GetOne(ctx, table, Query{})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetOneMixedCompressionAndCorruptRows(t *testing.T) {
	ctx := context.Background()
	conn := newSQLite(t)
	require.NoError(t, NewSchemaManager(conn).EnsureTable(ctx, table))

	w := NewBatchWriter(conn, dims(t)...)
	_, err := w.WriteLabel(ctx, 7, labeled(t, 7, 1), WriteOptions{Table: table, BatchSize: 1, Compress: false})
	require.NoError(t, err)
	_, err = w.WriteLabel(ctx, 7, labeled(t, 7, 1), WriteOptions{Table: table, BatchSize: 1, Compress: true})
	require.NoError(t, err)

	r := NewReader(conn, dims(t)...)
	first, found, err := r.GetOne(ctx, table, ByID(1))
	require.NoError(t, err)
	require.True(t, found)
	assert.False(t, first.Gzipped)
	second, found, err := r.GetOne(ctx, table, ByID(2))
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, second.Gzipped)
	assert.True(t, first.Image.Equal(second.Image))

	// A short raw payload and a payload wrongly flagged as gzip.
	db, err := conn.Open(ctx)
	require.NoError(t, err)
	payload, _, err := codec.Encode(digitImage(t, 1), false)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO "MNISTImages" (label, image, gzipped) VALUES (?, ?, ?), (?, ?, ?)`,
		8, payload[:3], false, 8, payload, true)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, _, err = r.GetOne(ctx, table, ByID(3))
	assert.True(t, errors.IsType(err, errors.ErrorTypeCorruptPayload))
	_, _, err = r.GetOne(ctx, table, ByID(4))
	assert.True(t, errors.IsType(err, errors.ErrorTypeCorruptPayload))
}

func TestInvalidDimensionsRejectedBeforeConnect(t *testing.T) {
	ctx := context.Background()
	rec := &recordingConnector{Connector: newSQLite(t)}

	_, err := NewBatchWriter(rec, WithDimensions(0, 28)).WriteLabel(ctx, 1, labeled(t, 1, 1),
		WriteOptions{Table: table, BatchSize: 1})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	_, _, err = NewReader(rec, WithDimensions(28, -1)).GetOne(ctx, table, ByID(1))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	assert.False(t, errors.IsType(err, errors.ErrorTypeCorruptPayload))

	assert.Equal(t, 0, rec.opens)
}

func TestReadMissingTableIsQueryError(t *testing.T) {
	_, _, err := NewReader(newSQLite(t)).GetOne(context.Background(), "Nope", Query{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeQuery))
}

func TestConnectionFailure(t *testing.T) {
	conn, err := NewSQLConnector(config.DatabaseConfig{
		Driver:   "sqlite",
		Database: "/nonexistent-dir/sub/digits.db",
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = NewBatchWriter(conn, dims(t)...).WriteLabel(context.Background(), 0, labeled(t, 0, 1),
		WriteOptions{Table: table, BatchSize: 1})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
}
