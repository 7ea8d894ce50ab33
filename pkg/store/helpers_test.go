package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/mnistsql/pkg/config"
	"github.com/ajitpratap0/mnistsql/pkg/digits"
)

func newSQLite(t *testing.T) *SQLConnector {
	t.Helper()
	c, err := NewSQLConnector(config.DatabaseConfig{
		Driver:   "sqlite",
		Database: filepath.Join(t.TempDir(), "digits.db"),
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return c
}

// recordingConnector counts connections and INSERT statements, and can
// fail the Nth INSERT.
type recordingConnector struct {
	Connector

	mu         sync.Mutex
	opens      int
	insertRows []int
	failInsert int
}

func (r *recordingConnector) Open(ctx context.Context) (Conn, error) {
	r.mu.Lock()
	r.opens++
	r.mu.Unlock()

	conn, err := r.Connector.Open(ctx)
	if err != nil {
		return nil, err
	}
	return &recordingConn{Conn: conn, parent: r}, nil
}

func (r *recordingConnector) inserts() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.insertRows...)
}

type recordingConn struct {
	Conn
	parent *recordingConnector
}

func (c *recordingConn) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if strings.HasPrefix(query, "INSERT") {
		p := c.parent
		p.mu.Lock()
		p.insertRows = append(p.insertRows, len(args)/columnsPerRow)
		n := len(p.insertRows)
		p.mu.Unlock()
		if p.failInsert > 0 && n == p.failInsert {
			return nil, fmt.Errorf("connection reset by peer")
		}
	}
	return c.Conn.ExecContext(ctx, query, args...)
}

func digitImage(t *testing.T, seed int) digits.Image {
	t.Helper()
	pix := make([]byte, 4)
	for i := range pix {
		pix[i] = byte(seed*4 + i)
	}
	img, err := digits.NewImage(2, 2, pix)
	require.NoError(t, err)
	return img
}

func labeled(t *testing.T, label, n int) []digits.Record {
	t.Helper()
	recs := make([]digits.Record, n)
	for i := range recs {
		recs[i] = digits.Record{Label: label, Image: digitImage(t, label*100+i)}
	}
	return recs
}
