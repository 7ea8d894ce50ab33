// Package testutil provides testing utilities for mnistsql
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/mnistsql/pkg/config"
	"github.com/ajitpratap0/mnistsql/pkg/digits"
)

// TestLogger creates a test logger that writes to the test output.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a test context with a 30-second timeout.
// The caller must call the returned cancel function to avoid leaks.
func TestContext(_ *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// SQLiteConfig returns database settings for a fresh sqlite file that is
// removed with the test's temp dir.
func SQLiteConfig(t *testing.T) config.DatabaseConfig {
	t.Helper()
	return config.DatabaseConfig{
		Driver:   config.DriverSQLite,
		Database: filepath.Join(t.TempDir(), "mnistsql.db"),
	}
}

// Digit returns a rows x cols image whose samples are derived from seed,
// so different seeds give different images.
func Digit(t *testing.T, rows, cols, seed int) digits.Image {
	t.Helper()
	pix := make([]byte, rows*cols)
	for i := range pix {
		pix[i] = byte(seed*31 + i)
	}
	img, err := digits.NewImage(rows, cols, pix)
	if err != nil {
		t.Fatalf("digit image: %v", err)
	}
	return img
}

// Records returns one 2x2 record per label, in order.
func Records(t *testing.T, labels ...int) []digits.Record {
	t.Helper()
	recs := make([]digits.Record, len(labels))
	for i, l := range labels {
		recs[i] = digits.Record{Label: l, Image: Digit(t, 2, 2, i)}
	}
	return recs
}

// RequireNoError fails the test immediately if err is not nil.
// The msg parameter provides additional context in the failure message.
func RequireNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", msg, err)
	}
}
