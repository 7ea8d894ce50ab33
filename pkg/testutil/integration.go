package testutil

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/ajitpratap0/mnistsql/pkg/config"
)

// IntegrationTestSuite provides a context and a unique table name for tests
// that run against a real database server.
type IntegrationTestSuite struct {
	suite.Suite
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time

	// Database is the server under test
	Database config.DatabaseConfig
	// Table is unique per suite run
	Table string
}

// SetupSuite runs before all tests in the suite
func (s *IntegrationTestSuite) SetupSuite() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 5*time.Minute)
	s.startTime = time.Now()
	s.Table = fmt.Sprintf("mnistsql_it_%d", s.startTime.UnixNano()%1_000_000_000)

	s.T().Logf("Integration test suite using table %s", s.Table)
}

// TearDownSuite runs after all tests in the suite
func (s *IntegrationTestSuite) TearDownSuite() {
	s.cancel()
	s.T().Logf("Integration test suite completed in %v", time.Since(s.startTime))
}

// Context returns the test context
func (s *IntegrationTestSuite) Context() context.Context {
	return s.ctx
}

// IntegrationTest marks a test as an integration test
func IntegrationTest(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

// ServerDatabase returns settings for a database server taken from
// MNISTSQL_TEST_<DRIVER>_DSN, skipping the test when it is unset.
func ServerDatabase(t *testing.T, driver string) config.DatabaseConfig {
	t.Helper()
	IntegrationTest(t)

	key := "MNISTSQL_TEST_" + strings.ToUpper(driver) + "_DSN"
	dsn := os.Getenv(key)
	if dsn == "" {
		t.Skipf("%s not set", key)
	}
	return config.DatabaseConfig{Driver: driver, DSN: dsn}
}
