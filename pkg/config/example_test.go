package config_test

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/ajitpratap0/mnistsql/pkg/config"
)

// ExampleNewDefault demonstrates the default settings.
func ExampleNewDefault() {
	cfg := config.NewDefault()

	fmt.Printf("Table: %s\n", cfg.Ingest.Table)
	fmt.Printf("Batch Size: %d\n", cfg.Ingest.BatchSize)
	fmt.Printf("Compress: %v\n", cfg.Ingest.Compress)

	// Output:
	// Table: MNISTImages
	// Batch Size: 500
	// Compress: true
}

// ExampleConfig_Validate shows how to validate a configuration
// before using it.
func ExampleConfig_Validate() {
	cfg := config.NewDefault()
	cfg.Database.Driver = "ODBC Driver 18 for SQL Server"
	cfg.Ingest.BatchSize = 600

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	fmt.Println("Configuration is valid!")

	cfg.Ingest.Table = "drop table;"
	fmt.Println(cfg.Validate())

	// Output:
	// Configuration is valid!
	// invalid table name "drop table;"
}

// ExampleLoad demonstrates loading configuration from a YAML file
// with environment variable substitution.
func ExampleLoad() {
	dir, _ := os.MkdirTemp("", "mnistsql-config")
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "config.yaml")
	_ = os.WriteFile(path, []byte(`
database_info:
  DRIVER: postgres
  SERVER: db.internal
  DATABASE: digits
  USERNAME: ${EXAMPLE_DB_USER}
  PASSWORD: secret
ingest:
  batch_size: 250
`), 0o600)
	_ = os.Setenv("EXAMPLE_DB_USER", "loader")
	defer os.Unsetenv("EXAMPLE_DB_USER")

	cfg := config.NewDefault()
	if err := config.Load(path, cfg); err != nil {
		log.Fatal(err)
	}

	fmt.Println(cfg.Database.Username)
	fmt.Println(cfg.Ingest.BatchSize)
	fmt.Println(cfg.Ingest.Table)

	// Output:
	// loader
	// 250
	// MNISTImages
}
