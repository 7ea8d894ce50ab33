// Package mnistsql groups labeled handwritten digit images by label and
// stores them in SQL tables.
//
// # Architecture
//
// A run flows through four stages:
//
//	dataset.Source -> grouper.Group -> store.BatchWriter -> SQL table
//
// The source yields labeled 28x28 images from the IDX files (optionally
// compressed with gzip, zstd, lz4, snappy or s2). The grouper buckets them
// by label with an optional cap per label and stops reading as soon as every
// label is full. The writer inserts each bucket with multi-row INSERT
// statements, gzip-compressing each payload when asked, and reports how many
// rows were committed even when a batch fails. store.Reader reads rows back
// and decodes them into images.
//
// Four dialects are supported: SQL Server, Postgres, MySQL and SQLite.
//
// # Quick Start
//
//	mnistsql download --root ./data/mnist
//	mnistsql ingest --config config.yaml --limit 1000
//	mnistsql count --json
//	mnistsql get --label 7 --save-to seven.png
//
// # Packages
//
//   - pkg/digits: images, records, label buckets and label spaces
//   - pkg/dataset: IDX sources and the downloader
//   - pkg/codec: payload encode/decode
//   - pkg/grouper: label grouping with early stop
//   - pkg/store: dialects, schema, batch writer and reader
//   - pkg/export: PNG folders and IDX exports
//   - pkg/config, pkg/logger, pkg/errors, pkg/metrics, pkg/observability:
//     settings, structured logging, typed errors, Prometheus metrics and
//     OpenTelemetry tracing
package mnistsql
