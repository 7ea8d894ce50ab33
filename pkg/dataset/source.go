// Package dataset provides record sources for labeled digit images.
//
// A Source yields records one at a time and knows its total length up
// front; the length is used for progress reporting only. Sources return
// io.EOF once exhausted.
package dataset

import (
	"context"
	"io"

	"github.com/ajitpratap0/mnistsql/pkg/digits"
)

// Source is an iterator over labeled images.
type Source interface {
	// Len returns the total number of records the source will yield.
	Len() int
	// Next returns the next record, or io.EOF when the source is exhausted.
	Next(ctx context.Context) (digits.Record, error)
}

// SliceSource serves records from memory.
type SliceSource struct {
	records []digits.Record
	pos     int
}

// NewSliceSource creates a source over records. The slice is not copied.
func NewSliceSource(records []digits.Record) *SliceSource {
	return &SliceSource{records: records}
}

// Len implements Source.
func (s *SliceSource) Len() int {
	return len(s.records)
}

// Next implements Source.
func (s *SliceSource) Next(ctx context.Context) (digits.Record, error) {
	if err := ctx.Err(); err != nil {
		return digits.Record{}, err
	}
	if s.pos >= len(s.records) {
		return digits.Record{}, io.EOF
	}
	rec := s.records[s.pos]
	s.pos++
	return rec, nil
}

// Position returns how many records have been handed out.
func (s *SliceSource) Position() int {
	return s.pos
}
