package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeQuery, "ignored"))
}

func TestWrapPreservesStack(t *testing.T) {
	inner := New(ErrorTypeCorruptPayload, "short payload")
	outer := Wrap(inner, ErrorTypeQuery, "read row")

	assert.Equal(t, inner.Stack, outer.Stack)
	assert.True(t, IsType(outer, ErrorTypeQuery))
	assert.True(t, IsType(outer, ErrorTypeCorruptPayload))
	assert.False(t, IsType(outer, ErrorTypeSchema))
}

func TestIsTypeThroughFmtWrap(t *testing.T) {
	base := New(ErrorTypeSchema, "create table failed")
	wrapped := fmt.Errorf("ensure table: %w", base)

	assert.True(t, IsType(wrapped, ErrorTypeSchema))
	assert.False(t, IsType(stderrors.New("plain"), ErrorTypeSchema))
}

func TestDetails(t *testing.T) {
	err := Newf(ErrorTypeBatchInsert, "batch %d failed", 2).WithDetail("written", 1000)

	v, ok := err.Detail("written")
	assert.True(t, ok)
	assert.Equal(t, 1000, v)
	assert.Equal(t, "batch_insert: batch 2 failed", err.Error())

	_, ok = err.Detail("missing")
	assert.False(t, ok)
}
