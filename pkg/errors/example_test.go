package errors_test

import (
	"fmt"
	"io"

	"github.com/ajitpratap0/mnistsql/pkg/errors"
)

// Example demonstrates basic error creation and wrapping.
func Example() {
	err := errors.New(errors.ErrorTypeConnection, "failed to connect to database").
		WithDetail("driver", "sqlserver").
		WithDetail("server", "localhost")

	fmt.Println(err.Error())

	// Output:
	// connection: failed to connect to database
}

// ExampleWrap shows how to wrap existing errors with context.
func ExampleWrap() {
	err := errors.Wrap(io.ErrUnexpectedEOF, errors.ErrorTypeBatchInsert, "bulk insert failed").
		WithDetail("label", 3).
		WithDetail("written", 500)

	if errors.IsType(err, errors.ErrorTypeBatchInsert) {
		fmt.Println("batch insert error")
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		fmt.Println("caused by unexpected EOF")
	}

	// Output:
	// batch insert error
	// caused by unexpected EOF
}

// ExampleIsRetryable shows which failures a caller may retry.
func ExampleIsRetryable() {
	conn := errors.New(errors.ErrorTypeConnection, "connection refused")
	corrupt := errors.New(errors.ErrorTypeCorruptPayload, "payload has 783 bytes, want 784")

	fmt.Println(errors.IsRetryable(conn))
	fmt.Println(errors.IsRetryable(corrupt))

	// Output:
	// true
	// false
}
