// Package codec converts digit images to stored payloads and back.
//
// A payload is the image's samples in row-major order, optionally gzip
// compressed. The gzipped flag travels with every stored row so a table may
// mix compressed and uncompressed payloads.
package codec

import (
	"bytes"
	"io"
	"sync"

	"github.com/ajitpratap0/mnistsql/pkg/compression"
	"github.com/ajitpratap0/mnistsql/pkg/digits"
	"github.com/ajitpratap0/mnistsql/pkg/errors"
)

var (
	gzipOnce sync.Once
	gzipComp compression.Compressor
	gzipErr  error
)

func gzipper() (compression.Compressor, error) {
	gzipOnce.Do(func() {
		gzipComp, gzipErr = compression.NewCompressor(compression.DefaultConfig())
	})
	return gzipComp, gzipErr
}

// Encode serializes img row by row. When compress is true the bytes are
// gzip compressed. The returned flag reports whether compression was
// applied. The output never shares memory with img.
func Encode(img digits.Image, compress bool) ([]byte, bool, error) {
	if !img.Valid() {
		return nil, false, errors.Newf(errors.ErrorTypeData,
			"image %dx%d has %d samples", img.Rows, img.Cols, len(img.Pix))
	}

	if !compress {
		out := make([]byte, len(img.Pix))
		copy(out, img.Pix)
		return out, false, nil
	}

	gz, err := gzipper()
	if err != nil {
		return nil, false, errors.Wrap(err, errors.ErrorTypeInternal, "failed to create gzip compressor")
	}
	out, err := gz.Compress(img.Pix)
	if err != nil {
		return nil, false, errors.Wrap(err, errors.ErrorTypeData, "failed to gzip image")
	}
	return out, true, nil
}

// Decode reverses Encode. A gzipped payload is decompressed first; the
// result must hold exactly rows*cols samples. Payloads of any other length,
// and flagged payloads that are not gzip, fail with ErrorTypeCorruptPayload.
func Decode(payload []byte, gzipped bool, rows, cols int) (digits.Image, error) {
	if rows <= 0 || cols <= 0 {
		return digits.Image{}, errors.Newf(errors.ErrorTypeValidation, "invalid dimensions %dx%d", rows, cols)
	}

	want := rows * cols
	raw := payload
	if gzipped {
		var err error
		if raw, err = gunzip(payload, want); err != nil {
			return digits.Image{}, err
		}
	}

	if len(raw) != want {
		return digits.Image{}, errors.Newf(errors.ErrorTypeCorruptPayload,
			"payload has %d bytes, want %d", len(raw), want).
			WithDetail("gzipped", gzipped)
	}

	// NewImage copies, so the caller's payload is never aliased.
	return digits.NewImage(rows, cols, raw)
}

// gunzip decompresses at most want+1 bytes of payload, so an oversized
// stream is rejected without being inflated in full.
func gunzip(payload []byte, want int) ([]byte, error) {
	gz, err := gzipper()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to create gzip compressor")
	}
	r, err := gz.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCorruptPayload, "payload is flagged gzipped but does not decompress").
			WithDetail("payload_bytes", len(payload))
	}
	defer r.Close()

	raw, err := io.ReadAll(io.LimitReader(r, int64(want)+1))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCorruptPayload, "payload is flagged gzipped but does not decompress").
			WithDetail("payload_bytes", len(payload))
	}
	if len(raw) > want {
		return nil, errors.Newf(errors.ErrorTypeCorruptPayload,
			"payload decompresses to more than %d bytes", want).
			WithDetail("gzipped", true)
	}
	return raw, nil
}
