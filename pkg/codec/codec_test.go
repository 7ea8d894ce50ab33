package codec

import (
	"bytes"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/mnistsql/pkg/compression"
	"github.com/ajitpratap0/mnistsql/pkg/digits"
	"github.com/ajitpratap0/mnistsql/pkg/errors"
)

func testImage(t *testing.T, rows, cols int, seed byte) digits.Image {
	t.Helper()
	pix := make([]byte, rows*cols)
	for i := range pix {
		pix[i] = seed + byte(i*7)
	}
	img, err := digits.NewImage(rows, cols, pix)
	require.NoError(t, err)
	return img
}

func TestRoundTrip(t *testing.T) {
	images := []digits.Image{
		testImage(t, 2, 2, 0),
		testImage(t, 1, 1, 255),
		testImage(t, digits.Rows, digits.Cols, 3),
	}
	zero, err := digits.NewImage(digits.Rows, digits.Cols, make([]byte, digits.Rows*digits.Cols))
	require.NoError(t, err)
	images = append(images, zero)

	for _, img := range images {
		for _, compress := range []bool{false, true} {
			payload, gzipped, err := Encode(img, compress)
			require.NoError(t, err)
			assert.Equal(t, compress, gzipped)

			got, err := Decode(payload, gzipped, img.Rows, img.Cols)
			require.NoError(t, err)
			assert.True(t, img.Equal(got), "round trip changed a %dx%d image (compress=%v)", img.Rows, img.Cols, compress)
		}
	}
}

func TestEncodeRawIsRowMajorCopy(t *testing.T) {
	img := testImage(t, 2, 3, 10)
	payload, gzipped, err := Encode(img, false)
	require.NoError(t, err)
	assert.False(t, gzipped)
	assert.Equal(t, img.Pix, payload)

	payload[0] = 0xFF
	assert.NotEqual(t, byte(0xFF), img.Pix[0])
}

func TestEncodeGzipHasMagic(t *testing.T) {
	payload, gzipped, err := Encode(testImage(t, 4, 4, 1), true)
	require.NoError(t, err)
	assert.True(t, gzipped)
	assert.True(t, bytes.HasPrefix(payload, []byte{0x1f, 0x8b}))
}

func TestEncodeRejectsInvalidImage(t *testing.T) {
	_, _, err := Encode(digits.Image{Rows: 2, Cols: 2, Pix: []byte{1}}, false)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
}

func TestDecodeLengthMismatch(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3}, false, 2, 2)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeCorruptPayload))

	payload, _, err := Encode(testImage(t, 3, 3, 0), true)
	require.NoError(t, err)
	_, err = Decode(payload, true, 2, 2)
	assert.True(t, errors.IsType(err, errors.ErrorTypeCorruptPayload))
}

func TestDecodeOversizedGzipStopsEarly(t *testing.T) {
	gz, err := compression.NewCompressor(compression.DefaultConfig())
	require.NoError(t, err)
	payload, err := gz.Compress(make([]byte, 64<<20))
	require.NoError(t, err)

	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	_, err = Decode(payload, true, digits.Rows, digits.Cols)
	runtime.ReadMemStats(&after)

	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeCorruptPayload))
	if grew := after.TotalAlloc - before.TotalAlloc; grew > 8<<20 {
		t.Fatalf("decode allocated %d bytes for a %d byte payload", grew, len(payload))
	}
}

func TestDecodeTruncatedGzip(t *testing.T) {
	payload, _, err := Encode(testImage(t, 2, 2, 9), true)
	require.NoError(t, err)

	_, err = Decode(payload[:len(payload)-6], true, 2, 2)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeCorruptPayload))
}

func TestDecodeFlaggedButNotGzip(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3, 4}, true, 2, 2)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeCorruptPayload))
}

func TestDecodeDoesNotAliasPayload(t *testing.T) {
	payload := []byte{1, 2, 3, 4}
	img, err := Decode(payload, false, 2, 2)
	require.NoError(t, err)

	payload[0] = 42
	assert.Equal(t, byte(1), img.At(0, 0))
}
