// Package compression provides compression support for mnistsql with
// multiple algorithms and configurable levels. It supports both in-memory
// and streaming compression/decompression.
//
// # Overview
//
// The compression package provides:
//   - Multiple compression algorithms (Gzip, Snappy, LZ4, Zstd, S2)
//   - Configurable compression levels (Fastest, Default, Better, Best)
//   - Pooling of gzip and zstd coder instances
//   - In-memory, streaming and io.Reader/io.Writer style operations
//   - File extension lookup, so IDX files can be read and written in any
//     supported format
//
// Gzip is the algorithm used for stored pixel payloads; the others are used
// for dataset files on disk.
//
// # Basic Usage
//
//	comp, err := compression.NewCompressor(&compression.Config{
//	    Algorithm: compression.Gzip,
//	    Level:     compression.Default,
//	})
//
//	compressed, err := comp.Compress(data)
//	original, err := comp.Decompress(compressed)
//
// # Streaming Usage
//
//	comp, _ := compression.NewCompressor(&compression.Config{Algorithm: compression.ForPath(path)})
//	r, err := comp.NewReader(f)
//	defer r.Close()
package compression

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm represents a compression algorithm.
// Each algorithm has different trade-offs between speed and compression ratio.
type Algorithm string

const (
	// None represents no compression
	None Algorithm = "none"
	// Gzip represents gzip compression
	Gzip Algorithm = "gzip"
	// Snappy represents snappy compression (framed format)
	Snappy Algorithm = "snappy"
	// LZ4 represents lz4 compression (frame format)
	LZ4 Algorithm = "lz4"
	// Zstd represents zstandard compression
	Zstd Algorithm = "zstd"
	// S2 represents s2 compression (Snappy compatible)
	S2 Algorithm = "s2"
)

// Level represents compression level, controlling the trade-off between
// compression speed and compression ratio.
type Level int

const (
	// Fastest prioritizes speed over compression ratio.
	Fastest Level = 1
	// Default balances speed and compression.
	Default Level = 5
	// Better improves compression at cost of speed.
	Better Level = 7
	// Best maximizes compression ratio.
	Best Level = 9
)

// Compressor provides compression and decompression functionality.
// All implementations are safe for concurrent use.
type Compressor interface {
	// Compress compresses data and returns the compressed bytes.
	// The input data is not modified.
	Compress(data []byte) ([]byte, error)

	// Decompress decompresses data and returns the original bytes.
	// The input data is not modified.
	Decompress(data []byte) ([]byte, error)

	// CompressStream compresses from reader to writer.
	CompressStream(dst io.Writer, src io.Reader) error

	// DecompressStream decompresses from reader to writer.
	DecompressStream(dst io.Writer, src io.Reader) error

	// NewReader returns a reader yielding the decompressed content of src.
	NewReader(src io.Reader) (io.ReadCloser, error)

	// NewWriter returns a writer compressing into dst. Close must be
	// called to flush the trailing frame; it does not close dst.
	NewWriter(dst io.Writer) (io.WriteCloser, error)

	// Algorithm returns the compression algorithm used.
	Algorithm() Algorithm

	// Level returns the compression level configured.
	Level() Level
}

// Config represents compressor configuration.
type Config struct {
	Algorithm  Algorithm // Compression algorithm to use
	Level      Level     // Compression level
	BufferSize int       // Buffer size hint for in-memory operations
}

// DefaultConfig returns the configuration used for stored payloads:
// gzip at the default level.
func DefaultConfig() *Config {
	return &Config{
		Algorithm:  Gzip,
		Level:      Default,
		BufferSize: 4 * 1024,
	}
}

// NewCompressor creates a new compressor based on the provided configuration.
// If config is nil, default configuration is used.
func NewCompressor(config *Config) (Compressor, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Level == 0 {
		cfg := *config
		cfg.Level = Default
		config = &cfg
	}

	switch config.Algorithm {
	case None, "":
		return &noneCompressor{baseCompressor{algorithm: None, level: config.Level}}, nil
	case Gzip:
		return newGzipCompressor(config)
	case Snappy:
		return &snappyCompressor{baseCompressor{algorithm: Snappy, level: config.Level, bufferSize: config.BufferSize}}, nil
	case LZ4:
		return newLZ4Compressor(config)
	case Zstd:
		return newZstdCompressor(config)
	case S2:
		return &s2Compressor{baseCompressor{algorithm: S2, level: config.Level, bufferSize: config.BufferSize}}, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", config.Algorithm)
	}
}

// ParseAlgorithm converts a user supplied name into an Algorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none", "raw":
		return None, nil
	case "gzip", "gz":
		return Gzip, nil
	case "snappy", "sz":
		return Snappy, nil
	case "lz4":
		return LZ4, nil
	case "zstd", "zst":
		return Zstd, nil
	case "s2":
		return S2, nil
	default:
		return "", fmt.Errorf("unsupported compression algorithm: %s", name)
	}
}

// Algorithms lists every supported algorithm, None first.
func Algorithms() []Algorithm {
	return []Algorithm{None, Gzip, Snappy, LZ4, Zstd, S2}
}

var extensions = map[Algorithm]string{
	None:   "",
	Gzip:   ".gz",
	Snappy: ".sz",
	LZ4:    ".lz4",
	Zstd:   ".zst",
	S2:     ".s2",
}

// Extension returns the file extension conventionally used for the algorithm.
func Extension(a Algorithm) string {
	return extensions[a]
}

// ForPath picks the algorithm from a file name's extension, or None.
func ForPath(path string) Algorithm {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return None
	}
	for alg, e := range extensions {
		if e == ext {
			return alg
		}
	}
	return None
}

// Base compressor implementation
type baseCompressor struct {
	algorithm  Algorithm
	level      Level
	bufferSize int
}

// Algorithm returns the compression algorithm
func (bc *baseCompressor) Algorithm() Algorithm {
	return bc.algorithm
}

// Level returns the compression level
func (bc *baseCompressor) Level() Level {
	return bc.level
}

func (bc *baseCompressor) newBuffer() *bytes.Buffer {
	buf := new(bytes.Buffer)
	if bc.bufferSize > 0 {
		buf.Grow(bc.bufferSize)
	}
	return buf
}

// compressWith and decompressWith express the in-memory operations in terms
// of the streaming constructors for algorithms without a block API.
func compressWith(c Compressor, buf *bytes.Buffer, data []byte) ([]byte, error) {
	w, err := c.NewWriter(buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressWith(c Compressor, buf *bytes.Buffer, data []byte) ([]byte, error) {
	r, err := c.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	if _, err := io.Copy(buf, r); err != nil { //nolint:gosec // G110: inputs are local dataset files and single stored rows
		return nil, err
	}
	return buf.Bytes(), nil
}

func copyStream(c Compressor, dst io.Writer, src io.Reader) error {
	w, err := c.NewWriter(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, src); err != nil {
		return err
	}
	return w.Close()
}

func decompressStream(c Compressor, dst io.Writer, src io.Reader) error {
	r, err := c.NewReader(src)
	if err != nil {
		return err
	}
	defer r.Close()

	_, err = io.Copy(dst, r)
	return err
}

// None compressor (no compression)
type noneCompressor struct {
	baseCompressor
}

func (nc *noneCompressor) Compress(data []byte) ([]byte, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (nc *noneCompressor) Decompress(data []byte) ([]byte, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (nc *noneCompressor) CompressStream(dst io.Writer, src io.Reader) error {
	_, err := io.Copy(dst, src)
	return err
}

func (nc *noneCompressor) DecompressStream(dst io.Writer, src io.Reader) error {
	_, err := io.Copy(dst, src)
	return err
}

func (nc *noneCompressor) NewReader(src io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(src), nil
}

func (nc *noneCompressor) NewWriter(dst io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{dst}, nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// Gzip compressor
type gzipCompressor struct {
	baseCompressor
	gzLevel    int
	writerPool sync.Pool
	readerPool sync.Pool
}

func newGzipCompressor(config *Config) (*gzipCompressor, error) {
	level := mapGzipLevel(config.Level)

	gc := &gzipCompressor{
		baseCompressor: baseCompressor{
			algorithm:  Gzip,
			level:      config.Level,
			bufferSize: config.BufferSize,
		},
		gzLevel: level,
	}

	gc.writerPool.New = func() interface{} {
		w, _ := gzip.NewWriterLevel(nil, level)
		return w
	}

	gc.readerPool.New = func() interface{} {
		return new(gzip.Reader)
	}

	return gc, nil
}

func (gc *gzipCompressor) Compress(data []byte) ([]byte, error) {
	buf := gc.newBuffer()

	w := gc.writerPool.Get().(*gzip.Writer)
	defer gc.writerPool.Put(w)

	w.Reset(buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gc *gzipCompressor) Decompress(data []byte) ([]byte, error) {
	r := gc.readerPool.Get().(*gzip.Reader)
	defer gc.readerPool.Put(r)

	if err := r.Reset(bytes.NewReader(data)); err != nil {
		return nil, err
	}

	buf := gc.newBuffer()
	if _, err := io.Copy(buf, r); err != nil { //nolint:gosec // G110: single stored rows
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gc *gzipCompressor) CompressStream(dst io.Writer, src io.Reader) error {
	return copyStream(gc, dst, src)
}

func (gc *gzipCompressor) DecompressStream(dst io.Writer, src io.Reader) error {
	return decompressStream(gc, dst, src)
}

func (gc *gzipCompressor) NewReader(src io.Reader) (io.ReadCloser, error) {
	r, err := gzip.NewReader(src)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (gc *gzipCompressor) NewWriter(dst io.Writer) (io.WriteCloser, error) {
	w, err := gzip.NewWriterLevel(dst, gc.gzLevel)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Snappy compressor (framed stream format)
type snappyCompressor struct {
	baseCompressor
}

func (sc *snappyCompressor) Compress(data []byte) ([]byte, error) {
	return compressWith(sc, sc.newBuffer(), data)
}

func (sc *snappyCompressor) Decompress(data []byte) ([]byte, error) {
	return decompressWith(sc, sc.newBuffer(), data)
}

func (sc *snappyCompressor) CompressStream(dst io.Writer, src io.Reader) error {
	return copyStream(sc, dst, src)
}

func (sc *snappyCompressor) DecompressStream(dst io.Writer, src io.Reader) error {
	return decompressStream(sc, dst, src)
}

func (sc *snappyCompressor) NewReader(src io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(snappy.NewReader(src)), nil
}

func (sc *snappyCompressor) NewWriter(dst io.Writer) (io.WriteCloser, error) {
	return snappy.NewBufferedWriter(dst), nil
}

// LZ4 compressor
type lz4Compressor struct {
	baseCompressor
	compressionLevel lz4.CompressionLevel
}

func newLZ4Compressor(config *Config) (*lz4Compressor, error) {
	return &lz4Compressor{
		baseCompressor: baseCompressor{
			algorithm:  LZ4,
			level:      config.Level,
			bufferSize: config.BufferSize,
		},
		compressionLevel: mapLZ4Level(config.Level),
	}, nil
}

func (lc *lz4Compressor) Compress(data []byte) ([]byte, error) {
	return compressWith(lc, lc.newBuffer(), data)
}

func (lc *lz4Compressor) Decompress(data []byte) ([]byte, error) {
	return decompressWith(lc, lc.newBuffer(), data)
}

func (lc *lz4Compressor) CompressStream(dst io.Writer, src io.Reader) error {
	return copyStream(lc, dst, src)
}

func (lc *lz4Compressor) DecompressStream(dst io.Writer, src io.Reader) error {
	return decompressStream(lc, dst, src)
}

func (lc *lz4Compressor) NewReader(src io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(src)), nil
}

func (lc *lz4Compressor) NewWriter(dst io.Writer) (io.WriteCloser, error) {
	w := lz4.NewWriter(dst)

	// Apply compression level using the v4 API
	if err := w.Apply(lz4.CompressionLevelOption(lc.compressionLevel)); err != nil {
		return nil, err
	}
	return w, nil
}

// Zstd compressor
type zstdCompressor struct {
	baseCompressor
	encoderLevel zstd.EncoderLevel
	encoderPool  sync.Pool
	decoderPool  sync.Pool
}

func newZstdCompressor(config *Config) (*zstdCompressor, error) {
	level := mapZstdLevel(config.Level)

	zc := &zstdCompressor{
		baseCompressor: baseCompressor{
			algorithm:  Zstd,
			level:      config.Level,
			bufferSize: config.BufferSize,
		},
		encoderLevel: level,
	}

	zc.encoderPool.New = func() interface{} {
		enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
		return enc
	}

	zc.decoderPool.New = func() interface{} {
		dec, _ := zstd.NewReader(nil)
		return dec
	}

	return zc, nil
}

func (zc *zstdCompressor) Compress(data []byte) ([]byte, error) {
	enc := zc.encoderPool.Get().(*zstd.Encoder)
	defer zc.encoderPool.Put(enc)

	return enc.EncodeAll(data, nil), nil
}

func (zc *zstdCompressor) Decompress(data []byte) ([]byte, error) {
	dec := zc.decoderPool.Get().(*zstd.Decoder)
	defer zc.decoderPool.Put(dec)

	return dec.DecodeAll(data, nil)
}

func (zc *zstdCompressor) CompressStream(dst io.Writer, src io.Reader) error {
	return copyStream(zc, dst, src)
}

func (zc *zstdCompressor) DecompressStream(dst io.Writer, src io.Reader) error {
	return decompressStream(zc, dst, src)
}

func (zc *zstdCompressor) NewReader(src io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(src)
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}

func (zc *zstdCompressor) NewWriter(dst io.Writer) (io.WriteCloser, error) {
	enc, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(zc.encoderLevel))
	if err != nil {
		return nil, err
	}
	return enc, nil
}

// S2 compressor (Snappy-compatible but better compression)
type s2Compressor struct {
	baseCompressor
}

func (sc *s2Compressor) Compress(data []byte) ([]byte, error) {
	return compressWith(sc, sc.newBuffer(), data)
}

func (sc *s2Compressor) Decompress(data []byte) ([]byte, error) {
	return decompressWith(sc, sc.newBuffer(), data)
}

func (sc *s2Compressor) CompressStream(dst io.Writer, src io.Reader) error {
	return copyStream(sc, dst, src)
}

func (sc *s2Compressor) DecompressStream(dst io.Writer, src io.Reader) error {
	return decompressStream(sc, dst, src)
}

func (sc *s2Compressor) NewReader(src io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(s2.NewReader(src)), nil
}

func (sc *s2Compressor) NewWriter(dst io.Writer) (io.WriteCloser, error) {
	return s2.NewWriter(dst), nil
}

// Helper functions to map compression levels

func mapGzipLevel(level Level) int {
	switch level {
	case Fastest:
		return gzip.BestSpeed
	case Best:
		return gzip.BestCompression
	default:
		return gzip.DefaultCompression
	}
}

func mapLZ4Level(level Level) lz4.CompressionLevel {
	switch level {
	case Fastest:
		return lz4.Fast
	case Best:
		return lz4.Level9
	default:
		return lz4.Level5
	}
}

func mapZstdLevel(level Level) zstd.EncoderLevel {
	switch level {
	case Fastest:
		return zstd.SpeedFastest
	case Better:
		return zstd.SpeedBetterCompression
	case Best:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}
