package dataset

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ajitpratap0/mnistsql/pkg/compression"
	"github.com/ajitpratap0/mnistsql/pkg/digits"
	"github.com/ajitpratap0/mnistsql/pkg/errors"
)

const (
	// ImagesMagic identifies an IDX file of unsigned byte 3D tensors
	ImagesMagic uint32 = 0x00000803
	// LabelsMagic identifies an IDX file of unsigned byte vectors
	LabelsMagic uint32 = 0x00000801

	// MaxDimension bounds the rows and cols an image header may declare
	MaxDimension = 4096
)

// Split names one half of the canonical dataset.
type Split string

const (
	// Train is the 60k training split
	Train Split = "train"
	// Test is the 10k test split
	Test Split = "t10k"
)

// ParseSplit accepts "train", "test" or "t10k".
func ParseSplit(s string) (Split, error) {
	switch s {
	case "train", "":
		return Train, nil
	case "test", "t10k":
		return Test, nil
	default:
		return "", errors.Newf(errors.ErrorTypeValidation, "unknown split %q (want train or test)", s)
	}
}

// ImagesFile returns the base file name of the split's image file.
func (s Split) ImagesFile() string {
	return string(s) + "-images-idx3-ubyte"
}

// LabelsFile returns the base file name of the split's label file.
func (s Split) LabelsFile() string {
	return string(s) + "-labels-idx1-ubyte"
}

// IDXSource streams records from an IDX image file and its label file.
// Either file may be compressed with any algorithm known to the
// compression package; the algorithm is picked from the file extension.
type IDXSource struct {
	images     io.ReadCloser
	labels     io.ReadCloser
	closers    []io.Closer
	imagesPath string
	count      int
	rows       int
	cols       int
	pos        int
}

// Open locates the split's IDX pair under root, trying the plain names
// first and then every compressed extension.
func Open(root string, split Split) (*IDXSource, error) {
	images, err := locate(root, split.ImagesFile())
	if err != nil {
		return nil, err
	}
	labels, err := locate(root, split.LabelsFile())
	if err != nil {
		return nil, err
	}
	return OpenFiles(images, labels)
}

func locate(root, base string) (string, error) {
	for _, alg := range compression.Algorithms() {
		path := filepath.Join(root, base+compression.Extension(alg))
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", errors.Newf(errors.ErrorTypeNotFound, "no %s file under %s", base, root).
		WithDetail("root", root)
}

// OpenFiles opens an explicit image/label file pair.
func OpenFiles(imagesPath, labelsPath string) (*IDXSource, error) {
	src := &IDXSource{imagesPath: imagesPath}

	images, err := src.openDecompressed(imagesPath)
	if err != nil {
		src.Close()
		return nil, err
	}
	labels, err := src.openDecompressed(labelsPath)
	if err != nil {
		src.Close()
		return nil, err
	}
	src.images = images
	src.labels = labels

	imgCount, rows, cols, err := readImagesHeader(images)
	if err != nil {
		src.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read image header").
			WithDetail("path", imagesPath)
	}
	lblCount, err := readLabelsHeader(labels)
	if err != nil {
		src.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read label header").
			WithDetail("path", labelsPath)
	}
	if imgCount != lblCount {
		src.Close()
		return nil, errors.Newf(errors.ErrorTypeData, "%d images but %d labels", imgCount, lblCount)
	}

	src.count = imgCount
	src.rows = rows
	src.cols = cols
	return src, nil
}

func (s *IDXSource) openDecompressed(path string) (io.ReadCloser, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from configuration
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to open dataset file").
			WithDetail("path", path)
	}
	s.closers = append(s.closers, f)

	comp, err := compression.NewCompressor(&compression.Config{Algorithm: compression.ForPath(path)})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "unsupported dataset file compression")
	}
	r, err := comp.NewReader(bufio.NewReader(f))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to open decompressor").
			WithDetail("path", path)
	}
	s.closers = append(s.closers, r)
	return r, nil
}

func readImagesHeader(r io.Reader) (count, rows, cols int, err error) {
	var hdr [4]uint32
	if err := binary.Read(r, binary.BigEndian, &hdr); err != nil {
		return 0, 0, 0, err
	}
	if hdr[0] != ImagesMagic {
		return 0, 0, 0, fmt.Errorf("bad image magic 0x%08x", hdr[0])
	}
	if hdr[2] == 0 || hdr[3] == 0 || hdr[2] > MaxDimension || hdr[3] > MaxDimension {
		return 0, 0, 0, fmt.Errorf("bad image dimensions %dx%d (each must be 1..%d)", hdr[2], hdr[3], MaxDimension)
	}
	return int(hdr[1]), int(hdr[2]), int(hdr[3]), nil
}

func readLabelsHeader(r io.Reader) (int, error) {
	var hdr [2]uint32
	if err := binary.Read(r, binary.BigEndian, &hdr); err != nil {
		return 0, err
	}
	if hdr[0] != LabelsMagic {
		return 0, fmt.Errorf("bad label magic 0x%08x", hdr[0])
	}
	return int(hdr[1]), nil
}

// Len implements Source.
func (s *IDXSource) Len() int {
	return s.count
}

// Dimensions returns the image height and width declared by the file.
func (s *IDXSource) Dimensions() (rows, cols int) {
	return s.rows, s.cols
}

// Next implements Source.
func (s *IDXSource) Next(ctx context.Context) (digits.Record, error) {
	if err := ctx.Err(); err != nil {
		return digits.Record{}, err
	}
	if s.pos >= s.count {
		return digits.Record{}, io.EOF
	}

	var label [1]byte
	if _, err := io.ReadFull(s.labels, label[:]); err != nil {
		return digits.Record{}, errors.Wrap(err, errors.ErrorTypeFile, "truncated label file").
			WithDetail("index", s.pos)
	}
	pix := make([]byte, s.rows*s.cols)
	if _, err := io.ReadFull(s.images, pix); err != nil {
		return digits.Record{}, errors.Wrap(err, errors.ErrorTypeFile, "truncated image file").
			WithDetail("index", s.pos).
			WithDetail("path", s.imagesPath)
	}
	s.pos++

	return digits.Record{
		Label: int(label[0]),
		Image: digits.Image{Rows: s.rows, Cols: s.cols, Pix: pix},
	}, nil
}

// Close releases the underlying files.
func (s *IDXSource) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}

// WriteImages writes an IDX image file for images, which must all share
// the dimensions of the first one.
func WriteImages(w io.Writer, images []digits.Image) error {
	rows, cols := digits.Rows, digits.Cols
	if len(images) > 0 {
		rows, cols = images[0].Rows, images[0].Cols
	}
	hdr := [4]uint32{ImagesMagic, uint32(len(images)), uint32(rows), uint32(cols)} //nolint:gosec // counts fit in uint32
	if err := binary.Write(w, binary.BigEndian, hdr); err != nil {
		return err
	}
	for i, img := range images {
		if img.Rows != rows || img.Cols != cols || !img.Valid() {
			return errors.Newf(errors.ErrorTypeData, "image %d is %dx%d, want %dx%d", i, img.Rows, img.Cols, rows, cols)
		}
		if _, err := w.Write(img.Pix); err != nil {
			return err
		}
	}
	return nil
}

// WriteLabels writes an IDX label file.
func WriteLabels(w io.Writer, labels []int) error {
	hdr := [2]uint32{LabelsMagic, uint32(len(labels))} //nolint:gosec // counts fit in uint32
	if err := binary.Write(w, binary.BigEndian, hdr); err != nil {
		return err
	}
	buf := make([]byte, len(labels))
	for i, l := range labels {
		if l < 0 || l > 255 {
			return errors.Newf(errors.ErrorTypeData, "label %d at %d does not fit a byte", l, i)
		}
		buf[i] = byte(l)
	}
	_, err := w.Write(buf)
	return err
}
