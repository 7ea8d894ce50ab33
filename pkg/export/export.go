// Package export writes grouped records to the filesystem, either as one
// PNG per record in a folder per label, or as one IDX file pair per label.
package export

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/ajitpratap0/mnistsql/pkg/compression"
	"github.com/ajitpratap0/mnistsql/pkg/dataset"
	"github.com/ajitpratap0/mnistsql/pkg/digits"
	"github.com/ajitpratap0/mnistsql/pkg/errors"
)

// Folders writes outRoot/<label>/<label>_<index>.png for every record and
// returns the number of files written. Labels with no records still get
// their folder.
func Folders(buckets digits.Buckets, outRoot string, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	written := 0
	for _, label := range buckets.Labels() {
		dir := filepath.Join(outRoot, strconv.Itoa(label))
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return written, errors.Wrap(err, errors.ErrorTypeFile, "failed to create label folder").
				WithDetail("path", dir)
		}
		for i, rec := range buckets[label] {
			path := filepath.Join(dir, fmt.Sprintf("%d_%d.png", label, i))
			if err := SavePNG(path, rec.Image); err != nil {
				return written, err
			}
			written++
		}
		logger.Debug("label exported", zap.Int("label", label), zap.Int("files", len(buckets[label])))
	}
	return written, nil
}

// SavePNG writes img as an 8-bit grayscale PNG.
func SavePNG(path string, img digits.Image) error {
	if !img.Valid() {
		return errors.Newf(errors.ErrorTypeData, "image %dx%d has %d samples", img.Rows, img.Cols, len(img.Pix))
	}
	gray := &image.Gray{
		Pix:    img.Pix,
		Stride: img.Cols,
		Rect:   image.Rect(0, 0, img.Cols, img.Rows),
	}

	f, err := os.Create(path) //nolint:gosec // output path chosen by the caller
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create image file").WithDetail("path", path)
	}
	if err := png.Encode(f, gray); err != nil {
		f.Close()
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to encode png").WithDetail("path", path)
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to close image file").WithDetail("path", path)
	}
	return nil
}

// LoadPNG reads a grayscale PNG written by SavePNG.
func LoadPNG(path string) (digits.Image, error) {
	f, err := os.Open(path) //nolint:gosec // path chosen by the caller
	if err != nil {
		return digits.Image{}, errors.Wrap(err, errors.ErrorTypeFile, "failed to open image file").WithDetail("path", path)
	}
	defer f.Close()

	decoded, err := png.Decode(f)
	if err != nil {
		return digits.Image{}, errors.Wrap(err, errors.ErrorTypeData, "failed to decode png").WithDetail("path", path)
	}
	b := decoded.Bounds()
	pix := make([]byte, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			pix = append(pix, color.GrayModel.Convert(decoded.At(x, y)).(color.Gray).Y) //nolint:forcetypeassert // GrayModel always returns Gray
		}
	}
	return digits.NewImage(b.Dy(), b.Dx(), pix)
}

// IDX writes outRoot/<label>/{images,labels} IDX files compressed with alg
// and returns the number of records written. Each pair can be read back
// with dataset.OpenFiles.
func IDX(buckets digits.Buckets, outRoot string, alg compression.Algorithm, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	comp, err := compression.NewCompressor(&compression.Config{Algorithm: alg, Level: compression.Best})
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeValidation, "unsupported export compression")
	}

	written := 0
	for _, label := range buckets.Labels() {
		recs := buckets[label]
		dir := filepath.Join(outRoot, strconv.Itoa(label))
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return written, errors.Wrap(err, errors.ErrorTypeFile, "failed to create label folder").WithDetail("path", dir)
		}

		images := make([]digits.Image, len(recs))
		labels := make([]int, len(recs))
		for i, rec := range recs {
			images[i] = rec.Image
			labels[i] = rec.Label
		}

		imagesPath, labelsPath := PairPaths(dir, alg)
		if err := writeCompressed(imagesPath, comp, func(w *bufio.Writer) error { return dataset.WriteImages(w, images) }); err != nil {
			return written, err
		}
		if err := writeCompressed(labelsPath, comp, func(w *bufio.Writer) error { return dataset.WriteLabels(w, labels) }); err != nil {
			return written, err
		}
		written += len(recs)
		logger.Debug("label exported", zap.Int("label", label), zap.String("images", imagesPath))
	}
	return written, nil
}

// PairPaths returns the image and label file paths IDX writes in dir.
func PairPaths(dir string, alg compression.Algorithm) (images, labels string) {
	ext := compression.Extension(alg)
	return filepath.Join(dir, "images-idx3-ubyte"+ext), filepath.Join(dir, "labels-idx1-ubyte"+ext)
}

func writeCompressed(path string, comp compression.Compressor, fill func(*bufio.Writer) error) error {
	f, err := os.Create(path) //nolint:gosec // output path chosen by the caller
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create export file").WithDetail("path", path)
	}
	defer f.Close()

	cw, err := comp.NewWriter(f)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to open compressor").WithDetail("path", path)
	}
	bw := bufio.NewWriter(cw)
	if err := fill(bw); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write export file").WithDetail("path", path)
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to flush export file").WithDetail("path", path)
	}
	if err := cw.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to finish compression").WithDetail("path", path)
	}
	return f.Close()
}
