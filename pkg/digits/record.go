// Package digits provides the data model shared by every stage of mnistsql:
// fixed-size grayscale images, labeled records, and per-label buckets.
//
// Records flow from a dataset source through the grouper into buckets, and
// from buckets into storage. Values are treated as immutable once they are
// placed in a bucket; constructors copy their input so callers may reuse
// their own buffers.
package digits

import (
	"fmt"
	"sort"
)

const (
	// Rows is the height of a canonical MNIST image
	Rows = 28
	// Cols is the width of a canonical MNIST image
	Cols = 28
	// NumLabels is the size of the fixed label space (0..9)
	NumLabels = 10
)

// Image is a 2D grid of unsigned 8-bit samples stored in row-major order.
type Image struct {
	Rows int
	Cols int
	// Pix holds Rows*Cols samples, row by row
	Pix []byte
}

// NewImage creates an image from row-major samples. The samples are copied.
// It returns an error if the sample count does not match the dimensions.
func NewImage(rows, cols int, pix []byte) (Image, error) {
	if rows <= 0 || cols <= 0 {
		return Image{}, fmt.Errorf("invalid image dimensions %dx%d", rows, cols)
	}
	if len(pix) != rows*cols {
		return Image{}, fmt.Errorf("image %dx%d needs %d samples, got %d", rows, cols, rows*cols, len(pix))
	}
	cp := make([]byte, len(pix))
	copy(cp, pix)
	return Image{Rows: rows, Cols: cols, Pix: cp}, nil
}

// At returns the sample at row r, column c.
func (img Image) At(r, c int) byte {
	return img.Pix[r*img.Cols+c]
}

// Len returns the number of samples the dimensions call for.
func (img Image) Len() int {
	return img.Rows * img.Cols
}

// Valid reports whether the sample count matches the dimensions.
func (img Image) Valid() bool {
	return img.Rows > 0 && img.Cols > 0 && len(img.Pix) == img.Len()
}

// Equal reports whether two images have the same dimensions and samples.
func (img Image) Equal(other Image) bool {
	if img.Rows != other.Rows || img.Cols != other.Cols || len(img.Pix) != len(other.Pix) {
		return false
	}
	for i := range img.Pix {
		if img.Pix[i] != other.Pix[i] {
			return false
		}
	}
	return true
}

// Record is a single labeled image.
type Record struct {
	Label int
	Image Image
}

// ValidLabel reports whether label lies in the fixed label space.
func ValidLabel(label int) bool {
	return label >= 0 && label < NumLabels
}

// Buckets maps a label to the records collected for it, in source order.
// Every label of the active domain has an entry, possibly empty.
type Buckets map[int][]Record

// NewBuckets creates buckets with an empty sequence for each given label.
func NewBuckets(labels []int) Buckets {
	b := make(Buckets, len(labels))
	for _, l := range labels {
		b[l] = []Record{}
	}
	return b
}

// Labels returns the bucket keys in ascending order.
func (b Buckets) Labels() []int {
	labels := make([]int, 0, len(b))
	for l := range b {
		labels = append(labels, l)
	}
	sort.Ints(labels)
	return labels
}

// Total returns the number of records across all buckets.
func (b Buckets) Total() int {
	n := 0
	for _, recs := range b {
		n += len(recs)
	}
	return n
}

// Counts returns the number of records per label.
func (b Buckets) Counts() map[int]int {
	counts := make(map[int]int, len(b))
	for l, recs := range b {
		counts[l] = len(recs)
	}
	return counts
}
