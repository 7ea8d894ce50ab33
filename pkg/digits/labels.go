package digits

import "sort"

// LabelSpace is the active label domain: the fixed space 0..NumLabels-1,
// optionally narrowed to a caller-supplied subset.
type LabelSpace struct {
	labels []int
	member [NumLabels]bool
}

// AllLabels returns the full label space.
func AllLabels() LabelSpace {
	ls := LabelSpace{labels: make([]int, 0, NumLabels)}
	for l := 0; l < NumLabels; l++ {
		ls.labels = append(ls.labels, l)
		ls.member[l] = true
	}
	return ls
}

// NewLabelSpace intersects the fixed space with only. A nil slice selects
// the full space; labels outside 0..NumLabels-1 are ignored and duplicates
// collapse.
func NewLabelSpace(only []int) LabelSpace {
	if only == nil {
		return AllLabels()
	}
	var ls LabelSpace
	for _, l := range only {
		if !ValidLabel(l) || ls.member[l] {
			continue
		}
		ls.member[l] = true
		ls.labels = append(ls.labels, l)
	}
	sort.Ints(ls.labels)
	return ls
}

// Contains reports whether label belongs to the space.
func (ls LabelSpace) Contains(label int) bool {
	return ValidLabel(label) && ls.member[label]
}

// Labels returns the labels of the space in ascending order.
func (ls LabelSpace) Labels() []int {
	out := make([]int, len(ls.labels))
	copy(out, ls.labels)
	return out
}

// Len returns the number of labels in the space.
func (ls LabelSpace) Len() int {
	return len(ls.labels)
}
