package annotation

import "fmt"

// Category is one of the four ordinal fitness classes assigned to a region.
type Category int

// Categories in detector class-id order.
const (
	VeryLow Category = iota
	Low
	Normal
	High
)

// categoryCount is the size of the closed category set.
const categoryCount = 4

// categoryLabels maps each category to the label used in annotation files and
// output directory names. The index is the detector class id.
var categoryLabels = [categoryCount]string{
	VeryLow: "Very low",
	Low:     "low",
	Normal:  "normal",
	High:    "high",
}

var labelCategories = func() map[string]Category {
	m := make(map[string]Category, categoryCount)
	for i, label := range categoryLabels {
		m[label] = Category(i)
	}
	return m
}()

// Categories returns every category in class-id order.
func Categories() []Category {
	return []Category{VeryLow, Low, Normal, High}
}

// ParseCategory resolves an annotation label. Matching is exact and
// case-sensitive; ok is false for labels outside the fixed set.
func ParseCategory(label string) (Category, bool) {
	c, ok := labelCategories[label]
	return c, ok
}

// CategoryFromClassID resolves a detector class id.
func CategoryFromClassID(id int) (Category, bool) {
	if id < 0 || id >= categoryCount {
		return 0, false
	}
	return Category(id), true
}

// Valid reports whether c is one of the four known categories.
func (c Category) Valid() bool {
	return c >= 0 && int(c) < categoryCount
}

// ClassID returns the detector class id (VeryLow=0 ... High=3).
func (c Category) ClassID() int {
	return int(c)
}

// Label returns the annotation label, e.g. "Very low".
func (c Category) Label() string {
	if !c.Valid() {
		return fmt.Sprintf("Category(%d)", int(c))
	}
	return categoryLabels[c]
}

func (c Category) String() string {
	return c.Label()
}
