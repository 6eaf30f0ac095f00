// Package models - Output class definitions for the parking-space detector.
package models

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrClassOutOfRange is returned when a model emits a class index outside the label table.
var ErrClassOutOfRange = errors.New("class index out of range")

// ClassLabel is the index of a parking-space state in ParkingClasses.
type ClassLabel int

const (
	// ClassSpaceEmpty marks a free parking space.
	ClassSpaceEmpty ClassLabel = iota
	// ClassSpaceOccupied marks a space with a vehicle in it.
	ClassSpaceOccupied
)

// OutputClass represents one detection label.
type OutputClass struct {
	// The integer index returned by the model.
	Index int
	// The machine label, e.g. "space-empty".
	Name string
}

// ParkingClasses is the ordered label table of the occupancy model. The model's class id
// indexes directly into it.
var ParkingClasses = []OutputClass{
	{int(ClassSpaceEmpty), "space-empty"},
	{int(ClassSpaceOccupied), "space-occupied"},
}

// LookupClass resolves a raw class id to a ClassLabel.
//
// Arguments:
//   - id: The class id read from the output tensor.
//
// Returns:
//   - ClassLabel: The resolved label.
//   - error: ErrClassOutOfRange (wrapped with the offending id) when id is not in ParkingClasses.
func LookupClass(id int) (ClassLabel, error) {
	if id < 0 || id >= len(ParkingClasses) {
		return 0, errors.Wrapf(ErrClassOutOfRange, "index %d not in [0, %d)", id, len(ParkingClasses))
	}
	return ClassLabel(id), nil
}

// Classes returns every label in table order.
func Classes() []ClassLabel {
	out := make([]ClassLabel, len(ParkingClasses))
	for i := range ParkingClasses {
		out[i] = ClassLabel(i)
	}
	return out
}

// Valid reports whether c indexes ParkingClasses.
func (c ClassLabel) Valid() bool {
	return c >= 0 && int(c) < len(ParkingClasses)
}

// String returns the machine label, e.g. "space-occupied".
func (c ClassLabel) String() string {
	if !c.Valid() {
		return fmt.Sprintf("class(%d)", int(c))
	}
	return ParkingClasses[c].Name
}

// DisplayName returns the human-readable label, e.g. "Space Occupied".
func (c ClassLabel) DisplayName() string {
	return FormatLabel(c.String())
}

// MarshalText encodes the label by name so ClassLabel works as a JSON map key.
func (c ClassLabel) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, errors.Wrapf(ErrClassOutOfRange, "index %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText decodes a label name written by MarshalText.
func (c *ClassLabel) UnmarshalText(text []byte) error {
	for _, oc := range ParkingClasses {
		if oc.Name == string(text) {
			*c = ClassLabel(oc.Index)
			return nil
		}
	}
	return errors.Errorf("unknown class label %q", string(text))
}

// FormatLabel turns a machine label into display text: every '-' or '_' separator becomes
// a space and each word is title-cased ("space-empty" -> "Space Empty").
func FormatLabel(label string) string {
	words := strings.FieldsFunc(label, func(r rune) bool {
		return r == '-' || r == '_'
	})
	// A Caser is stateful, so one is built per call.
	return cases.Title(language.Und).String(strings.Join(words, " "))
}

// ClassCounts is the number of kept detections per label.
type ClassCounts map[ClassLabel]int

// Add merges other into c.
func (c ClassCounts) Add(other ClassCounts) {
	for k, v := range other {
		c[k] += v
	}
}

// Total returns the sum of all counts.
func (c ClassCounts) Total() int {
	total := 0
	for _, v := range c {
		total += v
	}
	return total
}
