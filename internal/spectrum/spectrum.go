// Package spectrum holds the scan-level data model shared by the converter
// and the viewer store, and the parser that validates raw spectra into it.
package spectrum

import (
	"fmt"
	"math"
)

// Precursor is the selected ion of an MSn scan. Charge is 0 when the
// instrument did not report it. IsolationLow and IsolationHigh are the
// absolute isolation window bounds, NaN when unknown.
type Precursor struct {
	Mz            float64
	Charge        int
	IsolationLow  float64
	IsolationHigh float64
}

// HasIsolation reports whether both isolation window bounds are known.
func (p *Precursor) HasIsolation() bool {
	return !math.IsNaN(p.IsolationLow) && !math.IsNaN(p.IsolationHigh)
}

// Record is one MS scan. Records are never modified after construction;
// the slices may be shared with a store and must be treated as read-only.
type Record struct {
	ScanID        int    // 0-based position in the source file
	NativeID      string // id attribute in the source file
	MSLevel       int
	RetentionTime float64 // seconds
	// Precursor is nil for MS1 scans and for MSn scans without a
	// reported precursor m/z.
	Precursor      *Precursor
	Mz             []float64
	Intensity      []float64
	TotalIntensity float64
	// MzSorted is false when Mz is not strictly increasing. Binary search
	// over Mz is only valid when it is true.
	MzSorted          bool
	BasePeakMz        float64
	BasePeakIntensity float64
}

// Len returns the number of peaks.
func (r *Record) Len() int { return len(r.Mz) }

// SchemaError is a fatal structural problem in a spectrum.
type SchemaError struct {
	ScanID   int
	NativeID string
	Field    string
	Message  string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("spectrum %d (%q): schema error in %s: %s",
		e.ScanID, e.NativeID, e.Field, e.Message)
}

// WarningKind classifies data-quality warnings.
type WarningKind int

const (
	WarnNonMonotonicMz WarningKind = iota + 1
	WarnMissingPrecursorMz
	WarnRetentionTimeDecreased
	WarnMissingRetentionTime
	WarnArrayLengthDeclared
)

var warningNames = map[WarningKind]string{
	WarnNonMonotonicMz:         "non-monotonic m/z",
	WarnMissingPrecursorMz:     "missing precursor m/z",
	WarnRetentionTimeDecreased: "retention time decreased",
	WarnMissingRetentionTime:   "missing retention time",
	WarnArrayLengthDeclared:    "array length differs from declared",
}

func (k WarningKind) String() string {
	if s, ok := warningNames[k]; ok {
		return s
	}
	return fmt.Sprintf("warning(%d)", int(k))
}

// Warning is a recoverable data-quality problem. The record it refers to
// is kept; the warning travels alongside it to the caller.
type Warning struct {
	ScanID   int
	NativeID string
	Kind     WarningKind
	Message  string
}

func (w Warning) String() string {
	return fmt.Sprintf("spectrum %d (%q): %s: %s", w.ScanID, w.NativeID, w.Kind, w.Message)
}
