package spectrum

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Input is the raw content of one spectrum element, after decoding of the
// binary arrays.
type Input struct {
	NativeID         string
	MSLevel          int
	RetentionTime    float64 // seconds
	HasRetentionTime bool
	// Precursor as reported in the file, nil when there is no
	// precursorList. Mz may be NaN when only the list is present.
	Precursor *Precursor
	Mz        []float64
	Intensity []float64
	// DeclaredLength is the defaultArrayLength attribute, -1 if unknown.
	DeclaredLength int
}

// Parser turns Inputs into Records. ScanIDs are assigned in call order.
// Besides the scan counter the parser only keeps the previous retention
// time, so it holds no reference to earlier records.
type Parser struct {
	next   int
	lastRT float64
	seenRT bool
}

// NewParser returns a parser that starts numbering at scan 0.
func NewParser() *Parser {
	return &Parser{}
}

// Parse validates in and builds its Record. The slices of in are taken
// over by the record. A SchemaError is fatal for the conversion; warnings
// describe problems the record was kept in spite of.
func (p *Parser) Parse(in Input) (Record, []Warning, error) {
	id := p.next
	p.next++

	var warnings []Warning
	warn := func(kind WarningKind, format string, args ...any) {
		warnings = append(warnings, Warning{
			ScanID:   id,
			NativeID: in.NativeID,
			Kind:     kind,
			Message:  fmt.Sprintf(format, args...),
		})
	}

	if in.MSLevel < 1 {
		return Record{}, nil, &SchemaError{ScanID: id, NativeID: in.NativeID,
			Field: "ms_level", Message: fmt.Sprintf("invalid ms level %d", in.MSLevel)}
	}
	if len(in.Mz) != len(in.Intensity) {
		return Record{}, nil, &SchemaError{ScanID: id, NativeID: in.NativeID,
			Field: "intensity_array", Message: fmt.Sprintf(
				"%d m/z values but %d intensities", len(in.Mz), len(in.Intensity))}
	}
	if in.DeclaredLength >= 0 && in.DeclaredLength != len(in.Mz) {
		warn(WarnArrayLengthDeclared, "declared %d peaks, decoded %d",
			in.DeclaredLength, len(in.Mz))
	}

	rec := Record{
		ScanID:    id,
		NativeID:  in.NativeID,
		MSLevel:   in.MSLevel,
		Mz:        in.Mz,
		Intensity: in.Intensity,
		MzSorted:  true,
	}

	rt := in.RetentionTime
	switch {
	case !in.HasRetentionTime || math.IsNaN(rt):
		warn(WarnMissingRetentionTime, "using %g s from the previous scan", p.lastRT)
		rt = p.lastRT
	case p.seenRT && rt < p.lastRT:
		warn(WarnRetentionTimeDecreased, "%g s after %g s", rt, p.lastRT)
	}
	rec.RetentionTime = rt
	p.lastRT = rt
	p.seenRT = true

	for i := 1; i < len(rec.Mz); i++ {
		if !(rec.Mz[i] > rec.Mz[i-1]) {
			rec.MzSorted = false
			warn(WarnNonMonotonicMz, "m/z %g at peak %d follows %g", rec.Mz[i], i, rec.Mz[i-1])
			break
		}
	}

	if in.MSLevel >= 2 {
		if in.Precursor == nil || math.IsNaN(in.Precursor.Mz) {
			warn(WarnMissingPrecursorMz, "ms level %d scan without precursor m/z", in.MSLevel)
		} else {
			pre := *in.Precursor
			rec.Precursor = &pre
		}
	}

	if len(rec.Intensity) > 0 {
		rec.TotalIntensity = floats.Sum(rec.Intensity)
		i := floats.MaxIdx(rec.Intensity)
		rec.BasePeakMz = rec.Mz[i]
		rec.BasePeakIntensity = rec.Intensity[i]
	}
	return rec, warnings, nil
}

// Count returns the number of spectra parsed so far.
func (p *Parser) Count() int {
	return p.next
}
