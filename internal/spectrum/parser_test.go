package spectrum

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func ms1(rt float64, mz, intensity []float64) Input {
	return Input{
		NativeID:         "scan",
		MSLevel:          1,
		RetentionTime:    rt,
		HasRetentionTime: true,
		Mz:               mz,
		Intensity:        intensity,
		DeclaredLength:   len(mz),
	}
}

func kinds(warnings []Warning) []WarningKind {
	var k []WarningKind
	for _, w := range warnings {
		k = append(k, w.Kind)
	}
	return k
}

func TestParseRecord(t *testing.T) {
	p := NewParser()
	rec, warnings, err := p.Parse(ms1(10, []float64{100, 200, 300}, []float64{1, 5, 2}))
	if err != nil {
		t.Fatalf("Parse: error return %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("Parse: warnings %v", warnings)
	}
	want := Record{
		ScanID:            0,
		NativeID:          "scan",
		MSLevel:           1,
		RetentionTime:     10,
		Mz:                []float64{100, 200, 300},
		Intensity:         []float64{1, 5, 2},
		TotalIntensity:    8,
		MzSorted:          true,
		BasePeakMz:        200,
		BasePeakIntensity: 5,
	}
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Errorf("Parse (-want +got):\n%s", diff)
	}

	// Scan ids follow call order
	rec, _, _ = p.Parse(ms1(11, nil, nil))
	if rec.ScanID != 1 || p.Count() != 2 {
		t.Errorf("second record: scan id %d, count %d", rec.ScanID, p.Count())
	}
	if rec.TotalIntensity != 0 || rec.BasePeakMz != 0 || !rec.MzSorted {
		t.Errorf("empty record: %+v", rec)
	}
}

func TestParseMS2(t *testing.T) {
	p := NewParser()
	in := ms1(5, []float64{50}, []float64{1})
	in.MSLevel = 2
	in.Precursor = &Precursor{Mz: 400.2, Charge: 2, IsolationLow: 399.2, IsolationHigh: 401.2}
	rec, warnings, err := p.Parse(in)
	if err != nil || len(warnings) != 0 {
		t.Fatalf("Parse: %v %v", err, warnings)
	}
	if diff := cmp.Diff(in.Precursor, rec.Precursor); diff != "" {
		t.Errorf("Precursor (-want +got):\n%s", diff)
	}
	if rec.Precursor == in.Precursor {
		t.Errorf("Precursor shared with the input")
	}

	// Charge absent
	in.Precursor = &Precursor{Mz: 400.2, IsolationLow: math.NaN(), IsolationHigh: math.NaN()}
	rec, _, _ = p.Parse(in)
	if rec.Precursor == nil || rec.Precursor.Charge != 0 || rec.Precursor.HasIsolation() {
		t.Errorf("Precursor without charge: %+v", rec.Precursor)
	}

	// Precursor m/z absent is a warning, the record has no precursor
	for _, pre := range []*Precursor{nil, {Mz: math.NaN(), Charge: 2}} {
		in.Precursor = pre
		rec, warnings, err = p.Parse(in)
		if err != nil {
			t.Fatalf("Parse: error return %v", err)
		}
		if diff := cmp.Diff([]WarningKind{WarnMissingPrecursorMz}, kinds(warnings)); diff != "" {
			t.Errorf("warnings (-want +got):\n%s", diff)
		}
		if rec.Precursor != nil {
			t.Errorf("Precursor: %+v, should be nil", rec.Precursor)
		}
	}

	// MS1 scans never carry a precursor
	in = ms1(6, nil, nil)
	in.Precursor = &Precursor{Mz: 1}
	rec, _, _ = p.Parse(in)
	if rec.Precursor != nil {
		t.Errorf("MS1 Precursor: %+v, should be nil", rec.Precursor)
	}
}

func TestParseWarnings(t *testing.T) {
	p := NewParser()
	_, _, _ = p.Parse(ms1(20, nil, nil))

	in := ms1(10, []float64{100, 90, 110}, []float64{1, 2, 3})
	in.DeclaredLength = 4
	rec, warnings, err := p.Parse(in)
	if err != nil {
		t.Fatalf("Parse: error return %v", err)
	}
	want := []WarningKind{WarnArrayLengthDeclared, WarnRetentionTimeDecreased, WarnNonMonotonicMz}
	if diff := cmp.Diff(want, kinds(warnings)); diff != "" {
		t.Errorf("warnings (-want +got):\n%s", diff)
	}
	if rec.MzSorted {
		t.Errorf("MzSorted: true for unsorted m/z")
	}
	// The record is kept as it is
	if diff := cmp.Diff([]float64{100, 90, 110}, rec.Mz); diff != "" {
		t.Errorf("Mz (-want +got):\n%s", diff)
	}
	if rec.RetentionTime != 10 {
		t.Errorf("RetentionTime: %v, should be 10", rec.RetentionTime)
	}
	for _, w := range warnings {
		if w.ScanID != 1 || w.NativeID != "scan" || w.String() == "" {
			t.Errorf("warning: %+v", w)
		}
	}

	// Duplicate m/z is not strictly increasing
	_, warnings, _ = p.Parse(ms1(30, []float64{100, 100}, []float64{1, 1}))
	if diff := cmp.Diff([]WarningKind{WarnNonMonotonicMz}, kinds(warnings)); diff != "" {
		t.Errorf("duplicate m/z warnings (-want +got):\n%s", diff)
	}
}

func TestParseMissingRetentionTime(t *testing.T) {
	p := NewParser()
	in := ms1(0, nil, nil)
	in.HasRetentionTime = false
	rec, warnings, _ := p.Parse(in)
	if rec.RetentionTime != 0 {
		t.Errorf("RetentionTime: %v, should be 0", rec.RetentionTime)
	}
	if diff := cmp.Diff([]WarningKind{WarnMissingRetentionTime}, kinds(warnings)); diff != "" {
		t.Errorf("warnings (-want +got):\n%s", diff)
	}

	_, _, _ = p.Parse(ms1(42, nil, nil))
	rec, warnings, _ = p.Parse(ms1(math.NaN(), nil, nil))
	if rec.RetentionTime != 42 {
		t.Errorf("RetentionTime: %v, should be taken from the previous scan", rec.RetentionTime)
	}
	if diff := cmp.Diff([]WarningKind{WarnMissingRetentionTime}, kinds(warnings)); diff != "" {
		t.Errorf("warnings (-want +got):\n%s", diff)
	}
}

func TestParseSchemaErrors(t *testing.T) {
	tests := []struct {
		name  string
		in    Input
		field string
	}{
		{"length mismatch", ms1(1, []float64{1, 2}, []float64{1}), "intensity_array"},
		{"ms level 0", Input{MSLevel: 0, DeclaredLength: -1}, "ms_level"},
	}
	for _, tt := range tests {
		p := NewParser()
		_, _, err := p.Parse(tt.in)
		var se *SchemaError
		if !errors.As(err, &se) {
			t.Errorf("%s: error %v, should be SchemaError", tt.name, err)
			continue
		}
		if se.Field != tt.field {
			t.Errorf("%s: field %q, should be %q", tt.name, se.Field, tt.field)
		}
	}
}

func TestParseTotalIntensity(t *testing.T) {
	intensity := []float64{0.1, 0.2, 0.3, 1e6, 1e-6}
	mz := []float64{1, 2, 3, 4, 5}
	rec, _, _ := NewParser().Parse(ms1(1, mz, intensity))
	want := 0.1 + 0.2 + 0.3 + 1e6 + 1e-6
	if !cmp.Equal(want, rec.TotalIntensity, cmpopts.EquateApprox(0, 1e-6)) {
		t.Errorf("TotalIntensity: %v, should be %v", rec.TotalIntensity, want)
	}
}
