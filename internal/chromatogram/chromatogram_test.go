package chromatogram

import (
	"errors"
	"testing"

	"github.com/524D/mzparquet/internal/spectrum"

	"github.com/google/go-cmp/cmp"
)

func records() []spectrum.Record {
	return []spectrum.Record{
		{ScanID: 0, MSLevel: 1, RetentionTime: 1, TotalIntensity: 100},
		{ScanID: 1, MSLevel: 2, RetentionTime: 1.5, TotalIntensity: 10},
		{ScanID: 2, MSLevel: 1, RetentionTime: 3, TotalIntensity: 200},
		{ScanID: 3, MSLevel: 2, RetentionTime: 2, TotalIntensity: 20},
		{ScanID: 4, MSLevel: 2, RetentionTime: 2, TotalIntensity: 30},
	}
}

func TestExtractorAllLevels(t *testing.T) {
	e := NewExtractor(Config{})
	recs := records()
	for i := range recs {
		if err := e.Add(&recs[i]); err != nil {
			t.Fatalf("Add: error return %v", err)
		}
	}
	if e.Len() != len(recs) {
		t.Errorf("Len: %d, should be %d", e.Len(), len(recs))
	}
	got := e.Finish()
	want := []Point{
		{RetentionTime: 1, ScanID: 0, SummedIntensity: 100, MSLevel: 1},
		{RetentionTime: 1.5, ScanID: 1, SummedIntensity: 10, MSLevel: 2},
		{RetentionTime: 2, ScanID: 3, SummedIntensity: 20, MSLevel: 2},
		{RetentionTime: 2, ScanID: 4, SummedIntensity: 30, MSLevel: 2},
		{RetentionTime: 3, ScanID: 2, SummedIntensity: 200, MSLevel: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Finish (-want +got):\n%s", diff)
	}
	if err := e.Add(&recs[0]); !errors.Is(err, ErrFinished) {
		t.Errorf("Add after Finish: %v, should be ErrFinished", err)
	}
}

func TestExtractorMS1Only(t *testing.T) {
	e := NewExtractor(Config{MSLevels: []int{1}})
	if !e.Accepts(1) || e.Accepts(2) {
		t.Errorf("Accepts: wrong levels")
	}
	recs := records()
	for i := range recs {
		_ = e.Add(&recs[i])
	}
	got := e.Finish()
	if len(got) != 2 || got[0].ScanID != 0 || got[1].ScanID != 2 {
		t.Errorf("Finish: %+v", got)
	}
}

func TestExtractorEmpty(t *testing.T) {
	if got := NewExtractor(Config{}).Finish(); len(got) != 0 {
		t.Errorf("Finish: %+v, should be empty", got)
	}
}
