package store

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/524D/mzparquet/internal/chromatogram"
	"github.com/524D/mzparquet/internal/columnar"
	"github.com/524D/mzparquet/internal/spectrum"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(id, level int, rt float64, mz ...float64) spectrum.Record {
	r := spectrum.Record{ScanID: id, MSLevel: level, RetentionTime: rt, Mz: mz, MzSorted: true}
	r.Intensity = make([]float64, len(mz))
	for i := range mz {
		r.Intensity[i] = float64(i + 1)
		r.TotalIntensity += r.Intensity[i]
	}
	return r
}

func contents(recs ...spectrum.Record) *columnar.Contents {
	c := &columnar.Contents{
		Metadata: columnar.Metadata{SchemaVersion: columnar.SchemaVersion, SpectrumCount: len(recs)},
		Spectra:  recs,
	}
	for _, r := range recs {
		c.Chromatogram = append(c.Chromatogram, chromatogram.Point{
			RetentionTime: r.RetentionTime, ScanID: r.ScanID,
			SummedIntensity: r.TotalIntensity, MSLevel: r.MSLevel,
		})
	}
	return c
}

// A DDA run: MS1 scans 0, 3 and 5, MS2 scans in between. Scans 3 and 4
// share a retention time.
func ddaStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(contents(
		rec(0, 1, 10, 100, 200),
		rec(1, 2, 12, 50),
		rec(2, 2, 14, 60),
		rec(3, 1, 20, 150, 400),
		rec(4, 2, 20),
		rec(5, 1, 30, 90, 300),
	))
	require.NoError(t, err)
	return s
}

func TestGetByScanID(t *testing.T) {
	s := ddaStore(t)
	assert.Equal(t, 6, s.Len())
	for id := 0; id < 6; id++ {
		r, err := s.GetByScanID(id)
		require.NoError(t, err)
		assert.Equal(t, id, r.ScanID)
	}
	for _, id := range []int{-1, 6, 1000} {
		_, err := s.GetByScanID(id)
		assert.ErrorIs(t, err, ErrNotFound, "scan %d", id)
		var qe *QueryError
		assert.ErrorAs(t, err, &qe)
	}
}

func TestGetNearestByTime(t *testing.T) {
	s := ddaStore(t)
	tests := []struct {
		t    float64
		want int
	}{
		{12, 1},           // exact
		{10, 0},           // exact, first
		{30, 5},           // exact, last
		{100, 5},          // after the last scan
		{-5, 0},           // before the first scan
		{math.Inf(1), 5},  // clamps
		{math.Inf(-1), 0}, // clamps
		{13, 1},           // tie between 12 and 14, earlier scan wins
		{13.1, 2},         // strictly closer to 14
		{12.9, 1},
		{20, 3}, // two scans at 20, earlier scan wins
		{17, 2}, // tie between 14 (scan 2) and 20 (scan 3)
		{25, 3}, // tie between 20 (scans 3, 4) and 30
		{26, 5},
	}
	for _, tt := range tests {
		r, err := s.GetNearestByTime(tt.t)
		require.NoError(t, err, "t=%v", tt.t)
		assert.Equal(t, tt.want, r.ScanID, "t=%v", tt.t)
	}

	_, err := s.GetNearestByTime(math.NaN())
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestGetNearestByTimeUnordered(t *testing.T) {
	// Retention time decreases from scan 0 to scan 1
	s, err := New(contents(rec(0, 1, 10), rec(1, 1, 5), rec(2, 1, 20)))
	require.NoError(t, err)

	r, err := s.GetNearestByTime(7.5)
	require.NoError(t, err)
	assert.Equal(t, 0, r.ScanID, "tie goes to the earlier scan id, not the earlier time")
	r, err = s.GetNearestByTime(6)
	require.NoError(t, err)
	assert.Equal(t, 1, r.ScanID)
	r, err = s.GetNearestByTime(0)
	require.NoError(t, err)
	assert.Equal(t, 1, r.ScanID)

	require.Len(t, s.Warnings(), 1)
	assert.Equal(t, spectrum.WarnRetentionTimeDecreased, s.Warnings()[0].Kind)
	assert.Equal(t, 1, s.Warnings()[0].ScanID)

	// The chromatogram is in time order
	points := s.Chromatogram()
	require.Len(t, points, 3)
	assert.Equal(t, []int{1, 0, 2}, []int{points[0].ScanID, points[1].ScanID, points[2].ScanID})
}

func TestChromatogramWindow(t *testing.T) {
	s := ddaStore(t)

	points, err := s.ChromatogramWindow(12, 20)
	require.NoError(t, err)
	var ids []int
	for _, p := range points {
		ids = append(ids, p.ScanID)
	}
	assert.Equal(t, []int{1, 2, 3, 4}, ids)

	points, err = s.ChromatogramWindow(10, 10)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, 0, points[0].ScanID)

	points, err = s.ChromatogramWindow(31, 100)
	require.NoError(t, err)
	assert.Empty(t, points)

	points, err = s.ChromatogramWindow(15, 16)
	require.NoError(t, err)
	assert.Empty(t, points)

	points, err = s.ChromatogramWindow(math.Inf(-1), math.Inf(1))
	require.NoError(t, err)
	assert.Len(t, points, 6)

	_, err = s.ChromatogramWindow(20, 12)
	assert.ErrorIs(t, err, ErrInvalidRange)
	_, err = s.ChromatogramWindow(math.NaN(), 12)
	assert.ErrorIs(t, err, ErrInvalidRange)

	// A failed query leaves the store usable
	points, err = s.ChromatogramWindow(0, 100)
	require.NoError(t, err)
	assert.Len(t, points, 6)
}

func TestLevels(t *testing.T) {
	s := ddaStore(t)
	assert.Equal(t, []int{1, 2}, s.Levels())
	assert.Equal(t, []int{0, 3, 5}, s.ScanIDs(1))
	assert.Equal(t, []int{1, 2, 4}, s.ScanIDs(2))
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, s.ScanIDs(0))
	assert.Nil(t, s.ScanIDs(3))

	r, err := s.PrecedingScan(4, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, r.ScanID)
	r, err = s.PrecedingScan(2, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, r.ScanID)
	r, err = s.PrecedingScan(3, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, r.ScanID, "a scan precedes itself")
	_, err = s.PrecedingScan(0, 2)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.PrecedingScan(3, 3)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.PrecedingScan(-1, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	r, err = s.NextScan(1, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, r.ScanID)
	_, err = s.NextScan(5, 2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRanges(t *testing.T) {
	s := ddaStore(t)
	lo, hi, ok := s.MzRange()
	require.True(t, ok)
	assert.Equal(t, 50.0, lo)
	assert.Equal(t, 400.0, hi)

	first, last, ok := s.TimeRange()
	require.True(t, ok)
	assert.Equal(t, 10.0, first)
	assert.Equal(t, 30.0, last)

	unsorted := rec(0, 1, 1, 300, 20, 100)
	unsorted.MzSorted = false
	s, err := New(contents(unsorted))
	require.NoError(t, err)
	lo, hi, _ = s.MzRange()
	assert.Equal(t, 20.0, lo)
	assert.Equal(t, 300.0, hi)
	require.Len(t, s.Warnings(), 1)
	assert.Equal(t, spectrum.WarnNonMonotonicMz, s.Warnings()[0].Kind)
}

func TestEmptyStore(t *testing.T) {
	s, err := New(contents())
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())

	_, err = s.GetNearestByTime(1)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetByScanID(0)
	assert.ErrorIs(t, err, ErrNotFound)
	points, err := s.ChromatogramWindow(0, 1)
	require.NoError(t, err)
	assert.Empty(t, points)
	_, _, ok := s.MzRange()
	assert.False(t, ok)
	_, _, ok = s.TimeRange()
	assert.False(t, ok)
}

func TestSparseScanIDs(t *testing.T) {
	s, err := New(contents(rec(10, 1, 1), rec(20, 2, 2), rec(30, 1, 3)))
	require.NoError(t, err)

	r, err := s.GetByScanID(20)
	require.NoError(t, err)
	assert.Equal(t, 2.0, r.RetentionTime)
	_, err = s.GetByScanID(1)
	assert.ErrorIs(t, err, ErrNotFound)

	r, err = s.PrecedingScan(25, 1)
	require.NoError(t, err)
	assert.Equal(t, 10, r.ScanID)

	_, err = New(contents(rec(1, 1, 1), rec(1, 1, 2)))
	assert.Error(t, err, "duplicate scan ids")
}

func TestOpen(t *testing.T) {
	c := contents(rec(0, 1, 1, 100, 200), rec(1, 2, 2, 50))
	path := filepath.Join(t.TempDir(), "run.parquet")
	require.NoError(t, columnar.WriteFile(path, c.Spectra, c.Chromatogram,
		columnar.Metadata{SourceFilename: "run.mzML"}, columnar.Options{}))

	s, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, path, s.Path())
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, "run.mzML", s.Metadata().SourceFilename)
	r, err := s.GetByScanID(0)
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 200}, r.Mz)

	_, err = Open(filepath.Join(t.TempDir(), "missing.parquet"))
	assert.Error(t, err)
}
