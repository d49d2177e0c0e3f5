// Package store loads a converted run into memory and answers the
// random-access queries of a viewer: by scan id, by retention time and by
// chromatogram window.
//
// A Store is built in one pass by Open and never changes afterwards, so it
// may be shared by any number of goroutines without locking.
package store

import (
	"fmt"
	"math"
	"sort"

	"github.com/524D/mzparquet/internal/chromatogram"
	"github.com/524D/mzparquet/internal/columnar"
	"github.com/524D/mzparquet/internal/spectrum"

	"github.com/RoaringBitmap/roaring/v2"
)

// Store is a loaded run.
type Store struct {
	path    string
	meta    columnar.Metadata
	records []spectrum.Record

	// byID maps scan id to record index. It is nil when the scan ids are
	// 0..n-1 in record order, which is what the converter writes.
	byID map[int]int
	// byTime holds record indexes ordered by retention time, then scan id.
	byTime []int
	chrom  []chromatogram.Point
	levels map[int]*roaring.Bitmap
	all    *roaring.Bitmap

	mzMin, mzMax float64
	hasMz        bool
	warnings     []spectrum.Warning
}

// Open loads the file at path. Either the whole file is indexed or an error
// is returned; there is no partially loaded store.
func Open(path string) (*Store, error) {
	c, err := columnar.Load(path)
	if err != nil {
		return nil, err
	}
	s, err := New(c)
	if err != nil {
		return nil, fmt.Errorf("store: %s: %w", path, err)
	}
	s.path = path
	return s, nil
}

// New indexes contents returned by columnar.Load. The store takes
// ownership of c.
func New(c *columnar.Contents) (*Store, error) {
	s := &Store{
		meta:    c.Metadata,
		records: c.Spectra,
		chrom:   c.Chromatogram,
		levels:  make(map[int]*roaring.Bitmap),
		all:     roaring.New(),
	}

	dense := true
	for i := range s.records {
		if s.records[i].ScanID != i {
			dense = false
			break
		}
	}
	if !dense {
		s.byID = make(map[int]int, len(s.records))
		for i := range s.records {
			id := s.records[i].ScanID
			if _, dup := s.byID[id]; dup {
				return nil, fmt.Errorf("duplicate scan id %d", id)
			}
			s.byID[id] = i
		}
	}

	s.byTime = make([]int, len(s.records))
	for i := range s.byTime {
		s.byTime[i] = i
	}
	sort.SliceStable(s.byTime, func(a, b int) bool {
		ra, rb := &s.records[s.byTime[a]], &s.records[s.byTime[b]]
		if ra.RetentionTime != rb.RetentionTime {
			return ra.RetentionTime < rb.RetentionTime
		}
		return ra.ScanID < rb.ScanID
	})

	chromatogram.SortPoints(s.chrom)

	prevRT := math.Inf(-1)
	for i := range s.records {
		rec := &s.records[i]
		if rec.ScanID < 0 || int64(rec.ScanID) > math.MaxUint32 {
			return nil, fmt.Errorf("scan id %d out of range", rec.ScanID)
		}
		bm, ok := s.levels[rec.MSLevel]
		if !ok {
			bm = roaring.New()
			s.levels[rec.MSLevel] = bm
		}
		bm.Add(uint32(rec.ScanID))
		s.all.Add(uint32(rec.ScanID))

		if rec.RetentionTime < prevRT {
			s.warnings = append(s.warnings, spectrum.Warning{
				ScanID:   rec.ScanID,
				NativeID: rec.NativeID,
				Kind:     spectrum.WarnRetentionTimeDecreased,
				Message:  fmt.Sprintf("%g s after %g s", rec.RetentionTime, prevRT),
			})
		}
		prevRT = rec.RetentionTime
		if !rec.MzSorted {
			s.warnings = append(s.warnings, spectrum.Warning{
				ScanID:   rec.ScanID,
				NativeID: rec.NativeID,
				Kind:     spectrum.WarnNonMonotonicMz,
				Message:  "m/z array is not strictly increasing",
			})
		}
		s.addMzRange(rec)
	}
	return s, nil
}

func (s *Store) addMzRange(rec *spectrum.Record) {
	if len(rec.Mz) == 0 {
		return
	}
	lo, hi := rec.Mz[0], rec.Mz[len(rec.Mz)-1]
	if !rec.MzSorted {
		lo, hi = math.Inf(1), math.Inf(-1)
		for _, mz := range rec.Mz {
			lo = math.Min(lo, mz)
			hi = math.Max(hi, mz)
		}
	}
	if !s.hasMz {
		s.mzMin, s.mzMax, s.hasMz = lo, hi, true
		return
	}
	s.mzMin = math.Min(s.mzMin, lo)
	s.mzMax = math.Max(s.mzMax, hi)
}

// Path returns the file the store was opened from.
func (s *Store) Path() string { return s.path }

// Metadata returns the metadata block of the file.
func (s *Store) Metadata() columnar.Metadata { return s.meta }

// Len returns the number of spectra.
func (s *Store) Len() int { return len(s.records) }

// Warnings returns data-quality conditions found while loading: retention
// times that decrease in scan order and unsorted m/z arrays.
func (s *Store) Warnings() []spectrum.Warning { return s.warnings }

// MzRange returns the smallest and largest m/z over all spectra. ok is
// false when no spectrum has peaks.
func (s *Store) MzRange() (lo, hi float64, ok bool) {
	return s.mzMin, s.mzMax, s.hasMz
}

// TimeRange returns the first and last retention time. ok is false for an
// empty run.
func (s *Store) TimeRange() (first, last float64, ok bool) {
	if len(s.byTime) == 0 {
		return 0, 0, false
	}
	return s.rt(0), s.rt(len(s.byTime) - 1), true
}

// Chromatogram returns the whole chromatogram ordered by retention time.
// The slice is shared and must not be modified.
func (s *Store) Chromatogram() []chromatogram.Point {
	return s.chrom[:len(s.chrom):len(s.chrom)]
}

func (s *Store) index(id int) (int, bool) {
	if s.byID == nil {
		return id, id >= 0 && id < len(s.records)
	}
	i, ok := s.byID[id]
	return i, ok
}

// GetByScanID returns the spectrum with the given scan id. The returned
// record is shared and must not be modified.
func (s *Store) GetByScanID(id int) (*spectrum.Record, error) {
	i, ok := s.index(id)
	if !ok {
		return nil, notFound("get by scan id", "scan %d (run has %d spectra)", id, len(s.records))
	}
	return &s.records[i], nil
}

func (s *Store) rt(k int) float64 {
	return s.records[s.byTime[k]].RetentionTime
}

// GetNearestByTime returns the spectrum whose retention time is closest to
// t seconds. When two scans are equally close, the one with the smaller scan
// id wins. Times before the first or after the last scan select that scan.
func (s *Store) GetNearestByTime(t float64) (*spectrum.Record, error) {
	const op = "get nearest by time"
	if math.IsNaN(t) {
		return nil, invalidRange(op, "time is NaN")
	}
	n := len(s.byTime)
	if n == 0 {
		return nil, notFound(op, "run has no spectra")
	}
	i := sort.Search(n, func(k int) bool { return s.rt(k) >= t })
	if i == 0 {
		return &s.records[s.byTime[0]], nil
	}
	// Earliest scan sharing the time just below t.
	lowRT := s.rt(i - 1)
	lo := sort.Search(i, func(k int) bool { return s.rt(k) >= lowRT })
	low := &s.records[s.byTime[lo]]
	if i == n {
		return low, nil
	}
	high := &s.records[s.byTime[i]]
	dLow, dHigh := t-low.RetentionTime, high.RetentionTime-t
	switch {
	case dHigh < dLow:
		return high, nil
	case dLow < dHigh:
		return low, nil
	}
	if high.ScanID < low.ScanID {
		return high, nil
	}
	return low, nil
}

// ChromatogramWindow returns the points with t0 <= retention time <= t1,
// in time order. The result is a view of the store's chromatogram and must
// not be modified. A window without points yields an empty slice.
func (s *Store) ChromatogramWindow(t0, t1 float64) ([]chromatogram.Point, error) {
	const op = "chromatogram window"
	if math.IsNaN(t0) || math.IsNaN(t1) {
		return nil, invalidRange(op, "bound is NaN")
	}
	if t0 > t1 {
		return nil, invalidRange(op, "start %g s after end %g s", t0, t1)
	}
	lo := sort.Search(len(s.chrom), func(k int) bool { return s.chrom[k].RetentionTime >= t0 })
	hi := lo + sort.Search(len(s.chrom)-lo, func(k int) bool { return s.chrom[lo+k].RetentionTime > t1 })
	return s.chrom[lo:hi:hi], nil
}

// Levels returns the MS levels present in the run, ascending.
func (s *Store) Levels() []int {
	levels := make([]int, 0, len(s.levels))
	for l := range s.levels {
		levels = append(levels, l)
	}
	sort.Ints(levels)
	return levels
}

func (s *Store) bitmap(msLevel int) *roaring.Bitmap {
	if msLevel == 0 {
		return s.all
	}
	return s.levels[msLevel]
}

// ScanIDs returns the scan ids with the given MS level in ascending order.
// Level 0 selects every scan.
func (s *Store) ScanIDs(msLevel int) []int {
	bm := s.bitmap(msLevel)
	if bm == nil {
		return nil
	}
	ids := make([]int, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		ids = append(ids, int(it.Next()))
	}
	return ids
}

// PrecedingScan returns the last scan with scan id <= id at the given MS
// level (0 for any level). For an MS2 scan and level 1 this is the survey
// scan its precursor was selected from. id itself need not exist.
func (s *Store) PrecedingScan(id, msLevel int) (*spectrum.Record, error) {
	const op = "preceding scan"
	if id < 0 {
		return nil, notFound(op, "scan %d", id)
	}
	bm := s.bitmap(msLevel)
	if bm == nil {
		return nil, notFound(op, "no MS%d scans", msLevel)
	}
	rank := bm.Rank(uint32(min(int64(id), math.MaxUint32)))
	if rank == 0 {
		return nil, notFound(op, "no MS%d scan at or before scan %d", msLevel, id)
	}
	prev, err := bm.Select(uint32(rank - 1))
	if err != nil {
		return nil, notFound(op, "%v", err)
	}
	return s.GetByScanID(int(prev))
}

// NextScan returns the first scan with scan id >= id at the given MS level
// (0 for any level).
func (s *Store) NextScan(id, msLevel int) (*spectrum.Record, error) {
	const op = "next scan"
	bm := s.bitmap(msLevel)
	if bm == nil {
		return nil, notFound(op, "no MS%d scans", msLevel)
	}
	if id < 0 {
		id = 0
	}
	if int64(id) > math.MaxUint32 {
		return nil, notFound(op, "scan %d", id)
	}
	it := bm.Iterator()
	it.AdvanceIfNeeded(uint32(id))
	if !it.HasNext() {
		return nil, notFound(op, "no MS%d scan at or after scan %d", msLevel, id)
	}
	return s.GetByScanID(int(it.Next()))
}
