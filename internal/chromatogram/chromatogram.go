// Package chromatogram accumulates the total ion chromatogram while the
// spectra of a run stream past.
package chromatogram

import (
	"errors"
	"sort"

	"github.com/524D/mzparquet/internal/spectrum"
)

// Point is one scan's contribution to the chromatogram.
type Point struct {
	RetentionTime   float64
	ScanID          int
	SummedIntensity float64
	MSLevel         int
}

// Config selects which scans contribute.
type Config struct {
	// MSLevels lists the MS levels to include. Empty means all levels.
	MSLevels []int
}

// ErrFinished is returned by Add after Finish has been called.
var ErrFinished = errors.New("chromatogram: extractor already finished")

// Extractor builds the chromatogram in a single pass. It keeps one Point
// per accepted record, never the records themselves.
type Extractor struct {
	levels   map[int]bool
	points   []Point
	finished bool
}

// NewExtractor returns an extractor for the given configuration.
func NewExtractor(cfg Config) *Extractor {
	e := &Extractor{}
	if len(cfg.MSLevels) > 0 {
		e.levels = make(map[int]bool, len(cfg.MSLevels))
		for _, l := range cfg.MSLevels {
			e.levels[l] = true
		}
	}
	return e
}

// Accepts reports whether scans of the given MS level contribute.
func (e *Extractor) Accepts(msLevel int) bool {
	return e.levels == nil || e.levels[msLevel]
}

// Add consumes one record.
func (e *Extractor) Add(rec *spectrum.Record) error {
	if e.finished {
		return ErrFinished
	}
	if !e.Accepts(rec.MSLevel) {
		return nil
	}
	e.points = append(e.points, Point{
		RetentionTime:   rec.RetentionTime,
		ScanID:          rec.ScanID,
		SummedIntensity: rec.TotalIntensity,
		MSLevel:         rec.MSLevel,
	})
	return nil
}

// Len returns the number of points accumulated so far.
func (e *Extractor) Len() int {
	return len(e.points)
}

// Finish signals the end of the stream and returns the points ordered by
// retention time, ties by scan id. The extractor cannot be used afterwards.
func (e *Extractor) Finish() []Point {
	e.finished = true
	points := e.points
	e.points = nil
	SortPoints(points)
	return points
}

// SortPoints orders points by retention time, ties by scan id.
func SortPoints(points []Point) {
	if sort.SliceIsSorted(points, func(i, j int) bool { return less(points[i], points[j]) }) {
		return
	}
	sort.SliceStable(points, func(i, j int) bool { return less(points[i], points[j]) })
}

func less(a, b Point) bool {
	if a.RetentionTime != b.RetentionTime {
		return a.RetentionTime < b.RetentionTime
	}
	return a.ScanID < b.ScanID
}
