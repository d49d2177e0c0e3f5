// Package view adds the queries a spectrum viewer issues on every zoom or
// pan on top of a loaded store.
package view

import (
	"fmt"
	"math"
	"sort"

	"github.com/524D/mzparquet/internal/chromatogram"
	"github.com/524D/mzparquet/internal/spectrum"
	"github.com/524D/mzparquet/internal/store"
)

// ZoomLevel selects a predefined m/z window around a centre peak.
type ZoomLevel int

const (
	// ZoomFull shows the whole spectrum.
	ZoomFull ZoomLevel = iota
	// ZoomIsotope shows an isotope envelope, from just below the centre
	// peak to a few Th above it.
	ZoomIsotope
	// ZoomResolution shows a narrow window for judging peak shape.
	ZoomResolution
)

func (z ZoomLevel) String() string {
	switch z {
	case ZoomFull:
		return "full"
	case ZoomIsotope:
		return "isotope"
	case ZoomResolution:
		return "resolution"
	}
	return fmt.Sprintf("zoom(%d)", int(z))
}

// Config holds the query granularity.
type Config struct {
	// MinWindowWidth is the narrowest m/z window PeaksInMzWindow returns;
	// narrower requests are widened around their centre. 0 keeps the
	// requested bounds.
	MinWindowWidth float64

	// IsotopeBelow and IsotopeAbove bound the ZoomIsotope window relative
	// to its centre.
	IsotopeBelow float64
	IsotopeAbove float64
	// ResolutionHalfWidth is the half width of the ZoomResolution window.
	ResolutionHalfWidth float64
}

// DefaultConfig returns exact windows and the zoom levels of the desktop
// viewer.
func DefaultConfig() Config {
	return Config{
		IsotopeBelow:        0.5,
		IsotopeAbove:        2.5,
		ResolutionHalfWidth: 0.02,
	}
}

// Window is an m/z range.
type Window struct {
	Lo, Hi float64
}

// Width returns Hi-Lo.
func (w Window) Width() float64 { return w.Hi - w.Lo }

// Peaks is an ordered run of peaks. When the source spectrum has sorted
// m/z values both slices share storage with the store and must not be
// modified.
type Peaks struct {
	Mz        []float64
	Intensity []float64
}

// Len returns the number of peaks.
func (p Peaks) Len() int { return len(p.Mz) }

// Engine answers viewer queries against one store.
type Engine struct {
	s   *store.Store
	cfg Config
}

// New returns an engine over s.
func New(s *store.Store, cfg Config) *Engine {
	return &Engine{s: s, cfg: cfg}
}

// Store returns the underlying store.
func (e *Engine) Store() *store.Store { return e.s }

// Config returns the engine's configuration.
func (e *Engine) Config() Config { return e.cfg }

// GetByScanID returns a spectrum by scan id.
func (e *Engine) GetByScanID(id int) (*spectrum.Record, error) {
	return e.s.GetByScanID(id)
}

// GetNearestByTime returns the spectrum closest to t seconds.
func (e *Engine) GetNearestByTime(t float64) (*spectrum.Record, error) {
	return e.s.GetNearestByTime(t)
}

// ChromatogramWindow returns the chromatogram points between t0 and t1.
func (e *Engine) ChromatogramWindow(t0, t1 float64) ([]chromatogram.Point, error) {
	return e.s.ChromatogramWindow(t0, t1)
}

func invalidWindow(op string, mz0, mz1 float64) error {
	return &store.QueryError{
		Op:     op,
		Detail: fmt.Sprintf("m/z window [%g, %g]", mz0, mz1),
		Err:    store.ErrInvalidRange,
	}
}

// PeaksInMzWindow returns the peaks of scan id with mz0 <= m/z <= mz1, in
// m/z order. A window outside the spectrum yields no peaks and no error.
func (e *Engine) PeaksInMzWindow(id int, mz0, mz1 float64) (Peaks, error) {
	const op = "peaks in m/z window"
	if math.IsNaN(mz0) || math.IsNaN(mz1) || mz0 > mz1 {
		return Peaks{}, invalidWindow(op, mz0, mz1)
	}
	rec, err := e.s.GetByScanID(id)
	if err != nil {
		return Peaks{}, err
	}
	w := e.widen(Window{mz0, mz1})
	return peaksIn(rec, w), nil
}

func (e *Engine) widen(w Window) Window {
	width := e.cfg.MinWindowWidth
	if width <= 0 || w.Width() >= width || math.IsInf(w.Lo, 0) || math.IsInf(w.Hi, 0) {
		return w
	}
	c := w.Lo + w.Width()/2
	return Window{c - width/2, c + width/2}
}

func peaksIn(rec *spectrum.Record, w Window) Peaks {
	if !rec.MzSorted {
		return filterPeaks(rec, w)
	}
	mz := rec.Mz
	lo := sort.SearchFloat64s(mz, w.Lo)
	hi := lo + sort.Search(len(mz)-lo, func(i int) bool { return mz[lo+i] > w.Hi })
	return Peaks{
		Mz:        mz[lo:hi:hi],
		Intensity: rec.Intensity[lo:hi:hi],
	}
}

// filterPeaks copies the peaks of an unsorted spectrum that fall in w and
// sorts them by m/z.
func filterPeaks(rec *spectrum.Record, w Window) Peaks {
	var p Peaks
	for i, mz := range rec.Mz {
		if mz >= w.Lo && mz <= w.Hi {
			p.Mz = append(p.Mz, mz)
			p.Intensity = append(p.Intensity, rec.Intensity[i])
		}
	}
	sort.Stable(byMz(p))
	return p
}

type byMz Peaks

func (p byMz) Len() int           { return len(p.Mz) }
func (p byMz) Less(i, j int) bool { return p.Mz[i] < p.Mz[j] }
func (p byMz) Swap(i, j int) {
	p.Mz[i], p.Mz[j] = p.Mz[j], p.Mz[i]
	p.Intensity[i], p.Intensity[j] = p.Intensity[j], p.Intensity[i]
}

// BasePeak returns the most intense peak of a spectrum.
func (e *Engine) BasePeak(id int) (mz, intensity float64, err error) {
	rec, err := e.s.GetByScanID(id)
	if err != nil {
		return 0, 0, err
	}
	if rec.Len() == 0 {
		return 0, 0, &store.QueryError{Op: "base peak", Detail: fmt.Sprintf("scan %d has no peaks", id), Err: store.ErrNotFound}
	}
	return rec.BasePeakMz, rec.BasePeakIntensity, nil
}

// ZoomWindow returns the window of a zoom level around centre. For
// ZoomFull it spans the peaks of rec and centre is ignored.
func (e *Engine) ZoomWindow(rec *spectrum.Record, level ZoomLevel, centre float64) (Window, error) {
	switch level {
	case ZoomFull:
		if rec.Len() == 0 {
			return Window{}, nil
		}
		if rec.MzSorted {
			return Window{rec.Mz[0], rec.Mz[rec.Len()-1]}, nil
		}
		w := Window{math.Inf(1), math.Inf(-1)}
		for _, mz := range rec.Mz {
			w.Lo = math.Min(w.Lo, mz)
			w.Hi = math.Max(w.Hi, mz)
		}
		return w, nil
	case ZoomIsotope:
		return Window{centre - e.cfg.IsotopeBelow, centre + e.cfg.IsotopeAbove}, nil
	case ZoomResolution:
		return Window{centre - e.cfg.ResolutionHalfWidth, centre + e.cfg.ResolutionHalfWidth}, nil
	}
	return Window{}, fmt.Errorf("view: unknown zoom level %d", int(level))
}

// Zoom returns the peaks of scan id in the window of a zoom level centred
// on the spectrum's base peak.
func (e *Engine) Zoom(id int, level ZoomLevel) (Window, Peaks, error) {
	rec, err := e.s.GetByScanID(id)
	if err != nil {
		return Window{}, Peaks{}, err
	}
	return e.zoom(rec, level, rec.BasePeakMz)
}

// ZoomAt is Zoom with an explicit centre, such as the precursor m/z of an
// MS2 scan shown in its survey spectrum.
func (e *Engine) ZoomAt(id int, level ZoomLevel, centre float64) (Window, Peaks, error) {
	if math.IsNaN(centre) {
		return Window{}, Peaks{}, invalidWindow("zoom", centre, centre)
	}
	rec, err := e.s.GetByScanID(id)
	if err != nil {
		return Window{}, Peaks{}, err
	}
	return e.zoom(rec, level, centre)
}

func (e *Engine) zoom(rec *spectrum.Record, level ZoomLevel, centre float64) (Window, Peaks, error) {
	w, err := e.ZoomWindow(rec, level, centre)
	if err != nil {
		return Window{}, Peaks{}, err
	}
	return w, peaksIn(rec, w), nil
}

// PrecursorSpectrum returns the scan an MSn scan was selected from: the
// last scan of the next lower MS level before it. For MS2 scans that is the
// MS1 survey scan.
func (e *Engine) PrecursorSpectrum(id int) (*spectrum.Record, error) {
	rec, err := e.s.GetByScanID(id)
	if err != nil {
		return nil, err
	}
	if rec.MSLevel < 2 {
		return nil, &store.QueryError{Op: "precursor spectrum", Detail: fmt.Sprintf("scan %d is MS%d", id, rec.MSLevel), Err: store.ErrNotFound}
	}
	return e.s.PrecedingScan(id, rec.MSLevel-1)
}

// Step moves delta scans from scan id, as the arrow keys of a viewer do.
// With sameLevel only scans of the same MS level count. Stepping stops at
// the first or last scan instead of failing.
func (e *Engine) Step(id, delta int, sameLevel bool) (*spectrum.Record, error) {
	rec, err := e.s.GetByScanID(id)
	if err != nil {
		return nil, err
	}
	level := 0
	if sameLevel {
		level = rec.MSLevel
	}
	for ; delta > 0; delta-- {
		next, err := e.s.NextScan(rec.ScanID+1, level)
		if err != nil {
			break
		}
		rec = next
	}
	for ; delta < 0; delta++ {
		if rec.ScanID == 0 {
			break
		}
		prev, err := e.s.PrecedingScan(rec.ScanID-1, level)
		if err != nil {
			break
		}
		rec = prev
	}
	return rec, nil
}
