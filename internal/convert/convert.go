// Package convert runs the mzML to Parquet pipeline: streaming reader,
// record parser, chromatogram extractor and columnar writer, one spectrum
// in flight at a time.
package convert

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/524D/mzparquet/internal/chromatogram"
	"github.com/524D/mzparquet/internal/columnar"
	"github.com/524D/mzparquet/internal/mzml"
	"github.com/524D/mzparquet/internal/spectrum"

	"go.uber.org/zap"
)

// Options configures a conversion.
type Options struct {
	Columnar     columnar.Options
	Chromatogram chromatogram.Config
	// Logger receives progress and warnings. nil discards them.
	Logger *zap.Logger
}

// Report summarises a successful conversion.
type Report struct {
	Source       string
	Output       string
	Spectra      int
	Chromatogram int
	// Levels counts spectra per MS level.
	Levels   map[int]int
	Warnings []spectrum.Warning
	Metadata columnar.Metadata
	Duration time.Duration
}

// OutputPath returns the default output file for an mzML file: the same
// name with a .parquet extension.
func OutputPath(src string) string {
	ext := filepath.Ext(src)
	if strings.EqualFold(ext, ".mzml") {
		return strings.TrimSuffix(src, ext) + ".parquet"
	}
	return src + ".parquet"
}

// File converts src into dst. On error no file is left at dst; an
// existing dst is only replaced on success.
func File(src, dst string, opts Options) (*Report, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("source", src))
	start := time.Now()

	f, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}

	w, err := columnar.Create(dst, opts.Columnar)
	if err != nil {
		return nil, err
	}
	log.Debug("converting", zap.String("output", dst))

	h := sha256.New()
	tee := io.TeeReader(f, h)
	rep := &Report{
		Source: src,
		Output: dst,
		Levels: make(map[int]int),
	}
	if err := stream(tee, w, rep, opts, log); err != nil {
		w.Abort()
		return nil, fmt.Errorf("%s: %w", src, err)
	}

	// The hash covers the whole file, including what follows the
	// spectrum list.
	if _, err := io.Copy(io.Discard, tee); err != nil {
		w.Abort()
		return nil, fmt.Errorf("%s: %w", src, err)
	}
	meta := columnar.Metadata{
		SourceFilename: filepath.Base(src),
		SourceHash:     "sha256:" + hex.EncodeToString(h.Sum(nil)),
		SourceModTime:  st.ModTime(),
		Producer:       opts.Columnar.Producer,
	}
	if err := w.Commit(meta); err != nil {
		return nil, err
	}
	rep.Metadata = w.Metadata()
	rep.Duration = time.Since(start)

	log.Info("converted",
		zap.String("output", dst),
		zap.Int("spectra", rep.Spectra),
		zap.Int("warnings", len(rep.Warnings)),
		zap.Duration("elapsed", rep.Duration))
	return rep, nil
}

func stream(r io.Reader, w *columnar.Writer, rep *Report, opts Options, log *zap.Logger) error {
	reader := mzml.NewReader(r)
	parser := spectrum.NewParser()
	extractor := chromatogram.NewExtractor(opts.Chromatogram)

	for reader.Next() {
		sp := reader.Spectrum()
		in, err := input(sp, parser.Count())
		if err != nil {
			return reader.Locate(err)
		}
		rec, warnings, err := parser.Parse(in)
		if err != nil {
			return fmt.Errorf("byte offset %d: %w", reader.Offset(), err)
		}
		for _, warn := range warnings {
			log.Debug(warn.Message,
				zap.Int("scan", warn.ScanID),
				zap.String("id", warn.NativeID),
				zap.Stringer("kind", warn.Kind))
		}
		rep.Warnings = append(rep.Warnings, warnings...)

		if err := extractor.Add(&rec); err != nil {
			return err
		}
		if err := w.WriteSpectrum(&rec); err != nil {
			return err
		}
		rep.Spectra++
		rep.Levels[rec.MSLevel]++
	}
	if err := reader.Err(); err != nil {
		return err
	}
	if d := reader.Declared(); d >= 0 && d != reader.Count() {
		log.Warn("spectrum count differs from spectrumList count",
			zap.Int("declared", d), zap.Int("read", reader.Count()))
	}

	points := extractor.Finish()
	if err := w.WriteChromatogram(points); err != nil {
		return err
	}
	rep.Chromatogram = len(points)
	return nil
}

// input collects the attributes and decoded arrays of one spectrum. Values
// that cannot be parsed are reported as schema errors of scan id.
func input(sp *mzml.Spectrum, id int) (spectrum.Input, error) {
	schemaErr := func(field string, err error) error {
		return &spectrum.SchemaError{ScanID: id, NativeID: sp.ID(), Field: field, Message: err.Error()}
	}
	in := spectrum.Input{
		NativeID:       sp.ID(),
		DeclaredLength: sp.DefaultArrayLength(),
	}
	var err error
	if in.MSLevel, err = sp.MSLevel(); err != nil {
		return in, schemaErr("ms_level", err)
	}
	if in.RetentionTime, in.HasRetentionTime, err = sp.RetentionTime(); err != nil {
		return in, schemaErr("retention_time", err)
	}
	p, err := sp.Precursor()
	if err != nil {
		return in, schemaErr("precursor", err)
	}
	if p != nil {
		in.Precursor = &spectrum.Precursor{
			Mz:            p.Mz,
			Charge:        p.Charge,
			IsolationLow:  p.IsolationLow,
			IsolationHigh: p.IsolationHigh,
		}
	}
	if in.Mz, in.Intensity, err = sp.Arrays(); err != nil {
		return in, err
	}
	return in, nil
}
