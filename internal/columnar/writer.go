package columnar

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/524D/mzparquet/internal/chromatogram"
	"github.com/524D/mzparquet/internal/spectrum"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
)

// DefaultRowGroupSpectra is the number of spectra per row group when
// Options.RowGroupSpectra is not set.
const DefaultRowGroupSpectra = 256

// Options configures a Writer.
type Options struct {
	// Compression is one of "snappy" (default), "zstd", "gzip" or "none".
	Compression string
	// RowGroupSpectra bounds the number of spectra buffered before a row
	// group is flushed to disk.
	RowGroupSpectra int
	// Producer is recorded in the file footer and metadata.
	Producer string
}

// Codec returns the Parquet codec for a compression name.
func Codec(name string) (compress.Codec, error) {
	switch strings.ToLower(name) {
	case "", "snappy":
		return &parquet.Snappy, nil
	case "zstd":
		return &parquet.Zstd, nil
	case "gzip":
		return &parquet.Gzip, nil
	case "none", "uncompressed":
		return &parquet.Uncompressed, nil
	}
	return nil, fmt.Errorf("columnar: unknown compression %q", name)
}

// Writer streams spectra, then the chromatogram, into a temporary file
// next to the destination. Commit renames it into place, so readers never
// see a partially written file.
type Writer struct {
	path    string
	tmpPath string
	f       *os.File
	bw      *bufio.Writer
	pw      *parquet.GenericWriter[Row]
	buf     [1]Row

	producer  string
	meta      Metadata
	rowGroup  int
	inGroup   int
	spectra   int
	chromDone bool
	finished  bool
}

// Create starts a new output file for path.
func Create(path string, opts Options) (*Writer, error) {
	codec, err := Codec(opts.Compression)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	// Write to a temp file in the same directory to ensure rename is atomic.
	f, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return nil, &WriteError{Op: "create", Path: path, Err: err}
	}
	_ = f.Chmod(0644)

	w := &Writer{
		path:     path,
		tmpPath:  f.Name(),
		f:        f,
		bw:       bufio.NewWriterSize(f, 256*1024),
		rowGroup: opts.RowGroupSpectra,
	}
	if w.rowGroup <= 0 {
		w.rowGroup = DefaultRowGroupSpectra
	}
	producer := opts.Producer
	if producer == "" {
		producer = "mzparquet"
	}
	w.producer = producer
	w.pw = parquet.NewGenericWriter[Row](w.bw,
		parquet.Compression(codec),
		parquet.CreatedBy(producer, SchemaVersion, ""),
	)
	return w, nil
}

func (w *Writer) fail(op string, err error) error {
	w.Abort()
	return &WriteError{Op: op, Path: w.path, Err: err}
}

// WriteSpectrum appends one record to the spectra table.
func (w *Writer) WriteSpectrum(rec *spectrum.Record) error {
	if w.finished {
		return ErrCommitted
	}
	if w.chromDone {
		return ErrChromatogramWritten
	}
	w.buf[0] = Row{Spectrum: newSpectrumRow(rec)}
	_, err := w.pw.Write(w.buf[:])
	w.buf[0] = Row{}
	if err != nil {
		return w.fail("write spectrum", err)
	}
	w.spectra++
	w.inGroup++
	if w.inGroup >= w.rowGroup {
		if err := w.pw.Flush(); err != nil {
			return w.fail("flush row group", err)
		}
		w.inGroup = 0
	}
	return nil
}

// WriteChromatogram appends the chromatogram table. It may be called once,
// after the last spectrum.
func (w *Writer) WriteChromatogram(points []chromatogram.Point) error {
	if w.finished {
		return ErrCommitted
	}
	if w.chromDone {
		return ErrChromatogramWritten
	}
	w.chromDone = true
	if w.inGroup > 0 {
		if err := w.pw.Flush(); err != nil {
			return w.fail("flush row group", err)
		}
		w.inGroup = 0
	}
	if len(points) == 0 {
		return nil
	}
	rows := make([]Row, len(points))
	for i, p := range points {
		rows[i] = Row{Chromatogram: newChromatogramRow(p)}
	}
	if _, err := w.pw.Write(rows); err != nil {
		return w.fail("write chromatogram", err)
	}
	return nil
}

// Spectra returns the number of spectra written.
func (w *Writer) Spectra() int {
	return w.spectra
}

// Metadata returns the metadata written by Commit.
func (w *Writer) Metadata() Metadata {
	return w.meta
}

// Commit writes the metadata and the footer and moves the file to its
// final path. An existing file at that path is replaced atomically.
func (w *Writer) Commit(meta Metadata) error {
	if w.finished {
		return ErrCommitted
	}
	if meta.SchemaVersion == "" {
		meta.SchemaVersion = SchemaVersion
	}
	meta.SpectrumCount = w.spectra
	if meta.Producer == "" {
		meta.Producer = w.producer
	}
	for _, kv := range meta.keyValues() {
		w.pw.SetKeyValueMetadata(kv[0], kv[1])
	}
	if err := w.pw.Close(); err != nil {
		return w.fail("close parquet writer", err)
	}
	if err := w.bw.Flush(); err != nil {
		return w.fail("flush", err)
	}
	if err := w.f.Sync(); err != nil {
		return w.fail("sync", err)
	}
	if err := w.f.Close(); err != nil {
		return w.fail("close", err)
	}
	if err := os.Rename(w.tmpPath, w.path); err != nil {
		return w.fail("rename", err)
	}
	w.finished = true
	w.meta = meta

	// Best-effort: fsync the directory so the rename is durable on POSIX.
	if d, err := os.Open(filepath.Dir(w.path)); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

// Abort discards the temporary file. It is a no-op after Commit.
func (w *Writer) Abort() {
	if w.finished {
		return
	}
	w.finished = true
	_ = w.f.Close()
	_ = os.Remove(w.tmpPath)
}

// WriteFile writes a complete run in one call.
func WriteFile(path string, records []spectrum.Record, points []chromatogram.Point,
	meta Metadata, opts Options) error {
	w, err := Create(path, opts)
	if err != nil {
		return err
	}
	for i := range records {
		if err := w.WriteSpectrum(&records[i]); err != nil {
			w.Abort()
			return err
		}
	}
	if err := w.WriteChromatogram(points); err != nil {
		w.Abort()
		return err
	}
	return w.Commit(meta)
}
