// Package columnar reads and writes the Parquet representation of a run.
//
// A file holds two logical tables in one Parquet schema: every row carries
// either a "spectra" group or a "chromatogram" group. Spectra rows come
// first, written as the spectra are parsed; chromatogram rows are appended
// once the stream has ended. The key/value metadata of the file records
// the schema version and the identity of the source mzML file.
package columnar

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/524D/mzparquet/internal/chromatogram"
	"github.com/524D/mzparquet/internal/spectrum"
)

// SchemaVersion is written to every file. Readers accept files with the
// same major version.
const SchemaVersion = "1.0"

// Metadata keys.
const (
	KeySchemaVersion  = "schema_version"
	KeySourceFilename = "source_filename"
	KeySourceHash     = "source_hash"
	KeySourceModTime  = "source_mtime"
	KeySpectrumCount  = "spectrum_count"
	KeyProducer       = "producer"
)

// SpectrumRow is the "spectra" table. The first eight columns are the
// stable interface; later columns are additions.
type SpectrumRow struct {
	ScanID            int64     `parquet:"scan_id"`
	MSLevel           int32     `parquet:"ms_level"`
	RetentionTime     float64   `parquet:"retention_time"`
	PrecursorMz       *float64  `parquet:"precursor_mz,optional"`
	PrecursorCharge   *int32    `parquet:"precursor_charge,optional"`
	MzArray           []float64 `parquet:"mz_array,list"`
	IntensityArray    []float64 `parquet:"intensity_array,list"`
	TotalIntensity    float64   `parquet:"total_intensity"`
	NativeID          string    `parquet:"native_id"`
	MzSorted          bool      `parquet:"mz_sorted"`
	IsolationLow      *float64  `parquet:"isolation_low,optional"`
	IsolationHigh     *float64  `parquet:"isolation_high,optional"`
	BasePeakMz        float64   `parquet:"base_peak_mz"`
	BasePeakIntensity float64   `parquet:"base_peak_intensity"`
}

// ChromatogramRow is the "chromatogram" table.
type ChromatogramRow struct {
	RetentionTime   float64 `parquet:"retention_time"`
	ScanID          int64   `parquet:"scan_id"`
	SummedIntensity float64 `parquet:"summed_intensity"`
	MSLevel         int32   `parquet:"ms_level"`
}

// Row is the physical Parquet row. Exactly one of the fields is set.
type Row struct {
	Spectrum     *SpectrumRow     `parquet:"spectra,optional"`
	Chromatogram *ChromatogramRow `parquet:"chromatogram,optional"`
}

func optFloat(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func fromOptFloat(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

func newSpectrumRow(rec *spectrum.Record) *SpectrumRow {
	row := &SpectrumRow{
		ScanID:            int64(rec.ScanID),
		MSLevel:           int32(rec.MSLevel),
		RetentionTime:     rec.RetentionTime,
		MzArray:           rec.Mz,
		IntensityArray:    rec.Intensity,
		TotalIntensity:    rec.TotalIntensity,
		NativeID:          rec.NativeID,
		MzSorted:          rec.MzSorted,
		BasePeakMz:        rec.BasePeakMz,
		BasePeakIntensity: rec.BasePeakIntensity,
	}
	if p := rec.Precursor; p != nil {
		row.PrecursorMz = optFloat(p.Mz)
		if p.Charge != 0 {
			charge := int32(p.Charge)
			row.PrecursorCharge = &charge
		}
		row.IsolationLow = optFloat(p.IsolationLow)
		row.IsolationHigh = optFloat(p.IsolationHigh)
	}
	return row
}

func (row *SpectrumRow) record() spectrum.Record {
	rec := spectrum.Record{
		ScanID:            int(row.ScanID),
		NativeID:          row.NativeID,
		MSLevel:           int(row.MSLevel),
		RetentionTime:     row.RetentionTime,
		Mz:                row.MzArray,
		Intensity:         row.IntensityArray,
		TotalIntensity:    row.TotalIntensity,
		MzSorted:          row.MzSorted,
		BasePeakMz:        row.BasePeakMz,
		BasePeakIntensity: row.BasePeakIntensity,
	}
	if row.PrecursorMz != nil {
		p := &spectrum.Precursor{
			Mz:            *row.PrecursorMz,
			IsolationLow:  fromOptFloat(row.IsolationLow),
			IsolationHigh: fromOptFloat(row.IsolationHigh),
		}
		if row.PrecursorCharge != nil {
			p.Charge = int(*row.PrecursorCharge)
		}
		rec.Precursor = p
	}
	return rec
}

func newChromatogramRow(p chromatogram.Point) *ChromatogramRow {
	return &ChromatogramRow{
		RetentionTime:   p.RetentionTime,
		ScanID:          int64(p.ScanID),
		SummedIntensity: p.SummedIntensity,
		MSLevel:         int32(p.MSLevel),
	}
}

func (row *ChromatogramRow) point() chromatogram.Point {
	return chromatogram.Point{
		RetentionTime:   row.RetentionTime,
		ScanID:          int(row.ScanID),
		SummedIntensity: row.SummedIntensity,
		MSLevel:         int(row.MSLevel),
	}
}

// Metadata is the key/value block of a file.
type Metadata struct {
	SchemaVersion  string
	SourceFilename string
	SourceHash     string // "sha256:<hex>"
	SourceModTime  time.Time
	SpectrumCount  int
	Producer       string
}

func (m Metadata) keyValues() [][2]string {
	kv := [][2]string{
		{KeySchemaVersion, m.SchemaVersion},
		{KeySourceFilename, m.SourceFilename},
		{KeySourceHash, m.SourceHash},
		{KeySpectrumCount, strconv.Itoa(m.SpectrumCount)},
	}
	if !m.SourceModTime.IsZero() {
		kv = append(kv, [2]string{KeySourceModTime, m.SourceModTime.UTC().Format(time.RFC3339Nano)})
	}
	if m.Producer != "" {
		kv = append(kv, [2]string{KeyProducer, m.Producer})
	}
	return kv
}

func metadataFrom(lookup func(string) (string, bool)) (Metadata, error) {
	var m Metadata
	m.SchemaVersion, _ = lookup(KeySchemaVersion)
	m.SourceFilename, _ = lookup(KeySourceFilename)
	m.SourceHash, _ = lookup(KeySourceHash)
	m.Producer, _ = lookup(KeyProducer)
	if v, ok := lookup(KeySpectrumCount); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return m, fmt.Errorf("columnar: invalid %s %q: %w", KeySpectrumCount, v, err)
		}
		m.SpectrumCount = n
	}
	if v, ok := lookup(KeySourceModTime); ok && v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return m, fmt.Errorf("columnar: invalid %s %q: %w", KeySourceModTime, v, err)
		}
		m.SourceModTime = t
	}
	return m, nil
}

func majorVersion(v string) string {
	major, _, _ := strings.Cut(v, ".")
	return major
}

// CheckVersion returns an IncompatibleSchemaError unless version has the
// same major version as SchemaVersion.
func CheckVersion(path, version string) error {
	if version == "" || majorVersion(version) != majorVersion(SchemaVersion) {
		return &IncompatibleSchemaError{Path: path, Found: version, Supported: SchemaVersion}
	}
	return nil
}
