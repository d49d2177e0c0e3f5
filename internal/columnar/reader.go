package columnar

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/524D/mzparquet/internal/chromatogram"
	"github.com/524D/mzparquet/internal/spectrum"

	"github.com/parquet-go/parquet-go"
)

// Contents is a fully loaded file.
type Contents struct {
	Metadata     Metadata
	Spectra      []spectrum.Record
	Chromatogram []chromatogram.Point
}

const readBatch = 64

func openParquet(path string) (*os.File, *parquet.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("columnar: open %s: %w", path, err)
	}
	return f, pf, nil
}

// ReadMetadata returns the metadata block of a file without reading rows.
func ReadMetadata(path string) (Metadata, error) {
	f, pf, err := openParquet(path)
	if err != nil {
		return Metadata{}, err
	}
	defer f.Close()
	return metadataFrom(pf.Lookup)
}

// Load reads a whole file. The schema version is checked before any row
// is read.
func Load(path string) (*Contents, error) {
	f, pf, err := openParquet(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	meta, err := metadataFrom(pf.Lookup)
	if err != nil {
		return nil, err
	}
	if err := CheckVersion(path, meta.SchemaVersion); err != nil {
		return nil, err
	}

	c := &Contents{Metadata: meta}
	if meta.SpectrumCount > 0 {
		c.Spectra = make([]spectrum.Record, 0, meta.SpectrumCount)
		c.Chromatogram = make([]chromatogram.Point, 0, meta.SpectrumCount)
	}

	r := parquet.NewGenericReader[Row](f)
	defer r.Close()
	rows := make([]Row, readBatch)
	for {
		// Rows are cleared so the reader allocates fresh arrays; the
		// records keep references to them.
		clear(rows)
		n, err := r.Read(rows)
		for i := range rows[:n] {
			switch row := &rows[i]; {
			case row.Spectrum != nil:
				c.Spectra = append(c.Spectra, row.Spectrum.record())
			case row.Chromatogram != nil:
				c.Chromatogram = append(c.Chromatogram, row.Chromatogram.point())
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("columnar: read %s: %w", path, err)
		}
		if n == 0 {
			break
		}
	}
	if meta.SpectrumCount != len(c.Spectra) {
		return nil, fmt.Errorf("columnar: %s: metadata lists %d spectra, file holds %d",
			path, meta.SpectrumCount, len(c.Spectra))
	}
	return c, nil
}
