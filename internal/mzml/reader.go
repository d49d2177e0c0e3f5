package mzml

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/net/html/charset"
)

// Reader provides streaming access to the spectra of an mzML document.
// Only one spectrum is decoded at a time, so memory use does not depend on
// the number of spectra in the file. A Reader cannot be rewound; reopen the
// file to start over.
type Reader struct {
	d        *xml.Decoder
	cur      *Spectrum
	n        int
	declared int
	seenList bool
	done     bool
	err      error
}

// NewReader creates a Reader for the mzML (or indexedmzML) document in r.
func NewReader(r io.Reader) *Reader {
	d := xml.NewDecoder(r)
	d.CharsetReader = charset.NewReaderLabel
	return &Reader{d: d, declared: -1}
}

// Next advances to the next spectrum. It returns false at the end of the
// spectrum list or on error; Err tells the two apart.
func (r *Reader) Next() bool {
	r.cur = nil
	if r.done || r.err != nil {
		return false
	}
	for {
		t, err := r.d.Token()
		if err != nil {
			if err == io.EOF {
				r.done = true
				if !r.seenList {
					r.err = ErrNoSpectrumList
				}
				return false
			}
			r.err = fmt.Errorf("mzML: byte offset %d: %w", r.d.InputOffset(), err)
			return false
		}
		switch t := t.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "spectrumList":
				r.seenList = true
				for _, a := range t.Attr {
					if a.Name.Local == "count" {
						if c, err := strconv.Atoi(a.Value); err == nil {
							r.declared = c
						}
					}
				}
			case "spectrum":
				var s Spectrum
				if err := r.d.DecodeElement(&s.s, &t); err != nil {
					r.err = fmt.Errorf("mzML: spectrum %d at byte offset %d: %w",
						r.n, r.d.InputOffset(), err)
					return false
				}
				r.cur = &s
				r.n++
				return true
			case "chromatogramList", "indexList":
				// Chromatograms are derived from the spectra, the index is
				// not needed for sequential reading
				if err := r.d.Skip(); err != nil {
					r.err = fmt.Errorf("mzML: byte offset %d: %w", r.d.InputOffset(), err)
					return false
				}
			}
		case xml.EndElement:
			if t.Name.Local == "spectrumList" {
				r.done = true
				return false
			}
		}
	}
}

// Spectrum returns the current spectrum.
func (r *Reader) Spectrum() *Spectrum {
	return r.cur
}

// Err returns the first error encountered while reading.
func (r *Reader) Err() error {
	return r.err
}

// Offset returns the input byte offset just after the current spectrum.
func (r *Reader) Offset() int64 {
	return r.d.InputOffset()
}

// Count returns the number of spectra read so far.
func (r *Reader) Count() int {
	return r.n
}

// Declared returns the count attribute of the spectrumList, or -1 when
// it is absent or not yet seen.
func (r *Reader) Declared() int {
	return r.declared
}

// Locate fills in the position of the current spectrum on a DecodeError.
// Other errors are returned unchanged.
func (r *Reader) Locate(err error) error {
	var de *DecodeError
	if r.cur == nil || !errors.As(err, &de) {
		return err
	}
	located := *de
	located.ScanID = r.n - 1
	located.NativeID = r.cur.ID()
	located.Offset = r.d.InputOffset()
	return &located
}
