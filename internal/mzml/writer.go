package mzml

import (
	"bufio"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
)

// Encoding selects how Writer stores the binary arrays.
type Encoding struct {
	Precision   Precision
	Compression Compression
}

// OutSpectrum is the input for Writer.WriteSpectrum.
type OutSpectrum struct {
	ID            string // native id, generated from the index when empty
	MSLevel       int
	RetentionTime float64 // seconds
	Precursor     *Precursor
	Mz            []float64
	Intensity     []float64
}

// Writer writes a minimal mzML 1.1 document one spectrum at a time.
// It is used to produce synthetic input files.
type Writer struct {
	bw       *bufio.Writer
	enc      *xml.Encoder
	encoding Encoding
	n        int
	closed   bool
}

// ErrWriterClosed is returned when writing to a closed Writer.
var ErrWriterClosed = errors.New("mzML: writer closed")

// NewWriter writes the document header. count is written as the
// spectrumList count attribute unless it is negative.
func NewWriter(w io.Writer, runID string, count int, encoding Encoding) (*Writer, error) {
	bw := bufio.NewWriter(w)
	bw.WriteString(`<?xml version="1.0" encoding="utf-8"?>
<mzML xmlns="http://psi.hupo.org/ms/mzml" version="1.1.0">
 <cvList count="2">
  <cv id="MS" fullName="Proteomics Standards Initiative Mass Spectrometry Ontology" URI="https://raw.githubusercontent.com/HUPO-PSI/psi-ms-CV/master/psi-ms.obo"/>
  <cv id="UO" fullName="Unit Ontology" URI="http://ontologies.berkeley.edu/obo/unit.obo"/>
 </cvList>
 <run id="`)
	if err := xml.EscapeText(bw, []byte(runID)); err != nil {
		return nil, err
	}
	bw.WriteString(`">` + "\n")
	if count >= 0 {
		fmt.Fprintf(bw, "  <spectrumList count=\"%d\">\n", count)
	} else {
		bw.WriteString("  <spectrumList>\n")
	}
	enc := xml.NewEncoder(bw)
	enc.Indent(`   `, ` `)
	if err := bw.Flush(); err != nil {
		return nil, err
	}
	return &Writer{bw: bw, enc: enc, encoding: encoding}, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func (w *Writer) binaryArray(values []float64, kind string) (binaryDataArray, error) {
	b64, err := EncodeBinary(values, w.encoding.Precision, w.encoding.Compression)
	if err != nil {
		return binaryDataArray{}, err
	}
	b := binaryDataArray{EncodedLength: len(b64), Binary: b64}
	if w.encoding.Precision == Float64 {
		b.CvPar = append(b.CvPar, CVParam{Accession: cvFloat64, Name: "64-bit float"})
	} else {
		b.CvPar = append(b.CvPar, CVParam{Accession: cvFloat32, Name: "32-bit float"})
	}
	if w.encoding.Compression == Zlib {
		b.CvPar = append(b.CvPar, CVParam{Accession: cvZlibCompression, Name: "zlib compression"})
	} else {
		b.CvPar = append(b.CvPar, CVParam{Accession: cvNoCompression, Name: "no compression"})
	}
	if kind == cvMzArray {
		b.CvPar = append(b.CvPar, CVParam{Accession: cvMzArray, Name: "m/z array",
			UnitCvRef: "MS", UnitAccession: "MS:1000040", UnitName: "m/z"})
	} else {
		b.CvPar = append(b.CvPar, CVParam{Accession: cvIntensityArray, Name: "intensity array",
			UnitCvRef: "MS", UnitAccession: "MS:1000131", UnitName: "number of detector counts"})
	}
	return b, nil
}

// WriteSpectrum appends one spectrum to the document.
func (w *Writer) WriteSpectrum(o OutSpectrum) error {
	if w.closed {
		return ErrWriterClosed
	}
	s := spectrum{
		Index:              w.n,
		ID:                 o.ID,
		DefaultArrayLength: int64(len(o.Mz)),
	}
	if s.ID == "" {
		s.ID = fmt.Sprintf("controllerType=0 controllerNumber=1 scan=%d", w.n+1)
	}
	s.CvPar = append(s.CvPar, CVParam{Accession: cvMSLevel, Name: "ms level",
		Value: strconv.Itoa(o.MSLevel)})
	s.ScanList = scanList{Count: 1, Scan: []scan{{CvPar: []CVParam{{
		Accession: cvScanStartTime, Name: "scan start time", Value: formatFloat(o.RetentionTime),
		UnitCvRef: "UO", UnitAccession: unitSecond, UnitName: "second",
	}}}}}
	if p := o.Precursor; p != nil {
		var xp xmlPrecursor
		var ion selectedIon
		if !math.IsNaN(p.Mz) {
			ion.CvPar = append(ion.CvPar, CVParam{Accession: cvSelectedIonMz,
				Name: "selected ion m/z", Value: formatFloat(p.Mz)})
		}
		if p.Charge > 0 {
			ion.CvPar = append(ion.CvPar, CVParam{Accession: cvChargeState,
				Name: "charge state", Value: strconv.Itoa(p.Charge)})
		}
		xp.SelectedIonList = selectedIonList{Count: 1, SelectedIon: []selectedIon{ion}}
		if !math.IsNaN(p.IsolationLow) && !math.IsNaN(p.IsolationHigh) {
			target := p.Mz
			if math.IsNaN(target) {
				target = (p.IsolationLow + p.IsolationHigh) / 2
			}
			xp.IsolationWindow = &isolationWindow{CvPar: []CVParam{
				{Accession: cvIsolationWindowTargetMz, Name: "isolation window target m/z", Value: formatFloat(target)},
				{Accession: cvIsolationWindowLower, Name: "isolation window lower offset", Value: formatFloat(target - p.IsolationLow)},
				{Accession: cvIsolationWindowUpper, Name: "isolation window upper offset", Value: formatFloat(p.IsolationHigh - target)},
			}}
		}
		s.PrecursorList = []precursorList{{Count: 1, Precursor: []xmlPrecursor{xp}}}
	}
	mz, err := w.binaryArray(o.Mz, cvMzArray)
	if err != nil {
		return err
	}
	intens, err := w.binaryArray(o.Intensity, cvIntensityArray)
	if err != nil {
		return err
	}
	s.BinaryDataArrayList = binaryDataArrayList{Count: 2, BinaryDataArray: []binaryDataArray{mz, intens}}

	if err := w.enc.Encode(&s); err != nil {
		return err
	}
	w.n++
	return nil
}

// Close writes the end of the document. It does not close the underlying
// io.Writer.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.enc.Flush(); err != nil {
		return err
	}
	w.bw.WriteString("\n  </spectrumList>\n </run>\n</mzML>\n")
	return w.bw.Flush()
}
