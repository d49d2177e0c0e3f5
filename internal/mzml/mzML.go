package mzml

import (
	"encoding/xml"
	"errors"
	"math"
	"strconv"
)

// CV terms used by this package.
//
// Binary data compression
// MS:1000574 zlib compression
// MS:1000576 No Compression
// MS:1002312 MS-Numpress linear prediction compression
// MS:1002313 MS-Numpress positive integer compression
// MS:1002314 MS-Numpress short logged float compression
// MS:1002746 MS-Numpress linear prediction compression followed by zlib compression
// MS:1002747 MS-Numpress positive integer compression followed by zlib compression
// MS:1002748 MS-Numpress short logged float compression followed by zlib compression
//
// Binary data array types
// MS:1000514 m/z array
// MS:1000515 intensity array
//
// Binary data types
// MS:1000521 32-bit float
// MS:1000523 64-bit float
const (
	cvZlibCompression = `MS:1000574`
	cvNoCompression   = `MS:1000576`
	cvMzArray         = `MS:1000514`
	cvIntensityArray  = `MS:1000515`
	cvFloat32         = `MS:1000521`
	cvFloat64         = `MS:1000523`

	cvMSLevel                 = `MS:1000511`
	cvScanStartTime           = `MS:1000016`
	cvSelectedIonMz           = `MS:1000744`
	cvChargeState             = `MS:1000041`
	cvIsolationWindowTargetMz = `MS:1000827`
	cvIsolationWindowLower    = `MS:1000828`
	cvIsolationWindowUpper    = `MS:1000829`
	cvTotalIonCurrent         = `MS:1000285`
	cvCentroidSpectrum        = `MS:1000127`

	unitMinute   = `UO:0000031`
	unitMinuteMS = `MS:1000038`
	unitSecond   = `UO:0000010`
)

var numpressTerms = map[string]bool{
	`MS:1002312`: true, `MS:1002313`: true, `MS:1002314`: true,
	`MS:1002746`: true, `MS:1002747`: true, `MS:1002748`: true,
}

// The <spectrum> element. Only the parts needed for conversion are mapped,
// the rest of the element is skipped by the decoder.
type spectrum struct {
	XMLName            xml.Name  `xml:"spectrum"`
	Index              int       `xml:"index,attr"`
	ID                 string    `xml:"id,attr"`
	DefaultArrayLength int64     `xml:"defaultArrayLength,attr"`
	MSLevelAttr        string    `xml:"msLevel,attr,omitempty"`
	CvPar              []CVParam `xml:"cvParam,omitempty"`
	ScanList           scanList  `xml:"scanList"`
	// precursorList is a slice, only the current version of
	// the encoding/xml package does not handle "omitempty" properly on
	// structures, and we don't want precursorList tags to appear in
	// e.g. ms1 spectra
	PrecursorList       []precursorList     `xml:"precursorList,omitempty"`
	BinaryDataArrayList binaryDataArrayList `xml:"binaryDataArrayList"`
}

type binaryDataArrayList struct {
	Count           int               `xml:"count,attr,omitempty"`
	BinaryDataArray []binaryDataArray `xml:"binaryDataArray"`
}

type binaryDataArray struct {
	EncodedLength int       `xml:"encodedLength,attr,omitempty"`
	ArrayLength   int       `xml:"arrayLength,attr,omitempty"`
	CvPar         []CVParam `xml:"cvParam,omitempty"`
	Binary        string    `xml:"binary"`
}

type scanList struct {
	Count int       `xml:"count,attr,omitempty"`
	CvPar []CVParam `xml:"cvParam,omitempty"`
	Scan  []scan    `xml:"scan"`
}

type scan struct {
	CvPar   []CVParam   `xml:"cvParam,omitempty"`
	UserPar []userParam `xml:"userParam,omitempty"`
}

type userParam struct {
	Name  string `xml:"name,attr,omitempty"`
	Value string `xml:"value,attr,omitempty"`
	Type  string `xml:"type,attr,omitempty"`
}

type precursorList struct {
	Count     int            `xml:"count,attr,omitempty"`
	Precursor []xmlPrecursor `xml:"precursor"`
}

type xmlPrecursor struct {
	SpectrumRef     string           `xml:"spectrumRef,attr,omitempty"`
	IsolationWindow *isolationWindow `xml:"isolationWindow,omitempty"`
	SelectedIonList selectedIonList  `xml:"selectedIonList"`
	Activation      activation       `xml:"activation"`
}

type isolationWindow struct {
	CvPar []CVParam `xml:"cvParam,omitempty"`
}

type selectedIonList struct {
	Count       int           `xml:"count,attr,omitempty"`
	SelectedIon []selectedIon `xml:"selectedIon"`
}

type selectedIon struct {
	CvPar []CVParam `xml:"cvParam,omitempty"`
}

type activation struct {
	CvPar []CVParam `xml:"cvParam,omitempty"`
}

// CVParam contains values and attributes of a mzML Controlled Vocabulary term
// (http://www.peptideatlas.org/tmp/mzML1.1.0.html)
type CVParam struct {
	Accession     string `xml:"accession,attr,omitempty"`
	Name          string `xml:"name,attr,omitempty"`
	Value         string `xml:"value,attr,omitempty"`
	UnitCvRef     string `xml:"unitCvRef,attr,omitempty"`
	UnitAccession string `xml:"unitAccession,attr,omitempty"`
	UnitName      string `xml:"unitName,attr,omitempty"`
}

var (
	// ErrUnknownUnit means the file contains a unit that the software cannot handle
	ErrUnknownUnit = errors.New("mzML: can't handle unit")
	// ErrNoSpectrumList means the document ended without a spectrumList
	ErrNoSpectrumList = errors.New("mzML: no spectrumList found")
)

// Precursor holds the selected ion and isolation window of an MSn spectrum.
// Absent values are NaN (m/z, isolation bounds) or 0 (charge).
type Precursor struct {
	Mz            float64
	Charge        int
	IsolationLow  float64
	IsolationHigh float64
}

// Spectrum is one decoded <spectrum> element as produced by Reader.
// The binary arrays are decoded lazily by Arrays.
type Spectrum struct {
	s spectrum
}

// Index returns the value of the index attribute.
func (s *Spectrum) Index() int { return s.s.Index }

// ID returns the native id (the id attribute).
func (s *Spectrum) ID() string { return s.s.ID }

// DefaultArrayLength returns the declared number of peaks.
func (s *Spectrum) DefaultArrayLength() int { return int(s.s.DefaultArrayLength) }

func findCV(params []CVParam, accession string) (CVParam, bool) {
	for _, cvParam := range params {
		if cvParam.Accession == accession {
			return cvParam, true
		}
	}
	return CVParam{}, false
}

// MSLevel returns the MS level of the spectrum. The msLevel attribute is
// honoured when present, otherwise the MS:1000511 CV term is used.
func (s *Spectrum) MSLevel() (int, error) {
	if s.s.MSLevelAttr != "" {
		return strconv.Atoi(s.s.MSLevelAttr)
	}
	if cvParam, ok := findCV(s.s.CvPar, cvMSLevel); ok {
		msLevel, err := strconv.ParseInt(cvParam.Value, 10, 64)
		return int(msLevel), err
	}
	return 1, nil // If nothing else, guess it's MS1
}

// RetentionTime returns the scan start time in seconds. The second
// result is false when the spectrum has no scan start time.
func (s *Spectrum) RetentionTime() (float64, bool, error) {
	for _, scan := range s.s.ScanList.Scan {
		cvParam, ok := findCV(scan.CvPar, cvScanStartTime)
		if !ok {
			continue
		}
		retentionTime, err := strconv.ParseFloat(cvParam.Value, 64)
		if err != nil {
			return 0, false, err
		}
		switch cvParam.UnitAccession {
		case unitMinute, unitMinuteMS:
			retentionTime *= 60
		case unitSecond, "":
		default:
			return 0, false, ErrUnknownUnit
		}
		return retentionTime, true, nil
	}
	return 0, false, nil
}

// TotalIonCurrent returns the total ion current, or NaN if not found
func (s *Spectrum) TotalIonCurrent() (float64, error) {
	if cvParam, ok := findCV(s.s.CvPar, cvTotalIonCurrent); ok {
		return strconv.ParseFloat(cvParam.Value, 64)
	}
	return math.NaN(), nil
}

// Centroid returns true is the spectrum contains centroid peaks
func (s *Spectrum) Centroid() bool {
	_, ok := findCV(s.s.CvPar, cvCentroidSpectrum)
	return ok
}

// Precursor returns the first precursor of the spectrum, or nil when the
// spectrum has no precursorList.
func (s *Spectrum) Precursor() (*Precursor, error) {
	if len(s.s.PrecursorList) == 0 || len(s.s.PrecursorList[0].Precursor) == 0 {
		return nil, nil
	}
	xp := s.s.PrecursorList[0].Precursor[0]
	p := Precursor{
		Mz:            math.NaN(),
		IsolationLow:  math.NaN(),
		IsolationHigh: math.NaN(),
	}
	if len(xp.SelectedIonList.SelectedIon) > 0 {
		ion := xp.SelectedIonList.SelectedIon[0].CvPar
		if cvParam, ok := findCV(ion, cvSelectedIonMz); ok {
			mz, err := strconv.ParseFloat(cvParam.Value, 64)
			if err != nil {
				return nil, err
			}
			p.Mz = mz
		}
		if cvParam, ok := findCV(ion, cvChargeState); ok {
			charge, err := strconv.Atoi(cvParam.Value)
			if err != nil {
				return nil, err
			}
			p.Charge = charge
		}
	}
	if xp.IsolationWindow != nil {
		w := xp.IsolationWindow.CvPar
		target, hasTarget, err := cvFloat(w, cvIsolationWindowTargetMz)
		if err != nil {
			return nil, err
		}
		lower, hasLower, err := cvFloat(w, cvIsolationWindowLower)
		if err != nil {
			return nil, err
		}
		upper, hasUpper, err := cvFloat(w, cvIsolationWindowUpper)
		if err != nil {
			return nil, err
		}
		if hasTarget {
			if math.IsNaN(p.Mz) {
				// Some writers only report the isolation target
				p.Mz = target
			}
			if hasLower && hasUpper {
				p.IsolationLow = target - lower
				p.IsolationHigh = target + upper
			}
		}
	}
	return &p, nil
}

func cvFloat(params []CVParam, accession string) (float64, bool, error) {
	cvParam, ok := findCV(params, accession)
	if !ok {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(cvParam.Value, 64)
	return v, err == nil, err
}
