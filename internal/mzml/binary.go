package mzml

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/klauspost/compress/zlib"
)

// Precision is the declared width of the floats in a binary array.
type Precision int

const (
	Float32 Precision = 32
	Float64 Precision = 64
)

func (p Precision) size() int {
	if p == Float64 {
		return 8
	}
	return 4
}

// Compression is the declared compression of a binary array.
type Compression int

const (
	NoCompression Compression = iota
	Zlib
	// Numpress stands for any of the MS-Numpress encodings, which are
	// recognised but not decoded.
	Numpress
)

// ArrayKind tells which quantity a binary array holds.
type ArrayKind int

const (
	OtherArray ArrayKind = iota
	MzArray
	IntensityArray
)

// DecodeError is returned when a binary data array cannot be decoded.
// The reader fills in the location of the offending spectrum.
type DecodeError struct {
	Reason   string
	ScanID   int    // position of the spectrum in the file, -1 if unknown
	NativeID string // id attribute of the spectrum
	Offset   int64  // byte offset in the input after the spectrum, -1 if unknown
	Err      error
}

func (e *DecodeError) Error() string {
	msg := "mzML: decode binary array: " + e.Reason
	if e.ScanID >= 0 {
		msg += fmt.Sprintf(" (spectrum %d", e.ScanID)
		if e.NativeID != "" {
			msg += fmt.Sprintf(" %q", e.NativeID)
		}
		if e.Offset >= 0 {
			msg += fmt.Sprintf(", byte offset %d", e.Offset)
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

func newDecodeError(reason string, err error) *DecodeError {
	return &DecodeError{Reason: reason, ScanID: -1, Offset: -1, Err: err}
}

// ErrUnsupportedCompression is wrapped by DecodeError for MS-Numpress arrays.
var ErrUnsupportedCompression = errors.New("compression type not supported")

// binaryDataPars decodes the CV terms in a mzML binarydata section
func binaryDataPars(b *binaryDataArray) (ArrayKind, Precision, Compression) {
	kind := OtherArray
	precision := Float32         // Default: 32 bits
	compression := NoCompression // Default: no compression
	for _, cvParam := range b.CvPar {
		switch cvParam.Accession {
		case cvZlibCompression:
			compression = Zlib
		case cvNoCompression:
			compression = NoCompression
		case cvMzArray:
			kind = MzArray
		case cvIntensityArray:
			kind = IntensityArray
		case cvFloat64:
			precision = Float64
		case cvFloat32:
			precision = Float32
		default:
			if numpressTerms[cvParam.Accession] {
				compression = Numpress
			}
		}
	}
	return kind, precision, compression
}

// DecodeBinary converts a base64 encoded, optionally zlib compressed,
// little-endian float array into float64 values.
func DecodeBinary(b64 string, precision Precision, compression Compression) ([]float64, error) {
	if precision != Float32 && precision != Float64 {
		return nil, newDecodeError(fmt.Sprintf("invalid precision %d", precision), nil)
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
	if err != nil {
		return nil, newDecodeError("invalid base64", err)
	}
	switch compression {
	case NoCompression:
	case Zlib:
		if len(data) > 0 {
			z, err := zlib.NewReader(bytes.NewReader(data))
			if err != nil {
				return nil, newDecodeError("zlib header", err)
			}
			d, err := io.ReadAll(z)
			z.Close()
			if err != nil {
				return nil, newDecodeError("zlib stream", err)
			}
			data = d
		}
	case Numpress:
		return nil, newDecodeError("MS-Numpress", ErrUnsupportedCompression)
	default:
		return nil, newDecodeError(fmt.Sprintf("compression %d", compression), ErrUnsupportedCompression)
	}

	size := precision.size()
	if len(data)%size != 0 {
		return nil, newDecodeError(
			fmt.Sprintf("%d bytes is not a multiple of %d-bit floats", len(data), precision), nil)
	}
	cnt := len(data) / size
	values := make([]float64, cnt)
	if precision == Float64 {
		for i := range values {
			values[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
		}
	} else {
		for i := range values {
			values[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
		}
	}
	return values, nil
}

// EncodeBinary is the inverse of DecodeBinary.
func EncodeBinary(values []float64, precision Precision, compression Compression) (string, error) {
	var raw []byte
	// Some code duplication below in order to optimize loops
	switch precision {
	case Float64:
		raw = make([]byte, len(values)*8)
		for i, v := range values {
			binary.LittleEndian.PutUint64(raw[8*i:], math.Float64bits(v))
		}
	case Float32:
		raw = make([]byte, len(values)*4)
		for i, v := range values {
			binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(float32(v)))
		}
	default:
		return "", fmt.Errorf("mzML: invalid precision %d", precision)
	}

	switch compression {
	case NoCompression:
	case Zlib:
		var b bytes.Buffer
		z := zlib.NewWriter(&b)
		if _, err := z.Write(raw); err != nil {
			return "", err
		}
		// zlib writer must explicitly be closed here, otherwise result is invalid
		if err := z.Close(); err != nil {
			return "", err
		}
		raw = b.Bytes()
	default:
		return "", fmt.Errorf("mzML: cannot encode compression %d", compression)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Arrays decodes the m/z and intensity arrays of the spectrum. Arrays of
// other kinds are ignored. A missing array is returned as nil.
func (s *Spectrum) Arrays() (mz, intensity []float64, err error) {
	for i := range s.s.BinaryDataArrayList.BinaryDataArray {
		b := &s.s.BinaryDataArrayList.BinaryDataArray[i]
		kind, precision, compression := binaryDataPars(b)
		// We are only interested in mz and intensity
		if kind == OtherArray {
			continue
		}
		values, err := DecodeBinary(b.Binary, precision, compression)
		if err != nil {
			return nil, nil, err
		}
		if kind == MzArray {
			mz = values
		} else {
			intensity = values
		}
	}
	return mz, intensity, nil
}
