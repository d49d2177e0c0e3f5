package mzml

import (
	"encoding/base64"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecodeBinaryKnownValue(t *testing.T) {
	// 1.0 as little-endian 64-bit float
	v, err := DecodeBinary("AAAAAAAA8D8=", Float64, NoCompression)
	if err != nil {
		t.Fatalf("DecodeBinary: error return %v", err)
	}
	if len(v) != 1 || v[0] != 1.0 {
		t.Errorf("DecodeBinary: got %v, should be [1]", v)
	}
	// Whitespace around the base64 text is allowed
	v, err = DecodeBinary("\n   AAAAAAAA8D8=\n  ", Float64, NoCompression)
	if err != nil || len(v) != 1 || v[0] != 1.0 {
		t.Errorf("DecodeBinary with whitespace: got %v, %v", v, err)
	}
}

func TestDecodeBinaryRoundTrip(t *testing.T) {
	values := []float64{100.0, 100.5, 1234.56789012345, 1e-7, 0, math.MaxFloat32 / 2}
	for _, precision := range []Precision{Float32, Float64} {
		for _, compression := range []Compression{NoCompression, Zlib} {
			b64, err := EncodeBinary(values, precision, compression)
			if err != nil {
				t.Fatalf("EncodeBinary(%d, %d): error return %v", precision, compression, err)
			}
			got, err := DecodeBinary(b64, precision, compression)
			if err != nil {
				t.Fatalf("DecodeBinary(%d, %d): error return %v", precision, compression, err)
			}
			want := values
			if precision == Float32 {
				want = make([]float64, len(values))
				for i, v := range values {
					want[i] = float64(float32(v))
				}
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("round trip (%d, %d) mismatch (-want +got):\n%s", precision, compression, diff)
			}
		}
	}
}

func TestDecodeBinaryEmpty(t *testing.T) {
	for _, compression := range []Compression{NoCompression, Zlib} {
		got, err := DecodeBinary("", Float64, compression)
		if err != nil {
			t.Errorf("DecodeBinary empty (%d): error return %v", compression, err)
		}
		if len(got) != 0 {
			t.Errorf("DecodeBinary empty (%d): got %v", compression, got)
		}
	}
}

func TestDecodeBinaryErrors(t *testing.T) {
	tests := []struct {
		name        string
		b64         string
		precision   Precision
		compression Compression
		wrapped     error
	}{
		{"invalid padding", "AAAAAAAA8D8", Float64, NoCompression, nil},
		{"invalid character", "AAAA*AAA", Float64, NoCompression, nil},
		{"length not multiple of 8", base64.StdEncoding.EncodeToString([]byte{1, 2, 3, 4, 5}), Float64, NoCompression, nil},
		{"length not multiple of 4", base64.StdEncoding.EncodeToString([]byte{1, 2, 3}), Float32, NoCompression, nil},
		{"corrupt zlib", base64.StdEncoding.EncodeToString([]byte("not a zlib stream")), Float64, Zlib, nil},
		{"numpress", "AAAAAAAA8D8=", Float64, Numpress, ErrUnsupportedCompression},
		{"invalid precision", "AAAAAAAA8D8=", Precision(16), NoCompression, nil},
	}
	for _, tt := range tests {
		_, err := DecodeBinary(tt.b64, tt.precision, tt.compression)
		var de *DecodeError
		if !errors.As(err, &de) {
			t.Errorf("%s: error %v, should be DecodeError", tt.name, err)
			continue
		}
		if de.ScanID != -1 || de.Offset != -1 {
			t.Errorf("%s: location set without a reader: %+v", tt.name, de)
		}
		if tt.wrapped != nil && !errors.Is(err, tt.wrapped) {
			t.Errorf("%s: error %v, should wrap %v", tt.name, err, tt.wrapped)
		}
	}
}

func TestBinaryDataPars(t *testing.T) {
	tests := []struct {
		cv          []CVParam
		kind        ArrayKind
		precision   Precision
		compression Compression
	}{
		{nil, OtherArray, Float32, NoCompression},
		{[]CVParam{{Accession: cvMzArray}, {Accession: cvFloat64}, {Accession: cvZlibCompression}},
			MzArray, Float64, Zlib},
		{[]CVParam{{Accession: cvIntensityArray}, {Accession: cvFloat32}, {Accession: cvNoCompression}},
			IntensityArray, Float32, NoCompression},
		{[]CVParam{{Accession: cvIntensityArray}, {Accession: `MS:1002313`}},
			IntensityArray, Float32, Numpress},
	}
	for i, tt := range tests {
		kind, precision, compression := binaryDataPars(&binaryDataArray{CvPar: tt.cv})
		if kind != tt.kind || precision != tt.precision || compression != tt.compression {
			t.Errorf("case %d: got (%d, %d, %d), should be (%d, %d, %d)", i,
				kind, precision, compression, tt.kind, tt.precision, tt.compression)
		}
	}
}
