package columnar

import (
	"errors"
	"fmt"
)

// WriteError reports a failure while producing an output file. No partial
// file is left at Path when it is returned.
type WriteError struct {
	Op   string
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("columnar: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// IncompatibleSchemaError is returned when a file was written with a
// different major schema version.
type IncompatibleSchemaError struct {
	Path      string
	Found     string
	Supported string
}

func (e *IncompatibleSchemaError) Error() string {
	found := e.Found
	if found == "" {
		found = "none"
	}
	return fmt.Sprintf("columnar: %s: schema version %s is not compatible with %s",
		e.Path, found, e.Supported)
}

var (
	// ErrCommitted is returned when a Writer is used after Commit or Abort.
	ErrCommitted = errors.New("columnar: writer already finished")
	// ErrChromatogramWritten is returned when a spectrum is written after
	// the chromatogram.
	ErrChromatogramWritten = errors.New("columnar: spectra must precede the chromatogram")
)
