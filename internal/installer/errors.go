package installer

import (
	"errors"
	"fmt"
)

// ErrUnsupportedFormat is returned by Extract for archives whose suffix is
// neither .zip nor .tar.gz/.tgz.
var ErrUnsupportedFormat = errors.New("unsupported archive format")

// AcquisitionError reports a failed pipeline step. Op is one of
// "download", "extract", "copy", "locate" or "install".
type AcquisitionError struct {
	Op     string
	Target string
	Err    error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Target, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// statusError is a non-2xx HTTP response.
type statusError struct {
	URL  string
	Code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status code %d from %s", e.Code, e.URL)
}
