package platform

import "errors"

// Sentinel errors for header emission. Both are reported to callers that
// care and are otherwise safe to ignore.
var (
	// ErrHeadersSent is returned when a header is set after the response
	// status line has been written.
	ErrHeadersSent = errors.New("headers already sent")

	// ErrMalformedHeader is returned for header lines that are not
	// "Name: value" or contain characters not allowed in a header.
	ErrMalformedHeader = errors.New("malformed header line")
)
