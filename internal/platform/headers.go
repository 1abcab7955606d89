package platform

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// NocacheExpires is the past date sent in Expires to defeat caches.
const NocacheExpires = "Wed, 11 Jan 1984 05:00:00 GMT"

// NocacheControl is the Cache-Control value sent with NocacheHeaders.
const NocacheControl = "no-cache, must-revalidate, max-age=0, no-store, private"

// ResponseWriter records whether the response has started so that late
// header emission can be detected instead of being silently dropped.
type ResponseWriter struct {
	http.ResponseWriter
	wroteHeader bool
	status      int
	written     int64
}

// NewResponseWriter wraps w. Wrapping an existing *ResponseWriter returns it.
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	if rw, ok := w.(*ResponseWriter); ok {
		return rw
	}
	return &ResponseWriter{ResponseWriter: w}
}

// WriteHeader writes the status line once; later calls are ignored.
func (rw *ResponseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.wroteHeader = true
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *ResponseWriter) Write(p []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(p)
	rw.written += int64(n)
	return n, err
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *ResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// HeadersSent reports whether the status line has been written.
func (rw *ResponseWriter) HeadersSent() bool {
	return rw.wroteHeader
}

// Status returns the written status code, or 0 if nothing was written.
func (rw *ResponseWriter) Status() int {
	return rw.status
}

// Written returns the number of body bytes written.
func (rw *ResponseWriter) Written() int64 {
	return rw.written
}

func headersSent(w http.ResponseWriter) bool {
	rw, ok := w.(*ResponseWriter)
	return ok && rw.HeadersSent()
}

// SendHeader sets a header given as a raw "Name: value" line, replacing any
// previous value for the same name.
func SendHeader(w http.ResponseWriter, line string) error {
	name, value, ok := strings.Cut(line, ":")
	name = strings.TrimSpace(name)
	value = strings.TrimSpace(value)
	if !ok || !httpguts.ValidHeaderFieldName(name) || !httpguts.ValidHeaderFieldValue(value) {
		return fmt.Errorf("%w: %q", ErrMalformedHeader, line)
	}
	if headersSent(w) {
		return fmt.Errorf("%w: %s", ErrHeadersSent, name)
	}
	w.Header().Set(name, value)
	return nil
}

// SendNosniffHeader tells browsers not to sniff the content type.
func SendNosniffHeader(w http.ResponseWriter) error {
	return SendHeader(w, "X-Content-Type-Options: nosniff")
}

// NocacheHeaders sets headers that prevent caching by browsers and proxies
// and removes Last-Modified.
func NocacheHeaders(w http.ResponseWriter) error {
	var errs []error
	for _, line := range []string{
		"Expires: " + NocacheExpires,
		"Cache-Control: " + NocacheControl,
	} {
		if err := SendHeader(w, line); err != nil {
			errs = append(errs, err)
		}
	}
	if !headersSent(w) {
		w.Header().Del("Last-Modified")
	}
	return errors.Join(errs...)
}
