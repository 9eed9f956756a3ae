package httpclient

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ResponseTooLargeError reports a response body over the client's limit.
type ResponseTooLargeError struct {
	Method string
	Path   string
	Limit  int64
	// Declared is set when Content-Length alone exceeded the limit and the
	// body was never read.
	Declared bool
}

func (e *ResponseTooLargeError) Error() string {
	return fmt.Sprintf("%s %s: response body exceeds %d bytes", e.Method, e.Path, e.Limit)
}

// IsResponseTooLarge reports whether err wraps a ResponseTooLargeError.
func IsResponseTooLarge(err error) bool {
	var limitErr *ResponseTooLargeError
	return errors.As(err, &limitErr)
}

// ReadBody reads resp's body up to limit bytes. A declared Content-Length over
// the limit fails before reading. A limit <= 0 reads everything.
func ReadBody(resp *http.Response, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(resp.Body)
	}
	tooLarge := func(declared bool) error {
		e := &ResponseTooLargeError{Limit: limit, Declared: declared}
		if resp.Request != nil {
			e.Method = resp.Request.Method
			e.Path = resp.Request.URL.Path
		}
		return e
	}
	if resp.ContentLength > limit {
		return nil, tooLarge(true)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, tooLarge(false)
	}
	return data, nil
}
