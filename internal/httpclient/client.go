package httpclient

import (
	"net/http"
	"time"

	"agentconsole/internal/logging"
)

// New returns an HTTP client with the given timeout that logs each request at debug level.
func New(timeout time.Duration, logger logging.Logger) *http.Client {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.MaxIdleConnsPerHost = 8
	return &http.Client{
		Timeout: timeout,
		Transport: &loggingRoundTripper{
			base:   base,
			logger: logging.OrNop(logger),
		},
	}
}

type loggingRoundTripper struct {
	base   http.RoundTripper
	logger logging.Logger
}

func (t *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		t.logger.Debug("%s %s failed after %s: %v", req.Method, req.URL.Path, time.Since(start), err)
		return nil, err
	}
	t.logger.Debug("%s %s -> %d (%s)", req.Method, req.URL.Path, resp.StatusCode, time.Since(start))
	return resp, nil
}
