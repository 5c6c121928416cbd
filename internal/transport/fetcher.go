package transport

import (
	"bytes"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
)

// Fetcher performs one blocking request per call and surfaces the raw status
// code and body. The retry/pagination policy sits above this boundary.
type Fetcher interface {
	Fetch(method, url string, header http.Header, body []byte) (status int, payload []byte, err error)
}

// FetcherFunc adapts a function to the Fetcher interface. Tests use this to
// serve canned registry payloads.
type FetcherFunc func(method, url string, header http.Header, body []byte) (int, []byte, error)

func (f FetcherFunc) Fetch(method, url string, header http.Header, body []byte) (int, []byte, error) {
	return f(method, url, header, body)
}

// CollyFetcher drives registry requests through a colly collector. The
// collector's LimitRule delay is the proactive rate limit keeping crawls
// under the registries' request quotas; revisits are allowed since the
// retry policy re-issues identical URLs.
type CollyFetcher struct {
	mu        sync.Mutex
	collector *colly.Collector

	status  int
	body    []byte
	lastErr error
}

// NewCollyFetcher creates a fetcher with the given per-request timeout and
// inter-request delay. A zero delay disables proactive rate limiting.
func NewCollyFetcher(timeout, delay time.Duration) (*CollyFetcher, error) {
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(timeout)
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Delay:       delay,
		Parallelism: 1,
	}); err != nil {
		return nil, err
	}

	f := &CollyFetcher{collector: c}
	c.OnResponse(func(r *colly.Response) {
		f.status = r.StatusCode
		f.body = r.Body
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			// Policy above decides what a non-2xx status means.
			f.status = r.StatusCode
			f.body = r.Body
			return
		}
		f.lastErr = err
	})
	return f, nil
}

// Fetch issues one blocking request. Calls are serialized: the collector's
// response callbacks write into shared fields.
func (f *CollyFetcher) Fetch(method, url string, header http.Header, body []byte) (int, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.status, f.body, f.lastErr = 0, nil, nil

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	err := f.collector.Request(method, url, reader, nil, header)
	if f.status > 0 {
		return f.status, f.body, nil
	}
	if f.lastErr != nil {
		return 0, nil, &ConnectivityError{Cause: f.lastErr}
	}
	if err != nil {
		return 0, nil, &ConnectivityError{Cause: err}
	}
	return f.status, f.body, nil
}
