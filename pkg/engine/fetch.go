package engine

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// FetchOptions shape a remote content download.
type FetchOptions struct {
	// Headers are sent verbatim with the request.
	Headers map[string]string

	// PostBody switches the request to POST with this body. Nil means
	// GET.
	PostBody []byte

	// Timeout bounds the whole request, body included. Zero falls back
	// to the fetcher default.
	Timeout time.Duration

	// ConnectTimeout bounds connection establishment only.
	ConnectTimeout time.Duration

	// SkipCertVerify disables TLS certificate verification, for
	// self-signed internal sources.
	SkipCertVerify bool
}

// Fetcher downloads remote content for CreateFromURL. The engine treats it
// as opaque; tests substitute their own.
type Fetcher interface {
	Fetch(ctx context.Context, url string, opts FetchOptions) (io.ReadCloser, error)
}

// defaultFetchTimeout bounds downloads when the caller sets none.
const defaultFetchTimeout = 5 * time.Minute

// HTTPFetcher is the net/http Fetcher used by default.
type HTTPFetcher struct{}

// NewHTTPFetcher returns a Fetcher over net/http.
func NewHTTPFetcher() *HTTPFetcher { return &HTTPFetcher{} }

// Fetch performs the request and returns the response body. Non-2xx
// responses are errors wrapping ErrFetchFailed.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, opts FetchOptions) (io.ReadCloser, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
	}
	if opts.ConnectTimeout > 0 {
		dialer := &net.Dialer{Timeout: opts.ConnectTimeout}
		transport.DialContext = dialer.DialContext
	}
	if opts.SkipCertVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultFetchTimeout
	}
	client := &http.Client{Transport: transport, Timeout: timeout}

	method := http.MethodGet
	var body io.Reader
	if opts.PostBody != nil {
		method = http.MethodPost
		body = bytes.NewReader(opts.PostBody)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	for key, value := range opts.Headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: unexpected status %s from %s", ErrFetchFailed, resp.Status, url)
	}
	return resp.Body, nil
}

var _ Fetcher = (*HTTPFetcher)(nil)
