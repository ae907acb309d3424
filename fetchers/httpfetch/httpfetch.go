package httpfetch

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"zipfetch/fetchers"
)

type Options struct {
	// Timeout bounds each request. Zero leaves it to the caller's context.
	Timeout     time.Duration
	MaxBytes    int64
	InsecureTLS bool
	// Client overrides the constructed client; Timeout and InsecureTLS are
	// ignored when set.
	Client *http.Client
}

// StatusError reports a response outside the 2xx range.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

func New(opts Options) *Fetcher {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
		if opts.InsecureTLS {
			tr := http.DefaultTransport.(*http.Transport).Clone()
			tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // operator opt-in
			client.Transport = tr
		}
	}
	return &Fetcher{client: client, maxBytes: opts.MaxBytes}
}

func (f *Fetcher) Name() string { return "http" }

func (f *Fetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: location, StatusCode: resp.StatusCode}
	}
	return fetchers.ReadLimited(resp.Body, f.maxBytes)
}
