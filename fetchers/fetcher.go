package fetchers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// DefaultMaxBytes caps a single fetched resource.
const DefaultMaxBytes int64 = 25 * 1024 * 1024

var (
	ErrUnsupportedScheme = errors.New("unsupported scheme")
	ErrTooLarge          = errors.New("resource exceeds size limit")
)

type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// ReadLimited reads r fully, failing with ErrTooLarge once more than max
// bytes arrive. max <= 0 uses DefaultMaxBytes.
func ReadLimited(r io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		max = DefaultMaxBytes
	}
	b, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > max {
		return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, max)
	}
	return b, nil
}

// Router dispatches a location to a Fetcher by URL scheme. Locations
// without a scheme are routed to the "" entry.
type Router struct {
	routes map[string]Fetcher
}

func NewRouter() *Router {
	return &Router{routes: make(map[string]Fetcher)}
}

func (r *Router) Handle(scheme string, f Fetcher) *Router {
	r.routes[strings.ToLower(scheme)] = f
	return r
}

func (r *Router) Name() string { return "router" }

func (r *Router) Fetch(ctx context.Context, location string) ([]byte, error) {
	scheme := ""
	if u, err := url.Parse(location); err == nil {
		scheme = strings.ToLower(u.Scheme)
	}
	f, ok := r.routes[scheme]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnsupportedScheme, scheme)
	}
	return f.Fetch(ctx, location)
}
