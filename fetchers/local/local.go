package local

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"zipfetch/fetchers"
)

var ErrOutsideRoot = errors.New("path escapes fetch root")

type Options struct {
	// Root, when set, confines reads to files beneath it.
	Root     string
	MaxBytes int64
}

// Fetcher reads file:// URLs and plain filesystem paths.
type Fetcher struct {
	opts Options
}

func New(opts Options) *Fetcher { return &Fetcher{opts: opts} }

func (f *Fetcher) Name() string { return "local" }

func (f *Fetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := pathOf(location)
	if err != nil {
		return nil, err
	}
	if f.opts.Root != "" {
		if p, err = confine(f.opts.Root, p); err != nil {
			return nil, err
		}
	}

	fh, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	info, err := fh.Stat()
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s: not a regular file", p)
	}
	return fetchers.ReadLimited(fh, f.opts.MaxBytes)
}

func pathOf(location string) (string, error) {
	if !strings.HasPrefix(strings.ToLower(location), "file:") {
		return filepath.FromSlash(location), nil
	}
	u, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	if u.Host != "" && u.Host != "localhost" {
		return "", fmt.Errorf("file URL with remote host %q", u.Host)
	}
	return filepath.FromSlash(u.Path), nil
}

// confine resolves p against root and rejects anything that lands outside
// it, following symlinks on both sides.
func confine(root, p string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	if absRoot, err = filepath.EvalSymlinks(absRoot); err != nil {
		return "", err
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(absRoot, p)
	}
	p = filepath.Clean(p)
	if err := within(absRoot, p); err != nil {
		return "", err
	}

	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		return "", err
	}
	if err := within(absRoot, resolved); err != nil {
		return "", err
	}
	return resolved, nil
}

func within(root, p string) error {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return fmt.Errorf("%w: %s", ErrOutsideRoot, p)
	}
	return nil
}
