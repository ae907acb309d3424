package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"zipfetch/fetchers"
)

const DefaultConcurrency = 8

type Options struct {
	// Concurrency caps in-flight fetches. <= 0 means DefaultConcurrency.
	Concurrency int
	OnFailure   FailurePolicy
	OnCollision CollisionPolicy
	Logger      *zap.Logger
	// Now stamps entry modification times. Defaults to time.Now.
	Now func() time.Time
}

// Builder fetches a batch of requests, packs them into one zip and hands
// the result to a Sink.
type Builder struct {
	fetcher fetchers.Fetcher
	sink    Sink
	opts    Options
	log     *zap.Logger
}

func NewBuilder(f fetchers.Fetcher, s Sink, opts Options) *Builder {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.OnFailure == "" {
		opts.OnFailure = FailPartial
	}
	if opts.OnCollision == "" {
		opts.OnCollision = CollisionSuffix
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Builder{fetcher: f, sink: s, opts: opts, log: log}
}

// Build fetches every request, packs the successes into
// <archiveName>.zip and delivers it. Under FailAtomic any fetch failure
// aborts the build before delivery; under FailPartial failures are listed
// in the Result and the error is nil.
func (b *Builder) Build(ctx context.Context, reqs []Request, archiveName string) (Result, error) {
	res := Result{Filename: ResolveFilename(archiveName, ".zip")}

	names, renamed, err := assignNames(reqs, b.opts.OnCollision)
	if err != nil {
		return res, err
	}
	res.Renamed = renamed
	for _, r := range renamed {
		b.log.Debug("renamed colliding entry", zap.Int("index", r.Index), zap.String("from", r.From), zap.String("to", r.To))
	}

	payloads, failures, err := b.fetchAll(ctx, reqs, names)
	if err != nil {
		return res, err
	}
	res.Failures = failures

	// Registry keyed by entry name; request order makes later writes win.
	files := make(map[string][]byte, len(reqs))
	sources := make(map[string]string, len(reqs))
	for i, data := range payloads {
		if data == nil {
			continue
		}
		files[names[i]] = data
		sources[names[i]] = reqs[i].URL
	}

	entryNames := make([]string, 0, len(files))
	for n := range files {
		entryNames = append(entryNames, n)
	}
	sort.Strings(entryNames)

	buf := bytes.NewBuffer(nil)
	if err := writeZip(buf, entryNames, files, b.opts.Now()); err != nil {
		return res, &SerializationError{Err: err}
	}

	for _, n := range entryNames {
		sum := sha256.Sum256(files[n])
		res.Entries = append(res.Entries, EntrySummary{
			Name:   n,
			Source: sources[n],
			Size:   int64(len(files[n])),
			SHA256: hex.EncodeToString(sum[:]),
		})
	}
	res.Size = int64(buf.Len())

	if err := b.sink.Deliver(ctx, Blob{Data: buf.Bytes(), MediaType: MediaTypeZip}, res.Filename); err != nil {
		return res, fmt.Errorf("deliver %s: %w", res.Filename, err)
	}

	b.log.Info("archive delivered",
		zap.String("filename", res.Filename),
		zap.Int("entries", len(res.Entries)),
		zap.Int("failures", len(res.Failures)),
		zap.Int64("size_bytes", res.Size))
	return res, nil
}

// fetchAll returns one payload slot per request; failed slots are nil.
func (b *Builder) fetchAll(ctx context.Context, reqs []Request, names []string) ([][]byte, []*FetchError, error) {
	payloads := make([][]byte, len(reqs))
	errs := make([]*FetchError, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Concurrency)
	for i, r := range reqs {
		i, r := i, r
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				errs[i] = &FetchError{Index: i, URL: r.URL, Name: names[i], Err: err}
				return err
			}
			data, err := b.fetcher.Fetch(gctx, r.URL)
			if err != nil {
				ferr := &FetchError{Index: i, URL: r.URL, Name: names[i], Err: err}
				b.log.Warn("fetch failed", zap.Int("index", i), zap.String("url", r.URL), zap.Error(err))
				if b.opts.OnFailure == FailAtomic {
					return ferr
				}
				errs[i] = ferr
				return nil
			}
			if data == nil {
				data = []byte{}
			}
			payloads[i] = data
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, fmt.Errorf("fetch aborted: %w", ctxErr)
		}
		var ferr *FetchError
		if errors.As(err, &ferr) {
			return nil, nil, ferr
		}
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("fetch aborted: %w", err)
	}

	var failures []*FetchError
	for _, e := range errs {
		if e != nil {
			failures = append(failures, e)
		}
	}
	return payloads, failures, nil
}

func writeZip(buf *bytes.Buffer, names []string, files map[string][]byte, modified time.Time) error {
	zw := zip.NewWriter(buf)
	for _, name := range names {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: modified,
		})
		if err != nil {
			_ = zw.Close()
			return err
		}
		if _, err := w.Write(files[name]); err != nil {
			_ = zw.Close()
			return err
		}
	}
	return zw.Close()
}
