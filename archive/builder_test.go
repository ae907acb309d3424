package archive_test

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zipfetch/archive"
	"zipfetch/delivery"
)

type fakeFetcher struct {
	payloads map[string]string
	errs     map[string]error
	delay    time.Duration

	calls    atomic.Int32
	inflight atomic.Int32
	mu       sync.Mutex
	peak     int32
}

func (f *fakeFetcher) Name() string { return "fake" }

func (f *fakeFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	f.calls.Add(1)
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	f.mu.Lock()
	if n > f.peak {
		f.peak = n
	}
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := f.errs[location]; ok {
		return nil, err
	}
	body, ok := f.payloads[location]
	if !ok {
		return nil, errors.New("404 not found")
	}
	return []byte(body), nil
}

func readZip(t *testing.T, data []byte) map[string]string {
	t.Helper()
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	out := make(map[string]string, len(r.File))
	for _, f := range r.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		out[f.Name] = string(b)
	}
	return out
}

func onlyDelivery(t *testing.T, sink *delivery.MemorySink) delivery.Delivery {
	t.Helper()
	ds := sink.Deliveries()
	require.Len(t, ds, 1)
	return ds[0]
}

func TestBuildPacksOneEntryPerRequest(t *testing.T) {
	f := &fakeFetcher{payloads: map[string]string{
		"https://files.example/a": "alpha",
		"https://files.example/b": "bravo",
		"https://files.example/c": "",
	}}
	sink := &delivery.MemorySink{}
	b := archive.NewBuilder(f, sink, archive.Options{})

	res, err := b.Build(context.Background(), []archive.Request{
		{URL: "https://files.example/a", Name: "report #1.pdf"},
		{URL: "https://files.example/b", Name: "notes.txt"},
		{URL: "https://files.example/c", Name: "empty.bin"},
	}, "quarterly")
	require.NoError(t, err)
	assert.Empty(t, res.Failures)
	assert.NoError(t, res.Err())
	assert.Equal(t, "quarterly.zip", res.Filename)

	d := onlyDelivery(t, sink)
	assert.Equal(t, "quarterly.zip", d.Filename)
	assert.Equal(t, archive.MediaTypeZip, d.Blob.MediaType)
	assert.EqualValues(t, len(d.Blob.Data), res.Size)

	want := map[string]string{
		"report__1.pdf": "alpha",
		"notes.txt":     "bravo",
		"empty.bin":     "",
	}
	if diff := cmp.Diff(want, readZip(t, d.Blob.Data)); diff != "" {
		t.Fatalf("archive contents mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, res.Entries, 3)
	assert.Equal(t, "empty.bin", res.Entries[0].Name)
	assert.Equal(t, "https://files.example/b", res.Entries[1].Source)
	assert.Equal(t, int64(5), res.Entries[2].Size)
	assert.Equal(t, delivery.SHA256Bytes([]byte("alpha")), res.Entries[2].SHA256)
}

func TestBuildEmptyRequestListStillDelivers(t *testing.T) {
	sink := &delivery.MemorySink{}
	b := archive.NewBuilder(&fakeFetcher{}, sink, archive.Options{})

	res, err := b.Build(context.Background(), nil, "")
	require.NoError(t, err)
	assert.Equal(t, "download.zip", res.Filename)
	assert.Empty(t, res.Entries)

	d := onlyDelivery(t, sink)
	assert.Equal(t, "download.zip", d.Filename)
	assert.Empty(t, readZip(t, d.Blob.Data))
}

func TestBuildCollisionOverwriteLastWins(t *testing.T) {
	f := &fakeFetcher{payloads: map[string]string{"u1": "first", "u2": "second"}}
	sink := &delivery.MemorySink{}
	b := archive.NewBuilder(f, sink, archive.Options{OnCollision: archive.CollisionOverwrite})

	res, err := b.Build(context.Background(), []archive.Request{
		{URL: "u1", Name: "a?.txt"},
		{URL: "u2", Name: "a!.txt"},
	}, "x")
	require.NoError(t, err)
	assert.Empty(t, res.Renamed)
	assert.Equal(t, map[string]string{"a_.txt": "second"}, readZip(t, onlyDelivery(t, sink).Blob.Data))
}

func TestBuildCollisionSuffixKeepsBoth(t *testing.T) {
	f := &fakeFetcher{payloads: map[string]string{"u1": "first", "u2": "second", "u3": "third", "u4": "fourth"}}
	sink := &delivery.MemorySink{}
	b := archive.NewBuilder(f, sink, archive.Options{})

	res, err := b.Build(context.Background(), []archive.Request{
		{URL: "u1", Name: "a?.txt"},
		{URL: "u2", Name: "a!.txt"},
		{URL: "u3", Name: "a_-1.txt"},
		{URL: "u4", Name: "a*.txt"},
	}, "x")
	require.NoError(t, err)

	want := map[string]string{
		"a_.txt":   "first",
		"a_-1.txt": "third",
		"a_-2.txt": "second",
		"a_-3.txt": "fourth",
	}
	if diff := cmp.Diff(want, readZip(t, onlyDelivery(t, sink).Blob.Data)); diff != "" {
		t.Fatalf("archive contents mismatch (-want +got):\n%s", diff)
	}
	wantRenames := []archive.Rename{
		{Index: 1, From: "a_.txt", To: "a_-2.txt"},
		{Index: 3, From: "a_.txt", To: "a_-3.txt"},
	}
	if diff := cmp.Diff(wantRenames, res.Renamed); diff != "" {
		t.Fatalf("renames mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildCollisionRejectFetchesNothing(t *testing.T) {
	f := &fakeFetcher{payloads: map[string]string{"u1": "1", "u2": "2", "u3": "3"}}
	sink := &delivery.MemorySink{}
	b := archive.NewBuilder(f, sink, archive.Options{OnCollision: archive.CollisionReject})

	_, err := b.Build(context.Background(), []archive.Request{
		{URL: "u1", Name: "ok.txt"},
		{URL: "u2", Name: "a?.txt"},
		{URL: "u3", Name: "a!.txt"},
	}, "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, archive.ErrCollision)

	var cerr *archive.CollisionError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "a_.txt", cerr.Name)
	assert.Equal(t, []int{1, 2}, cerr.Indexes)
	assert.Zero(t, f.calls.Load())
	assert.Empty(t, sink.Deliveries())
}

func TestBuildPartialFailureKeepsSuccesses(t *testing.T) {
	boom := errors.New("connection reset")
	f := &fakeFetcher{
		payloads: map[string]string{"u1": "one", "u3": "three"},
		errs:     map[string]error{"u2": boom},
	}
	sink := &delivery.MemorySink{}
	b := archive.NewBuilder(f, sink, archive.Options{OnFailure: archive.FailPartial})

	res, err := b.Build(context.Background(), []archive.Request{
		{URL: "u1", Name: "one.txt"},
		{URL: "u2", Name: "two.txt"},
		{URL: "u3", Name: "three.txt"},
	}, "batch")
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"one.txt": "one", "three.txt": "three"}, readZip(t, onlyDelivery(t, sink).Blob.Data))
	require.Len(t, res.Failures, 1)
	assert.Equal(t, 1, res.Failures[0].Index)
	assert.Equal(t, "u2", res.Failures[0].URL)
	assert.Equal(t, "two.txt", res.Failures[0].Name)

	ferr := res.Err()
	require.Error(t, ferr)
	assert.ErrorIs(t, ferr, archive.ErrFetch)
	assert.ErrorIs(t, ferr, boom)
}

func TestBuildAtomicFailureDeliversNothing(t *testing.T) {
	boom := errors.New("503 from origin")
	f := &fakeFetcher{
		payloads: map[string]string{"u1": "one", "u3": "three"},
		errs:     map[string]error{"u2": boom},
	}
	sink := &delivery.MemorySink{}
	b := archive.NewBuilder(f, sink, archive.Options{OnFailure: archive.FailAtomic})

	_, err := b.Build(context.Background(), []archive.Request{
		{URL: "u1", Name: "one.txt"},
		{URL: "u2", Name: "two.txt"},
		{URL: "u3", Name: "three.txt"},
	}, "batch")
	require.Error(t, err)
	assert.ErrorIs(t, err, archive.ErrFetch)
	assert.ErrorIs(t, err, boom)

	var ferr *archive.FetchError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, 1, ferr.Index)
	assert.Empty(t, sink.Deliveries())
}

func TestBuildBoundsConcurrency(t *testing.T) {
	f := &fakeFetcher{payloads: map[string]string{}, delay: 5 * time.Millisecond}
	var reqs []archive.Request
	for i := 0; i < 24; i++ {
		u := "u" + string(rune('a'+i))
		f.payloads[u] = u
		reqs = append(reqs, archive.Request{URL: u, Name: u + ".txt"})
	}
	sink := &delivery.MemorySink{}
	b := archive.NewBuilder(f, sink, archive.Options{Concurrency: 3})

	res, err := b.Build(context.Background(), reqs, "many")
	require.NoError(t, err)
	assert.Len(t, res.Entries, 24)
	assert.EqualValues(t, 24, f.calls.Load())

	f.mu.Lock()
	peak := f.peak
	f.mu.Unlock()
	assert.LessOrEqual(t, peak, int32(3))
	assert.GreaterOrEqual(t, peak, int32(1))
}

func TestBuildCanceledContext(t *testing.T) {
	f := &fakeFetcher{payloads: map[string]string{"u1": "one"}, delay: time.Second}
	sink := &delivery.MemorySink{}
	b := archive.NewBuilder(f, sink, archive.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := b.Build(ctx, []archive.Request{{URL: "u1", Name: "one.txt"}}, "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sink.Deliveries())
}

func TestBuildSinkFailure(t *testing.T) {
	diskFull := errors.New("no space left on device")
	sink := &delivery.MemorySink{Err: diskFull}
	b := archive.NewBuilder(&fakeFetcher{payloads: map[string]string{"u1": "one"}}, sink, archive.Options{})

	_, err := b.Build(context.Background(), []archive.Request{{URL: "u1", Name: "one.txt"}}, "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, diskFull)
	assert.Contains(t, err.Error(), "x.zip")
}
