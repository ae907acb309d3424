package delivery

import (
	"context"
	"errors"
	"path/filepath"
	"sync"

	"zipfetch/archive"
)

// DirSink saves deliveries into a local directory, the CLI's stand-in for
// a browser "save file" dialog.
type DirSink struct {
	Dir string

	mu   sync.Mutex
	last string
}

func NewDirSink(dir string) *DirSink { return &DirSink{Dir: dir} }

func (s *DirSink) Deliver(ctx context.Context, blob archive.Blob, filename string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := filepath.Base(filepath.Clean("/" + filename))
	if name == "/" || name == "." {
		return errors.New("empty delivery filename")
	}
	path := filepath.Join(s.Dir, name)
	if err := WriteFileAtomic(path, blob.Data, 0o644); err != nil {
		return err
	}
	s.mu.Lock()
	s.last = path
	s.mu.Unlock()
	return nil
}

// LastPath is the file written by the most recent successful Deliver.
func (s *DirSink) LastPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

type Delivery struct {
	Filename string
	Blob     archive.Blob
}

// MemorySink keeps every delivery in memory.
type MemorySink struct {
	mu         sync.Mutex
	deliveries []Delivery
	// Err, when set, is returned from Deliver instead of recording.
	Err error
}

func (s *MemorySink) Deliver(ctx context.Context, blob archive.Blob, filename string) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = append(s.deliveries, Delivery{Filename: filename, Blob: blob})
	return nil
}

func (s *MemorySink) Deliveries() []Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Delivery, len(s.deliveries))
	copy(out, s.deliveries)
	return out
}
