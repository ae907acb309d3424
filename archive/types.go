package archive

import (
	"context"
	"strings"
)

const (
	DefaultName = "download"

	MediaTypeZip  = "application/zip"
	MediaTypeText = "text/plain"
)

// Request is one file to bundle: where to fetch it and what to call it.
// Name is caller supplied and untrusted.
type Request struct {
	URL  string `json:"url" yaml:"url"`
	Name string `json:"name" yaml:"name"`
}

// Blob is a payload handed to a Sink. The filename travels separately.
type Blob struct {
	Data      []byte
	MediaType string
}

// Sink receives the final bytes of a build and presents them to a user
// (a directory, an HTTP response, ...).
type Sink interface {
	Deliver(ctx context.Context, blob Blob, filename string) error
}

type EntrySummary struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	Size   int64  `json:"size_bytes"`
	SHA256 string `json:"sha256"`
}

type Rename struct {
	Index int    `json:"index"`
	From  string `json:"from"`
	To    string `json:"to"`
}

type Result struct {
	Filename string
	Entries  []EntrySummary
	Failures []*FetchError
	Renamed  []Rename
	Size     int64
}

// ResolveFilename appends ext to name, falling back to DefaultName when
// name is blank.
func ResolveFilename(name, ext string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultName
	}
	return name + ext
}
