package delivery

import (
	"encoding/json"
	"os"
	"time"

	"zipfetch/archive"
)

type FailureRecord struct {
	Index int    `json:"index"`
	URL   string `json:"url"`
	Name  string `json:"name"`
	Error string `json:"error"`
}

// Manifest describes one delivered archive: what went in and what could
// not be fetched.
type Manifest struct {
	ID            string                 `json:"id"`
	Filename      string                 `json:"filename"`
	CreatedAt     string                 `json:"created_at"`
	SizeBytes     int64                  `json:"size_bytes"`
	Entries       []archive.EntrySummary `json:"entries"`
	Failures      []FailureRecord        `json:"failures,omitempty"`
	Renamed       []archive.Rename       `json:"renamed,omitempty"`
	ArchiveSHA256 string                 `json:"archive_sha256,omitempty"`
}

func NewManifest(id string, res archive.Result, createdAt time.Time) Manifest {
	m := Manifest{
		ID:        id,
		Filename:  res.Filename,
		CreatedAt: createdAt.UTC().Format(time.RFC3339Nano),
		SizeBytes: res.Size,
		Entries:   res.Entries,
		Renamed:   res.Renamed,
	}
	if m.Entries == nil {
		m.Entries = []archive.EntrySummary{}
	}
	for _, f := range res.Failures {
		m.Failures = append(m.Failures, FailureRecord{
			Index: f.Index,
			URL:   f.URL,
			Name:  f.Name,
			Error: f.Err.Error(),
		})
	}
	return m
}

func WriteManifest(path string, m Manifest) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, append(b, '\n'), 0o600)
}

func ReadManifest(path string) (Manifest, error) {
	var m Manifest
	b, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(b, &m)
	return m, err
}
