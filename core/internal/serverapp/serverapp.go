package serverapp

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"zipfetch/archive"
	"zipfetch/delivery"
	"zipfetch/fetchers"
)

const (
	maxBodyBytes    = 1 << 20
	maxRequestFiles = 1000
)

type Config struct {
	DataDir     string
	PSK         string
	DefaultName string
	Builder     archive.Options
	Fetcher     fetchers.Fetcher
	Logger      *zap.Logger
}

type Server struct {
	cfg Config
	log *zap.Logger

	mu        sync.Mutex
	manifests map[string]delivery.Manifest
}

type createArchiveRequest struct {
	Name  string            `json:"name"`
	Files []archive.Request `json:"files"`
}

type createTextRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type errorResponse struct {
	Error    string                   `json:"error"`
	Failures []delivery.FailureRecord `json:"failures,omitempty"`
}

func New(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		cfg:       cfg,
		log:       log,
		manifests: make(map[string]delivery.Manifest),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/archives", s.handleArchives)
	mux.HandleFunc("/v1/archives/", s.handleArchiveManifest) // /v1/archives/{id}
	mux.HandleFunc("/v1/text", s.handleText)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) requirePSK(r *http.Request) bool {
	if s.cfg.PSK == "" {
		return true
	}
	psk := r.Header.Get("X-PSK")
	return subtle.ConstantTimeCompare([]byte(psk), []byte(s.cfg.PSK)) == 1
}

func (s *Server) handleArchives(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.requirePSK(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var req createArchiveRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if len(req.Files) > maxRequestFiles {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("too many files (max %d)", maxRequestFiles)})
		return
	}
	if req.Name == "" {
		req.Name = s.cfg.DefaultName
	}

	id := uuid.NewString()
	sink := &captureSink{}
	b := archive.NewBuilder(s.cfg.Fetcher, sink, s.builderOptions(id))
	res, err := b.Build(r.Context(), req.Files, req.Name)
	if err != nil {
		s.log.Warn("archive build failed", zap.String("archive_id", id), zap.Error(err))
		writeJSON(w, statusFor(err), errorResponse{Error: err.Error(), Failures: failureRecords(err)})
		return
	}

	m := delivery.NewManifest(id, res, time.Now())
	m.ArchiveSHA256 = delivery.SHA256Bytes(sink.blob.Data)
	if err := s.saveManifest(m); err != nil {
		s.log.Error("persist manifest", zap.String("archive_id", id), zap.Error(err))
	}

	w.Header().Set("X-Archive-Id", id)
	w.Header().Set("X-Archive-Entries", strconv.Itoa(len(res.Entries)))
	w.Header().Set("X-Archive-Failures", strconv.Itoa(len(res.Failures)))
	writeBlob(w, sink.blob, sink.filename)
}

func (s *Server) handleArchiveManifest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.requirePSK(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 || parts[2] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	s.mu.Lock()
	m, ok := s.manifests[parts[2]]
	s.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleText(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.requirePSK(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var req createTextRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Name == "" {
		req.Name = s.cfg.DefaultName
	}

	sink := &captureSink{}
	b := archive.NewBuilder(s.cfg.Fetcher, sink, s.builderOptions(""))
	if _, err := b.DeliverText(r.Context(), req.Content, req.Name); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeBlob(w, sink.blob, sink.filename)
}

func (s *Server) builderOptions(id string) archive.Options {
	opts := s.cfg.Builder
	opts.Logger = s.log
	if id != "" {
		opts.Logger = s.log.With(zap.String("archive_id", id))
	}
	return opts
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, archive.ErrCollision):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, archive.ErrFetch):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func failureRecords(err error) []delivery.FailureRecord {
	var ferr *archive.FetchError
	if !errors.As(err, &ferr) {
		return nil
	}
	return []delivery.FailureRecord{{Index: ferr.Index, URL: ferr.URL, Name: ferr.Name, Error: ferr.Err.Error()}}
}

// captureSink holds the delivered blob so headers describing the build can
// be written before the body.
type captureSink struct {
	blob     archive.Blob
	filename string
}

func (c *captureSink) Deliver(ctx context.Context, blob archive.Blob, filename string) error {
	c.blob = blob
	c.filename = filename
	return nil
}

func writeBlob(w http.ResponseWriter, blob archive.Blob, filename string) {
	w.Header().Set("Content-Type", blob.MediaType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(blob.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(blob.Data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) manifestDir() string {
	return filepath.Join(s.cfg.DataDir, "manifests")
}

func (s *Server) saveManifest(m delivery.Manifest) error {
	s.mu.Lock()
	s.manifests[m.ID] = m
	s.mu.Unlock()

	if s.cfg.DataDir == "" {
		return nil
	}
	return delivery.WriteManifest(filepath.Join(s.manifestDir(), m.ID+".json"), m)
}

// LoadFromDisk indexes manifests persisted by earlier runs. Unreadable
// files are skipped.
func (s *Server) LoadFromDisk() error {
	if s.cfg.DataDir == "" {
		return fmt.Errorf("data dir is required")
	}
	dir := s.manifestDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range ents {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		m, err := delivery.ReadManifest(filepath.Join(dir, e.Name()))
		if err != nil || m.ID == "" {
			s.log.Warn("skipping manifest", zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		s.manifests[m.ID] = m
	}
	return nil
}
