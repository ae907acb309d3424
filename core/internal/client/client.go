package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"zipfetch/archive"
	"zipfetch/delivery"
)

var ErrUnauthorized = errors.New("unauthorized")

type Config struct {
	ServerURL   string
	PSK         string
	InsecureTLS bool
	Timeout     time.Duration
}

// Client asks a zipfetch server to build archives on its side.
type Client struct {
	cfg  Config
	http *http.Client
}

// Download is a server-built archive plus the counts the server reported.
type Download struct {
	ID       string
	Filename string
	Blob     archive.Blob
	Entries  int
	Failures int
}

// RemoteError carries a non-2xx server answer.
type RemoteError struct {
	Status   int
	Message  string
	Failures []delivery.FailureRecord
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func New(cfg Config) (*Client, error) {
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("server URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	hc := &http.Client{Timeout: cfg.Timeout}
	if strings.HasPrefix(strings.ToLower(cfg.ServerURL), "https://") && cfg.InsecureTLS {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // lab mode
		hc.Transport = tr
	}
	return &Client{cfg: cfg, http: hc}, nil
}

func (c *Client) url(p string) string {
	return strings.TrimRight(c.cfg.ServerURL, "/") + p
}

func (c *Client) do(ctx context.Context, method, p string, body any) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(p), rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.PSK != "" {
		req.Header.Set("X-PSK", c.cfg.PSK)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return nil, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		var er struct {
			Error    string                   `json:"error"`
			Failures []delivery.FailureRecord `json:"failures"`
		}
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if json.Unmarshal(b, &er) != nil || er.Error == "" {
			er.Error = strings.TrimSpace(string(b))
			if er.Error == "" {
				er.Error = resp.Status
			}
		}
		return nil, &RemoteError{Status: resp.StatusCode, Message: er.Error, Failures: er.Failures}
	}
	return resp, nil
}

func (c *Client) CreateArchive(ctx context.Context, name string, files []archive.Request) (Download, error) {
	if files == nil {
		files = []archive.Request{}
	}
	resp, err := c.do(ctx, http.MethodPost, "/v1/archives", map[string]any{"name": name, "files": files})
	if err != nil {
		return Download{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Download{}, err
	}
	d := Download{
		ID:       resp.Header.Get("X-Archive-Id"),
		Filename: attachmentName(resp.Header.Get("Content-Disposition"), archive.ResolveFilename(name, ".zip")),
		Blob:     archive.Blob{Data: data, MediaType: resp.Header.Get("Content-Type")},
	}
	d.Entries, _ = strconv.Atoi(resp.Header.Get("X-Archive-Entries"))
	d.Failures, _ = strconv.Atoi(resp.Header.Get("X-Archive-Failures"))
	return d, nil
}

func (c *Client) Manifest(ctx context.Context, id string) (delivery.Manifest, error) {
	var m delivery.Manifest
	resp, err := c.do(ctx, http.MethodGet, "/v1/archives/"+id, nil)
	if err != nil {
		return m, err
	}
	defer resp.Body.Close()
	err = json.NewDecoder(resp.Body).Decode(&m)
	return m, err
}

func attachmentName(header, fallback string) string {
	_, params, err := mime.ParseMediaType(header)
	if err != nil || params["filename"] == "" {
		return fallback
	}
	return params["filename"]
}
