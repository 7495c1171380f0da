// Package source loads raw GeoJSON feature collections from a file or URL
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/1F47E/geo-marker-cluster/pkg/features"
)

// DefaultMaxBytes caps a remote dataset body when HTTP.MaxBytes is unset
const DefaultMaxBytes int64 = 64 << 20

var (
	ErrUnsupportedSource = errors.New("unsupported feature source")
	ErrBodyTooLarge      = errors.New("response body too large")
)

// Source yields the features of one dataset, in dataset order
type Source interface {
	Load(ctx context.Context) (features.DecodeResult, error)
	String() string
}

// File reads a local GeoJSON file
type File struct {
	Path string
}

func (f File) String() string { return "file:" + f.Path }

func (f File) Load(ctx context.Context) (features.DecodeResult, error) {
	if err := ctx.Err(); err != nil {
		return features.DecodeResult{}, err
	}
	fh, err := os.Open(f.Path)
	if err != nil {
		return features.DecodeResult{}, fmt.Errorf("open %s: %w", f.Path, err)
	}
	defer fh.Close()

	res, err := features.Decode(fh)
	if err != nil {
		return features.DecodeResult{}, fmt.Errorf("%s: %w", f.Path, err)
	}
	return res, nil
}

// HTTP fetches a GeoJSON document with a single GET
type HTTP struct {
	URL      string
	Client   *http.Client
	MaxBytes int64
}

func (h HTTP) String() string { return h.URL }

func (h HTTP) Load(ctx context.Context) (features.DecodeResult, error) {
	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return features.DecodeResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := client.Do(req)
	if err != nil {
		return features.DecodeResult{}, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return features.DecodeResult{}, fmt.Errorf("HTTP %d for %s", resp.StatusCode, h.URL)
	}

	limit := h.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return features.DecodeResult{}, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > limit {
		return features.DecodeResult{}, fmt.Errorf("%w: %s exceeds %d bytes", ErrBodyTooLarge, h.URL, limit)
	}

	res, err := features.Decode(bytes.NewReader(data))
	if err != nil {
		return features.DecodeResult{}, fmt.Errorf("%s: %w", h.URL, err)
	}
	return res, nil
}

// Open picks a Source for location. Bare paths and file:// URLs read from
// disk; http and https URLs are fetched with client, reading at most
// maxBytes of the body.
func Open(location string, client *http.Client, maxBytes int64) (Source, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, fmt.Errorf("%w: empty location", ErrUnsupportedSource)
	}

	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" {
		return File{Path: location}, nil
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return HTTP{URL: location, Client: client, MaxBytes: maxBytes}, nil
	case "file":
		return File{Path: u.Path}, nil
	default:
		if len(u.Scheme) == 1 {
			// windows drive letter
			return File{Path: location}, nil
		}
		return nil, fmt.Errorf("%w: scheme %q", ErrUnsupportedSource, u.Scheme)
	}
}
