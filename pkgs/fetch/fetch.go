// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fetch downloads source archives over HTTP.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	units "github.com/docker/go-units"
	"github.com/google/renameio"
	"go.uber.org/zap"
)

// ErrTransport matches every *TransportError.
var ErrTransport = errors.New("transport error")

// TransportError reports a failed download. StatusCode is 0 when no
// response was received.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// Fetcher streams remote archives to local files.
type Fetcher struct {
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.httpClient = c }
}

// New creates a Fetcher. The default client follows redirects and has no
// timeout: a hung download blocks until the server gives up.
func New(logger *zap.SugaredLogger, opts ...Option) *Fetcher {
	f := &Fetcher{
		httpClient: &http.Client{},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads url to dest, replacing any existing file. The body is
// written to a pending file next to dest and renamed into place only after
// it was received completely, so a failed Fetch leaves no file at dest.
func (f *Fetcher) Fetch(ctx context.Context, url, dest string) error {
	f.logger.Infof("Download %q", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &TransportError{URL: url, Err: err}
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return &TransportError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &TransportError{URL: url, StatusCode: resp.StatusCode}
	}

	t, err := renameio.TempFile(filepath.Dir(dest), dest)
	if err != nil {
		return err
	}
	defer t.Cleanup()

	n, err := io.Copy(t, resp.Body)
	if err != nil {
		return &TransportError{URL: url, Err: err}
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return err
	}
	f.logger.Infof("Saved %s to %q", units.HumanSize(float64(n)), dest)
	return nil
}
