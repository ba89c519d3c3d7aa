// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package archive unpacks source tarballs.
//
// Source tarball publishers put every file under one top-level directory
// named after the release (gmp-6.2.1/, hdf5-1.12.1/, ...). Extract enforces
// that convention by inspecting entry names before anything is written, and
// returns the path of that directory.
package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var (
	// ErrMalformedArchive matches every *MalformedArchiveError.
	ErrMalformedArchive = errors.New("malformed archive")

	// ErrUnsafeEntry matches every *UnsafeEntryError.
	ErrUnsafeEntry = errors.New("unsafe archive entry")
)

// MalformedArchiveError reports an archive without exactly one top-level
// directory.
type MalformedArchiveError struct {
	Path  string
	Roots int
}

func (e *MalformedArchiveError) Error() string {
	return fmt.Sprintf("expected a single top-directory in %q, observed %d", e.Path, e.Roots)
}

func (e *MalformedArchiveError) Is(target error) bool { return target == ErrMalformedArchive }

// UnsafeEntryError reports an entry that would be written outside the
// extraction directory.
type UnsafeEntryError struct {
	Path  string
	Entry string
}

func (e *UnsafeEntryError) Error() string {
	return fmt.Sprintf("attempted path traversal in %q: %q", e.Path, e.Entry)
}

func (e *UnsafeEntryError) Is(target error) bool { return target == ErrUnsafeEntry }

// Extractor unpacks archives into a directory.
type Extractor struct {
	fs     afero.Fs
	dir    string
	logger *zap.SugaredLogger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithFs makes the Extractor read archives from and write files to fs.
func WithFs(fs afero.Fs) Option {
	return func(e *Extractor) { e.fs = fs }
}

// WithDir sets the extraction directory. By default it is the working
// directory at the time Extract is called.
func WithDir(dir string) Option {
	return func(e *Extractor) { e.dir = dir }
}

// New creates an Extractor on the OS filesystem.
func New(logger *zap.SugaredLogger, opts ...Option) *Extractor {
	e := &Extractor{
		fs:     afero.NewOsFs(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract unpacks archivePath and returns the absolute path of its
// top-level directory.
//
// When deleteArchive is set the archive is removed once extraction was
// attempted, whether or not it succeeded. If unpacking fails halfway, the
// partially written root is returned along with the error.
func (e *Extractor) Extract(archivePath string, deleteArchive bool) (root string, err error) {
	if deleteArchive {
		defer func() {
			if rmErr := e.fs.Remove(archivePath); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				err = multierr.Append(err, rmErr)
			}
		}()
	}

	dir, err := e.destDir()
	if err != nil {
		return "", err
	}

	top, err := e.check(archivePath)
	if err != nil {
		return "", err
	}
	e.logger.Infof("Unpack archive %q to %q", archivePath, top)

	root = filepath.Join(dir, top)
	if err := e.unpack(archivePath, dir); err != nil {
		return root, err
	}
	return root, nil
}

func (e *Extractor) destDir() (string, error) {
	if e.dir == "" {
		return os.Getwd()
	}
	return filepath.Abs(e.dir)
}

func (e *Extractor) open(archivePath string) (*tarReader, error) {
	f, err := e.fs.Open(archivePath)
	if err != nil {
		return nil, err
	}
	tr, format, err := newTarReader(f)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "open %s archive %s", format, archivePath)
	}
	return tr, nil
}

// check validates every entry name and returns the single root directory.
func (e *Extractor) check(archivePath string) (string, error) {
	tr, err := e.open(archivePath)
	if err != nil {
		return "", err
	}
	defer tr.Close()

	var (
		names   []string
		headers []tar.Header
		links   = linkSet{}
	)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", pkgerrors.Wrapf(err, "read %s", archivePath)
		}
		if hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}
		if hdr.Typeflag == tar.TypeSymlink {
			links[path.Clean(hdr.Name)] = struct{}{}
		}
		headers = append(headers, *hdr)
		names = append(names, hdr.Name)
	}

	// Links may point anywhere once created, so every path is checked
	// against the full set of symlinks in the archive.
	for i := range headers {
		if !links.local(&headers[i]) {
			return "", &UnsafeEntryError{Path: archivePath, Entry: headers[i].Name}
		}
	}

	roots := Roots(names)
	if len(roots) != 1 {
		return "", &MalformedArchiveError{Path: archivePath, Roots: len(roots)}
	}
	return roots[0], nil
}

// Roots returns the sorted distinct top-level directories of entry names.
// Leading "." segments are skipped and hidden top-level entries are ignored.
func Roots(names []string) []string {
	set := make(map[string]struct{})
	for _, name := range names {
		if r := rootOf(name); r != "" {
			set[r] = struct{}{}
		}
	}
	roots := make([]string, 0, len(set))
	for r := range set {
		roots = append(roots, r)
	}
	sort.Strings(roots)
	return roots
}

func rootOf(name string) string {
	for _, seg := range strings.Split(name, "/") {
		if seg == "" || seg == "." {
			continue
		}
		if strings.HasPrefix(seg, ".") {
			return ""
		}
		return seg
	}
	return ""
}

// linkSet holds the cleaned names of the symlinks of an archive.
type linkSet map[string]struct{}

// local reports whether hdr, and the target of a link entry, stay inside the
// extraction directory without going through a symlink of the archive.
// Symlink targets are relative to the link's own directory.
func (s linkSet) local(hdr *tar.Header) bool {
	if !s.resolves(hdr.Name) {
		return false
	}
	switch hdr.Typeflag {
	case tar.TypeLink:
		return s.resolves(hdr.Linkname)
	case tar.TypeSymlink:
		if path.IsAbs(hdr.Linkname) || filepath.IsAbs(hdr.Linkname) {
			return false
		}
		return s.resolves(path.Dir(path.Clean(hdr.Name)) + "/" + hdr.Linkname)
	}
	return true
}

// resolves walks name segment by segment. It fails when ".." climbs above
// the extraction directory or when a symlink of the archive is used as a
// directory. A symlink as the last segment is fine.
func (s linkSet) resolves(name string) bool {
	if path.IsAbs(name) || filepath.IsAbs(name) {
		return false
	}
	var stack []string
	segs := strings.Split(name, "/")
	for i, seg := range segs {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(stack) == 0 {
				return false
			}
			stack = stack[:len(stack)-1]
			continue
		}
		stack = append(stack, seg)
		if _, ok := s[strings.Join(stack, "/")]; ok && !last(segs[i+1:]) {
			return false
		}
	}
	return true
}

// last reports whether rest holds no further path segment.
func last(rest []string) bool {
	for _, seg := range rest {
		if seg != "" && seg != "." {
			return false
		}
	}
	return true
}

func (e *Extractor) unpack(archivePath, dir string) error {
	tr, err := e.open(archivePath)
	if err != nil {
		return err
	}
	defer tr.Close()

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return pkgerrors.Wrapf(err, "read %s", archivePath)
		}
		if rootOf(hdr.Name) == "" {
			// Hidden top-level entries (.gitattributes, ._foo AppleDouble
			// files) would be left behind next to the root.
			if hdr.Typeflag != tar.TypeXGlobalHeader {
				e.logger.Debugf("Skip %q: outside the top-level directory", hdr.Name)
			}
			continue
		}
		target := filepath.Join(dir, filepath.FromSlash(hdr.Name))
		mode := hdr.FileInfo().Mode().Perm()

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := e.fs.MkdirAll(target, mode|0o700); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := e.writeFile(target, tr, mode); err != nil {
				return err
			}
		case tar.TypeLink:
			src, err := e.fs.Open(filepath.Join(dir, filepath.FromSlash(hdr.Linkname)))
			if err != nil {
				return err
			}
			err = e.writeFile(target, src, mode)
			src.Close()
			if err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := e.symlink(hdr.Linkname, target); err != nil {
				return err
			}
		case tar.TypeXGlobalHeader:
		default:
			e.logger.Debugf("Skip %q: unsupported entry type %q", hdr.Name, hdr.Typeflag)
		}
	}
}

func (e *Extractor) writeFile(target string, r io.Reader, mode fs.FileMode) error {
	if err := e.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	f, err := e.fs.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return pkgerrors.Wrapf(err, "write %s", target)
	}
	if err := f.Close(); err != nil {
		return err
	}
	// OpenFile is subject to the umask; configure scripts need their x bits.
	return e.fs.Chmod(target, mode)
}

func (e *Extractor) symlink(oldname, newname string) error {
	linker, ok := e.fs.(afero.Linker)
	if !ok {
		e.logger.Debugf("Skip symlink %q: filesystem does not support links", newname)
		return nil
	}
	if err := e.fs.MkdirAll(filepath.Dir(newname), 0o755); err != nil {
		return err
	}
	if err := e.fs.Remove(newname); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return linker.SymlinkIfPossible(oldname, newname)
}
