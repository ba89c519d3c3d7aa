// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/goplus/depbuild/formula"
	"github.com/goplus/depbuild/internal/timelog"
	"github.com/goplus/depbuild/pkgs/archive"
	"github.com/goplus/depbuild/pkgs/buildsys"
	"github.com/goplus/depbuild/pkgs/buildsys/autotools"
	"github.com/goplus/depbuild/pkgs/fetch"
	"github.com/goplus/depbuild/pkgs/version"
	pkgerrors "github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	// DefaultArchiveName is the file a downloaded archive is saved to
	// inside the work directory.
	DefaultArchiveName = "tmp.tar.gz"
)

// Options configures a Builder. Only Logger is required.
type Options struct {
	Logger  *zap.SugaredLogger
	Fetcher *fetch.Fetcher

	// WorkDir receives downloaded archives, extracted sources and the
	// build directory. Defaults to the current working directory.
	WorkDir string

	// Prefix is passed to configure as --prefix. Empty leaves configure's
	// own default in place.
	Prefix string

	// Jobs is the make parallelism; <= 0 means one job per CPU.
	Jobs int

	// ArchiveDir holds pre-staged archives of formulas without a URL.
	ArchiveDir string

	// KeepArchive keeps downloaded archives after extraction.
	KeepArchive bool

	Stdout io.Writer
	Stderr io.Writer
}

// Builder installs formulas one at a time.
type Builder struct {
	opts    Options
	logger  *zap.SugaredLogger
	fetcher *fetch.Fetcher
	fs      afero.Fs
}

// NewBuilder creates a Builder.
func NewBuilder(opts Options) *Builder {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Fetcher == nil {
		opts.Fetcher = fetch.New(opts.Logger)
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return &Builder{
		opts:    opts,
		logger:  opts.Logger,
		fetcher: opts.Fetcher,
		fs:      afero.NewOsFs(),
	}
}

// Build parses rawVersion, obtains and unpacks the sources of f, then either
// configures, builds and installs them or copies their headers into the
// prefix. extraArgs are appended to the formula's configure arguments.
//
// The extracted source tree and the build directory are removed before Build
// returns, whether it succeeded or not.
func (b *Builder) Build(ctx context.Context, f *formula.Formula, rawVersion string, extraArgs ...string) (err error) {
	if err := f.Validate(); err != nil {
		return err
	}
	workDir, err := b.workDir()
	if err != nil {
		return err
	}

	v, err := timelog.Call(b.group("Parsing %s version", f.Name), func() (version.Version, error) {
		return version.Parse(b.logger, rawVersion)
	})
	if err != nil {
		return err
	}

	var src string
	buildDir := filepath.Join(workDir, autotools.DefaultBuildDir)
	ownBuildDir := false
	defer func() {
		dirs := []string{src}
		if ownBuildDir {
			dirs = append(dirs, buildDir)
		}
		b.remove(dirs...)
	}()

	src, err = b.acquire(ctx, f, v, workDir)
	if err != nil {
		return err
	}

	if f.Autogen != "" {
		err = b.group("Run %s autogen", f.Name).Run(func() error {
			return b.autogen(src, f.Autogen)
		})
		if err != nil {
			return err
		}
	}

	if f.Kind == formula.Headers {
		return b.group("Install %s headers", f.Name).Run(func() error {
			return b.installHeaders(src, f.HeaderDir)
		})
	}

	at := autotools.New(b.logger, src, buildDir)
	at.SetStdout(b.opts.Stdout)
	at.SetStderr(b.opts.Stderr)
	if b.opts.Prefix != "" {
		at.InstallDir(b.opts.Prefix)
		at.Use(b.opts.Prefix)
	}

	// A build directory left by someone else is never removed.
	if _, statErr := b.fs.Stat(buildDir); errors.Is(statErr, fs.ErrNotExist) {
		ownBuildDir = true
	}
	args := append(append([]string(nil), f.ConfigureArgs...), extraArgs...)
	if err = b.configure(at, f.Name, args); err != nil {
		return err
	}
	return b.make(at, f.Name)
}

func (b *Builder) group(format string, args ...any) *timelog.Logger {
	return timelog.New(b.logger, fmt.Sprintf(format, args...))
}

func (b *Builder) workDir() (string, error) {
	if b.opts.WorkDir == "" {
		return os.Getwd()
	}
	return filepath.Abs(b.opts.WorkDir)
}

// acquire downloads and unpacks the sources, or unpacks a pre-staged archive.
func (b *Builder) acquire(ctx context.Context, f *formula.Formula, v version.Version, workDir string) (string, error) {
	extractor := archive.New(b.logger, archive.WithFs(b.fs), archive.WithDir(workDir))

	if f.URL == "" {
		return timelog.Call(b.group("Unpack %s", f.Name), func() (string, error) {
			dir := b.opts.ArchiveDir
			if dir == "" {
				return "", fmt.Errorf("%s: no archive directory for pre-staged archive %q", f.Name, f.ArchiveName(v))
			}
			return extractor.Extract(filepath.Join(dir, f.ArchiveName(v)), false)
		})
	}

	return timelog.Call(b.group("Download and unpack %s", f.Name), func() (string, error) {
		archivePath := filepath.Join(workDir, DefaultArchiveName)
		if err := b.fetcher.Fetch(ctx, f.SourceURL(v), archivePath); err != nil {
			return "", err
		}
		return extractor.Extract(archivePath, !b.opts.KeepArchive)
	})
}

func (b *Builder) autogen(src, script string) error {
	path := filepath.Join(src, script)
	if err := b.fs.Chmod(path, 0o500); err != nil {
		return pkgerrors.Wrapf(err, "autogen %q", path)
	}
	b.logger.Infof("Running 'bash %s'", script)
	cmd := exec.Command("bash", script)
	cmd.Dir = src
	cmd.Stdout = b.opts.Stdout
	cmd.Stderr = b.opts.Stderr
	if err := cmd.Run(); err != nil {
		return pkgerrors.Wrapf(err, "autogen %q", path)
	}
	return nil
}

// configure runs configure and dumps config.log afterwards, also on failure.
func (b *Builder) configure(bs buildsys.BuildSystem, name string, args []string) (err error) {
	defer func() {
		dumpErr := b.group("Dumping %s config log", name).Run(func() error {
			return bs.ReadConfigLog(autotools.DefaultConfigLog)
		})
		err = multierr.Append(err, dumpErr)
	}()
	return b.group("Configure %s", name).Run(func() error {
		return bs.Configure(args...)
	})
}

func (b *Builder) make(bs buildsys.BuildSystem, name string) error {
	return b.group("Build %s", name).Run(func() error {
		return bs.Make(b.opts.Jobs)
	})
}

// installHeaders moves <src>/<headerDir> to <prefix>/include/<base>,
// replacing a previous install. Without a prefix nothing is installed.
func (b *Builder) installHeaders(src, headerDir string) error {
	prefix := b.opts.Prefix
	if prefix == "" {
		b.logger.Infof("No install prefix, skipping %q", headerDir)
		return nil
	}
	from := filepath.Join(src, headerDir)
	includeDir := filepath.Join(prefix, "include")
	to := filepath.Join(includeDir, filepath.Base(headerDir))

	info, err := b.fs.Stat(from)
	if err != nil {
		return pkgerrors.Wrap(err, "header directory")
	}
	if !info.IsDir() {
		return fmt.Errorf("header directory %q is not a directory", from)
	}
	if err := b.fs.MkdirAll(includeDir, 0o755); err != nil {
		return err
	}
	if err := b.fs.RemoveAll(to); err != nil {
		return err
	}

	b.logger.Infof("Installing headers %q to %q", from, to)
	if err := b.fs.Rename(from, to); err == nil {
		return nil
	}
	// Rename fails across devices.
	return b.copyTree(from, to)
}

func (b *Builder) copyTree(from, to string) error {
	return afero.Walk(b.fs, from, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(from, path)
		if err != nil {
			return err
		}
		target := filepath.Join(to, rel)
		switch {
		case info.IsDir():
			return b.fs.MkdirAll(target, info.Mode().Perm()|0o700)
		case info.Mode().IsRegular():
			data, err := afero.ReadFile(b.fs, path)
			if err != nil {
				return err
			}
			return afero.WriteFile(b.fs, target, data, info.Mode().Perm())
		}
		b.logger.Debugf("Skipping %q", path)
		return nil
	})
}

// remove deletes dirs, logging failures.
func (b *Builder) remove(dirs ...string) {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := b.fs.RemoveAll(dir); err != nil {
			b.logger.Debugf("Failed to remove %q: %v", dir, err)
		}
	}
}
