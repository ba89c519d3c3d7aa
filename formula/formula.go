// Package formula describes how each supported dependency is obtained and
// installed.
package formula

import (
	"fmt"
	"sort"
	"strings"

	"github.com/goplus/depbuild/pkgs/version"
)

// Kind selects the install procedure of a formula.
type Kind int

const (
	// Autotools formulas run configure, make and make install.
	Autotools Kind = iota

	// Headers formulas copy a header directory into <prefix>/include.
	Headers
)

func (k Kind) String() string {
	switch k {
	case Autotools:
		return "autotools"
	case Headers:
		return "headers"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// -----------------------------------------------------------------------------

// Formula represents the recipe of one dependency.
//
// URL and Archive are templates expanded by Expand. Exactly one of them is
// set: URL archives are downloaded, Archive names a file expected in the
// pre-staged archive directory.
type Formula struct {
	Name          string // label used in log groups, e.g. "HDF5"
	Kind          Kind
	URL           string
	Archive       string
	ConfigureArgs []string

	// Autogen is a script run in the source tree before configure.
	Autogen string

	// HeaderDir is the directory, relative to the source tree, moved to
	// <prefix>/include/<base of HeaderDir> by Headers formulas.
	HeaderDir string
}

// Validate reports an incomplete formula.
func (f *Formula) Validate() error {
	switch {
	case f.Name == "":
		return fmt.Errorf("formula: missing name")
	case (f.URL == "") == (f.Archive == ""):
		return fmt.Errorf("formula %s: exactly one of URL and Archive must be set", f.Name)
	case f.Kind == Headers && f.HeaderDir == "":
		return fmt.Errorf("formula %s: header formulas need a header directory", f.Name)
	}
	return nil
}

// SourceURL returns the download URL of version v.
func (f *Formula) SourceURL(v version.Version) string {
	return Expand(f.URL, v)
}

// ArchiveName returns the pre-staged archive file name of version v.
func (f *Formula) ArchiveName(v version.Version) string {
	return Expand(f.Archive, v)
}

// Expand substitutes {version}, {version_short} ("major.minor") and
// {version_underscore} ("1_80_0") in tmpl.
func Expand(tmpl string, v version.Version) string {
	return strings.NewReplacer(
		"{version}", strings.TrimSpace(v.Raw()),
		"{version_short}", v.Short(),
		"{version_underscore}", v.Underscored(),
	).Replace(tmpl)
}

// -----------------------------------------------------------------------------

var builtin = map[string]Formula{
	"gmp": {
		Name:          "GMP",
		Archive:       "gmp-{version}.tar.xz",
		ConfigureArgs: []string{"--enable-cxx"},
	},
	"hdf5": {
		Name:          "HDF5",
		URL:           "https://support.hdfgroup.org/ftp/HDF5/releases/hdf5-{version_short}/hdf5-{version}/src/hdf5-{version}.tar.gz",
		ConfigureArgs: []string{"--enable-build-mode=production"},
	},
	"libint": {
		Name:          "Libint",
		URL:           "https://github.com/evaleev/libint/archive/refs/tags/v{version}.tar.gz",
		Autogen:       "autogen.sh",
		ConfigureArgs: []string{"--enable-shared=yes"},
	},
	"boost": {
		Name:      "Boost",
		Kind:      Headers,
		URL:       "https://boostorg.jfrog.io/artifactory/main/release/{version}/source/boost_{version_underscore}.tar.gz",
		HeaderDir: "boost",
	},
	"eigen": {
		Name:      "Eigen",
		Kind:      Headers,
		URL:       "https://gitlab.com/libeigen/eigen/-/archive/{version}/eigen-{version}.tar.gz",
		HeaderDir: "Eigen",
	},
	"highfive": {
		Name:      "HighFive",
		Kind:      Headers,
		URL:       "https://github.com/BlueBrain/HighFive/archive/refs/tags/v{version}.tar.gz",
		HeaderDir: "include/highfive",
	},
}

// Lookup returns a copy of the builtin formula called name (case-insensitive).
func Lookup(name string) (*Formula, bool) {
	f, ok := builtin[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	f.ConfigureArgs = append([]string(nil), f.ConfigureArgs...)
	return &f, true
}

// Names returns the sorted names of the builtin formulas.
func Names() []string {
	names := make([]string, 0, len(builtin))
	for name := range builtin {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
