// Package version validates the release versions handed to a formula before
// they are spliced into a URL or a log message.
//
// The accepted grammar is the usual release-version syntax:
//
//	[v][N!]N(.N)*[{a|b|rc}N][.postN][.devN][+local]
package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	pep440 "github.com/aquasecurity/go-pep440-version"
	"go.uber.org/zap"
	"golang.org/x/mod/semver"
)

// ErrInvalidVersion matches every *InvalidVersionError.
var ErrInvalidVersion = errors.New("invalid version")

// InvalidVersionError reports a string that is not a release version.
type InvalidVersionError struct {
	Raw string
	Err error
}

func (e *InvalidVersionError) Error() string {
	return fmt.Sprintf("invalid version: %q", e.Raw)
}

func (e *InvalidVersionError) Unwrap() error { return e.Err }

func (e *InvalidVersionError) Is(target error) bool { return target == ErrInvalidVersion }

// Version is a parsed release version. The zero value is not valid; use Parse.
type Version struct {
	raw     string
	v       pep440.Version
	epoch   uint64
	release []uint64
}

// Parse validates raw and logs the parsed value.
func Parse(logger *zap.SugaredLogger, raw string) (Version, error) {
	v, err := parse(raw)
	if err != nil {
		return Version{}, err
	}
	logger.Infof("Successfully parsed %q", raw)
	return v, nil
}

func parse(raw string) (Version, error) {
	pv, err := pep440.Parse(raw)
	if err != nil {
		return Version{}, &InvalidVersionError{Raw: raw, Err: err}
	}
	v := Version{raw: raw, v: pv}

	// BaseVersion is "[N!]N(.N)*", already range checked by the parser.
	base := pv.BaseVersion()
	if e, rest, ok := strings.Cut(base, "!"); ok {
		if v.epoch, err = strconv.ParseUint(e, 10, 64); err != nil {
			return Version{}, &InvalidVersionError{Raw: raw, Err: err}
		}
		base = rest
	}
	for _, s := range strings.Split(base, ".") {
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return Version{}, &InvalidVersionError{Raw: raw, Err: err}
		}
		v.release = append(v.release, n)
	}
	return v, nil
}

// Raw returns the string Parse was given.
func (v Version) Raw() string { return v.raw }

// Epoch returns the N of an "N!" prefix, or 0.
func (v Version) Epoch() uint64 { return v.epoch }

// Release returns a copy of the numeric release segments.
func (v Version) Release() []uint64 {
	return append([]uint64(nil), v.release...)
}

// Major returns the first release segment.
func (v Version) Major() uint64 { return v.segment(0) }

// Minor returns the second release segment, or 0.
func (v Version) Minor() uint64 { return v.segment(1) }

func (v Version) segment(i int) uint64 {
	if i < len(v.release) {
		return v.release[i]
	}
	return 0
}

// IsPreRelease reports a pre-release or development release.
func (v Version) IsPreRelease() bool { return v.v.IsPreRelease() }

// IsPostRelease reports a post release.
func (v Version) IsPostRelease() bool { return v.v.IsPostRelease() }

// Local returns the lower-cased local label after "+".
func (v Version) Local() string { return v.v.Local() }

// Compare returns -1, 0 or 1 depending on whether v sorts before, equal to
// or after other.
func (v Version) Compare(other Version) int { return v.v.Compare(other.v) }

// Short returns "major.minor", the form used by release directory names.
func (v Version) Short() string {
	return strings.TrimPrefix(semver.MajorMinor(v.semver()), "v")
}

// Underscored returns the release segments joined by underscores (1_80_0).
func (v Version) Underscored() string {
	return v.join("_")
}

// semver maps the first three release segments onto a semantic version.
func (v Version) semver() string {
	n := min(len(v.release), 3)
	return "v" + join(v.release[:n], ".")
}

func (v Version) join(sep string) string {
	return join(v.release, sep)
}

func join(segments []uint64, sep string) string {
	parts := make([]string, len(segments))
	for i, n := range segments {
		parts[i] = strconv.FormatUint(n, 10)
	}
	return strings.Join(parts, sep)
}

// String returns the normalized form, e.g. "1.0rc1.post2.dev3+ubuntu.1".
func (v Version) String() string {
	local := v.v.Local()
	if local == "" {
		return v.v.String()
	}
	return v.v.Public() + "+" + strings.NewReplacer("-", ".", "_", ".").Replace(local)
}
