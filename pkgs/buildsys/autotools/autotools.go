// Package autotools drives the classic configure / make / make install
// sequence of a source tree in a separate build directory.
package autotools

import (
	"bufio"
	"errors"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/goplus/depbuild/pkgs/buildsys"
	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	// DefaultBuildDir is used when New is given an empty build directory.
	DefaultBuildDir = "build"

	// DefaultConfigLog is the log file configure leaves in the build directory.
	DefaultConfigLog = "config.log"
)

// AutoTools wraps common Autotools build steps with chainable configuration.
type AutoTools struct {
	SourceDir  string
	buildDir   string
	installDir string
	env        map[string]string

	logger *zap.SugaredLogger
	stdout io.Writer
	stderr io.Writer
}

var _ buildsys.BuildSystem = (*AutoTools)(nil)

// New creates an AutoTools helper for sourceDir. The build directory must not
// exist yet: Configure creates it.
func New(logger *zap.SugaredLogger, sourceDir, buildDir string) *AutoTools {
	if buildDir == "" {
		buildDir = DefaultBuildDir
	}
	return &AutoTools{
		SourceDir: sourceDir,
		buildDir:  buildDir,
		env:       map[string]string{},
		logger:    logger,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
	}
}

func (a *AutoTools) Source(dir string) {
	a.SourceDir = dir
}

// InstallDir sets the --prefix passed to configure.
func (a *AutoTools) InstallDir(dir string) {
	a.installDir = dir
}

// BuildDir returns the directory configure and make run in.
func (a *AutoTools) BuildDir() string {
	return a.buildDir
}

// Env sets key=value for every command spawned later.
func (a *AutoTools) Env(key, value string) {
	if a.env == nil {
		a.env = map[string]string{}
	}
	a.env[key] = value
}

// SetStdout redirects the output of spawned commands.
func (a *AutoTools) SetStdout(w io.Writer) { a.stdout = w }

// SetStderr redirects the error output of spawned commands.
func (a *AutoTools) SetStderr(w io.Writer) { a.stderr = w }

// Use exposes a previously installed prefix to configure and the compiler.
func (a *AutoTools) Use(prefix string) {
	includeDir := filepath.Join(prefix, "include")
	libDir := filepath.Join(prefix, "lib")
	pkgconfigDir := filepath.Join(libDir, "pkgconfig")

	if isDir(pkgconfigDir) {
		a.prependEnv("PKG_CONFIG_PATH", pkgconfigDir)
	}
	if isDir(includeDir) {
		a.appendFlag("CPPFLAGS", "-I"+includeDir)
	}
	if isDir(libDir) {
		a.appendFlag("LDFLAGS", "-L"+libDir)
	}
}

// Configure runs <SourceDir>/configure inside a freshly created build
// directory. --prefix is prepended when an install dir is set.
func (a *AutoTools) Configure(args ...string) error {
	exe, err := filepath.Abs(filepath.Join(a.SourceDir, "configure"))
	if err != nil {
		return err
	}
	// Archives do not reliably preserve the execute bit.
	if err := os.Chmod(exe, 0o500); err != nil {
		return pkgerrors.Wrap(err, "configure")
	}
	if err := checkExecutable(exe); err != nil {
		return pkgerrors.Wrapf(err, "configure script %s is not executable", exe)
	}

	if err := os.Mkdir(a.buildDir, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return &DirectoryExistsError{Path: a.buildDir}
		}
		return err
	}

	configArgs := []string{}
	if a.installDir != "" {
		configArgs = append(configArgs, "--prefix="+a.installDir)
	}
	configArgs = append(configArgs, args...)

	a.logger.Info(strings.Join(append([]string{exe}, configArgs...), " "))
	return a.run(ErrConfigureFailed, exe, configArgs)
}

// ReadConfigLog copies the configure log of the build directory into the
// logger at debug level, one record per line. A missing log is not an error.
// Call it deferred so the log is captured when Configure failed.
func (a *AutoTools) ReadConfigLog(logName string) error {
	if logName == "" {
		logName = DefaultConfigLog
	}
	logFile := filepath.Join(a.buildDir, logName)
	f, err := os.Open(logFile)
	if errors.Is(err, fs.ErrNotExist) {
		a.logger.Debugf("No such file: %q", logFile)
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			a.logger.Debug(strings.TrimRightFunc(line, unicode.IsSpace))
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Make runs "make -j jobs" followed by "make install". Install is only
// attempted when the build succeeded. jobs <= 0 uses every available CPU.
func (a *AutoTools) Make(jobs int) error {
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	a.logger.Infof("Running 'make -j %d && make install'", jobs)
	if err := a.Build("-j", strconv.Itoa(jobs)); err != nil {
		return err
	}
	return a.Install()
}

// Build runs make with optional extra arguments in the build directory.
func (a *AutoTools) Build(args ...string) error {
	return a.run(ErrBuildFailed, "make", args)
}

// Install runs make install with optional extra arguments in the build directory.
func (a *AutoTools) Install(args ...string) error {
	return a.run(ErrInstallFailed, "make", append([]string{"install"}, args...))
}

// OutputDir returns the install dir if set, otherwise the build dir.
func (a *AutoTools) OutputDir() string {
	if a.installDir != "" {
		return a.installDir
	}
	return a.buildDir
}

func (a *AutoTools) run(kind error, bin string, args []string) error {
	cmd := exec.Command(bin, args...)
	cmd.Dir = a.buildDir
	cmd.Stdout = a.stdout
	cmd.Stderr = a.stderr
	if len(a.env) > 0 {
		cmd.Env = mergeEnv(os.Environ(), a.env)
	}
	err := cmd.Run()
	if err == nil {
		return nil
	}
	stepErr := &StepError{Kind: kind, Cmd: strings.Join(cmd.Args, " "), ExitCode: -1, Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		stepErr.ExitCode = exitErr.ExitCode()
	}
	return stepErr
}

func mergeEnv(base []string, override map[string]string) []string {
	envMap := make(map[string]string, len(base))
	for _, kv := range base {
		if k, v, ok := strings.Cut(kv, "="); ok {
			envMap[k] = v
		}
	}
	for k, v := range override {
		envMap[k] = v
	}
	keys := make([]string, 0, len(envMap))
	for k := range envMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+envMap[k])
	}
	return out
}

// current returns the value key will have in spawned commands.
func (a *AutoTools) current(key string) string {
	if v, ok := a.env[key]; ok {
		return v
	}
	return os.Getenv(key)
}

// prependEnv prepends a value to a PATH-style variable.
func (a *AutoTools) prependEnv(key, value string) {
	if cur := a.current(key); cur != "" {
		value += string(os.PathListSeparator) + cur
	}
	a.Env(key, value)
}

// appendFlag appends a space-separated flag.
func (a *AutoTools) appendFlag(key, flag string) {
	if cur := a.current(key); cur != "" {
		flag = strings.TrimSpace(cur + " " + flag)
	}
	a.Env(key, flag)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
