package autotools

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const configureScript = `#!/bin/sh
echo "configure $*" > config.log
printf 'checking for gcc... gcc   \n\n' >> config.log
exit ${CONFIGURE_EXIT:-0}
`

const fakeMake = `#!/bin/sh
echo "$*" >> "$MAKE_LOG"
if [ "$1" = "install" ]; then
	exit ${INSTALL_EXIT:-0}
fi
exit ${BUILD_EXIT:-0}
`

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported on windows")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found in PATH")
	}
}

func observed() (*zap.SugaredLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core).Sugar(), logs
}

// sourceTree creates a source dir whose configure script has lost its x bits.
func sourceTree(t *testing.T) string {
	t.Helper()
	src := filepath.Join(t.TempDir(), "foo-1.2")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "configure"), []byte(configureScript), 0o644))
	return src
}

// installFakeMake puts a make stub first in PATH and returns its call log.
func installFakeMake(t *testing.T) string {
	t.Helper()
	bin := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(bin, "make"), []byte(fakeMake), 0o755))
	t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))
	makeLog := filepath.Join(t.TempDir(), "make.log")
	t.Setenv("MAKE_LOG", makeLog)
	return makeLog
}

func messages(logs *observer.ObservedLogs, level zapcore.Level) []string {
	var out []string
	for _, e := range logs.All() {
		if e.Level == level {
			out = append(out, e.Message)
		}
	}
	return out
}

func TestConfigure(t *testing.T) {
	requireShell(t)
	logger, logs := observed()
	src := sourceTree(t)
	buildDir := filepath.Join(t.TempDir(), "build")

	a := New(logger, src, buildDir)
	a.InstallDir("/opt/deps")
	require.NoError(t, a.Configure("--enable-cxx"))

	info, err := os.Stat(filepath.Join(src, "configure"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o500), info.Mode().Perm())

	exe := filepath.Join(src, "configure")
	assert.Equal(t, []string{exe + " --prefix=/opt/deps --enable-cxx"}, messages(logs, zapcore.InfoLevel))

	data, err := os.ReadFile(filepath.Join(buildDir, "config.log"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "configure --prefix=/opt/deps --enable-cxx\n"))
}

func TestConfigureTwice(t *testing.T) {
	requireShell(t)
	logger, _ := observed()
	src := sourceTree(t)
	buildDir := filepath.Join(t.TempDir(), "build")

	require.NoError(t, New(logger, src, buildDir).Configure("--first"))

	err := New(logger, src, buildDir).Configure("--second")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDirectoryExists))
	var dee *DirectoryExistsError
	require.True(t, errors.As(err, &dee))
	assert.Equal(t, buildDir, dee.Path)

	data, err := os.ReadFile(filepath.Join(buildDir, "config.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "--first", "first run must not be overwritten")
}

func TestConfigureFailure(t *testing.T) {
	requireShell(t)
	t.Setenv("CONFIGURE_EXIT", "3")
	logger, logs := observed()
	src := sourceTree(t)
	buildDir := filepath.Join(t.TempDir(), "build")

	a := New(logger, src, buildDir)
	err := func() (err error) {
		defer func() {
			if logErr := a.ReadConfigLog(""); logErr != nil && err == nil {
				err = logErr
			}
		}()
		return a.Configure()
	}()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfigureFailed))
	var se *StepError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 3, se.ExitCode)

	assert.Equal(t, []string{"configure", "checking for gcc... gcc", ""}, messages(logs, zapcore.DebugLevel),
		"config.log must be drained after a failed configure")
}

func TestConfigureMissingScript(t *testing.T) {
	logger, _ := observed()
	buildDir := filepath.Join(t.TempDir(), "build")
	err := New(logger, t.TempDir(), buildDir).Configure()
	require.Error(t, err)
	_, statErr := os.Stat(buildDir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestReadConfigLogMissing(t *testing.T) {
	logger, logs := observed()
	buildDir := filepath.Join(t.TempDir(), "build")

	require.NoError(t, New(logger, "", buildDir).ReadConfigLog("config.log"))
	assert.Equal(t, []string{`No such file: "` + filepath.Join(buildDir, "config.log") + `"`}, messages(logs, zapcore.DebugLevel))
}

func TestReadConfigLogLines(t *testing.T) {
	logger, logs := observed()
	buildDir := t.TempDir()
	content := "first line  \n\tindented\t\r\nlast without newline"
	require.NoError(t, os.WriteFile(filepath.Join(buildDir, "custom.log"), []byte(content), 0o644))

	require.NoError(t, New(logger, "", buildDir).ReadConfigLog("custom.log"))
	assert.Equal(t, []string{"first line", "\tindented", "last without newline"}, messages(logs, zapcore.DebugLevel))
}

func TestMake(t *testing.T) {
	requireShell(t)
	makeLog := installFakeMake(t)
	logger, logs := observed()

	a := New(logger, "", t.TempDir())
	require.NoError(t, a.Make(4))

	data, err := os.ReadFile(makeLog)
	require.NoError(t, err)
	assert.Equal(t, "-j 4\ninstall\n", string(data))
	assert.Equal(t, []string{"Running 'make -j 4 && make install'"}, messages(logs, zapcore.InfoLevel))
}

func TestMakeDefaultJobs(t *testing.T) {
	requireShell(t)
	makeLog := installFakeMake(t)
	logger, _ := observed()

	require.NoError(t, New(logger, "", t.TempDir()).Make(0))

	data, err := os.ReadFile(makeLog)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "-j "+strconv.Itoa(runtime.NumCPU())+"\n"))
}

func TestMakeBuildFailureSkipsInstall(t *testing.T) {
	requireShell(t)
	makeLog := installFakeMake(t)
	t.Setenv("BUILD_EXIT", "1")
	logger, _ := observed()

	err := New(logger, "", t.TempDir()).Make(2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBuildFailed))
	assert.False(t, errors.Is(err, ErrInstallFailed))

	var se *StepError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 1, se.ExitCode)

	data, err := os.ReadFile(makeLog)
	require.NoError(t, err)
	assert.Equal(t, "-j 2\n", string(data), "install must not run after a failed build")
}

func TestMakeInstallFailure(t *testing.T) {
	requireShell(t)
	installFakeMake(t)
	t.Setenv("INSTALL_EXIT", "2")
	logger, _ := observed()

	err := New(logger, "", t.TempDir()).Make(1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInstallFailed))
	var se *StepError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 2, se.ExitCode)
}

func TestUseAndEnv(t *testing.T) {
	requireShell(t)
	prefix := t.TempDir()
	for _, d := range []string{"include", "lib/pkgconfig"} {
		require.NoError(t, os.MkdirAll(filepath.Join(prefix, d), 0o755))
	}
	t.Setenv("PKG_CONFIG_PATH", "")
	t.Setenv("CPPFLAGS", "-DNDEBUG")
	t.Setenv("LDFLAGS", "")

	logger, _ := observed()
	buildDir := t.TempDir()
	a := New(logger, "", buildDir)
	a.Use(prefix)
	a.Env("CUSTOM", "VAL")

	assert.Equal(t, filepath.Join(prefix, "lib", "pkgconfig"), a.env["PKG_CONFIG_PATH"])
	assert.Equal(t, "-DNDEBUG -I"+filepath.Join(prefix, "include"), a.env["CPPFLAGS"])
	assert.Equal(t, "-L"+filepath.Join(prefix, "lib"), a.env["LDFLAGS"])

	bin := t.TempDir()
	script := "#!/bin/sh\necho \"$CUSTOM $CPPFLAGS\" > env.out\n"
	require.NoError(t, os.WriteFile(filepath.Join(bin, "make"), []byte(script), 0o755))
	t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))

	require.NoError(t, a.Build())
	data, err := os.ReadFile(filepath.Join(buildDir, "env.out"))
	require.NoError(t, err)
	assert.Equal(t, "VAL -DNDEBUG -I"+filepath.Join(prefix, "include")+"\n", string(data))
}

func TestOutputDirPrefersInstall(t *testing.T) {
	a := New(zap.NewNop().Sugar(), "", "")
	assert.Equal(t, DefaultBuildDir, a.OutputDir())
	assert.Equal(t, DefaultBuildDir, a.BuildDir())
	a.InstallDir("custom-install")
	assert.Equal(t, "custom-install", a.OutputDir())
}

func TestMergeEnv(t *testing.T) {
	got := mergeEnv([]string{"B=1", "A=2", "BROKEN"}, map[string]string{"A": "3", "C": "4"})
	assert.Equal(t, []string{"A=3", "B=1", "C=4"}, got)
}

func TestConfigureBuildInstallE2E(t *testing.T) {
	requireShell(t)
	if _, err := exec.LookPath("make"); err != nil {
		t.Skip("make not found in PATH")
	}

	src := filepath.Join(t.TempDir(), "hello-1.0")
	require.NoError(t, os.MkdirAll(src, 0o755))
	configure := `#!/bin/sh
prefix=/usr/local
for arg in "$@"; do
	case "$arg" in
	--prefix=*) prefix="${arg#--prefix=}" ;;
	esac
done
echo "PREFIX=$prefix" > config.log
printf 'all:\n\techo built > hello.txt\n\ninstall:\n\tmkdir -p %s/share\n\tcp hello.txt %s/share/hello.txt\n' "$prefix" "$prefix" > Makefile
`
	require.NoError(t, os.WriteFile(filepath.Join(src, "configure"), []byte(configure), 0o644))

	installDir := filepath.Join(t.TempDir(), "install")
	buildDir := filepath.Join(t.TempDir(), "build")
	logger, logs := observed()

	a := New(logger, src, buildDir)
	a.InstallDir(installDir)
	require.NoError(t, a.Configure())
	require.NoError(t, a.ReadConfigLog(DefaultConfigLog))
	require.NoError(t, a.Make(2))

	assert.Contains(t, messages(logs, zapcore.DebugLevel), "PREFIX="+installDir)
	data, err := os.ReadFile(filepath.Join(installDir, "share", "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "built\n", string(data))
}
