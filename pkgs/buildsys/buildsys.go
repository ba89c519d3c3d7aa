package buildsys

// BuildSystem drives a configure-then-make build of one unpacked source tree.
type BuildSystem interface {
	// Use exposes an installed prefix (include/, lib/, lib/pkgconfig/) to the build.
	Use(prefix string)

	// InstallDir sets the installation prefix.
	InstallDir(dir string)

	// Configure prepares the build directory.
	Configure(args ...string) error

	// ReadConfigLog copies the log configure left behind to the debug log.
	// A missing log is not an error.
	ReadConfigLog(logName string) error

	// Make builds with the given parallelism and installs.
	Make(jobs int) error
}
