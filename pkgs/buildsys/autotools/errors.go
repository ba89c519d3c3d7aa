package autotools

import (
	"errors"
	"fmt"
)

var (
	// ErrDirectoryExists matches every *DirectoryExistsError.
	ErrDirectoryExists = errors.New("build directory already exists")

	ErrConfigureFailed = errors.New("configure failed")
	ErrBuildFailed     = errors.New("build failed")
	ErrInstallFailed   = errors.New("install failed")
)

// DirectoryExistsError reports a build directory left over from an earlier
// run. Configure never reuses one.
type DirectoryExistsError struct {
	Path string
}

func (e *DirectoryExistsError) Error() string {
	return fmt.Sprintf("build directory %q already exists", e.Path)
}

func (e *DirectoryExistsError) Is(target error) bool { return target == ErrDirectoryExists }

// StepError reports a configure, make or make install run that did not
// exit cleanly. Kind is one of ErrConfigureFailed, ErrBuildFailed or
// ErrInstallFailed. ExitCode is -1 when the command could not be started.
type StepError struct {
	Kind     error
	Cmd      string
	ExitCode int
	Err      error
}

func (e *StepError) Error() string {
	if e.ExitCode < 0 {
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.Cmd, e.Err)
	}
	return fmt.Sprintf("%v: %s exited with code %d", e.Kind, e.Cmd, e.ExitCode)
}

func (e *StepError) Unwrap() []error { return []error{e.Kind, e.Err} }
