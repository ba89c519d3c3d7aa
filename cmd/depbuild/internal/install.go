package internal

import (
	"errors"
	"fmt"

	"github.com/goplus/depbuild/formula"
	"github.com/goplus/depbuild/internal/build"
	"github.com/spf13/cobra"
)

var (
	installURL     string
	installArchive string
	installHeaders string
)

var installCmd = &cobra.Command{
	Use:   "install <formula> <version> [-- configure args...]",
	Short: "Fetch, build and install a formula",
	Long: `Install fetches the sources of a formula, unpacks them and either runs
configure, make and make install or copies its headers into the prefix.

With --url or --archive, <formula> names a custom autotools package instead
of a builtin one; add --headers to install a header directory only.
URL and archive templates may use {version}, {version_short} and
{version_underscore}.`,
	Example: `  depbuild install hdf5 1.12.1 --prefix /opt/deps
  depbuild install zlib 1.3.1 --url https://zlib.net/zlib-{version}.tar.gz -- --static`,
	Args: cobra.MinimumNArgs(2),
	RunE: runInstall,
}

func init() {
	installCmd.Flags().StringVar(&installURL, "url", "", "download URL template of a custom formula")
	installCmd.Flags().StringVar(&installArchive, "archive", "", "pre-staged archive name template of a custom formula")
	installCmd.Flags().StringVar(&installHeaders, "headers", "", "header directory of a custom header-only formula")
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	f, err := resolveFormula(args[0], installURL, installArchive, installHeaders)
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	opts, err := builderOptions(cmd, logger, f.URL == "")
	if err != nil {
		return err
	}
	if err := build.NewBuilder(opts).Build(cmd.Context(), f, args[1], args[2:]...); err != nil {
		return fmt.Errorf("failed to install %s %s: %w", f.Name, args[1], err)
	}
	return nil
}

// resolveFormula returns the builtin formula called name, or a custom one
// when url or archive is set.
func resolveFormula(name, url, archive, headers string) (*formula.Formula, error) {
	if url == "" && archive == "" {
		if headers != "" {
			return nil, errors.New("--headers needs --url or --archive")
		}
		f, ok := formula.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown formula %q, run 'depbuild list' to see the builtin ones", name)
		}
		return f, nil
	}
	f := &formula.Formula{Name: name, URL: url, Archive: archive}
	if headers != "" {
		f.Kind = formula.Headers
		f.HeaderDir = headers
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}
