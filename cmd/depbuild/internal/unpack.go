package internal

import (
	"fmt"

	"github.com/goplus/depbuild/internal/timelog"
	"github.com/goplus/depbuild/pkgs/archive"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var unpackDelete bool

var unpackCmd = &cobra.Command{
	Use:   "unpack <archive>",
	Short: "Unpack an archive with a single top-level directory",
	Long: `Unpack extracts a tar archive (plain, gzip, xz, bzip2 or zstd) into the
work directory and prints the path of its top-level directory. Archives
with more or less than one top-level directory are rejected untouched.`,
	Args: cobra.ExactArgs(1),
	RunE: runUnpack,
}

func init() {
	unpackCmd.Flags().BoolVar(&unpackDelete, "delete", false, "remove the archive afterwards")
	rootCmd.AddCommand(unpackCmd)
}

func runUnpack(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	var opts []archive.Option
	if dir := viper.GetString("work-dir"); dir != "" {
		opts = append(opts, archive.WithDir(dir))
	}
	root, err := timelog.Call(timelog.New(logger, "Unpack "+args[0]), func() (string, error) {
		return archive.New(logger, opts...).Extract(args[0], unpackDelete)
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), root)
	return nil
}
