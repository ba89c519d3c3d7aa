package internal

import (
	"github.com/goplus/depbuild/internal/timelog"
	"github.com/goplus/depbuild/pkgs/fetch"
	"github.com/spf13/cobra"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <url> <dest>",
	Short: "Download a file",
	Long:  `Fetch downloads url to dest. dest is only replaced once the whole body was received.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	url, dest := args[0], args[1]
	return timelog.New(logger, "Fetch "+dest).Run(func() error {
		return fetch.New(logger).Fetch(cmd.Context(), url, dest)
	})
}
