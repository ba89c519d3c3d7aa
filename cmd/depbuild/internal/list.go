package internal

import (
	"fmt"
	"text/tabwriter"

	"github.com/goplus/depbuild/formula"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List builtin formulas",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tKIND\tSOURCE")
		for _, name := range formula.Names() {
			f, _ := formula.Lookup(name)
			source := f.URL
			if source == "" {
				source = "pre-staged " + f.Archive
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", name, f.Kind, source)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
