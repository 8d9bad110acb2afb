package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewPresetsCommand creates the presets command.
func NewPresetsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List the compiled coordinate presets",
		Long: `List every compiled coordinate preset as kind/name.

Views and navigations listed here are accepted by the --view and
--navigation flags of the graph and describe commands.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			names := s.engine.Presets().Names()
			return newPrinter(rootOpts, cmd).Print(names, func(w io.Writer) {
				for _, n := range names {
					fmt.Fprintln(w, n)
				}
			})
		},
	}
}
