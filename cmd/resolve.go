package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newResolveCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "resolve <url>",
		Short: "Prints the best icon for a URL as JSON",
		Long: `Discovers and validates the icons for a single page and prints the
best one, or every valid one with --all, as JSON on stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			var out any
			if all {
				out, err = appInstance.FindIcons(cmd.Context(), args[0])
			} else {
				out, err = appInstance.BestIcon(cmd.Context(), args[0])
			}
			if err != nil {
				return fmt.Errorf("resolve %s: %w", args[0], err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "print every valid icon instead of the best one")
	return cmd
}
