package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manages the icon cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "purge <url>",
		Short: "Removes the cached icon for a URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := appInstance.Purge(cmd.Context(), args[0]); err != nil {
				return err
			}
			appInstance.Logger().Info("purged cached icon", zap.String("url", args[0]))
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "purged %s\n", args[0])
			return err
		},
	})
	return cmd
}
