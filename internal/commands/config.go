package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ridewave/httppipe/logger"
)

// NewConfigCommand creates the config command group.
func NewConfigCommand(global *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print every effective key with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := global.loadConfig(cmd)
			if err != nil {
				return err
			}

			values := logger.NewSensitiveDataFilter(nil).FilterFields(cfg.All())
			keys := make([]string, 0, len(values))
			for key := range values {
				keys = append(keys, key)
			}
			sort.Strings(keys)

			out := cmd.OutOrStdout()
			for _, key := range keys {
				fmt.Fprintf(out, "%s = %v\n", key, values[key])
			}
			return nil
		},
	})

	return cmd
}
