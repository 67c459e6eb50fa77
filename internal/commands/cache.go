package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewCacheCommand creates the cache command group.
func NewCacheCommand(global *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage cached responses",
		Long: `Manage cached GET responses. Only the redis backend outlives a single
pipectl invocation; with the memory backend these commands have nothing to act on.`,
	}

	cmd.AddCommand(newCacheClearCommand(global), newCacheInvalidateCommand(global))
	return cmd
}

func newCacheClearCommand(global *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached response",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, cfg, err := global.newClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			if !cfg.Cache.Enabled {
				return fmt.Errorf("cache is disabled")
			}
			if err := client.ClearCache(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s cache\n", cfg.Cache.Backend)
			return nil
		},
	}
}

func newCacheInvalidateCommand(global *GlobalOptions) *cobra.Command {
	var query []string

	cmd := &cobra.Command{
		Use:   "invalidate PATH",
		Short: "Remove the cached GET response for PATH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseQuery(query)
			if err != nil {
				return err
			}

			client, cfg, err := global.newClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			if !cfg.Cache.Enabled {
				return fmt.Errorf("cache is disabled")
			}
			if err := client.InvalidateCache(cmd.Context(), args[0], values); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Invalidated GET %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&query, "query", "q", nil, "Query parameter as key=value (repeatable)")
	return cmd
}
