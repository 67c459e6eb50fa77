package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ridewave/httppipe/auth"
	"github.com/ridewave/httppipe/logger"
)

// TokensOptions holds options for the tokens commands
type TokensOptions struct {
	AccessToken  string
	RefreshToken string
	Reveal       bool
}

// NewTokensCommand creates the tokens command group.
func NewTokensCommand(global *GlobalOptions) *cobra.Command {
	opts := &TokensOptions{}

	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Manage the stored bearer tokens",
		Long: `Manage the token pair the auth stage attaches and refreshes. Refreshed
tokens are written back to the same file.`,
	}

	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Store an access and refresh token",
		Example: `  pipectl tokens set --access eyJhbGci... --refresh 8f2c...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := global.tokenStore()
			if err != nil {
				return err
			}
			if opts.AccessToken == "" && opts.RefreshToken == "" {
				return fmt.Errorf("at least one of --access or --refresh is required")
			}
			pair := auth.TokenPair{AccessToken: opts.AccessToken, RefreshToken: opts.RefreshToken}
			if err := store.SaveTokens(cmd.Context(), pair); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tokens saved to %s\n", store.Path())
			return nil
		},
	}
	setCmd.Flags().StringVar(&opts.AccessToken, "access", "", "Access token")
	setCmd.Flags().StringVar(&opts.RefreshToken, "refresh", "", "Refresh token")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the stored tokens, masked unless --reveal is given",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := global.tokenStore()
			if err != nil {
				return err
			}
			access, err := store.AccessToken(cmd.Context())
			if err != nil {
				return err
			}
			refresh, err := store.RefreshToken(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "file:          %s\n", store.Path())
			fmt.Fprintf(out, "access_token:  %s\n", displayToken("access_token", access, opts.Reveal))
			fmt.Fprintf(out, "refresh_token: %s\n", displayToken("refresh_token", refresh, opts.Reveal))
			return nil
		},
	}
	showCmd.Flags().BoolVar(&opts.Reveal, "reveal", false, "Print tokens unmasked")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the stored tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := global.tokenStore()
			if err != nil {
				return err
			}
			if err := store.ClearTokens(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Tokens cleared")
			return nil
		},
	}

	cmd.AddCommand(setCmd, showCmd, clearCmd)
	return cmd
}

func displayToken(key, value string, reveal bool) string {
	switch {
	case value == "":
		return "(none)"
	case reveal:
		return value
	default:
		return logger.NewSensitiveDataFilter(nil).FilterString(key, value)
	}
}
