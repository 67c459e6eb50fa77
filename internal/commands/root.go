// Package commands implements the pipectl command tree.
package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ridewave/httppipe/auth"
	"github.com/ridewave/httppipe/config"
	"github.com/ridewave/httppipe/httpclient"
	"github.com/ridewave/httppipe/logger"
)

// GlobalOptions holds the persistent flags shared by every command.
type GlobalOptions struct {
	ConfigFile string
	BaseURL    string
	LogLevel   string
	TokenFile  string
	OTelStdout bool
}

// NewRootCommand assembles the pipectl command tree.
func NewRootCommand(version string) *cobra.Command {
	opts := &GlobalOptions{}

	rootCmd := &cobra.Command{
		Use:   "pipectl",
		Short: "Send requests through the httppipe resilience pipeline",
		Long: `pipectl issues REST calls through the same pipeline an embedding service uses:
throttling, the connectivity gate, bearer token refresh, the response cache
and retries with backoff.

Configuration comes from httppipe.yaml, HTTPPIPE_ environment variables and
the flags below, in increasing priority.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.ConfigFile, "config", "c", "", "Configuration file, - reads YAML from stdin (default httppipe.yaml when present)")
	flags.StringVar(&opts.BaseURL, "base-url", "", "Base URL requests are resolved against")
	flags.StringVar(&opts.LogLevel, "log-level", "", "Log level: debug, info, warn or error")
	flags.StringVar(&opts.TokenFile, "token-file", "", "Token file (default <user config dir>/httppipe/tokens.json)")
	flags.BoolVar(&opts.OTelStdout, "otel-stdout", false, "Print pipeline spans and metrics to stderr")

	rootCmd.AddCommand(
		NewRequestCommand(opts, "GET"),
		NewRequestCommand(opts, "POST"),
		NewRequestCommand(opts, "PUT"),
		NewRequestCommand(opts, "PATCH"),
		NewRequestCommand(opts, "DELETE"),
		NewCacheCommand(opts),
		NewTokensCommand(opts),
		NewConfigCommand(opts),
		NewVersionCommand(version),
	)

	return rootCmd
}

func (o *GlobalOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	overrides := map[string]any{}
	if o.BaseURL != "" {
		overrides["client.base_url"] = o.BaseURL
	}
	if o.LogLevel != "" {
		overrides["log.level"] = o.LogLevel
	}

	source := config.WithFile(o.ConfigFile)
	if o.ConfigFile == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration from stdin: %w", err)
		}
		source = config.WithBytes(data)
	}
	return config.Load(source, config.WithOverrides(overrides))
}

// newLogger writes to stderr so command output on stdout stays pipeable.
func (o *GlobalOptions) newLogger(cmd *cobra.Command, cfg *config.Config) logger.Logger {
	return logger.NewWithOptions(logger.Options{
		Level:  cfg.Log.Level,
		Pretty: cfg.Log.Pretty,
		Output: cmd.ErrOrStderr(),
	})
}

func (o *GlobalOptions) tokenStore() (*auth.FileStore, error) {
	if o.TokenFile != "" {
		return auth.NewFileStore(o.TokenFile), nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("cannot locate token file, pass --token-file: %w", err)
	}
	return auth.NewFileStore(filepath.Join(dir, "httppipe", "tokens.json")), nil
}

// newClient builds a pipeline client from the loaded configuration. Tokens
// are persisted in the token file between invocations.
func (o *GlobalOptions) newClient(cmd *cobra.Command) (httpclient.Client, *config.Config, error) {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	log := o.newLogger(cmd, cfg)

	builder := httpclient.NewBuilder(log)
	if o.OTelStdout {
		shutdown, err := startTelemetry(cmd.ErrOrStderr())
		if err != nil {
			return nil, nil, err
		}
		builder.WithCloser(shutdown)
	}
	if cfg.Auth.Enabled {
		store, err := o.tokenStore()
		if err != nil {
			return nil, nil, err
		}
		builder.WithAuth(store, httpclient.AuthOptions{})
		builder.WithSessionExpired(func(err error) {
			log.Warn().Err(err).Str("token_file", store.Path()).Msg("Session expired, stored tokens cleared")
		})
	}

	client, err := builder.FromConfig(cfg).Build()
	if err != nil {
		return nil, nil, err
	}
	return client, cfg, nil
}
