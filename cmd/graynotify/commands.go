package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-notify/internal/auth"
	"github.com/nerrad567/gray-logic-notify/internal/infrastructure/config"
)

// newRootCmd builds the graynotify command tree. Running the root command
// with no subcommand starts the service.
func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "graynotify",
		Short:         "Notification source registry for a Linux audio host",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), resolveConfigPath(configPath))
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (default $GRAYNOTIFY_CONFIG or "+defaultConfigPath+")")

	root.AddCommand(newTokenCmd(&configPath), newVersionCmd())
	return root
}

// newTokenCmd mints a bearer token signed with the configured secret.
func newTokenCmd(configPath *string) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(resolveConfigPath(*configPath))
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			token, err := auth.GenerateToken(cfg.Security.JWT.Secret, cfg.Security.JWT.Issuer, subject, ttl)
			if err != nil {
				return fmt.Errorf("minting token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVarP(&subject, "subject", "s", "", "who the token identifies, recorded in the audit trail")
	cmd.Flags().DurationVar(&ttl, "ttl", auth.DefaultTTL, "token lifetime")
	cmd.MarkFlagRequired("subject") //nolint:errcheck // flag is defined above
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "graynotify %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

// resolveConfigPath prefers an explicit --config over getConfigPath.
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return getConfigPath()
}
