package cmd

import (
	"fmt"
	"os"

	"github.com/chukul/ssoctl/internal"
	"github.com/spf13/cobra"
)

var (
	cfg         internal.Config
	profileFlag string
)

var rootCmd = &cobra.Command{
	Use:   "ssoctl",
	Short: "ssoctl turns your AWS SSO session into short-lived role credentials",
	Long: `ssoctl reads the SSO token cached by 'aws sso login', exchanges it for role
credentials of the selected profile and hands them to your shell or to the AWS SDKs.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = internal.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}
		return internal.ConfigureLogging(cfg.LogLevel, os.Stderr)
	},
}

// Execute runs the CLI
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		if hint := internal.Remediation(err); hint != "" {
			fmt.Fprintf(os.Stderr, "💡 %s\n", hint)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&profileFlag, "profile", "p", "", "AWS profile to use (defaults to AWS_PROFILE, then 'default')")
}
