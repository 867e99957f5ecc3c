package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export role credentials as environment variables",
	Example: `  eval $(ssoctl export --profile dev)`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := newCredentialCache(cmd.Context())
		if err != nil {
			return err
		}
		s, err := fetchCredentials(cmd.Context(), cache)
		if err != nil {
			return err
		}

		// Output shell-compatible export commands
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "export AWS_ACCESS_KEY_ID=%s\n", s.AccessKeyID)
		fmt.Fprintf(out, "export AWS_SECRET_ACCESS_KEY=%s\n", s.SecretAccessKey)
		fmt.Fprintf(out, "export AWS_SESSION_TOKEN=%s\n", s.SessionToken)
		fmt.Fprintf(out, "export AWS_CREDENTIAL_EXPIRATION=%s\n", s.Expires.UTC().Format(time.RFC3339))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
}
