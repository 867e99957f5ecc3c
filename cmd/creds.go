package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var credsFormat string

// processCredentials is the document expected from an AWS credential_process.
type processCredentials struct {
	Version         int    `json:"Version"`
	AccessKeyID     string `json:"AccessKeyId"`
	SecretAccessKey string `json:"SecretAccessKey"`
	SessionToken    string `json:"SessionToken"`
	Expiration      string `json:"Expiration"`
}

type credentialsOutput struct {
	Profile         string `json:"profile"`
	AccountID       string `json:"accountId"`
	RoleName        string `json:"roleName"`
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
	SessionToken    string `json:"sessionToken"`
	Expiration      string `json:"expiration"`
}

var credsCmd = &cobra.Command{
	Use:   "creds",
	Short: "Print role credentials for a profile",
	Long: `Print role credentials for a profile. The default 'process' format can be used
directly as a credential_process:

  [profile dev-cli]
  credential_process = ssoctl creds --profile dev`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := newCredentialCache(cmd.Context())
		if err != nil {
			return err
		}
		creds, err := fetchCredentials(cmd.Context(), cache)
		if err != nil {
			return err
		}

		var out any
		switch credsFormat {
		case "process":
			out = processCredentials{
				Version:         1,
				AccessKeyID:     creds.AccessKeyID,
				SecretAccessKey: creds.SecretAccessKey,
				SessionToken:    creds.SessionToken,
				Expiration:      creds.Expires.UTC().Format(time.RFC3339),
			}
		case "json":
			p := cache.Profile()
			out = credentialsOutput{
				Profile:         p.Name,
				AccountID:       p.AccountID,
				RoleName:        p.RoleName,
				AccessKeyID:     creds.AccessKeyID,
				SecretAccessKey: creds.SecretAccessKey,
				SessionToken:    creds.SessionToken,
				Expiration:      creds.Expires.UTC().Format(time.RFC3339),
			}
		default:
			return fmt.Errorf("unknown format %q (want process or json)", credsFormat)
		}

		b, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(b))
		return nil
	},
}

func init() {
	credsCmd.Flags().StringVarP(&credsFormat, "format", "f", "process", "Output format: process or json")
	rootCmd.AddCommand(credsCmd)
}
