package cmd

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/chukul/ssoctl/internal"
	"github.com/spf13/cobra"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Call sts:GetCallerIdentity with the profile's role credentials",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cache, err := newCredentialCache(ctx)
		if err != nil {
			return err
		}
		creds, err := fetchCredentials(ctx, cache)
		if err != nil {
			return err
		}

		awsCfg, err := config.LoadDefaultConfig(ctx,
			config.WithRegion(cache.Profile().Region),
			config.WithCredentialsProvider(aws.NewCredentialsCache(cache)),
		)
		if err != nil {
			return fmt.Errorf("failed to load aws config: %w", err)
		}

		stsClient := sts.NewFromConfig(awsCfg)
		identity, err := spin("Calling sts:GetCallerIdentity...", func() (*sts.GetCallerIdentityOutput, error) {
			return stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
		})
		if err != nil {
			return fmt.Errorf("failed to get caller identity: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Account: %s\n", aws.ToString(identity.Account))
		fmt.Fprintf(out, "ARN:     %s\n", aws.ToString(identity.Arn))
		fmt.Fprintf(out, "UserId:  %s\n", aws.ToString(identity.UserId))
		fmt.Fprintf(out, "Expires: %s\n", internal.FormatLocal(creds.Expires))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}
