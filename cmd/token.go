package cmd

import (
	"fmt"
	"time"

	"github.com/chukul/ssoctl/internal"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Show the cached SSO token used by a profile",
	Long:  `Show where the SSO token for a profile is cached and when it expires. The token itself is never printed.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := internal.ResolveProfile(cmd.Context(), selectedProfile(), cfg.ConfigFile)
		if err != nil {
			return err
		}

		store := internal.NewTokenStore(cfg.ProfileDir)
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Profile:    %s\n", profile.Name)
		fmt.Fprintf(out, "Start URL:  %s\n", profile.StartURL)
		if profile.SessionName != "" {
			fmt.Fprintf(out, "Session:    %s\n", profile.SessionName)
		}
		fmt.Fprintf(out, "Cache file: %s\n", store.Path(profile.CacheKey()))

		tok, err := store.Load(profile.CacheKey())
		if err != nil {
			return err
		}

		now := time.Now()
		fmt.Fprintf(out, "Expires:    %s (%s)\n", internal.FormatLocal(tok.ExpiresAt), internal.FormatRemaining(tok.ExpiresAt, now))
		if tok.Expired(now) {
			return &internal.TokenError{Kind: internal.ErrTokenExpired, Path: store.Path(profile.CacheKey()), ExpiresAt: tok.ExpiresAt}
		}
		fmt.Fprintln(out, "✅ SSO session is active")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}
