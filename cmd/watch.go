package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chukul/ssoctl/internal"
	"github.com/spf13/cobra"
)

var (
	watchInterval time.Duration
	watchLogFile  string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep asking for credentials and log every refresh",
	Long: `Watch holds one credential cache for the profile and asks it for credentials
at every interval. Refreshes only happen when a request finds the credentials
expired, so the log shows exactly when the SSO exchange runs.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cache, err := newCredentialCache(ctx)
		if err != nil {
			return err
		}

		var logWriter io.Writer = cmd.OutOrStdout()
		if watchLogFile != "" {
			f, err := os.OpenFile(watchLogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
			if err != nil {
				return fmt.Errorf("failed to open log file: %w", err)
			}
			defer f.Close()
			logWriter = f
		}

		fmt.Fprintf(logWriter, "[%s] Watching profile '%s' every %s\n", internal.FormatLogTime(time.Now()), cache.Profile().Name, watchInterval)

		ticker := time.NewTicker(watchInterval)
		defer ticker.Stop()

		var lastKey string
		for {
			lastKey = runWatchCheck(ctx, cache, logWriter, lastKey)

			select {
			case <-ctx.Done():
				fmt.Fprintf(logWriter, "[%s] Stopped\n", internal.FormatLogTime(time.Now()))
				return nil
			case <-ticker.C:
			}
		}
	},
}

// runWatchCheck asks the cache for credentials and reports when they changed.
func runWatchCheck(ctx context.Context, cache *internal.CredentialCache, w io.Writer, lastKey string) string {
	now := time.Now()
	creds, err := cache.GetCredentials(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return lastKey
		}
		fmt.Fprintf(w, "[%s] Failed to get credentials: %v\n", internal.FormatLogTime(now), err)
		if hint := internal.Remediation(err); hint != "" {
			fmt.Fprintf(w, "[%s] %s\n", internal.FormatLogTime(now), hint)
		}
		return lastKey
	}

	if creds.AccessKeyID != lastKey {
		fmt.Fprintf(w, "[%s] Refreshed credentials %s (expire %s)\n",
			internal.FormatLogTime(now), creds.AccessKeyID, internal.FormatLocal(creds.Expires))
	} else {
		fmt.Fprintf(w, "[%s] Credentials valid, %s\n", internal.FormatLogTime(now), internal.FormatRemaining(creds.Expires, now))
	}
	return creds.AccessKeyID
}

func init() {
	watchCmd.Flags().DurationVarP(&watchInterval, "interval", "i", time.Minute, "How often to ask for credentials")
	watchCmd.Flags().StringVar(&watchLogFile, "log-file", "", "Append output to this file instead of stdout")
	rootCmd.AddCommand(watchCmd)
}
