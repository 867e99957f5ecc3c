package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/chukul/ssoctl/internal"
	"github.com/spf13/cobra"
)

var statusJSON bool

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	activeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	expiredStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

type statusOutput struct {
	Profile        string `json:"profile"`
	AccountID      string `json:"accountId"`
	RoleName       string `json:"roleName"`
	Region         string `json:"region"`
	State          string `json:"state"`
	Expiration     string `json:"expiration,omitempty"`
	Remaining      int    `json:"remaining"`
	TokenExpiresAt string `json:"tokenExpiresAt,omitempty"`
	Error          string `json:"error,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Fetch credentials for a profile and show their status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := newCredentialCache(cmd.Context())
		if err != nil {
			return err
		}
		creds, fetchErr := fetchCredentials(cmd.Context(), cache)

		now := time.Now()
		p := cache.Profile()
		st := statusOutput{
			Profile:   p.Name,
			AccountID: p.AccountID,
			RoleName:  p.RoleName,
			Region:    p.Region,
			State:     cache.State().String(),
		}
		if fetchErr == nil {
			st.Expiration = creds.Expires.UTC().Format(time.RFC3339)
			st.Remaining = int(creds.Expires.Sub(now).Seconds())
		} else {
			st.Error = fetchErr.Error()
		}
		if t := cache.TokenExpiresAt(); !t.IsZero() {
			st.TokenExpiresAt = t.UTC().Format(time.RFC3339)
		}

		out := cmd.OutOrStdout()
		if statusJSON {
			if err := writeStatusJSON(out, st); err != nil {
				return err
			}
			return fetchErr
		}

		fmt.Fprintf(out, "%-22s %-14s %-24s %-12s %-10s\n",
			headerStyle.Render("PROFILE"), headerStyle.Render("ACCOUNT"), headerStyle.Render("ROLE"),
			headerStyle.Render("REMAINING"), headerStyle.Render("STATE"))
		fmt.Fprintln(out, strings.Repeat("-", 86))

		remaining := "-"
		stateStyle := failedStyle
		if fetchErr == nil {
			remaining = internal.FormatRemaining(creds.Expires, now)
			stateStyle = activeStyle
		} else if internal.IsSessionError(fetchErr) {
			stateStyle = expiredStyle
		}
		fmt.Fprintf(out, "%-22s %-14s %-24s %-12s %-10s\n",
			truncateText(p.Name, 22), p.AccountID, truncateText(p.RoleName, 24), remaining, stateStyle.Render(st.State))

		if fetchErr == nil {
			fmt.Fprintf(out, "\nCredentials expire: %s\n", internal.FormatLocal(creds.Expires))
		}
		if t := cache.TokenExpiresAt(); !t.IsZero() {
			fmt.Fprintf(out, "SSO token expires:  %s (%s)\n", internal.FormatLocal(t), internal.FormatRemaining(t, now))
		}
		return fetchErr
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output results in JSON format for automation")
	rootCmd.AddCommand(statusCmd)
}

func writeStatusJSON(w io.Writer, st statusOutput) error {
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

// truncateText shortens text to max runes, ending in "..." when there is room for it.
func truncateText(text string, max int) string {
	r := []rune(text)
	switch {
	case len(r) <= max:
		return text
	case max <= 0:
		return ""
	case max <= 3:
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
