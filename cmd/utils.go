package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/chukul/ssoctl/internal"
	"github.com/chukul/ssoctl/internal/ui"
	"golang.org/x/term"
)

func interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stderr.Fd()))
}

// selectedProfile picks the profile from the flag, the environment, or a prompt.
func selectedProfile() string {
	if profileFlag != "" {
		return profileFlag
	}
	if cfg.Profile == "" && cfg.DefaultProfile == "" && interactive() {
		if name, err := ui.GetInput("AWS profile", cfg.ProfileName()); err == nil {
			return name
		}
	}
	return cfg.ProfileName()
}

func newCredentialCache(ctx context.Context) (*internal.CredentialCache, error) {
	profile, err := internal.ResolveProfile(ctx, selectedProfile(), cfg.ConfigFile)
	if err != nil {
		return nil, err
	}
	return internal.NewCredentialCache(profile,
		internal.WithTokenStore(internal.NewTokenStore(cfg.ProfileDir)),
		internal.WithExchangerFactory(internal.DefaultExchangerFactory(cfg.ExchangeOptions()...)),
	), nil
}

// spin shows a spinner while task runs, when there is a terminal to draw on.
func spin[T any](text string, task func() (T, error)) (T, error) {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return task()
	}
	return ui.Spin(text, task)
}

func fetchCredentials(ctx context.Context, cache *internal.CredentialCache) (internal.Credentials, error) {
	return spin(fmt.Sprintf("Fetching credentials for %s...", cache.Profile().Name), func() (internal.Credentials, error) {
		return cache.GetCredentials(ctx)
	})
}
