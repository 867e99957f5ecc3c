package internal

import (
	"context"
	"strings"

	"emperror.dev/errors"
	"github.com/aws/aws-sdk-go-v2/config"
)

// ResolveProfile reads the named profile from the shared config files and
// returns its SSO settings. configFile overrides ~/.aws/config when set.
func ResolveProfile(ctx context.Context, name, configFile string) (Profile, error) {
	sc, err := config.LoadSharedConfigProfile(ctx, name, func(o *config.LoadSharedConfigOptions) {
		if configFile != "" {
			o.ConfigFiles = []string{configFile}
		}
		o.CredentialsFiles = []string{}
	})
	if err != nil {
		return Profile{}, errors.WrapIff(err, "failed to load profile %q", name)
	}

	p := Profile{
		Name:        name,
		StartURL:    sc.SSOStartURL,
		SessionName: sc.SSOSessionName,
		AccountID:   sc.SSOAccountID,
		RoleName:    sc.SSORoleName,
		Region:      sc.SSORegion,
	}
	if sc.SSOSession != nil {
		if p.StartURL == "" {
			p.StartURL = sc.SSOSession.SSOStartURL
		}
		if p.Region == "" {
			p.Region = sc.SSOSession.SSORegion
		}
	}

	var missing []string
	if p.StartURL == "" {
		missing = append(missing, "sso_start_url")
	}
	if p.AccountID == "" {
		missing = append(missing, "sso_account_id")
	}
	if p.RoleName == "" {
		missing = append(missing, "sso_role_name")
	}
	if p.Region == "" {
		missing = append(missing, "sso_region")
	}
	if len(missing) > 0 {
		return Profile{}, errors.WithDetails(
			errors.WrapIff(ErrProfileNotSSO, "profile %q is missing %s", name, strings.Join(missing, ", ")),
			"profile", name,
		)
	}

	return p, nil
}
