package internal

import (
	"github.com/caarlos0/env/v11"
)

// Config holds the environment driven settings of ssoctl.
type Config struct {
	Profile        string `env:"AWS_PROFILE"`
	DefaultProfile string `env:"AWS_DEFAULT_PROFILE"`
	ConfigFile     string `env:"AWS_CONFIG_FILE"`
	ProfileDir     string `env:"SSOCTL_PROFILE_DIR"`
	Endpoint       string `env:"SSOCTL_ENDPOINT"`
	LogLevel       string `env:"SSOCTL_LOG_LEVEL" envDefault:"warn"`
}

// LoadConfig reads Config from the environment.
func LoadConfig() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, err
	}
	if cfg.ProfileDir == "" {
		cfg.ProfileDir = DefaultProfileDir()
	}
	return cfg, nil
}

// ProfileName returns the profile selected by the environment, "default" if none.
func (c Config) ProfileName() string {
	switch {
	case c.Profile != "":
		return c.Profile
	case c.DefaultProfile != "":
		return c.DefaultProfile
	}
	return "default"
}

// ExchangeOptions returns the exchange client options implied by the config.
func (c Config) ExchangeOptions() []ExchangeOption {
	var opts []ExchangeOption
	if c.Endpoint != "" {
		opts = append(opts, WithEndpoint(c.Endpoint))
	}
	return opts
}
