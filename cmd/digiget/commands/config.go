package commands

import (
	"context"
	"errors"
	"os"
	"time"

	"digiget/lib/configutil"
	"digiget/lib/platforms/digi4school"
	"digiget/lib/restyutil"
	"digiget/lib/telemetry"
)

var errMissingCredentials = errors.New("no credentials, set email and password in config.json5 or the environment")

type Config struct {
	Email             string  `json:"email"`
	Password          string  `json:"password"`
	BaseURL           string  `json:"base_url"`
	ReaderURL         string  `json:"reader_url"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	CloudflareBypass  bool    `json:"cloudflare_bypass"`
	TimeoutSeconds    int     `json:"timeout_seconds"`
	MaxRedirectHops   int     `json:"max_redirect_hops"`
	AssetConcurrency  int     `json:"asset_concurrency"`
}

func loadConfig() (Config, error) {
	var cfg Config
	var err error
	if configPath != "" {
		cfg, err = configutil.ReadConfig[Config](configPath)
	} else {
		cfg, err = configutil.ReadUserConfig[Config]("config.json5")
	}
	if err != nil {
		return cfg, err
	}

	// credentials in the environment take precedence
	if email := os.Getenv("email"); email != "" {
		cfg.Email = email
	}
	if password := os.Getenv("password"); password != "" {
		cfg.Password = password
	}
	return cfg, nil
}

func (c Config) options() (digi4school.Options, error) {
	opts := digi4school.Options{
		BaseURL:           c.BaseURL,
		ReaderURL:         c.ReaderURL,
		Email:             c.Email,
		Password:          c.Password,
		RequestsPerSecond: c.RequestsPerSecond,
		CloudflareBypass:  c.CloudflareBypass,
		Timeout:           time.Duration(c.TimeoutSeconds) * time.Second,
		MaxRedirectHops:   c.MaxRedirectHops,
		AssetConcurrency:  c.AssetConcurrency,
		Tel:               telemetry.SlogAPI{},
	}
	if dumpHttp != "" {
		output, err := restyutil.NewFilesystemOutput(dumpHttp)
		if err != nil {
			return opts, err
		}
		opts.HTTPDump = output
	}
	return opts, nil
}

func openSession(ctx context.Context) (*digi4school.Session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Email == "" || cfg.Password == "" {
		return nil, errMissingCredentials
	}
	opts, err := cfg.options()
	if err != nil {
		return nil, err
	}
	return digi4school.NewSession(ctx, opts)
}
