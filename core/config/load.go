package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

var rateLimitKinds = []string{"callback", "message", "inline_query"}

// Load reads path, applies environment overrides and normalizes the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: env: %w", err)
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates cfg and fills defaults. Only the selected transport's
// section is checked.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return errors.New("config: nil config")
	}
	cfg.Bot.Username = strings.TrimSpace(cfg.Bot.Username)
	if cfg.Bot.Username == "" {
		return required("bot.username")
	}

	cfg.Transport = strings.ToLower(strings.TrimSpace(cfg.Transport))
	if cfg.Transport == "" {
		cfg.Transport = TransportTelegram
	}
	var err error
	switch cfg.Transport {
	case TransportTelegram:
		err = cfg.normalizeTelegram()
	case TransportKeybase:
		err = cfg.Keybase.normalize()
	case TransportMatrix:
		err = cfg.Matrix.validate()
	default:
		err = fmt.Errorf("config: invalid transport %q; allowed: telegram, keybase, matrix", cfg.Transport)
	}
	if err != nil {
		return err
	}

	if strings.TrimSpace(cfg.Wallet.Dir) == "" {
		return required("wallet.dir")
	}
	if cfg.Wallet.TimeoutSeconds < 0 {
		return errors.New("config: wallet.timeout_seconds must be >= 0")
	}
	cfg.Database.defaults()
	return cfg.RateLimit.normalize()
}

func required(key string) error {
	return fmt.Errorf("config: %s is required", key)
}

func (cfg *Config) normalizeTelegram() error {
	tc := &cfg.Telegram
	if strings.TrimSpace(tc.Token) == "" {
		return required("telegram.token")
	}
	mode := strings.ToLower(strings.TrimSpace(tc.RunMode))
	switch mode {
	case "", "polling", RunModeLongpoll:
		if tc.LongPollTimeoutSeconds < 0 {
			return errors.New("config: telegram.longpoll_timeout_seconds must be >= 0")
		}
		tc.RunMode = RunModeLongpoll
	case RunModeWebhook:
		wh := cfg.Webhook
		switch {
		case strings.TrimSpace(wh.URL) == "":
			return required("webhook.url")
		case strings.TrimSpace(wh.Listen) == "":
			return required("webhook.listen")
		case wh.Port <= 0:
			return errors.New("config: webhook.port must be > 0")
		}
		tc.RunMode = RunModeWebhook
	default:
		return fmt.Errorf("config: invalid telegram.run_mode %q; allowed: webhook, longpoll", tc.RunMode)
	}
	return nil
}

func (k *KeybaseConfig) normalize() error {
	if strings.TrimSpace(k.Username) == "" {
		return required("keybase.username")
	}
	if strings.TrimSpace(k.Binary) == "" {
		k.Binary = "keybase"
	}
	return nil
}

func (m MatrixConfig) validate() error {
	switch {
	case strings.TrimSpace(m.Homeserver) == "":
		return required("matrix.homeserver")
	case strings.TrimSpace(m.UserID) == "":
		return required("matrix.user_id")
	case strings.TrimSpace(m.AccessToken) == "":
		return required("matrix.access_token")
	}
	return nil
}

func (d *DatabaseConfig) defaults() {
	if !d.Enabled() {
		return
	}
	if d.SSLMode == "" {
		d.SSLMode = "disable"
	}
	if d.Port == "" {
		d.Port = "5432"
	}
	if d.MaxConnections <= 0 {
		d.MaxConnections = 4
	}
}

func (r *RateLimitConfig) normalize() error {
	kept := r.ExcludeUpdates[:0]
	for _, v := range r.ExcludeUpdates {
		kind := strings.ToLower(strings.TrimSpace(v))
		if kind == "" {
			continue
		}
		if !slices.Contains(rateLimitKinds, kind) {
			return fmt.Errorf("config: invalid rate_limit.exclude_updates value %q; allowed: %s", v, strings.Join(rateLimitKinds, ", "))
		}
		kept = append(kept, kind)
	}
	r.ExcludeUpdates = kept
	return nil
}
