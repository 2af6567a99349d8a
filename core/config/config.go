// Package config loads the bot configuration from YAML with environment
// overrides applied on top.
package config

import (
	"strings"
	"time"
)

// Transports.
const (
	TransportTelegram = "telegram"
	TransportKeybase  = "keybase"
	TransportMatrix   = "matrix"
)

// Telegram run modes.
const (
	RunModeWebhook  = "webhook"
	RunModeLongpoll = "longpoll"
)

// Config aggregates the bot configuration.
type Config struct {
	Transport string          `yaml:"transport" envconfig:"GRINBOT_TRANSPORT"`
	Bot       BotConfig       `yaml:"bot"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Keybase   KeybaseConfig   `yaml:"keybase"`
	Matrix    MatrixConfig    `yaml:"matrix"`
	Wallet    WalletConfig    `yaml:"wallet"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Database  DatabaseConfig  `yaml:"database"`
}

// CoreConfig returns cfg itself.
func (cfg *Config) CoreConfig() *Config { return cfg }

// BotConfig names the single chat identity allowed to operate the wallet.
type BotConfig struct {
	Username string `yaml:"username" envconfig:"BOT_USERNAME"`
}

type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// 0 means the poller default.
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// KeybaseConfig drives the keybase CLI. Without a paperkey the running
// keybase service session is used.
type KeybaseConfig struct {
	Binary   string `yaml:"binary" envconfig:"KEYBASE_BINARY"`
	Username string `yaml:"username" envconfig:"KEYBASE_USERNAME"`
	PaperKey string `yaml:"paperkey" envconfig:"KEYBASE_PAPERKEY"`
	Home     string `yaml:"home" envconfig:"KEYBASE_HOME"`
}

type MatrixConfig struct {
	Homeserver  string `yaml:"homeserver" envconfig:"MATRIX_HOMESERVER"`
	UserID      string `yaml:"user_id" envconfig:"MATRIX_USER_ID"`
	AccessToken string `yaml:"access_token" envconfig:"MATRIX_ACCESS_TOKEN"`
	DeviceID    string `yaml:"device_id" envconfig:"MATRIX_DEVICE_ID"`
}

// WalletConfig locates the grin wallet and its owner API.
type WalletConfig struct {
	Dir      string `yaml:"dir" envconfig:"WALLET_DIR"`
	OwnerURL string `yaml:"owner_url" envconfig:"WALLET_OWNER_URL"`
	Password string `yaml:"password" envconfig:"WALLET_PASSWORD"`
	Binary   string `yaml:"binary" envconfig:"WALLET_BINARY"`
	// TimeoutSeconds bounds owner API calls and wallet commands. 0 means the wallet default.
	TimeoutSeconds int `yaml:"timeout_seconds" envconfig:"WALLET_TIMEOUT_SECONDS"`
}

func (w WalletConfig) Timeout() time.Duration {
	return time.Duration(w.TimeoutSeconds) * time.Second
}

// DatabaseConfig points at the optional operation journal. The journal is
// off while Host is empty.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

func (d DatabaseConfig) Enabled() bool {
	return strings.TrimSpace(d.Host) != ""
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Stacks      string `yaml:"stacks"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	ErrorsFile  string `yaml:"errors_file"`
	// Console is stdout (default), stderr or off.
	Console string `yaml:"console"`
	// Profile is debug, dev or prod; it picks the default format.
	Profile string `yaml:"profile"`
}

// RateLimitConfig throttles Telegram updates per user. ExcludeUpdates lists
// update kinds that are never throttled: callback, message, inline_query.
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

func (r RateLimitConfig) Interval() time.Duration {
	return time.Duration(r.IntervalMS) * time.Millisecond
}
