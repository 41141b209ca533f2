package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"wp_schema_sync/internal/model"
	"wp_schema_sync/internal/notifications"
	"wp_schema_sync/internal/session"

	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
)

// ConfigEnv names the variable holding the config file path when --config is not given.
const ConfigEnv = "WPSCHEMA_CONFIG"

const defaultConfigFile = "config.toml"

// Duration reads "30s"-style strings from TOML.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	WordPress     WordPressConfig     `toml:"wordpress"`
	Telegram      TelegramConfig      `toml:"telegram"`
	Server        ServerConfig        `toml:"server"`
	Notifications NotificationsConfig `toml:"notifications"`
	Google        GoogleConfig        `toml:"google"`
}

// WordPressConfig is the default site, used by single-account sheets.
// HTTPTimeout is zero unless set: WordPress calls get no client timeout by default.
type WordPressConfig struct {
	APIURL      string   `toml:"api_url"`
	JWTToken    string   `toml:"jwt_token"`
	Username    string   `toml:"username"`
	AppPassword string   `toml:"app_password"`
	HTTPTimeout Duration `toml:"http_timeout"`
}

type TelegramConfig struct {
	BotToken      string   `toml:"bot_token"`
	APIURL        string   `toml:"api_url"`
	PollTimeout   Duration `toml:"poll_timeout"`
	UploadWindow  Duration `toml:"upload_window"`
	WebhookSecret string   `toml:"webhook_secret"`
	AllowedUsers  []int64  `toml:"allowed_users"`
}

type ServerConfig struct {
	Addr        string   `toml:"addr"`
	DownloadTTL Duration `toml:"download_ttl"`
	Debug       bool     `toml:"debug"`
}

type NotificationsConfig struct {
	Enabled    bool   `toml:"enabled"`
	URL        string `toml:"url"`
	Topic      string `toml:"topic"`
	Priority   string `toml:"priority"`
	MaxRetries int    `toml:"max_retries"`
}

type GoogleConfig struct {
	CredentialsFile string `toml:"credentials_file"`
}

// DefaultConfig returns the settings used when neither file nor environment say otherwise.
func DefaultConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			PollTimeout:  Duration(30 * time.Second),
			UploadWindow: Duration(5 * time.Minute),
		},
		Server: ServerConfig{
			Addr:        ":8080",
			DownloadTTL: Duration(30 * time.Minute),
		},
		Notifications: NotificationsConfig{
			URL:        "https://ntfy.sh",
			Topic:      "wp-schema-sync",
			Priority:   "default",
			MaxRetries: 3,
		},
		Google: GoogleConfig{
			CredentialsFile: "credentials.json",
		},
	}
}

// Load builds the configuration: defaults, then the TOML file, then
// environment overrides. path falls back to $WPSCHEMA_CONFIG and then to
// ./config.toml; only an explicitly named file must exist.
func Load(path string) (*Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if path == "" {
		path = getenv(ConfigEnv)
		explicit = path != ""
	}
	if path == "" {
		path = defaultConfigFile
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		log.Debug().Str("path", path).Msg("Loaded config file")
	case errors.Is(err, os.ErrNotExist) && !explicit:
		log.Debug().Str("path", path).Msg("No config file; using defaults and environment")
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	setString(&c.WordPress.APIURL, "WP_API_URL")
	setString(&c.WordPress.JWTToken, "WP_JWT_TOKEN")
	setString(&c.WordPress.Username, "WP_USERNAME")
	setString(&c.WordPress.AppPassword, "WP_APP_PASSWORD")
	if v := strings.TrimSpace(getenv("WP_HTTP_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("WP_HTTP_TIMEOUT: %w", err)
		}
		c.WordPress.HTTPTimeout = Duration(d)
	}

	setString(&c.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	setString(&c.Telegram.WebhookSecret, "TELEGRAM_WEBHOOK_SECRET")
	if v := strings.TrimSpace(getenv("TELEGRAM_ALLOWED_USERS")); v != "" {
		users, err := parseUserIDs(v)
		if err != nil {
			return fmt.Errorf("TELEGRAM_ALLOWED_USERS: %w", err)
		}
		c.Telegram.AllowedUsers = users
	}

	setString(&c.Server.Addr, "HTTP_ADDR")

	if v := strings.TrimSpace(getenv("NTFY_ENABLED")); v != "" {
		c.Notifications.Enabled = v == "true" || v == "1"
	}
	setString(&c.Notifications.URL, "NTFY_URL")
	setString(&c.Notifications.Topic, "NTFY_TOPIC")

	setString(&c.Google.CredentialsFile, "GOOGLE_CREDENTIALS_FILE")
	return nil
}

// parseUserIDs reads a comma or space separated list of Telegram user IDs.
func parseUserIDs(raw string) ([]int64, error) {
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' || r == ';' })
	ids := make([]int64, 0, len(fields))
	for _, f := range fields {
		id, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user id %q", f)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// FallbackAccount is the configured default site, or nil when no API URL is set.
func (c *Config) FallbackAccount() *model.Account {
	if strings.TrimSpace(c.WordPress.APIURL) == "" {
		return nil
	}
	return &model.Account{
		BaseURL:     strings.TrimSpace(c.WordPress.APIURL),
		Token:       c.WordPress.JWTToken,
		Username:    c.WordPress.Username,
		AppPassword: c.WordPress.AppPassword,
	}
}

// RequireTelegram reports a missing bot token.
func (c *Config) RequireTelegram() error {
	if c.Telegram.BotToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN (or [telegram] bot_token) is required")
	}
	return nil
}

// NewNotifier builds the ntfy client. A disabled client is returned rather
// than nil so callers need no checks.
func (c *Config) NewNotifier() *notifications.Client {
	n := c.Notifications
	client := notifications.NewClient(n.URL, n.Topic, n.Enabled, n.Priority, n.MaxRetries, 2*time.Second, 30*time.Second)

	if client.Enabled() {
		log.Info().Str("topic", n.Topic).Msg("Notifications enabled")
	} else {
		log.Debug().Msg("Notifications disabled")
	}
	return client
}

// NewController wires a session controller with an in-memory store.
func (c *Config) NewController(notifier *notifications.Client) *session.Controller {
	fallback := c.FallbackAccount()
	if fallback == nil {
		log.Info().Msg("No default WordPress site configured; uploads need an accounts sheet")
	}
	return session.NewController(session.NewMemoryStore(), session.Options{
		Fallback:     fallback,
		HTTPTimeout:  c.WordPress.HTTPTimeout.Std(),
		UploadWindow: c.Telegram.UploadWindow.Std(),
		Notifier:     notifier,
	})
}
