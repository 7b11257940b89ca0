package clientconfig

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/weiawesome/pawfect-live/internal/domain"
	pkgconfig "github.com/weiawesome/pawfect-live/pkg/config"
	pkglog "github.com/weiawesome/pawfect-live/pkg/log"
)

type Config struct {
	Hub        HubConfig
	Identity   IdentityConfig
	Reconnect  ReconnectConfig
	Connect    ConnectConfig
	Dial       DialConfig
	Candidates CandidatesConfig
	Reactions  ReactionsConfig
	Chat       ChatConfig
	Log        pkglog.Config
}

type HubConfig struct {
	URL    string
	APIURL string `mapstructure:"api_url"`
	Token  string
}

type IdentityConfig struct {
	UserID      string `mapstructure:"user_id"`
	DisplayName string `mapstructure:"display_name"`
	AvatarURL   string `mapstructure:"avatar_url"`
}

type ReconnectConfig struct {
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
}

type ConnectConfig struct {
	Timeout time.Duration
}

type DialConfig struct {
	Attempts int
	Backoff  time.Duration
}

type CandidatesConfig struct {
	MaxPerPeer int `mapstructure:"max_per_peer"`
	TTL        time.Duration
}

type ReactionsConfig struct {
	Display time.Duration
}

type ChatConfig struct {
	History int
}

// Load reads envFile (or ./.env when empty) into the process environment,
// then the optional live-client config file and the environment.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else {
		// godotenv.Load does not overwrite existing env vars
		_ = godotenv.Load()
	}

	v, err := pkgconfig.Load("./config", "live-client")
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// FromViper applies defaults and environment bindings to v and decodes it.
func FromViper(v *viper.Viper) (*Config, error) {
	v.SetDefault("hub.url", "ws://localhost:8084/ws")
	v.SetDefault("hub.api_url", "")
	v.SetDefault("hub.token", "")
	v.SetDefault("identity.user_id", "")
	v.SetDefault("identity.display_name", "")
	v.SetDefault("identity.avatar_url", "")
	v.SetDefault("reconnect.initial_backoff", "1s")
	v.SetDefault("reconnect.max_backoff", "30s")
	v.SetDefault("reconnect.max_attempts", 0)
	v.SetDefault("connect.timeout", "30s")
	v.SetDefault("dial.attempts", 3)
	v.SetDefault("dial.backoff", "500ms")
	v.SetDefault("candidates.max_per_peer", 64)
	v.SetDefault("candidates.ttl", "30s")
	v.SetDefault("reactions.display", "3s")
	v.SetDefault("chat.history", 200)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", true)

	v.BindEnv("hub.url", "HUB_URL")
	v.BindEnv("hub.api_url", "HUB_API_URL")
	v.BindEnv("hub.token", "HUB_TOKEN")
	v.BindEnv("identity.user_id", "LIVE_USER_ID")
	v.BindEnv("identity.display_name", "LIVE_DISPLAY_NAME")
	v.BindEnv("identity.avatar_url", "LIVE_AVATAR_URL")
	v.BindEnv("reconnect.max_attempts", "RECONNECT_MAX_ATTEMPTS")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.Reconnect.InitialBackoff = pkgconfig.Duration(v, "reconnect.initial_backoff", time.Second)
	cfg.Reconnect.MaxBackoff = pkgconfig.Duration(v, "reconnect.max_backoff", 30*time.Second)
	cfg.Connect.Timeout = pkgconfig.Duration(v, "connect.timeout", 30*time.Second)
	cfg.Dial.Backoff = pkgconfig.Duration(v, "dial.backoff", 500*time.Millisecond)
	cfg.Candidates.TTL = pkgconfig.Duration(v, "candidates.ttl", 30*time.Second)
	cfg.Reactions.Display = pkgconfig.Duration(v, "reactions.display", 3*time.Second)

	if cfg.Hub.APIURL == "" {
		api, err := APIURLFromHub(cfg.Hub.URL)
		if err != nil {
			return nil, err
		}
		cfg.Hub.APIURL = api
	}
	if cfg.Dial.Attempts <= 0 {
		cfg.Dial.Attempts = 3
	}

	return &cfg, nil
}

// APIURLFromHub maps a WebSocket endpoint such as wss://host/ws to the
// matching REST base https://host.
func APIURLFromHub(hubURL string) (string, error) {
	u, err := url.Parse(hubURL)
	if err != nil {
		return "", fmt.Errorf("parse hub url: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	default:
		return "", fmt.Errorf("hub url %q: scheme must be ws or wss", hubURL)
	}
	u.Path = strings.TrimSuffix(strings.TrimSuffix(u.Path, "/"), "/ws")
	u.RawQuery = ""
	return strings.TrimRight(u.String(), "/"), nil
}

// IdentityOrNil returns the configured identity, or nil so the hub assigns
// a guest.
func (c *Config) IdentityOrNil() *domain.Identity {
	id := c.Identity
	if id.UserID == "" && id.DisplayName == "" && id.AvatarURL == "" {
		return nil
	}
	return &domain.Identity{
		UserID:      id.UserID,
		DisplayName: id.DisplayName,
		AvatarURL:   id.AvatarURL,
	}
}
