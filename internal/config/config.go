package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

type Config struct {
	ListenAddr string
	BaseURL    string

	DB struct {
		Path string
	}

	Logger struct {
		Level string
	}

	OAuth struct {
		ClientID     string
		ClientSecret string
		IssuerURL    string
		AuthURL      string
		TokenURL     string
		RedirectPath string
		Scopes       []string
	}

	Remote struct {
		BaseURL      string
		DocumentName string
	}

	Capabilities struct {
		URL string
	}

	Session struct {
		Secret string
	}

	PrometheusEnabled bool
	TrustedProxies    []string
}

// SyncEnabled reports whether remote sync has been configured. Without
// an OAuth client the application runs in local-only mode.
func (c *Config) SyncEnabled() bool {
	return c.OAuth.ClientID != ""
}

func Load() (*Config, error) {
	cfg := &Config{}

	cfg.ListenAddr = getenvDefault("RIFT_LISTEN_ADDR", ":8080")
	cfg.BaseURL = getenvDefault("RIFT_BASE_URL", "http://localhost:8080")
	cfg.DB.Path = getenvDefault("RIFT_DB_PATH", "rift.db")
	cfg.Logger.Level = getenvDefault("RIFT_LOG_LEVEL", "info")

	cfg.OAuth.ClientID = os.Getenv("RIFT_OAUTH_CLIENT_ID")
	cfg.OAuth.ClientSecret = os.Getenv("RIFT_OAUTH_CLIENT_SECRET")
	cfg.OAuth.IssuerURL = os.Getenv("RIFT_OAUTH_ISSUER_URL")
	cfg.OAuth.AuthURL = os.Getenv("RIFT_OAUTH_AUTH_URL")
	cfg.OAuth.TokenURL = os.Getenv("RIFT_OAUTH_TOKEN_URL")
	cfg.OAuth.RedirectPath = getenvDefault("RIFT_OAUTH_REDIRECT_PATH", "/auth/callback")
	cfg.OAuth.Scopes = getenvList("RIFT_OAUTH_SCOPES")
	if len(cfg.OAuth.Scopes) == 0 {
		// Application-private storage only; never the user's general
		// file space.
		cfg.OAuth.Scopes = []string{"openid", "email", "https://www.googleapis.com/auth/drive.appdata"}
	}

	cfg.Remote.BaseURL = getenvDefault("RIFT_REMOTE_BASE_URL", "https://www.googleapis.com")
	cfg.Remote.DocumentName = getenvDefault("RIFT_REMOTE_DOCUMENT_NAME", "books.json")
	cfg.Capabilities.URL = os.Getenv("RIFT_CAPABILITIES_URL")

	cfg.Session.Secret = os.Getenv("RIFT_SESSION_SECRET")
	cfg.PrometheusEnabled = getenvBool("RIFT_PROMETHEUS_ENDPOINT_ENABLED", false)
	cfg.TrustedProxies = getenvList("RIFT_TRUSTED_PROXIES")

	if cfg.SyncEnabled() {
		if cfg.OAuth.ClientSecret == "" {
			return nil, errors.New("RIFT_OAUTH_CLIENT_SECRET is required when RIFT_OAUTH_CLIENT_ID is set")
		}
		if cfg.OAuth.IssuerURL == "" && (cfg.OAuth.AuthURL == "" || cfg.OAuth.TokenURL == "") {
			return nil, errors.New("RIFT_OAUTH_ISSUER_URL or both RIFT_OAUTH_AUTH_URL and RIFT_OAUTH_TOKEN_URL are required")
		}
		if cfg.Session.Secret == "" {
			return nil, errors.New("RIFT_SESSION_SECRET is required when sync is enabled")
		}
		if len(cfg.Session.Secret) < 32 {
			return nil, fmt.Errorf("RIFT_SESSION_SECRET must be at least 32 characters long (got %d)", len(cfg.Session.Secret))
		}
	}

	if len(cfg.TrustedProxies) == 0 {
		fmt.Println("WARNING: No RIFT_TRUSTED_PROXIES configured. Rift will trust all proxies - Not recommended for public environments.")
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return def
}

func getenvList(key string) []string {
	if v := os.Getenv(key); v != "" {
		var result []string
		for _, item := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return nil
}
