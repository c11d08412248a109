package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// Config holds application configuration.
type Config struct {
	// RelayURL is the endpoint of the email relay that receives
	// {to, subject, body, from} payloads.
	RelayURL string `json:"relay_url"`

	// RelayTimeoutSeconds bounds a single relay call. A dispatch is never
	// cancelled by the caller, only by this timeout.
	RelayTimeoutSeconds int `json:"relay_timeout_seconds"`

	// CompanyName is used in confirmation copy and default sender names.
	CompanyName string `json:"company_name"`

	// SalesAddress receives internal notifications for API submissions.
	SalesAddress string `json:"sales_address"`

	// SalesFrom is the From header for API submission mail.
	SalesFrom string `json:"sales_from"`

	// ContactAddress receives internal notifications for contact messages.
	ContactAddress string `json:"contact_address"`

	// ContactFrom is the From header for contact confirmations.
	ContactFrom string `json:"contact_from"`

	// MailgunBaseURL and MailgunDomain configure the relay service.
	// The API key is only read from MAILGUN_API_KEY.
	MailgunBaseURL string `json:"mailgun_base_url"`
	MailgunDomain  string `json:"mailgun_domain"`
	MailgunAPIKey  string `json:"-"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of tool groups to disable entirely.
	// Known types: "form", "draft", "contact".
	DisabledTypes []string `json:"disabled_types,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		RelayURL:            "https://terminus-email.terminusemail.workers.dev",
		RelayTimeoutSeconds: 15,
		CompanyName:         "Terminus Industrials",
		SalesAddress:        "sales@terminusindustrials.com",
		SalesFrom:           "Terminus Industrials <sales@terminusindustrials.com>",
		ContactAddress:      "contact@terminusindustrials.com",
		ContactFrom:         "Terminus Industrials <contact@terminusindustrials.com>",
		MailgunBaseURL:      "https://api.mailgun.net",
	}
}

// RelayTimeout returns the relay call timeout as a duration.
func (c *Config) RelayTimeout() time.Duration {
	if c.RelayTimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.RelayTimeoutSeconds) * time.Second
}

// Load loads configuration from baseDir/config.json on the OS filesystem and
// applies environment overrides. Returns defaults if the file doesn't exist.
func Load(baseDir string) (*Config, error) {
	cfg, err := LoadFS(afero.NewOsFs(), baseDir)
	if err != nil {
		return nil, err
	}
	return ApplyEnv(cfg, os.Getenv), nil
}

// LoadFS loads configuration from baseDir/config.json on fsys.
// The fs parameter allows tests to use an in-memory filesystem.
func LoadFS(fsys afero.Fs, baseDir string) (*Config, error) {
	cfg, err := loadFileRaw(fsys, filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// ApplyEnv overlays environment variables on cfg.
// EMAIL_WORKER_URL overrides the relay endpoint; MAILGUN_API_KEY and
// MAILGUN_DOMAIN configure the relay service.
func ApplyEnv(cfg *Config, getenv func(string) string) *Config {
	if v := strings.TrimSpace(getenv("EMAIL_WORKER_URL")); v != "" {
		cfg.RelayURL = v
	}
	if v := strings.TrimSpace(getenv("MAILGUN_API_KEY")); v != "" {
		cfg.MailgunAPIKey = v
	}
	if v := strings.TrimSpace(getenv("MAILGUN_DOMAIN")); v != "" {
		cfg.MailgunDomain = v
	}
	return cfg
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(fsys afero.Fs, configPath string) (*Config, error) {
	data, err := afero.ReadFile(fsys, configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.RelayURL = pickString(overlay.RelayURL, base.RelayURL)
	result.CompanyName = pickString(overlay.CompanyName, base.CompanyName)
	result.SalesAddress = pickString(overlay.SalesAddress, base.SalesAddress)
	result.SalesFrom = pickString(overlay.SalesFrom, base.SalesFrom)
	result.ContactAddress = pickString(overlay.ContactAddress, base.ContactAddress)
	result.ContactFrom = pickString(overlay.ContactFrom, base.ContactFrom)
	result.MailgunBaseURL = pickString(overlay.MailgunBaseURL, base.MailgunBaseURL)
	result.MailgunDomain = pickString(overlay.MailgunDomain, base.MailgunDomain)
	result.MailgunAPIKey = pickString(overlay.MailgunAPIKey, base.MailgunAPIKey)

	result.RelayTimeoutSeconds = pickInt(overlay.RelayTimeoutSeconds, base.RelayTimeoutSeconds)
	result.DBMaxOpenConns = pickInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = pickInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func pickString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

func pickInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
