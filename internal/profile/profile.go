package profile

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the main server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory (archive database lives here)
	Data string
	// Version is the current version of server
	Version string

	// Provider configuration
	ProviderAPIKey  string // EXPERTPANEL_OPENAI_API_KEY
	ProviderBaseURL string // EXPERTPANEL_OPENAI_BASE_URL
	DefaultModel    string // EXPERTPANEL_DEFAULT_MODEL (default: gpt-4.1-nano)
	UseMockProvider bool   // EXPERTPANEL_USE_MOCK_PROVIDER

	// Session store configuration. When RedisAddr is set the durable keyed
	// backend is used; otherwise sessions live in the in-process registry.
	RedisAddr     string // EXPERTPANEL_REDIS_ADDR
	RedisPassword string // EXPERTPANEL_REDIS_PASSWORD
	RedisDB       int    // EXPERTPANEL_REDIS_DB

	// Transcript compaction bound; older entries are archived once.
	CompactionBound int // EXPERTPANEL_COMPACTION_BOUND (default: 120)
	// ArchiveDSN points to the sqlite archive sink. Empty disables archiving.
	ArchiveDSN string // EXPERTPANEL_ARCHIVE_DSN

	// Retention keyed by session status.
	DraftTTL  time.Duration // EXPERTPANEL_DRAFT_TTL (default: 15m)
	ActiveTTL time.Duration // EXPERTPANEL_ACTIVE_TTL (default: 24h)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// UseExternalStore reports whether the durable keyed backend is configured.
func (p *Profile) UseExternalStore() bool {
	return p.RedisAddr != ""
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnvOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDurationEnvOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	p.ProviderAPIKey = os.Getenv("EXPERTPANEL_OPENAI_API_KEY")
	p.ProviderBaseURL = getEnvOrDefault("EXPERTPANEL_OPENAI_BASE_URL", "https://api.openai.com/v1")
	p.DefaultModel = getEnvOrDefault("EXPERTPANEL_DEFAULT_MODEL", "gpt-4.1-nano")
	p.UseMockProvider = os.Getenv("EXPERTPANEL_USE_MOCK_PROVIDER") == "true" || os.Getenv("EXPERTPANEL_USE_MOCK_PROVIDER") == "1"

	p.RedisAddr = os.Getenv("EXPERTPANEL_REDIS_ADDR")
	p.RedisPassword = os.Getenv("EXPERTPANEL_REDIS_PASSWORD")
	p.RedisDB = getIntEnvOrDefault("EXPERTPANEL_REDIS_DB", 0)

	p.CompactionBound = getIntEnvOrDefault("EXPERTPANEL_COMPACTION_BOUND", 120)
	p.ArchiveDSN = os.Getenv("EXPERTPANEL_ARCHIVE_DSN")
	p.DraftTTL = getDurationEnvOrDefault("EXPERTPANEL_DRAFT_TTL", 15*time.Minute)
	p.ActiveTTL = getDurationEnvOrDefault("EXPERTPANEL_ACTIVE_TTL", 24*time.Hour)
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.CompactionBound <= 0 {
		p.CompactionBound = 120
	}
	if p.DraftTTL <= 0 {
		p.DraftTTL = 15 * time.Minute
	}
	if p.ActiveTTL <= 0 {
		p.ActiveTTL = 24 * time.Hour
	}

	if p.Data != "" {
		dataDir, err := checkDataDir(p.Data)
		if err != nil {
			return err
		}
		p.Data = dataDir
		if p.ArchiveDSN == "" {
			p.ArchiveDSN = filepath.Join(dataDir, "expertpanel_archive.db")
		}
	}

	if !p.UseMockProvider && p.ProviderAPIKey == "" {
		return errors.New("EXPERTPANEL_OPENAI_API_KEY is required unless the mock provider is enabled")
	}

	return nil
}
