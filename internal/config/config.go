package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/itsnelsonvargas/ClickTok/internal/acquirer"
	"github.com/itsnelsonvargas/ClickTok/internal/models"
	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Discovery DiscoveryConfig
	Browser   BrowserConfig
	Official  OfficialConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Logging   LoggingConfig

	// Populated from the targets file, or built-in defaults.
	Targets       acquirer.Targets
	Filters       models.Filters
	CardSelectors []string
}

type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type DiscoveryConfig struct {
	DefaultLimit     int
	AffiliateID      string
	TargetsFile      string
	CookieFile       string
	LoginWait        time.Duration
	LoginPoll        time.Duration
	ManualNavigation bool
	ManualWait       time.Duration
	LoadMoreCycles   int
	LoadMoreDelay    time.Duration
	EpisodeDelayMin  time.Duration
	EpisodeDelayMax  time.Duration
}

type BrowserConfig struct {
	Headless          bool
	NavigationTimeout time.Duration
	ViewportWidth     int
	ViewportHeight    int
	UserAgent         string
	AcceptLanguage    string
	TimezoneID        string
	Locale            string
	ProxyServer       string
}

type OfficialConfig struct {
	BaseURL         string
	AppKey          string
	AppSecret       string
	AccessToken     string
	CredentialsFile string
	Timeout         time.Duration
	CacheTTL        time.Duration
	MemcacheAddr    string
}

// HasCredentials reports whether the full credential triple is present.
func (o OfficialConfig) HasCredentials() bool {
	return o.AppKey != "" && o.AppSecret != "" && o.AccessToken != ""
}

type DatabaseConfig struct {
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

// Enabled reports whether a database was configured at all.
func (d DatabaseConfig) Enabled() bool {
	return d.URL != "" || d.Host != ""
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	StreamMaxLen int64
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from the environment, after best-effort loading
// of a .env file, then layers the credentials and targets files on top.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getIntOrDefault("SERVER_PORT", 8080),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 0),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowedOrigins:  SplitList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "")),
		},
		Discovery: DiscoveryConfig{
			DefaultLimit:     getIntOrDefault("DISCOVERY_LIMIT", 10),
			AffiliateID:      getEnvOrDefault("TIKTOK_AFFILIATE_ID", ""),
			TargetsFile:      getEnvOrDefault("TARGETS_FILE", ""),
			CookieFile:       getEnvOrDefault("COOKIE_FILE", "data/cookies.json"),
			LoginWait:        getDurationOrDefault("LOGIN_WAIT", 30*time.Second),
			LoginPoll:        getDurationOrDefault("LOGIN_POLL", 2*time.Second),
			ManualNavigation: getBoolOrDefault("MANUAL_NAVIGATION", false),
			ManualWait:       getDurationOrDefault("MANUAL_WAIT", 60*time.Second),
			LoadMoreCycles:   getIntOrDefault("LOAD_MORE_CYCLES", 5),
			LoadMoreDelay:    getDurationOrDefault("LOAD_MORE_DELAY", 2*time.Second),
			EpisodeDelayMin:  getDurationOrDefault("EPISODE_DELAY_MIN", 2*time.Second),
			EpisodeDelayMax:  getDurationOrDefault("EPISODE_DELAY_MAX", 5*time.Second),
		},
		Browser: BrowserConfig{
			Headless:          getBoolOrDefault("BROWSER_HEADLESS", true),
			NavigationTimeout: getDurationOrDefault("BROWSER_TIMEOUT", 25*time.Second),
			ViewportWidth:     getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight:    getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			UserAgent:         getEnvOrDefault("BROWSER_USER_AGENT", ""),
			AcceptLanguage:    getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "en-US,en;q=0.9"),
			TimezoneID:        getEnvOrDefault("BROWSER_TIMEZONE", "America/New_York"),
			Locale:            getEnvOrDefault("BROWSER_LOCALE", "en-US"),
			ProxyServer:       getEnvOrDefault("BROWSER_PROXY", ""),
		},
		Official: OfficialConfig{
			BaseURL:         getEnvOrDefault("TIKTOK_SHOP_API_URL", "https://open-api.tiktokglobalshop.com"),
			AppKey:          getEnvOrDefault("TIKTOK_SHOP_APP_KEY", ""),
			AppSecret:       getEnvOrDefault("TIKTOK_SHOP_APP_SECRET", ""),
			AccessToken:     getEnvOrDefault("TIKTOK_SHOP_ACCESS_TOKEN", ""),
			CredentialsFile: getEnvOrDefault("CREDENTIALS_FILE", "config/credentials.json"),
			Timeout:         getDurationOrDefault("OFFICIAL_TIMEOUT", 30*time.Second),
			CacheTTL:        getDurationOrDefault("OFFICIAL_CACHE_TTL", 10*time.Minute),
			MemcacheAddr:    getEnvOrDefault("MEMCACHE_ADDR", ""),
		},
		Database: DatabaseConfig{
			URL:      getEnvOrDefault("DATABASE_URL", ""),
			Host:     getEnvOrDefault("DB_HOST", ""),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			Name:     getEnvOrDefault("DB_NAME", "clicktok"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Addr:         getEnvOrDefault("REDIS_ADDR", ""),
			Password:     getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:           getIntOrDefault("REDIS_DB", 0),
			StreamMaxLen: int64(getIntOrDefault("REDIS_STREAM_MAX_LEN", 10000)),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "tint"),
		},
	}

	if err := cfg.applyCredentialsFile(); err != nil {
		return nil, err
	}
	if cfg.Discovery.AffiliateID == "" {
		cfg.Discovery.AffiliateID = "YOUR_ID"
	}

	targets, err := LoadTargetsFile(cfg.Discovery.TargetsFile)
	if err != nil {
		return nil, err
	}
	cfg.Targets = targets.Targets
	cfg.Filters = *targets.Filters
	cfg.CardSelectors = targets.CardSelectors

	return cfg, nil
}

// applyCredentialsFile fills credentials the environment left empty. A
// missing file is not an error.
func (c *Config) applyCredentialsFile() error {
	creds, err := LoadCredentialsFile(c.Official.CredentialsFile)
	if err != nil {
		return err
	}
	if creds == nil {
		return nil
	}

	if c.Official.AppKey == "" {
		c.Official.AppKey = creds.Shop.AppKey
	}
	if c.Official.AppSecret == "" {
		c.Official.AppSecret = creds.Shop.AppSecret
	}
	if c.Official.AccessToken == "" {
		c.Official.AccessToken = creds.Shop.AccessToken
	}
	if c.Discovery.AffiliateID == "" {
		c.Discovery.AffiliateID = creds.TikTok.AffiliateID
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535")
	}

	if c.Discovery.DefaultLimit < 1 {
		return fmt.Errorf("DISCOVERY_LIMIT must be at least 1")
	}

	if c.Discovery.LoginWait <= 0 {
		return fmt.Errorf("LOGIN_WAIT must be positive")
	}

	if c.Discovery.LoadMoreCycles < 0 {
		return fmt.Errorf("LOAD_MORE_CYCLES cannot be negative")
	}

	if c.Discovery.EpisodeDelayMin > c.Discovery.EpisodeDelayMax {
		return fmt.Errorf("EPISODE_DELAY_MIN cannot be greater than EPISODE_DELAY_MAX")
	}

	if c.Browser.NavigationTimeout <= 0 {
		return fmt.Errorf("BROWSER_TIMEOUT must be positive")
	}

	if err := c.Filters.Validate(); err != nil {
		return fmt.Errorf("filters: %w", err)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "text", "tint":
	default:
		return fmt.Errorf("LOG_FORMAT must be one of json, text, tint")
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// SplitList splits a comma separated list, trimming blanks.
func SplitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
