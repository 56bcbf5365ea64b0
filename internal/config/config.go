package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"StandardsScanner/internal/domain"
)

const (
	defaultTimezone   = "UTC"
	dateLayout        = "2006-01-02"
	configPathEnv     = "STANDARDS_SCANNER_CONFIG"
	databaseDSNEnv    = "DATABASE_DSN"
	logLevelEnv       = "LOG_LEVEL"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
	maxMaterialsEnv   = "SCANNER_MAXIMUM_MATERIALS"
	fromDateEnv       = "SCANNER_FROM_DATE"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Database      DatabaseConfig     `yaml:"database"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Restrictions  RestrictionsConfig `yaml:"restrictions"`
	Browser       BrowserConfig      `yaml:"browser"`
	Notifications NotificationConfig `yaml:"notifications"`
	Sites         []SiteConfig       `yaml:"sites"`
}

// LoggingConfig selects the slog level and output format ("text" or "json").
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig describes Postgres connection details. An empty DSN disables persistence.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// SchedulerConfig defines when the scanner should run. An empty expression runs once.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// RestrictionsConfig bounds what a single site run accepts.
// Dates use the YYYY-MM-DD layout. A maximum of 0 means unlimited.
type RestrictionsConfig struct {
	MaximumMaterials int    `yaml:"maximumMaterials"`
	ToLastMaterial   string `yaml:"toLastMaterial"`
	FromDate         string `yaml:"fromDate"`
	ToDate           string `yaml:"toDate"`

	// maximumSet records that the file named maximumMaterials, so an
	// explicit 0 still overrides the default.
	maximumSet bool `yaml:"-"`
}

// UnmarshalYAML decodes the section while tracking whether maximumMaterials was present.
func (r *RestrictionsConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		MaximumMaterials *int   `yaml:"maximumMaterials"`
		ToLastMaterial   string `yaml:"toLastMaterial"`
		FromDate         string `yaml:"fromDate"`
		ToDate           string `yaml:"toDate"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	*r = RestrictionsConfig{
		ToLastMaterial: raw.ToLastMaterial,
		FromDate:       raw.FromDate,
		ToDate:         raw.ToDate,
	}
	if raw.MaximumMaterials != nil {
		r.MaximumMaterials = *raw.MaximumMaterials
		r.maximumSet = true
	}
	return nil
}

// Domain converts the config section, validating its dates.
func (r RestrictionsConfig) Domain() (domain.Restrictions, error) {
	out := domain.Restrictions{
		MaximumMaterials: r.MaximumMaterials,
		ToLastMaterial:   r.ToLastMaterial,
	}

	var err error
	if out.FromDate, err = parseDate(r.FromDate); err != nil {
		return domain.Restrictions{}, fmt.Errorf("fromDate: %w", err)
	}
	if out.ToDate, err = parseDate(r.ToDate); err != nil {
		return domain.Restrictions{}, fmt.Errorf("toDate: %w", err)
	}

	return out, nil
}

func parseDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// BrowserConfig tunes the page session used for detail pages.
type BrowserConfig struct {
	UserAgent string        `yaml:"userAgent"`
	Timeout   time.Duration `yaml:"timeout"`
	Settle    time.Duration `yaml:"settle"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
	APIURL   string `yaml:"apiUrl"`
}

// SiteConfig describes a single site with its scanner strategy.
type SiteConfig struct {
	Name       string            `yaml:"name"`
	Scanner    string            `yaml:"scanner"`
	Categories []CategoryConfig  `yaml:"categories"`
	Options    map[string]string `yaml:"options"`
}

// CategoryConfig holds the concrete endpoints to crawl (RSS feeds or ICS catalog pages).
type CategoryConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	if len(cfg.Sites) == 0 {
		cfg.Sites = defaultConfig().Sites
	}

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(maxMaterialsEnv); v != "" {
		if n, err := strconv.Atoi(v); err != nil {
			log.Printf("config: invalid %s=%q: %v", maxMaterialsEnv, v, err)
		} else {
			c.Restrictions.MaximumMaterials = n
		}
	}

	if v := os.Getenv(fromDateEnv); v != "" {
		c.Restrictions.FromDate = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if override.Database.DSN != "" {
		base.Database = override.Database
	}

	// An explicit empty cron expression cannot be told apart from a missing
	// one, so run-once mode is selected with "once".
	if override.Scheduler.CronExpression != "" {
		base.Scheduler.CronExpression = override.Scheduler.CronExpression
		if base.Scheduler.CronExpression == "once" {
			base.Scheduler.CronExpression = ""
		}
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}

	if override.Restrictions.maximumSet || override.Restrictions.MaximumMaterials != 0 {
		base.Restrictions.MaximumMaterials = override.Restrictions.MaximumMaterials
	}
	if override.Restrictions.ToLastMaterial != "" {
		base.Restrictions.ToLastMaterial = override.Restrictions.ToLastMaterial
	}
	if override.Restrictions.FromDate != "" {
		base.Restrictions.FromDate = override.Restrictions.FromDate
	}
	if override.Restrictions.ToDate != "" {
		base.Restrictions.ToDate = override.Restrictions.ToDate
	}

	if override.Browser.UserAgent != "" {
		base.Browser.UserAgent = override.Browser.UserAgent
	}
	if override.Browser.Timeout > 0 {
		base.Browser.Timeout = override.Browser.Timeout
	}
	if override.Browser.Settle > 0 {
		base.Browser.Settle = override.Browser.Settle
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}
	if override.Notifications.Telegram.APIURL != "" {
		base.Notifications.Telegram.APIURL = override.Notifications.Telegram.APIURL
	}

	if len(override.Sites) > 0 {
		base.Sites = override.Sites
	}

	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging:      LoggingConfig{Level: "info", Format: "text"},
		Scheduler:    SchedulerConfig{CronExpression: "0 6 * * *", Timezone: defaultTimezone, location: tz},
		Restrictions: RestrictionsConfig{MaximumMaterials: 50},
		Browser: BrowserConfig{
			UserAgent: "StandardsScanner/1.0",
			Timeout:   20 * time.Second,
			Settle:    time.Second,
		},
		Notifications: NotificationConfig{
			Telegram: TelegramConfig{APIURL: "https://api.telegram.org"},
		},
		Sites: []SiteConfig{
			{
				Name:    "iso",
				Scanner: "iso-rss",
				Categories: []CategoryConfig{
					{Name: "03.060", URL: "https://www.iso.org/contents/data/ics/03.060.rss"},
					{Name: "35.020", URL: "https://www.iso.org/contents/data/ics/35.020.rss"},
					{Name: "35.240.15", URL: "https://www.iso.org/contents/data/ics/35.240.15.rss"},
					{Name: "35.240.40", URL: "https://www.iso.org/contents/data/ics/35.240.40.rss"},
				},
			},
		},
	}
}
