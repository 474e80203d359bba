package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"

	TrackerMemory = "memory"
	TrackerSQLite = "sqlite"
)

type Config struct {
	TelegramToken  string  `envconfig:"TELEGRAM_BOT_TOKEN"`
	AllowedChatIDs []int64 `envconfig:"ALLOWED_CHAT_IDS"`

	StorageDriver string `envconfig:"STORAGE_DRIVER" default:"json"`
	RemindersPath string `envconfig:"REMINDERS_PATH" default:"./data/reminders.json"`
	DatabasePath  string `envconfig:"DATABASE_PATH" default:"./data/billbot.db"`
	FireTracker   string `envconfig:"FIRE_TRACKER" default:"sqlite"`

	TimezoneName    string        `envconfig:"TIMEZONE" default:"Asia/Ho_Chi_Minh"`
	FireTime        string        `envconfig:"FIRE_TIME" default:"08:00"`
	Offsets         []int         `envconfig:"OFFSETS" default:"2,1,0"`
	TickSpec        string        `envconfig:"TICK_SPEC" default:"* * * * *"`
	NotifyTimeout   time.Duration `envconfig:"NOTIFY_TIMEOUT" default:"10s"`
	RetentionMonths int           `envconfig:"RETENTION_MONTHS" default:"2"`

	WebhookURL  string `envconfig:"WEBHOOK_URL"`
	ServerPort  string `envconfig:"SERVER_PORT" default:"8080"`
	APIUsername string `envconfig:"API_USERNAME"`
	APIPassword string `envconfig:"API_PASSWORD"`

	CalDAVURL      string `envconfig:"CALDAV_URL"`
	CalDAVUsername string `envconfig:"CALDAV_USERNAME"`
	CalDAVPassword string `envconfig:"CALDAV_PASSWORD"`
	CalDAVCalendar string `envconfig:"CALDAV_CALENDAR"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	AppEnv   string `envconfig:"APP_ENV" default:"prod"`

	// Resolved by Load.
	Timezone *time.Location `ignored:"true"`
	FireHour int            `ignored:"true"`
	FireMin  int            `ignored:"true"`
}

// Load reads the configuration from the environment. The Telegram token is not
// required here so that offline commands can run without it; RequireToken
// checks it for the serving path.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	tz, err := time.LoadLocation(c.TimezoneName)
	if err != nil {
		return fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	c.Timezone = tz

	hour, minute, err := ParseClock(c.FireTime)
	if err != nil {
		return fmt.Errorf("invalid FIRE_TIME: %w", err)
	}
	c.FireHour, c.FireMin = hour, minute

	offsets, err := normalizeOffsets(c.Offsets)
	if err != nil {
		return fmt.Errorf("invalid OFFSETS: %w", err)
	}
	c.Offsets = offsets

	switch c.StorageDriver {
	case DriverJSON, DriverSQLite:
	default:
		return fmt.Errorf("invalid STORAGE_DRIVER %q (want json or sqlite)", c.StorageDriver)
	}

	switch c.FireTracker {
	case TrackerMemory, TrackerSQLite:
	default:
		return fmt.Errorf("invalid FIRE_TRACKER %q (want memory or sqlite)", c.FireTracker)
	}

	if c.NotifyTimeout <= 0 {
		return fmt.Errorf("NOTIFY_TIMEOUT must be positive")
	}
	if c.RetentionMonths < 1 {
		return fmt.Errorf("RETENTION_MONTHS must be at least 1")
	}
	return nil
}

// RequireToken reports a missing Telegram token.
func (c *Config) RequireToken() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	return nil
}

// IsAllowedChat reports whether chatID may use the bot. An empty allow-list
// admits everyone.
func (c *Config) IsAllowedChat(chatID int64) bool {
	if len(c.AllowedChatIDs) == 0 {
		return true
	}
	for _, id := range c.AllowedChatIDs {
		if id == chatID {
			return true
		}
	}
	return false
}

func (c *Config) APIEnabled() bool {
	return c.APIUsername != "" && c.APIPassword != ""
}

func (c *Config) CalDAVEnabled() bool {
	return c.CalDAVUsername != "" && c.CalDAVPassword != "" && c.CalDAVCalendar != ""
}

// ParseClock parses "HH:MM" in 24h form.
func ParseClock(s string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("bad hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("bad minute in %q", s)
	}
	return hour, minute, nil
}

// normalizeOffsets returns the offsets sorted from the earliest lead time to
// the due day itself.
func normalizeOffsets(in []int) ([]int, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("at least one offset is required")
	}
	seen := make(map[int]bool, len(in))
	out := make([]int, 0, len(in))
	for _, o := range in {
		if o < 0 {
			return nil, fmt.Errorf("offset %d is negative", o)
		}
		if o > 27 {
			return nil, fmt.Errorf("offset %d is longer than the shortest month", o)
		}
		if seen[o] {
			return nil, fmt.Errorf("offset %d listed twice", o)
		}
		seen[o] = true
		out = append(out, o)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out, nil
}
