package app

import (
	"fmt"
	"time"

	"invitetrack/cmd/internal/scheduler"
	"invitetrack/cmd/internal/telegram"
	"invitetrack/cmd/internal/tracker"
)

// Store kinds.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	Log LogConfig

	BotToken       string
	APIURL         string
	PollTimeout    time.Duration
	GatewayRPS     float64
	GatewayRetries int

	// Store is one of StoreMemory, StoreSQLite, StorePostgres.
	Store      string
	SQLitePath string
	DB         DBConfig

	InviterKey        string
	MinMemberAge      time.Duration
	PrivateLinkTTL    time.Duration
	ReportConcurrency int
	MembershipTimeout time.Duration

	DailyReportAt string
	Timezone      string
	ReportChats   []int64
}

// LogConfig controls logger output.
type LogConfig struct {
	Level string
	// Format is "json" or "text".
	Format string
	// File, when set, receives a rotated copy of every record.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	dbURL := EnvString("INVITETRACK_DATABASE_URL", "")
	defStore := StoreMemory
	if dbURL != "" {
		defStore = StorePostgres
	}

	return Config{
		HTTPAddr: EnvString("INVITETRACK_HTTP_ADDR", "0.0.0.0:8080"),

		ReadHeaderTimeout: EnvDuration("INVITETRACK_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("INVITETRACK_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("INVITETRACK_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("INVITETRACK_HTTP_IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    EnvInt("INVITETRACK_HTTP_MAX_HEADER_BYTES", 1<<20),

		Log: LogConfig{
			Level:      EnvString("INVITETRACK_LOG_LEVEL", "info"),
			Format:     EnvString("INVITETRACK_LOG_FORMAT", "json"),
			File:       EnvString("INVITETRACK_LOG_FILE", ""),
			MaxSizeMB:  EnvInt("INVITETRACK_LOG_MAX_SIZE_MB", 100),
			MaxBackups: EnvInt("INVITETRACK_LOG_MAX_BACKUPS", 5),
			MaxAgeDays: EnvInt("INVITETRACK_LOG_MAX_AGE_DAYS", 28),
		},

		BotToken:       EnvString("INVITETRACK_BOT_TOKEN", ""),
		APIURL:         EnvString("INVITETRACK_API_URL", telegram.DefaultAPIURL),
		PollTimeout:    EnvDuration("INVITETRACK_POLL_TIMEOUT", 30*time.Second),
		GatewayRPS:     EnvFloat("INVITETRACK_GATEWAY_RPS", 25),
		GatewayRetries: EnvInt("INVITETRACK_GATEWAY_RETRIES", 3),

		Store:      EnvString("INVITETRACK_STORE", defStore),
		SQLitePath: EnvString("INVITETRACK_SQLITE_PATH", "invites.db"),
		DB: DBConfig{
			URL:             dbURL,
			MaxConns:        EnvInt32("INVITETRACK_DB_MAX_CONNS", 10),
			MinConns:        EnvInt32("INVITETRACK_DB_MIN_CONNS", 0),
			MaxConnLifetime: EnvDuration("INVITETRACK_DB_MAX_CONN_LIFETIME", time.Hour),
			ConnectTimeout:  EnvDuration("INVITETRACK_DB_CONNECT_TIMEOUT", 3*time.Second),
		},

		InviterKey:        EnvString("INVITETRACK_INVITER_KEY", string(tracker.KeyByID)),
		MinMemberAge:      EnvDuration("INVITETRACK_MIN_MEMBER_AGE", 0),
		PrivateLinkTTL:    EnvDuration("INVITETRACK_PRIVATE_LINK_TTL", 7*24*time.Hour),
		ReportConcurrency: EnvInt("INVITETRACK_REPORT_CONCURRENCY", 8),
		MembershipTimeout: EnvDuration("INVITETRACK_MEMBERSHIP_TIMEOUT", 5*time.Second),

		DailyReportAt: EnvString("INVITETRACK_DAILY_REPORT_AT", "00:00"),
		Timezone:      EnvString("INVITETRACK_TIMEZONE", "UTC"),
		ReportChats:   EnvInt64List("INVITETRACK_REPORT_CHATS"),
	}
}

// settings are the parsed forms of Config fields that can be malformed.
type settings struct {
	policy  tracker.KeyPolicy
	dailyAt scheduler.Clock
	loc     *time.Location
}

// validate checks Config and parses its structured fields.
func (c Config) validate() (settings, error) {
	var s settings

	if c.BotToken == "" {
		return s, fmt.Errorf("config: INVITETRACK_BOT_TOKEN is required")
	}
	switch c.Store {
	case StoreMemory:
	case StoreSQLite:
		if c.SQLitePath == "" {
			return s, fmt.Errorf("config: INVITETRACK_SQLITE_PATH is required for the sqlite store")
		}
	case StorePostgres:
		if c.DB.URL == "" {
			return s, fmt.Errorf("config: INVITETRACK_DATABASE_URL is required for the postgres store")
		}
	default:
		return s, fmt.Errorf("config: unknown INVITETRACK_STORE %q", c.Store)
	}

	var err error
	if s.policy, err = tracker.ParseKeyPolicy(c.InviterKey); err != nil {
		return s, fmt.Errorf("config: INVITETRACK_INVITER_KEY: %w", err)
	}
	if s.dailyAt, err = scheduler.ParseClock(c.DailyReportAt); err != nil {
		return s, fmt.Errorf("config: INVITETRACK_DAILY_REPORT_AT: %w", err)
	}
	if s.loc, err = time.LoadLocation(c.Timezone); err != nil {
		return s, fmt.Errorf("config: INVITETRACK_TIMEZONE: %w", err)
	}
	return s, nil
}
