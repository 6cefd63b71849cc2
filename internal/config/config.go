package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every tunable for the bridge. It is populated once at startup
// from environment variables and never mutated afterwards.
type Config struct {
	// Alerts feed
	AlertsURL      string
	RegionType     string
	MessageType    string
	UserAgent      string
	Accept         string
	IgnoredEvents  []string
	PollInterval   time.Duration
	RequestTimeout time.Duration

	// Push dashboard
	DashboardBase   string
	LoginPath       string
	PushSendPath    string
	PushHistoryPath string
	Login           string
	Password        string
	CookieFile      string

	// Seen-alert ledger
	DatabaseURL   string
	LogDir        string
	RetentionDays int

	// Boundary simplification
	MaxPoints         int
	PreferredPoints   int
	SimplifyTolerance float64
	SimplifyRounds    int

	// Delivery pacing
	PushDelayMin   time.Duration
	PushDelayMax   time.Duration
	LongPauseEvery int
	LongPauseMin   time.Duration
	LongPauseMax   time.Duration

	MessageLimit int
	MetricsAddr  string
}

// Load reads configuration from environment variables, applying defaults
// where unset. Credentials may be empty here; the dashboard client reports
// them explicitly when a login is attempted.
func Load() (*Config, error) {
	pollInterval, err := envDuration("POLL_INTERVAL", time.Minute)
	if err != nil {
		return nil, err
	}
	requestTimeout, err := envDuration("REQUEST_TIMEOUT", 20*time.Second)
	if err != nil {
		return nil, err
	}

	retentionDays, err := envInt("RETENTION_DAYS", 30)
	if err != nil {
		return nil, err
	}
	maxPoints, err := envInt("MAX_POINTS", 300)
	if err != nil {
		return nil, err
	}
	preferredPoints, err := envInt("PREFERRED_POINTS", 250)
	if err != nil {
		return nil, err
	}
	tolerance, err := envFloat("SIMPLIFY_TOLERANCE", 0.001)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		AlertsURL:      envOrDefault("NWS_ALERTS_URL", "https://api.weather.gov/alerts/active"),
		RegionType:     envOrDefault("NWS_REGION_TYPE", "land"),
		MessageType:    envOrDefault("NWS_MESSAGE_TYPE", "alert"),
		UserAgent:      envOrDefault("NWS_USER_AGENT", "nwspush/1.0 (contact: ops@nwspush.dev)"),
		Accept:         "application/geo+json,application/json;q=0.9",
		IgnoredEvents:  envList("IGNORED_EVENTS", []string{"Small Craft Advisory", "Special Marine Warning"}),
		PollInterval:   pollInterval,
		RequestTimeout: requestTimeout,

		DashboardBase:   os.Getenv("DASHBOARD_BASE"),
		LoginPath:       envOrDefault("DASHBOARD_LOGIN_PATH", "/manage/"),
		PushSendPath:    envOrDefault("DASHBOARD_PUSH_SEND_PATH", "/manage/users/push/send/"),
		PushHistoryPath: envOrDefault("DASHBOARD_PUSH_HISTORY_PATH", "/manage/users/push/history/"),
		Login:           os.Getenv("DASHBOARD_LOGIN"),
		Password:        os.Getenv("DASHBOARD_PASSWORD"),
		CookieFile:      envOrDefault("COOKIE_JAR_FILE", "dashboard_cookies.json"),

		DatabaseURL:   os.Getenv("DATABASE_URL"),
		LogDir:        envOrDefault("LOG_DIR", "logs"),
		RetentionDays: retentionDays,

		MaxPoints:         maxPoints,
		PreferredPoints:   preferredPoints,
		SimplifyTolerance: tolerance,
		SimplifyRounds:    10,

		PushDelayMin:   1500 * time.Millisecond,
		PushDelayMax:   3 * time.Second,
		LongPauseEvery: 24,
		LongPauseMin:   time.Minute,
		LongPauseMax:   3 * time.Minute,

		MessageLimit: 250,
		MetricsAddr:  os.Getenv("METRICS_ADDR"),
	}

	if cfg.AlertsURL == "" {
		return nil, errors.New("NWS_ALERTS_URL is required")
	}
	if cfg.MaxPoints <= 0 {
		return nil, errors.New("MAX_POINTS must be positive")
	}
	if cfg.PreferredPoints > cfg.MaxPoints {
		return nil, errors.New("PREFERRED_POINTS cannot exceed MAX_POINTS")
	}
	if cfg.SimplifyTolerance <= 0 {
		return nil, errors.New("SIMPLIFY_TOLERANCE must be positive")
	}
	if cfg.RetentionDays <= 0 {
		return nil, errors.New("RETENTION_DAYS must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}
