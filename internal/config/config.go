package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "AUCTION"

// Config holds everything main needs to wire the service
type Config struct {
	ServerAddr string
	LogLevel   string
	LogFormat  string
	SeedDemo   bool

	Storage    string
	SQLitePath string

	Notifier      string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisStream   string

	CommitRetries     int
	SchedulerInterval time.Duration
	BidRateLimit      float64
	BidRateBurst      int
}

// Load parses args as flags and overlays AUCTION_* environment variables.
// Flags set explicitly win over the environment.
func Load(args []string) (Config, error) {
	fs := pflag.NewFlagSet("auction-engine", pflag.ContinueOnError)

	// server config
	fs.String("server-addr", ":8080", "HTTP listen address")
	fs.String("log-level", "info", "logrus level")
	fs.String("log-format", "json", "json or text")
	fs.Bool("seed-demo", false, "create a demo auction on startup")

	// storage config
	fs.String("storage", "memory", "memory or sqlite")
	fs.String("sqlite-path", "auctions.db", "SQLite database file")

	// notifier config
	fs.String("notifier", "log", "log or redis")
	fs.String("redis-addr", "localhost:6379", "")
	fs.String("redis-password", "", "")
	fs.Int("redis-db", 0, "")
	fs.String("redis-stream", "auction-events", "")

	// engine config
	fs.Int("commit-retries", 3, "re-resolve attempts after a commit conflict")
	fs.Duration("scheduler-interval", time.Second, "how often auctions are opened and closed")
	fs.Float64("bid-rate-limit", 5, "bids per second per bidder, 0 disables")
	fs.Int("bid-rate-burst", 10, "")

	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return Config{
		ServerAddr:        v.GetString("server-addr"),
		LogLevel:          v.GetString("log-level"),
		LogFormat:         v.GetString("log-format"),
		SeedDemo:          v.GetBool("seed-demo"),
		Storage:           v.GetString("storage"),
		SQLitePath:        v.GetString("sqlite-path"),
		Notifier:          v.GetString("notifier"),
		RedisAddr:         v.GetString("redis-addr"),
		RedisPassword:     v.GetString("redis-password"),
		RedisDB:           v.GetInt("redis-db"),
		RedisStream:       v.GetString("redis-stream"),
		CommitRetries:     v.GetInt("commit-retries"),
		SchedulerInterval: v.GetDuration("scheduler-interval"),
		BidRateLimit:      v.GetFloat64("bid-rate-limit"),
		BidRateBurst:      v.GetInt("bid-rate-burst"),
	}, nil
}

// Validate reports every invalid setting at once
func (c Config) Validate() error {
	var errs []error
	if c.ServerAddr == "" {
		errs = append(errs, errors.New("server-addr is required"))
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		errs = append(errs, fmt.Errorf("unknown log-format %q", c.LogFormat))
	}
	switch c.Storage {
	case "memory":
	case "sqlite":
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("sqlite-path is required for sqlite storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage %q", c.Storage))
	}
	switch c.Notifier {
	case "log":
	case "redis":
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redis-addr is required for the redis notifier"))
		}
		if c.RedisStream == "" {
			errs = append(errs, errors.New("redis-stream is required for the redis notifier"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown notifier %q", c.Notifier))
	}
	if c.CommitRetries < 0 {
		errs = append(errs, errors.New("commit-retries cannot be negative"))
	}
	if c.SchedulerInterval <= 0 {
		errs = append(errs, errors.New("scheduler-interval must be positive"))
	}
	if c.BidRateLimit < 0 || (c.BidRateLimit > 0 && c.BidRateBurst < 1) {
		errs = append(errs, errors.New("bid-rate-limit needs a non-negative rate and a burst of at least 1"))
	}
	return errors.Join(errs...)
}
