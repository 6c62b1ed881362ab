// Package config provides functionality for managing configuration options
// for the application using command-line flags, a JSON file, a .env file and
// environment variables.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Options holds the configuration values for the application.
type Options struct {
	// Port defines the server's listening address (ip:port).
	Port string

	// DatabaseDSN holds the database connection string. Empty selects the in-memory store.
	DatabaseDSN string

	// Config is the path to the Config file.
	Config string

	LogLevel string

	// JWTSecret signs session tokens.
	JWTSecret  string
	SessionTTL time.Duration

	// SettlementDelay is how long the simulated payment takes.
	SettlementDelay time.Duration

	// RedisURL selects the Redis session store when set.
	RedisURL string

	// NATSURL enables event publishing to NATS when set.
	NATSURL           string
	NATSSubjectPrefix string

	CleanupInterval  time.Duration
	PendingRetention time.Duration

	CORSOrigins []string
}

// fileOptions is the JSON config file layout. Durations are Go duration strings.
type fileOptions struct {
	Port              *string  `json:"address"`
	DatabaseDSN       *string  `json:"database_dsn"`
	LogLevel          *string  `json:"log_level"`
	JWTSecret         *string  `json:"jwt_secret"`
	SessionTTL        *string  `json:"session_ttl"`
	SettlementDelay   *string  `json:"settlement_delay"`
	RedisURL          *string  `json:"redis_url"`
	NATSURL           *string  `json:"nats_url"`
	NATSSubjectPrefix *string  `json:"nats_subject_prefix"`
	CleanupInterval   *string  `json:"cleanup_interval"`
	PendingRetention  *string  `json:"pending_retention"`
	CORSOrigins       []string `json:"cors_origins"`
}

func defaults() *Options {
	return &Options{
		Port:              "localhost:8080",
		Config:            "config.json",
		LogLevel:          "info",
		SessionTTL:        24 * time.Hour,
		SettlementDelay:   2 * time.Second,
		NATSSubjectPrefix: "digitalpass",
		CleanupInterval:   time.Hour,
		PendingRetention:  7 * 24 * time.Hour,
		CORSOrigins:       []string{"http://localhost:5173"},
	}
}

// Parse loads .env, then parses flags, the config file and environment
// variables from the running process. Errors are fatal.
func Parse() *Options {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("error while loading .env: %v", err)
	}
	options, err := ParseArgs(os.Args[1:], os.Getenv)
	if err != nil {
		log.Fatalf("%v", err)
	}
	return options
}

// ParseArgs builds Options from args and getenv. Precedence, lowest first:
// defaults, flags, config file, environment.
func ParseArgs(args []string, getenv func(string) string) (*Options, error) {
	options := defaults()

	fset := flag.NewFlagSet("digitalpass", flag.ContinueOnError)
	fset.StringVar(&options.Port, "a", options.Port, "run on ip:port server")
	fset.StringVar(&options.DatabaseDSN, "d", "", "db address")
	fset.StringVar(&options.Config, "config", options.Config, "path to config file")
	fset.StringVar(&options.Config, "c", options.Config, "path to config file (shorthand)")
	fset.StringVar(&options.LogLevel, "l", options.LogLevel, "log level")
	fset.StringVar(&options.JWTSecret, "s", "", "session token signing secret")
	fset.DurationVar(&options.SessionTTL, "session-ttl", options.SessionTTL, "session lifetime")
	fset.DurationVar(&options.SettlementDelay, "settlement-delay", options.SettlementDelay, "simulated payment duration")
	fset.StringVar(&options.RedisURL, "redis", "", "redis URL for sessions")
	fset.StringVar(&options.NATSURL, "nats", "", "nats URL for events")
	if err := fset.Parse(args); err != nil {
		return nil, err
	}

	if configPath := getenv("CONFIG"); configPath != "" {
		options.Config = configPath
	}

	if options.Config != "" {
		if _, err := os.Stat(options.Config); err == nil {
			data, err := os.ReadFile(options.Config)
			if err != nil {
				return nil, fmt.Errorf("error while reading config file: %w", err)
			}
			var fo fileOptions
			if err := json.Unmarshal(data, &fo); err != nil {
				return nil, fmt.Errorf("error while parsing config file: %w", err)
			}
			if err := fo.apply(options); err != nil {
				return nil, fmt.Errorf("error while parsing config file: %w", err)
			}
		}
	}

	if err := applyEnv(options, getenv); err != nil {
		return nil, err
	}
	return options, nil
}

func (fo fileOptions) apply(o *Options) error {
	setString(&o.Port, fo.Port)
	setString(&o.DatabaseDSN, fo.DatabaseDSN)
	setString(&o.LogLevel, fo.LogLevel)
	setString(&o.JWTSecret, fo.JWTSecret)
	setString(&o.RedisURL, fo.RedisURL)
	setString(&o.NATSURL, fo.NATSURL)
	setString(&o.NATSSubjectPrefix, fo.NATSSubjectPrefix)
	if fo.CORSOrigins != nil {
		o.CORSOrigins = fo.CORSOrigins
	}
	for _, d := range []struct {
		name string
		src  *string
		dst  *time.Duration
	}{
		{"session_ttl", fo.SessionTTL, &o.SessionTTL},
		{"settlement_delay", fo.SettlementDelay, &o.SettlementDelay},
		{"cleanup_interval", fo.CleanupInterval, &o.CleanupInterval},
		{"pending_retention", fo.PendingRetention, &o.PendingRetention},
	} {
		if d.src == nil {
			continue
		}
		v, err := time.ParseDuration(*d.src)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = v
	}
	return nil
}

func applyEnv(o *Options, getenv func(string) string) error {
	for env, dst := range map[string]*string{
		"SERVER_ADDRESS":      &o.Port,
		"DATABASE_DSN":        &o.DatabaseDSN,
		"LOG_LEVEL":           &o.LogLevel,
		"JWT_SECRET":          &o.JWTSecret,
		"REDIS_URL":           &o.RedisURL,
		"NATS_URL":            &o.NATSURL,
		"NATS_SUBJECT_PREFIX": &o.NATSSubjectPrefix,
	} {
		if v := getenv(env); v != "" {
			*dst = v
		}
	}
	for env, dst := range map[string]*time.Duration{
		"SESSION_TTL":       &o.SessionTTL,
		"SETTLEMENT_DELAY":  &o.SettlementDelay,
		"CLEANUP_INTERVAL":  &o.CleanupInterval,
		"PENDING_RETENTION": &o.PendingRetention,
	} {
		v := getenv(env)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", env, err)
		}
		*dst = d
	}
	if v := getenv("CORS_ORIGINS"); v != "" {
		o.CORSOrigins = splitList(v)
	}
	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
