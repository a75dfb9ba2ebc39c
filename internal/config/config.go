package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
	"github.com/magiconair/properties"
)

// Sink names accepted in SINKS and on the command line.
const (
	SinkCSV      = "csv"
	SinkPostgres = "postgres"
	SinkKafka    = "kafka"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Sinks lists the enabled sink names in write order.
	Sinks []string

	CSVPath string

	// Dedup filter state and default sizing. FilterSizing holds the
	// per-sink values, falling back to these defaults.
	FilterStateDir          string
	FilterExpectedEntries   uint
	FilterFalsePositiveRate float64
	FilterSizing            map[string]FilterSizing

	DatabaseURL     string
	DBTable         string
	DBMaxOpenConns  int
	DBPropertiesSrc string

	KafkaBrokers []string
	KafkaTopic   string

	// Upstream API.
	OpenMeteoURL     string
	OpenMeteoTimeout time.Duration
	OpenMeteoRetries int

	// Scheduled runs.
	LocationsFile string
	FetchInterval time.Duration
	LookbackDays  int
}

// FilterSizing is the capacity and target false-positive rate of one sink's
// dedup filter.
type FilterSizing struct {
	ExpectedEntries   uint
	FalsePositiveRate float64
}

// Load reads configuration from environment variables, applying defaults where
// unset. A .env file in the working directory is loaded first when present;
// variables already set in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	openMeteoTimeout, err := parsePositiveDuration("OPEN_METEO_TIMEOUT", "15s")
	if err != nil {
		return nil, err
	}
	fetchInterval, err := parsePositiveDuration("FETCH_INTERVAL", "1h")
	if err != nil {
		return nil, err
	}
	if fetchInterval < time.Minute {
		return nil, errors.New("invalid FETCH_INTERVAL: must be at least 1m")
	}
	retries, err := parseInt("OPEN_METEO_RETRIES", "3", 0)
	if err != nil {
		return nil, err
	}
	lookback, err := parseInt("LOOKBACK_DAYS", "7", 0)
	if err != nil {
		return nil, err
	}
	maxConns, err := parseInt("DB_MAX_OPEN_CONNS", "10", 1)
	if err != nil {
		return nil, err
	}
	defaults, err := parseFilterSizing("FILTER_EXPECTED_ENTRIES", "100000", "FILTER_FALSE_POSITIVE_RATE", "0.001")
	if err != nil {
		return nil, err
	}
	sizing := make(map[string]FilterSizing)
	for _, sink := range []string{SinkCSV, SinkPostgres, SinkKafka} {
		prefix := "FILTER_" + strings.ToUpper(sink) + "_"
		fs, err := parseFilterSizing(
			prefix+"EXPECTED_ENTRIES", strconv.FormatUint(uint64(defaults.ExpectedEntries), 10),
			prefix+"FALSE_POSITIVE_RATE", strconv.FormatFloat(defaults.FalsePositiveRate, 'g', -1, 64),
		)
		if err != nil {
			return nil, err
		}
		sizing[sink] = fs
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		Sinks:   ParseSinks(sharedcfg.EnvOrDefault("SINKS", SinkCSV)),
		CSVPath: sharedcfg.EnvOrDefault("CSV_PATH", "data/weather.csv"),

		FilterStateDir:          sharedcfg.EnvOrDefault("FILTER_STATE_DIR", "data/state"),
		FilterExpectedEntries:   defaults.ExpectedEntries,
		FilterFalsePositiveRate: defaults.FalsePositiveRate,
		FilterSizing:            sizing,

		DatabaseURL:    os.Getenv("DATABASE_URL"),
		DBTable:        sharedcfg.EnvOrDefault("DB_TABLE", "final_records"),
		DBMaxOpenConns: maxConns,

		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "weather-daily-summaries"),

		OpenMeteoURL:     sharedcfg.EnvOrDefault("OPEN_METEO_URL", "https://api.open-meteo.com/v1/forecast"),
		OpenMeteoTimeout: openMeteoTimeout,
		OpenMeteoRetries: retries,

		LocationsFile: sharedcfg.EnvOrDefault("LOCATIONS_FILE", "locations.yaml"),
		FetchInterval: fetchInterval,
		LookbackDays:  lookback,
	}

	if path := os.Getenv("DB_PROPERTIES_FILE"); path != "" {
		if err := cfg.applyDBProperties(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every enabled sink has what it needs. It is called by
// Load and again after command-line flags override Sinks.
func (c *Config) Validate() error {
	if len(c.Sinks) == 0 {
		return errors.New("SINKS is required")
	}
	for _, s := range c.Sinks {
		switch s {
		case SinkCSV:
			if c.CSVPath == "" {
				return errors.New("CSV_PATH is required for the csv sink")
			}
		case SinkPostgres:
			if c.DatabaseURL == "" {
				return errors.New("DATABASE_URL or DB_PROPERTIES_FILE is required for the postgres sink")
			}
			if c.DBTable == "" {
				return errors.New("DB_TABLE is required for the postgres sink")
			}
		case SinkKafka:
			if len(c.KafkaBrokers) == 0 {
				return errors.New("KAFKA_BROKERS is required for the kafka sink")
			}
			if c.KafkaTopic == "" {
				return errors.New("KAFKA_TOPIC is required for the kafka sink")
			}
		default:
			return fmt.Errorf("unknown sink %q in SINKS", s)
		}
	}
	return nil
}

// FilterFor returns the filter sizing for sink, or the defaults when the sink
// has no entry.
func (c *Config) FilterFor(sink string) FilterSizing {
	if fs, ok := c.FilterSizing[sink]; ok {
		return fs
	}
	return FilterSizing{ExpectedEntries: c.FilterExpectedEntries, FalsePositiveRate: c.FilterFalsePositiveRate}
}

// ParseSinks splits a comma-separated sink list, dropping blanks and repeats.
func ParseSinks(s string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(s, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// applyDBProperties reads db.url, db.user, db.password and db.maximumPoolSize
// from a Java-style properties file. db.url may be a JDBC URL.
func (c *Config) applyDBProperties(path string) error {
	p, err := properties.LoadFile(path, properties.UTF8)
	if err != nil {
		return fmt.Errorf("load DB_PROPERTIES_FILE: %w", err)
	}
	dsn, err := postgresDSN(p.GetString("db.url", ""), p.GetString("db.user", ""), p.GetString("db.password", ""))
	if err != nil {
		return fmt.Errorf("DB_PROPERTIES_FILE %s: %w", path, err)
	}
	c.DatabaseURL = dsn
	c.DBMaxOpenConns = p.GetInt("db.maximumPoolSize", c.DBMaxOpenConns)
	c.DBPropertiesSrc = path
	return nil
}

func postgresDSN(rawURL, user, password string) (string, error) {
	if rawURL == "" {
		return "", errors.New("db.url is required")
	}
	u, err := url.Parse(strings.TrimPrefix(rawURL, "jdbc:"))
	if err != nil {
		return "", fmt.Errorf("invalid db.url: %w", err)
	}
	if u.Scheme == "postgresql" {
		u.Scheme = "postgres"
	}
	if u.Scheme != "postgres" {
		return "", fmt.Errorf("unsupported db.url scheme %q", u.Scheme)
	}
	if user != "" {
		if password != "" {
			u.User = url.UserPassword(user, password)
		} else {
			u.User = url.User(user)
		}
	}
	return u.String(), nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

func parseInt(key, def string, minimum int) (int, error) {
	n, err := strconv.Atoi(sharedcfg.EnvOrDefault(key, def))
	if err != nil || n < minimum {
		return 0, fmt.Errorf("invalid %s: must be an integer >= %d", key, minimum)
	}
	return n, nil
}

func parseFilterSizing(entriesKey, entriesDef, rateKey, rateDef string) (FilterSizing, error) {
	expected, err := parseInt(entriesKey, entriesDef, 1)
	if err != nil {
		return FilterSizing{}, err
	}
	fpp, err := strconv.ParseFloat(sharedcfg.EnvOrDefault(rateKey, rateDef), 64)
	if err != nil || fpp <= 0 || fpp >= 1 {
		return FilterSizing{}, fmt.Errorf("invalid %s: must be between 0 and 1", rateKey)
	}
	return FilterSizing{ExpectedEntries: uint(expected), FalsePositiveRate: fpp}, nil
}
