// Package config loads process configuration from the environment.
//
// Every knob is an environment variable; there are no behavioral CLI
// flags. Defaults target the compose deployment the service grew up
// in, so a process started next to postgres_service and redis_service
// needs no configuration at all.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full process configuration. One struct serves every
// command; each reads only the slice it needs.
type Config struct {
	Redis   Redis
	DB      DB
	Index   Index
	Archive Archive
	Crawler Crawler
	Indexer Indexer
	Ranker  Ranker
	Server  Server
	Log     Log
}

// Redis locates the queue backend.
type Redis struct {
	Host string
	Port int
}

// Addr returns the host:port dial address.
func (r Redis) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// DB locates the metadata store. ConnStr, when set, wins over the
// individual fields.
type DB struct {
	ConnStr  string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
}

// DSN returns the connection string for pgx. A full DB_CONN_STR is
// passed through untouched; otherwise one is assembled from the parts.
func (d DB) DSN() string {
	if d.ConnStr != "" {
		return d.ConnStr
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s",
		d.Host, d.Port, d.Name, d.User, d.Password)
}

// Index locates the on-disk inverted index.
type Index struct {
	Path string
}

// Archive locates the WARC store.
type Archive struct {
	// Root is the directory archives live in.
	Root string
	// File is the archive basename inside Root.
	File string
}

// Crawler holds the crawl worker knobs.
type Crawler struct {
	SeedURL string
	Workers int
	// HostInterval is the per-host politeness window.
	HostInterval time.Duration
	// PollInterval is how long to sleep when the frontier is empty.
	PollInterval time.Duration
	// RateLimit caps fetches per second across all workers; zero means
	// unlimited.
	RateLimit       float64
	ExtractLinks    bool
	MaxLinksPerPage int
	// AllowedHosts and BlockedHosts are glob patterns over hostnames.
	// Empty AllowedHosts admits every host.
	AllowedHosts  []string
	BlockedHosts  []string
	FetchTimeout  time.Duration
	UserAgent     string
	FetchMaxBytes int64
}

// Indexer holds the index worker knobs.
type Indexer struct {
	Workers int
}

// Ranker holds the query-side knobs.
type Ranker struct {
	// CacheTTL bounds cached result lifetime; zero disables caching.
	CacheTTL time.Duration
}

// Server holds the HTTP listener knobs.
type Server struct {
	Host           string
	Port           int
	RequestTimeout time.Duration
}

// Log selects logger output.
type Log struct {
	Level  string
	Format string
}

const defaultUserAgent = "loupebot/1.0 (+https://github.com/loupelabs/loupe)"

// Load reads the environment and returns the validated configuration.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("REDIS_HOST", "redis_service")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("DB_CONN_STR", "")
	v.SetDefault("DB_HOST", "postgres_service")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_NAME", "search_engine")
	v.SetDefault("DB_USER", "admin")
	v.SetDefault("DB_PASS", "")
	v.SetDefault("ROCKSDB_PATH", "/shared_data/search_index.db")
	v.SetDefault("WARC_BASE_PATH", "/shared_data/")
	v.SetDefault("WARC_FILE", "crawl_archive.warc.gz")
	v.SetDefault("SEED_URL", "https://en.wikipedia.org/wiki/Main_Page")
	v.SetDefault("CRAWLER_WORKERS", 4)
	v.SetDefault("CRAWL_DELAY", "1s")
	v.SetDefault("QUEUE_POLL_INTERVAL", "5s")
	v.SetDefault("CRAWLER_RATE_LIMIT", 0.0)
	v.SetDefault("EXTRACT_LINKS", true)
	v.SetDefault("MAX_LINKS_PER_PAGE", 50)
	v.SetDefault("ALLOWED_HOSTS", "")
	v.SetDefault("BLOCKED_HOSTS", "")
	v.SetDefault("HTTP_TIMEOUT", "10s")
	v.SetDefault("USER_AGENT", defaultUserAgent)
	v.SetDefault("FETCH_MAX_BYTES", 16<<20)
	v.SetDefault("INDEXER_WORKERS", 1)
	v.SetDefault("CACHE_TTL", "60s")
	v.SetDefault("RANKER_HOST", "0.0.0.0")
	v.SetDefault("RANKER_PORT", 8080)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	cfg := &Config{
		Redis: Redis{
			Host: v.GetString("REDIS_HOST"),
			Port: v.GetInt("REDIS_PORT"),
		},
		DB: DB{
			ConnStr:  v.GetString("DB_CONN_STR"),
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetInt("DB_PORT"),
			Name:     v.GetString("DB_NAME"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASS"),
		},
		Index: Index{
			Path: v.GetString("ROCKSDB_PATH"),
		},
		Archive: Archive{
			Root: v.GetString("WARC_BASE_PATH"),
			File: v.GetString("WARC_FILE"),
		},
		Crawler: Crawler{
			SeedURL:         v.GetString("SEED_URL"),
			Workers:         v.GetInt("CRAWLER_WORKERS"),
			RateLimit:       v.GetFloat64("CRAWLER_RATE_LIMIT"),
			ExtractLinks:    v.GetBool("EXTRACT_LINKS"),
			MaxLinksPerPage: v.GetInt("MAX_LINKS_PER_PAGE"),
			AllowedHosts:    splitList(v.GetString("ALLOWED_HOSTS")),
			BlockedHosts:    splitList(v.GetString("BLOCKED_HOSTS")),
			UserAgent:       v.GetString("USER_AGENT"),
			FetchMaxBytes:   v.GetInt64("FETCH_MAX_BYTES"),
		},
		Indexer: Indexer{
			Workers: v.GetInt("INDEXER_WORKERS"),
		},
		Server: Server{
			Host: v.GetString("RANKER_HOST"),
			Port: v.GetInt("RANKER_PORT"),
		},
		Log: Log{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
	}

	var err error
	if cfg.Crawler.HostInterval, err = duration(v, "CRAWL_DELAY"); err != nil {
		return nil, err
	}
	if cfg.Crawler.PollInterval, err = duration(v, "QUEUE_POLL_INTERVAL"); err != nil {
		return nil, err
	}
	if cfg.Crawler.FetchTimeout, err = duration(v, "HTTP_TIMEOUT"); err != nil {
		return nil, err
	}
	if cfg.Ranker.CacheTTL, err = duration(v, "CACHE_TTL"); err != nil {
		return nil, err
	}
	if cfg.Server.RequestTimeout, err = duration(v, "REQUEST_TIMEOUT"); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// splitList parses a comma-separated env value into its non-blank
// entries. An unset value yields nil.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// duration reads key as a time.Duration. Bare numbers are taken as
// seconds; the compose files the service shipped with set CRAWL_DELAY=1.
func duration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if d, err := time.ParseDuration(raw); err == nil {
		return d, nil
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(n * float64(time.Second)), nil
	}
	return 0, fmt.Errorf("config: %s: cannot parse %q as a duration", key, raw)
}

// Validate rejects configurations no command could run with.
func (c *Config) Validate() error {
	if c.Redis.Host == "" {
		return fmt.Errorf("config: REDIS_HOST must not be empty")
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		return fmt.Errorf("config: REDIS_PORT %d out of range", c.Redis.Port)
	}
	if c.Index.Path == "" {
		return fmt.Errorf("config: ROCKSDB_PATH must not be empty")
	}
	if c.Archive.Root == "" {
		return fmt.Errorf("config: WARC_BASE_PATH must not be empty")
	}
	if c.Archive.File == "" {
		return fmt.Errorf("config: WARC_FILE must not be empty")
	}
	if c.Crawler.Workers < 1 {
		return fmt.Errorf("config: CRAWLER_WORKERS must be at least 1, got %d", c.Crawler.Workers)
	}
	if c.Indexer.Workers < 1 {
		return fmt.Errorf("config: INDEXER_WORKERS must be at least 1, got %d", c.Indexer.Workers)
	}
	if c.Crawler.RateLimit < 0 {
		return fmt.Errorf("config: CRAWLER_RATE_LIMIT must not be negative")
	}
	if c.Crawler.MaxLinksPerPage < 0 {
		return fmt.Errorf("config: MAX_LINKS_PER_PAGE must not be negative")
	}
	if c.Crawler.FetchMaxBytes < 1 {
		return fmt.Errorf("config: FETCH_MAX_BYTES must be positive")
	}
	if c.Ranker.CacheTTL < 0 {
		return fmt.Errorf("config: CACHE_TTL must not be negative")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: RANKER_PORT %d out of range", c.Server.Port)
	}
	return nil
}
