// Package config reads service settings from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// CacheCfg configures the layout cache. An empty RedisAddr keeps it
// in-process only.
type CacheCfg struct {
	Enabled   bool
	RedisAddr string
	OpTimeout time.Duration
	LayoutTTL time.Duration
	BinTTL    time.Duration
	LocalSize int
}

type InvalidationCfg struct {
	Enabled bool
	Topic   string
	Brokers []string
	GroupID string
}

type MetricsCfg struct {
	Enabled bool
	Addr    string
	Path    string
}

type Config struct {
	Addr           string
	LogLevel       string
	LogConsole     bool
	LogSampleN     int
	WineAPIURL     string
	WineAPIToken   string
	WineAPITimeout time.Duration
	DefaultStore   int
	LayoutStrict   bool
	Cache          CacheCfg
	Invalidation   InvalidationCfg
	Metrics        MetricsCfg
}

// Load reads a .env file when one exists and then the environment.
func Load(files ...string) Config {
	_ = godotenv.Load(files...)
	return FromEnv()
}

func FromEnv() Config {
	return Config{
		Addr:           getenv("ADDR", ":8090"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		LogConsole:     getbool("LOG_CONSOLE", false),
		LogSampleN:     getint("LOG_SAMPLE_N", 0),
		WineAPIURL:     strings.TrimRight(getenv("WINE_API_URL", "http://localhost:5000/api"), "/"),
		WineAPIToken:   getenv("WINE_API_TOKEN", ""),
		WineAPITimeout: getduration("WINE_API_TIMEOUT", 10*time.Second),
		DefaultStore:   getint("DEFAULT_STORE_ID", 5),
		LayoutStrict:   getbool("LAYOUT_STRICT", false),
		Cache: CacheCfg{
			Enabled:   getbool("CACHE_ENABLED", false),
			RedisAddr: getenv("REDIS_ADDR", ""),
			OpTimeout: getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
			LayoutTTL: getduration("CACHE_TTL_LAYOUT", 5*time.Minute),
			BinTTL:    getduration("CACHE_TTL_BIN", time.Minute),
			LocalSize: getint("CACHE_LOCAL_SIZE", 256),
		},
		Invalidation: InvalidationCfg{
			Enabled: getbool("INVALIDATION_ENABLED", false),
			Topic:   getenv("KAFKA_TOPIC", "cellar-bottle-events"),
			Brokers: splitCSV(getenv("KAFKA_BROKERS", "localhost:9092")),
			GroupID: getenv("KAFKA_GROUP_ID", "cellar-rack"),
		},
		Metrics: MetricsCfg{
			Enabled: getbool("METRICS_ENABLED", false),
			Addr:    getenv("METRICS_ADDR", ":9090"),
			Path:    getenv("METRICS_PATH", "/metrics"),
		},
	}
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
