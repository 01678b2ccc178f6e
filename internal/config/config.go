package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is read once at startup and treated as immutable afterwards.
// Both the bot and the worker load the same surface; each uses its slice of it.
type Config struct {
	BotToken  string
	RedisAddr string
	DataDir   string

	MaxFileSize          int64         // bytes; uploads above this are rejected up front
	WatermarkText        string        // empty disables the overlay
	MaxConcurrentEncodes int           // ffmpeg processes system-wide
	EncodeTimeout        time.Duration // per encode invocation; expired process is killed
	ProbeTimeout         time.Duration

	SessionExpiry time.Duration
	SweepInterval time.Duration

	Concurrency int // asynq handler goroutines
	DailyMax    int // outputs per user per day; admins bypass

	DefaultQuality    string
	DefaultResolution string
	DefaultFormat     string

	AdminIDs []int64

	HealthAddr string
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func mustInt64(k string, def int64) int64 {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func mustSeconds(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return def
}

func parseAdminIDs(s string) []int64 {
	var ids []int64
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if id, err := strconv.ParseInt(p, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// Load builds the config from the environment. Call godotenv.Load first in main.
func Load() Config {
	return Config{
		BotToken:  os.Getenv("BOT_TOKEN"),
		RedisAddr: getenv("REDIS_ADDR", "localhost:6379"),
		DataDir:   getenv("DATA_DIR", "/data"),

		MaxFileSize:          mustInt64("MAX_FILE_SIZE", 2<<30),
		WatermarkText:        getenv("WATERMARK_TEXT", "@YourBrand"),
		MaxConcurrentEncodes: mustInt("MAX_CONCURRENT_PROCESSES", 3),
		EncodeTimeout:        mustSeconds("ENCODE_TIMEOUT", 30*time.Minute),
		ProbeTimeout:         mustSeconds("PROBE_TIMEOUT", 30*time.Second),

		SessionExpiry: mustSeconds("SESSION_TIMEOUT", time.Hour),
		SweepInterval: mustSeconds("SWEEP_INTERVAL", time.Hour),

		Concurrency: mustInt("CONCURRENCY", 2),
		DailyMax:    mustInt("DAILY_MAX", 200),

		DefaultQuality:    getenv("DEFAULT_QUALITY", "fast"),
		DefaultResolution: getenv("DEFAULT_RESOLUTION", "720p"),
		DefaultFormat:     getenv("DEFAULT_FORMAT", "mp4"),

		AdminIDs: parseAdminIDs(os.Getenv("ADMIN_IDS")),

		HealthAddr: getenv("HEALTH_ADDR", ":8080"),
	}
}

// IsAdmin reports whether the given submitter is in ADMIN_IDS.
func (c Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}
