package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// DBConfig holds the connection parameters loaded from res/config.json,
// with POSTGRES_PASSWORD able to override the file's db_password.
type DBConfig struct {
	LazyTime int // seconds between poller ticks
	DBHost   string
	DBPort   int
	DBName   string
	DBUser   string
	DBPass   string
}

// fileConfig mirrors the on-disk shape of res/config.json.
type fileConfig struct {
	LazyTime   int    `json:"lazy_time"`
	DBAddress  string `json:"db_address"`
	DBPort     int    `json:"db_port"`
	DBName     string `json:"db_name"`
	DBUser     string `json:"db_user"`
	DBPassword string `json:"db_password"`
}

// unsetDriverEnv clears libpq environment variables so they cannot silently
// override the values read from the config file.
func unsetDriverEnv() {
	for _, k := range []string{"PGHOST", "PGPORT", "PGDATABASE", "PGUSER", "PGPASSWORD", "PGSERVICE"} {
		_ = os.Unsetenv(k)
	}
}

// LoadDBConfig reads res/config.json and applies the POSTGRES_PASSWORD
// override. Errors (missing file, malformed JSON, missing keys) are
// returned rather than panicking; the caller decides how fatal to treat them.
func LoadDBConfig(path string) (*DBConfig, error) {
	unsetDriverEnv()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if fc.DBAddress == "" || fc.DBName == "" || fc.DBUser == "" {
		return nil, fmt.Errorf("config: %s missing required db_address/db_name/db_user", path)
	}

	cfg := &DBConfig{
		LazyTime: fc.LazyTime,
		DBHost:   fc.DBAddress,
		DBPort:   fc.DBPort,
		DBName:   fc.DBName,
		DBUser:   fc.DBUser,
		DBPass:   fc.DBPassword,
	}

	if pw, ok := os.LookupEnv("POSTGRES_PASSWORD"); ok {
		cfg.DBPass = pw
	}

	return cfg, nil
}

// BusConfig describes the pub/sub bus connection and the two channels the
// Command Reactor uses.
type BusConfig struct {
	Addr       string
	Password   string
	DB         int
	InChannel  string
	OutChannel string
	MinBackoff int // ms
	MaxBackoff int // ms
}

// LoadBusConfig builds a BusConfig from REDIS_URL/RSS_IN_CHANNEL/
// REDIS_OUT_CHANNEL, falling back to the documented defaults.
func LoadBusConfig() (*BusConfig, error) {
	raw := getEnv("REDIS_URL", "redis://redis:6379/0")
	addr, password, db, err := ParseBusURL(raw)
	if err != nil {
		return nil, fmt.Errorf("config: bad REDIS_URL %q: %w", raw, err)
	}

	return &BusConfig{
		Addr:       addr,
		Password:   password,
		DB:         db,
		InChannel:  getEnv("RSS_IN_CHANNEL", "rss_news_fetch_requests"),
		OutChannel: getEnv("REDIS_OUT_CHANNEL", "news_fetch_results"),
		MinBackoff: getEnvInt("REDIS_RECONNECT_MIN_MS", 500),
		MaxBackoff: getEnvInt("REDIS_RECONNECT_MAX_MS", 5000),
	}, nil
}

func getEnvInt(key string, defaultValue int) int {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}

// ParseBusURL parses scheme://[password@]host[:port][/db] with scheme in
// {redis, rediss}. TLS (rediss) is accepted syntactically but not acted on --
// the bus transport never dials TLS, per the single-process, no-TLS design.
// Defaults: host 127.0.0.1, port 6379, db 0.
func ParseBusURL(raw string) (addr string, password string, db int, err error) {
	u, perr := url.Parse(raw)
	if perr != nil || u.Scheme == "" {
		return "127.0.0.1:6379", "", 0, nil
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return "", "", 0, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		host = "127.0.0.1"
	}
	port := u.Port()
	if port == "" {
		port = "6379"
	}
	addr = host + ":" + port

	if u.User != nil {
		if pw, ok := u.User.Password(); ok {
			password = pw
		} else {
			// A bare userinfo (redis://secret@host) is the password itself.
			password = u.User.Username()
		}
	}

	db = 0
	if path := strings.TrimPrefix(u.Path, "/"); path != "" {
		if n, e := strconv.Atoi(path); e == nil {
			db = n
		}
	}

	return addr, password, db, nil
}

// ClassifierConfig configures the Topic Classifier's LLM scorer.
type ClassifierConfig struct {
	Endpoint string // OpenAI-compatible chat completions base URL
	Model    string
}

// LoadClassifierConfig resolves LLM_MODEL_PATH: if it looks like a URL it is
// used as the endpoint directly, otherwise it is treated as a model name and
// the endpoint falls back to a local llama.cpp-server default.
func LoadClassifierConfig() *ClassifierConfig {
	raw := getEnv("LLM_MODEL_PATH", "")
	cfg := &ClassifierConfig{
		Endpoint: "http://127.0.0.1:8080/v1",
		Model:    "local-model",
	}
	if raw == "" {
		return cfg
	}
	if u, err := url.Parse(raw); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		cfg.Endpoint = raw
		return cfg
	}
	cfg.Model = raw
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
