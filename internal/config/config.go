package config

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds runtime configuration for the dashboard service.
type Config struct {
	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	LogLevel  string
	LogFormat string

	UpstreamURL              string
	UpstreamHandshakeTimeout time.Duration
	ReconnectInitial         time.Duration
	ReconnectMax             time.Duration
	ReconnectMaxElapsed      time.Duration

	RefreshInterval   time.Duration
	PlotWindow        int
	HistoryMaxPoints  int
	TemperatureProbes []string
	PressureChannels  []string

	CookieHashKey string
	CookieSecure  bool

	ArchiveEnabled      bool
	ArchiveDriver       string
	ArchiveSQLitePath   string
	ArchiveHost         string
	ArchivePort         int
	ArchiveUser         string
	ArchivePassword     string
	ArchiveName         string
	ArchiveConnTimeout  time.Duration
	ArchiveQueryTimeout time.Duration
	ArchivePageSize     int

	SimListenAddr     string
	SimStreamInterval time.Duration
}

// DefaultTemperatureProbes are the resistance-bridge probes shown on every page.
var DefaultTemperatureProbes = []string{"t_still", "t_1", "t_2", "t_3", "t_4", "t_5", "t_6", "t_7", "t_8"}

// DefaultPressureChannels are the GHS pressure gauges.
var DefaultPressureChannels = []string{"p_1", "p_2", "p_3", "p_4", "p_5", "p_6", "p_7", "p_8"}

// FromEnv loads configuration from environment variables with sensible defaults.
func FromEnv() Config {
	loadEnvFiles()

	return Config{
		ListenAddr:               envString("APP_LISTEN_ADDR", ":8080"),
		ReadTimeout:              envDuration("APP_READ_TIMEOUT_SEC", 10, time.Second),
		WriteTimeout:             envDuration("APP_WRITE_TIMEOUT_SEC", 20, time.Second),
		ShutdownTimeout:          envDuration("APP_SHUTDOWN_TIMEOUT_SEC", 10, time.Second),
		LogLevel:                 envString("APP_LOG_LEVEL", "info"),
		LogFormat:                envString("APP_LOG_FORMAT", "json"),
		UpstreamURL:              envString("APP_UPSTREAM_URL", "ws://127.0.0.1:8081/browser"),
		UpstreamHandshakeTimeout: envDuration("APP_UPSTREAM_HANDSHAKE_TIMEOUT_SEC", 5, time.Second),
		ReconnectInitial:         envDuration("APP_RECONNECT_INITIAL_MS", 500, time.Millisecond),
		ReconnectMax:             envDuration("APP_RECONNECT_MAX_SEC", 30, time.Second),
		ReconnectMaxElapsed:      envDuration("APP_RECONNECT_MAX_ELAPSED_SEC", 0, time.Second),
		RefreshInterval:          envDuration("APP_REFRESH_INTERVAL_SEC", 5, time.Second),
		PlotWindow:               envInt("APP_PLOT_WINDOW", 20),
		HistoryMaxPoints:         envInt("APP_HISTORY_MAX_POINTS", 4320),
		TemperatureProbes:        envList("APP_TEMPERATURE_PROBES", DefaultTemperatureProbes),
		PressureChannels:         envList("APP_PRESSURE_CHANNELS", DefaultPressureChannels),
		CookieHashKey:            envString("APP_COOKIE_HASH_KEY", ""),
		CookieSecure:             envBool("APP_COOKIE_SECURE", false),
		ArchiveEnabled:           envBool("APP_ARCHIVE_ENABLED", false),
		ArchiveDriver:            strings.ToLower(envString("APP_ARCHIVE_DRIVER", "sqlite")),
		ArchiveSQLitePath:        envString("APP_ARCHIVE_SQLITE_PATH", "dashboard.db"),
		ArchiveHost:              envString("APP_ARCHIVE_HOST", "127.0.0.1"),
		ArchivePort:              envInt("APP_ARCHIVE_PORT", 3306),
		ArchiveUser:              envString("APP_ARCHIVE_USER", "dashboard"),
		ArchivePassword:          envString("APP_ARCHIVE_PASSWORD", ""),
		ArchiveName:              envString("APP_ARCHIVE_NAME", "dashboard"),
		ArchiveConnTimeout:       envDuration("APP_ARCHIVE_CONN_TIMEOUT_SEC", 5, time.Second),
		ArchiveQueryTimeout:      envDuration("APP_ARCHIVE_QUERY_TIMEOUT_SEC", 10, time.Second),
		ArchivePageSize:          envInt("APP_ARCHIVE_PAGE_SIZE", 10),
		SimListenAddr:            envString("APP_SIM_LISTEN_ADDR", ":8081"),
		SimStreamInterval:        envDuration("APP_SIM_STREAM_INTERVAL_SEC", 2, time.Second),
	}
}

// loadEnvFiles seeds unset variables from KEY=value files. Bootstrap files
// all apply; for config and secrets only the first readable candidate does.
func loadEnvFiles() {
	for _, path := range []string{"cryo-dashboard.env", "/etc/default/cryo-dashboard"} {
		_ = applyEnvFile(path)
	}
	applyFirstEnvFile(os.Getenv("APP_CONFIG_FILE"), "/etc/cryo-dashboard/config.env")
	applyFirstEnvFile(os.Getenv("APP_SECRETS_FILE"), credentialPath(), "/etc/cryo-dashboard/secrets.env")
}

func applyFirstEnvFile(paths ...string) {
	for _, path := range paths {
		if path = strings.TrimSpace(path); path == "" {
			continue
		}
		if applyEnvFile(path) == nil {
			return
		}
	}
}

// credentialPath is the systemd LoadCredential location of the secrets file.
func credentialPath() string {
	dir := strings.TrimSpace(os.Getenv("CREDENTIALS_DIRECTORY"))
	if dir == "" {
		return ""
	}
	name := strings.TrimSpace(os.Getenv("APP_SECRETS_CREDENTIAL_NAME"))
	if name == "" {
		name = "app-secrets"
	}
	return filepath.Join(dir, name)
}

func applyEnvFile(path string) error {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, val, ok := parseEnvLine(scanner.Text())
		if !ok || os.Getenv(key) != "" {
			continue
		}
		_ = os.Setenv(key, val)
	}
	return scanner.Err()
}

// parseEnvLine accepts KEY=value with an optional "export " prefix and
// strips one pair of matching quotes from the value.
func parseEnvLine(line string) (key, val string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	key, val, ok = strings.Cut(strings.TrimPrefix(line, "export "), "=")
	key, val = strings.TrimSpace(key), strings.TrimSpace(val)
	if !ok || key == "" {
		return "", "", false
	}
	if n := len(val); n >= 2 && (val[0] == '"' || val[0] == '\'') && val[n-1] == val[0] {
		val = val[1 : n-1]
	}
	return key, val, true
}

// ArchiveDSN returns the database/sql driver name and DSN for the experiment archive.
func (c Config) ArchiveDSN() (driver, dsn string) {
	if c.ArchiveDriver == "mysql" {
		params := url.Values{}
		params.Set("parseTime", "true")
		params.Set("timeout", c.ArchiveConnTimeout.String())
		params.Set("readTimeout", c.ArchiveQueryTimeout.String())
		params.Set("writeTimeout", c.ArchiveQueryTimeout.String())
		params.Set("charset", "utf8mb4")
		return "mysql", fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s", c.ArchiveUser, c.ArchivePassword, c.ArchiveHost, c.ArchivePort, c.ArchiveName, params.Encode())
	}
	return "sqlite", c.ArchiveSQLitePath
}

// envValue parses key with parse, returning def when unset or malformed.
func envValue[T any](key string, def T, parse func(string) (T, error)) T {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		return def
	}
	return v
}

func envString(key, def string) string {
	return envValue(key, def, func(s string) (string, error) { return s, nil })
}

func envInt(key string, def int) int { return envValue(key, def, strconv.Atoi) }

func envBool(key string, def bool) bool { return envValue(key, def, strconv.ParseBool) }

func envDuration(key string, def int, unit time.Duration) time.Duration {
	return time.Duration(envInt(key, def)) * unit
}

// envList splits a comma separated value, dropping blank entries.
func envList(key string, def []string) []string {
	return splitList(envValue(key, def, func(s string) ([]string, error) {
		return strings.Split(s, ","), nil
	}))
}

func splitList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
