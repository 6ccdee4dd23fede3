package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultServiceName     = "dounotify"
	defaultTimezone        = "America/Sao_Paulo"
	defaultSMTPPort        = 587
	defaultSMTPTimeoutSec  = 30
	defaultSMTPCharset     = "utf-8"
	defaultWebhookTimeout  = 10
	defaultRedisPrefix     = "airflow:variable:"
	defaultNATSURL         = "nats://127.0.0.1:4222"
	defaultNATSBucket      = "dou_variables"
	defaultArchivePrefix   = "dou-reports/"
	defaultReportDateFmt   = "02/01/2006"
	defaultLogMaxSizeMB    = 50
	defaultLogMaxBackups   = 5
	defaultDatabaseMaxConn = 4

	// VariablesBackendStatic reads variables from the [variables.static] table.
	VariablesBackendStatic = "static"
	// VariablesBackendEnv reads variables from dotenv files and the process environment.
	VariablesBackendEnv = "env"
	// VariablesBackendRedis reads variables from Redis string keys.
	VariablesBackendRedis = "redis"
	// VariablesBackendNATS reads variables from a JetStream key-value bucket.
	VariablesBackendNATS = "nats"

	// SMTPTLSMandatory requires STARTTLS.
	SMTPTLSMandatory = "mandatory"
	// SMTPTLSOpportunistic upgrades with STARTTLS when offered.
	SMTPTLSOpportunistic = "opportunistic"
	// SMTPTLSImplicit connects over implicit TLS (SMTPS).
	SMTPTLSImplicit = "implicit"
	// SMTPTLSNone sends in clear text.
	SMTPTLSNone = "none"
)

var (
	variablesBackends = []string{
		VariablesBackendStatic,
		VariablesBackendEnv,
		VariablesBackendRedis,
		VariablesBackendNATS,
	}
	smtpTLSPolicies = []string{
		SMTPTLSMandatory,
		SMTPTLSOpportunistic,
		SMTPTLSImplicit,
		SMTPTLSNone,
	}
)

// Config holds notifier service settings.
// Params: TOML sections from file or merged directory snapshot.
// Returns: validated runtime configuration.
type Config struct {
	Service   ServiceConfig             `toml:"service"`
	Log       LogConfig                 `toml:"log"`
	SMTP      SMTPConfig                `toml:"smtp"`
	Webhook   WebhookConfig             `toml:"webhook"`
	Variables VariablesConfig           `toml:"variables"`
	Database  map[string]DatabaseConfig `toml:"database"`
	Archive   ArchiveConfig             `toml:"archive"`
	Report    ReportConfig              `toml:"report"`
}

// ServiceConfig contains process-level settings.
// Params: service name and timezone used to compute the default report date.
// Returns: service behavior defaults.
type ServiceConfig struct {
	Name     string `toml:"name"`
	Timezone string `toml:"timezone"`
}

// LogConfig contains console/file logging sinks.
// Params: sink settings for each output target.
// Returns: logger setup options.
type LogConfig struct {
	Console LogSinkConfig `toml:"console"`
	File    LogSinkConfig `toml:"file"`
}

// LogSinkConfig defines one logging sink.
// Params: sink enable flag, level, format, path, and rotation limits for file sinks.
// Returns: sink-specific behavior.
type LogSinkConfig struct {
	Enabled    bool   `toml:"enabled"`
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	Path       string `toml:"path"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// SMTPConfig defines the mail transport.
// Params: server address, credentials, sender identity, TLS policy, and timeout.
// Returns: SMTP mailer configuration.
type SMTPConfig struct {
	Enabled    bool   `toml:"enabled"`
	Host       string `toml:"host"`
	Port       int    `toml:"port"`
	Username   string `toml:"username"`
	Password   string `toml:"password"`
	From       string `toml:"from"`
	FromName   string `toml:"from_name"`
	TLS        string `toml:"tls"`
	TimeoutSec int    `toml:"timeout_sec"`
	Charset    string `toml:"charset"`
}

// WebhookConfig defines chat webhook HTTP client settings.
// Params: request timeout and optional static headers.
// Returns: webhook poster configuration.
type WebhookConfig struct {
	TimeoutSec int               `toml:"timeout_sec"`
	Headers    map[string]string `toml:"headers"`
}

// VariablesConfig selects the variable store used by `from_airflow_variable` terms.
// Params: backend name and per-backend settings.
// Returns: variable lookup configuration.
type VariablesConfig struct {
	Backend  string            `toml:"backend"`
	Static   map[string]string `toml:"static"`
	EnvFiles []string          `toml:"env_files"`
	Redis    RedisVariables    `toml:"redis"`
	NATS     NATSVariables     `toml:"nats"`
}

// RedisVariables configures the Redis variable store.
// Params: address, credentials, database index, and key prefix.
// Returns: Redis client options.
type RedisVariables struct {
	Addr     string `toml:"addr"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Prefix   string `toml:"prefix"`
}

// NATSVariables configures the JetStream KV variable store.
// Params: server URLs, bucket name, and bucket creation flag.
// Returns: NATS KV options.
type NATSVariables struct {
	URL                []string `toml:"url"`
	Bucket             string   `toml:"bucket"`
	AllowCreateBuckets bool     `toml:"allow_create_buckets"`
}

// DatabaseConfig defines one SQL connection referenced by `from_db_select.conn_id`.
type DatabaseConfig struct {
	DSN      string `toml:"dsn"`
	MaxConns int32  `toml:"max_conns"`
}

// ArchiveConfig defines optional S3-compatible storage for rendered reports.
// Params: bucket/prefix, region, optional endpoint, and static credentials.
// Returns: archive uploader configuration.
type ArchiveConfig struct {
	Enabled         bool   `toml:"enabled"`
	Bucket          string `toml:"bucket"`
	Prefix          string `toml:"prefix"`
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	UsePathStyle    bool   `toml:"use_path_style"`
}

// ReportConfig controls rendering details shared by all DAGs.
// Params: stylesheet override, report date layout, and CSV temp directory.
// Returns: rendering options.
type ReportConfig struct {
	Stylesheet string `toml:"stylesheet"`
	DateFormat string `toml:"date_format"`
	TempDir    string `toml:"temp_dir"`
}

// ConfigSource describes file or directory config source.
// Params: exactly one of file path or directory path.
// Returns: normalized source descriptor.
type ConfigSource struct {
	File string
	Dir  string
}

// FromCLI builds normalized source configuration from input paths.
// Params: optional file and directory arguments.
// Returns: source descriptor or validation error.
func FromCLI(filePath, dirPath string) (ConfigSource, error) {
	filePath = strings.TrimSpace(filePath)
	dirPath = strings.TrimSpace(dirPath)

	if filePath == "" && dirPath == "" {
		return ConfigSource{}, errors.New("either --config or --config-dir must be provided")
	}
	if filePath != "" && dirPath != "" {
		return ConfigSource{}, errors.New("config source must be either file or dir")
	}

	if filePath != "" {
		return ConfigSource{File: filePath}, nil
	}
	return ConfigSource{Dir: dirPath}, nil
}

// LoadSnapshot loads and validates configuration from one source.
// Params: source selects file or directory mode.
// Returns: validated config or load/validation error.
func LoadSnapshot(src ConfigSource) (Config, error) {
	var cfg Config
	var err error
	if src.File != "" {
		cfg, err = loadFile(src.File)
	} else {
		cfg, err = loadDir(src.Dir)
	}
	if err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
// Params: none.
// Returns: defaults with console logging and the static variable store.
func Default() Config {
	cfg := Config{}
	cfg.Log.Console.Enabled = true
	applyDefaults(&cfg)
	return cfg
}

// Location resolves the configured service timezone.
// Params: none.
// Returns: time location or load error.
func (c Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Service.Timezone)
}

// loadFile reads one TOML configuration file.
// Params: file path to config snapshot.
// Returns: decoded config or read/decode error.
func loadFile(path string) (Config, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", path, err)
	}
	var cfg Config
	if err := toml.Unmarshal([]byte(os.ExpandEnv(string(body))), &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config file %q: %w", path, err)
	}
	return cfg, nil
}

// loadDir reads and merges TOML files from one directory.
// Params: directory containing config fragments.
// Returns: merged config snapshot or load/decode error.
func loadDir(dir string) (Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Config{}, fmt.Errorf("read config dir %q: %w", dir, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.ToLower(filepath.Ext(name)) != ".toml" {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	if len(files) == 0 {
		return Config{}, fmt.Errorf("no .toml files found in %q", dir)
	}
	sort.Strings(files)

	var merged Config
	for _, file := range files {
		fragment, err := loadFile(file)
		if err != nil {
			return Config{}, err
		}
		mergeConfig(&merged, fragment)
	}
	return merged, nil
}

// mergeConfig overlays source onto destination.
// Params: destination config and next fragment.
// Returns: merged configuration side-effect in dst.
func mergeConfig(dst *Config, src Config) {
	if src.Service != (ServiceConfig{}) {
		dst.Service = src.Service
	}
	if src.Log.Console != (LogSinkConfig{}) {
		dst.Log.Console = src.Log.Console
	}
	if src.Log.File != (LogSinkConfig{}) {
		dst.Log.File = src.Log.File
	}
	if src.SMTP != (SMTPConfig{}) {
		dst.SMTP = src.SMTP
	}
	if !reflect.DeepEqual(src.Webhook, WebhookConfig{}) {
		dst.Webhook = src.Webhook
	}
	if !reflect.DeepEqual(src.Variables, VariablesConfig{}) {
		static := dst.Variables.Static
		dst.Variables = src.Variables
		if len(static) > 0 {
			for name, value := range src.Variables.Static {
				static[name] = value
			}
			dst.Variables.Static = static
		}
	}
	for connID, database := range src.Database {
		if dst.Database == nil {
			dst.Database = make(map[string]DatabaseConfig)
		}
		dst.Database[connID] = database
	}
	if src.Archive != (ArchiveConfig{}) {
		dst.Archive = src.Archive
	}
	if src.Report != (ReportConfig{}) {
		dst.Report = src.Report
	}
}

// applyDefaults fills optional settings.
// Params: config pointer to mutate.
// Returns: config side-effect with defaults.
func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Service.Name) == "" {
		cfg.Service.Name = defaultServiceName
	}
	if strings.TrimSpace(cfg.Service.Timezone) == "" {
		cfg.Service.Timezone = defaultTimezone
	}

	if cfg.Log.Console.Level == "" {
		cfg.Log.Console.Level = "info"
	}
	if cfg.Log.Console.Format == "" {
		cfg.Log.Console.Format = "line"
	}
	if cfg.Log.File.Level == "" {
		cfg.Log.File.Level = "info"
	}
	if cfg.Log.File.Format == "" {
		cfg.Log.File.Format = "json"
	}
	if cfg.Log.File.MaxSizeMB <= 0 {
		cfg.Log.File.MaxSizeMB = defaultLogMaxSizeMB
	}
	if cfg.Log.File.MaxBackups <= 0 {
		cfg.Log.File.MaxBackups = defaultLogMaxBackups
	}

	if cfg.SMTP.Port <= 0 {
		cfg.SMTP.Port = defaultSMTPPort
	}
	if cfg.SMTP.TimeoutSec <= 0 {
		cfg.SMTP.TimeoutSec = defaultSMTPTimeoutSec
	}
	if strings.TrimSpace(cfg.SMTP.Charset) == "" {
		cfg.SMTP.Charset = defaultSMTPCharset
	}
	cfg.SMTP.TLS = strings.ToLower(strings.TrimSpace(cfg.SMTP.TLS))
	if cfg.SMTP.TLS == "" {
		cfg.SMTP.TLS = SMTPTLSMandatory
	}

	if cfg.Webhook.TimeoutSec <= 0 {
		cfg.Webhook.TimeoutSec = defaultWebhookTimeout
	}

	cfg.Variables.Backend = strings.ToLower(strings.TrimSpace(cfg.Variables.Backend))
	if cfg.Variables.Backend == "" {
		cfg.Variables.Backend = VariablesBackendStatic
	}
	if cfg.Variables.Redis.Prefix == "" {
		cfg.Variables.Redis.Prefix = defaultRedisPrefix
	}
	if len(cfg.Variables.NATS.URL) == 0 {
		cfg.Variables.NATS.URL = []string{defaultNATSURL}
	}
	if strings.TrimSpace(cfg.Variables.NATS.Bucket) == "" {
		cfg.Variables.NATS.Bucket = defaultNATSBucket
	}

	for connID, database := range cfg.Database {
		if database.MaxConns <= 0 {
			database.MaxConns = defaultDatabaseMaxConn
			cfg.Database[connID] = database
		}
	}

	if cfg.Archive.Prefix == "" {
		cfg.Archive.Prefix = defaultArchivePrefix
	}

	if strings.TrimSpace(cfg.Report.DateFormat) == "" {
		cfg.Report.DateFormat = defaultReportDateFmt
	}
}

// validateConfig checks required fields and supported values.
// Params: config snapshot after defaults.
// Returns: first validation error naming its dotted path.
func validateConfig(cfg Config) error {
	if _, err := time.LoadLocation(cfg.Service.Timezone); err != nil {
		return fmt.Errorf("service.timezone has unsupported value %q: %w", cfg.Service.Timezone, err)
	}
	if err := validateLogSink("log.console", cfg.Log.Console, false); err != nil {
		return err
	}
	if err := validateLogSink("log.file", cfg.Log.File, true); err != nil {
		return err
	}
	if err := validateSMTP(cfg.SMTP); err != nil {
		return err
	}
	if err := validateVariables(cfg.Variables); err != nil {
		return err
	}

	connIDs := make([]string, 0, len(cfg.Database))
	for connID := range cfg.Database {
		connIDs = append(connIDs, connID)
	}
	sort.Strings(connIDs)
	for _, connID := range connIDs {
		if strings.TrimSpace(cfg.Database[connID].DSN) == "" {
			return fmt.Errorf("database.%s.dsn is required", connID)
		}
	}

	if cfg.Archive.Enabled {
		if strings.TrimSpace(cfg.Archive.Bucket) == "" {
			return errors.New("archive.bucket is required")
		}
		if strings.TrimSpace(cfg.Archive.Region) == "" {
			return errors.New("archive.region is required")
		}
		if (cfg.Archive.AccessKeyID == "") != (cfg.Archive.SecretAccessKey == "") {
			return errors.New("archive.access_key_id and archive.secret_access_key must be set together")
		}
	}

	if strings.TrimSpace(cfg.Report.Stylesheet) != "" {
		if _, err := os.Stat(cfg.Report.Stylesheet); err != nil {
			return fmt.Errorf("report.stylesheet: %w", err)
		}
	}
	if cfg.Report.TempDir != "" {
		info, err := os.Stat(cfg.Report.TempDir)
		if err != nil {
			return fmt.Errorf("report.temp_dir: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("report.temp_dir %q is not a directory", cfg.Report.TempDir)
		}
	}
	return nil
}

// validateSMTP checks mail transport settings when the transport is enabled.
// Params: SMTP section after defaults.
// Returns: validation error or nil.
func validateSMTP(cfg SMTPConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if strings.TrimSpace(cfg.Host) == "" {
		return errors.New("smtp.host is required")
	}
	if cfg.Port > 65535 {
		return fmt.Errorf("smtp.port must be in range 1..65535, got %d", cfg.Port)
	}
	if strings.TrimSpace(cfg.From) == "" {
		return errors.New("smtp.from is required")
	}
	if !contains(smtpTLSPolicies, cfg.TLS) {
		return fmt.Errorf("smtp.tls has unsupported value %q", cfg.TLS)
	}
	if cfg.Password != "" && strings.TrimSpace(cfg.Username) == "" {
		return errors.New("smtp.username is required when smtp.password is set")
	}
	return nil
}

// validateVariables checks the selected variable backend.
// Params: variables section after defaults.
// Returns: validation error or nil.
func validateVariables(cfg VariablesConfig) error {
	if !contains(variablesBackends, cfg.Backend) {
		return fmt.Errorf("variables.backend has unsupported value %q", cfg.Backend)
	}
	switch cfg.Backend {
	case VariablesBackendEnv:
		for idx, path := range cfg.EnvFiles {
			if strings.TrimSpace(path) == "" {
				return fmt.Errorf("variables.env_files[%d] is empty", idx)
			}
		}
	case VariablesBackendRedis:
		if strings.TrimSpace(cfg.Redis.Addr) == "" {
			return errors.New("variables.redis.addr is required")
		}
		if cfg.Redis.DB < 0 {
			return errors.New("variables.redis.db must be >=0")
		}
	case VariablesBackendNATS:
		for idx, url := range cfg.NATS.URL {
			if strings.TrimSpace(url) == "" {
				return fmt.Errorf("variables.nats.url[%d] is empty", idx)
			}
		}
	}
	return nil
}

func validateLogSink(name string, sink LogSinkConfig, requirePath bool) error {
	if !sink.Enabled {
		return nil
	}

	switch strings.ToLower(strings.TrimSpace(sink.Level)) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%s.level has unsupported value %q", name, sink.Level)
	}

	switch strings.ToLower(strings.TrimSpace(sink.Format)) {
	case "line", "json":
	default:
		return fmt.Errorf("%s.format has unsupported value %q", name, sink.Format)
	}

	if requirePath && strings.TrimSpace(sink.Path) == "" {
		return fmt.Errorf("%s.path is required", name)
	}

	return nil
}

func contains(values []string, value string) bool {
	for _, candidate := range values {
		if candidate == value {
			return true
		}
	}
	return false
}
