// Package config loads the batch-run configuration surface of spec §6:
// job/ticket-type defaults, OCR selection, duplicate-detection window,
// worker-pool sizing, preflight thresholds, export toggles, and database
// connection settings sourced from a config file, environment variables,
// or both. It wraps github.com/spf13/viper, the teacher's config stack
// (cmd/bd/main.go, internal/config), rather than hand-rolling flag/env
// merging.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the "<APP>" token in spec §6's environment variable
// convention: TICKETS_DB_SERVER, TICKETS_DB_NAME, TICKETS_DB_USERNAME,
// TICKETS_DB_PASSWORD, TICKETS_DB_URL.
const EnvPrefix = "TICKETS"

// PreflightConfig is the optional fast per-page OCRability check of
// spec §6: "{ enabled, dpi_threshold, min_chars, blank_std_threshold,
// min_resolution }".
type PreflightConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	DPIThreshold      int     `mapstructure:"dpi_threshold"`
	MinChars          int     `mapstructure:"min_chars"`
	BlankStdThreshold float64 `mapstructure:"blank_std_threshold"`
	MinResolution     int     `mapstructure:"min_resolution"`
}

// ExportToggles is the exports section of the configuration, loaded into
// Config.Exports; no ticketctl subcommand reads it.
type ExportToggles struct {
	Workbook bool `mapstructure:"workbook"`
	Invoice  bool `mapstructure:"invoice"`
	Manifest bool `mapstructure:"manifest"`
	ReviewCSV  bool `mapstructure:"review_csv"`
	ReviewJSON bool `mapstructure:"review_json"`
}

// DatabaseConfig resolves to exactly one of an embedded SQLite path or a
// MySQL DSN, per spec §6: "one of (connection string, environment
// variables ..., or embedded SQLite path for tests)".
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // "sqlite" or "mysql"
	SQLite   string `mapstructure:"sqlite_path"`
	Server   string `mapstructure:"db_server"`
	Name     string `mapstructure:"db_name"`
	Username string `mapstructure:"db_username"`
	Password string `mapstructure:"db_password"`
	URL      string `mapstructure:"db_url"`
}

// MySQLDSN builds a go-sql-driver/mysql DSN from the discrete
// server/name/username/password fields, used when URL is not set
// directly.
func (d DatabaseConfig) MySQLDSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true", d.Username, d.Password, d.Server, d.Name)
}

// Config is the full batch-run configuration surface of spec §6.
type Config struct {
	JobCode        string `mapstructure:"job_code"`
	TicketTypeName string `mapstructure:"ticket_type_name"`

	OCREngine         string `mapstructure:"ocr_engine"`
	PDFDPI            int    `mapstructure:"pdf_dpi"`
	OrientationMethod string `mapstructure:"orientation_method"`

	DuplicateWindowDays int  `mapstructure:"duplicate_window_days"`
	CheckDuplicateFiles bool `mapstructure:"check_duplicate_files"`

	MaxWorkers         int           `mapstructure:"max_workers"`
	ChunkSize          int           `mapstructure:"chunk_size"`
	TimeoutPerFile     time.Duration `mapstructure:"timeout_per_file"`
	RetryAttempts      int           `mapstructure:"retry_attempts"`
	ContinueOnError    bool          `mapstructure:"continue_on_error"`
	RollbackOnCritical bool          `mapstructure:"rollback_on_critical"`

	Preflight PreflightConfig `mapstructure:"preflight"`

	OutputDir string        `mapstructure:"output_dir"`
	Exports   ExportToggles `mapstructure:"exports"`

	SynonymDictionaryPath string `mapstructure:"synonym_dictionary_path"`
	VendorTemplatesPath   string `mapstructure:"vendor_templates_path"`

	Database DatabaseConfig `mapstructure:"database"`

	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	MetricsAddr    string `mapstructure:"metrics_addr"`
}

// defaults mirrors spec §6's documented defaults exactly.
func defaults(v *viper.Viper) {
	v.SetDefault("job_code", "24-105")
	v.SetDefault("ticket_type_name", "EXPORT")
	v.SetDefault("ocr_engine", "tesseract")
	v.SetDefault("pdf_dpi", 300)
	v.SetDefault("orientation_method", "tesseract")
	v.SetDefault("duplicate_window_days", 120)
	v.SetDefault("check_duplicate_files", true)
	v.SetDefault("chunk_size", 10)
	v.SetDefault("timeout_per_file", 300*time.Second)
	v.SetDefault("retry_attempts", 2)
	v.SetDefault("continue_on_error", true)
	v.SetDefault("rollback_on_critical", true)
	v.SetDefault("output_dir", "./output")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.sqlite_path", "./ticketcore.db")
}

// Load reads configPath (if non-empty and present) via viper, layers
// environment variables prefixed with EnvPrefix on top (so
// TICKETS_DB_SERVER overrides database.db_server, etc, per spec §6), and
// returns the merged Config. A missing configPath is not an error —
// defaults plus environment variables are a complete configuration on
// their own, matching the teacher's tolerant config-loading idiom in
// internal/config/local_config.go.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	defaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(*os.PathError); !ok {
				return nil, fmt.Errorf("config: read %s: %w", configPath, err)
			}
		}
	}

	bindLegacyEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

// bindLegacyEnvVars binds the exact environment variable names spec §6
// calls out (TICKETS_DB_SERVER, TICKETS_DB_NAME, TICKETS_DB_USERNAME,
// TICKETS_DB_PASSWORD, TICKETS_DB_URL) to their nested config keys —
// viper's automatic env replacer alone would expect TICKETS_DATABASE_DB_SERVER.
func bindLegacyEnvVars(v *viper.Viper) {
	pairs := map[string]string{
		"database.db_server":   EnvPrefix + "_DB_SERVER",
		"database.db_name":     EnvPrefix + "_DB_NAME",
		"database.db_username": EnvPrefix + "_DB_USERNAME",
		"database.db_password": EnvPrefix + "_DB_PASSWORD",
		"database.db_url":      EnvPrefix + "_DB_URL",
	}
	for key, env := range pairs {
		_ = v.BindEnv(key, env)
	}
}

// ResolveDatabase decides which backend to open: a MySQL DSN when any of
// URL/Server/Name is configured or Driver is "mysql", otherwise the
// embedded SQLite path.
// This mirrors spec §6's "one of" database configuration without
// requiring the caller to inspect Driver directly.
func (c Config) ResolveDatabase() (driver, dsn string) {
	if c.Database.URL != "" || c.Database.Server != "" || c.Database.Name != "" {
		return "mysql", c.Database.MySQLDSN()
	}
	if c.Database.Driver == "mysql" {
		return "mysql", c.Database.MySQLDSN()
	}
	path := c.Database.SQLite
	if path == "" {
		path = "./ticketcore.db"
	}
	return "sqlite", path
}
