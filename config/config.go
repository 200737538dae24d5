// Package config loads the run configuration from YAML and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/Laraewellen/metas-judiciarias-etl/goals"
	"github.com/Laraewellen/metas-judiciarias-etl/staging"
	"github.com/Laraewellen/metas-judiciarias-etl/store"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultInputDir         = "."
	DefaultOutputDir        = "."
	DefaultOutputDelimiter  = ";"
	DefaultSummaryFile      = "ResumoMetas.csv"
	DefaultConsolidatedFile = "Consolidado.csv"
	DefaultChartFile        = "grafico_meta1.png"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "console"
)

// Config is the full run configuration.
type Config struct {
	InputDir  string `yaml:"input_dir"`
	OutputDir string `yaml:"output_dir"`

	// Year selects the goal-1 columns (julgados_<year>, ...).
	Year int `yaml:"year"`

	// Workers is the size of the worker pool; 0 means one per CPU.
	Workers int `yaml:"workers"`

	// InputDelimiter is empty to detect ';' or ',' per file.
	InputDelimiter  string `yaml:"input_delimiter"`
	OutputDelimiter string `yaml:"output_delimiter"`

	// FactorsFile replaces the built-in factor table when set.
	FactorsFile string `yaml:"factors_file"`

	SummaryFile      string `yaml:"summary_file"`
	ConsolidatedFile string `yaml:"consolidated_file"`
	ChartFile        string `yaml:"chart_file"`
	// ReportFile and MetricsFile are written only when set.
	ReportFile  string `yaml:"report_file"`
	MetricsFile string `yaml:"metrics_file"`

	Staging  StagingConfig  `yaml:"staging"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
}

// StagingConfig selects where raw tables wait for consolidation.
type StagingConfig struct {
	// Driver is one of: memory | fs | s3.
	Driver string   `yaml:"driver"`
	FSRoot string   `yaml:"fs_root"`
	S3     S3Config `yaml:"s3"`
}

// S3Config configures the s3 staging driver. Credentials come from the AWS
// default chain unless the *_env fields name variables holding them.
type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	Prefix       string `yaml:"prefix"`
	PathStyle    bool   `yaml:"path_style"`
	AccessKeyEnv string `yaml:"access_key_env"`
	SecretKeyEnv string `yaml:"secret_key_env"`
}

// DatabaseConfig enables the results database when Driver is set.
type DatabaseConfig struct {
	// Driver is one of: sqlite | postgres, or empty to disable.
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | console
}

// Default returns a Config with every default applied.
func Default() *Config {
	return &Config{
		InputDir:         DefaultInputDir,
		OutputDir:        DefaultOutputDir,
		Year:             goals.DefaultYear,
		OutputDelimiter:  DefaultOutputDelimiter,
		SummaryFile:      DefaultSummaryFile,
		ConsolidatedFile: DefaultConsolidatedFile,
		ChartFile:        DefaultChartFile,
		Staging:          StagingConfig{Driver: string(staging.DriverMemory)},
		Log:              LogConfig{Level: DefaultLogLevel, Format: DefaultLogFormat},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("METAS_STAGING_DRIVER"); v != "" {
		c.Staging.Driver = v
	}
	if v := os.Getenv("METAS_STAGING_FS_ROOT"); v != "" {
		c.Staging.FSRoot = v
	}
	if v := os.Getenv("METAS_S3_BUCKET"); v != "" {
		c.Staging.S3.Bucket = v
	}
	if v := os.Getenv("METAS_S3_REGION"); v != "" {
		c.Staging.S3.Region = v
	}
	if v := os.Getenv("METAS_S3_ENDPOINT"); v != "" {
		c.Staging.S3.Endpoint = v
	}
	if v := os.Getenv("METAS_S3_PATH_STYLE"); v != "" {
		c.Staging.S3.PathStyle = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("METAS_DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("METAS_DB_DSN"); v != "" {
		c.Database.DSN = v
	}
}

// Validate checks field values and combinations.
func (c *Config) Validate() error {
	if c.Year < 1900 || c.Year > 2999 {
		return fmt.Errorf("year %d out of range", c.Year)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}
	if c.InputDelimiter != "" {
		if _, err := parseDelim(c.InputDelimiter); err != nil {
			return fmt.Errorf("input_delimiter: %w", err)
		}
	}
	if _, err := parseDelim(c.OutputDelimiter); err != nil {
		return fmt.Errorf("output_delimiter: %w", err)
	}
	switch staging.Driver(c.Staging.Driver) {
	case staging.DriverMemory, staging.DriverFilesystem:
	case staging.DriverS3:
		if c.Staging.S3.Bucket == "" {
			return fmt.Errorf("staging.s3.bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("unknown staging driver %q", c.Staging.Driver)
	}
	switch store.Driver(c.Database.Driver) {
	case "", store.DriverSQLite, store.DriverPostgres:
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	return nil
}

// InputDelim returns the input delimiter, or 0 to detect it.
func (c *Config) InputDelim() rune {
	if c.InputDelimiter == "" {
		return 0
	}
	r, _ := parseDelim(c.InputDelimiter)
	return r
}

// OutputDelim returns the delimiter of written CSV files.
func (c *Config) OutputDelim() rune {
	r, err := parseDelim(c.OutputDelimiter)
	if err != nil {
		return ';'
	}
	return r
}

func parseDelim(s string) (rune, error) {
	if s == `\t` {
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("delimiter %q must be a single character", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == '"' || r == '\r' || r == '\n' || r == utf8.RuneError {
		return 0, fmt.Errorf("invalid delimiter %q", s)
	}
	return r, nil
}

// OutputPath joins name to the output directory. Absolute names are kept.
func (c *Config) OutputPath(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.OutputDir, name)
}

// Factors returns the factor table of the run.
func (c *Config) Factors() (*goals.FactorTable, error) {
	if c.FactorsFile == "" {
		return goals.DefaultFactors(), nil
	}
	return goals.LoadFactors(c.FactorsFile)
}

// StagingOptions converts the staging section for staging.Open.
func (c *Config) StagingOptions() staging.Options {
	s3 := c.Staging.S3
	opts := staging.Options{
		Driver: staging.Driver(c.Staging.Driver),
		FSRoot: c.Staging.FSRoot,
		S3: staging.S3Config{
			Bucket:    s3.Bucket,
			Region:    s3.Region,
			Endpoint:  s3.Endpoint,
			Prefix:    s3.Prefix,
			PathStyle: s3.PathStyle,
		},
	}
	if s3.AccessKeyEnv != "" {
		opts.S3.AccessKeyID = os.Getenv(s3.AccessKeyEnv)
	}
	if s3.SecretKeyEnv != "" {
		opts.S3.SecretAccessKey = os.Getenv(s3.SecretKeyEnv)
	}
	return opts
}
