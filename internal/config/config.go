package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	levy "energy-costing/internal/levy/domain"
	tariff "energy-costing/internal/tariff/domain"
)

var ErrMissingDatabaseURL = errors.New("config: DATABASE_URL or PG_DSN is required")

// InfluxConfig enables the consolidated series sink when URL is set.
type InfluxConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// Enabled reports whether the sink should be dialled.
func (c InfluxConfig) Enabled() bool { return c.URL != "" }

// Config defines the batch runner configuration.
type Config struct {
	DatabaseURL       string                        `yaml:"database_url"`
	MetricsAddr       string                        `yaml:"metrics_addr"`
	Workers           int                           `yaml:"workers"`
	Validation        string                        `yaml:"validation"`
	ExportDir         string                        `yaml:"export_dir"`
	GridIntensityMPXN string                        `yaml:"grid_intensity_mpxn"`
	Sites             []int64                       `yaml:"sites"`
	RunTimeout        time.Duration                 `yaml:"run_timeout"`
	Influx            InfluxConfig                  `yaml:"influx"`
	Levies            map[string][]levy.BracketSpec `yaml:"levies"`
}

// Load reads defaults, the optional ENGINE_CONFIG yaml file, then env overrides.
func Load() (Config, error) {
	cfg := Config{
		MetricsAddr: ":9102",
		Workers:     4,
		Validation:  "lenient",
		ExportDir:   "var/exports",
	}

	if path := os.Getenv("ENGINE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.DatabaseURL = getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", cfg.DatabaseURL))
	cfg.MetricsAddr = getenvDefault("METRICS_ADDR", cfg.MetricsAddr)
	cfg.Workers = getenvIntDefault("ENGINE_WORKERS", cfg.Workers)
	cfg.Validation = getenvDefault("TARIFF_VALIDATION", cfg.Validation)
	cfg.ExportDir = getenvDefault("EXPORT_DIR", cfg.ExportDir)
	cfg.GridIntensityMPXN = getenvDefault("GRID_INTENSITY_MPXN", cfg.GridIntensityMPXN)
	cfg.RunTimeout = getenvDuration("RUN_TIMEOUT", cfg.RunTimeout)
	cfg.Influx.URL = getenvDefault("INFLUX_URL", cfg.Influx.URL)
	cfg.Influx.Token = getenvDefault("INFLUX_TOKEN", cfg.Influx.Token)
	cfg.Influx.Org = getenvDefault("INFLUX_ORG", cfg.Influx.Org)
	cfg.Influx.Bucket = getenvDefault("INFLUX_BUCKET", cfg.Influx.Bucket)
	if sites := splitCSV(os.Getenv("ENGINE_SITES")); len(sites) > 0 {
		urns, err := parseURNs(sites)
		if err != nil {
			return cfg, err
		}
		cfg.Sites = urns
	}

	if cfg.DatabaseURL == "" {
		return cfg, ErrMissingDatabaseURL
	}
	return cfg, nil
}

// ValidationMode maps the configured string to a tariff validation mode.
func (c Config) ValidationMode() tariff.ValidationMode {
	return tariff.ParseValidationMode(c.Validation)
}

// LevyTable builds the configured levy table, falling back to the built-in rates.
func (c Config) LevyTable() (*levy.Table, error) {
	if len(c.Levies) == 0 {
		return levy.Default(), nil
	}
	return levy.FromSpecs(c.Levies)
}

func parseURNs(values []string) ([]int64, error) {
	urns := make([]int64, 0, len(values))
	for _, v := range values {
		urn, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("config: site urn %q: %w", v, err)
		}
		urns = append(urns, urn)
	}
	return urns, nil
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
