// Package config resolves settings from defaults, an optional YAML file,
// a .env file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultFile is read when present and no --config flag is given.
const DefaultFile = "lotannot.yaml"

type Config struct {
	Crop     CropConfig     `yaml:"crop"`
	Extract  ExtractConfig  `yaml:"extract"`
	Database DatabaseConfig `yaml:"database"`
}

type CropConfig struct {
	UpsampleRate float64 `yaml:"upsample_rate"`
	ModelWidth   int     `yaml:"model_width"`
	ModelHeight  int     `yaml:"model_height"`
	Quality      int     `yaml:"quality"`
}

type ExtractConfig struct {
	Interval int `yaml:"interval"`
	Quality  int `yaml:"quality"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Crop: CropConfig{
			UpsampleRate: 1.5,
			ModelWidth:   224,
			ModelHeight:  224,
			Quality:      100,
		},
		Extract: ExtractConfig{
			Interval: 60,
			Quality:  95,
		},
		Database: DatabaseConfig{
			Port: "5432",
			Name: "lotannot",
		},
	}
}

// Load builds a Config. An explicit path must exist; the default file is
// optional. The result is not validated so flags can still override it.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	if err := cfg.mergeFile(path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func (c *Config) mergeFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Crop.UpsampleRate = getEnvAsFloat("LOTANNOT_UPSAMPLE_RATE", c.Crop.UpsampleRate)
	c.Crop.ModelWidth = getEnvAsInt("LOTANNOT_MODEL_WIDTH", c.Crop.ModelWidth)
	c.Crop.ModelHeight = getEnvAsInt("LOTANNOT_MODEL_HEIGHT", c.Crop.ModelHeight)
	c.Crop.Quality = getEnvAsInt("LOTANNOT_CROP_QUALITY", c.Crop.Quality)
	c.Extract.Interval = getEnvAsInt("LOTANNOT_EXTRACT_INTERVAL", c.Extract.Interval)
	c.Extract.Quality = getEnvAsInt("LOTANNOT_EXTRACT_QUALITY", c.Extract.Quality)

	c.Database.URL = getEnv("LOTANNOT_DB_URL", c.Database.URL)
	c.Database.Host = getEnv("POSTGRES_HOST", c.Database.Host)
	c.Database.Port = getEnv("POSTGRES_PORT", c.Database.Port)
	c.Database.User = getEnv("POSTGRES_USER", c.Database.User)
	c.Database.Password = getEnv("POSTGRES_PASSWORD", c.Database.Password)
	c.Database.Name = getEnv("POSTGRES_DB", c.Database.Name)
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Crop.UpsampleRate < 1 || c.Crop.UpsampleRate > 4 {
		return fmt.Errorf("crop.upsample_rate must be in [1,4], got %v", c.Crop.UpsampleRate)
	}
	if c.Crop.ModelWidth <= 0 || c.Crop.ModelHeight <= 0 {
		return fmt.Errorf("crop model size must be positive, got %dx%d", c.Crop.ModelWidth, c.Crop.ModelHeight)
	}
	if c.Crop.Quality < 1 || c.Crop.Quality > 100 {
		return fmt.Errorf("crop.quality must be in 1..100, got %d", c.Crop.Quality)
	}
	if c.Extract.Interval < 1 {
		return fmt.Errorf("extract.interval must be >= 1, got %d", c.Extract.Interval)
	}
	if c.Extract.Quality < 1 || c.Extract.Quality > 100 {
		return fmt.Errorf("extract.quality must be in 1..100, got %d", c.Extract.Quality)
	}
	return nil
}

// ConnString is the PostgreSQL URL: an explicit URL wins, then the
// POSTGRES_* parts, then the local default.
func (d DatabaseConfig) ConnString() string {
	if d.URL != "" {
		return d.URL
	}
	port := d.Port
	if port == "" {
		port = "5432"
	}
	if d.Host != "" {
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", d.User, d.Password, d.Host, port, d.Name)
	}
	name := d.Name
	if name == "" {
		name = "lotannot"
	}
	return fmt.Sprintf("postgres://localhost:%s/%s", port, name)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Invalid integer for %s, using %d\n", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Invalid number for %s, using %v\n", key, defaultValue)
		return defaultValue
	}
	return value
}
