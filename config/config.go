package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Postgres  PostgresConfig
	Geocode   GeocodeConfig
	Scheduler SchedulerConfig
	Scraper   ScraperConfig
	Images    ImagesConfig
	S3        S3Config
	QueueDB   string
	LogLevel  string
	Sources   map[string]*SourceConfig
}

type PostgresConfig struct {
	URL string
}

type GeocodeConfig struct {
	APIKey  string
	BaseURL string
}

type SchedulerConfig struct {
	Interval time.Duration
	Cron     string
}

type ScraperConfig struct {
	MaxPerHour     int
	MinSpacingMS   int
	IndexWorkers   int
	DetailWorkers  int
	FetchTimeoutMS int
	ProxyURL       string
}

type ImagesConfig struct {
	Dir              string
	PlacePhotoMaxAge time.Duration
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

type SourceConfig struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name"`
	Slug        string            `yaml:"slug"`
	BaseURL     string            `yaml:"base_url"`
	Handler     string            `yaml:"handler"` // api, html, browser
	RateLimitMS int               `yaml:"rate_limit_ms"`
	Endpoints   map[string]string `yaml:"endpoints"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Postgres: PostgresConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Geocode: GeocodeConfig{
			APIKey:  os.Getenv("GEOCODE_API_KEY"),
			BaseURL: getEnv("GEOCODE_BASE_URL", "https://maps.googleapis.com/maps/api/geocode/json"),
		},
		Scheduler: SchedulerConfig{
			Cron: os.Getenv("SCRAPE_CRON"),
		},
		Scraper: ScraperConfig{
			MaxPerHour:     getEnvInt("JOBS_MAX_PER_HOUR", 100),
			MinSpacingMS:   getEnvInt("JOBS_MIN_SPACING_MS", 500),
			IndexWorkers:   getEnvInt("INDEX_WORKERS", 1),
			DetailWorkers:  getEnvInt("DETAIL_WORKERS", 4),
			FetchTimeoutMS: getEnvInt("FETCH_TIMEOUT_MS", 10000),
			ProxyURL:       os.Getenv("PROXY_URL"),
		},
		Images: ImagesConfig{
			Dir:              getEnv("IMAGES_DIR", "images"),
			PlacePhotoMaxAge: 90 * 24 * time.Hour,
		},
		S3: S3Config{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		},
		QueueDB:  getEnv("QUEUE_DB_PATH", "quizscout.db"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Sources:  make(map[string]*SourceConfig),
	}

	if interval := os.Getenv("SCRAPE_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err == nil {
			cfg.Scheduler.Interval = d
		}
	}

	if err := cfg.loadSourceConfigs(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadSourceConfigs() error {
	configDir := "config/sources"
	entries, err := os.ReadDir(configDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		path := filepath.Join(configDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		var src SourceConfig
		if err := yaml.Unmarshal(data, &src); err != nil {
			return err
		}

		c.Sources[src.ID] = &src
	}

	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
