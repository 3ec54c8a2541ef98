package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const defaultPath = "config/local.yaml"

// Config структура конфига
type Config struct {
	Log struct {
		Level string `yaml:"level" env:"LOG_LEVEL"`
	} `yaml:"log"`

	HTTP struct {
		Addr string `yaml:"addr" env:"HTTP_ADDR"`
	} `yaml:"http"`

	Backend struct {
		URL     string        `yaml:"url" env:"MOSAIC_BACKEND_URL"`
		Timeout time.Duration `yaml:"timeout" env:"MOSAIC_BACKEND_TIMEOUT"`
	} `yaml:"backend"`

	Detection struct {
		Detector     string        `yaml:"detector" env:"DETECTOR"`
		PollInterval time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
	} `yaml:"detection"`

	Mosaic struct {
		BlockSize    int `yaml:"block_size" env:"MOSAIC_BLOCK_SIZE"`
		CanvasWidth  int `yaml:"canvas_width" env:"CANVAS_WIDTH"`
		CanvasHeight int `yaml:"canvas_height" env:"CANVAS_HEIGHT"`
	} `yaml:"mosaic"`

	Postgres struct {
		DSN string `yaml:"dsn" env:"DATABASE_DSN"`
	} `yaml:"postgres"`

	Minio struct {
		Endpoint     string `yaml:"endpoint" env:"MINIO_ENDPOINT"`
		AccessKey    string `yaml:"access_key" env:"MINIO_ACCESS_KEY"`
		SecretKey    string `yaml:"secret_key" env:"MINIO_SECRET_KEY"`
		FramesBucket string `yaml:"frames_bucket" env:"MINIO_FRAMES_BUCKET"`
		OutputBucket string `yaml:"output_bucket" env:"MINIO_OUTPUT_BUCKET"`
	} `yaml:"minio"`

	Kafka struct {
		Brokers      []string `yaml:"brokers" env:"KAFKA_BROKERS" envSeparator:","`
		GroupID      string   `yaml:"group_id" env:"KAFKA_GROUP_ID"`
		CommandTopic string   `yaml:"command_topic" env:"COMMAND_TOPIC"`
		StatusTopic  string   `yaml:"status_topic" env:"STATUS_TOPIC"`
	} `yaml:"kafka"`
}

// Default returns the configuration used when neither the file nor the
// environment sets a value.
func Default() *Config {
	cfg := &Config{}
	cfg.Log.Level = "info"
	cfg.HTTP.Addr = ":8002"
	cfg.Backend.URL = "http://localhost:8000"
	cfg.Backend.Timeout = 30 * time.Second
	cfg.Detection.Detector = "nudenet"
	cfg.Detection.PollInterval = 2 * time.Second
	cfg.Mosaic.BlockSize = 10
	cfg.Mosaic.CanvasWidth = 1280
	cfg.Mosaic.CanvasHeight = 720
	cfg.Minio.FramesBucket = "frames"
	cfg.Minio.OutputBucket = "redacted"
	cfg.Kafka.GroupID = "redactor-group"
	cfg.Kafka.CommandTopic = "detection-commands"
	cfg.Kafka.StatusTopic = "detection-status"
	return cfg
}

// LoadConfig reads the YAML file over the defaults, then applies environment
// overrides. A missing file is not an error when path is empty.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = defaultPath
	}

	// Читаем YAML
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Парсим переменные окружения с приоритетом
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return errors.New("backend url is required")
	}
	if c.Detection.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.Detection.PollInterval)
	}
	if c.Mosaic.CanvasWidth <= 0 || c.Mosaic.CanvasHeight <= 0 {
		return fmt.Errorf("invalid canvas size %dx%d", c.Mosaic.CanvasWidth, c.Mosaic.CanvasHeight)
	}
	return nil
}
