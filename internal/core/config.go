package core

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jo-hoe/bedready/internal/backend/snapshot"
	"gopkg.in/yaml.v3"
)

type Database struct {
	Type             string `yaml:"type"`
	ConnectionString string `yaml:"connectionString"`
}

type Webcam struct {
	SnapshotURL    string `yaml:"snapshotUrl"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

type Printer struct {
	BaseURL string `yaml:"baseUrl"`
	APIKey  string `yaml:"apiKey"`
}

type ServiceConfig struct {
	Port          int      `yaml:"port"`
	DataDirectory string   `yaml:"dataDirectory"`
	APIKey        string   `yaml:"apiKey"`
	Webcam        Webcam   `yaml:"webcam"`
	Database      Database `yaml:"database"`
	Redis         Redis    `yaml:"redis"`
	Printer       Printer  `yaml:"printer"`
}

// SnapshotTimeout returns the webcam timeout, falling back to the default
func (c *ServiceConfig) SnapshotTimeout() time.Duration {
	if c.Webcam.TimeoutSeconds <= 0 {
		return snapshot.DefaultTimeout
	}
	return time.Duration(c.Webcam.TimeoutSeconds) * time.Second
}

// LoadConfig loads configuration from the specified YAML file
func LoadConfig(configPath string) (*ServiceConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var config ServiceConfig
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", configPath, err)
	}

	return &config, nil
}

func (c *ServiceConfig) applyDefaults() {
	if c.Webcam.TimeoutSeconds <= 0 {
		c.Webcam.TimeoutSeconds = int(snapshot.DefaultTimeout / time.Second)
	}
	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.ConnectionString == "" && c.DataDirectory != "" {
		c.Database.ConnectionString = filepath.Join(c.DataDirectory, "bedready.db")
	}
}

func (c *ServiceConfig) validate() error {
	if c.DataDirectory == "" {
		return fmt.Errorf("dataDirectory must not be empty")
	}
	if c.Database.Type == "" {
		return fmt.Errorf("database type must not be empty")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	return nil
}
