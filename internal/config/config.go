package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver"` // mysql | postgres
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
	} `yaml:"database"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	Registry struct {
		Repository string `yaml:"repository"` // full image repo, e.g. registry.example.com/team/app
		Username   string `yaml:"username"`
		Token      string `yaml:"token"` // usually ${REGISTRY_TOKEN}
	} `yaml:"registry"`

	Quality struct {
		Endpoint string `yaml:"endpoint"`
		Token    string `yaml:"token"` // usually ${QUALITY_TOKEN}
	} `yaml:"quality"`

	Deploy struct {
		Endpoint     string `yaml:"endpoint"`
		ResourceUUID string `yaml:"resourceUUID"` // usually ${DEPLOY_RESOURCE_UUID}
		Token        string `yaml:"token"`        // usually ${DEPLOY_TOKEN}
	} `yaml:"deploy"`

	AI struct {
		APIKey string `yaml:"apiKey"` // usually ${OPENAI_API_KEY}
		Model  string `yaml:"model"`
	} `yaml:"ai"`

	Auth struct {
		APIKeys map[string]string `yaml:"apiKeys"` // tenant -> key
	} `yaml:"auth"`

	Pipelines struct {
		Files []string `yaml:"files"`
	} `yaml:"pipelines"`
}

// Load baca file config.yaml. Secrets are referenced by env var name in the
// file (${REGISTRY_TOKEN} etc) and resolved at load time. An unset variable
// is an error so a misdeployed service fails at startup, not mid-run.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var missing []string
	expanded := os.Expand(string(data), func(name string) string {
		v, ok := os.LookupEnv(name)
		if !ok {
			missing = append(missing, name)
		}
		return v
	})
	if len(missing) > 0 {
		return nil, fmt.Errorf("config %s references unset environment variables: %s",
			path, strings.Join(missing, ", "))
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// Helper untuk build DSN Postgres
func (c *Config) PostgresDSN() string {
	ssl := c.Database.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		ssl,
	)
}
