// Package config loads vgljobs configuration from defaults, an optional
// YAML file, VGLJOBS_ environment variables, and runtime overrides.
package config

import (
	"time"
)

// Config is the complete application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Catalog  CatalogConfig  `mapstructure:"catalog" yaml:"catalog"`
	Mail     MailConfig     `mapstructure:"mail" yaml:"mail"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level" yaml:"level"`
	Profile string `mapstructure:"profile" yaml:"profile"`
}

// DatabaseConfig selects the job store. Driver is sqlite (local file or
// remote libsql URL) or postgres.
type DatabaseConfig struct {
	Driver    string `mapstructure:"driver" yaml:"driver"`
	Path      string `mapstructure:"path" yaml:"path"`
	URL       string `mapstructure:"url" yaml:"url"`
	AuthToken string `mapstructure:"auth_token" yaml:"auth_token"`
	DSN       string `mapstructure:"dsn" yaml:"dsn"`
}

// StorageConfig selects where job outputs are listed from.
type StorageConfig struct {
	// Provider is s3 or file.
	Provider string `mapstructure:"provider" yaml:"provider"`

	// BaseDir holds one directory per bucket for the file provider.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`

	Region          string `mapstructure:"region" yaml:"region"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint"`
	Profile         string `mapstructure:"profile" yaml:"profile"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`
	ForcePathStyle  bool   `mapstructure:"force_path_style" yaml:"force_path_style"`
	MaxKeys         int    `mapstructure:"max_keys" yaml:"max_keys"`

	PublicURLTemplate string   `mapstructure:"public_url_template" yaml:"public_url_template"`
	Include           []string `mapstructure:"include" yaml:"include"`
	Exclude           []string `mapstructure:"exclude" yaml:"exclude"`
}

type CatalogConfig struct {
	URL               string        `mapstructure:"url" yaml:"url"`
	Username          string        `mapstructure:"username" yaml:"username"`
	Password          string        `mapstructure:"password" yaml:"password"`
	PublicationPath   string        `mapstructure:"publication_path" yaml:"publication_path"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int           `mapstructure:"burst" yaml:"burst"`
}

type MailConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	Host         string        `mapstructure:"host" yaml:"host"`
	Port         int           `mapstructure:"port" yaml:"port"`
	Username     string        `mapstructure:"username" yaml:"username"`
	Password     string        `mapstructure:"password" yaml:"password"`
	From         string        `mapstructure:"from" yaml:"from"`
	StartTLS     bool          `mapstructure:"starttls" yaml:"starttls"`
	PortalURL    string        `mapstructure:"portal_url" yaml:"portal_url"`
	BodyTemplate string        `mapstructure:"body_template" yaml:"body_template"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
}
