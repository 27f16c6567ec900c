// Package config handles loading and parsing of offloader configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	offerr "github.com/mediaoffload/offloader/internal/errors"
)

// Config is the top-level configuration for the offloader.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Assets    AssetsConfig    `yaml:"assets"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Storage   StorageConfig   `yaml:"storage"`
	Migration MigrationConfig `yaml:"migration"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// ShutdownTimeout bounds graceful shutdown, in seconds.
	ShutdownTimeout int `yaml:"shutdown_timeout"`
	// APIToken, when set, is required as a bearer token on every /v1 route.
	APIToken string `yaml:"api_token"`
}

// LoggingConfig holds log/slog settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AssetsConfig describes where the host keeps its media files.
type AssetsConfig struct {
	// RootDir is the local asset storage root. Object keys are paths relative to it.
	RootDir string `yaml:"root_dir"`
}

// CatalogConfig holds catalog state store settings.
type CatalogConfig struct {
	// Engine is the catalog backend: "sqlite", "postgres" or "memory".
	Engine   string         `yaml:"engine"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific catalog settings.
type SQLiteConfig struct {
	// Path is the filesystem path for the SQLite database file.
	Path string `yaml:"path"`
}

// PostgresConfig holds PostgreSQL-specific catalog settings.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// StorageConfig holds object store settings.
type StorageConfig struct {
	// Backend is the object store type: "s3", "gcp", "azure", "local" or "memory".
	Backend string `yaml:"backend"`
	// PublicBaseURL is the public URL prefix under which offloaded keys are served.
	PublicBaseURL string `yaml:"public_base_url" validate:"required,url"`
	// KeepLocal keeps local copies after a successful offload.
	KeepLocal bool `yaml:"keep_local"`

	S3    S3Config    `yaml:"s3"`
	GCP   GCPConfig   `yaml:"gcp"`
	Azure AzureConfig `yaml:"azure"`
	Local LocalConfig `yaml:"local"`
}

// S3Config holds settings for any S3-compatible endpoint (R2, MinIO, AWS).
type S3Config struct {
	Endpoint     string `yaml:"endpoint" validate:"required,url"`
	Region       string `yaml:"region" validate:"required"`
	Bucket       string `yaml:"bucket" validate:"required"`
	AccessKey    string `yaml:"access_key" validate:"required"`
	SecretKey    string `yaml:"secret_key" validate:"required"`
	Prefix       string `yaml:"prefix"`
	UsePathStyle bool   `yaml:"use_path_style"`
	// ACL is an optional canned ACL applied on upload (e.g., "public-read").
	ACL string `yaml:"acl"`
}

// GCPConfig holds Google Cloud Storage settings.
type GCPConfig struct {
	Bucket  string `yaml:"bucket" validate:"required"`
	Project string `yaml:"project"`
	Prefix  string `yaml:"prefix"`
}

// AzureConfig holds Azure Blob Storage settings.
type AzureConfig struct {
	Container string `yaml:"container" validate:"required"`
	// Account is used to construct https://{account}.blob.core.windows.net
	// when AccountURL is empty.
	Account            string `yaml:"account"`
	AccountURL         string `yaml:"account_url" validate:"required_without=Account"`
	ConnectionString   string `yaml:"connection_string"`
	UseManagedIdentity bool   `yaml:"use_managed_identity"`
	Prefix             string `yaml:"prefix"`
}

// ResolvedAccountURL returns AccountURL, or the URL derived from Account.
func (a AzureConfig) ResolvedAccountURL() string {
	if a.AccountURL != "" {
		return a.AccountURL
	}
	if a.Account != "" {
		return fmt.Sprintf("https://%s.blob.core.windows.net", a.Account)
	}
	return ""
}

// LocalConfig holds settings for the local-directory object store.
type LocalConfig struct {
	RootDir string `yaml:"root_dir" validate:"required"`
}

// MigrationConfig tunes the batch engine.
type MigrationConfig struct {
	MigratePageSize     int `yaml:"migrate_page_size"`
	RevertPageSize      int `yaml:"revert_page_size"`
	ReuploadPageSize    int `yaml:"reupload_page_size"`
	DeleteLocalPageSize int `yaml:"delete_local_page_size"`
	// CheckpointTTL is the lifetime of a pass checkpoint, in seconds.
	CheckpointTTL int `yaml:"checkpoint_ttl"`
	// ItemPauseMS is the pause between assets within a page, in milliseconds.
	// Negative disables the pause.
	ItemPauseMS int `yaml:"item_pause_ms"`
	// RevertRequireAllFiles clears the remote marker on revert only when every
	// missing file was downloaded.
	RevertRequireAllFiles *bool `yaml:"revert_require_all_files"`
	// Exclusive refuses to start a step while another operation's pass is live.
	Exclusive *bool `yaml:"exclusive"`
}

// CheckpointTTLDuration returns CheckpointTTL as a time.Duration.
func (m MigrationConfig) CheckpointTTLDuration() time.Duration {
	return time.Duration(m.CheckpointTTL) * time.Second
}

// ItemPause returns ItemPauseMS as a time.Duration.
func (m MigrationConfig) ItemPause() time.Duration {
	if m.ItemPauseMS < 0 {
		return 0
	}
	return time.Duration(m.ItemPauseMS) * time.Millisecond
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled *bool `yaml:"enabled"`
}

// Load reads a YAML configuration file from the given path and returns
// a parsed Config. ${VAR} references are expanded from the environment
// before parsing, and defaults are applied for unset values.
// If the primary path fails, it falls back to offloader.example.yaml
// in the same directory or parent directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		fallbackPaths := []string{
			filepath.Join(filepath.Dir(path), "offloader.example.yaml"),
			filepath.Join(filepath.Dir(path), "..", "offloader.example.yaml"),
		}
		var fallbackErr error
		for _, fp := range fallbackPaths {
			data, fallbackErr = os.ReadFile(fp)
			if fallbackErr == nil {
				break
			}
		}
		if fallbackErr != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}
	return Parse(data)
}

// Parse parses YAML configuration bytes.
func Parse(data []byte) (*Config, error) {
	cfg := defaultConfig()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := defaultConfig()
	applyDefaults(cfg)
	return cfg
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Assets: AssetsConfig{
			RootDir: "./uploads",
		},
		Catalog: CatalogConfig{
			Engine: "sqlite",
			SQLite: SQLiteConfig{
				Path: "./data/catalog.db",
			},
		},
		Storage: StorageConfig{
			Backend: "s3",
			S3: S3Config{
				Region: "auto",
			},
			Local: LocalConfig{
				RootDir: "./data/objects",
			},
		},
		Migration: MigrationConfig{
			MigratePageSize:     5,
			RevertPageSize:      10,
			ReuploadPageSize:    10,
			DeleteLocalPageSize: 10,
			CheckpointTTL:       3600,
			ItemPauseMS:         100,
		},
	}
}

// applyDefaults fills in any fields that are still at their zero value
// after YAML unmarshaling.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Assets.RootDir == "" {
		cfg.Assets.RootDir = "./uploads"
	}
	if cfg.Catalog.Engine == "" {
		cfg.Catalog.Engine = "sqlite"
	}
	if cfg.Catalog.SQLite.Path == "" {
		cfg.Catalog.SQLite.Path = "./data/catalog.db"
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "s3"
	}
	if cfg.Storage.S3.Region == "" {
		cfg.Storage.S3.Region = "auto"
	}
	if cfg.Storage.Local.RootDir == "" {
		cfg.Storage.Local.RootDir = "./data/objects"
	}
	if cfg.Migration.MigratePageSize <= 0 {
		cfg.Migration.MigratePageSize = 5
	}
	if cfg.Migration.RevertPageSize <= 0 {
		cfg.Migration.RevertPageSize = 10
	}
	if cfg.Migration.ReuploadPageSize <= 0 {
		cfg.Migration.ReuploadPageSize = 10
	}
	if cfg.Migration.DeleteLocalPageSize <= 0 {
		cfg.Migration.DeleteLocalPageSize = 10
	}
	if cfg.Migration.CheckpointTTL <= 0 {
		cfg.Migration.CheckpointTTL = 3600
	}
	if cfg.Migration.RevertRequireAllFiles == nil {
		cfg.Migration.RevertRequireAllFiles = boolPtr(true)
	}
	if cfg.Migration.Exclusive == nil {
		cfg.Migration.Exclusive = boolPtr(true)
	}
	if cfg.Metrics.Enabled == nil {
		cfg.Metrics.Enabled = boolPtr(true)
	}
}

func boolPtr(b bool) *bool { return &b }

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateStorage reports whether the object store is fully configured for
// offloading: backend credentials present and a public base URL set. The
// returned error matches errors.ErrNotConfigured.
func ValidateStorage(s StorageConfig) error {
	var backend any
	switch s.Backend {
	case "s3", "aws", "r2":
		backend = s.S3
	case "gcp", "gcs":
		backend = s.GCP
	case "azure":
		backend = s.Azure
	case "local":
		backend = s.Local
	case "memory":
		backend = nil
	default:
		return offerr.ErrNotConfigured.WithMessage("unknown storage backend %q", s.Backend)
	}

	var missing []string
	if err := validate.Var(s.PublicBaseURL, "required,url"); err != nil {
		missing = append(missing, "public_base_url")
	}
	if backend != nil {
		if err := validate.Struct(backend); err != nil {
			verrs, ok := err.(validator.ValidationErrors)
			if !ok {
				return offerr.ErrNotConfigured.Wrap(err)
			}
			for _, fe := range verrs {
				missing = append(missing, yamlName(fe.StructField()))
			}
		}
	}
	if len(missing) > 0 {
		return offerr.ErrNotConfigured.WithMessage(
			"object storage is not configured: missing or invalid %s", strings.Join(missing, ", "))
	}
	return nil
}

// yamlName converts a Go field name such as AccessKey or AccountURL into
// access_key or account_url.
func yamlName(field string) string {
	var b strings.Builder
	prevLower := false
	for _, r := range field {
		if r >= 'A' && r <= 'Z' {
			if prevLower {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
			prevLower = false
		} else {
			prevLower = true
		}
		b.WriteRune(r)
	}
	return b.String()
}
