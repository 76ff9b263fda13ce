package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds the settings shared by the audiobook-manager binaries.
// Section pointers stay nil when the section is absent from the YAML file,
// which the deployment validator relies on to report missing sections.
type Config struct {
	// App describes the application identity and debug mode.
	App *AppConfig `yaml:"app"`
	// Server holds the HTTP server bind parameters.
	Server *ServerConfig `yaml:"server"`
	// Integrations holds connection settings for external services.
	Integrations *IntegrationsConfig `yaml:"integrations"`
	// Storage holds filesystem paths for downloads and the library.
	Storage *StorageConfig `yaml:"storage"`
	// Database holds the SQLite database location.
	Database *DatabaseConfig `yaml:"database"`
	// Logging holds log level and file destination.
	Logging *LoggingConfig `yaml:"logging"`
}

// AppConfig identifies the application.
type AppConfig struct {
	// Name is the human-readable application name.
	Name string `yaml:"name"`
	// Version is the configured application version string.
	Version string `yaml:"version"`
	// Debug enables verbose behavior in the server.
	Debug bool `yaml:"debug"`
}

// ServerConfig holds HTTP server bind parameters.
type ServerConfig struct {
	// Host is the bind address for the HTTP server.
	Host string `yaml:"host"`
	// Port is the TCP port for the HTTP server.
	Port int `yaml:"port"`
	// Workers is the number of concurrent download workers.
	Workers int `yaml:"workers"`
}

// IntegrationsConfig groups external service connections.
type IntegrationsConfig struct {
	// QBittorrent is the torrent client connection.
	QBittorrent *IntegrationConfig `yaml:"qbittorrent"`
	// Prowlarr is the indexer proxy connection.
	Prowlarr *IntegrationConfig `yaml:"prowlarr"`
	// Audiobookshelf is the library server connection.
	Audiobookshelf *IntegrationConfig `yaml:"audiobookshelf"`
}

// IntegrationConfig holds connection settings for one external service.
type IntegrationConfig struct {
	// Host is the base URL or host:port of the service.
	Host string `yaml:"host"`
	// APIKey authenticates API-key based services.
	APIKey string `yaml:"api_key"`
	// Username authenticates credential based services.
	Username string `yaml:"username"`
	// Password authenticates credential based services.
	Password string `yaml:"password"`
}

// StorageConfig holds filesystem locations used by the download pipeline.
type StorageConfig struct {
	// DownloadPath is where fetched audiobooks land first.
	DownloadPath string `yaml:"download_path"`
	// LibraryPath is the final audiobook library location.
	LibraryPath string `yaml:"library_path"`
}

// DatabaseConfig holds the SQLite database location.
type DatabaseConfig struct {
	// Path is the SQLite database file path.
	Path string `yaml:"path"`
}

// LoggingConfig holds logging destination and verbosity.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error, fatal).
	Level string `yaml:"level"`
	// File is an optional log file path; empty means stdout only.
	File string `yaml:"file"`
}

const (
	// DefaultDeploymentRoot is where the application is installed.
	DefaultDeploymentRoot = "/opt/audiobook-manager"

	// DefaultConfigFilename is the settings path relative to the deployment root.
	DefaultConfigFilename = "config/settings.yaml"

	// DefaultServerHost is the bind address used when none is configured.
	DefaultServerHost = "0.0.0.0"

	// DefaultServerPort is the HTTP port used when none is configured.
	DefaultServerPort = 8000

	// DefaultServerWorkers is the download worker count used when none is configured.
	DefaultServerWorkers = 2

	// DefaultDatabasePath is the SQLite file path relative to the deployment root.
	DefaultDatabasePath = "data/audiobooks.db"

	// DefaultLogLevel is the log level used when none is configured.
	DefaultLogLevel = "info"

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600

	// maxPort is the highest valid TCP port.
	maxPort = 65535
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errInvalidPort is returned when the server port is out of range.
	errInvalidPort = errors.New("server port must be between 1 and 65535")
)

// Load reads configuration from the provided path and validates essential fields.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks structural correctness and fills in defaults.
// Deployment-level checks (sections present, paths writable) belong to the
// validator package; this only guards values the binaries cannot run without.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.Server == nil {
		cfg.Server = &ServerConfig{}
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultServerHost
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > maxPort {
		return fmt.Errorf("%w: %d", errInvalidPort, cfg.Server.Port)
	}

	if cfg.Server.Workers <= 0 {
		cfg.Server.Workers = DefaultServerWorkers
	}

	address := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	if _, err := net.ResolveTCPAddr("tcp", address); err != nil {
		return fmt.Errorf("invalid server address: %w", err)
	}

	if cfg.Database == nil {
		cfg.Database = &DatabaseConfig{}
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = DefaultDatabasePath
	}

	if cfg.Logging == nil {
		cfg.Logging = &LoggingConfig{}
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}

	return nil
}

// ListenAddress returns the host:port the HTTP server should bind to.
func (c *Config) ListenAddress() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}
