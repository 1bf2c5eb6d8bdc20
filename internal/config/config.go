package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all gateway configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Vault    VaultConfig
	Session  SessionConfig
	Guacd    GuacdConfig
	Screen   ScreenConfig
	Paths    PathConfig
	DevMode  bool // bypasses external-service validation for local development
}

// ServerConfig holds HTTP/WebSocket listener configuration.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// VaultConfig holds HashiCorp Vault configuration, used to resolve an
// Account's secret when it is not stored as a raw password.
type VaultConfig struct {
	Address  string
	Token    string
	RoleID   string
	SecretID string
}

// SessionConfig holds JWT/session-token configuration for the
// authenticate collaborator.
type SessionConfig struct {
	Secret  string
	Timeout time.Duration
}

// GuacdConfig holds the address of the local guacd daemon (spec §6:
// guacd_host, guacd_port) plus the optional connect-instruction
// parameters wallpaper/security/cert-ignore/auth-disable, applied to
// every GuacSession handshake. No recording-path parameter is
// configured or sent.
type GuacdConfig struct {
	Host            string
	Port            int
	IgnoreCert      bool
	Security        string
	EnableWallpaper bool
	DisableAuth     bool
}

// ScreenConfig holds the default Guacamole screen geometry (spec §6:
// screen.width, screen.height) used when a client omits width/height.
type ScreenConfig struct {
	Width  int
	Height int
}

// PathConfig holds the filesystem roots the core consumes directly
// (spec §6: replay_dir, record_root, remote_file_home_path).
type PathConfig struct {
	ReplayDir          string
	RecordRoot         string
	RemoteFileHomePath string
}

// Load reads configuration from the environment, falling back to a
// ".env" file if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "sessiongate"),
			Password:        getEnv("DB_PASSWORD", "sessiongate"),
			Database:        getEnv("DB_NAME", "sessiongate"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute),
		},
		Vault: VaultConfig{
			Address:  getEnv("VAULT_ADDR", "http://localhost:8200"),
			Token:    getEnv("VAULT_TOKEN", ""),
			RoleID:   getEnv("VAULT_ROLE_ID", ""),
			SecretID: getEnv("VAULT_SECRET_ID", ""),
		},
		Session: SessionConfig{
			Secret:  getEnv("SESSION_SECRET", "change-me-in-production"),
			Timeout: getEnvDuration("SESSION_TIMEOUT", 3600*time.Second),
		},
		Guacd: GuacdConfig{
			Host:            getEnv("GUACD_HOST", "127.0.0.1"),
			Port:            getEnvInt("GUACD_PORT", 4822),
			IgnoreCert:      getEnvBool("GUACD_IGNORE_CERT", true),
			Security:        getEnv("GUACD_SECURITY", "any"),
			EnableWallpaper: getEnvBool("GUACD_ENABLE_WALLPAPER", false),
			DisableAuth:     getEnvBool("GUACD_DISABLE_AUTH", true),
		},
		Screen: ScreenConfig{
			Width:  getEnvInt("SCREEN_WIDTH", 1024),
			Height: getEnvInt("SCREEN_HEIGHT", 768),
		},
		Paths: PathConfig{
			ReplayDir:          getEnv("REPLAY_DIR", "./recordings"),
			RecordRoot:         getEnv("RECORD_ROOT", "./recordings"),
			RemoteFileHomePath: getEnv("REMOTE_FILE_HOME_PATH", "/home"),
		},
		DevMode: getEnv("DEV_MODE", "false") == "true",
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Session.Secret == "change-me-in-production" {
		fmt.Fprintf(os.Stderr, "WARNING: using default session secret, set SESSION_SECRET in production\n")
	}

	if !c.DevMode {
		if c.Vault.Token == "" && (c.Vault.RoleID == "" || c.Vault.SecretID == "") {
			return fmt.Errorf("vault authentication requires either VAULT_TOKEN or both VAULT_ROLE_ID and VAULT_SECRET_ID")
		}
	} else {
		fmt.Fprintf(os.Stderr, "WARNING: development mode enabled, vault validation disabled\n")
	}

	if c.Paths.RemoteFileHomePath == "" {
		return fmt.Errorf("REMOTE_FILE_HOME_PATH cannot be empty")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
