package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/afero"
)

// Store drivers understood by the server.
const (
	DriverMemory   = "memory"
	DriverSurreal  = "surreal"
	DriverPostgres = "postgres"
)

// Room access policies.
const (
	AccessOpen    = "open"
	AccessMembers = "members"
)

// Provider is the read-only view of configuration consumed by the rest of
// the application.
type Provider interface {
	GetAddr() string
	GetLogFormat() string
	GetLogLevel() string

	GetStoreDriver() string
	GetStoreTimeout() time.Duration
	GetDBURL() string
	GetDBNs() string
	GetDBDb() string
	GetDBUser() string
	GetDBPass() string
	GetDBQueryTimeout() time.Duration
	GetDBExecuteTimeout() time.Duration
	GetPostgresURL() string

	GetJWTSecret() string
	GetJWTSecretFile() string
	GetJWTIssuer() string

	GetRoomAccess() string
	GetOutboxSize() int
	GetWriteTimeout() time.Duration
	GetMaxMessageLength() int
	GetHistoryLimit() int
	GetShutdownTimeout() time.Duration
	GetAllowedOrigins() []string
	GetRateLimit() float64
}

// Config holds all configuration for the application.
type Config struct {
	Addr      string `envconfig:"ADDR" default:":8080"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	StoreDriver  string        `envconfig:"STORE_DRIVER" default:"memory"`
	StoreTimeout time.Duration `envconfig:"STORE_TIMEOUT" default:"5s"`

	DBURL            string        `envconfig:"SURREAL_URL"`
	DBNs             string        `envconfig:"SURREAL_NS"`
	DBDb             string        `envconfig:"SURREAL_DB"`
	DBUser           string        `envconfig:"SURREAL_USER"`
	DBPass           string        `envconfig:"SURREAL_PASS"`
	DBQueryTimeout   time.Duration `envconfig:"DB_QUERY_TIMEOUT" default:"5s"`
	DBExecuteTimeout time.Duration `envconfig:"DB_EXECUTE_TIMEOUT" default:"10s"`

	PostgresURL string `envconfig:"DATABASE_URL"`

	JWTSecret     string `envconfig:"JWT_SECRET"`
	JWTSecretFile string `envconfig:"JWT_SECRET_FILE"`
	JWTIssuer     string `envconfig:"JWT_ISSUER" default:"chatrelay"`

	RoomAccess       string        `envconfig:"ROOM_ACCESS" default:"open"`
	OutboxSize       int           `envconfig:"OUTBOX_SIZE" default:"256"`
	WriteTimeout     time.Duration `envconfig:"WRITE_TIMEOUT" default:"10s"`
	MaxMessageLength int           `envconfig:"MAX_MESSAGE_LENGTH" default:"4000"`
	HistoryLimit     int           `envconfig:"HISTORY_LIMIT" default:"50"`
	ShutdownTimeout  time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	AllowedOrigins   []string      `envconfig:"ALLOWED_ORIGINS"`
	RateLimit        float64       `envconfig:"RATE_LIMIT" default:"10"`
}

// New loads configuration from the environment and an optional .env file.
// It terminates the process if the configuration is invalid.
func New() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg, err := Load(afero.NewOsFs())
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	return cfg
}

// Load decodes the environment into a Config. When JWT_SECRET_FILE is set
// the secret is read from that file on fs and overrides JWT_SECRET.
func Load(fs afero.Fs) (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if cfg.JWTSecretFile != "" {
		secret, err := ReadSecretFile(fs, cfg.JWTSecretFile)
		if err != nil {
			return nil, err
		}
		cfg.JWTSecret = secret
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ReadSecretFile returns the trimmed contents of a secret file.
func ReadSecretFile(fs afero.Fs, path string) (string, error) {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return "", fmt.Errorf("read secret file %s: %w", path, err)
	}
	secret := strings.TrimSpace(string(raw))
	if secret == "" {
		return "", fmt.Errorf("secret file %s is empty", path)
	}
	return secret, nil
}

// Validate checks cross-field constraints that envconfig cannot express.
func (c *Config) Validate() error {
	var errs []error

	switch c.StoreDriver {
	case DriverMemory:
	case DriverSurreal:
		if c.DBURL == "" || c.DBNs == "" || c.DBDb == "" {
			errs = append(errs, errors.New("SURREAL_URL, SURREAL_NS and SURREAL_DB are required for the surreal driver"))
		}
	case DriverPostgres:
		if c.PostgresURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}

	if c.RoomAccess != AccessOpen && c.RoomAccess != AccessMembers {
		errs = append(errs, fmt.Errorf("unknown ROOM_ACCESS %q", c.RoomAccess))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET or JWT_SECRET_FILE must be set"))
	}
	if c.OutboxSize <= 0 {
		errs = append(errs, errors.New("OUTBOX_SIZE must be positive"))
	}
	if c.MaxMessageLength <= 0 {
		errs = append(errs, errors.New("MAX_MESSAGE_LENGTH must be positive"))
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("STORE_TIMEOUT must be positive"))
	}

	return errors.Join(errs...)
}

func (c *Config) GetAddr() string      { return c.Addr }
func (c *Config) GetLogFormat() string { return c.LogFormat }
func (c *Config) GetLogLevel() string  { return c.LogLevel }

func (c *Config) GetStoreDriver() string             { return c.StoreDriver }
func (c *Config) GetStoreTimeout() time.Duration     { return c.StoreTimeout }
func (c *Config) GetDBURL() string                   { return c.DBURL }
func (c *Config) GetDBNs() string                    { return c.DBNs }
func (c *Config) GetDBDb() string                    { return c.DBDb }
func (c *Config) GetDBUser() string                  { return c.DBUser }
func (c *Config) GetDBPass() string                  { return c.DBPass }
func (c *Config) GetDBQueryTimeout() time.Duration   { return c.DBQueryTimeout }
func (c *Config) GetDBExecuteTimeout() time.Duration { return c.DBExecuteTimeout }
func (c *Config) GetPostgresURL() string             { return c.PostgresURL }

func (c *Config) GetJWTSecret() string     { return c.JWTSecret }
func (c *Config) GetJWTSecretFile() string { return c.JWTSecretFile }
func (c *Config) GetJWTIssuer() string     { return c.JWTIssuer }

func (c *Config) GetRoomAccess() string             { return c.RoomAccess }
func (c *Config) GetOutboxSize() int                { return c.OutboxSize }
func (c *Config) GetWriteTimeout() time.Duration    { return c.WriteTimeout }
func (c *Config) GetMaxMessageLength() int          { return c.MaxMessageLength }
func (c *Config) GetHistoryLimit() int              { return c.HistoryLimit }
func (c *Config) GetShutdownTimeout() time.Duration { return c.ShutdownTimeout }
func (c *Config) GetAllowedOrigins() []string       { return c.AllowedOrigins }
func (c *Config) GetRateLimit() float64             { return c.RateLimit }
