package config

import (
	"fmt"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Store drivers accepted in STORE_DRIVER.
const (
	DriverMemory   = "memory"
	DriverBadger   = "badger"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"
	DriverSupabase = "supabase"
)

// Config holds all environment configuration values for the application.
// These values are loaded from the environment, optionally seeded from a .env file.
type Config struct {
	Host     string `env:"HOST,default=0.0.0.0"`
	Port     int    `env:"PORT,default=8080" validate:"min=1,max=65535"`
	LogLevel string `env:"LOG_LEVEL,default=INFO"`

	// CorsOrigins is a comma-separated list of origins, e.g. "http://localhost:5173,https://chat.example.com"
	CorsOrigins string `env:"CORS_ORIGINS"`

	// StoreDriver selects the persisted history log backend
	StoreDriver string `env:"STORE_DRIVER,default=badger" validate:"oneof=memory badger sqlite mongo supabase"`

	BadgerFilepath string `env:"BADGER_FILEPATH,default=./data/history" validate:"required_if=StoreDriver badger"`
	SQLitePath     string `env:"SQLITE_PATH,default=./data/history.db" validate:"required_if=StoreDriver sqlite"`

	MongoURI        string `env:"MONGO_URI,default=mongodb://localhost:27017" validate:"required_if=StoreDriver mongo"`
	MongoDatabase   string `env:"MONGO_DATABASE,default=parley" validate:"required_if=StoreDriver mongo"`
	MongoCollection string `env:"MONGO_COLLECTION,default=messages" validate:"required_if=StoreDriver mongo"`

	// SupabaseURL is the URL of your Supabase project
	SupabaseURL string `env:"SUPABASE_URL" validate:"required_if=StoreDriver supabase"`

	// SupabaseKey is the service role key for backend operations
	// This key has elevated privileges and should never be exposed to clients
	SupabaseKey string `env:"SUPABASE_SERVICE_ROLE_KEY" validate:"required_if=StoreDriver supabase"`

	// HistoryLimit is the number of messages replayed to a joining connection
	HistoryLimit       int           `env:"HISTORY_LIMIT,default=20" validate:"min=1,max=500"`
	PersistenceTimeout time.Duration `env:"PERSISTENCE_TIMEOUT,default=5s" validate:"gt=0"`

	WelcomeSender  string `env:"WELCOME_SENDER,default=Parley" validate:"required"`
	WelcomeMessage string `env:"WELCOME_MESSAGE,default=Welcome to the chat!" validate:"required"`

	// MaxMessageSize is the websocket read limit in bytes
	MaxMessageSize int `env:"MAX_MESSAGE_SIZE,default=65536" validate:"min=512"`
	// MaxBodyLength bounds the chat body in characters
	MaxBodyLength  int `env:"MAX_BODY_LENGTH,default=4096" validate:"min=1"`
	SendBufferSize int `env:"SEND_BUFFER_SIZE,default=256" validate:"min=1"`

	// DotEnvLoaded records whether a .env file was found, for startup logging
	DotEnvLoaded bool
}

// Load reads environment variables and returns a validated Config.
// It will load from a .env file if present, then read from environment variables.
// Falls back to sensible defaults if values are not set.
func Load() (*Config, error) {
	// Not an error if .env doesn't exist, as we may be running
	// in production with real environment variables
	loaded := godotenv.Load() == nil

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	cfg.DotEnvLoaded = loaded

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and cross-field requirements.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Address returns the host:port the HTTP server listens on.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AllowedOrigins returns the CORS origins, defaulting to local development ones.
func (c *Config) AllowedOrigins() []string {
	if strings.TrimSpace(c.CorsOrigins) == "" {
		return []string{"http://localhost:5173", "http://localhost:3000"}
	}

	// Split comma-separated origins and trim whitespace
	origins := strings.Split(c.CorsOrigins, ",")
	for i, origin := range origins {
		origins[i] = strings.TrimSpace(origin)
	}
	return origins
}
