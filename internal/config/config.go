package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the configuration settings for the day map service.
//
// Fields:
// - Env: The current environment (e.g., local, development, production).
// - Port: The port for the HTTP API and monitoring endpoints.
// - ProviderType: The type of geocoding provider to use (google, nominatim, visicom).
// - APIKey: The credential for the mapping and geocoding service.
// - RateLimit: Requests per second allowed against the provider, 0 keeps the provider default.
// - MaxInFlight: Cap on outstanding geocoding requests per batch, 0 means no cap.
// - RateLimitRetries: How many times a rate-limited address is requeued.
// - AddrPrefix: Prefix added to every address sent to the provider.
// - Map: Size of the map region.
// - Database: Configuration settings for the PostgreSQL database with saved trips.
type Config struct {
	Env              string         `mapstructure:"env"`
	Port             int            `mapstructure:"port"`
	ProviderType     string         `mapstructure:"provider_type"`
	APIKey           string         `mapstructure:"api_key"`
	RateLimit        int            `mapstructure:"rate_limit"`
	MaxInFlight      int            `mapstructure:"max_in_flight"`
	RateLimitRetries int            `mapstructure:"rate_limit_retries"`
	AddrPrefix       string         `mapstructure:"address_prefix"`
	Map              MapConfig      `mapstructure:"map"`
	Database         PostgresConfig `mapstructure:"postgres"`
}

// MapConfig describes the display region the map surface is bound to.
type MapConfig struct {
	Width  int `mapstructure:"width"`  // Width of the region in pixels.
	Height int `mapstructure:"height"` // Height of the region in pixels.
}

// PostgresConfig struct holds the configuration details for connecting to a PostgreSQL database.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`     // Host is the database server address.
	Port     string `mapstructure:"port"`     // Port is the database server port.
	User     string `mapstructure:"user"`     // User is the database user.
	Password string `mapstructure:"password"` // Password is the database user's password.
	Name     string `mapstructure:"db_name"`  // Name is the name of the database.
}

// Enabled reports whether saved trips are configured.
func (p PostgresConfig) Enabled() bool {
	return p.Host != ""
}

// MustLoad reads the configuration from the environment (a .env file is
// loaded first when present) and from the YAML file named by
// WAYPOINT_CONFIG_FILE. Environment variables win over the file.
// It panics when a value cannot be parsed.
func MustLoad() *Config {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("WAYPOINT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("env", "production")
	v.SetDefault("port", "8080")
	v.SetDefault("provider_type", "google")
	v.SetDefault("rate_limit", "0")
	v.SetDefault("max_in_flight", "0")
	v.SetDefault("rate_limit_retries", "0")
	v.SetDefault("map.width", "800")
	v.SetDefault("map.height", "600")
	v.SetDefault("postgres.port", "5432")

	_ = v.BindEnv("api_key", "WAYPOINT_API_KEY", "WAYPOINT_PROVIDER_KEY")
	_ = v.BindEnv("postgres.host", "WAYPOINT_DB_HOST", "DB_HOST")
	_ = v.BindEnv("postgres.port", "WAYPOINT_DB_PORT", "DB_PORT")
	_ = v.BindEnv("postgres.user", "WAYPOINT_DB_USERNAME", "DB_USERNAME")
	_ = v.BindEnv("postgres.password", "WAYPOINT_DB_PASSWORD", "DB_PASSWORD")
	_ = v.BindEnv("postgres.db_name", "WAYPOINT_DB_NAME", "DB_NAME")

	if path, ok := os.LookupEnv("WAYPOINT_CONFIG_FILE"); ok && path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			panic("failed to read configuration file")
		}
	}

	return &Config{
		Env:              v.GetString("env"),
		Port:             mustInt(v, "port", "failed to parse port for the server from configuration"),
		ProviderType:     v.GetString("provider_type"),
		APIKey:           v.GetString("api_key"),
		RateLimit:        mustInt(v, "rate_limit", "failed to parse rate limit from configuration, must be an integer"),
		MaxInFlight:      mustInt(v, "max_in_flight", "failed to parse max in flight from configuration, must be an integer"),
		RateLimitRetries: mustInt(v, "rate_limit_retries", "failed to parse rate limit retries from configuration, must be an integer"),
		AddrPrefix:       v.GetString("address_prefix"),
		Map: MapConfig{
			Width:  mustInt(v, "map.width", "failed to parse map width from configuration"),
			Height: mustInt(v, "map.height", "failed to parse map height from configuration"),
		},
		Database: PostgresConfig{
			Host:     v.GetString("postgres.host"),
			Port:     v.GetString("postgres.port"),
			User:     v.GetString("postgres.user"),
			Password: v.GetString("postgres.password"),
			Name:     v.GetString("postgres.db_name"),
		},
	}
}

func mustInt(v *viper.Viper, key, msg string) int {
	value, err := strconv.Atoi(strings.TrimSpace(v.GetString(key)))
	if err != nil || value < 0 {
		panic(msg)
	}

	return value
}
