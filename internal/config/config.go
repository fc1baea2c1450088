package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Forecast ForecastConfig
	Weather  WeatherConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Driver     string
	URL        string
	Host       string
	Port       int
	User       string
	Password   string
	Name       string
	SSLMode    string
	SQLitePath string
}

// GetDSN returns DATABASE_URL when set, otherwise a keyword DSN built from the parts
func (d DatabaseConfig) GetDSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Enabled reports whether a Redis address was configured
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

type ForecastConfig struct {
	ModelDir         string
	ModelLoadTimeout time.Duration
	ModelCacheSize   int
	ModelCacheTTL    time.Duration
	FactorImpactStep float64
	Timezone         string
	Parallelism      int
	Seed             int64
}

type WeatherConfig struct {
	APIKey          string
	BaseURL         string
	Timeout         time.Duration
	RefreshInterval time.Duration
	RequestsPerMin  int
	MaxAttempts     int
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads .env (if present) and the process environment
func Load() (*Config, error) {
	// a missing .env is fine, the environment may already be populated
	_ = godotenv.Load()
	return LoadConfig()
}

// LoadConfig builds the configuration from the process environment
func LoadConfig() (*Config, error) {
	var err error
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Env:  getEnv("GO_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:        getEnv("DATABASE_URL", ""),
			Host:       getEnv("DB_HOST", ""),
			User:       getEnv("DB_USER", "loschorros"),
			Password:   getEnv("DB_PASSWORD", ""),
			Name:       getEnv("DB_NAME", "loschorros"),
			SSLMode:    getEnv("DB_SSLMODE", "disable"),
			SQLitePath: getEnv("SQLITE_PATH", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		Forecast: ForecastConfig{
			ModelDir: getEnv("MODEL_DIR", "models"),
			Timezone: getEnv("TZ_NAME", "America/El_Salvador"),
		},
		Weather: WeatherConfig{
			APIKey:  getEnv("OPENWEATHER_API_KEY", ""),
			BaseURL: getEnv("OPENWEATHER_URL", "https://api.openweathermap.org/data/2.5/weather"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if cfg.Server.ReadTimeout, err = getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.Server.WriteTimeout, err = getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.Database.Port, err = getIntEnv("DB_PORT", 5432); err != nil {
		return nil, err
	}
	if cfg.Redis.DB, err = getIntEnv("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.Redis.TTL, err = getDurationEnv("REDIS_TTL", 6*time.Hour); err != nil {
		return nil, err
	}
	if cfg.Forecast.ModelLoadTimeout, err = getDurationEnv("MODEL_LOAD_TIMEOUT", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.Forecast.ModelCacheSize, err = getIntEnv("MODEL_CACHE_SIZE", 32); err != nil {
		return nil, err
	}
	if cfg.Forecast.ModelCacheTTL, err = getDurationEnv("MODEL_CACHE_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Forecast.FactorImpactStep, err = getFloatEnv("FACTOR_IMPACT_STEP", 0.05); err != nil {
		return nil, err
	}
	if cfg.Forecast.Parallelism, err = getIntEnv("FORECAST_PARALLELISM", 4); err != nil {
		return nil, err
	}
	seed, err := getIntEnv("FORECAST_SEED", 0)
	if err != nil {
		return nil, err
	}
	cfg.Forecast.Seed = int64(seed)
	if cfg.Weather.Timeout, err = getDurationEnv("OPENWEATHER_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.Weather.RefreshInterval, err = getDurationEnv("WEATHER_REFRESH_INTERVAL", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Weather.RequestsPerMin, err = getIntEnv("OPENWEATHER_RPM", 30); err != nil {
		return nil, err
	}
	if cfg.Weather.MaxAttempts, err = getIntEnv("OPENWEATHER_MAX_ATTEMPTS", 3); err != nil {
		return nil, err
	}

	cfg.Database.Driver = getEnv("DB_DRIVER", cfg.Database.detectDriver())
	switch cfg.Database.Driver {
	case DriverPostgres, DriverSQLite, DriverMemory:
	default:
		return nil, fmt.Errorf("config: unknown DB_DRIVER %q", cfg.Database.Driver)
	}
	if cfg.Forecast.FactorImpactStep < 0 {
		return nil, fmt.Errorf("config: FACTOR_IMPACT_STEP must not be negative")
	}

	return cfg, nil
}

func (d DatabaseConfig) detectDriver() string {
	switch {
	case d.URL != "" || d.Host != "":
		return DriverPostgres
	case d.SQLitePath != "":
		return DriverSQLite
	default:
		return DriverMemory
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getIntEnv(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s: %w", key, err)
	}
	return parsed, nil
}

func getFloatEnv(key string, fallback float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s: %w", key, err)
	}
	return parsed, nil
}

func getDurationEnv(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s: %w", key, err)
	}
	return parsed, nil
}
