package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	AppMode         string
	Port            string
	Database        DatabaseConfig
	JWT             JWTConfig
	AllowedOrigins  []string
	TenderAutoClose TenderAutoCloseConfig
	SuperAdmin      SuperAdminConfig
}

// DatabaseConfig holds the Postgres connection settings
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN builds the postgres URL gorm's driver expects.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type JWTConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type TenderAutoCloseConfig struct {
	Enabled  bool
	Schedule string
}

// SuperAdminConfig seeds the first Super Admin when none exists. Empty values skip seeding.
type SuperAdminConfig struct {
	Email    string
	Password string
}

const devSecret = "dev_only_insecure_secret"

// Load reads configuration from the .env file and environment variables
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] .env file not found, using environment variables")
	}
	return fromEnv()
}

func fromEnv() (*Config, error) {
	appMode := strings.TrimSpace(getEnv("APP_MODE", "dev"))
	if appMode != "dev" && appMode != "prod" {
		return nil, fmt.Errorf("invalid APP_MODE: '%s' (must be 'dev' or 'prod')", appMode)
	}

	jwtCfg, err := loadJWTConfig(appMode)
	if err != nil {
		return nil, err
	}
	autoClose, err := strconv.ParseBool(getEnv("TENDER_AUTOCLOSE", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid TENDER_AUTOCLOSE: %w", err)
	}

	cfg := &Config{
		AppMode: appMode,
		Port:    getEnv("PORT", "8080"),
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Name:     getEnv("DB_NAME", "procurement"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		JWT:            jwtCfg,
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "")),
		TenderAutoClose: TenderAutoCloseConfig{
			Enabled:  autoClose,
			Schedule: getEnv("TENDER_AUTOCLOSE_SCHEDULE", "*/15 * * * *"),
		},
		SuperAdmin: SuperAdminConfig{
			Email:    getEnv("SUPER_ADMIN_EMAIL", ""),
			Password: getEnv("SUPER_ADMIN_PASSWORD", ""),
		},
	}
	if len(cfg.AllowedOrigins) == 0 && cfg.IsDev() {
		cfg.AllowedOrigins = []string{"http://localhost:5173", "http://127.0.0.1:5173"}
	}

	log.Printf("[config] loaded [MODE: %s]", appMode)
	return cfg, nil
}

func loadJWTConfig(mode string) (JWTConfig, error) {
	secret := getEnv("JWT_SECRET", "")
	if secret == "" {
		if mode == "prod" {
			return JWTConfig{}, errors.New("JWT_SECRET is required in prod mode")
		}
		secret = devSecret
	}

	accessHours, err := strconv.Atoi(getEnv("JWT_TTL_HOURS", "24"))
	if err != nil || accessHours <= 0 {
		return JWTConfig{}, fmt.Errorf("invalid JWT_TTL_HOURS: %q", os.Getenv("JWT_TTL_HOURS"))
	}
	refreshHours, err := strconv.Atoi(getEnv("REFRESH_TTL_HOURS", "168"))
	if err != nil || refreshHours <= 0 {
		return JWTConfig{}, fmt.Errorf("invalid REFRESH_TTL_HOURS: %q", os.Getenv("REFRESH_TTL_HOURS"))
	}

	return JWTConfig{
		Secret:     secret,
		AccessTTL:  time.Duration(accessHours) * time.Hour,
		RefreshTTL: time.Duration(refreshHours) * time.Hour,
	}, nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.AppMode == "dev"
}

func (c *Config) IsProd() bool {
	return c.AppMode == "prod"
}
