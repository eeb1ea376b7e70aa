package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config aggregates runtime configuration for the dashboard API.
type Config struct {
	Environment    string
	HTTPPort       int
	LogLevel       string
	AllowedOrigins []string
	FrontendURL    string

	// Profile store selection: memory, postgres or hosted.
	ProfileStore string
	DatabaseURL  string

	// Hosted backend (credential gateway + data API).
	BackendURL    string
	BackendAPIKey string
	ProvisionURL  string

	// Google OIDC sign-in; disabled when the client id is empty.
	GoogleClientID       string
	GoogleClientSecret   string
	GoogleRedirectURL    string
	GoogleAllowedDomains []string
	GoogleAllowedEmails  []string

	AuthRatePerMinute int
	AuthRateBurst     int
}

// Load reads configuration from environment variables with sensible defaults for local development.
func Load() (Config, error) {
	databaseURL, err := getEnvOrFile("DATABASE_URL", "/run/secrets/dashboard_database_url")
	if err != nil {
		return Config{}, err
	}

	backendAPIKey, err := getEnvOrFile("BACKEND_API_KEY", "/run/secrets/dashboard_backend_api_key")
	if err != nil {
		return Config{}, err
	}

	googleSecret, err := getEnvOrFile("GOOGLE_CLIENT_SECRET", "")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Environment:          getEnv("APP_ENV", "development"),
		LogLevel:             strings.ToLower(getEnv("LOG_LEVEL", "info")),
		AllowedOrigins:       parseCSV(getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:8080")),
		FrontendURL:          strings.TrimSuffix(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),
		ProfileStore:         strings.ToLower(getEnv("PROFILE_STORE", "memory")),
		DatabaseURL:          databaseURL,
		BackendURL:           strings.TrimSuffix(getEnv("BACKEND_URL", ""), "/"),
		BackendAPIKey:        strings.TrimSpace(backendAPIKey),
		ProvisionURL:         getEnv("PROVISION_URL", ""),
		GoogleClientID:       getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:   strings.TrimSpace(googleSecret),
		GoogleRedirectURL:    getEnv("GOOGLE_REDIRECT_URL", ""),
		GoogleAllowedDomains: parseCSV(getEnv("GOOGLE_ALLOWED_DOMAINS", "")),
		GoogleAllowedEmails:  parseCSV(getEnv("GOOGLE_ALLOWED_EMAILS", "")),
	}

	portValue := getEnv("PORT", getEnv("HTTP_PORT", "8080"))
	port, err := strconv.Atoi(portValue)
	if err != nil {
		return Config{}, fmt.Errorf("invalid port %q: %w", portValue, err)
	}
	cfg.HTTPPort = port

	ratePerMinute, err := strconv.Atoi(getEnv("AUTH_RATE_PER_MINUTE", "30"))
	if err != nil || ratePerMinute <= 0 {
		return Config{}, fmt.Errorf("invalid AUTH_RATE_PER_MINUTE")
	}
	cfg.AuthRatePerMinute = ratePerMinute

	burst, err := strconv.Atoi(getEnv("AUTH_RATE_BURST", "10"))
	if err != nil || burst <= 0 {
		return Config{}, fmt.Errorf("invalid AUTH_RATE_BURST")
	}
	cfg.AuthRateBurst = burst

	switch cfg.ProfileStore {
	case "memory":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("PROFILE_STORE is postgres but DATABASE_URL is not set")
		}
	case "hosted":
		if cfg.BackendURL == "" {
			return Config{}, fmt.Errorf("PROFILE_STORE is hosted but BACKEND_URL is not set")
		}
	default:
		return Config{}, fmt.Errorf("unknown PROFILE_STORE %q", cfg.ProfileStore)
	}

	if cfg.GoogleClientID != "" && cfg.GoogleRedirectURL == "" {
		return Config{}, fmt.Errorf("GOOGLE_CLIENT_ID is set but GOOGLE_REDIRECT_URL is not")
	}

	return cfg, nil
}

// HTTPAddress returns the address the HTTP server should bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// GoogleSignInEnabled reports whether the OIDC flow is configured.
func (c Config) GoogleSignInEnabled() bool {
	return c.GoogleClientID != ""
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvOrFile(key, defaultPath string) (string, error) {
	if value := os.Getenv(key); value != "" {
		return value, nil
	}

	fileKey := key + "_FILE"
	if path := os.Getenv(fileKey); path != "" {
		return readSecret(path, fileKey)
	}

	if defaultPath != "" {
		return readSecret(defaultPath, key)
	}

	return "", nil
}

func readSecret(path, name string) (string, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("config: reading %s (%s): %w", name, path, err)
	}

	value := strings.TrimSpace(string(contents))
	if value == "" {
		return "", fmt.Errorf("config: %s (%s) is empty", name, path)
	}
	return value, nil
}
