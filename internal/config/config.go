package config

import (
	"encoding/base64"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server settings
	Port string `json:"port"`
	Host string `json:"host"`

	// API authentication
	APIAuthToken string `json:"-"` // Don't expose in JSON

	// GitHub API settings
	GitHubToken          string `json:"-"`
	GitHubAppID          string `json:"github_app_id"`
	GitHubInstallationID string `json:"github_installation_id"`
	GitHubPrivateKey     string `json:"-"`
	GitHubAPIURL         string `json:"github_api_url"`

	// Summary provider settings
	SummaryProvider string `json:"summary_provider"` // "gemini" or "openai"
	GeminiAPIKey    string `json:"-"`
	GeminiModel     string `json:"gemini_model"`
	OpenAIAPIKey    string `json:"-"`
	OpenAIModel     string `json:"openai_model"`
	OpenAIBaseURL   string `json:"openai_base_url"`

	// Per-request pipeline deadline
	RequestTimeout int `json:"request_timeout_seconds"`
}

// Load reads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	config := &Config{
		Port:                 getEnvOrDefault("PORT", "8080"),
		Host:                 getEnvOrDefault("HOST", "0.0.0.0"),
		APIAuthToken:         getEnvOrDefault("API_AUTH_TOKEN", ""),
		GitHubToken:          getEnvOrDefault("GITHUB_TOKEN", ""),
		GitHubAppID:          getEnvOrDefault("GITHUB_APP_ID", ""),
		GitHubInstallationID: getEnvOrDefault("GITHUB_INSTALLATION_ID", ""),
		GitHubPrivateKey:     getEnvOrDefault("GITHUB_PRIVATE_KEY", ""),
		GitHubAPIURL:         getEnvOrDefault("GITHUB_API_URL", "https://api.github.com"),
		SummaryProvider:      getEnvOrDefault("SUMMARY_PROVIDER", "gemini"),
		GeminiAPIKey:         getEnvOrDefault("GEMINI_API_KEY", ""),
		GeminiModel:          getEnvOrDefault("GEMINI_MODEL", "gemini-2.5-flash"),
		OpenAIAPIKey:         getEnvOrDefault("OPENAI_API_KEY", ""),
		OpenAIModel:          getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:        getEnvOrDefault("OPENAI_BASE_URL", ""),
		RequestTimeout:       getEnvOrDefaultInt("REQUEST_TIMEOUT_SECONDS", 120),
	}

	// A base64 encoded key wins over the multi-line form; serverless
	// platforms cannot store multi-line env values.
	if encoded := os.Getenv("GITHUB_PRIVATE_KEY_B64"); encoded != "" {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, &ConfigError{Field: "GITHUB_PRIVATE_KEY_B64", Message: "invalid base64 encoding"}
		}
		config.GitHubPrivateKey = string(decoded)
	}

	return config, config.validate()
}

// validate checks if required configuration values are present
func (c *Config) validate() error {
	if c.APIAuthToken == "" {
		return &ConfigError{Field: "API_AUTH_TOKEN", Message: "API auth token is required"}
	}
	if c.GitHubToken == "" && !c.HasGitHubApp() {
		return &ConfigError{Field: "GITHUB_TOKEN", Message: "GitHub token or App credentials (GITHUB_APP_ID, GITHUB_INSTALLATION_ID, GITHUB_PRIVATE_KEY) are required"}
	}
	switch c.SummaryProvider {
	case "gemini":
		if c.GeminiAPIKey == "" {
			return &ConfigError{Field: "GEMINI_API_KEY", Message: "Gemini API key is required"}
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return &ConfigError{Field: "OPENAI_API_KEY", Message: "OpenAI API key is required"}
		}
	default:
		return &ConfigError{Field: "SUMMARY_PROVIDER", Message: "unknown summary provider: " + c.SummaryProvider}
	}
	if c.RequestTimeout <= 0 {
		return &ConfigError{Field: "REQUEST_TIMEOUT_SECONDS", Message: "request timeout must be positive"}
	}
	return nil
}

// HasGitHubApp reports whether a complete set of GitHub App credentials is configured
func (c *Config) HasGitHubApp() bool {
	return c.GitHubAppID != "" && c.GitHubInstallationID != "" && c.GitHubPrivateKey != ""
}

// getEnvOrDefault returns environment variable value or default if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default if not set
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
