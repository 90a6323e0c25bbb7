// config.go
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ServerConfig holds all server configuration
type ServerConfig struct {
	Server     ServerSettings     `json:"server"`
	Database   DatabaseSettings   `json:"database"`
	Security   SecuritySettings   `json:"security"`
	OCR        OCRSettings        `json:"ocr"`
	Analysis   AnalysisSettings   `json:"analysis"`
	Processing ProcessingSettings `json:"processing"`
}

// ServerSettings contains server-specific configuration
type ServerSettings struct {
	Interface             string `json:"interface"`
	Port                  int    `json:"port"`
	ReadTimeout           int    `json:"read_timeout"`
	WriteTimeout          int    `json:"write_timeout"`
	IdleTimeout           int    `json:"idle_timeout"`
	MaxConcurrentRequests int    `json:"max_concurrent_requests"`
}

// DatabaseSettings contains database configuration
type DatabaseSettings struct {
	Type     string `json:"type"`
	Path     string `json:"path"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	Database string `json:"database"`
}

// SecuritySettings contains security-related configuration
type SecuritySettings struct {
	SecretKey         string   `json:"-"` // Never serialize secret key
	SessionMaxAge     int      `json:"session_max_age"`
	RateLimitRequests int      `json:"rate_limit_requests"`
	RateLimitWindow   int      `json:"rate_limit_window"`
	EnableHTTPS       bool     `json:"enable_https"`
	CertFile          string   `json:"cert_file"`
	KeyFile           string   `json:"key_file"`
	AllowedOrigins    []string `json:"allowed_origins"`
}

// OCRSettings contains external OCR service configuration
type OCRSettings struct {
	URL            string `json:"url"`
	HealthCheckURL string `json:"health_check_url"`
	Timeout        int    `json:"timeout"`
}

// AnalysisSettings holds the text-analysis backend credentials. Keys are
// never serialized; they arrive through the environment.
type AnalysisSettings struct {
	AnthropicKey      string `json:"-"`
	AnthropicModel    string `json:"anthropic_model"`
	AnthropicEndpoint string `json:"anthropic_endpoint"`
	OpenAIKey         string `json:"-"`
	OpenAIModel       string `json:"openai_model"`
	OpenAIEndpoint    string `json:"openai_endpoint"`
	GeminiKey         string `json:"-"`
	GeminiModel       string `json:"gemini_model"`
	GeminiEndpoint    string `json:"gemini_endpoint"`
	RequestTimeout    int    `json:"request_timeout"`
}

// ProcessingSettings tunes the form pipeline
type ProcessingSettings struct {
	MinTextLength   int `json:"min_text_length"`
	BatchWindowSize int `json:"batch_window_size"`
	BatchPauseMs    int `json:"batch_pause_ms"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*ServerConfig, error) {
	// Default configuration
	config := &ServerConfig{
		Server: ServerSettings{
			Interface:             ":5000",
			Port:                  5000,
			ReadTimeout:           30,
			WriteTimeout:          60,
			IdleTimeout:           120,
			MaxConcurrentRequests: 64,
		},
		Database: DatabaseSettings{
			Type: "sqlite",
			Path: "safety_forms.db",
		},
		Security: SecuritySettings{
			SessionMaxAge:     86400, // 24 hours
			RateLimitRequests: 100,
			RateLimitWindow:   60, // 1 minute
			EnableHTTPS:       false,
			AllowedOrigins: []string{
				"http://localhost:3000",
				"http://localhost:5000",
				"http://127.0.0.1:3000",
				"http://127.0.0.1:5000",
			},
		},
		OCR: OCRSettings{
			URL:            "http://localhost:6000",
			HealthCheckURL: "http://localhost:6000/health",
			Timeout:        30,
		},
		Analysis: AnalysisSettings{
			AnthropicModel:    "claude-3-5-sonnet-20241022",
			AnthropicEndpoint: "https://api.anthropic.com",
			OpenAIModel:       "gpt-4o",
			OpenAIEndpoint:    "https://api.openai.com",
			GeminiModel:       "gemini-1.5-flash",
			GeminiEndpoint:    "https://generativelanguage.googleapis.com",
			RequestTimeout:    45,
		},
		Processing: ProcessingSettings{
			MinTextLength:   10,
			BatchWindowSize: 1,
			BatchPauseMs:    500,
		},
	}

	// Load from file if it exists
	if configPath != "" {
		if err := loadConfigFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %v", err)
		}
	}

	// Override with environment variables
	loadConfigFromEnv(config)

	// Validate configuration
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %v", err)
	}

	return config, nil
}

// loadConfigFromFile loads configuration from JSON file
func loadConfigFromFile(config *ServerConfig, path string) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File doesn't exist, use defaults
		}
		return err
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	return decoder.Decode(config)
}

// loadConfigFromEnv loads configuration from environment variables
func loadConfigFromEnv(config *ServerConfig) {
	// Security settings (most important)
	if secretKey := os.Getenv("SECRET_KEY"); secretKey != "" {
		config.Security.SecretKey = secretKey
	}

	// Server settings
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
			config.Server.Interface = fmt.Sprintf(":%d", p)
		}
	}
	if iface := os.Getenv("SERVER_INTERFACE"); iface != "" {
		config.Server.Interface = iface
	}

	// Database settings
	if dbType := os.Getenv("DB_TYPE"); dbType != "" {
		config.Database.Type = dbType
	}
	if dbPath := os.Getenv("DB_PATH"); dbPath != "" {
		config.Database.Path = dbPath
	}

	// OCR service settings
	if ocrURL := os.Getenv("OCR_SERVICE_URL"); ocrURL != "" {
		config.OCR.URL = ocrURL
		config.OCR.HealthCheckURL = ocrURL + "/health"
	}

	// Analysis backend credentials
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		config.Analysis.AnthropicKey = key
	}
	if model := os.Getenv("ANTHROPIC_MODEL"); model != "" {
		config.Analysis.AnthropicModel = model
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		config.Analysis.OpenAIKey = key
	}
	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		config.Analysis.OpenAIModel = model
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		config.Analysis.GeminiKey = key
	}
	if model := os.Getenv("GEMINI_MODEL"); model != "" {
		config.Analysis.GeminiModel = model
	}

	// Security settings
	if httpsEnabled := os.Getenv("ENABLE_HTTPS"); httpsEnabled != "" {
		config.Security.EnableHTTPS = strings.ToLower(httpsEnabled) == "true"
	}
	if certFile := os.Getenv("CERT_FILE"); certFile != "" {
		config.Security.CertFile = certFile
	}
	if keyFile := os.Getenv("KEY_FILE"); keyFile != "" {
		config.Security.KeyFile = keyFile
	}
}

// validateConfig validates the configuration
func validateConfig(config *ServerConfig) error {
	if config.Security.SecretKey == "" {
		return fmt.Errorf("SECRET_KEY is required")
	}

	if len(config.Security.SecretKey) < 32 {
		return fmt.Errorf("SECRET_KEY must be at least 32 characters long")
	}

	if config.Security.EnableHTTPS {
		if config.Security.CertFile == "" || config.Security.KeyFile == "" {
			return fmt.Errorf("CERT_FILE and KEY_FILE are required when HTTPS is enabled")
		}
	}

	if config.OCR.URL == "" {
		return fmt.Errorf("OCR service URL is required")
	}

	if config.Processing.MinTextLength < 0 {
		return fmt.Errorf("min_text_length must not be negative")
	}
	if config.Processing.BatchWindowSize < 0 {
		return fmt.Errorf("batch_window_size must not be negative")
	}

	return nil
}

// GetDatabaseDSN returns the database connection string
func (c *ServerConfig) GetDatabaseDSN() string {
	switch strings.ToLower(c.Database.Type) {
	case "sqlite":
		return c.Database.Path
	case "postgres", "postgresql":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			c.Database.Host, c.Database.Port, c.Database.Username, c.Database.Password, c.Database.Database)
	default:
		return c.Database.Path
	}
}
