package main

import (
	"os"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	// Set required environment variable for test
	os.Setenv("SECRET_KEY", "test_secret_key_that_is_long_enough_for_validation")
	defer os.Unsetenv("SECRET_KEY")

	// Test with empty config file
	config, err := LoadConfig("")
	if err != nil {
		t.Fatalf("Expected no error with empty config file, got: %v", err)
	}

	// Test default values
	if config.Server.Port != 5000 {
		t.Errorf("Expected default port 5000, got %d", config.Server.Port)
	}

	if config.Database.Type != "sqlite" {
		t.Errorf("Expected default database type 'sqlite', got %s", config.Database.Type)
	}

	if config.OCR.URL != "http://localhost:6000" {
		t.Errorf("Expected default OCR URL, got %s", config.OCR.URL)
	}

	if config.Processing.MinTextLength != 10 {
		t.Errorf("Expected default min text length 10, got %d", config.Processing.MinTextLength)
	}

	if config.Processing.BatchWindowSize != 1 {
		t.Errorf("Expected default batch window size 1, got %d", config.Processing.BatchWindowSize)
	}

	if config.Analysis.RequestTimeout != 45 {
		t.Errorf("Expected default analysis timeout 45, got %d", config.Analysis.RequestTimeout)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	// Set environment variables
	os.Setenv("SECRET_KEY", "test_secret_key_that_is_long_enough_for_validation")
	os.Setenv("PORT", "8080")
	os.Setenv("OCR_SERVICE_URL", "http://ocr.internal:7000")
	os.Setenv("ANTHROPIC_API_KEY", "test-anthropic-key")

	defer func() {
		os.Unsetenv("SECRET_KEY")
		os.Unsetenv("PORT")
		os.Unsetenv("OCR_SERVICE_URL")
		os.Unsetenv("ANTHROPIC_API_KEY")
	}()

	config, err := LoadConfig("")
	if err != nil {
		t.Fatalf("Expected no error loading config from env, got: %v", err)
	}

	if config.Server.Port != 8080 {
		t.Errorf("Expected port 8080 from env, got %d", config.Server.Port)
	}

	if config.OCR.URL != "http://ocr.internal:7000" {
		t.Errorf("Expected OCR URL from env, got %s", config.OCR.URL)
	}

	if config.OCR.HealthCheckURL != "http://ocr.internal:7000/health" {
		t.Errorf("Expected derived health check URL, got %s", config.OCR.HealthCheckURL)
	}

	if config.Analysis.AnthropicKey != "test-anthropic-key" {
		t.Error("Expected anthropic key from env")
	}
}

func TestValidateConfig(t *testing.T) {
	// Test missing secret key
	config := &ServerConfig{}
	err := validateConfig(config)
	if err == nil {
		t.Error("Expected error for missing secret key")
	}

	// Test short secret key
	config.Security.SecretKey = "short"
	err = validateConfig(config)
	if err == nil {
		t.Error("Expected error for short secret key")
	}

	// Test missing OCR URL
	config.Security.SecretKey = "this_is_a_long_enough_secret_key_for_testing"
	err = validateConfig(config)
	if err == nil {
		t.Error("Expected error for missing OCR URL")
	}

	// Test valid config
	config.OCR.URL = "http://localhost:6000"
	err = validateConfig(config)
	if err != nil {
		t.Errorf("Expected no error for valid config, got: %v", err)
	}

	// Test HTTPS config validation
	config.Security.EnableHTTPS = true
	err = validateConfig(config)
	if err == nil {
		t.Error("Expected error for HTTPS enabled without cert files")
	}

	config.Security.CertFile = "cert.pem"
	config.Security.KeyFile = "key.pem"
	err = validateConfig(config)
	if err != nil {
		t.Errorf("Expected no error for valid HTTPS config, got: %v", err)
	}
}

func TestGetDatabaseDSN(t *testing.T) {
	config := &ServerConfig{
		Database: DatabaseSettings{
			Type: "sqlite",
			Path: "test.db",
		},
	}

	if dsn := config.GetDatabaseDSN(); dsn != "test.db" {
		t.Errorf("Expected SQLite DSN 'test.db', got %s", dsn)
	}

	config.Database = DatabaseSettings{
		Type:     "postgres",
		Host:     "localhost",
		Port:     5432,
		Username: "forms",
		Password: "secret",
		Database: "safety_forms",
	}
	dsn := config.GetDatabaseDSN()
	expected := "host=localhost port=5432 user=forms password=secret dbname=safety_forms sslmode=disable"
	if dsn != expected {
		t.Errorf("Expected postgres DSN %q, got %q", expected, dsn)
	}
}
