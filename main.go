// main.go
package main

import (
	"log"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

var (
	db           *gorm.DB
	serverConfig *ServerConfig
	processor    *FormProcessor
	tracker      *Tracker
)

func main() {
	var err error

	// Load server configuration
	serverConfig, err = LoadConfig("config.json")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize the SQLite database connection
	db, err = gorm.Open(sqlite.Open(serverConfig.GetDatabaseDSN()), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Perform automatic schema migration
	db.AutoMigrate(&Session{}, &FormRecord{}, &Hazard{}, &AuditEvent{})

	// Build the pipeline collaborators
	backends := buildBackends(serverConfig.Analysis)
	if len(backends) == 0 {
		log.Println("WARNING: No analysis backend credentials configured; every form will use the rule fallback.")
	} else {
		names := make([]string, 0, len(backends))
		for _, backend := range backends {
			names = append(names, backend.Name())
		}
		log.Printf("Analysis backends configured in priority order: %v", names)
	}

	orchestrator := NewAnalysisOrchestrator(backends, time.Duration(serverConfig.Analysis.RequestTimeout)*time.Second)
	ocrClient := NewOCRClient(serverConfig.OCR.URL, time.Duration(serverConfig.OCR.Timeout)*time.Second)
	processor = NewFormProcessor(ocrClient, orchestrator, serverConfig.Processing)
	tracker = NewTracker(db)

	// Create a new Gin router for handling HTTP requests
	r := gin.Default()

	// Add security middleware
	r.Use(SecurityHeadersMiddleware())
	r.Use(CORSMiddleware(serverConfig.Security.AllowedOrigins))
	r.Use(LoggingMiddleware())
	r.Use(RateLimitMiddleware(serverConfig.Security.RateLimitRequests, time.Duration(serverConfig.Security.RateLimitWindow)*time.Second))
	r.Use(RequestStatsMiddleware(int64(serverConfig.Server.MaxConcurrentRequests)))

	// Set up session middleware using the secret key
	secretKey := serverConfig.Security.SecretKey
	if secretKey == "" {
		log.Fatalf("SECRET_KEY environment variable is required")
	}

	store := cookie.NewStore([]byte(secretKey))
	store.Options(sessions.Options{
		MaxAge:   serverConfig.Security.SessionMaxAge,
		Path:     "/",
		HttpOnly: true,
		Secure:   serverConfig.Security.EnableHTTPS,
	})
	r.Use(sessions.Sessions("safety_forms_session", store))

	// Register all the API routes
	registerRoutes(r)

	// Run a check for OCR service availability
	go func() {
		// Initial check
		if isOCRServiceOnline(serverConfig.OCR.HealthCheckURL) {
			log.Println("OCR service is online and responding to health checks")
		} else {
			log.Println("WARNING: OCR service is offline! Form uploads will fail at the OCR stage until it's available.")
			log.Printf("Make sure the OCR service is running at %s or adjust the configuration.", serverConfig.OCR.URL)
		}

		// Periodically check status
		ticker := time.NewTicker(5 * time.Minute)
		for range ticker.C {
			if isOCRServiceOnline(serverConfig.OCR.HealthCheckURL) {
				log.Println("OCR service connection status: Online")
			} else {
				log.Println("OCR service connection status: Offline")
			}
		}
	}()

	// Run the Gin server on the configured interface
	if serverConfig.Security.EnableHTTPS && serverConfig.Security.CertFile != "" && serverConfig.Security.KeyFile != "" {
		log.Printf("Starting HTTPS server on %s", serverConfig.Server.Interface)
		if err := r.RunTLS(serverConfig.Server.Interface, serverConfig.Security.CertFile, serverConfig.Security.KeyFile); err != nil {
			log.Fatalf("Failed to run HTTPS server: %v", err)
		}
	} else {
		log.Printf("Starting HTTP server on %s", serverConfig.Server.Interface)
		if err := r.Run(serverConfig.Server.Interface); err != nil {
			log.Fatalf("Failed to run server: %v", err)
		}
	}
}
