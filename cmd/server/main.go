package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/coding-interview-platform/backend/api/handlers"
	"github.com/coding-interview-platform/backend/internal/config"
	"github.com/coding-interview-platform/backend/internal/store"
	"github.com/coding-interview-platform/backend/internal/ws"
	"github.com/gin-gonic/gin"
)

func main() {
	// Get configuration from file and environment
	cfg, err := config.Load(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Port = port
	}

	// Initialize the session store
	sessionStore := store.NewSessionStore()

	// Initialize WebSocket hub manager and handler
	hubManager := ws.NewHubManager(sessionStore)
	defer hubManager.Close()
	wsHandler := ws.NewHandler(hubManager)

	// Initialize handlers
	sessionHandler := handlers.NewSessionHandler(sessionStore, hubManager)
	webSocketHandler := handlers.NewWebSocketHandler(sessionStore, wsHandler)

	// Initialize Gin router
	r := gin.Default()

	// Enable CORS for browser clients
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins))

	// Root endpoint
	r.GET("/", sessionHandler.Root)

	// API routes
	api := r.Group("/api")
	{
		sessionHandler.RegisterRoutes(api)
	}

	// WebSocket route (outside the /api group)
	webSocketHandler.RegisterRoutes(r)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down server...")
		hubManager.Close()
		os.Exit(0)
	}()

	// Start server
	log.Printf("Starting server on %s", cfg.Addr())
	if err := r.Run(cfg.Addr()); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// corsMiddleware returns a CORS middleware for the configured origins.
func corsMiddleware(origins []string) gin.HandlerFunc {
	allowAll := false
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		case allowed[origin]:
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
