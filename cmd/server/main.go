/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the clinic engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Build the zap logger
  3. Initialize SQLite store
  4. Bootstrap the first admin user if the user table is empty
  5. Create API handler with dependencies
  6. Start HTTP server with graceful shutdown

COMMAND-LINE FLAGS:
  -port        HTTP server port (default: 8080)
  -db          SQLite database path (default: clinic.db)
               Use ":memory:" for an in-memory database
  -currency    Display currency code for reports (default: USD)
  -log-level   zap level: debug, info, warn, error (default: info)
  -jwt-secret  HMAC secret for session tokens (required in production;
               a random secret is generated when omitted, which
               invalidates sessions on restart)
  -admin-user / -admin-pass
               Credentials for the bootstrap admin account, used only
               when the user table is empty

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/clinic.db" -jwt-secret="change-me"

  # Run with in-memory database on a different port
  ./server -db=":memory:" -port=3000

SEE ALSO:
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/brightsmile/clinic-engine/api"
	"github.com/brightsmile/clinic-engine/auth"
	"github.com/brightsmile/clinic-engine/clinic"
	"github.com/brightsmile/clinic-engine/store/sqlite"
)

func main() {
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "clinic.db", "SQLite database path")
	currency := flag.String("currency", "USD", "Display currency code for reports")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	jwtSecret := flag.String("jwt-secret", "", "HMAC secret for session tokens")
	adminUser := flag.String("admin-user", "admin", "Bootstrap admin username")
	adminPass := flag.String("admin-pass", "", "Bootstrap admin password (empty skips bootstrap)")
	flag.Parse()

	logger, err := buildLogger(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	secret := []byte(*jwtSecret)
	if len(secret) == 0 {
		secret = randomSecret()
		logger.Warn("no -jwt-secret provided, generated a random one; sessions will not survive a restart")
	}

	store, err := sqlite.New(*dbPath)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer store.Close()

	if err := bootstrapAdmin(context.Background(), store, *adminUser, *adminPass, logger); err != nil {
		logger.Fatal("failed to bootstrap admin user", zap.Error(err))
	}

	handler := api.NewHandler(store, logger, secret, *currency)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.Int("port", *port),
			zap.String("db", *dbPath),
			zap.String("currency", *currency))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func buildLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.Set(level); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("service", "clinic-engine")), nil
}

func randomSecret() []byte {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return []byte(hex.EncodeToString(buf))
}

// bootstrapAdmin creates the first admin account when the user table is
// empty, so a fresh deployment can log in.
func bootstrapAdmin(ctx context.Context, store clinic.Store, username, password string, logger *zap.Logger) error {
	count, err := store.CountUsers(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	if password == "" {
		logger.Warn("user table is empty and no -admin-pass provided; no one can log in")
		return nil
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	user := clinic.User{
		ID:           clinic.NewID(),
		Username:     username,
		PasswordHash: hash,
		Role:         clinic.RoleAdmin,
		CreatedAt:    time.Now().UTC(),
	}
	if err := store.InsertUser(ctx, user); err != nil {
		return err
	}
	logger.Info("bootstrap admin created", zap.String("username", username))
	return nil
}
