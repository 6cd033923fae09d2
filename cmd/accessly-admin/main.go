package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/accessly/accessly/pkg/auth"
	"github.com/accessly/accessly/pkg/settings"
	"github.com/accessly/accessly/pkg/store"
)

// Config holds the admin tool configuration
type Config struct {
	DBConnectionString string
	Email              string
	Password           string
	KeyDescription     string
	IssueKey           bool
	SkipMigrations     bool
	LogLevel           string
}

// Bootstrap tool: creates the first owner account, optionally issues it an
// API key, and marks the instance as set up. Safe to run against an empty
// database; refuses to run once setup is complete.
func main() {
	config := parseFlags()

	logger := setupLogger(config.LogLevel)

	if config.Email == "" || config.Password == "" {
		logger.Fatal("Both -email and -password are required")
	}
	if err := auth.ValidatePasswordStrength(config.Password); err != nil {
		logger.Fatalf("Password rejected: %v", err)
	}

	db, err := connectDatabase(config.DBConnectionString)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if !config.SkipMigrations {
		if err := store.RunMigrations(ctx, db); err != nil {
			logger.Fatalf("Failed to run migrations: %v", err)
		}
		logger.Info("Migrations applied")
	}

	settingsStore := settings.NewStore(db)
	current, err := settingsStore.Get(ctx)
	if err != nil {
		logger.Fatalf("Failed to read settings: %v", err)
	}
	if current.SetupComplete {
		logger.Fatal("Instance is already set up, refusing to bootstrap again")
	}

	creds := auth.NewCredentialStore(db)

	hash, err := auth.HashPassword(config.Password)
	if err != nil {
		logger.Fatalf("Failed to hash password: %v", err)
	}

	user, err := creds.CreateUser(ctx, config.Email, hash, true, auth.Grants{
		AllowRead:   true,
		AllowWrite:  true,
		AllowDelete: true,
		AllowAdmin:  true,
	})
	if err != nil {
		logger.Fatalf("Failed to create owner account: %v", err)
	}
	logger.WithFields(logrus.Fields{
		"user_id": user.ID,
		"email":   user.Email,
	}).Info("Owner account created")

	if config.IssueKey {
		key, secret, err := creds.RegenerateAPIKey(ctx, user.ID, config.KeyDescription)
		if err != nil {
			logger.Fatalf("Failed to issue API key: %v", err)
		}
		logger.WithField("key_id", key.ID).Info("API key issued")

		// The secret is shown exactly once; only its hash is stored.
		fmt.Printf("API key: %s:%s\n", key.ID, secret)
	}

	operator := auth.PermissionSet{Read: true, Write: true, Delete: true, Admin: true}
	setupDone := true
	if _, err := settingsStore.Apply(ctx, operator, settings.Update{
		SetupComplete: &setupDone,
		SuperAdminID:  &user.ID,
	}); err != nil {
		logger.Fatalf("Failed to mark setup complete: %v", err)
	}

	logger.Info("Bootstrap complete")
}

func parseFlags() *Config {
	config := &Config{}

	flag.StringVar(&config.DBConnectionString, "db", getEnv("ACCESSLY_POSTGRES_URL", "postgres://localhost:5432/accessly?sslmode=disable"), "Database connection string")
	flag.StringVar(&config.Email, "email", "", "Email address for the owner account")
	flag.StringVar(&config.Password, "password", "", "Password for the owner account")
	flag.BoolVar(&config.IssueKey, "issue-key", false, "Issue an API key for the owner account")
	flag.StringVar(&config.KeyDescription, "key-description", "bootstrap", "Description for the issued API key")
	flag.BoolVar(&config.SkipMigrations, "skip-migrations", false, "Do not run schema migrations before bootstrapping")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	flag.Parse()

	return config
}

func setupLogger(logLevel string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

func connectDatabase(connectionString string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
