// Package config assembles server configuration from environment variables,
// optionally seeded from a .env file. Every value has a working default so
// the server runs with no configuration at all.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime settings.
type Config struct {
	ListenAddr    string        // HTTP listen address
	DBFile        string        // path of the JSON document
	BackupDir     string        // backup folder
	MaxBackups    int           // backup retention count
	UploadDir     string        // attachment storage
	RefreshEvery  time.Duration // cooperative poll refresh interval
	AdminPassword string        // grants the admin role at login
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		ListenAddr:    ":8080",
		DBFile:        "data/trips.json",
		BackupDir:     "data/backups",
		MaxBackups:    10,
		UploadDir:     "data/uploads",
		RefreshEvery:  5 * time.Second,
		AdminPassword: "",
	}
}

// Load reads a .env file if present, then overrides defaults from the
// environment.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: .env not loaded: %v", err)
	}

	cfg := Default()
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("DB_FILE"); v != "" {
		cfg.DBFile = v
	}
	if v := os.Getenv("BACKUP_DIR"); v != "" {
		cfg.BackupDir = v
	}
	if v := os.Getenv("MAX_BACKUPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxBackups = n
		}
	}
	if v := os.Getenv("UPLOAD_DIR"); v != "" {
		cfg.UploadDir = v
	}
	if v := os.Getenv("REFRESH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.RefreshEvery = d
		}
	}
	if v := os.Getenv("ADMIN_PASSWORD"); v != "" {
		cfg.AdminPassword = v
	}
	return cfg
}
