package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tripchat/chat-app/internal/chat"
	"github.com/tripchat/chat-app/internal/config"
	"github.com/tripchat/chat-app/internal/server"
	"github.com/tripchat/chat-app/internal/store"
)

func main() {
	cfg := config.Load()

	st := store.New(store.Config{
		Path:       cfg.DBFile,
		BackupDir:  cfg.BackupDir,
		MaxBackups: cfg.MaxBackups,
	})

	engine := chat.NewEngine(st, cfg.UploadDir)

	srv := server.New(server.Config{
		ListenAddr:    cfg.ListenAddr,
		RefreshEvery:  cfg.RefreshEvery,
		AdminPassword: cfg.AdminPassword,
	}, st, engine)

	log.Printf("Tripchat server starting")
	log.Printf("  listen_addr:   %s", cfg.ListenAddr)
	log.Printf("  db_file:       %s", cfg.DBFile)
	log.Printf("  backup_dir:    %s", cfg.BackupDir)
	log.Printf("  max_backups:   %d", cfg.MaxBackups)
	log.Printf("  upload_dir:    %s", cfg.UploadDir)
	log.Printf("  refresh_every: %s", cfg.RefreshEvery)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		os.Exit(0)
	}()

	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
