package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bastionhq/sessiongate/internal/auth"
	"github.com/bastionhq/sessiongate/internal/collab"
	"github.com/bastionhq/sessiongate/internal/config"
	"github.com/bastionhq/sessiongate/internal/database"
	"github.com/bastionhq/sessiongate/internal/logger"
	"github.com/bastionhq/sessiongate/internal/multiplex"
	"github.com/bastionhq/sessiongate/internal/repository"
	"github.com/bastionhq/sessiongate/internal/server"
	"github.com/bastionhq/sessiongate/internal/vault"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.New(logger.LevelInfo, os.Stdout)
	log.Info("starting sessiongate", map[string]interface{}{"version": "0.1.0"})

	dbConfig := database.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	}

	db, err := database.New(dbConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	log.Info("connected to database", map[string]interface{}{
		"host": cfg.Database.Host,
		"port": cfg.Database.Port,
		"name": cfg.Database.Database,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if !cfg.DevMode {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database health check failed: %w", err)
		}
	}

	vaultConfig := vault.Config{
		Address:  cfg.Vault.Address,
		Token:    cfg.Vault.Token,
		RoleID:   cfg.Vault.RoleID,
		SecretID: cfg.Vault.SecretID,
	}

	vaultClient, err := vault.New(vaultConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize vault client: %w", err)
	}
	defer vaultClient.Close()

	log.Info("connected to vault", map[string]interface{}{"address": cfg.Vault.Address})

	if cfg.Vault.RoleID != "" && cfg.Vault.SecretID != "" {
		vaultClient.StartTokenRenewal(context.Background(), 15*time.Minute)
		log.Info("started vault token renewal")
	}

	tokenManager := auth.NewTokenManager(cfg.Session.Secret, cfg.Session.Timeout)

	assetRepo := repository.NewAssetRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	blocklistRepo := repository.NewBlocklistRepository(db)
	eventRepo := repository.NewEventRepository(db)

	lookup := collab.NewPostgresLookup(assetRepo, accountRepo, vaultClient)
	blocklist := collab.NewPostgresBlocklist(blocklistRepo)
	auditSubmitter := collab.NewPostgresAuditSubmitter(eventRepo, log)
	counter := collab.NewMemoryCounter()

	replay, err := collab.NewS3ReplayUploader(ctx, os.Getenv("REPLAY_BUCKET"), os.Getenv("AWS_REGION"), os.Getenv("REPLAY_S3_ENDPOINT"), cfg.Paths.ReplayDir+"/", os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY"))
	if err != nil {
		return fmt.Errorf("failed to configure replay uploader: %w", err)
	}

	mux := multiplex.New(log.Named("multiplex"))

	deps := server.Deps{
		Lookup:      lookup,
		Blocklist:   blocklist,
		Audit:       auditSubmitter,
		Replay:      replay,
		Counter:     counter,
		Multiplexer: mux,
	}

	srv := server.New(cfg, db, vaultClient, log, tokenManager, deps)

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server starting", map[string]interface{}{
			"host": cfg.Server.Host,
			"port": cfg.Server.Port,
		})
		serverErrors <- srv.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Info("shutdown signal received", map[string]interface{}{"signal": sig.String()})

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("error during shutdown", map[string]interface{}{"error": err.Error()})
			return fmt.Errorf("shutdown error: %w", err)
		}

		log.Info("shutdown complete")
	}

	return nil
}
