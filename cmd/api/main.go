package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abduss/photovault/internal/album"
	"github.com/abduss/photovault/internal/auth"
	"github.com/abduss/photovault/internal/catalog"
	"github.com/abduss/photovault/internal/config"
	"github.com/abduss/photovault/internal/lifecycle"
	"github.com/abduss/photovault/internal/logger"
	"github.com/abduss/photovault/internal/objectstore"
	"github.com/abduss/photovault/internal/photo"
	"github.com/abduss/photovault/internal/server"
	"github.com/abduss/photovault/internal/storage"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "photovault",
		Short:         "PhotoVault photo storage API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("load %s: %w", envFile, err)
			}
			if _, err := logger.Init(); err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			return nil
		},
	}
	root.PersistentFlags().String("env-file", ".env", "optional dotenv file")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run migrations and serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate(cmd.Context())
		},
	})
	return root
}

func migrate(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	pool, err := storage.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	if err := storage.Migrate(ctx, pool); err != nil {
		return err
	}
	zap.L().Info("migrations applied")
	return nil
}

func serve(parent context.Context) error {
	log := zap.L()
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := storage.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer dbPool.Close()

	if err := storage.Migrate(ctx, dbPool); err != nil {
		return err
	}

	minioClient, err := storage.NewMinIOClient(cfg.MinIO)
	if err != nil {
		return fmt.Errorf("connect minio: %w", err)
	}
	if err := storage.EnsureBuckets(ctx, minioClient, cfg.MinIO); err != nil {
		return fmt.Errorf("ensure buckets: %w", err)
	}

	store := catalog.NewPostgresStore(dbPool)
	authService := auth.NewService(store, auth.NewRepository(dbPool), cfg.Auth, cfg.Storage.DefaultQuotaBytes)

	policy := lifecycle.Policy{MaxRetries: cfg.Lifecycle.MaxStorageRetries}
	photoService := photo.NewService(store, objectstore.NewMinIOStore(minioClient, cfg.MinIO), policy, cfg.Storage, log)
	if cfg.Storage.EncryptionSecret != "" {
		encryptor, err := objectstore.NewEncryptor(cfg.Storage.EncryptionSecret)
		if err != nil {
			return fmt.Errorf("init encryption: %w", err)
		}
		photoService.WithCipher(encryptor)
	} else {
		log.Warn("PHOTOVAULT_ENCRYPTION_SECRET is empty, content encryption disabled")
	}

	router := server.NewRouter(server.Dependencies{
		Config:       cfg,
		DB:           dbPool,
		ObjectStore:  minioClient,
		AuthService:  authService,
		PhotoService: photoService,
		AlbumService: album.NewService(store),
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("PhotoVault API listening", zap.String("addr", cfg.Server.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info("shutting down gracefully")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
