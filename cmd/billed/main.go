package main

import (
	"context"
	"crypto/rand"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"

	"github.com/zombor/billed/internal/bill"
	"github.com/zombor/billed/internal/config"
	"github.com/zombor/billed/internal/employee"
	"github.com/zombor/billed/internal/session"
	"github.com/zombor/billed/internal/store"
	"github.com/zombor/billed/internal/ui"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

const shutdownTimeout = 10 * time.Second

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		if errors.Is(err, ff.ErrHelp) {
			fmt.Fprintf(os.Stderr, "%s\n", config.Help())
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "%s\n", config.Help())
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if cfg.ShowVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	slog.Info("Initializing database...", "path", cfg.DBPath)
	db, err := bill.NewBoltDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	// Initialize storage
	storage, err := newStorage(ctx, cfg)
	if err != nil {
		return err
	}

	service := bill.NewService(db, storage)
	api := bill.NewServer(service, bill.BasicAuth{
		Username: cfg.AuthUser,
		Password: cfg.AuthPass,
	})

	client, err := newClient(cfg, service)
	if err != nil {
		return err
	}

	secret, err := sessionSecret(cfg)
	if err != nil {
		return err
	}

	policy := employee.UploadOptional
	if cfg.UploadRequired {
		policy = employee.UploadRequired
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", api)
	pages := ui.NewServerWithMux(client, session.NewSigner(secret), mux,
		ui.WithUploadPolicy(policy),
		ui.WithLogger(logger),
	)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if cfg.BasicAuthEnabled() {
		slog.Info("Basic auth enabled", "user", cfg.AuthUser)
	}

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serving http: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Error shutting down server", "error", err)
	}
	pages.Wait()
	return nil
}

func newStorage(ctx context.Context, cfg *config.Config) (bill.Storage, error) {
	switch cfg.Storage {
	case config.StorageS3:
		slog.Info("Initializing S3 storage...", "endpoint", cfg.S3.Endpoint, "bucket", cfg.S3.Bucket)
		s3, err := bill.NewS3Storage(bill.S3Options{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			UseSSL:    cfg.S3.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("initializing s3 storage: %w", err)
		}
		if err := s3.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("ensuring bucket: %w", err)
		}
		return s3, nil
	default:
		slog.Info("Initializing storage...", "path", cfg.StoragePath)
		local, err := bill.NewLocalStorage(cfg.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("initializing storage: %w", err)
		}
		return local, nil
	}
}

// newClient talks to a remote bill API when one is configured, else to service directly
func newClient(cfg *config.Config, service *bill.Service) (store.Client, error) {
	if cfg.APIURL == "" {
		return store.NewLocal(service), nil
	}
	var opts []store.HTTPOption
	if cfg.BasicAuthEnabled() {
		opts = append(opts, store.WithBasicAuth(cfg.AuthUser, cfg.AuthPass))
	}
	client, err := store.NewHTTP(cfg.APIURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("initializing api client: %w", err)
	}
	slog.Info("Using remote bill API", "url", cfg.APIURL)
	return client, nil
}

func sessionSecret(cfg *config.Config) ([]byte, error) {
	if cfg.SessionSecret != "" {
		return []byte(cfg.SessionSecret), nil
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generating session secret: %w", err)
	}
	slog.Warn("No session secret configured, sessions will not survive a restart")
	return secret, nil
}
