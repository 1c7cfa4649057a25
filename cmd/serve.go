package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"package-registry/config"
	"package-registry/orm"
	"package-registry/publish"
	"package-registry/registry"
	"package-registry/registry/filesystemRegistry"
	"package-registry/registry/memoryRegistry"
	"package-registry/registry/s3"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var ErrUnknownPersistence = errors.New("unknown persistence type")

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Migrate the database and serve the registry API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := orm.InitDB(config.Cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close database")
		}
	}()

	if err := db.Migrate(); err != nil {
		return err
	}

	blobs, err := initializeBlobStore(ctx, config.Cfg.Persistence)
	if err != nil {
		return err
	}

	opts := []publish.Option{publish.WithTimeout(config.Cfg.PublishTimeout)}
	if blobs != nil {
		opts = append(opts, publish.WithMirror(blobs))
	}
	coordinator := publish.NewCoordinator(db, opts...)

	server := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(config.Cfg.Port)),
		Handler:           registry.NewServer(db, coordinator, blobs),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Int("port", config.Cfg.Port).Str("version", version).Msg("registry listening")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("serving http: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}

	return nil
}

// initializeBlobStore returns the configured blob mirror, nil for "none"
func initializeBlobStore(
	ctx context.Context,
	cfg config.PersistenceConfig,
) (registry.BlobStore, error) {
	switch cfg.Type {
	case "memory":
		log.Warn().Msg("blobs are mirrored in memory and lost on restart")

		return memoryRegistry.New(), nil
	case "filesystem":
		store, err := filesystemRegistry.New(cfg.StorageDir)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize filesystem blob store: %w", err)
		}
		log.Info().Str("storage_dir", cfg.StorageDir).Msg("filesystem blob store initialized")

		return store, nil
	case "s3":
		store, err := s3.New(ctx, cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize s3 blob store: %w", err)
		}
		log.Info().Str("bucket", cfg.S3.Bucket).Msg("s3 blob store initialized")

		return store, nil
	case "none":
		log.Info().Msg("blob mirror disabled, downloads are served from the database")

		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPersistence, cfg.Type)
	}
}
