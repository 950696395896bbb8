// Command libraryserver runs the library REST API, backed by memory or PostgreSQL.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AntonStoeckl/bookshelf-sync/config"
	"github.com/AntonStoeckl/bookshelf-sync/libraryserver"
	"github.com/AntonStoeckl/bookshelf-sync/libraryserver/postgresrepo"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, logOut io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(cfg.Log.NewHandler(logOut))

	repo, closeRepo, err := openRepository(ctx, cfg.Server)
	if err != nil {
		return err
	}
	defer closeRepo()

	server, err := libraryserver.New(
		repo,
		libraryserver.WithLogger(logger),
		libraryserver.WithCORSOrigins(cfg.Server.CORSOrigins...),
	)
	if err != nil {
		return err
	}

	logger.Info("library server starting",
		"addr", cfg.Server.Addr,
		"repository", cfg.Server.Repository,
		"db_adapter", cfg.Server.DBAdapter,
	)

	return server.ListenAndServe(ctx, cfg.Server.Addr)
}

var errUnknownRepository = errors.New("unknown repository")

// openRepository returns the configured repository and a func releasing its connections.
func openRepository(ctx context.Context, cfg config.ServerConfig) (libraryserver.Repository, func(), error) {
	noop := func() {}

	if cfg.Repository == config.RepositoryMem {
		return libraryserver.NewMemoryRepository(time.Now), noop, nil
	}

	if cfg.Repository != config.RepositoryPG {
		return nil, noop, fmt.Errorf("%w: %q", errUnknownRepository, cfg.Repository)
	}

	var (
		repo    *postgresrepo.Repository
		release func()
		err     error
	)

	switch cfg.DBAdapter {
	case config.AdapterSQLDB:
		db, openErr := config.OpenSQLDB(ctx, cfg.PostgresDSN)
		if openErr != nil {
			return nil, noop, openErr
		}
		release = func() { _ = db.Close() }
		repo, err = postgresrepo.NewFromSQLDB(db)

	case config.AdapterSQLXDB:
		db, openErr := config.OpenSQLX(ctx, cfg.PostgresDSN)
		if openErr != nil {
			return nil, noop, openErr
		}
		release = func() { _ = db.Close() }
		repo, err = postgresrepo.NewFromSQLX(db)

	default:
		pool, openErr := config.OpenPGXPool(ctx, cfg.PostgresDSN)
		if openErr != nil {
			return nil, noop, openErr
		}
		release = pool.Close
		repo, err = postgresrepo.NewFromPGXPool(pool)
	}

	if err != nil {
		release()
		return nil, noop, err
	}

	if err := repo.Migrate(ctx); err != nil {
		release()
		return nil, noop, err
	}

	return repo, release, nil
}
