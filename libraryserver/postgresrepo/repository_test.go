package postgresrepo_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/bookshelf-sync/config"
	"github.com/AntonStoeckl/bookshelf-sync/libraryserver"
	"github.com/AntonStoeckl/bookshelf-sync/libraryserver/postgresrepo"
	"github.com/AntonStoeckl/bookshelf-sync/testutil/repositorycontract"
)

const truncateTables = "TRUNCATE books, borrows"

func postgresDSN(t *testing.T) string {
	t.Helper()

	dsn := os.Getenv(config.EnvPostgresDSN)
	if dsn == "" {
		t.Skipf("%s not set, skipping PostgreSQL tests", config.EnvPostgresDSN)
	}

	return dsn
}

func Test_Repository_Contract_PGXPool(t *testing.T) {
	dsn := postgresDSN(t)
	ctx := context.Background()

	pool, err := config.OpenPGXPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	repositorycontract.Run(t, func(t *testing.T) libraryserver.Repository {
		repo, err := postgresrepo.NewFromPGXPool(pool)
		require.NoError(t, err)
		require.NoError(t, repo.Migrate(ctx))

		_, err = pool.Exec(ctx, truncateTables)
		require.NoError(t, err)

		return repo
	})
}

func Test_Repository_Contract_SQLDB(t *testing.T) {
	dsn := postgresDSN(t)
	ctx := context.Background()

	db, err := config.OpenSQLDB(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repositorycontract.Run(t, func(t *testing.T) libraryserver.Repository {
		repo, err := postgresrepo.NewFromSQLDB(db)
		require.NoError(t, err)
		require.NoError(t, repo.Migrate(ctx))

		_, err = db.ExecContext(ctx, truncateTables)
		require.NoError(t, err)

		return repo
	})
}

func Test_Repository_Contract_SQLX(t *testing.T) {
	dsn := postgresDSN(t)
	ctx := context.Background()

	db, err := config.OpenSQLX(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repositorycontract.Run(t, func(t *testing.T) libraryserver.Repository {
		repo, err := postgresrepo.NewFromSQLX(db)
		require.NoError(t, err)
		require.NoError(t, repo.Migrate(ctx))

		_, err = db.ExecContext(ctx, truncateTables)
		require.NoError(t, err)

		return repo
	})
}

func Test_Constructors_RejectNilConnections(t *testing.T) {
	_, err := postgresrepo.NewFromPGXPool(nil)
	require.ErrorIs(t, err, postgresrepo.ErrNilDatabaseConnection)

	_, err = postgresrepo.NewFromSQLDB(nil)
	require.ErrorIs(t, err, postgresrepo.ErrNilDatabaseConnection)

	_, err = postgresrepo.NewFromSQLX(nil)
	require.ErrorIs(t, err, postgresrepo.ErrNilDatabaseConnection)
}
