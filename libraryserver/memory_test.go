package libraryserver_test

import (
	"testing"

	"github.com/AntonStoeckl/bookshelf-sync/libraryserver"
	"github.com/AntonStoeckl/bookshelf-sync/testutil/repositorycontract"
)

func Test_MemoryRepository_Contract(t *testing.T) {
	repositorycontract.Run(t, func(*testing.T) libraryserver.Repository {
		return libraryserver.NewMemoryRepository(nil)
	})
}
