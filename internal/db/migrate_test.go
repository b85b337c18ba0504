package db

import (
	"testing"
	"testing/fstest"

	"parts-warehouse/migrations"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverMigrations_SortsAndChecksums(t *testing.T) {
	fsys := fstest.MapFS{
		"002_indexes.sql": {Data: []byte("CREATE INDEX x ON t (a);")},
		"001_init.sql":    {Data: []byte("CREATE TABLE t (a INT);")},
		"README.md":       {Data: []byte("ignored")},
	}

	got, err := DiscoverMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "001", got[0].Version)
	assert.Equal(t, "001_init.sql", got[0].Filename)
	assert.Equal(t, "002", got[1].Version)
	assert.Len(t, got[0].Checksum, 64)
	assert.NotEqual(t, got[0].Checksum, got[1].Checksum)
}

func TestDiscoverMigrations_RejectsDuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"001_init.sql":  {Data: []byte("SELECT 1;")},
		"001_other.sql": {Data: []byte("SELECT 2;")},
	}

	_, err := DiscoverMigrations(fsys)
	assert.ErrorContains(t, err, "duplicate migration version 001")
}

func TestDiscoverMigrations_RejectsBadFilename(t *testing.T) {
	fsys := fstest.MapFS{"init.sql": {Data: []byte("SELECT 1;")}}

	_, err := DiscoverMigrations(fsys)
	assert.ErrorContains(t, err, "invalid migration filename")
}

func TestEmbeddedMigrationsAreDiscoverable(t *testing.T) {
	got, err := DiscoverMigrations(migrations.FS)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "001", got[0].Version)
	assert.Contains(t, got[0].SQL, "CREATE TABLE IF NOT EXISTS stock_balances")
}
