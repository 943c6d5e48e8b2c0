package authstore

import (
	"path/filepath"
	"testing"

	"github.com/gnsscaster/ntripcaster/pkg/dialect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadSeedFileMissingReadsEmpty(t *testing.T) {
	seed, err := ReadSeedFile(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, Seed{}, seed)
}

func TestSeedPutUserUpserts(t *testing.T) {
	var seed Seed
	seed.PutUser("alice", "first")
	seed.PutUser("bob", "bobpw")
	seed.PutUser("alice", "second")

	require.Len(t, seed.Users, 2)
	for _, u := range seed.Users {
		if u.Name == "alice" {
			assert.Equal(t, "second", u.Password)
		}
	}
}

func TestSeedPutMountUpserts(t *testing.T) {
	var seed Seed
	seed.PutMount("BASE1", "first", "")
	seed.PutMount("BASE1", "second", "alice")

	require.Len(t, seed.Mounts, 1)
	assert.Equal(t, "second", seed.Mounts[0].Secret)
	assert.Equal(t, "alice", seed.Mounts[0].OwnerUser)
}

func TestWriteThenReadSeedFileRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")

	var seed Seed
	seed.PutUser("alice", "alicepw")
	seed.PutMount("BASE1", "mountpw", "alice")
	require.NoError(t, WriteSeedFile(path, seed))

	got, err := ReadSeedFile(path)
	require.NoError(t, err)
	assert.Equal(t, seed, got)
}

func TestLoadSeedFileMissingYieldsEmptyStore(t *testing.T) {
	store, err := LoadSeedFile(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Empty(t, store.ListUsers())
	assert.Empty(t, store.ListMounts())
}

func TestLoadSeedFileHashesEntriesIntoStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")

	var seed Seed
	seed.PutUser("alice", "alicepw")
	seed.PutMount("BASE1", "mountpw", "alice")
	require.NoError(t, WriteSeedFile(path, seed))

	store, err := LoadSeedFile(path)
	require.NoError(t, err)

	assert.Equal(t, OK, store.VerifyConsumer("BASE1", "alice", "alicepw"))
	assert.Equal(t, OK, store.VerifyMountProducer("BASE1", dialect.V20, "mountpw", "alice", "alicepw"))
}
