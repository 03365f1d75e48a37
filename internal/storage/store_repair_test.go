package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hlclock/internal/hlc"
)

func TestInMemoryStore_PutRepair(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Put("key1", []byte("value1"), 0)
	require.NoError(t, err)

	// Repair with a newer remote version (should overwrite)
	remote := hlc.MustPack(wallTime+100, 4)
	require.NoError(t, store.PutRepair("key1", []byte("value2"), remote, false))

	vv := store.Get("key1")
	require.NotNil(t, vv)
	assert.Equal(t, "value2", string(vv.Value))
	assert.Equal(t, remote, vv.Version, "repair keeps the exact version")

	// The clock observed the remote version, so the next local write follows it
	next, err := store.Put("key1", []byte("value3"), 0)
	require.NoError(t, err)
	assert.Equal(t, hlc.MustPack(wallTime+100, 6), next)
}

func TestInMemoryStore_PutRepair_RejectsOlderVersion(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Put("key1", []byte("value1"), 0)
	require.NoError(t, err)

	err = store.PutRepair("key1", []byte("value2"), hlc.MustPack(wallTime-10, 0), false)
	require.NoError(t, err)

	vv := store.Get("key1")
	require.NotNil(t, vv)
	assert.Equal(t, "value1", string(vv.Value), "older version must not overwrite")
}

func TestInMemoryStore_PutRepair_Tombstone(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Put("key1", []byte("value1"), 0)
	require.NoError(t, err)

	require.NoError(t, store.PutRepair("key1", []byte("ignored"), hlc.MustPack(wallTime+1, 0), true))

	vv := store.Get("key1")
	require.NotNil(t, vv)
	assert.True(t, vv.IsTombstone())
	assert.Nil(t, vv.Value)
}

func TestInMemoryStore_PutRepair_SameVersion(t *testing.T) {
	store, _ := newTestStore(t)

	version, err := store.Put("key1", []byte("value1"), 0)
	require.NoError(t, err)

	// Our own write echoed back by a replica is a no-op
	require.NoError(t, store.PutRepair("key1", []byte("value1"), version, false))

	// Same version, different payload: a collision
	err = store.PutRepair("key1", []byte("other"), version, false)
	assert.ErrorIs(t, err, hlc.ErrAmbiguousMerge)

	vv := store.Get("key1")
	require.NotNil(t, vv)
	assert.Equal(t, "value1", string(vv.Value))
}

func TestInMemoryStore_PutRepair_ZeroVersion(t *testing.T) {
	store, _ := newTestStore(t)
	assert.Error(t, store.PutRepair("key1", []byte("v"), 0, false))
}

func TestInMemoryStore_PutRepair_NewKey(t *testing.T) {
	store, _ := newTestStore(t)

	version := hlc.MustPack(wallTime-500, 2)
	require.NoError(t, store.PutRepair("fresh", []byte("v"), version, false))

	vv := store.Get("fresh")
	require.NotNil(t, vv)
	assert.Equal(t, version, vv.Version)
	assert.Equal(t, []string{"fresh"}, store.Keys())
}
