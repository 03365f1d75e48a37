package checkpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hlclock/internal/hlc"
)

func TestStore_InMemory(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	defer s.Close()

	assert.True(t, s.Load().IsZero())

	saved, err := s.Save(hlc.MustPack(100, 2))
	require.NoError(t, err)
	assert.True(t, saved)
	assert.Equal(t, hlc.MustPack(100, 2), s.Load())
}

func TestStore_NeverMovesBackwards(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Save(hlc.MustPack(100, 2))
	require.NoError(t, err)

	saved, err := s.Save(hlc.MustPack(99, 500))
	require.NoError(t, err)
	assert.False(t, saved)

	saved, err = s.Save(hlc.MustPack(100, 2))
	require.NoError(t, err)
	assert.False(t, saved)

	assert.Equal(t, hlc.MustPack(100, 2), s.Load())
}

func TestStore_Reopen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	require.NoError(t, err)
	_, err = s.Save(hlc.MustPack(1679924536986, 17))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, hlc.MustPack(1679924536986, 17), s.Load())
}
