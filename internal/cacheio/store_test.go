package cacheio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLookupLoadDelete(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, nil)

	path := s.Save("abc.torrent", []byte("bencoded-body"))
	require.NotEmpty(t, path)

	found := s.Lookup("abc.torrent")
	assert.Equal(t, path, found)

	data := s.Load("abc.torrent")
	assert.Equal(t, []byte("bencoded-body"), data)

	s.Delete("abc.torrent")
	assert.Empty(t, s.Lookup("abc.torrent"))
	assert.Nil(t, s.Load("abc.torrent"))
}

func TestMissingDirIsNoop(t *testing.T) {
	s := New("", nil)
	assert.Empty(t, s.Save("x", []byte("y")))
	assert.Empty(t, s.Lookup("x"))
	assert.Nil(t, s.Load("x"))
	s.Delete("x") // must not panic
}

func TestLookupMissingFile(t *testing.T) {
	s := New(t.TempDir(), nil)
	assert.Empty(t, s.Lookup("missing.torrent"))
	assert.Nil(t, s.Load("missing.torrent"))
}
