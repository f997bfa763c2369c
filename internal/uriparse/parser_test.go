package uriparse

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindsgn-studio/torrentstream/internal/torrentengine"
)

type fakeEngine struct {
	magnetParams torrentengine.AddParams
	magnetErr    error
	fileParams   torrentengine.AddParams
	fileErr      error
	lastPath     string
}

func (f *fakeEngine) ParseMagnetURI(uri string) (torrentengine.AddParams, error) {
	return f.magnetParams, f.magnetErr
}

func (f *fakeEngine) LoadTorrentFile(path string) (torrentengine.AddParams, error) {
	f.lastPath = path
	return f.fileParams, f.fileErr
}

func TestParseMagnet(t *testing.T) {
	want := torrentengine.AddParams{DisplayName: "ubuntu"}
	e := &fakeEngine{magnetParams: want}

	got, err := Parse(e, "magnet:?xt=urn:btih:abcdef")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestParseTorrentFilePath(t *testing.T) {
	e := &fakeEngine{fileParams: torrentengine.AddParams{DisplayName: "movie"}}

	_, err := Parse(e, "torrent://%2Fvar%2Ftorrents%2Fmovie.torrent")
	require.NoError(t, err)
	assert.Equal(t, "/var/torrents/movie.torrent", e.lastPath)
}

func TestParseEmptyIsInvalid(t *testing.T) {
	e := &fakeEngine{}
	_, err := Parse(e, "   ")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidURI))
}

func TestParseMagnetFailurePropagates(t *testing.T) {
	e := &fakeEngine{magnetErr: errors.New("bad magnet")}
	_, err := Parse(e, "magnet:?xt=urn:btih:zzzz")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidURI))
}
