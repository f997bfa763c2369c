package metadata

import (
	"context"
	"testing"
	"time"

	"github.com/anacrolix/torrent/metainfo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindsgn-studio/torrentstream/internal/cacheio"
	"github.com/mindsgn-studio/torrentstream/internal/torrentengine"
)

type fakeHandle struct{ hash metainfo.Hash }

func (h fakeHandle) InfoHash() metainfo.Hash { return h.hash }

type fakeEngine struct {
	info     *metainfo.Info
	events   []*torrentengine.Event
	addErr   error
	infoErr  error
	removed  bool
}

func (f *fakeEngine) AddTorrent(params torrentengine.AddParams) (torrentengine.Handle, error) {
	if f.addErr != nil {
		return nil, f.addErr
	}
	return fakeHandle{hash: params.InfoHash}, nil
}

func (f *fakeEngine) RemoveTorrent(h torrentengine.Handle, deleteFiles bool) error {
	f.removed = true
	return nil
}

func (f *fakeEngine) WaitForAlert(ctx context.Context, timeout time.Duration) (*torrentengine.Event, bool) {
	if len(f.events) == 0 {
		return nil, false
	}
	ev := f.events[0]
	f.events = f.events[1:]
	return ev, true
}

func (f *fakeEngine) TorrentInfo(h torrentengine.Handle) (*metainfo.Info, error) {
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	return f.info, nil
}

func TestFetchDrivesUntilMetadataReceived(t *testing.T) {
	var hash metainfo.Hash
	copy(hash[:], []byte("01234567890123456789"))

	engine := &fakeEngine{
		info: &metainfo.Info{Name: "ubuntu.iso", PieceLength: 1 << 18, Length: 1 << 20},
		events: []*torrentengine.Event{
			{Kind: torrentengine.EventStateChanged, InfoHash: hash},
			{Kind: torrentengine.EventMetadataReceived, InfoHash: hash},
		},
	}
	cache := cacheio.New(t.TempDir(), nil)

	result, err := Fetch(context.Background(), engine, cache, nil, torrentengine.AddParams{InfoHash: hash})
	require.NoError(t, err)
	assert.True(t, engine.removed)
	assert.Contains(t, result.PublicURI, "torrent://")
	assert.NotNil(t, result.Params.Info)
}

func TestFetchServesFromCache(t *testing.T) {
	var hash metainfo.Hash
	copy(hash[:], []byte("abcdefghijabcdefghij"))

	cache := cacheio.New(t.TempDir(), nil)
	info := metainfo.Info{Name: "cached.iso", PieceLength: 1 << 18, Length: 1 << 20}
	body, err := buildTorrentBody(info, nil)
	require.NoError(t, err)
	require.NotEmpty(t, cache.Save(hash.HexString()+".torrent", body))

	engine := &fakeEngine{addErr: assert.AnError} // must not be called
	result, err := Fetch(context.Background(), engine, cache, nil, torrentengine.AddParams{InfoHash: hash})
	require.NoError(t, err)
	assert.Equal(t, "cached.iso", result.Params.Info.Name)
}

func TestFetchFailsWhenAddTorrentFails(t *testing.T) {
	var hash metainfo.Hash
	engine := &fakeEngine{addErr: assert.AnError}
	cache := cacheio.New(t.TempDir(), nil)

	_, err := Fetch(context.Background(), engine, cache, nil, torrentengine.AddParams{InfoHash: hash})
	require.Error(t, err)
}
