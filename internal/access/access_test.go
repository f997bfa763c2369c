package access

import (
	"context"
	"testing"
	"time"

	"github.com/anacrolix/torrent/metainfo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindsgn-studio/torrentstream/internal/cacheio"
	"github.com/mindsgn-studio/torrentstream/internal/config"
	"github.com/mindsgn-studio/torrentstream/internal/history"
	"github.com/mindsgn-studio/torrentstream/internal/torrentengine"
)

// fakeHandle/fakeEngine implement torrentengine.Engine end-to-end so
// TorrentAccess can be exercised without the anacrolix/torrent adapter.
type fakeHandle struct{ hash metainfo.Hash }

func (h fakeHandle) InfoHash() metainfo.Hash { return h.hash }

type fakeEngine struct {
	info           metainfo.Info
	events         chan *torrentengine.Event
	removedDeleted *bool
}

func newFakeEngine() *fakeEngine {
	deleted := false
	return &fakeEngine{
		info:           metainfo.Info{Name: "movie.mkv", PieceLength: 1 << 18, Length: 1 << 20},
		events:         make(chan *torrentengine.Event, 16),
		removedDeleted: &deleted,
	}
}

func (f *fakeEngine) ParseMagnetURI(uri string) (torrentengine.AddParams, error) {
	var hash metainfo.Hash
	copy(hash[:], []byte("01234567890123456789"))
	return torrentengine.AddParams{InfoHash: hash, DisplayName: "movie"}, nil
}

func (f *fakeEngine) LoadTorrentFile(path string) (torrentengine.AddParams, error) {
	var hash metainfo.Hash
	copy(hash[:], []byte("fileloadfileloadfile"))
	return torrentengine.AddParams{InfoHash: hash, Info: &f.info}, nil
}

func (f *fakeEngine) AddTorrent(params torrentengine.AddParams) (torrentengine.Handle, error) {
	if params.Info == nil {
		params.Info = &f.info
	}
	f.events <- &torrentengine.Event{Kind: torrentengine.EventMetadataReceived, InfoHash: params.InfoHash}
	return fakeHandle{hash: params.InfoHash}, nil
}

func (f *fakeEngine) RemoveTorrent(h torrentengine.Handle, deleteFiles bool) error {
	*f.removedDeleted = deleteFiles
	return nil
}

func (f *fakeEngine) SetAlertMask(mask int) error { return nil }

func (f *fakeEngine) WaitForAlert(ctx context.Context, timeout time.Duration) (*torrentengine.Event, bool) {
	select {
	case ev := <-f.events:
		return ev, true
	case <-time.After(timeout):
		return nil, false
	}
}

func (f *fakeEngine) PopAlerts() []*torrentengine.Event { return nil }
func (f *fakeEngine) SaveDHTState() ([]byte, error)     { return []byte("dht-state"), nil }
func (f *fakeEngine) LoadDHTState(data []byte) error    { return nil }
func (f *fakeEngine) StartDHT(routers []string) error   { return nil }
func (f *fakeEngine) AddDHTRouter(addr string) error    { return nil }
func (f *fakeEngine) SetSettings(s torrentengine.Settings) error { return nil }
func (f *fakeEngine) Pause(h torrentengine.Handle) error         { return nil }

func (f *fakeEngine) SaveResumeData(h torrentengine.Handle) error {
	f.events <- &torrentengine.Event{Kind: torrentengine.EventSaveResumeData, ResumeData: []byte("resume")}
	return nil
}

func (f *fakeEngine) SetPiecePriority(h torrentengine.Handle, pieceIndex int32, priority int32) error {
	return nil
}
func (f *fakeEngine) SetPieceDeadline(h torrentengine.Handle, pieceIndex int32, deadlineMS int32) error {
	return nil
}
func (f *fakeEngine) ReadPiece(h torrentengine.Handle, pieceIndex int32) ([]byte, error) {
	return make([]byte, f.info.PieceLength), nil
}
func (f *fakeEngine) SetSequentialDownload(h torrentengine.Handle, on bool) error { return nil }

func (f *fakeEngine) Status(h torrentengine.Handle) (torrentengine.TorrentStatus, error) {
	return torrentengine.TorrentStatus{State: torrentengine.TorrentState(3)}, nil
}

func (f *fakeEngine) TorrentInfo(h torrentengine.Handle) (*metainfo.Info, error) {
	return &f.info, nil
}

func (f *fakeEngine) Files(h torrentengine.Handle) ([]torrentengine.FileInfo, error) {
	return []torrentengine.FileInfo{
		{Index: 0, Path: "movie.mkv", Length: f.info.Length, Offset: 0},
	}, nil
}

func (f *fakeEngine) MapFile(h torrentengine.Handle, fileIndex int, fileOffset int64, size int64) ([]torrentengine.PieceRange, error) {
	return []torrentengine.PieceRange{{PieceID: 0, Offset: 0, Length: 100}}, nil
}

func (f *fakeEngine) Close() error { return nil }

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.DownloadDir = t.TempDir()
	cfg.TorrentFileIndex = 0
	cfg.KeepFiles = true
	return cfg
}

func TestOpenMagnetAndSelectFile(t *testing.T) {
	engine := newFakeEngine()
	cache := cacheio.New(t.TempDir(), nil)
	cfg := testConfig(t)

	ta, err := Open(context.Background(), "magnet:?xt=urn:btih:0123456789", cfg, engine, cache, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, ta)
	assert.Equal(t, 0, ta.selectedFile)

	require.NoError(t, ta.Close())
}

func TestOpenRejectsEmptyDownloadDir(t *testing.T) {
	engine := newFakeEngine()
	cache := cacheio.New(t.TempDir(), nil)
	cfg := testConfig(t)
	cfg.DownloadDir = ""

	_, err := Open(context.Background(), "magnet:?xt=urn:btih:0123456789", cfg, engine, cache, nil, nil)
	assert.ErrorIs(t, err, ErrNoDownloadDir)
}

func TestCloseDeletesFilesWhenKeepFilesFalse(t *testing.T) {
	engine := newFakeEngine()
	cache := cacheio.New(t.TempDir(), nil)
	cfg := testConfig(t)
	cfg.KeepFiles = false

	ta, err := Open(context.Background(), "magnet:?xt=urn:btih:0123456789", cfg, engine, cache, nil, nil)
	require.NoError(t, err)

	require.NoError(t, ta.Close())
	assert.True(t, *engine.removedDeleted)
}

func TestSeekRebuildsQueue(t *testing.T) {
	engine := newFakeEngine()
	cache := cacheio.New(t.TempDir(), nil)
	cfg := testConfig(t)

	ta, err := Open(context.Background(), "magnet:?xt=urn:btih:0123456789", cfg, engine, cache, nil, nil)
	require.NoError(t, err)
	defer ta.Close()

	require.NoError(t, ta.Seek(1024))
}

func TestOpenAndCloseRecordSessionHistory(t *testing.T) {
	engine := newFakeEngine()
	cache := cacheio.New(t.TempDir(), nil)
	cfg := testConfig(t)

	hist, err := history.Open(":memory:")
	require.NoError(t, err)
	defer hist.Close()

	ta, err := Open(context.Background(), "magnet:?xt=urn:btih:0123456789", cfg, engine, cache, hist, nil)
	require.NoError(t, err)

	infoHash := ta.params.InfoHash.HexString()
	seen, err := hist.SeenBefore(infoHash)
	require.NoError(t, err)
	assert.True(t, seen)

	require.NoError(t, ta.Seek(2048))
	require.NoError(t, ta.Close())

	entry, ok, err := hist.Lookup(infoHash)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2048), entry.LastOffset)
	assert.False(t, entry.LastOpenedAt.IsZero())
}
