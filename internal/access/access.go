// Package access implements TorrentAccess, the lifecycle orchestrator of
// spec.md §3 "Lifecycle": parse → (fetch metadata) → (browse | start
// download), running until Close tears the session down in the two-phase
// sequence of spec.md §9.
package access

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mindsgn-studio/torrentstream/internal/cacheio"
	"github.com/mindsgn-studio/torrentstream/internal/config"
	"github.com/mindsgn-studio/torrentstream/internal/history"
	"github.com/mindsgn-studio/torrentstream/internal/metadata"
	"github.com/mindsgn-studio/torrentstream/internal/piece"
	"github.com/mindsgn-studio/torrentstream/internal/sessiondriver"
	"github.com/mindsgn-studio/torrentstream/internal/status"
	"github.com/mindsgn-studio/torrentstream/internal/torrentengine"
	"github.com/mindsgn-studio/torrentstream/internal/uriparse"
)

// resumeSaveWait bounds how long Close waits for the save-resume-data
// event before degrading to "no resume saved", per spec.md §7.
const resumeSaveWait = 5 * time.Second

// bootstrapRouters is the DHT bootstrap list named in spec.md §6.
var bootstrapRouters = []string{
	"router.bittorrent.com:6881",
	"router.utorrent.com:6881",
	"router.bitcomet.com:6881",
}

// TorrentAccess is one open session: a single torrent, its selected file,
// and the background Session Driver feeding it.
type TorrentAccess struct {
	sessionID uuid.UUID
	engine    torrentengine.Engine
	handle    torrentengine.Handle
	cache     *cacheio.Store
	history   *history.Store
	cfg       *config.Config
	log       *zap.Logger

	status     *status.Status
	controller *piece.Controller
	driver     *sessiondriver.Driver

	params    torrentengine.AddParams
	publicURI string
	files     []torrentengine.FileInfo

	selectedFile int
	lastOffset   int64

	driverCtx    context.Context
	driverCancel context.CancelFunc

	closeOnce sync.Once
}

// Open runs parse → (fetch metadata) → (browse | start download) and spawns
// the Session Driver. hist may be nil, in which case the session-history
// accelerator is simply skipped.
func Open(ctx context.Context, location string, cfg *config.Config, engine torrentengine.Engine, cache *cacheio.Store, hist *history.Store, log *zap.Logger) (*TorrentAccess, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.DownloadDir == "" {
		return nil, ErrNoDownloadDir
	}

	sessionID := uuid.New()
	log = log.With(zap.String("session_id", sessionID.String()))

	params, err := uriparse.Parse(engine, location)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}

	if hist != nil {
		if seen, err := hist.SeenBefore(params.InfoHash.HexString()); err != nil {
			log.Warn("access: history lookup failed", zap.Error(err))
		} else if seen {
			log.Info("access: warm-start, info-hash seen before", zap.String("info_hash", params.InfoHash.HexString()))
		}
	}

	publicURI := location
	if !params.HasMetadata() {
		result, err := metadata.Fetch(ctx, engine, cache, log, params)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMetadataFailed, err)
		}
		params = result.Params
		publicURI = result.PublicURI
	}

	params.SavePath = cfg.DownloadDir
	params.Storage = torrentengine.StorageAllocate

	if err := engine.SetSettings(engineSettings(cfg)); err != nil {
		log.Warn("access: apply engine settings failed", zap.Error(err))
	}

	handle, err := engine.AddTorrent(params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAddTorrentFailed, err)
	}
	if err := engine.SetSequentialDownload(handle, true); err != nil {
		log.Warn("access: set sequential download failed", zap.Error(err))
	}

	numPieces := 0
	if params.Info != nil {
		numPieces = params.Info.NumPieces()
	}

	st := status.New(status.QueuedForChecking)
	controller := piece.New(engine, handle, st, int32(numPieces))

	driverCtx, driverCancel := context.WithCancel(context.Background())
	driver := sessiondriver.New(engine, st, controller, cache, log, params.InfoHash.HexString())
	go driver.Run(driverCtx)

	files, err := engine.Files(handle)
	if err != nil {
		log.Warn("access: enumerate files failed", zap.Error(err))
	}

	ta := &TorrentAccess{
		sessionID:    sessionID,
		engine:       engine,
		handle:       handle,
		cache:        cache,
		history:      hist,
		cfg:          cfg,
		log:          log,
		status:       st,
		controller:   controller,
		driver:       driver,
		params:       params,
		publicURI:    publicURI,
		files:        files,
		selectedFile: -1,
		driverCtx:    driverCtx,
		driverCancel: driverCancel,
	}

	if hist != nil {
		if err := hist.RecordOpen(params.InfoHash.HexString(), params.DisplayName, location); err != nil {
			log.Warn("access: record open failed", zap.Error(err))
		}
	}

	if cfg.TorrentFileIndex >= 0 {
		if err := ta.SelectFile(cfg.TorrentFileIndex); err != nil {
			ta.Close()
			return nil, err
		}
	}

	log.Info("access: opened session",
		zap.String("info_hash", params.InfoHash.HexString()),
		zap.String("public_uri", publicURI),
		zap.Int("num_files", len(files)))

	return ta, nil
}

func engineSettings(cfg *config.Config) torrentengine.Settings {
	return torrentengine.Settings{
		ActiveDownloads:        1,
		ActiveSeeds:            1,
		AnnounceToAllTrackers:  true,
		UseDHTAsFallback:       false,
		InitialPickerThreshold: 0,
		NoAtimeStorage:         true,
		NoRecheckIncomplete:    true,
		MaxQueuedDiskBytes:     2 * 1024 * 1024,
		MaxPeerlistSize:        3000,
		NumWant:                200,
		TorrentConnectBoost:    20,
		ShareRatioLimit:        cfg.ShareRatioLimit,
		UploadRateLimit:        int64(cfg.UploadRateLimit) * 1024,
		DownloadRateLimit:      int64(cfg.DownloadRateLimit) * 1024,
		UserAgent:              "torrentstream/1.0 libtorrent/anacrolix",
		SequentialDownload:     true,
	}
}

// Files returns the torrent's file listing, largest-first, as spec.md §8
// scenario 1 expects for playlist browsing.
func (t *TorrentAccess) Files() []torrentengine.FileInfo {
	sorted := make([]torrentengine.FileInfo, len(t.files))
	copy(sorted, t.files)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].Length > sorted[j-1].Length; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	return sorted
}

// SelectFile switches the currently streamed file, rebuilding the piece
// queue from offset zero. index is 0-based per spec.md §9's resolved open
// question; negative values are rejected with InvalidArgument (surfaced
// here as the piece package's own sentinel, wrapped).
func (t *TorrentAccess) SelectFile(index int) error {
	if index < 0 || index >= len(t.files) {
		return fmt.Errorf("%w: file index %d out of range", piece.ErrInvalidArgument, index)
	}
	t.selectedFile = index
	t.lastOffset = 0
	return t.controller.SelectPieces(index, 0, t.files[index].Length)
}

// Seek rebuilds the piece queue starting at offset within the currently
// selected file, discarding any buffered pieces.
func (t *TorrentAccess) Seek(offset int64) error {
	if t.selectedFile < 0 {
		return fmt.Errorf("%w: no file selected", piece.ErrInvalidArgument)
	}
	if err := t.controller.SelectPieces(t.selectedFile, offset, t.files[t.selectedFile].Length); err != nil {
		return err
	}
	t.lastOffset = offset
	return nil
}

// ReadNextBlock delegates to the Piece Controller.
func (t *TorrentAccess) ReadNextBlock() (piece.Piece, bool) {
	return t.controller.ReadNextBlock()
}

// Player-facing capability answers, per spec.md §6.
func (t *TorrentAccess) CanPause() bool        { return true }
func (t *TorrentAccess) CanSeek() bool         { return true }
func (t *TorrentAccess) CanFastSeek() bool     { return false }
func (t *TorrentAccess) CanControlPace() bool  { return true }

// Close runs the two-phase shutdown of spec.md §9: issue save-resume-data,
// concurrently kick off the DHT-state save, wait for the resume-saved
// signal, then pause, remove the torrent, and join the driver.
func (t *TorrentAccess) Close() error {
	var closeErr error
	t.closeOnce.Do(func() {
		closeErr = t.close()
	})
	return closeErr
}

func (t *TorrentAccess) close() error {
	t.controller.Stop()

	var wg sync.WaitGroup
	var dhtState []byte
	wg.Add(1)
	go func() {
		defer wg.Done()
		state, err := t.engine.SaveDHTState()
		if err != nil {
			t.log.Warn("access: save dht state failed", zap.Error(err))
			return
		}
		dhtState = state
	}()

	if err := t.engine.SaveResumeData(t.handle); err != nil {
		t.log.Warn("access: save resume data request failed", zap.Error(err))
	}
	resumeData, gotResume := t.driver.WaitResumeSaved(resumeSaveWait)
	if !gotResume {
		t.log.Warn("access: resume data not produced within bound, degrading to no-resume shutdown")
	}

	wg.Wait()
	if t.cfg.KeepFiles && dhtState != nil {
		t.cache.Save("dht_state.dat", dhtState)
	}
	if !t.cfg.KeepFiles {
		t.cache.Delete(t.params.InfoHash.HexString() + ".torrent")
		t.cache.Delete(t.params.InfoHash.HexString() + ".resume")
	} else if gotResume {
		t.cache.Save(t.params.InfoHash.HexString()+".resume", resumeData)
	}

	if err := t.engine.Pause(t.handle); err != nil {
		t.log.Warn("access: pause failed", zap.Error(err))
	}
	if err := t.engine.RemoveTorrent(t.handle, !t.cfg.KeepFiles); err != nil {
		t.log.Warn("access: remove torrent failed", zap.Error(err))
	}

	t.driver.Stop()
	t.driverCancel()
	<-t.driver.Done()

	if t.history != nil {
		infoHash := t.params.InfoHash.HexString()
		if err := t.history.RecordOffset(infoHash, t.lastOffset); err != nil {
			t.log.Warn("access: record offset failed", zap.Error(err))
		}
		if err := t.history.RecordClose(infoHash); err != nil {
			t.log.Warn("access: record close failed", zap.Error(err))
		}
	}

	t.log.Info("access: closed session", zap.String("info_hash", t.params.InfoHash.HexString()))
	return nil
}
