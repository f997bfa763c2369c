// Package metadata implements the Metadata Fetcher of spec.md §4.3: given
// add-parameters lacking a torrent body (the magnet case), it drives the
// engine until metadata arrives, persists the synthesized .torrent, and
// rewrites the public location URI to point at the cached file.
package metadata

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
	"go.uber.org/zap"

	"github.com/mindsgn-studio/torrentstream/internal/cacheio"
	"github.com/mindsgn-studio/torrentstream/internal/torrentengine"
)

func newByteReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}

// pollInterval is the WaitForAlert timeout used while synchronously
// pumping the engine on the calling thread, matching the Session Driver's
// own per-iteration timeout (spec.md §4.5) so both loops share one cadence.
const pollInterval = time.Second

// Engine is the narrow slice of torrentengine.Engine the fetcher needs.
type Engine interface {
	AddTorrent(params torrentengine.AddParams) (torrentengine.Handle, error)
	RemoveTorrent(h torrentengine.Handle, deleteFiles bool) error
	WaitForAlert(ctx context.Context, timeout time.Duration) (*torrentengine.Event, bool)
	TorrentInfo(h torrentengine.Handle) (*metainfo.Info, error)
}

// Result is the outcome of a successful fetch: params now carries a
// populated Info, and publicURI points at the cached .torrent file.
type Result struct {
	Params    torrentengine.AddParams
	PublicURI string
}

func cacheName(hash metainfo.Hash) string {
	return hash.HexString() + ".torrent"
}

func publicURI(path string) string {
	return "torrent://" + path
}

// Fetch runs the full algorithm of spec.md §4.3. If params already has
// metadata, it's returned unchanged with no public URI rewrite (callers
// only invoke Fetch for the magnet case).
func Fetch(ctx context.Context, engine Engine, cache *cacheio.Store, log *zap.Logger, params torrentengine.AddParams) (Result, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if params.HasMetadata() {
		return Result{Params: params}, nil
	}
	name := cacheName(params.InfoHash)

	// Step 1: probe the cache.
	if cached := cache.Load(name); cached != nil {
		mi, err := metainfo.Load(newByteReader(cached))
		if err == nil {
			info, err := mi.UnmarshalInfo()
			if err == nil {
				params.Info = &info
				path := cache.Lookup(name)
				log.Debug("metadata: served from cache", zap.String("info_hash", params.InfoHash.HexString()))
				return Result{Params: params, PublicURI: publicURI(path)}, nil
			}
		}
		log.Warn("metadata: cached entry unreadable, refetching", zap.String("info_hash", params.InfoHash.HexString()))
	}

	// Step 2: add the torrent and drive the event pump synchronously on
	// the calling thread until metadata-received, per spec.md §9.
	handle, err := engine.AddTorrent(params)
	if err != nil {
		return Result{}, fmt.Errorf("%w: add torrent: %v", ErrMetadataFailed, err)
	}

	for {
		select {
		case <-ctx.Done():
			return Result{}, fmt.Errorf("%w: %v", ErrMetadataFailed, ctx.Err())
		default:
		}

		ev, ok := engine.WaitForAlert(ctx, pollInterval)
		if !ok {
			continue
		}
		if ev.Kind == torrentengine.EventMetadataReceived && ev.InfoHash == params.InfoHash {
			break
		}
	}

	// Step 3: snapshot info, build the canonical .torrent body, cache it.
	info, err := engine.TorrentInfo(handle)
	if err != nil {
		return Result{}, fmt.Errorf("%w: read torrent info: %v", ErrMetadataFailed, err)
	}
	params.Info = info

	body, err := buildTorrentBody(*info, params.Trackers)
	if err != nil {
		return Result{}, fmt.Errorf("%w: encode torrent body: %v", ErrMetadataFailed, err)
	}

	path := cache.Save(name, body)
	if path == "" {
		return Result{}, fmt.Errorf("%w: cache write failed", ErrMetadataFailed)
	}

	_ = engine.RemoveTorrent(handle, false)

	log.Info("metadata: fetched and cached",
		zap.String("info_hash", params.InfoHash.HexString()),
		zap.String("path", path))

	return Result{Params: params, PublicURI: publicURI(path)}, nil
}

// buildTorrentBody bencodes a standalone .torrent dictionary from the
// now-known info and the trackers collected from the magnet link.
func buildTorrentBody(info metainfo.Info, trackers []string) ([]byte, error) {
	infoBytes, err := bencode.Marshal(info)
	if err != nil {
		return nil, err
	}
	mi := metainfo.MetaInfo{
		InfoBytes: infoBytes,
	}
	if len(trackers) > 0 {
		mi.AnnounceList = append(mi.AnnounceList, trackers)
	}
	return bencode.Marshal(mi)
}
