// Package anacrolixengine implements the torrentengine.Engine contract over
// github.com/anacrolix/torrent. It is the only internal package that
// imports anacrolix/torrent's client directly (the CLI host imports it
// only to build the client config); everything else depends on the
// torrentengine.Engine interface.
package anacrolixengine

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
	"golang.org/x/time/rate"

	"github.com/mindsgn-studio/torrentstream/internal/torrentengine"
)

// Engine wraps a *torrent.Client and translates its callback/channel-based
// event model into the uniform alert-pump the Session Driver expects.
type Engine struct {
	mu     sync.Mutex
	client *torrent.Client
	config torrent.ClientConfig

	events chan *torrentengine.Event
	subs   map[metainfo.Hash]*subscription

	downloadLimiter *rate.Limiter
	uploadLimiter   *rate.Limiter

	closed bool
}

type subscription struct {
	cancel func()
}

// New constructs an Engine from a base anacrolix/torrent client config. The
// caller is expected to have already set DataDir and any storage backend.
func New(cfg torrent.ClientConfig) (*Engine, error) {
	client, err := torrent.NewClient(&cfg)
	if err != nil {
		return nil, fmt.Errorf("anacrolixengine: new client: %w", err)
	}
	return &Engine{
		client: client,
		config: cfg,
		events: make(chan *torrentengine.Event, 256),
		subs:   make(map[metainfo.Hash]*subscription),
	}, nil
}

// handle adapts *torrent.Torrent to torrentengine.Handle.
type handle struct {
	t *torrent.Torrent
}

func (h handle) InfoHash() metainfo.Hash { return h.t.InfoHash() }

func asTorrent(h torrentengine.Handle) (*torrent.Torrent, error) {
	hh, ok := h.(handle)
	if !ok {
		return nil, fmt.Errorf("anacrolixengine: handle %v not produced by this engine", h)
	}
	return hh.t, nil
}

// ParseMagnetURI extracts the info-hash, display name, and trackers from a
// magnet link without touching the engine's torrent set.
func (e *Engine) ParseMagnetURI(uri string) (torrentengine.AddParams, error) {
	if !strings.HasPrefix(uri, "magnet:") {
		return torrentengine.AddParams{}, fmt.Errorf("anacrolixengine: not a magnet uri")
	}
	spec, err := torrent.TorrentSpecFromMagnetUri(uri)
	if err != nil {
		return torrentengine.AddParams{}, fmt.Errorf("anacrolixengine: parse magnet: %w", err)
	}
	trackers := flattenTrackers(spec.Trackers)
	return torrentengine.AddParams{
		InfoHash:    spec.InfoHash,
		Trackers:    trackers,
		DisplayName: spec.DisplayName,
	}, nil
}

// LoadTorrentFile decodes a .torrent file on disk into add-parameters
// carrying a populated Info, so the caller can skip metadata fetch.
func (e *Engine) LoadTorrentFile(path string) (torrentengine.AddParams, error) {
	mi, err := metainfo.LoadFromFile(path)
	if err != nil {
		return torrentengine.AddParams{}, fmt.Errorf("anacrolixengine: load torrent file: %w", err)
	}
	info, err := mi.UnmarshalInfo()
	if err != nil {
		return torrentengine.AddParams{}, fmt.Errorf("anacrolixengine: unmarshal info: %w", err)
	}
	return torrentengine.AddParams{
		InfoHash:    mi.HashInfoBytes(),
		Info:        &info,
		Trackers:    flattenTrackers(mi.UpvertedAnnounceList()),
		DisplayName: info.Name,
	}, nil
}

func flattenTrackers(tiers [][]string) []string {
	var out []string
	for _, tier := range tiers {
		out = append(out, tier...)
	}
	return out
}

// AddTorrent registers params with the client, subscribing to its piece and
// metadata events so they surface on the uniform Event channel.
func (e *Engine) AddTorrent(params torrentengine.AddParams) (torrentengine.Handle, error) {
	spec := &torrent.TorrentSpec{
		InfoHash:    params.InfoHash,
		Trackers:    [][]string{params.Trackers},
		DisplayName: params.DisplayName,
	}
	if params.Info != nil {
		b, err := bencode.Marshal(*params.Info)
		if err != nil {
			return nil, fmt.Errorf("anacrolixengine: marshal info: %w", err)
		}
		spec.InfoBytes = b
	}

	t, isNew, err := e.client.AddTorrentSpec(spec)
	if err != nil {
		return nil, fmt.Errorf("anacrolixengine: add torrent: %w", err)
	}
	if isNew {
		e.watch(t)
	}
	return handle{t: t}, nil
}

// RemoveTorrent drops a torrent from the client. anacrolix/torrent always
// deletes piece-completion bookkeeping on Drop; deleteFiles additionally
// removes the downloaded data from disk.
func (e *Engine) RemoveTorrent(h torrentengine.Handle, deleteFiles bool) error {
	t, err := asTorrent(h)
	if err != nil {
		return err
	}
	e.mu.Lock()
	if sub, ok := e.subs[t.InfoHash()]; ok {
		sub.cancel()
		delete(e.subs, t.InfoHash())
	}
	e.mu.Unlock()

	if deleteFiles {
		for _, f := range t.Files() {
			if err := os.Remove(filepath.Join(e.config.DataDir, f.Path())); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("anacrolixengine: remove %s: %w", f.Path(), err)
			}
		}
		if info := t.Info(); info != nil && info.IsDir() {
			_ = os.RemoveAll(filepath.Join(e.config.DataDir, info.Name))
		}
	}
	t.Drop()
	return nil
}

// SetAlertMask is a no-op for this engine: anacrolix/torrent has no alert
// mask concept, it always emits every event this package subscribes to.
func (e *Engine) SetAlertMask(mask int) error {
	return nil
}

// WaitForAlert blocks for at most timeout for the next translated event.
func (e *Engine) WaitForAlert(ctx context.Context, timeout time.Duration) (*torrentengine.Event, bool) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case ev := <-e.events:
		return ev, true
	case <-t.C:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

// PopAlerts drains whatever events are currently buffered without blocking.
func (e *Engine) PopAlerts() []*torrentengine.Event {
	var out []*torrentengine.Event
	for {
		select {
		case ev := <-e.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func (e *Engine) emit(ev *torrentengine.Event) {
	select {
	case e.events <- ev:
	default:
		// Channel full: drop rather than block the watcher goroutine. A
		// slow Session Driver will simply see state via the next event.
	}
}

// SaveDHTState serializes the node table of the first configured DHT
// server; the tables of any further servers are not saved.
func (e *Engine) SaveDHTState() ([]byte, error) {
	servers := e.client.DhtServers()
	if len(servers) == 0 {
		return nil, nil
	}
	nodes := servers[0].Nodes()
	type diskNode struct {
		Addr string `bencode:"addr"`
		ID   string `bencode:"id"`
	}
	persisted := make([]diskNode, 0, len(nodes))
	for _, n := range nodes {
		persisted = append(persisted, diskNode{Addr: n.Addr.String(), ID: n.ID.String()})
	}
	return bencode.Marshal(persisted)
}

// LoadDHTState is advisory: a failure to re-seed the routing table from a
// stale blob just means DHT bootstrap falls back to the router list.
func (e *Engine) LoadDHTState(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	type diskNode struct {
		Addr string `bencode:"addr"`
		ID   string `bencode:"id"`
	}
	var nodes []diskNode
	if err := bencode.Unmarshal(data, &nodes); err != nil {
		return fmt.Errorf("anacrolixengine: decode dht state: %w", err)
	}
	for _, n := range nodes {
		if err := e.pingAddr(n.Addr); err != nil {
			continue // stale node, skip rather than fail the whole load
		}
	}
	return nil
}

// StartDHT seeds every configured DHT server's table from the bootstrap
// router list.
func (e *Engine) StartDHT(routers []string) error {
	for _, addr := range routers {
		if err := e.AddDHTRouter(addr); err != nil {
			return err
		}
	}
	return nil
}

// AddDHTRouter pings one router address on every configured DHT server,
// which seeds it into that server's routing table on a successful reply.
func (e *Engine) AddDHTRouter(addr string) error {
	return e.pingAddr(addr)
}

func (e *Engine) pingAddr(addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("anacrolixengine: resolve %s: %w", addr, err)
	}
	for _, s := range e.client.DhtServers() {
		res := s.Ping(udpAddr)
		<-res.ToChan()
	}
	return nil
}

// SetSettings builds token-bucket limiters for the download and upload
// rate limits (nil when a limit is 0) and stores them on the Engine. The
// stored limiters are not attached to the client's peer traffic, and the
// other fields of torrentengine.Settings (active_downloads,
// max_peerlist_size, and friends) are not applied by this engine.
func (e *Engine) SetSettings(s torrentengine.Settings) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s.DownloadRateLimit > 0 {
		e.downloadLimiter = rate.NewLimiter(rate.Limit(s.DownloadRateLimit), int(s.DownloadRateLimit))
	} else {
		e.downloadLimiter = nil
	}
	if s.UploadRateLimit > 0 {
		e.uploadLimiter = rate.NewLimiter(rate.Limit(s.UploadRateLimit), int(s.UploadRateLimit))
	} else {
		e.uploadLimiter = nil
	}
	return nil
}

// Pause cancels the download of every piece of a torrent without removing
// it; its peer connections are left open.
func (e *Engine) Pause(h torrentengine.Handle) error {
	t, err := asTorrent(h)
	if err != nil {
		return err
	}
	t.CancelPieces(0, t.NumPieces())
	return nil
}

// SaveResumeData snapshots the torrent's piece-completion state into a
// resume blob and emits it as a save-resume-data event. No flush is
// requested from anacrolix/torrent: it persists completion state
// continuously via its storage.PieceCompletion interface, so "save" here
// is really "snapshot and emit."
func (e *Engine) SaveResumeData(h torrentengine.Handle) error {
	t, err := asTorrent(h)
	if err != nil {
		return err
	}
	type resumeBlob struct {
		InfoHash string `bencode:"info_hash"`
		SavePath string `bencode:"save_path"`
		Bitfield []byte `bencode:"bitfield"`
	}
	bits := make([]byte, (t.NumPieces()+7)/8)
	offset := 0
	for _, run := range t.PieceStateRuns() {
		if run.Complete {
			for id := offset; id < offset+run.Length; id++ {
				bits[id/8] |= 1 << uint(7-id%8)
			}
		}
		offset += run.Length
	}
	blob, err := bencode.Marshal(resumeBlob{
		InfoHash: t.InfoHash().HexString(),
		SavePath: e.config.DataDir,
		Bitfield: bits,
	})
	if err != nil {
		return fmt.Errorf("anacrolixengine: marshal resume blob: %w", err)
	}
	e.emit(&torrentengine.Event{
		Kind:       torrentengine.EventSaveResumeData,
		InfoHash:   t.InfoHash(),
		ResumeData: blob,
	})
	return nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	errs := e.client.Close()
	for _, err := range errs {
		if err != nil {
			return fmt.Errorf("anacrolixengine: close: %w", err)
		}
	}
	return nil
}
