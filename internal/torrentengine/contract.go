// Package torrentengine names the Torrent Engine contract spec.md §6
// requires and provides one concrete implementation over
// github.com/anacrolix/torrent (see the anacrolixengine subpackage). The
// rest of the module is written only against the Engine interface here,
// so the piece-streaming controller and session driver can be unit tested
// against a fake.
package torrentengine

import (
	"context"
	"time"

	"github.com/anacrolix/torrent/metainfo"
)

// StorageMode mirrors the engine setting applied at start-download.
type StorageMode int

const (
	StorageAllocate StorageMode = iota
	StorageSparse
)

// AddParams are the engine add-parameters produced by the URI Parser and
// completed by the Metadata Fetcher.
type AddParams struct {
	InfoHash    metainfo.Hash
	Info        *metainfo.Info // nil until metadata is known (magnet case)
	Trackers    []string
	DisplayName string
	SavePath    string
	Storage     StorageMode
}

// HasMetadata reports whether Info has been populated.
func (p AddParams) HasMetadata() bool { return p.Info != nil }

// Settings bundles the engine-wide knobs spec.md §6 lists as applied at
// start-download.
type Settings struct {
	ActiveDownloads       int
	ActiveSeeds           int
	AnnounceToAllTrackers bool
	UseDHTAsFallback      bool
	InitialPickerThreshold int
	NoAtimeStorage        bool
	NoRecheckIncomplete   bool
	MaxQueuedDiskBytes    int64
	MaxPeerlistSize       int
	NumWant               int
	TorrentConnectBoost   int
	ShareRatioLimit       float64
	UploadRateLimit       int64 // bytes/sec, 0 = unlimited
	DownloadRateLimit     int64 // bytes/sec, 0 = unlimited
	UserAgent             string
	SequentialDownload    bool
}

// Handle identifies one torrent inside the engine. Implementations are
// comparable so they can be used as map keys by callers that track
// per-torrent state.
type Handle interface {
	InfoHash() metainfo.Hash
}

// EventKind tags the variant carried by Event, mirroring the alerts
// spec.md §4.5/§6 names.
type EventKind int

const (
	EventStateChanged EventKind = iota
	EventPieceFinished
	EventReadPiece
	EventSaveResumeData
	EventMetadataReceived
)

// TorrentState is re-exported from the status package's vocabulary so
// engine implementations don't need to import it just to build an Event.
// Kept as a plain int matching status.TorrentState's underlying values;
// callers convert with status.TorrentState(ev.State).
type TorrentState int

// Event is one alert popped from the engine's event stream.
type Event struct {
	Kind       EventKind
	InfoHash   metainfo.Hash
	State      TorrentState // valid when Kind == EventStateChanged
	PieceIndex int32        // valid when Kind == EventPieceFinished/EventReadPiece
	PieceBuf   []byte       // valid when Kind == EventReadPiece; nil means read error
	ResumeData []byte       // valid when Kind == EventSaveResumeData
}

// PieceRange is one contiguous run of piece-relative bytes produced by
// MapFile; the Piece Controller turns each of these directly into a
// queued Piece.
type PieceRange struct {
	PieceID int32
	Offset  int32
	Length  int32
}

// FileInfo describes one file inside a (possibly multi-file) torrent, in
// the enumeration order the Piece Controller and playlist browsing use.
type FileInfo struct {
	Index  int
	Path   string
	Length int64
	Offset int64 // byte offset of this file within the torrent
}

// TorrentStatus is a snapshot of engine-observed progress, independent of
// the Status entity's playback-relevant state machine.
type TorrentStatus struct {
	State           TorrentState
	BytesCompleted  int64
	TotalLength     int64
	NumPeers        int
	DownloadRate    int64
	UploadRate      int64
}

// Engine is the contract spec.md §6 requires of the Torrent Engine, one
// method per operation named there, plus LoadTorrentFile, Files and Close.
type Engine interface {
	ParseMagnetURI(uri string) (AddParams, error)
	LoadTorrentFile(path string) (AddParams, error)

	AddTorrent(params AddParams) (Handle, error)
	RemoveTorrent(h Handle, deleteFiles bool) error

	SetAlertMask(mask int) error
	WaitForAlert(ctx context.Context, timeout time.Duration) (*Event, bool)
	PopAlerts() []*Event

	SaveDHTState() ([]byte, error)
	LoadDHTState(data []byte) error
	StartDHT(routers []string) error
	AddDHTRouter(addr string) error

	SetSettings(s Settings) error
	Pause(h Handle) error
	SaveResumeData(h Handle) error

	SetPiecePriority(h Handle, pieceIndex int32, priority int32) error
	SetPieceDeadline(h Handle, pieceIndex int32, deadlineMS int32) error
	ReadPiece(h Handle, pieceIndex int32) ([]byte, error)
	SetSequentialDownload(h Handle, on bool) error

	Status(h Handle) (TorrentStatus, error)
	TorrentInfo(h Handle) (*metainfo.Info, error)
	Files(h Handle) ([]FileInfo, error)
	MapFile(h Handle, fileIndex int, fileOffset int64, size int64) ([]PieceRange, error)

	Close() error
}
