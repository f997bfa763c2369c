package access

import "errors"

// Error kinds surfaced across the TorrentAccess API, per spec.md §7.
var (
	ErrInvalidURI       = errors.New("access: invalid uri")
	ErrNoDownloadDir    = errors.New("access: no usable download directory")
	ErrMetadataFailed   = errors.New("access: metadata fetch failed")
	ErrAddTorrentFailed = errors.New("access: engine rejected add-parameters")
	ErrOutOfMemory      = errors.New("access: allocator exhausted during open")
	ErrClosed           = errors.New("access: session already closed")
)
