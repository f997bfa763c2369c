package metadata

import "errors"

// ErrMetadataFailed is returned when magnet metadata could not be obtained
// or the synthesized torrent body could not be cached.
var ErrMetadataFailed = errors.New("metadata: fetch failed")
