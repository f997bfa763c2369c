// Package uriparse translates a player-supplied location string into engine
// add-parameters: either a magnet descriptor or a parsed torrent-info
// structure. See spec.md §4.1.
package uriparse

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/mindsgn-studio/torrentstream/internal/torrentengine"
)

// Engine is the narrow slice of torrentengine.Engine the parser needs.
type Engine interface {
	ParseMagnetURI(uri string) (torrentengine.AddParams, error)
	LoadTorrentFile(path string) (torrentengine.AddParams, error)
}

const magnetPrefix = "magnet:?"

// Parse percent-decodes location and dispatches to the engine's magnet or
// torrent-file parser depending on scheme. A bare filesystem path or a
// "torrent://" URI are both treated as torrent-file inputs.
func Parse(engine Engine, location string) (torrentengine.AddParams, error) {
	decoded, err := url.QueryUnescape(location)
	if err != nil {
		return torrentengine.AddParams{}, fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}
	decoded = strings.TrimSpace(decoded)
	if decoded == "" {
		return torrentengine.AddParams{}, ErrInvalidURI
	}

	if strings.HasPrefix(decoded, magnetPrefix) || strings.HasPrefix(decoded, "magnet:") {
		params, err := engine.ParseMagnetURI(decoded)
		if err != nil {
			return torrentengine.AddParams{}, fmt.Errorf("%w: %v", ErrInvalidURI, err)
		}
		return params, nil
	}

	path := strings.TrimPrefix(decoded, "torrent://")
	params, err := engine.LoadTorrentFile(path)
	if err != nil {
		return torrentengine.AddParams{}, fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}
	return params, nil
}
