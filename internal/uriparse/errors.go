package uriparse

import "errors"

// ErrInvalidURI is returned when a location string is neither a usable
// magnet link nor a loadable .torrent file.
var ErrInvalidURI = errors.New("uriparse: invalid uri")
