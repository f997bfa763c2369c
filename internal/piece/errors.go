package piece

import "errors"

// ErrInvalidArgument is returned by SelectPieces when the requested file
// offset is outside the file's bounds.
var ErrInvalidArgument = errors.New("piece: invalid argument")
