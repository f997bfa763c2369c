// Package piece implements the Piece Controller: the state machine that
// reconciles the player's block-oriented, seekable pull interface with the
// Torrent Engine's piece-oriented, asynchronous delivery.
package piece

// Piece is one entry of the Pieces Queue. Offset is the byte offset
// within the piece where user-visible data starts; Length is the number
// of bytes of that piece the consumer actually receives. Requested
// distinguishes pieces with a deadline already posted to the engine from
// pieces that are merely enqueued.
type Piece struct {
	ID        int32
	Offset    int32
	Length    int32
	Requested bool
	Data      []byte
}

// ready reports whether the piece's data has been filled in.
func (p *Piece) ready() bool {
	return p.Data != nil
}
