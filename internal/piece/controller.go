package piece

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/mindsgn-studio/torrentstream/internal/status"
	"github.com/mindsgn-studio/torrentstream/internal/torrentengine"
)

// deadlineReadTimeout is the "deadline-zero" request spec.md §4.4 issues:
// zero means "tell me as soon as you have it", i.e. no artificial delay.
const deadlineReadTimeout = 0

// stateWait and bufferWait are the two 500ms suspension points named in
// spec.md §4.4/§5.
const (
	stateWait  = 500 * time.Millisecond
	bufferWait = 500 * time.Millisecond
)

// engineOps is the narrow slice of torrentengine.Engine the controller
// needs, expressed as its own interface so tests can supply a fake
// without constructing a whole Engine.
type engineOps interface {
	SetPiecePriority(h torrentengine.Handle, pieceIndex int32, priority int32) error
	SetPieceDeadline(h torrentengine.Handle, pieceIndex int32, deadlineMS int32) error
	MapFile(h torrentengine.Handle, fileIndex int, fileOffset int64, size int64) ([]torrentengine.PieceRange, error)
}

// Priority levels from spec.md §4.4.
const (
	PrioritySkip = 0
	PriorityMax  = 7
)

// Controller is the Piece Controller of spec.md §4.4: it owns the Pieces
// Queue for whichever file is currently selected and exposes the single
// blocking ReadNextBlock operation the consumer thread calls.
type Controller struct {
	engine engineOps
	handle torrentengine.Handle
	status *status.Status
	queue  *queue

	numPieces  int32
	fileIndex  int
	fileLength int64

	stopped atomic.Bool
}

// New builds a Controller bound to one torrent handle and its Status. The
// caller selects a file with SelectPieces before calling ReadNextBlock.
func New(engine engineOps, handle torrentengine.Handle, st *status.Status, numPieces int32) *Controller {
	return &Controller{
		engine:    engine,
		handle:    handle,
		status:    st,
		queue:     newQueue(),
		numPieces: numPieces,
	}
}

// Stop sets the shutdown flag; in-flight ReadNextBlock calls notice it on
// their next wait timeout rather than being cancelled outright, matching
// spec.md §5's cancellation model.
func (c *Controller) Stop() {
	c.stopped.Store(true)
	c.queue.broadcast()
}

// SelectPieces (re)computes which pieces of fileIndex, from fileOffset
// onward, are of interest: priority 7 for every piece intersecting
// [fileOffset, fileLength), priority 0 for everything else. It clears and
// rebuilds the queue from scratch, discarding any buffered data — this is
// also how a seek is implemented.
func (c *Controller) SelectPieces(fileIndex int, fileOffset int64, fileLength int64) error {
	if fileOffset < 0 {
		return fmt.Errorf("%w: negative file offset", ErrInvalidArgument)
	}
	if fileOffset > fileLength {
		return fmt.Errorf("%w: offset beyond file length", ErrInvalidArgument)
	}

	c.fileIndex = fileIndex
	c.fileLength = fileLength

	// Priority exclusivity: every piece starts at 0 (skip); only pieces
	// the MapFile call below returns get bumped to 7.
	for id := int32(0); id < c.numPieces; id++ {
		if err := c.engine.SetPiecePriority(c.handle, id, PrioritySkip); err != nil {
			return fmt.Errorf("clear priority for piece %d: %w", id, err)
		}
	}

	if fileOffset == fileLength {
		// Degenerate case: nothing left to stream. Leave the queue empty.
		c.queue.reset(nil)
		return nil
	}

	remaining := fileLength - fileOffset
	ranges, err := c.engine.MapFile(c.handle, fileIndex, fileOffset, remaining)
	if err != nil {
		return fmt.Errorf("map file range: %w", err)
	}

	items := make([]*Piece, 0, len(ranges))
	for _, r := range ranges {
		if err := c.engine.SetPiecePriority(c.handle, r.PieceID, PriorityMax); err != nil {
			return fmt.Errorf("set priority for piece %d: %w", r.PieceID, err)
		}
		items = append(items, &Piece{ID: r.PieceID, Offset: r.Offset, Length: r.Length})
	}

	c.queue.reset(items)
	return nil
}

// ReadNextBlock returns the next block of the currently selected file, in
// strictly increasing byte order, or (empty, eof=true) once the queue is
// exhausted. A (empty, eof=false) return means "try again" — the 500ms
// waits timed out, which is expected and not itself an error.
func (c *Controller) ReadNextBlock() (Piece, bool) {
	if c.stopped.Load() {
		return Piece{}, false
	}

	if _, readable := c.status.WaitReadable(stateWait); !readable {
		return Piece{}, false
	}

	head, ok := c.queue.peekHead()
	if !ok {
		return Piece{}, true
	}

	if id, shouldRequest := c.queue.markHeadRequested(); shouldRequest {
		if err := c.engine.SetPieceDeadline(c.handle, id, deadlineReadTimeout); err != nil {
			// A transient failure to arm the deadline isn't fatal: the next
			// ReadNextBlock call will see Requested still false only if we
			// roll it back, but per spec the at-most-one-request invariant
			// is about successful requests, so we leave it set and let the
			// caller retry the wait; the fill path is idempotent either way.
			_ = err
		}
	}
	_ = head

	if !c.queue.waitHeadReady(bufferWait) {
		return Piece{}, false
	}

	p, ok := c.queue.popHeadIfReady()
	if !ok {
		// Queue went empty while we were waiting (a concurrent seek) or
		// the head still isn't ready; either way the caller retries.
		if c.queue.len() == 0 {
			return Piece{}, true
		}
		return Piece{}, false
	}
	return p, false
}

// OnReadPiece is the event-driven fill path invoked by the Session Driver
// on a read-piece alert. A nil buf means the engine hit a read error;
// per spec.md §4.4 the fix is to silently reissue the request for the
// same id.
func (c *Controller) OnReadPiece(pieceID int32, buf []byte) {
	if buf == nil {
		_ = c.engine.SetPieceDeadline(c.handle, pieceID, deadlineReadTimeout)
		return
	}

	head, _ := c.queue.peekHead()
	want := c.pieceLengthFor(pieceID)
	if want.length < 0 {
		return // piece no longer wanted (dropped by a seek) — ignore
	}
	if int32(len(buf)) < want.offset+want.length {
		return // malformed delivery; drop rather than panic on a short copy
	}

	data := make([]byte, want.length)
	copy(data, buf[want.offset:want.offset+want.length])

	becameHead := c.queue.fill(pieceID, data)
	if becameHead || (head != nil && head.ID == pieceID) {
		c.queue.broadcast()
	}
}

type pieceWindow struct {
	offset int32
	length int32
}

// pieceLengthFor returns the recorded offset/length for a still-queued
// piece id, or a negative length if the piece isn't in the queue anymore
// (already filled-and-popped, or dropped by a seek).
func (c *Controller) pieceLengthFor(id int32) pieceWindow {
	c.queue.mu.Lock()
	defer c.queue.mu.Unlock()
	for _, p := range c.queue.items {
		if p.ID == id {
			return pieceWindow{offset: p.Offset, length: p.Length}
		}
	}
	return pieceWindow{length: -1}
}
