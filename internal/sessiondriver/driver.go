// Package sessiondriver implements the Session Driver of spec.md §4.5: the
// single background worker that pumps the engine's event stream and
// dispatches each event to the Piece Controller, Status entity, or Cache
// Store.
package sessiondriver

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mindsgn-studio/torrentstream/internal/cacheio"
	"github.com/mindsgn-studio/torrentstream/internal/piece"
	"github.com/mindsgn-studio/torrentstream/internal/status"
	"github.com/mindsgn-studio/torrentstream/internal/torrentengine"
)

// pollTimeout is the 1s event-pump timeout named in spec.md §4.5/§5.
const pollTimeout = time.Second

// Engine is the narrow slice of torrentengine.Engine the driver needs.
type Engine interface {
	WaitForAlert(ctx context.Context, timeout time.Duration) (*torrentengine.Event, bool)
}

// resumeWaiter lets Close() block for the save-resume-data event without
// the driver importing access's shutdown machinery.
type resumeWaiter struct {
	mu   sync.Mutex
	done chan []byte
}

func newResumeWaiter() *resumeWaiter {
	return &resumeWaiter{done: make(chan []byte, 1)}
}

func (w *resumeWaiter) signal(data []byte) {
	select {
	case w.done <- data:
	default:
	}
}

// Driver is the Session Driver.
type Driver struct {
	engine     Engine
	status     *status.Status
	controller *piece.Controller
	cache      *cacheio.Store
	log        *zap.Logger

	infoHash string

	stop   chan struct{}
	stopOnce sync.Once
	done   chan struct{}

	resume *resumeWaiter
}

// New builds a Driver bound to one session's Status, Piece Controller, and
// Cache Store. infoHash is used only to name the cached resume blob.
func New(engine Engine, st *status.Status, controller *piece.Controller, cache *cacheio.Store, log *zap.Logger, infoHash string) *Driver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Driver{
		engine:     engine,
		status:     st,
		controller: controller,
		cache:      cache,
		log:        log,
		infoHash:   infoHash,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		resume:     newResumeWaiter(),
	}
}

// Run pumps the engine's event stream until Stop is called, polling with a
// 1s timeout per spec.md §4.5 so shutdown is noticed within that bound.
func (d *Driver) Run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-d.stop:
			return
		default:
		}

		ev, ok := d.engine.WaitForAlert(ctx, pollTimeout)
		if !ok {
			continue
		}
		d.dispatch(ev)
	}
}

func (d *Driver) dispatch(ev *torrentengine.Event) {
	switch ev.Kind {
	case torrentengine.EventStateChanged:
		d.status.Set(status.TorrentState(ev.State))
	case torrentengine.EventPieceFinished:
		d.log.Debug("piece finished", zap.Int32("piece", ev.PieceIndex))
	case torrentengine.EventReadPiece:
		d.controller.OnReadPiece(ev.PieceIndex, ev.PieceBuf)
	case torrentengine.EventSaveResumeData:
		path := d.cache.Save(d.infoHash+".resume", ev.ResumeData)
		if path == "" {
			d.log.Warn("resume data save failed", zap.String("info_hash", d.infoHash))
		}
		d.resume.signal(ev.ResumeData)
	case torrentengine.EventMetadataReceived:
		// Only relevant to the synchronous metadata-fetch loop, which
		// reads directly off the engine rather than through this driver.
	}
}

// Stop requests the driver to exit at its next poll boundary (≤ 1s).
func (d *Driver) Stop() {
	d.stopOnce.Do(func() { close(d.stop) })
}

// Done returns a channel closed once Run has returned.
func (d *Driver) Done() <-chan struct{} {
	return d.done
}

// WaitResumeSaved blocks up to timeout for a save-resume-data event to
// have been observed, used by the shutdown sequence in spec.md §9.
func (d *Driver) WaitResumeSaved(timeout time.Duration) ([]byte, bool) {
	select {
	case data := <-d.resume.done:
		return data, true
	case <-time.After(timeout):
		return nil, false
	}
}
