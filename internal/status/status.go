// Package status holds the mutex-guarded torrent state that the Piece
// Controller blocks on and the Session Driver updates. It is the single
// source of truth for "is the torrent readable yet" across the two
// threads described in the concurrency model.
package status

import (
	"sync"
	"time"
)

// TorrentState mirrors the state machine the Session Driver observes from
// the Torrent Engine's alerts.
type TorrentState int

const (
	QueuedForChecking TorrentState = iota
	DownloadingMetadata
	CheckingResume
	Downloading
	Finished
	Seeding
	Allocating
	CheckingFiles
)

func (s TorrentState) String() string {
	switch s {
	case QueuedForChecking:
		return "queued-for-checking"
	case DownloadingMetadata:
		return "downloading-metadata"
	case CheckingResume:
		return "checking-resume"
	case Downloading:
		return "downloading"
	case Finished:
		return "finished"
	case Seeding:
		return "seeding"
	case Allocating:
		return "allocating"
	case CheckingFiles:
		return "checking-files"
	default:
		return "unknown"
	}
}

// Readable reports whether the state is one the Piece Controller may read
// pieces in: downloading, finished, or seeding.
func (s TorrentState) Readable() bool {
	return s == Downloading || s == Finished || s == Seeding
}

// Status is the mutex+cond guarded state cell described in spec.md §3.
// Only the Session Driver calls Set; everything else only reads.
type Status struct {
	mu    sync.Mutex
	cond  *sync.Cond
	state TorrentState
}

func New(initial TorrentState) *Status {
	s := &Status{state: initial}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *Status) Set(state TorrentState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.cond.Broadcast()
}

func (s *Status) Get() TorrentState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// WaitReadable blocks up to timeout for the state to become Readable.
// Returns the state it observed and whether it was readable when it gave
// up waiting. A timer forces one last Broadcast at the deadline so the
// Cond.Wait loop below always has a reason to re-check, even if the
// Session Driver never touches this torrent again.
func (s *Status) WaitReadable(timeout time.Duration) (TorrentState, bool) {
	timer := time.AfterFunc(timeout, s.cond.Broadcast)
	defer timer.Stop()

	deadline := time.Now().Add(timeout)

	s.mu.Lock()
	defer s.mu.Unlock()

	for !s.state.Readable() && time.Now().Before(deadline) {
		s.cond.Wait()
	}
	return s.state, s.state.Readable()
}
