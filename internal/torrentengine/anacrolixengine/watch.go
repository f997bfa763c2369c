package anacrolixengine

import (
	"context"

	"github.com/anacrolix/torrent"

	"github.com/mindsgn-studio/torrentstream/internal/torrentengine"
)

// stateOf derives the coarse TorrentState the Session Driver needs from
// anacrolix/torrent's richer per-torrent state. anacrolix has no single
// state enum of its own, so this inspects GotInfo/Seeding/completion.
func stateOf(t *torrent.Torrent) torrentengine.TorrentState {
	select {
	case <-t.GotInfo():
	default:
		return torrentengine.TorrentState(1) // status.DownloadingMetadata
	}
	if t.Complete().Bool() {
		if t.Seeding() {
			return torrentengine.TorrentState(5) // status.Seeding
		}
		return torrentengine.TorrentState(4) // status.Finished
	}
	return torrentengine.TorrentState(3) // status.Downloading
}

// watch subscribes to one torrent's GotInfo and piece-state-change signals
// and translates them into Event values on the engine's shared channel.
// This is the alert bridge: anacrolix/torrent pushes updates through
// channels and callbacks rather than a poll-style alert queue, so each
// torrent gets two goroutines here (one for GotInfo, one for piece-state
// changes) that normalize both into Events.
func (e *Engine) watch(t *torrent.Torrent) {
	ctx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.subs[t.InfoHash()] = &subscription{cancel: cancel}
	e.mu.Unlock()

	go func() {
		select {
		case <-t.GotInfo():
			e.emit(&torrentengine.Event{
				Kind:     torrentengine.EventMetadataReceived,
				InfoHash: t.InfoHash(),
			})
			e.emit(&torrentengine.Event{
				Kind:     torrentengine.EventStateChanged,
				InfoHash: t.InfoHash(),
				State:    stateOf(t),
			})
		case <-ctx.Done():
			return
		}
	}()

	go func() {
		sub := t.SubscribePieceStateChanges()
		defer sub.Close()
		for {
			select {
			case v, ok := <-sub.Values:
				if !ok {
					return
				}
				pieceChange := v.(torrent.PieceStateChange)
				e.onPieceStateChange(t, pieceChange)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// onPieceStateChange fans one piece-state-change notification into the
// Events the Session Driver expects. Notifications for incomplete pieces
// are ignored; for a complete piece it emits a piece-finished diagnostic
// event and then a read-piece event (so a pending deadline read can be
// fulfilled).
func (e *Engine) onPieceStateChange(t *torrent.Torrent, change torrent.PieceStateChange) {
	if !change.Complete {
		return
	}
	e.emit(&torrentengine.Event{
		Kind:       torrentengine.EventPieceFinished,
		InfoHash:   t.InfoHash(),
		PieceIndex: int32(change.Index),
	})

	buf, err := e.ReadPiece(handle{t: t}, int32(change.Index))
	if err != nil {
		e.emit(&torrentengine.Event{
			Kind:       torrentengine.EventReadPiece,
			InfoHash:   t.InfoHash(),
			PieceIndex: int32(change.Index),
			PieceBuf:   nil,
		})
		return
	}
	e.emit(&torrentengine.Event{
		Kind:       torrentengine.EventReadPiece,
		InfoHash:   t.InfoHash(),
		PieceIndex: int32(change.Index),
		PieceBuf:   buf,
	})
}
