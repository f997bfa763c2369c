package sessiondriver

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindsgn-studio/torrentstream/internal/cacheio"
	"github.com/mindsgn-studio/torrentstream/internal/status"
	"github.com/mindsgn-studio/torrentstream/internal/torrentengine"
)

type fakeEngine struct {
	mu     sync.Mutex
	events []*torrentengine.Event
}

func (f *fakeEngine) push(ev *torrentengine.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeEngine) WaitForAlert(ctx context.Context, timeout time.Duration) (*torrentengine.Event, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		time.Sleep(time.Millisecond)
		return nil, false
	}
	ev := f.events[0]
	f.events = f.events[1:]
	return ev, true
}

func TestDriverUpdatesStatusOnStateChanged(t *testing.T) {
	engine := &fakeEngine{}
	st := status.New(status.QueuedForChecking)
	cache := cacheio.New(t.TempDir(), nil)

	d := New(engine, st, nil, cache, nil, "deadbeef")
	go d.Run(context.Background())
	defer func() {
		d.Stop()
		<-d.Done()
	}()

	engine.push(&torrentengine.Event{Kind: torrentengine.EventStateChanged, State: torrentengine.TorrentState(status.Downloading)})

	require.Eventually(t, func() bool {
		return st.Get() == status.Downloading
	}, time.Second, 5*time.Millisecond)
}

func TestDriverSavesResumeDataAndSignalsWaiter(t *testing.T) {
	engine := &fakeEngine{}
	st := status.New(status.Downloading)
	cache := cacheio.New(t.TempDir(), nil)

	d := New(engine, st, nil, cache, nil, "deadbeef")
	go d.Run(context.Background())
	defer func() {
		d.Stop()
		<-d.Done()
	}()

	engine.push(&torrentengine.Event{Kind: torrentengine.EventSaveResumeData, ResumeData: []byte("resume-blob")})

	data, ok := d.WaitResumeSaved(time.Second)
	require.True(t, ok)
	assert.Equal(t, []byte("resume-blob"), data)
	assert.Equal(t, []byte("resume-blob"), cache.Load("deadbeef.resume"))
}

func TestDriverStopsWithinPollBoundary(t *testing.T) {
	engine := &fakeEngine{}
	st := status.New(status.QueuedForChecking)
	cache := cacheio.New(t.TempDir(), nil)

	d := New(engine, st, nil, cache, nil, "deadbeef")
	go d.Run(context.Background())

	d.Stop()
	select {
	case <-d.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("driver did not stop in time")
	}
}
