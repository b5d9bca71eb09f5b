package proc

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

const (
	testGuild   snowflake.ID = 10
	testChannel snowflake.ID = 20
	testSelf    snowflake.ID = 99
)

type fakeEngine struct {
	stopped   atomic.Int32
	abandoned atomic.Int32
}

func (f *fakeEngine) Stop(snowflake.ID) bool { f.stopped.Add(1); return true }
func (f *fakeEngine) Abandon(snowflake.ID)   { f.abandoned.Add(1) }

type fakeRooms struct {
	mu      sync.Mutex
	channel snowflake.ID
	joined  bool
	left    int
	moves   []snowflake.ID
}

func (f *fakeRooms) ChannelOf(snowflake.ID) (snowflake.ID, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channel, f.joined
}

func (f *fakeRooms) Leave(context.Context, snowflake.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.left++
	f.joined = false
	return nil
}

func (f *fakeRooms) moved(_, channelID snowflake.ID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channel = channelID
	f.moves = append(f.moves, channelID)
}

func (f *fakeRooms) leaves() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.left
}

func newTestWatcher(humans *atomic.Int32) (*RoomWatcher, *fakeEngine, *fakeRooms) {
	engine := &fakeEngine{}
	rooms := &fakeRooms{channel: testChannel, joined: true}
	w := &RoomWatcher{
		engine: engine,
		voice:  rooms,
		grace:  30 * time.Millisecond,
		humans: func(snowflake.ID, snowflake.ID) int { return int(humans.Load()) },
		selfID: func() snowflake.ID { return testSelf },
	}
	return w, engine, rooms
}

func TestWatcherLeavesEmptyRoom(t *testing.T) {
	var humans atomic.Int32
	w, engine, rooms := newTestWatcher(&humans)

	w.onState(testGuild, 1, nil)
	time.Sleep(100 * time.Millisecond)

	if engine.abandoned.Load() != 1 {
		t.Errorf("abandoned = %d, want 1", engine.abandoned.Load())
	}
	if rooms.leaves() != 1 {
		t.Errorf("leaves = %d, want 1", rooms.leaves())
	}
}

func TestWatcherCancelsWhenSomeoneReturns(t *testing.T) {
	var humans atomic.Int32
	w, engine, rooms := newTestWatcher(&humans)

	w.onState(testGuild, 1, nil)
	humans.Store(1)
	ch := testChannel
	w.onState(testGuild, 1, &ch)
	time.Sleep(100 * time.Millisecond)

	if engine.abandoned.Load() != 0 || rooms.leaves() != 0 {
		t.Errorf("room was abandoned after someone rejoined")
	}
}

func TestWatcherRechecksBeforeLeaving(t *testing.T) {
	var humans atomic.Int32
	w, engine, _ := newTestWatcher(&humans)

	w.onState(testGuild, 1, nil)
	// A join the watcher never heard about.
	humans.Store(2)
	time.Sleep(100 * time.Millisecond)

	if engine.abandoned.Load() != 0 {
		t.Error("expired timer should re-check the channel before leaving")
	}
}

func TestWatcherExternalDisconnect(t *testing.T) {
	var humans atomic.Int32
	humans.Store(1)
	w, engine, _ := newTestWatcher(&humans)

	w.onState(testGuild, testSelf, nil)
	if engine.stopped.Load() != 1 {
		t.Errorf("stopped = %d, want 1", engine.stopped.Load())
	}
}

func TestWatcherFollowsMoves(t *testing.T) {
	var humans atomic.Int32
	humans.Store(1)
	w, engine, rooms := newTestWatcher(&humans)

	next := snowflake.ID(21)
	w.onState(testGuild, testSelf, &next)

	if len(rooms.moves) != 1 || rooms.moves[0] != next {
		t.Errorf("moves = %v", rooms.moves)
	}
	if engine.stopped.Load() != 0 {
		t.Error("a move must not stop the session")
	}
}
