package music

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

type fakeExpander struct {
	out []string
	err error
}

func (x *fakeExpander) Match(link string) bool { return link == "https://open.spotify.com/playlist/x" }

func (x *fakeExpander) Expand(ctx context.Context, link string) ([]string, error) {
	return x.out, x.err
}

func TestPlay(t *testing.T) {
	t.Run("requires a voice channel", func(t *testing.T) {
		h := newHarness(t, false)
		_, err := h.engine.Play(context.Background(), PlayRequest{Room: testRoom, Query: "A"})
		if !errors.Is(err, ErrNoVoiceTarget) {
			t.Fatalf("expected ErrNoVoiceTarget, got %v", err)
		}
	})

	t.Run("expands links in order", func(t *testing.T) {
		exp := &fakeExpander{out: []string{"one", "two", "three"}}
		h := newHarness(t, false, func(o *Options) { o.Expander = exp })
		out, err := h.engine.Play(context.Background(), PlayRequest{
			Room: testRoom, VoiceChannel: testVoice, TextChannel: testChannel,
			Query: "https://open.spotify.com/playlist/x",
		})
		if err != nil {
			t.Fatalf("play: %v", err)
		}
		if out.Count != 3 || !out.Started || out.First != "one" {
			t.Fatalf("unexpected result %+v", out)
		}
		h.waitPlaying(t, 1)
		if got := queries(h.session(t).Queue()); !slices.Equal(got, []string{"two", "three"}) {
			t.Fatalf("expected [two three], got %v", got)
		}
	})

	t.Run("failed expansion leaves queue alone", func(t *testing.T) {
		exp := &fakeExpander{err: ErrUnsupported}
		h := newHarness(t, false, func(o *Options) { o.Expander = exp })
		_, err := h.engine.Play(context.Background(), PlayRequest{
			Room: testRoom, VoiceChannel: testVoice, Query: "https://open.spotify.com/playlist/x",
		})
		var ee *ExpansionError
		if !errors.As(err, &ee) || !errors.Is(err, ErrUnsupported) {
			t.Fatalf("expected ExpansionError wrapping ErrUnsupported, got %v", err)
		}
		if h.rooms.joins != 0 {
			t.Errorf("expected no join, got %d", h.rooms.joins)
		}
		if _, ok := h.engine.Store().Get(testRoom); ok {
			t.Errorf("expected no session to be created")
		}
	})

	t.Run("join failure is reported", func(t *testing.T) {
		h := newHarness(t, false)
		h.rooms.err = errors.New("missing permissions")
		_, err := h.engine.Play(context.Background(), PlayRequest{Room: testRoom, VoiceChannel: testVoice, Query: "A"})
		if err == nil {
			t.Fatalf("expected join error")
		}
		if h.sink.count() != 0 {
			t.Errorf("expected nothing to start")
		}
	})
}

func TestEnqueueStartsOnce(t *testing.T) {
	h := newHarness(t, false)

	const n = 50
	var wg sync.WaitGroup
	results := make([]Enqueued, n)
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = h.enqueue("q" + string(rune('A'+i%26)))
		}(i)
	}
	wg.Wait()

	started := 0
	for _, r := range results {
		if r.Started {
			started++
		}
	}
	if started != 1 {
		t.Fatalf("expected exactly one enqueue to start playback, got %d", started)
	}
	h.waitPlaying(t, 1)
	time.Sleep(50 * time.Millisecond)
	if c := h.sink.count(); c != 1 {
		t.Fatalf("expected one stream, got %d", c)
	}
	if q := len(h.session(t).Queue()); q != n-1 {
		t.Fatalf("expected %d queued, got %d", n-1, q)
	}
}

func TestFIFOPlayback(t *testing.T) {
	h := newHarness(t, false)
	h.enqueue("A", "B", "C")
	for i := 1; i <= 3; i++ {
		h.waitPlaying(t, i).finish()
	}
	waitFor(t, func() bool { _, ok := h.engine.Store().Get(testRoom); return !ok })
	if got := h.sink.titles(); !slices.Equal(got, []string{"A", "B", "C"}) {
		t.Fatalf("expected [A B C], got %v", got)
	}
	if !h.notifier.has(NoticeFinished) {
		t.Errorf("expected a finished notice")
	}
	if h.notifier.count(NoticeStarted) != 3 {
		t.Errorf("expected three started notices, got %v", h.notifier.kinds())
	}
}

func TestSongLoop(t *testing.T) {
	h := newHarness(t, false)
	h.enqueue("A")
	h.waitPlaying(t, 1)
	h.engine.SetLoop(testRoom, LoopSong)

	const cycles = 4
	for i := 1; i <= cycles; i++ {
		h.sink.at(i - 1).finish()
		h.waitPlaying(t, i+1)
	}
	for i, title := range h.sink.titles() {
		if title != "A" {
			t.Fatalf("start %d: expected A, got %s", i, title)
		}
	}
	if got := len(h.session(t).History()); got != cycles+1 {
		t.Errorf("expected history of %d, got %d", cycles+1, got)
	}
	if len(h.session(t).Queue()) != 0 {
		t.Errorf("expected queue to stay empty")
	}
}

func TestQueueLoop(t *testing.T) {
	t.Run("two entries", func(t *testing.T) {
		h := newHarness(t, false)
		h.enqueue("X", "Y")
		h.waitPlaying(t, 1)
		h.engine.SetLoop(testRoom, LoopQueue)
		for i := 1; i <= 4; i++ {
			h.sink.at(i - 1).finish()
			h.waitPlaying(t, i+1)
			if q := len(h.session(t).Queue()); q != 1 {
				t.Fatalf("cycle %d: expected one queued, got %d", i, q)
			}
		}
		if got := h.sink.titles(); !slices.Equal(got, []string{"X", "Y", "X", "Y", "X"}) {
			t.Fatalf("expected alternating playback, got %v", got)
		}
	})

	t.Run("single entry", func(t *testing.T) {
		h := newHarness(t, false)
		h.enqueue("X")
		h.waitPlaying(t, 1)
		h.engine.SetLoop(testRoom, LoopQueue)
		for i := 1; i <= 3; i++ {
			h.sink.at(i - 1).finish()
			h.waitPlaying(t, i+1)
		}
		if got := h.sink.titles(); !slices.Equal(got, []string{"X", "X", "X", "X"}) {
			t.Fatalf("expected X to repeat, got %v", got)
		}
	})
}

func TestSkipWithSongLoop(t *testing.T) {
	h := newHarness(t, false)
	h.enqueue("A", "B")
	h.waitPlaying(t, 1)
	h.engine.SetLoop(testRoom, LoopSong)

	title, err := h.engine.Skip(testRoom)
	if err != nil || title != "A" {
		t.Fatalf("expected to skip A, got %q (%v)", title, err)
	}
	h.waitPlaying(t, 2)
	h.sink.at(1).finish()
	h.waitPlaying(t, 3)
	if got := h.sink.titles(); !slices.Equal(got, []string{"A", "B", "B"}) {
		t.Fatalf("expected [A B B], got %v", got)
	}
}

func TestStop(t *testing.T) {
	h := newHarness(t, false)
	h.enqueue("A", "B")
	pb := h.waitPlaying(t, 1)

	if !h.engine.Stop(testRoom) {
		t.Fatalf("expected first stop to find a session")
	}
	if h.engine.Stop(testRoom) {
		t.Errorf("expected second stop to be a no-op")
	}
	if _, _, stopped := pb.state(); !stopped {
		t.Errorf("expected playback to be stopped")
	}
	if h.engine.Store().Len() != 0 {
		t.Errorf("expected store to be empty")
	}
	if h.notifier.has(NoticeFinished) {
		t.Errorf("did not expect a finished notice on explicit stop")
	}
	time.Sleep(30 * time.Millisecond)
	if c := h.sink.count(); c != 1 {
		t.Fatalf("expected no further starts after stop, got %d", c)
	}

	out := h.enqueue("C")
	if !out.Started {
		t.Fatalf("expected a fresh session to start")
	}
	if h.waitPlaying(t, 2).track.Title != "C" {
		t.Fatalf("expected C to play")
	}
}

func TestStopDiscardsLateResolution(t *testing.T) {
	h := newHarness(t, false)
	release := h.resolver.block("A")
	defer release()

	h.enqueue("A")
	waitFor(t, func() bool { return h.resolver.callCount() == 1 })
	h.engine.Stop(testRoom)
	release()

	time.Sleep(50 * time.Millisecond)
	if c := h.sink.count(); c != 0 {
		t.Fatalf("expected the late resolution to be dropped, got %d starts", c)
	}
	if _, ok := h.engine.Store().Get(testRoom); ok {
		t.Fatalf("expected no session after stop")
	}
}

func TestResolutionFailureSkips(t *testing.T) {
	h := newHarness(t, false)
	h.resolver.fail["bad"] = true
	h.enqueue("bad", "good")

	if pb := h.waitPlaying(t, 1); pb.track.Title != "good" {
		t.Fatalf("expected good to play, got %s", pb.track.Title)
	}
	if !h.notifier.has(NoticeSkipped) {
		t.Errorf("expected a skipped notice")
	}
}

func TestAllFailuresTearDown(t *testing.T) {
	h := newHarness(t, true)
	h.resolver.fail["x"] = true
	h.resolver.fail["y"] = true
	h.enqueue("x", "y")

	waitFor(t, func() bool { _, ok := h.engine.Store().Get(testRoom); return !ok })
	if h.sink.count() != 0 {
		t.Fatalf("expected nothing to start")
	}
	if h.notifier.count(NoticeSkipped) != 2 {
		t.Errorf("expected two skipped notices, got %v", h.notifier.kinds())
	}
	if !h.notifier.has(NoticeFinished) {
		t.Errorf("expected a finished notice")
	}
	if h.rooms.leaveCount() == 0 {
		t.Errorf("expected the room to be left")
	}
	if h.resolver.searchCount() != 0 {
		t.Errorf("expected autoplay not to run without a played track")
	}
}

func TestAutoplayExtends(t *testing.T) {
	h := newHarness(t, true)
	h.resolver.results["A official audio"] = []SearchResult{
		{Title: "A (Official Video)", URL: "A-video"},
		{Title: "B", URL: "B"},
	}
	h.enqueue("A")
	h.waitPlaying(t, 1).finish()

	pb := h.waitPlaying(t, 2)
	if pb.track.Title != "B" {
		t.Fatalf("expected autoplay to pick B, got %s", pb.track.Title)
	}
	if !h.notifier.has(NoticeAutoplay) {
		t.Errorf("expected an autoplay notice")
	}
	if h.notifier.count(NoticeStarted) != 1 {
		t.Errorf("expected autoplayed track not to be announced as started, got %v", h.notifier.kinds())
	}
	cur, _ := h.session(t).Current()
	if !cur.Request.Auto {
		t.Errorf("expected current request to be marked as autoplay")
	}
}

func TestAutoplayExhausted(t *testing.T) {
	h := newHarness(t, true)
	h.enqueue("A")
	h.waitPlaying(t, 1).finish()

	waitFor(t, func() bool { _, ok := h.engine.Store().Get(testRoom); return !ok })
	if h.resolver.searchCount() != 2 {
		t.Errorf("expected both autoplay stages to run, got %d searches", h.resolver.searchCount())
	}
	if h.notifier.has(NoticeFinished) {
		t.Errorf("did not expect a finished notice when autoplay finds nothing")
	}
	if !h.notifier.has(NoticeStopped) {
		t.Errorf("expected a stopped notice")
	}
}

func TestAbandonDiscardsAutoplay(t *testing.T) {
	h := newHarness(t, true)
	h.resolver.results["A official audio"] = []SearchResult{{Title: "B", URL: "B"}}
	release := h.resolver.block("search:A official audio")
	defer release()

	h.enqueue("A")
	h.waitPlaying(t, 1).finish()
	waitFor(t, func() bool { return h.resolver.searchCount() == 1 })

	h.engine.Abandon(testRoom)
	release()

	time.Sleep(50 * time.Millisecond)
	if c := h.sink.count(); c != 1 {
		t.Fatalf("expected the proposal to be discarded, got %d starts", c)
	}
	if h.notifier.has(NoticeAutoplay) {
		t.Errorf("did not expect an autoplay notice")
	}
	if _, ok := h.engine.Store().Get(testRoom); ok {
		t.Errorf("expected the session to be gone")
	}
}

func TestBack(t *testing.T) {
	h := newHarness(t, false)
	h.enqueue("A", "B")
	h.waitPlaying(t, 1)

	if _, err := h.engine.Back(testRoom); !errors.Is(err, ErrNoPrevious) {
		t.Fatalf("expected ErrNoPrevious, got %v", err)
	}

	h.sink.at(0).finish()
	h.waitPlaying(t, 2)
	prev, err := h.engine.Back(testRoom)
	if err != nil || prev != "A" {
		t.Fatalf("expected to go back to A, got %q (%v)", prev, err)
	}
	h.waitPlaying(t, 3)
	if got := h.sink.titles(); !slices.Equal(got, []string{"A", "B", "A"}) {
		t.Fatalf("expected [A B A], got %v", got)
	}
}

func TestSeek(t *testing.T) {
	h := newHarness(t, false)
	h.enqueue("A", "B")
	h.waitPlaying(t, 1)

	if err := h.engine.Seek(testRoom, 5*time.Minute); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange past the end, got %v", err)
	}
	if err := h.engine.Seek(testRoom, 30*time.Second); err != nil {
		t.Fatalf("seek: %v", err)
	}
	pb := h.waitPlaying(t, 2)
	if pb.track.Title != "A" || pb.pipe.Offset != 30*time.Second {
		t.Fatalf("expected A at 30s, got %s at %s", pb.track.Title, pb.pipe.Offset)
	}
	if h.notifier.count(NoticeStarted) != 1 {
		t.Errorf("expected the restart not to be announced, got %v", h.notifier.kinds())
	}
	if got := queries(h.session(t).Queue()); !slices.Equal(got, []string{"B"}) {
		t.Errorf("expected [B] to remain queued, got %v", got)
	}

	// a finished seek restart starts from the top when looping
	h.engine.SetLoop(testRoom, LoopSong)
	pb.finish()
	if next := h.waitPlaying(t, 3); next.pipe.Offset != 0 {
		t.Errorf("expected loop replay from the start, got %s", next.pipe.Offset)
	}
}

func TestVolume(t *testing.T) {
	h := newHarness(t, false)
	h.enqueue("A")
	pb := h.waitPlaying(t, 1)

	if err := h.engine.SetVolume(testRoom, 3); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if err := h.engine.SetVolume(testRoom, 0.5); err != nil {
		t.Fatalf("set volume: %v", err)
	}
	if v, _, _ := pb.state(); v != 0.5 {
		t.Errorf("expected live volume 0.5, got %v", v)
	}
	if got := h.engine.Settings(testRoom).Volume; got != 0.5 {
		t.Errorf("expected session volume 0.5, got %v", got)
	}
}

func TestPauseProgress(t *testing.T) {
	clock := newFakeClock()
	h := newHarness(t, false, func(o *Options) { o.Clock = clock.Now })
	h.enqueue("A")
	pb := h.waitPlaying(t, 1)

	clock.Advance(10 * time.Second)
	if err := h.engine.Pause(testRoom); err != nil {
		t.Fatalf("pause: %v", err)
	}
	clock.Advance(20 * time.Second)
	p, ok := h.engine.NowPlaying(testRoom)
	if !ok || !p.Paused || p.Elapsed != 10*time.Second {
		t.Fatalf("expected paused at 10s, got %+v", p)
	}
	if _, paused, _ := pb.state(); !paused {
		t.Errorf("expected sink to be paused")
	}

	resumed, err := h.engine.TogglePause(testRoom)
	if err != nil || resumed {
		t.Fatalf("expected toggle to resume, got %v (%v)", resumed, err)
	}
	clock.Advance(5 * time.Second)
	if p, _ := h.engine.NowPlaying(testRoom); p.Elapsed != 15*time.Second {
		t.Fatalf("expected 15s elapsed, got %s", p.Elapsed)
	}

	reloaded, err := h.engine.SetSpeed(testRoom, 2)
	if err != nil || !reloaded {
		t.Fatalf("expected speed change to reload, got %v (%v)", reloaded, err)
	}
	next := h.waitPlaying(t, 2)
	if next.pipe.Offset != 15*time.Second || next.pipe.Speed != 2 {
		t.Fatalf("expected restart at 15s with speed 2, got %+v", next.pipe)
	}
	clock.Advance(5 * time.Second)
	if p, _ := h.engine.NowPlaying(testRoom); p.Elapsed != 25*time.Second {
		t.Fatalf("expected 25s elapsed at double speed, got %s", p.Elapsed)
	}
}

func TestFilter(t *testing.T) {
	h := newHarness(t, false)
	if _, err := h.engine.SetFilter(testRoom, "nightcore"); !errors.Is(err, ErrNothingPlaying) {
		t.Fatalf("expected ErrNothingPlaying without a session, got %v", err)
	}
	h.enqueue("A")
	h.waitPlaying(t, 1)
	if _, err := h.engine.SetFilter(testRoom, "chipmunk"); !errors.Is(err, ErrUnknownFilter) {
		t.Fatalf("expected ErrUnknownFilter, got %v", err)
	}
	if _, err := h.engine.SetFilter(testRoom, "bassboost"); err != nil {
		t.Fatalf("set filter: %v", err)
	}
	if pb := h.waitPlaying(t, 2); pb.pipe.Filter != "bassboost" {
		t.Fatalf("expected bassboost pipeline, got %q", pb.pipe.Filter)
	}
}

func TestQueueView(t *testing.T) {
	h := newHarness(t, false)
	qs := make([]string, 15)
	for i := range qs {
		qs[i] = "track" + string(rune('a'+i))
	}
	h.enqueue(qs...)
	h.waitPlaying(t, 1)

	v, ok := h.engine.QueueView(testRoom, 10)
	if !ok {
		t.Fatalf("expected a queue view")
	}
	if v.Current == nil || v.Current.Title != "tracka" {
		t.Fatalf("expected tracka to be current, got %+v", v.Current)
	}
	if len(v.Upcoming) != 10 || v.Overflow != 4 {
		t.Fatalf("expected 10 upcoming and 4 more, got %d and %d", len(v.Upcoming), v.Overflow)
	}

	if n := h.engine.Clear(testRoom); n != 14 {
		t.Errorf("expected 14 cleared, got %d", n)
	}
	if sessions := h.engine.Sessions(); len(sessions) != 1 || sessions[0].Title != "tracka" {
		t.Errorf("unexpected sessions %+v", sessions)
	}
}

type prefStore struct {
	mu sync.Mutex
	m  map[snowflake.ID]Prefs
}

func (p *prefStore) LoadPrefs(room snowflake.ID) (Prefs, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.m[room]
	return v, ok
}

func (p *prefStore) SavePrefs(room snowflake.ID, v Prefs) {
	p.mu.Lock()
	p.m[room] = v
	p.mu.Unlock()
}

func TestPreferencesRemembered(t *testing.T) {
	store := &prefStore{m: map[snowflake.ID]Prefs{}}
	h := newHarness(t, false, func(o *Options) { o.Preferences = store })

	h.engine.SetLoop(testRoom, LoopQueue)
	if err := h.engine.SetVolume(testRoom, 1.5); err != nil {
		t.Fatalf("set volume: %v", err)
	}
	h.enqueue("A")
	h.waitPlaying(t, 1)

	got := h.session(t).Settings()
	if got.Loop != LoopQueue || got.Volume != 1.5 {
		t.Fatalf("expected remembered settings, got %+v", got)
	}
	if v := h.sink.at(0).volume; v != 1.5 {
		t.Errorf("expected stream to start at 1.5, got %v", v)
	}
}

// newLateHarness starts playing qs through a sink whose completion only fires
// when the test calls finish, as the voice sink does after draining.
func newLateHarness(t *testing.T, qs ...string) (*harness, *fakePlayback) {
	t.Helper()
	h := newHarness(t, false)
	h.sink.holdStops = true
	h.enqueue(qs...)
	return h, h.waitPlaying(t, 1)
}

func TestRestartsBeforeCompletion(t *testing.T) {
	t.Run("second seek retargets the first", func(t *testing.T) {
		h, pb := newLateHarness(t, "A", "B")
		if err := h.engine.Seek(testRoom, 10*time.Second); err != nil {
			t.Fatalf("seek: %v", err)
		}
		if err := h.engine.Seek(testRoom, 20*time.Second); err != nil {
			t.Fatalf("second seek: %v", err)
		}
		pb.finish()

		next := h.waitPlaying(t, 2)
		if next.track.Title != "A" || next.pipe.Offset != 20*time.Second {
			t.Fatalf("expected A at 20s, got %s at %s", next.track.Title, next.pipe.Offset)
		}
		if got := queries(h.session(t).Queue()); !slices.Equal(got, []string{"B"}) {
			t.Fatalf("expected [B] queued, got %v", got)
		}
	})

	t.Run("speed change keeps a pending seek target", func(t *testing.T) {
		h, pb := newLateHarness(t, "A", "B")
		if err := h.engine.Seek(testRoom, 40*time.Second); err != nil {
			t.Fatalf("seek: %v", err)
		}
		if _, err := h.engine.SetSpeed(testRoom, 1.5); err != nil {
			t.Fatalf("speed: %v", err)
		}
		if _, err := h.engine.SetSpeed(testRoom, 2); err != nil {
			t.Fatalf("speed: %v", err)
		}
		pb.finish()

		next := h.waitPlaying(t, 2)
		if next.pipe.Offset != 40*time.Second || next.pipe.Speed != 2 {
			t.Fatalf("expected restart at 40s with speed 2, got %+v", next.pipe)
		}
		if got := queries(h.session(t).Queue()); !slices.Equal(got, []string{"B"}) {
			t.Fatalf("expected [B] queued, got %v", got)
		}
	})

	t.Run("skip wins over a later speed change", func(t *testing.T) {
		h, pb := newLateHarness(t, "A", "B")
		if _, err := h.engine.Skip(testRoom); err != nil {
			t.Fatalf("skip: %v", err)
		}
		reloaded, err := h.engine.SetSpeed(testRoom, 1.5)
		if err != nil || reloaded {
			t.Fatalf("expected no restart during a skip, got %v (%v)", reloaded, err)
		}
		if err := h.engine.Seek(testRoom, 5*time.Second); !errors.Is(err, ErrNothingPlaying) {
			t.Fatalf("expected seek during a skip to fail, got %v", err)
		}
		pb.finish()

		next := h.waitPlaying(t, 2)
		if next.track.Title != "B" || next.pipe.Speed != 1.5 {
			t.Fatalf("expected B at speed 1.5, got %s %+v", next.track.Title, next.pipe)
		}
		if q := h.session(t).Queue(); len(q) != 0 {
			t.Fatalf("expected an empty queue, got %v", queries(q))
		}
	})

	t.Run("skip cancels a pending restart", func(t *testing.T) {
		h, pb := newLateHarness(t, "A", "B")
		h.engine.SetLoop(testRoom, LoopSong)
		if _, err := h.engine.SetSpeed(testRoom, 1.5); err != nil {
			t.Fatalf("speed: %v", err)
		}
		if _, err := h.engine.Skip(testRoom); err != nil {
			t.Fatalf("skip: %v", err)
		}
		pb.finish()

		if next := h.waitPlaying(t, 2); next.track.Title != "B" {
			t.Fatalf("expected skip to move on to B, got %s", next.track.Title)
		}
		if q := h.session(t).Queue(); len(q) != 0 {
			t.Fatalf("expected an empty queue, got %v", queries(q))
		}
	})

	t.Run("back replaces a pending restart", func(t *testing.T) {
		h, first := newLateHarness(t, "A", "B", "C")
		first.finish()
		pb := h.waitPlaying(t, 2)

		if err := h.engine.Seek(testRoom, 10*time.Second); err != nil {
			t.Fatalf("seek: %v", err)
		}
		if prev, err := h.engine.Back(testRoom); err != nil || prev != "A" {
			t.Fatalf("expected back to A, got %q (%v)", prev, err)
		}
		if prev, err := h.engine.Back(testRoom); err != nil || prev != "A" {
			t.Fatalf("expected repeated back to keep A, got %q (%v)", prev, err)
		}
		pb.finish()

		next := h.waitPlaying(t, 3)
		if next.track.Title != "A" || next.pipe.Offset != 0 {
			t.Fatalf("expected A from the start, got %s at %s", next.track.Title, next.pipe.Offset)
		}
		if got := queries(h.session(t).Queue()); !slices.Equal(got, []string{"C"}) {
			t.Fatalf("expected [C] queued, got %v", got)
		}
	})
}
