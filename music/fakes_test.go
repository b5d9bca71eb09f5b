package music

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

var errBadQuery = errors.New("bad query")

type fakeResolver struct {
	mu      sync.Mutex
	fail    map[string]bool
	gates   map[string]chan struct{}
	calls    []string
	searches []string
	results  map[string][]SearchResult
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		fail:    make(map[string]bool),
		gates:   make(map[string]chan struct{}),
		results: make(map[string][]SearchResult),
	}
}

// block makes Resolve(query) wait until the returned func is called.
func (r *fakeResolver) block(query string) func() {
	ch := make(chan struct{})
	r.mu.Lock()
	r.gates[query] = ch
	r.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (r *fakeResolver) Resolve(ctx context.Context, query string) (*Track, error) {
	r.mu.Lock()
	r.calls = append(r.calls, query)
	gate := r.gates[query]
	fail := r.fail[query]
	r.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if fail {
		return nil, errBadQuery
	}
	return &Track{Title: query, Duration: 3 * time.Minute, URL: "https://example.com/" + query, Stream: "stream:" + query}, nil
}

// Search honours gates registered as "search:" + query.
func (r *fakeResolver) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	r.mu.Lock()
	r.searches = append(r.searches, query)
	gate := r.gates["search:"+query]
	r.mu.Unlock()
	if gate != nil {
		<-gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.results[query], nil
}

func (r *fakeResolver) searchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.searches)
}

func (r *fakeResolver) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type fakePlayback struct {
	track *Track
	pipe  Pipeline
	hold  bool // Stop leaves the completion to the test, like a sink draining frames

	mu      sync.Mutex
	volume  float64
	paused  bool
	stopped bool
	done    bool
	fn      func()
}

func (p *fakePlayback) finish() {
	p.mu.Lock()
	if p.done {
		p.mu.Unlock()
		return
	}
	p.done = true
	fn := p.fn
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (p *fakePlayback) Stop() {
	p.mu.Lock()
	p.stopped = true
	hold := p.hold
	p.mu.Unlock()
	if !hold {
		p.finish()
	}
}

func (p *fakePlayback) SetVolume(v float64) {
	p.mu.Lock()
	p.volume = v
	p.mu.Unlock()
}

func (p *fakePlayback) state() (volume float64, paused, stopped bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume, p.paused, p.stopped
}

func (p *fakePlayback) SetPaused(paused bool) {
	p.mu.Lock()
	p.paused = paused
	p.mu.Unlock()
}

func (p *fakePlayback) OnCompleted(fn func()) {
	p.mu.Lock()
	if p.done {
		p.mu.Unlock()
		fn()
		return
	}
	p.fn = fn
	p.mu.Unlock()
}

type fakeSink struct {
	mu        sync.Mutex
	starts    []*fakePlayback
	holdStops bool
}

func (s *fakeSink) Start(ctx context.Context, room snowflake.ID, t *Track, volume float64, p Pipeline) (Playback, error) {
	s.mu.Lock()
	pb := &fakePlayback{track: t, pipe: p, volume: volume, hold: s.holdStops}
	s.starts = append(s.starts, pb)
	s.mu.Unlock()
	return pb, nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.starts)
}

func (s *fakeSink) at(i int) *fakePlayback {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts[i]
}

func (s *fakeSink) titles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.starts))
	for _, pb := range s.starts {
		out = append(out, pb.track.Title)
	}
	return out
}

type fakeRooms struct {
	mu     sync.Mutex
	joins  int
	leaves int
	err    error
}

func (r *fakeRooms) Join(ctx context.Context, room, channel snowflake.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joins++
	return r.err
}

func (r *fakeRooms) Leave(ctx context.Context, room snowflake.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaves++
	return errors.New("not connected")
}

func (r *fakeRooms) leaveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaves
}

type fakeNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

func (n *fakeNotifier) Notify(x Notice) {
	n.mu.Lock()
	n.notices = append(n.notices, x)
	n.mu.Unlock()
}

func (n *fakeNotifier) kinds() []NoticeKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]NoticeKind, 0, len(n.notices))
	for _, x := range n.notices {
		out = append(out, x.Kind)
	}
	return out
}

func (n *fakeNotifier) has(k NoticeKind) bool {
	return n.count(k) > 0
}

func (n *fakeNotifier) count(k NoticeKind) int {
	c := 0
	for _, x := range n.kinds() {
		if x == k {
			c++
		}
	}
	return c
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	engine   *Engine
	resolver *fakeResolver
	sink     *fakeSink
	rooms    *fakeRooms
	notifier *fakeNotifier
}

const (
	testRoom    = snowflake.ID(1001)
	testVoice   = snowflake.ID(2002)
	testChannel = snowflake.ID(3003)
)

func newHarness(t *testing.T, autoplay bool, tweaks ...func(*Options)) *harness {
	t.Helper()
	h := &harness{
		resolver: newFakeResolver(),
		sink:     &fakeSink{},
		rooms:    &fakeRooms{},
		notifier: &fakeNotifier{},
	}
	defaults := DefaultSettings()
	defaults.Autoplay = autoplay
	opts := Options{
		Resolver: h.resolver,
		Sink:     h.sink,
		Rooms:    h.rooms,
		Notifier: h.notifier,
		Advisor:  NewAdvisor(h.resolver),
		Defaults: defaults,
	}
	for _, tweak := range tweaks {
		tweak(&opts)
	}
	h.engine = NewEngine(opts)
	t.Cleanup(h.engine.Shutdown)
	return h
}

func (h *harness) enqueue(queries ...string) Enqueued {
	reqs := make([]Request, 0, len(queries))
	for _, q := range queries {
		reqs = append(reqs, Request{Query: q})
	}
	return h.engine.Enqueue(testRoom, testChannel, reqs, false)
}

func (h *harness) session(t *testing.T) *Session {
	t.Helper()
	s, ok := h.engine.Store().Get(testRoom)
	if !ok {
		t.Fatalf("expected a session for room %s", testRoom)
	}
	return s
}

// waitPlaying blocks until the sink has seen n starts and the n-th is current.
func (h *harness) waitPlaying(t *testing.T, n int) *fakePlayback {
	t.Helper()
	waitFor(t, func() bool {
		if h.sink.count() < n {
			return false
		}
		s, ok := h.engine.Store().Get(testRoom)
		if !ok {
			return false
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.current != nil && s.current.playback == Playback(h.sink.at(n-1))
	})
	return h.sink.at(n - 1)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}

func queries(reqs []Request) []string {
	out := make([]string, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, r.Query)
	}
	return out
}
