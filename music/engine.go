package music

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
)

const (
	defaultHistoryWindow  = 10
	defaultResolveTimeout = 45 * time.Second
)

// Options wires an Engine to its collaborators. Resolver, Sink and Rooms are
// required. A zero Defaults means DefaultSettings.
type Options struct {
	Resolver    Resolver
	Expander    Expander
	Sink        Sink
	Rooms       Rooms
	Notifier    Notifier
	Advisor     *Advisor
	Preferences Preferences

	Defaults       Settings
	HistoryWindow  int
	ResolveTimeout time.Duration
	Logger         *slog.Logger
	Clock          func() time.Time
}

// Engine drives every room's session.
type Engine struct {
	opts  Options
	store *Store
	log   *slog.Logger
	now   func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

func NewEngine(opts Options) *Engine {
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = defaultHistoryWindow
	}
	if opts.ResolveTimeout <= 0 {
		opts.ResolveTimeout = defaultResolveTimeout
	}
	if opts.Defaults.Speed == 0 {
		opts.Defaults = DefaultSettings()
	}
	if opts.Defaults.Filter == "" {
		opts.Defaults.Filter = FilterNone
	}
	e := &Engine{
		opts: opts,
		log:  opts.Logger,
		now:  opts.Clock,
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.store = NewStore(e.newSession)
	return e
}

func (e *Engine) Store() *Store { return e.store }

func (e *Engine) newSession(room snowflake.ID) *Session {
	settings := e.opts.Defaults
	if e.opts.Preferences != nil {
		if p, ok := e.opts.Preferences.LoadPrefs(room); ok {
			settings.Volume = p.Volume
			settings.Autoplay = p.Autoplay
			settings.Loop = p.Loop
		}
	}
	s := NewSession(room, settings)
	s.CreatedAt = e.now()
	go s.run(func(ev event) { e.handle(s, ev) }, func(err error) {
		e.log.Error("session worker panic", slog.String("component", "music"), slog.Any("err", err))
	})
	return s
}

// ===========================
// Enqueue
// ===========================

type PlayRequest struct {
	Room         snowflake.ID
	VoiceChannel snowflake.ID
	TextChannel  snowflake.ID
	Query        string
	Front        bool
}

type Enqueued struct {
	Count    int
	Position int
	Started  bool
	First    string
}

// Play expands, joins and enqueues. Links that fail to expand leave the queue
// untouched.
func (e *Engine) Play(ctx context.Context, req PlayRequest) (Enqueued, error) {
	if req.VoiceChannel == 0 {
		return Enqueued{}, ErrNoVoiceTarget
	}
	queries := []string{req.Query}
	if e.opts.Expander != nil && e.opts.Expander.Match(req.Query) {
		qs, err := e.opts.Expander.Expand(ctx, req.Query)
		if err == nil && len(qs) == 0 {
			err = ErrNotFound
		}
		if err != nil {
			return Enqueued{}, &ExpansionError{Link: req.Query, Err: err}
		}
		queries = qs
	}

	if err := e.opts.Rooms.Join(ctx, req.Room, req.VoiceChannel); err != nil {
		return Enqueued{}, &JoinError{Err: err}
	}

	reqs := make([]Request, 0, len(queries))
	for _, q := range queries {
		reqs = append(reqs, Request{Query: q})
	}
	return e.Enqueue(req.Room, req.TextChannel, reqs, req.Front), nil
}

// Enqueue appends reqs and, if the room is idle, starts advancing. Appending,
// the idle check and marking the session as resolving happen under one lock
// hold, so concurrent callers start playback once.
func (e *Engine) Enqueue(room, channel snowflake.ID, reqs []Request, front bool) Enqueued {
	for {
		s := e.store.GetOrCreate(room)
		s.mu.Lock()
		if s.closed.Load() {
			s.mu.Unlock()
			continue
		}
		out := Enqueued{Count: len(reqs)}
		if len(reqs) > 0 {
			out.First = reqs[0].Label()
		}
		out.Position = s.enqueueLocked(reqs, front)
		if channel != 0 {
			s.channel = channel
		}
		if s.state == StateIdle && len(s.queue) > 0 {
			s.state = StateResolving
			out.Started = true
			s.post(event{kind: evAdvance, origin: channel})
		}
		s.mu.Unlock()
		return out
	}
}

// ===========================
// Advance
// ===========================

func (e *Engine) handle(s *Session, ev event) {
	switch ev.kind {
	case evAdvance, evCompleted:
		e.advance(s, ev)
	}
}

// advance decides and starts whatever plays next. It only runs on the
// session worker.
func (e *Engine) advance(s *Session, ev event) {
	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		return
	}

	bypass, skipped := false, false
	if ev.kind == evCompleted {
		if s.current == nil || s.current.ID != ev.token {
			s.mu.Unlock()
			return
		}
		switch s.pending {
		case stopReload, stopBack:
			bypass = true
		case stopSkip:
			skipped = true
		}
		s.pending = stopNatural
	}
	if ev.origin != 0 {
		s.channel = ev.origin
	}

	var lastTitle string
	if prev := s.current; prev != nil {
		lastTitle = prev.Track.Title
		if !bypass {
			again := prev.Request
			again.Offset = 0
			again.Replay = false
			switch {
			case s.loop == LoopSong && !skipped:
				s.queue = append([]Request{again}, s.queue...)
			case s.loop == LoopQueue:
				s.queue = append(s.queue, again)
			}
		}
		s.current = nil
	}
	s.state = StateResolving

	for {
		if len(s.queue) == 0 {
			if !s.autoplay || lastTitle == "" {
				e.teardownLocked(s, "exhausted", true)
				return
			}
			if !e.proposeLocked(s, lastTitle) {
				return
			}
		}

		req := s.queue[0]
		s.queue = s.queue[1:]
		gen := s.generation
		s.mu.Unlock()

		track, err := e.resolve(req.Query)

		s.mu.Lock()
		if s.closed.Load() || s.generation != gen {
			s.mu.Unlock()
			return
		}
		if err != nil {
			e.skipLocked(s, req, err)
			continue
		}

		volume := s.volume
		pipe := Pipeline{Speed: s.speed, Filter: s.filter, Offset: req.Offset}
		s.mu.Unlock()

		pb, err := e.opts.Sink.Start(e.ctx, s.ID, track, volume, pipe)

		s.mu.Lock()
		if s.closed.Load() || s.generation != gen {
			s.mu.Unlock()
			if pb != nil {
				pb.Stop()
			}
			return
		}
		if err != nil {
			e.skipLocked(s, req, err)
			continue
		}
		if s.volume != volume {
			pb.SetVolume(s.volume)
		}

		if req.Title == "" {
			req.Title = track.Title
		}
		cur := &Current{
			ID:       uuid.New(),
			Request:  req,
			Track:    *track,
			Offset:   req.Offset,
			Speed:    pipe.Speed,
			playback: pb,
		}
		s.current = cur
		s.history = append(s.history, track.Title)
		s.startedAt = e.now()
		s.pausedAt = time.Time{}
		s.state = StatePlaying
		channel := s.channel
		s.mu.Unlock()

		tracksStarted.Inc()
		e.log.Info(fmt.Sprintf("Playing %q in %s", track.Title, s.ID), slog.String("component", "music"))
		if !req.Auto && !req.Replay {
			e.notify(Notice{Kind: NoticeStarted, Room: s.ID, Channel: channel, Title: track.Title})
		}
		pb.OnCompleted(func() {
			s.post(event{kind: evCompleted, token: cur.ID})
		})
		return
	}
}

// proposeLocked runs the advisor with the lock released. It returns false if
// the session was torn down meanwhile, with the lock released.
func (e *Engine) proposeLocked(s *Session, lastTitle string) bool {
	gen := s.generation
	recent := s.recentLocked(e.opts.HistoryWindow)
	s.mu.Unlock()

	cand, ok := e.opts.Advisor.Propose(e.ctx, lastTitle, recent)

	s.mu.Lock()
	if s.closed.Load() || s.generation != gen {
		s.mu.Unlock()
		autoplayOutcomes.WithLabelValues("discarded").Inc()
		return false
	}
	if len(s.queue) > 0 {
		// someone enqueued during the search
		autoplayOutcomes.WithLabelValues("superseded").Inc()
		return true
	}
	if !ok || !s.autoplay {
		autoplayOutcomes.WithLabelValues("exhausted").Inc()
		e.teardownLocked(s, "exhausted", false)
		return false
	}

	query := cand.URL
	if query == "" {
		query = cand.Title
	}
	s.queue = append(s.queue, Request{Query: query, Title: cand.Title, Auto: true})
	autoplayOutcomes.WithLabelValues("picked").Inc()
	e.notify(Notice{Kind: NoticeAutoplay, Room: s.ID, Channel: s.channel, Title: cand.Title})
	return true
}

func (e *Engine) resolve(query string) (*Track, error) {
	ctx, cancel := context.WithTimeout(e.ctx, e.opts.ResolveTimeout)
	defer cancel()
	start := time.Now()
	t, err := e.opts.Resolver.Resolve(ctx, query)
	resolveDuration.Observe(time.Since(start).Seconds())
	if err == nil && t == nil {
		err = ErrNotFound
	}
	if err != nil {
		return nil, &ResolutionError{Query: query, Err: err}
	}
	return t, nil
}

func (e *Engine) skipLocked(s *Session, req Request, err error) {
	resolveFailures.Inc()
	e.log.Warn(fmt.Sprintf("Skipping %q in %s: %v", req.Query, s.ID, err), slog.String("component", "music"))
	e.notify(Notice{Kind: NoticeSkipped, Room: s.ID, Channel: s.channel, Title: req.Label()})
}

func (e *Engine) notify(n Notice) {
	if e.opts.Notifier != nil {
		e.opts.Notifier.Notify(n)
	}
}

// ===========================
// Teardown
// ===========================

// teardownLocked clears s and releases the lock before doing the best-effort
// cleanup. Calling it on a closed session only releases the lock.
func (e *Engine) teardownLocked(s *Session, reason string, announce bool) {
	if s.closed.Load() {
		s.mu.Unlock()
		return
	}
	var pb Playback
	if s.current != nil {
		pb = s.current.playback
	}
	channel := s.channel
	s.autoplay = false
	s.queue = nil
	s.current = nil
	s.state = StateStopped
	s.generation++
	s.shutdown()
	s.mu.Unlock()

	teardowns.WithLabelValues(reason).Inc()
	e.store.release(s)
	if pb != nil {
		pb.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.opts.Rooms.Leave(ctx, s.ID); err != nil {
		e.log.Warn(fmt.Sprintf("Leave %s failed: %v", s.ID, err), slog.String("component", "music"))
	}
	e.notify(Notice{Kind: NoticeStopped, Room: s.ID, Channel: channel})
	if announce {
		e.notify(Notice{Kind: NoticeFinished, Room: s.ID, Channel: channel})
	}
}

// Stop tears the room down regardless of what is queued. It reports whether
// a session existed. Stopping twice is harmless.
func (e *Engine) Stop(room snowflake.ID) bool {
	s, ok := e.store.Get(room)
	if !ok {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = e.opts.Rooms.Leave(ctx, room)
		return false
	}
	s.mu.Lock()
	e.teardownLocked(s, "stop", false)
	return true
}

// Abandon is called when the room has emptied. Autoplay is switched off under
// the lock first so an in-flight proposal is thrown away.
func (e *Engine) Abandon(room snowflake.ID) {
	s, ok := e.store.Get(room)
	if !ok {
		return
	}
	s.mu.Lock()
	s.autoplay = false
	e.teardownLocked(s, "abandoned", false)
}

// Shutdown tears down every session.
func (e *Engine) Shutdown() {
	var wg sync.WaitGroup
	for _, s := range e.store.Sessions() {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.mu.Lock()
			e.teardownLocked(s, "shutdown", false)
		}(s)
	}
	wg.Wait()
	e.cancel()
}

// ===========================
// Transport Controls
// ===========================

func (e *Engine) playing(room snowflake.ID) (*Session, error) {
	s, ok := e.store.Get(room)
	if !ok {
		return nil, ErrNothingPlaying
	}
	return s, nil
}

// Skip stops the sink. The completion moves the queue on.
func (e *Engine) Skip(room snowflake.ID) (string, error) {
	s, err := e.playing(room)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return "", ErrNothingPlaying
	}
	if s.pending != stopBack {
		s.dropReloadLocked()
		s.pending = stopSkip
	}
	pb, title := s.current.playback, s.current.Track.Title
	s.mu.Unlock()
	pb.Stop()
	return title, nil
}

func (e *Engine) Pause(room snowflake.ID) error {
	_, err := e.setPaused(room, func(bool) bool { return true })
	return err
}

func (e *Engine) Resume(room snowflake.ID) error {
	_, err := e.setPaused(room, func(bool) bool { return false })
	return err
}

// TogglePause flips between playing and paused and returns the new state.
func (e *Engine) TogglePause(room snowflake.ID) (bool, error) {
	return e.setPaused(room, func(paused bool) bool { return !paused })
}

func (e *Engine) setPaused(room snowflake.ID, want func(paused bool) bool) (bool, error) {
	s, err := e.playing(room)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	if s.current == nil || (s.state != StatePlaying && s.state != StatePaused) {
		s.mu.Unlock()
		return false, ErrNothingPlaying
	}
	paused := s.state == StatePaused
	target := want(paused)
	if target == paused {
		s.mu.Unlock()
		return paused, nil
	}
	now := e.now()
	if target {
		s.pausedAt = now
		s.state = StatePaused
	} else {
		s.startedAt = s.startedAt.Add(now.Sub(s.pausedAt))
		s.pausedAt = time.Time{}
		s.state = StatePlaying
	}
	pb, channel, title := s.current.playback, s.channel, s.current.Track.Title
	s.mu.Unlock()

	pb.SetPaused(target)
	kind := NoticeResumed
	if target {
		kind = NoticePaused
	}
	e.notify(Notice{Kind: kind, Room: room, Channel: channel, Title: title})
	return target, nil
}

// Back replays the song before the current one.
func (e *Engine) Back(room snowflake.ID) (string, error) {
	s, err := e.playing(room)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return "", ErrNothingPlaying
	}
	if s.pending == stopBack && len(s.queue) > 0 {
		title := s.queue[0].Label()
		s.mu.Unlock()
		return title, nil
	}
	h := s.history
	if len(h) < 2 {
		s.mu.Unlock()
		return "", ErrNoPrevious
	}
	if h[len(h)-1] == s.current.Track.Title {
		h = h[:len(h)-1]
	}
	if len(h) == 0 {
		s.mu.Unlock()
		return "", ErrNoPrevious
	}
	prev := h[len(h)-1]
	s.history = h[:len(h)-1]
	s.dropReloadLocked()
	s.queue = append([]Request{{Query: prev, Title: prev}}, s.queue...)
	s.pending = stopBack
	pb := s.current.playback
	s.mu.Unlock()
	pb.Stop()
	return prev, nil
}

// reloadLocked restarts the current track at offset with the present
// pipeline settings. A restart already waiting for the completion is
// retargeted, and a pending skip or back wins over the restart.
func (e *Engine) reloadLocked(s *Session, offset time.Duration) Playback {
	if s.current == nil || (s.state != StatePlaying && s.state != StatePaused) {
		return nil
	}
	switch s.pending {
	case stopSkip, stopBack:
		return nil
	}
	if head := s.reloadHeadLocked(); head != nil {
		head.Offset = offset
		return s.current.playback
	}
	again := s.current.Request
	again.Offset = offset
	again.Replay = true
	s.queue = append([]Request{again}, s.queue...)
	s.pending = stopReload
	return s.current.playback
}

// ===========================
// Settings
// ===========================

// SetVolume applies live and is remembered for the room.
func (e *Engine) SetVolume(room snowflake.ID, v float64) error {
	if v < 0 || v > 2 {
		return ErrOutOfRange
	}
	e.updatePrefs(room, func(s *Session, p *Prefs) {
		p.Volume = v
		if s != nil {
			s.volume = v
			if s.current != nil {
				s.current.playback.SetVolume(v)
			}
		}
	})
	return nil
}

func (e *Engine) SetLoop(room snowflake.ID, m LoopMode) {
	e.updatePrefs(room, func(s *Session, p *Prefs) {
		p.Loop = m
		if s != nil {
			s.loop = m
		}
	})
}

// CycleLoop moves to the next loop mode and returns it.
func (e *Engine) CycleLoop(room snowflake.ID) LoopMode {
	var out LoopMode
	e.updatePrefs(room, func(s *Session, p *Prefs) {
		p.Loop = p.Loop.Next()
		if s != nil {
			s.loop = p.Loop
		}
		out = p.Loop
	})
	return out
}

func (e *Engine) SetAutoplay(room snowflake.ID, on bool) {
	e.updatePrefs(room, func(s *Session, p *Prefs) {
		p.Autoplay = on
		if s != nil {
			s.autoplay = on
		}
	})
}

func (e *Engine) ToggleAutoplay(room snowflake.ID) bool {
	var out bool
	e.updatePrefs(room, func(s *Session, p *Prefs) {
		p.Autoplay = !p.Autoplay
		if s != nil {
			s.autoplay = p.Autoplay
		}
		out = p.Autoplay
	})
	return out
}

// updatePrefs edits the live session, if any, and the remembered settings in
// one step.
func (e *Engine) updatePrefs(room snowflake.ID, fn func(s *Session, p *Prefs)) {
	var p Prefs
	if s, ok := e.store.Get(room); ok {
		s.mu.Lock()
		p = Prefs{Volume: s.volume, Autoplay: s.autoplay, Loop: s.loop}
		fn(s, &p)
		s.mu.Unlock()
	} else {
		p = e.storedPrefs(room)
		fn(nil, &p)
	}
	if e.opts.Preferences != nil {
		e.opts.Preferences.SavePrefs(room, p)
	}
}

func (e *Engine) storedPrefs(room snowflake.ID) Prefs {
	if e.opts.Preferences != nil {
		if p, ok := e.opts.Preferences.LoadPrefs(room); ok {
			return p
		}
	}
	d := e.opts.Defaults
	return Prefs{Volume: d.Volume, Autoplay: d.Autoplay, Loop: d.Loop}
}

// Settings returns the live session settings, or the remembered ones.
func (e *Engine) Settings(room snowflake.ID) Settings {
	if s, ok := e.store.Get(room); ok {
		return s.Settings()
	}
	p := e.storedPrefs(room)
	d := e.opts.Defaults
	d.Volume, d.Autoplay, d.Loop = p.Volume, p.Autoplay, p.Loop
	return d
}

// SetSpeed changes playback speed and restarts the current track from its
// present position. It reports whether a restart happened.
func (e *Engine) SetSpeed(room snowflake.ID, v float64) (bool, error) {
	if v < 0.5 || v > 2 {
		return false, ErrOutOfRange
	}
	return e.rebuild(room, func(s *Session) { s.speed = v })
}

func (e *Engine) SetFilter(room snowflake.ID, name string) (bool, error) {
	if !ValidFilter(name) {
		return false, ErrUnknownFilter
	}
	return e.rebuild(room, func(s *Session) { s.filter = name })
}

func (e *Engine) rebuild(room snowflake.ID, apply func(s *Session)) (bool, error) {
	s, err := e.playing(room)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	offset := s.progressLocked(e.now())
	if head := s.reloadHeadLocked(); head != nil {
		offset = head.Offset
	}
	apply(s)
	pb := e.reloadLocked(s, offset)
	s.mu.Unlock()
	if pb == nil {
		return false, nil
	}
	pb.Stop()
	return true, nil
}

// Seek restarts the current track at pos.
func (e *Engine) Seek(room snowflake.ID, pos time.Duration) error {
	if pos < 0 {
		return ErrOutOfRange
	}
	s, err := e.playing(room)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return ErrNothingPlaying
	}
	if d := s.current.Track.Duration; d > 0 && pos >= d {
		s.mu.Unlock()
		return ErrOutOfRange
	}
	pb := e.reloadLocked(s, pos)
	s.mu.Unlock()
	if pb == nil {
		return ErrNothingPlaying
	}
	pb.Stop()
	return nil
}

// ===========================
// Queue Editing
// ===========================

func (e *Engine) Remove(room snowflake.ID, pos int) (Request, error) {
	s, ok := e.store.Get(room)
	if !ok {
		return Request{}, ErrInvalidPosition
	}
	return s.Remove(pos)
}

func (e *Engine) Move(room snowflake.ID, from, to int) (Request, error) {
	s, ok := e.store.Get(room)
	if !ok {
		return Request{}, ErrInvalidPosition
	}
	return s.Move(from, to)
}

func (e *Engine) Swap(room snowflake.ID, i, j int) error {
	s, ok := e.store.Get(room)
	if !ok {
		return ErrInvalidPosition
	}
	return s.Swap(i, j)
}

func (e *Engine) Clear(room snowflake.ID) int {
	s, ok := e.store.Get(room)
	if !ok {
		return 0
	}
	return s.Clear()
}

// Shuffle reports false when there was nothing to shuffle.
func (e *Engine) Shuffle(room snowflake.ID) bool {
	s, ok := e.store.Get(room)
	if !ok {
		return false
	}
	s.Shuffle()
	return true
}
