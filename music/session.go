package music

import (
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

type stopReason int

const (
	stopNatural stopReason = iota
	stopSkip
	stopReload
	stopBack
)

// Settings is a snapshot of the tunable state of a session.
type Settings struct {
	Loop     LoopMode
	Autoplay bool
	Volume   float64
	Speed    float64
	Filter   string
}

// DefaultSettings are used for rooms without remembered preferences.
func DefaultSettings() Settings {
	return Settings{
		Autoplay: true,
		Volume:   1.0,
		Speed:    1.0,
		Filter:   FilterNone,
	}
}

// Session is the playback state of one room. All fields are guarded by mu;
// advancement runs on the session worker.
type Session struct {
	ID        snowflake.ID
	CreatedAt time.Time

	mu         sync.Mutex
	state      State
	queue      []Request
	current    *Current
	history    []string
	loop       LoopMode
	autoplay   bool
	volume     float64
	speed      float64
	filter     string
	channel    snowflake.ID
	startedAt  time.Time
	pausedAt   time.Time
	pending    stopReason
	generation uint64

	closed  atomic.Bool
	inboxMu sync.Mutex
	inbox   []event
	wake    chan struct{}
	done    chan struct{}
}

func NewSession(id snowflake.ID, s Settings) *Session {
	if s.Speed == 0 {
		s.Speed = 1
	}
	if s.Filter == "" {
		s.Filter = FilterNone
	}
	return &Session{
		ID:        id,
		CreatedAt: time.Now(),
		loop:      s.Loop,
		autoplay:  s.Autoplay,
		volume:    s.Volume,
		speed:     s.Speed,
		filter:    s.Filter,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// reloadHeadLocked returns the restart entry a pending reload put at the
// queue head, or nil.
func (s *Session) reloadHeadLocked() *Request {
	if s.pending != stopReload || len(s.queue) == 0 || !s.queue[0].Replay {
		return nil
	}
	return &s.queue[0]
}

// dropReloadLocked discards a pending restart entry.
func (s *Session) dropReloadLocked() {
	if s.reloadHeadLocked() != nil {
		s.queue = s.queue[1:]
	}
}

// Closed reports whether the session has been torn down.
func (s *Session) Closed() bool {
	return s.closed.Load()
}

// ===========================
// Queue Mutators
// ===========================

// Enqueue adds requests to the back of the queue, or to the front keeping
// their relative order. It returns the 1-indexed position of the first one.
func (s *Session) Enqueue(reqs []Request, front bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enqueueLocked(reqs, front)
}

func (s *Session) enqueueLocked(reqs []Request, front bool) int {
	if front {
		q := make([]Request, 0, len(reqs)+len(s.queue))
		q = append(q, reqs...)
		s.queue = append(q, s.queue...)
		return 1
	}
	s.queue = append(s.queue, reqs...)
	return len(s.queue) - len(reqs) + 1
}

func (s *Session) Remove(pos int) (Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pos < 1 || pos > len(s.queue) {
		return Request{}, ErrInvalidPosition
	}
	r := s.queue[pos-1]
	s.queue = append(s.queue[:pos-1], s.queue[pos:]...)
	return r, nil
}

// Insert places r so that it ends up at pos. pos may be len+1 to append.
func (s *Session) Insert(pos int, r Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pos < 1 || pos > len(s.queue)+1 {
		return ErrInvalidPosition
	}
	s.queue = append(s.queue, Request{})
	copy(s.queue[pos:], s.queue[pos-1:])
	s.queue[pos-1] = r
	return nil
}

// Move takes the entry at from and reinserts it at to.
func (s *Session) Move(from, to int) (Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.queue)
	if from < 1 || from > n || to < 1 || to > n {
		return Request{}, ErrInvalidPosition
	}
	r := s.queue[from-1]
	s.queue = append(s.queue[:from-1], s.queue[from:]...)
	s.queue = append(s.queue, Request{})
	copy(s.queue[to:], s.queue[to-1:])
	s.queue[to-1] = r
	return r, nil
}

func (s *Session) Swap(i, j int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.queue)
	if i < 1 || i > n || j < 1 || j > n {
		return ErrInvalidPosition
	}
	s.queue[i-1], s.queue[j-1] = s.queue[j-1], s.queue[i-1]
	return nil
}

// Clear empties the queue and returns how many entries were dropped.
func (s *Session) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.queue)
	s.queue = nil
	return n
}

func (s *Session) Shuffle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	rand.Shuffle(len(s.queue), func(i, j int) {
		s.queue[i], s.queue[j] = s.queue[j], s.queue[i]
	})
}

// ===========================
// Settings
// ===========================

func (s *Session) SetLoop(m LoopMode) {
	s.mu.Lock()
	s.loop = m
	s.mu.Unlock()
}

// CycleLoop advances off -> song -> queue -> off and returns the new mode.
func (s *Session) CycleLoop() LoopMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loop = s.loop.Next()
	return s.loop
}

func (s *Session) SetAutoplay(on bool) {
	s.mu.Lock()
	s.autoplay = on
	s.mu.Unlock()
}

func (s *Session) SetVolume(v float64) error {
	if v < 0 || v > 2 {
		return ErrOutOfRange
	}
	s.mu.Lock()
	s.volume = v
	s.mu.Unlock()
	return nil
}

func (s *Session) SetSpeed(v float64) error {
	if v < 0.5 || v > 2 {
		return ErrOutOfRange
	}
	s.mu.Lock()
	s.speed = v
	s.mu.Unlock()
	return nil
}

func (s *Session) SetFilter(name string) error {
	if !ValidFilter(name) {
		return ErrUnknownFilter
	}
	s.mu.Lock()
	s.filter = name
	s.mu.Unlock()
	return nil
}

// ===========================
// Snapshots
// ===========================

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Queue() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.queue...)
}

func (s *Session) History() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.history...)
}

// Current returns a copy of the playing track, if any.
func (s *Session) Current() (Current, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Current{}, false
	}
	return *s.current, true
}

func (s *Session) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settingsLocked()
}

func (s *Session) settingsLocked() Settings {
	return Settings{
		Loop:     s.loop,
		Autoplay: s.autoplay,
		Volume:   s.volume,
		Speed:    s.speed,
		Filter:   s.filter,
	}
}

func (s *Session) Channel() snowflake.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel
}

// recentLocked returns the last n history titles.
func (s *Session) recentLocked(n int) []string {
	h := s.history
	if len(h) > n {
		h = h[len(h)-n:]
	}
	return append([]string(nil), h...)
}

// progressLocked derives the playback position of the current track.
func (s *Session) progressLocked(now time.Time) time.Duration {
	if s.current == nil || s.startedAt.IsZero() {
		return 0
	}
	end := now
	if s.state == StatePaused && !s.pausedAt.IsZero() {
		end = s.pausedAt
	}
	speed := s.current.Speed
	if speed <= 0 {
		speed = 1
	}
	elapsed := s.current.Offset + time.Duration(float64(end.Sub(s.startedAt))*speed)
	if elapsed < 0 {
		elapsed = 0
	}
	if d := s.current.Track.Duration; d > 0 && elapsed > d {
		elapsed = d
	}
	return elapsed
}
