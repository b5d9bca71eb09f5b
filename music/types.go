package music

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
)

// ===========================
// Loop Mode
// ===========================

type LoopMode int

const (
	LoopOff LoopMode = iota
	LoopSong
	LoopQueue
)

func (m LoopMode) String() string {
	switch m {
	case LoopSong:
		return "song"
	case LoopQueue:
		return "queue"
	default:
		return "off"
	}
}

// Next returns the mode that follows m in the off -> song -> queue cycle.
func (m LoopMode) Next() LoopMode {
	return (m + 1) % 3
}

func ParseLoopMode(s string) (LoopMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "none", "":
		return LoopOff, nil
	case "song", "track", "one":
		return LoopSong, nil
	case "queue", "all":
		return LoopQueue, nil
	}
	return LoopOff, fmt.Errorf("unknown loop mode %q", s)
}

// ===========================
// Session State
// ===========================

type State int

const (
	StateIdle State = iota
	StateResolving
	StatePlaying
	StatePaused
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateResolving:
		return "resolving"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return "idle"
	}
}

// ===========================
// Requests & Tracks
// ===========================

// Request is an unresolved entry in the queue.
type Request struct {
	Query  string
	Title  string        // display label, empty until known
	Offset time.Duration // start position, set by seek and reload
	Auto   bool          // proposed by autoplay
	Replay bool          // restart of a track that was already announced
}

// Label is what queue listings show for the request.
func (r Request) Label() string {
	if r.Title != "" {
		return r.Title
	}
	return r.Query
}

// Track is a resolved request.
type Track struct {
	Title    string
	Uploader string
	Duration time.Duration
	URL      string // canonical page link
	Stream   string // playable stream handle, may expire
}

type SearchResult struct {
	Title    string
	Uploader string
	URL      string
	Duration time.Duration
}

// Current is the track bound to the sink.
type Current struct {
	ID      uuid.UUID
	Request Request
	Track   Track
	Offset  time.Duration
	Speed   float64

	playback Playback
}

// Pipeline carries the stream-build parameters. Changing any of them needs a
// new stream.
type Pipeline struct {
	Speed  float64
	Filter string
	Offset time.Duration
}

// ===========================
// Ports
// ===========================

type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

// Resolver turns a query into a playable track. A non-URL query is a top-1
// search. Resolving the same query twice returns an equivalent track with a
// fresh stream handle.
type Resolver interface {
	Searcher
	Resolve(ctx context.Context, query string) (*Track, error)
}

// Expander turns a share link into an ordered list of queries.
type Expander interface {
	Match(link string) bool
	Expand(ctx context.Context, link string) ([]string, error)
}

// Playback is a handle to one started stream.
type Playback interface {
	Stop()
	SetVolume(volume float64)
	SetPaused(paused bool)
	// OnCompleted registers fn, which fires exactly once per start, either on
	// natural end or after Stop, from an arbitrary goroutine.
	OnCompleted(fn func())
}

type Sink interface {
	Start(ctx context.Context, room snowflake.ID, track *Track, volume float64, p Pipeline) (Playback, error)
}

// Rooms manages voice membership. Join while connected elsewhere moves.
type Rooms interface {
	Join(ctx context.Context, room, channel snowflake.ID) error
	Leave(ctx context.Context, room snowflake.ID) error
}

type NoticeKind int

const (
	NoticeStarted NoticeKind = iota
	NoticeAutoplay
	NoticeSkipped
	NoticeFinished
	NoticePaused
	NoticeResumed
	NoticeStopped
)

type Notice struct {
	Kind    NoticeKind
	Room    snowflake.ID
	Channel snowflake.ID
	Title   string
}

type Notifier interface {
	Notify(n Notice)
}

// Prefs are the per-room settings remembered across sessions.
type Prefs struct {
	Volume   float64
	Autoplay bool
	Loop     LoopMode
}

type Preferences interface {
	LoadPrefs(room snowflake.ID) (Prefs, bool)
	SavePrefs(room snowflake.ID, p Prefs)
}
