package music

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Progress describes the track bound to the sink.
type Progress struct {
	Title    string
	URL      string
	Uploader string
	Elapsed  time.Duration
	Duration time.Duration
	Paused   bool
}

type QueueView struct {
	Current  *Progress
	Upcoming []string
	Overflow int
	Loop     LoopMode
	Autoplay bool
}

// SessionInfo is a diagnostic summary of one room.
type SessionInfo struct {
	Room     snowflake.ID
	State    State
	Queued   int
	Title    string
	Channel  snowflake.ID
	Created  time.Time
	Settings Settings
}

// QueueView lists up to limit upcoming entries.
func (e *Engine) QueueView(room snowflake.ID, limit int) (QueueView, bool) {
	s, ok := e.store.Get(room)
	if !ok {
		return QueueView{}, false
	}
	if limit <= 0 {
		limit = 10
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v := QueueView{
		Current:  e.progressLocked(s),
		Loop:     s.loop,
		Autoplay: s.autoplay,
	}
	for i, r := range s.queue {
		if i >= limit {
			v.Overflow = len(s.queue) - limit
			break
		}
		v.Upcoming = append(v.Upcoming, r.Label())
	}
	return v, true
}

func (e *Engine) NowPlaying(room snowflake.ID) (*Progress, bool) {
	s, ok := e.store.Get(room)
	if !ok {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := e.progressLocked(s)
	return p, p != nil
}

func (e *Engine) progressLocked(s *Session) *Progress {
	if s.current == nil {
		return nil
	}
	t := s.current.Track
	return &Progress{
		Title:    t.Title,
		URL:      t.URL,
		Uploader: t.Uploader,
		Elapsed:  s.progressLocked(e.now()),
		Duration: t.Duration,
		Paused:   s.state == StatePaused,
	}
}

func (e *Engine) Sessions() []SessionInfo {
	sessions := e.store.Sessions()
	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		s.mu.Lock()
		info := SessionInfo{
			Room:     s.ID,
			State:    s.state,
			Queued:   len(s.queue),
			Channel:  s.channel,
			Created:  s.CreatedAt,
			Settings: s.settingsLocked(),
		}
		if s.current != nil {
			info.Title = s.current.Track.Title
		}
		s.mu.Unlock()
		out = append(out, info)
	}
	return out
}
