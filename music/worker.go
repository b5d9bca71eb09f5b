package music

import (
	"fmt"
	"runtime/debug"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
)

type eventKind int

const (
	evAdvance eventKind = iota
	evCompleted
)

type event struct {
	kind   eventKind
	origin snowflake.ID
	token  uuid.UUID
}

// post hands ev to the session worker. It never blocks.
func (s *Session) post(ev event) {
	if s.closed.Load() {
		return
	}
	s.inboxMu.Lock()
	s.inbox = append(s.inbox, ev)
	s.inboxMu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Session) next() (event, bool) {
	s.inboxMu.Lock()
	defer s.inboxMu.Unlock()
	if len(s.inbox) == 0 {
		return event{}, false
	}
	ev := s.inbox[0]
	s.inbox = s.inbox[1:]
	return ev, true
}

// run processes events one at a time until the session shuts down.
func (s *Session) run(handle func(event), onPanic func(error)) {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		for {
			if s.closed.Load() {
				return
			}
			ev, ok := s.next()
			if !ok {
				break
			}
			s.dispatch(ev, handle, onPanic)
		}
	}
}

func (s *Session) dispatch(ev event, handle func(event), onPanic func(error)) {
	defer func() {
		if r := recover(); r != nil && onPanic != nil {
			onPanic(fmt.Errorf("session %s: %v\n%s", s.ID, r, debug.Stack()))
		}
	}()
	handle(ev)
}

// shutdown marks the session closed and stops its worker. It reports whether
// this call did the closing.
func (s *Session) shutdown() bool {
	if !s.closed.CompareAndSwap(false, true) {
		return false
	}
	close(s.done)
	s.inboxMu.Lock()
	s.inbox = nil
	s.inboxMu.Unlock()
	return true
}
