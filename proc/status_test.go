package proc

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jukebox/music"
)

type putRecorder struct {
	mu    sync.Mutex
	calls []string
	fail  int
}

func (r *putRecorder) put(cid snowflake.ID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail > 0 {
		r.fail--
		return errors.New("rate limited")
	}
	r.calls = append(r.calls, cid.String()+"="+status)
	return nil
}

func (r *putRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func newTestPublisher(rec *putRecorder) *StatusPublisher {
	p := newStatusPublisher(rec.put)
	p.debounce = 10 * time.Millisecond
	p.retry = time.Millisecond
	return p
}

func waitCalls(t *testing.T, rec *putRecorder, n int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if calls := rec.snapshot(); len(calls) >= n {
			return calls
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d status updates, got %v", n, rec.snapshot())
	return nil
}

func TestStatusCoalesces(t *testing.T) {
	rec := &putRecorder{}
	p := newTestPublisher(rec)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.Set(1, "one")
	p.Set(1, "two")
	p.Set(1, "three")

	calls := waitCalls(t, rec, 1)
	time.Sleep(50 * time.Millisecond)
	if calls = rec.snapshot(); len(calls) != 1 || calls[0] != "1=three" {
		t.Errorf("calls = %v, want only the latest status", calls)
	}

	p.Set(1, "three")
	time.Sleep(50 * time.Millisecond)
	if calls := rec.snapshot(); len(calls) != 1 {
		t.Errorf("unchanged status was sent again: %v", calls)
	}
}

func TestStatusRetriesOnce(t *testing.T) {
	rec := &putRecorder{fail: 1}
	p := newTestPublisher(rec)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.Set(7, "hello")
	if calls := waitCalls(t, rec, 1); calls[0] != "7=hello" {
		t.Errorf("calls = %v", calls)
	}
}

func TestStatusClearAll(t *testing.T) {
	rec := &putRecorder{}
	p := newTestPublisher(rec)
	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)

	p.Set(1, "a")
	p.Set(2, "b")
	waitCalls(t, rec, 2)
	cancel()
	time.Sleep(20 * time.Millisecond)

	p.Set(3, "never sent")
	p.ClearAll()

	calls := rec.snapshot()
	cleared := map[string]bool{}
	for _, c := range calls[2:] {
		cleared[c] = true
	}
	for _, want := range []string{"1=", "2=", "3="} {
		if !cleared[want] {
			t.Errorf("ClearAll did not clear %q, calls = %v", want, calls)
		}
	}
}

func TestStatusLine(t *testing.T) {
	tr := &music.Track{Title: "Song", Uploader: "Artist"}
	if got := statusLine(tr, false); got != "🎶 Song · Artist" {
		t.Errorf("statusLine = %q", got)
	}
	if got := statusLine(tr, true); !strings.HasPrefix(got, "⏸️ ") {
		t.Errorf("paused statusLine = %q", got)
	}
	long := &music.Track{Title: strings.Repeat("x", 300), Uploader: "Artist"}
	if got := statusLine(long, false); len([]rune(got)) > maxStatusLength || !strings.HasSuffix(got, " · Artist") {
		t.Errorf("long statusLine = %q", got)
	}
}
