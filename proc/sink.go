package proc

import (
	"context"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jukebox/music"
	"github.com/leeineian/jukebox/sys"
)

var (
	OpusSilence     = []byte{0xf8, 0xff, 0xfe}
	SilenceDuration = 1 * time.Second
)

// Start opens track and streams it into the guild's voice connection.
func (vs *VoiceSystem) Start(ctx context.Context, guildID snowflake.ID, track *music.Track, volume float64, p music.Pipeline) (music.Playback, error) {
	r, ok := vs.room(guildID)
	if !ok {
		return nil, errNotConnected
	}
	r.mu.Lock()
	joined, prev := r.joined, r.stream
	r.mu.Unlock()
	if !joined {
		return nil, errNotConnected
	}
	if prev != nil {
		prev.Stop()
	}

	st := newStream(ctx, vs, r, track, volume)
	t := NewTranscoder(&st.volume)
	var pre *prestage
	fail := func(err error) (music.Playback, error) {
		t.Close()
		if pre != nil {
			pre.Close()
		}
		st.cancel()
		return nil, err
	}

	if needsPrestage(p) {
		var err error
		if pre, err = startPrestage(st.ctx, track.Stream, p, vs.proxy); err != nil {
			return fail(err)
		}
		if err := t.OpenInput("", pre, vs.proxy); err != nil {
			return fail(err)
		}
	} else if err := t.OpenInput(track.Stream, nil, vs.proxy); err != nil {
		return fail(err)
	}
	if err := t.SetupDecoder(); err != nil {
		return fail(err)
	}
	if err := t.SetupEncoder(); err != nil {
		return fail(err)
	}
	if pre == nil {
		if err := t.SeekTo(p.Offset); err != nil {
			return fail(err)
		}
	}

	r.mu.Lock()
	r.stream = st
	channelID := r.channelID
	r.mu.Unlock()

	go func() {
		defer func() {
			t.Close()
			if pre != nil {
				pre.Close()
			}
		}()
		if err := t.Transcode(st.ctx, st.push); err != nil && st.ctx.Err() == nil {
			sys.LogVoice(sys.MsgVoiceStreamFail, track.Title, err)
		}
	}()

	setOpusFrameProviderSafe(st.ctx, r.conn, st)
	setSpeakingSafe(st.ctx, r.conn, voice.SpeakingFlagMicrophone)
	vs.status.Set(channelID, statusLine(track, false))
	return st, nil
}

// ===========================
// Stream
// ===========================

// stream is one started track. It is both the voice frame provider and the
// engine's playback handle.
type stream struct {
	vs    *VoiceSystem
	room  *voiceRoom
	track *music.Track

	volume atomic.Int32
	paused atomic.Bool
	frames chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	pauseMu sync.RWMutex
	resume  chan struct{}

	draining      bool
	silenceFrames int

	once      sync.Once
	cbMu      sync.Mutex
	completed bool
	callbacks []func()
}

func newStream(ctx context.Context, vs *VoiceSystem, r *voiceRoom, track *music.Track, volume float64) *stream {
	st := &stream{
		vs:     vs,
		room:   r,
		track:  track,
		frames: make(chan []byte, 100),
		resume: make(chan struct{}),
	}
	close(st.resume)
	st.volume.Store(volumePercent(volume))
	st.ctx, st.cancel = context.WithCancel(ctx)
	return st
}

func volumePercent(v float64) int32 {
	return int32(math.Round(v * 100))
}

func (st *stream) push(f []byte) {
	select {
	case st.frames <- f:
	case <-st.ctx.Done():
	}
}

// ProvideOpusFrame is called by the voice sender every 20ms.
func (st *stream) ProvideOpusFrame() ([]byte, error) {
	st.pauseMu.RLock()
	resume := st.resume
	st.pauseMu.RUnlock()

	select {
	case <-resume:
	case <-st.ctx.Done():
		st.finish()
		return nil, io.EOF
	case <-time.After(100 * time.Millisecond):
		return nil, nil
	}

	if st.draining {
		target := int(SilenceDuration.Milliseconds() / 20)
		if st.silenceFrames < target {
			st.silenceFrames++
			return OpusSilence, nil
		}
		st.finish()
		return nil, io.EOF
	}

	select {
	case f := <-st.frames:
		if f == nil {
			st.draining = true
			return OpusSilence, nil
		}
		return f, nil
	case <-st.ctx.Done():
		st.finish()
		return nil, io.EOF
	case <-time.After(500 * time.Millisecond):
		return OpusSilence, nil
	}
}

// Close is called by the voice connection when the provider is replaced.
func (st *stream) Close() {}

func (st *stream) Stop() {
	st.finish()
}

func (st *stream) SetVolume(v float64) {
	st.volume.Store(volumePercent(v))
}

func (st *stream) SetPaused(paused bool) {
	st.pauseMu.Lock()
	open := true
	select {
	case <-st.resume:
	default:
		open = false
	}
	switch {
	case paused && open:
		st.resume = make(chan struct{})
	case !paused && !open:
		close(st.resume)
	}
	st.pauseMu.Unlock()
	st.paused.Store(paused)

	st.room.mu.Lock()
	current := st.room.stream == st
	channelID := st.room.channelID
	st.room.mu.Unlock()
	if current {
		st.vs.status.Set(channelID, statusLine(st.track, paused))
	}
}

func (st *stream) OnCompleted(fn func()) {
	st.cbMu.Lock()
	if st.completed {
		st.cbMu.Unlock()
		go fn()
		return
	}
	st.callbacks = append(st.callbacks, fn)
	st.cbMu.Unlock()
}

// finish ends the stream once. Detaching from the connection runs on its own
// goroutine because finish may be called from inside the voice sender.
func (st *stream) finish() {
	st.once.Do(func() {
		st.cancel()
		go func() {
			st.room.mu.Lock()
			current := st.room.stream == st
			if current {
				st.room.stream = nil
			}
			st.room.mu.Unlock()
			if current {
				setOpusFrameProviderSafe(context.Background(), st.room.conn, nil)
				setSpeakingSafe(context.Background(), st.room.conn, 0)
			}

			st.cbMu.Lock()
			st.completed = true
			cbs := st.callbacks
			st.callbacks = nil
			st.cbMu.Unlock()
			for _, fn := range cbs {
				fn()
			}
		}()
	})
}
