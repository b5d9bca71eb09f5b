package proc

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jukebox/sys"
)

const joinAttempts = 5

var errNotConnected = errors.New("not connected to voice")

// VoiceSystem owns the voice connections of every guild. It joins and leaves
// rooms and plays streams into them.
type VoiceSystem struct {
	client *bot.Client
	status *StatusPublisher
	proxy  string

	mu    sync.Mutex
	rooms map[snowflake.ID]*voiceRoom
}

type voiceRoom struct {
	guildID snowflake.ID
	conn    voice.Conn

	mu        sync.Mutex
	channelID snowflake.ID
	joined    bool
	stream    *stream
}

func NewVoiceSystem(client *bot.Client, status *StatusPublisher, proxy string) *VoiceSystem {
	return &VoiceSystem{
		client: client,
		status: status,
		proxy:  proxy,
		rooms:  make(map[snowflake.ID]*voiceRoom),
	}
}

func (vs *VoiceSystem) room(guildID snowflake.ID) (*voiceRoom, bool) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	r, ok := vs.rooms[guildID]
	return r, ok
}

// ChannelOf returns the channel the bot occupies in guildID.
func (vs *VoiceSystem) ChannelOf(guildID snowflake.ID) (snowflake.ID, bool) {
	r, ok := vs.room(guildID)
	if !ok {
		return 0, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.channelID, r.joined
}

// Join connects to channelID, moving if already connected elsewhere in the
// guild.
func (vs *VoiceSystem) Join(ctx context.Context, guildID, channelID snowflake.ID) error {
	vs.mu.Lock()
	r, ok := vs.rooms[guildID]
	if !ok {
		r = &voiceRoom{guildID: guildID, conn: vs.client.VoiceManager.CreateConn(guildID)}
		vs.rooms[guildID] = r
	}
	vs.mu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.joined && r.channelID == channelID {
		return nil
	}
	if r.joined && r.channelID != 0 {
		vs.status.Clear(r.channelID)
	}

	var lastErr error
attempts:
	for i := range joinAttempts {
		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * time.Second
			sys.LogVoice(sys.MsgVoiceJoinRetry, i, joinAttempts, guildID, lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				lastErr = ctx.Err()
				break attempts
			}
		}
		if err := r.conn.Open(ctx, channelID, false, false); err != nil {
			lastErr = err
			continue
		}
		r.channelID = channelID
		r.joined = true
		return nil
	}

	r.joined = false
	r.conn.Close(context.WithoutCancel(ctx))
	vs.mu.Lock()
	if vs.rooms[guildID] == r {
		delete(vs.rooms, guildID)
	}
	vs.mu.Unlock()
	return lastErr
}

// Leave stops any stream, clears the channel status and disconnects.
func (vs *VoiceSystem) Leave(ctx context.Context, guildID snowflake.ID) error {
	vs.mu.Lock()
	r, ok := vs.rooms[guildID]
	if ok {
		delete(vs.rooms, guildID)
	}
	vs.mu.Unlock()
	if !ok {
		return nil
	}

	r.mu.Lock()
	st := r.stream
	r.stream = nil
	channelID := r.channelID
	r.joined = false
	r.mu.Unlock()

	if st != nil {
		st.Stop()
	}
	vs.status.Clear(channelID)
	if r.conn != nil {
		r.conn.Close(ctx)
	}
	return nil
}

// moved records that the bot was moved to channelID by someone else.
func (vs *VoiceSystem) moved(guildID, channelID snowflake.ID) {
	r, ok := vs.room(guildID)
	if !ok {
		return
	}
	r.mu.Lock()
	old := r.channelID
	r.channelID = channelID
	var line string
	if r.stream != nil {
		line = statusLine(r.stream.track, r.stream.paused.Load())
	}
	r.mu.Unlock()

	if old != 0 && old != channelID {
		sys.LogVoice("Bot moved from %s to %s in guild %s", old, channelID, guildID)
		vs.status.Clear(old)
		if line != "" {
			vs.status.Set(channelID, line)
		}
	}
}

// Shutdown disconnects every room and clears every status it set.
func (vs *VoiceSystem) Shutdown(ctx context.Context) {
	vs.mu.Lock()
	ids := make([]snowflake.ID, 0, len(vs.rooms))
	for id := range vs.rooms {
		ids = append(ids, id)
	}
	vs.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(gid snowflake.ID) {
			defer wg.Done()
			_ = vs.Leave(ctx, gid)
		}(id)
	}
	wg.Wait()
	vs.status.ClearAll()
}

// ===========================
// Safe connection calls
// ===========================

func connUsable(c voice.Conn) bool {
	if c == nil {
		return false
	}
	v := reflect.ValueOf(c)
	return !(v.Kind() == reflect.Ptr && v.IsNil())
}

// setOpusFrameProviderSafe retries a few times, the connection may still be
// settling.
func setOpusFrameProviderSafe(ctx context.Context, c voice.Conn, provider voice.OpusFrameProvider) {
	if !connUsable(c) {
		return
	}
	for i := range 3 {
		if trySetOpusFrameProvider(c, provider) {
			return
		}
		if i < 2 {
			select {
			case <-time.After(150 * time.Millisecond):
			case <-ctx.Done():
				return
			}
		}
	}
	sys.LogVoice("Exhausted retries for SetOpusFrameProvider")
}

func trySetOpusFrameProvider(c voice.Conn, provider voice.OpusFrameProvider) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	c.SetOpusFrameProvider(provider)
	return true
}

func setSpeakingSafe(ctx context.Context, c voice.Conn, flags voice.SpeakingFlags) {
	if !connUsable(c) {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			sys.LogVoice("SetSpeaking panic recovered: %v", r)
		}
	}()
	c.SetSpeaking(ctx, flags)
}
