package proc

import (
	"context"
	"sync"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jukebox/sys"
)

// roomEngine is the part of the engine the watcher drives.
type roomEngine interface {
	Stop(room snowflake.ID) bool
	Abandon(room snowflake.ID)
}

// watchedRooms is the part of the voice system the watcher reads.
type watchedRooms interface {
	ChannelOf(guildID snowflake.ID) (snowflake.ID, bool)
	Leave(ctx context.Context, guildID snowflake.ID) error
	moved(guildID, channelID snowflake.ID)
}

// RoomWatcher reacts to voice state changes: it leaves rooms that stay empty
// for the grace period and tears down sessions the bot was disconnected from.
type RoomWatcher struct {
	engine  roomEngine
	voice   watchedRooms
	grace   time.Duration
	humans  func(guildID, channelID snowflake.ID) int
	selfID  func() snowflake.ID
	pending sync.Map // snowflake.ID -> *time.Timer
}

func NewRoomWatcher(client *bot.Client, engine roomEngine, vs *VoiceSystem, grace time.Duration) *RoomWatcher {
	return &RoomWatcher{
		engine: engine,
		voice:  vs,
		grace:  grace,
		humans: func(guildID, channelID snowflake.ID) int { return countHumans(client, guildID, channelID) },
		selfID: client.ID,
	}
}

// countHumans counts the non-bot members in channelID.
func countHumans(client *bot.Client, guildID, channelID snowflake.ID) int {
	self := client.ID()
	n := 0
	for state := range client.Caches.VoiceStates(guildID) {
		if state.ChannelID == nil || *state.ChannelID != channelID || state.UserID == self {
			continue
		}
		if m, ok := client.Caches.Member(guildID, state.UserID); ok && m.User.Bot {
			continue
		}
		n++
	}
	return n
}

func (w *RoomWatcher) OnVoiceStateUpdate(event *events.GuildVoiceStateUpdate) {
	w.onState(event.VoiceState.GuildID, event.VoiceState.UserID, event.VoiceState.ChannelID)
}

func (w *RoomWatcher) onState(guildID, userID snowflake.ID, channelID *snowflake.ID) {
	if userID == w.selfID() {
		w.onSelfUpdate(guildID, channelID)
		return
	}
	w.check(guildID)
}

func (w *RoomWatcher) onSelfUpdate(guildID snowflake.ID, channelID *snowflake.ID) {
	if channelID == nil {
		if _, ok := w.voice.ChannelOf(guildID); !ok {
			return
		}
		w.cancel(guildID)
		sys.LogMusic(sys.MsgMusicDisconnected, guildID)
		w.engine.Stop(guildID)
		return
	}
	w.voice.moved(guildID, *channelID)
	w.check(guildID)
}

// check arms the grace timer when the bot's channel has no humans, and
// disarms it when someone is back.
func (w *RoomWatcher) check(guildID snowflake.ID) {
	channelID, joined := w.voice.ChannelOf(guildID)
	if !joined {
		w.cancel(guildID)
		return
	}
	if w.humans(guildID, channelID) > 0 {
		w.cancel(guildID)
		return
	}
	timer := time.AfterFunc(w.grace, func() { w.expire(guildID) })
	if _, loaded := w.pending.LoadOrStore(guildID, timer); loaded {
		timer.Stop()
	}
}

func (w *RoomWatcher) expire(guildID snowflake.ID) {
	w.pending.Delete(guildID)
	channelID, joined := w.voice.ChannelOf(guildID)
	if !joined || w.humans(guildID, channelID) > 0 {
		return
	}
	sys.LogMusic(sys.MsgMusicRoomEmpty, guildID)
	w.engine.Abandon(guildID)
	_ = w.voice.Leave(context.Background(), guildID)
}

func (w *RoomWatcher) cancel(guildID snowflake.ID) {
	if t, ok := w.pending.LoadAndDelete(guildID); ok {
		t.(*time.Timer).Stop()
	}
}
