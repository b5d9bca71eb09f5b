package home

import (
	"fmt"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/jukebox/proc"
	"github.com/leeineian/jukebox/sys"
)

func handleMusicSkip(event *events.ApplicationCommandInteractionCreate) {
	engine, guildID, ok := musicEngine(event)
	if !ok {
		return
	}
	title, err := engine.Skip(guildID)
	if err != nil {
		musicRespond(event, musicErrorMessage(err, ""), true)
		return
	}
	musicRespond(event, fmt.Sprintf(sys.MsgMusicSkipped, sys.EscapeMarkdown(title)), false)
}

func handleMusicStop(event *events.ApplicationCommandInteractionCreate) {
	engine, guildID, ok := musicEngine(event)
	if !ok {
		return
	}
	engine.Stop(guildID)
	musicRespond(event, sys.MsgMusicStopped, false)
}

func handleMusicPause(event *events.ApplicationCommandInteractionCreate) {
	engine, guildID, ok := musicEngine(event)
	if !ok {
		return
	}
	paused, err := engine.TogglePause(guildID)
	if err != nil {
		musicRespond(event, musicErrorMessage(err, ""), true)
		return
	}
	// The engine posts the paused/resumed notice to the bound channel.
	p, _ := engine.NowPlaying(guildID)
	title := ""
	if p != nil {
		title = sys.EscapeMarkdown(p.Title)
	}
	msg := sys.MsgMusicResumedNotice
	if paused {
		msg = sys.MsgMusicPausedNotice
	}
	musicRespond(event, fmt.Sprintf(msg, title), true)
}

func handleMusicBack(event *events.ApplicationCommandInteractionCreate) {
	engine, guildID, ok := musicEngine(event)
	if !ok {
		return
	}
	title, err := engine.Back(guildID)
	if err != nil {
		musicRespond(event, musicErrorMessage(err, ""), true)
		return
	}
	musicRespond(event, fmt.Sprintf(sys.MsgMusicGoingBack, sys.EscapeMarkdown(title)), false)
}

func handleMusicSeek(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	engine, guildID, ok := musicEngine(event)
	if !ok {
		return
	}
	raw, _ := data.OptString("position")
	pos, err := sys.ParseDuration(raw)
	if err != nil {
		musicRespond(event, sys.MsgMusicOutOfRange, true)
		return
	}
	if err := engine.Seek(guildID, pos); err != nil {
		musicRespond(event, musicErrorMessage(err, ""), true)
		return
	}
	musicRespond(event, fmt.Sprintf(sys.MsgMusicSeeked, sys.FormatClock(pos)), false)
}

// handleMusicButton serves the now-playing buttons (music:pause, music:skip,
// music:stop) and re-renders the panel in place.
func handleMusicButton(event *events.ComponentInteractionCreate) {
	action := strings.TrimPrefix(event.Data.CustomID(), "music:")
	jb := proc.GetMusic()
	guildID := event.GuildID()
	if jb == nil || guildID == nil {
		event.DeferUpdateMessage()
		return
	}
	engine := jb.Engine

	var err error
	switch action {
	case "pause":
		_, err = engine.TogglePause(*guildID)
	case "skip":
		_, err = engine.Skip(*guildID)
	case "stop":
		engine.Stop(*guildID)
		_ = event.UpdateMessage(sys.NewV2Update([]string{sys.MsgMusicStopped}))
		return
	default:
		event.DeferUpdateMessage()
		return
	}

	if err != nil {
		msg := discord.NewMessageCreate().
			WithContent(musicErrorMessage(err, "")).
			WithEphemeral(true)
		_ = event.CreateMessage(msg)
		return
	}

	p, ok := engine.NowPlaying(*guildID)
	if !ok {
		// Skipping the last song ends the session, or the next one is resolving.
		_ = event.UpdateMessage(sys.NewV2Update([]string{sys.MsgMusicNothing}))
		return
	}
	_ = event.UpdateMessage(sys.NewV2Update(nowPlayingBlocks(p), nowPlayingButtons(p.Paused)))
}
