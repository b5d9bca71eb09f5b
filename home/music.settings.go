package home

import (
	"fmt"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/jukebox/music"
	"github.com/leeineian/jukebox/sys"
)

func handleMusicLoop(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	engine, guildID, ok := musicEngine(event)
	if !ok {
		return
	}
	raw, given := data.OptString("mode")
	if !given {
		musicRespond(event, fmt.Sprintf(sys.MsgMusicLoopSet, engine.CycleLoop(guildID)), false)
		return
	}
	mode, err := music.ParseLoopMode(raw)
	if err != nil {
		musicRespond(event, sys.MsgMusicOutOfRange, true)
		return
	}
	engine.SetLoop(guildID, mode)
	musicRespond(event, fmt.Sprintf(sys.MsgMusicLoopSet, mode), false)
}

func handleMusicVolume(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	engine, guildID, ok := musicEngine(event)
	if !ok {
		return
	}
	percent, _ := data.OptInt("percent")
	percent = min(max(percent, 0), 200)
	if err := engine.SetVolume(guildID, float64(percent)/100); err != nil {
		musicRespond(event, musicErrorMessage(err, ""), true)
		return
	}
	musicRespond(event, fmt.Sprintf(sys.MsgMusicVolumeSet, percent), false)
}

func handleMusicSpeed(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	engine, guildID, ok := musicEngine(event)
	if !ok {
		return
	}
	v, _ := data.OptFloat("value")
	if _, err := engine.SetSpeed(guildID, v); err != nil {
		musicRespond(event, musicErrorMessage(err, ""), true)
		return
	}
	musicRespond(event, fmt.Sprintf(sys.MsgMusicSpeedSet, v), false)
}

func handleMusicFilter(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	engine, guildID, ok := musicEngine(event)
	if !ok {
		return
	}
	name, _ := data.OptString("name")
	if _, err := engine.SetFilter(guildID, name); err != nil {
		musicRespond(event, musicErrorMessage(err, ""), true)
		return
	}
	musicRespond(event, fmt.Sprintf(sys.MsgMusicFilterSet, name), false)
}

func handleMusicAutoplay(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	engine, guildID, ok := musicEngine(event)
	if !ok {
		return
	}
	on, given := data.OptBool("enabled")
	if given {
		engine.SetAutoplay(guildID, on)
	} else {
		on = engine.ToggleAutoplay(guildID)
	}
	musicRespond(event, fmt.Sprintf(sys.MsgMusicAutoplaySet, onOff(on)), false)
}
