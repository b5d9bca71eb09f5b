package home

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/jukebox/music"
	"github.com/leeineian/jukebox/proc"
	"github.com/leeineian/jukebox/sys"
)

func handleMusicPlay(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData, front bool) {
	engine, guildID, ok := musicEngine(event)
	if !ok {
		return
	}
	query, _ := data.OptString("query")

	var voiceChannel discord.VoiceState
	var inVoice bool
	if event.Member() != nil {
		voiceChannel, inVoice = event.Client().Caches.VoiceState(guildID, event.User().ID)
	}
	if !inVoice || voiceChannel.ChannelID == nil {
		musicRespond(event, sys.MsgMusicNotInVoice, true)
		return
	}

	// Expansion and joining can take a while.
	_ = event.DeferCreateMessage(false)

	ctx, cancel := context.WithTimeout(sys.AppContext, 30*time.Second)
	defer cancel()
	res, err := engine.Play(ctx, music.PlayRequest{
		Room:         guildID,
		VoiceChannel: *voiceChannel.ChannelID,
		TextChannel:  event.Channel().ID(),
		Query:        query,
		Front:        front,
	})

	content := playResponse(res)
	if err != nil {
		content = musicErrorMessage(err, query)
	}
	if _, err := event.Client().Rest.UpdateInteractionResponse(event.ApplicationID(), event.Token(), sys.NewV2Update([]string{content})); err != nil {
		sys.LogDebug(sys.MsgGenericError, err)
	}
}

// playResponse describes what an enqueue did.
func playResponse(res music.Enqueued) string {
	first := sys.EscapeMarkdown(res.First)
	switch {
	case res.Started && res.Count > 1:
		return fmt.Sprintf(sys.MsgMusicPlayingMany, res.Count, first)
	case res.Started:
		return fmt.Sprintf(sys.MsgMusicPlayingNow, first)
	case res.Count > 1:
		return fmt.Sprintf(sys.MsgMusicQueuedMany, res.Count, res.Position)
	}
	return fmt.Sprintf(sys.MsgMusicQueuedOne, first, res.Position)
}

func handleMusicAutocomplete(event *events.AutocompleteInteractionCreate) {
	focused := event.Data.Focused()
	if focused.Name != "query" {
		return
	}
	query := focused.String()
	jb := proc.GetMusic()
	if query == "" || jb == nil {
		_ = event.AutocompleteResult(nil)
		return
	}

	results := jb.Suggest.Suggest(query)
	choices := make([]discord.AutocompleteChoice, 0, len(results))
	for _, r := range results {
		// Discord caps choice values at 100 characters.
		val := r.URL
		if len(val) > 100 {
			val = sys.Truncate(r.Name, 100)
		}
		choices = append(choices, discord.AutocompleteChoiceString{
			Name:  sys.Truncate(r.Name, 100),
			Value: val,
		})
	}
	_ = event.AutocompleteResult(choices)
}
