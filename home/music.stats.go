package home

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/jukebox/sys"
)

func handleMusicStats(event *events.ApplicationCommandInteractionCreate) {
	guildID := event.GuildID()
	if guildID == nil {
		return
	}

	ctx, cancel := context.WithTimeout(sys.AppContext, 5*time.Second)
	defer cancel()
	top, err := sys.GetTopTracks(ctx, *guildID, 10)
	if err != nil {
		musicRespond(event, fmt.Sprintf(sys.MsgMusicGenericFail, err), true)
		return
	}
	if len(top) == 0 {
		musicRespond(event, sys.MsgMusicStatsEmpty, true)
		return
	}
	total, _ := sys.GetTotalPlays(ctx, *guildID)

	var sb strings.Builder
	sb.WriteString(sys.MsgMusicStatsHeader + "\n")
	for i, t := range top {
		title := sys.EscapeMarkdown(sys.Truncate(t.Title, 70))
		if t.URL != "" {
			title = "[" + title + "](" + t.URL + ")"
		}
		fmt.Fprintf(&sb, "`%d.` %s · %d play(s)\n", i+1, title, t.Plays)
	}
	_ = event.CreateMessage(sys.NewV2Message([]string{
		strings.TrimRight(sb.String(), "\n"),
		fmt.Sprintf("-# %d play(s) in total", total),
	}))
}
