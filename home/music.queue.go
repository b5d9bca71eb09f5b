package home

import (
	"fmt"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/jukebox/music"
	"github.com/leeineian/jukebox/sys"
)

const queuePageSize = 10

func handleMusicQueue(event *events.ApplicationCommandInteractionCreate) {
	engine, guildID, ok := musicEngine(event)
	if !ok {
		return
	}
	v, ok := engine.QueueView(guildID, queuePageSize)
	if !ok || (v.Current == nil && len(v.Upcoming) == 0) {
		musicRespond(event, sys.MsgMusicQueueEmpty, true)
		return
	}
	_ = event.CreateMessage(sys.NewV2Message(renderQueue(v)))
}

// renderQueue lays out the now-playing line, the next entries and the
// session flags as separate blocks.
func renderQueue(v music.QueueView) []string {
	var blocks []string
	if v.Current != nil {
		blocks = append(blocks, "## Now Playing\n"+progressLine(v.Current))
	}

	if len(v.Upcoming) > 0 {
		var sb strings.Builder
		sb.WriteString("## Up Next\n")
		for i, title := range v.Upcoming {
			fmt.Fprintf(&sb, "`%d.` %s\n", i+1, sys.EscapeMarkdown(sys.Truncate(title, 80)))
		}
		if v.Overflow > 0 {
			sb.WriteString(fmt.Sprintf(sys.MsgMusicQueueMore, v.Overflow))
		}
		blocks = append(blocks, strings.TrimRight(sb.String(), "\n"))
	}

	blocks = append(blocks, fmt.Sprintf("-# Loop: **%s** · Autoplay: **%s**", v.Loop, onOff(v.Autoplay)))
	return blocks
}

func progressLine(p *music.Progress) string {
	title := sys.EscapeMarkdown(p.Title)
	if p.URL != "" {
		title = "[" + title + "](" + p.URL + ")"
	}
	state := "▶️"
	if p.Paused {
		state = "⏸️"
	}
	total := "live"
	if p.Duration > 0 {
		total = sys.FormatClock(p.Duration)
	}
	return fmt.Sprintf("%s %s\n`%s / %s`", state, title, sys.FormatClock(p.Elapsed), total)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func handleMusicNowPlaying(event *events.ApplicationCommandInteractionCreate) {
	engine, guildID, ok := musicEngine(event)
	if !ok {
		return
	}
	p, ok := engine.NowPlaying(guildID)
	if !ok {
		musicRespond(event, sys.MsgMusicNothing, true)
		return
	}
	_ = event.CreateMessage(sys.NewV2Message(nowPlayingBlocks(p), nowPlayingButtons(p.Paused)))
}

func nowPlayingBlocks(p *music.Progress) []string {
	head := "## Now Playing\n" + progressLine(p)
	if p.Uploader != "" {
		head += "\n-# " + sys.EscapeMarkdown(p.Uploader)
	}
	if p.Duration <= 0 {
		return []string{head}
	}
	return []string{head, sys.ProgressBar(p.Elapsed, p.Duration, 16)}
}

func nowPlayingButtons(paused bool) discord.ActionRowComponent {
	label := "⏸️ Pause"
	if paused {
		label = "▶️ Resume"
	}
	return discord.NewActionRow(
		discord.NewButton(discord.ButtonStyleSecondary, label, "music:pause", "", 0),
		discord.NewButton(discord.ButtonStylePrimary, "⏭️ Skip", "music:skip", "", 0),
		discord.NewButton(discord.ButtonStyleDanger, "⏹️ Stop", "music:stop", "", 0),
	)
}

func handleMusicClear(event *events.ApplicationCommandInteractionCreate) {
	engine, guildID, ok := musicEngine(event)
	if !ok {
		return
	}
	musicRespond(event, fmt.Sprintf(sys.MsgMusicCleared, engine.Clear(guildID)), false)
}

func handleMusicShuffle(event *events.ApplicationCommandInteractionCreate) {
	engine, guildID, ok := musicEngine(event)
	if !ok {
		return
	}
	if !engine.Shuffle(guildID) {
		musicRespond(event, sys.MsgMusicQueueEmpty, true)
		return
	}
	musicRespond(event, sys.MsgMusicShuffled, false)
}

func handleMusicRemove(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	engine, guildID, ok := musicEngine(event)
	if !ok {
		return
	}
	pos, _ := data.OptInt("position")
	r, err := engine.Remove(guildID, pos)
	if err != nil {
		musicRespond(event, musicErrorMessage(err, ""), true)
		return
	}
	musicRespond(event, fmt.Sprintf(sys.MsgMusicRemoved, sys.EscapeMarkdown(r.Label())), false)
}

func handleMusicMove(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	engine, guildID, ok := musicEngine(event)
	if !ok {
		return
	}
	from, _ := data.OptInt("from")
	to, _ := data.OptInt("to")
	r, err := engine.Move(guildID, from, to)
	if err != nil {
		musicRespond(event, musicErrorMessage(err, ""), true)
		return
	}
	musicRespond(event, fmt.Sprintf(sys.MsgMusicMoved, sys.EscapeMarkdown(r.Label()), to), false)
}

func handleMusicSwap(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	engine, guildID, ok := musicEngine(event)
	if !ok {
		return
	}
	first, _ := data.OptInt("first")
	second, _ := data.OptInt("second")
	if err := engine.Swap(guildID, first, second); err != nil {
		musicRespond(event, musicErrorMessage(err, ""), true)
		return
	}
	musicRespond(event, fmt.Sprintf(sys.MsgMusicSwapped, first, second), false)
}
