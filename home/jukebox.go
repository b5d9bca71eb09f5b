package home

import (
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/omit"
	"github.com/leeineian/jukebox/music"
	"github.com/leeineian/jukebox/proc"
	"github.com/leeineian/jukebox/sys"
)

func init() {
	adminPerm := discord.PermissionAdministrator

	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:                     "jukebox",
		Description:              "Jukebox diagnostics (Admin Only)",
		DefaultMemberPermissions: omit.New(&adminPerm),
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "status",
				Description: "List active music sessions",
			},
		},
	}, func(event *events.ApplicationCommandInteractionCreate) {
		data := event.SlashCommandInteractionData()
		if data.SubCommandName == nil || *data.SubCommandName != "status" {
			return
		}
		handleJukeboxStatus(event)
	})
}

func handleJukeboxStatus(event *events.ApplicationCommandInteractionCreate) {
	jb := proc.GetMusic()
	if jb == nil {
		musicRespond(event, fmt.Sprintf(sys.MsgMusicGenericFail, "the player is not ready"), true)
		return
	}
	musicRespond(event, renderSessions(jb.Engine.Sessions(), time.Now(), sys.GetLogPath()), true)
}

// renderSessions lists sessions, followed by the log file when logging to
// one.
func renderSessions(sessions []music.SessionInfo, now time.Time, logPath string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, sys.MsgMusicJukeboxHeader, len(sessions))
	if len(sessions) == 0 {
		sb.WriteString("\n" + sys.MsgMusicJukeboxNone)
	}
	for _, s := range sessions {
		fmt.Fprintf(&sb, "\n> `%s` **%s** · %d queued · up %s", s.Room, s.State, s.Queued, sys.FormatDuration(now.Sub(s.Created)))
		if s.Title != "" {
			fmt.Fprintf(&sb, "\n> ↳ %s", sys.EscapeMarkdown(sys.Truncate(s.Title, 80)))
		}
	}
	if logPath != "" {
		fmt.Fprintf(&sb, "\n-# Log file: `%s`", logPath)
	}
	return sb.String()
}
