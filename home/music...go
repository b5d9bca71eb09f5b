package home

import (
	"errors"
	"fmt"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jukebox/music"
	"github.com/leeineian/jukebox/proc"
	"github.com/leeineian/jukebox/sys"
)

func init() {
	filterChoices := make([]discord.ApplicationCommandOptionChoiceString, 0, len(music.Filters))
	for _, f := range music.Filters {
		filterChoices = append(filterChoices, discord.ApplicationCommandOptionChoiceString{Name: f, Value: f})
	}

	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "music",
		Description: "Music System",
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "play",
				Description: "Play a song or add it to the queue",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:         "query",
						Description:  "A link or search terms",
						Required:     true,
						Autocomplete: true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "playnext",
				Description: "Add a song to the front of the queue",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:         "query",
						Description:  "A link or search terms",
						Required:     true,
						Autocomplete: true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "skip",
				Description: "Skip the current song",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "stop",
				Description: "Stop playback, clear the queue and leave",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "pause",
				Description: "Pause or resume playback",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "back",
				Description: "Go back to the previous song",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "queue",
				Description: "Show the queue",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "nowplaying",
				Description: "Show the current song",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "clear",
				Description: "Remove every upcoming song",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "shuffle",
				Description: "Shuffle the upcoming songs",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "remove",
				Description: "Remove a song from the queue",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionInt{
						Name:        "position",
						Description: "Queue position (1 is next)",
						Required:    true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "move",
				Description: "Move a song to another position",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionInt{
						Name:        "from",
						Description: "Current position",
						Required:    true,
					},
					discord.ApplicationCommandOptionInt{
						Name:        "to",
						Description: "New position",
						Required:    true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "swap",
				Description: "Swap two songs in the queue",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionInt{
						Name:        "first",
						Description: "First position",
						Required:    true,
					},
					discord.ApplicationCommandOptionInt{
						Name:        "second",
						Description: "Second position",
						Required:    true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "loop",
				Description: "Set the loop mode, or cycle it",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:        "mode",
						Description: "off, song or queue",
						Required:    false,
						Choices: []discord.ApplicationCommandOptionChoiceString{
							{Name: "off", Value: "off"},
							{Name: "song", Value: "song"},
							{Name: "queue", Value: "queue"},
						},
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "volume",
				Description: "Set the volume",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionInt{
						Name:        "percent",
						Description: "0 to 200",
						Required:    true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "seek",
				Description: "Jump to a position in the current song",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:        "position",
						Description: "For example 1m30s, 90 or 1:30",
						Required:    true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "speed",
				Description: "Set the playback speed",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionFloat{
						Name:        "value",
						Description: "0.5 to 2.0",
						Required:    true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "filter",
				Description: "Apply an audio filter",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:        "name",
						Description: "The filter to apply",
						Required:    true,
						Choices:     filterChoices,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "autoplay",
				Description: "Toggle autoplay, or set it",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionBool{
						Name:        "enabled",
						Description: "Whether to keep playing related songs",
						Required:    false,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "stats",
				Description: "Most played songs in this server",
			},
		},
	}, func(event *events.ApplicationCommandInteractionCreate) {
		data := event.SlashCommandInteractionData()
		if data.SubCommandName == nil {
			return
		}

		switch *data.SubCommandName {
		case "play":
			handleMusicPlay(event, data, false)
		case "playnext":
			handleMusicPlay(event, data, true)
		case "skip":
			handleMusicSkip(event)
		case "stop":
			handleMusicStop(event)
		case "pause":
			handleMusicPause(event)
		case "back":
			handleMusicBack(event)
		case "queue":
			handleMusicQueue(event)
		case "nowplaying":
			handleMusicNowPlaying(event)
		case "clear":
			handleMusicClear(event)
		case "shuffle":
			handleMusicShuffle(event)
		case "remove":
			handleMusicRemove(event, data)
		case "move":
			handleMusicMove(event, data)
		case "swap":
			handleMusicSwap(event, data)
		case "loop":
			handleMusicLoop(event, data)
		case "volume":
			handleMusicVolume(event, data)
		case "seek":
			handleMusicSeek(event, data)
		case "speed":
			handleMusicSpeed(event, data)
		case "filter":
			handleMusicFilter(event, data)
		case "autoplay":
			handleMusicAutoplay(event, data)
		case "stats":
			handleMusicStats(event)
		}
	})

	sys.RegisterAutocompleteHandler("music", handleMusicAutocomplete)
	sys.RegisterComponentHandler("music:", handleMusicButton)
}

// musicRespond replies to the interaction with a single text block.
func musicRespond(event *events.ApplicationCommandInteractionCreate, content string, ephemeral bool) {
	msg := sys.NewV2Message([]string{content})
	if ephemeral {
		msg.Flags = msg.Flags.Add(discord.MessageFlagEphemeral)
	}
	if err := event.CreateMessage(msg); err != nil {
		sys.LogDebug(sys.MsgGenericError, err)
	}
}

// musicEngine returns the engine and the guild, or answers the interaction and
// reports false when either is missing.
func musicEngine(event *events.ApplicationCommandInteractionCreate) (*music.Engine, snowflake.ID, bool) {
	guildID := event.GuildID()
	jb := proc.GetMusic()
	if guildID == nil || jb == nil {
		musicRespond(event, fmt.Sprintf(sys.MsgMusicGenericFail, "the player is not ready"), true)
		return nil, 0, false
	}
	return jb.Engine, *guildID, true
}

// musicErrorMessage maps engine errors to user-facing text.
func musicErrorMessage(err error, query string) string {
	var expErr *music.ExpansionError
	var joinErr *music.JoinError
	switch {
	case errors.Is(err, music.ErrNoVoiceTarget):
		return sys.MsgMusicNotInVoice
	case errors.Is(err, music.ErrNothingPlaying):
		return sys.MsgMusicNothing
	case errors.Is(err, music.ErrNoPrevious):
		return sys.MsgMusicNoPrevious
	case errors.Is(err, music.ErrInvalidPosition):
		return sys.MsgMusicBadPosition
	case errors.Is(err, music.ErrOutOfRange):
		return sys.MsgMusicOutOfRange
	case errors.Is(err, music.ErrUnknownFilter):
		return sys.MsgMusicUnknownFilter
	case errors.Is(err, music.ErrUnsupported):
		return sys.MsgMusicUnsupported
	case errors.Is(err, music.ErrNotFound):
		return fmt.Sprintf(sys.MsgMusicNotFound, query)
	case errors.As(err, &expErr):
		return fmt.Sprintf(sys.MsgMusicExpandFail, expErr.Err)
	case errors.As(err, &joinErr):
		return fmt.Sprintf(sys.MsgMusicJoinFail, joinErr.Err)
	}
	return fmt.Sprintf(sys.MsgMusicGenericFail, err)
}
