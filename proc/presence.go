package proc

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/gateway"
	"github.com/leeineian/jukebox/music"
	"github.com/leeineian/jukebox/sys"
)

func presenceInterval() time.Duration {
	return time.Duration(15+rand.IntN(46)) * time.Second
}

// presenceRotator cycles the bot's listening activity through a few live
// figures about the jukebox.
type presenceRotator struct {
	sessions func() []music.SessionInfo
	set      func(ctx context.Context, text string) error
	started  time.Time
	last     string
}

func newPresenceRotator(client *bot.Client, engine *music.Engine) *presenceRotator {
	return &presenceRotator{
		sessions: engine.Sessions,
		set: func(ctx context.Context, text string) error {
			return client.SetPresence(ctx,
				gateway.WithOnlineStatus(discord.OnlineStatusOnline),
				gateway.WithListeningActivity(text),
			)
		},
		started: time.Now(),
	}
}

func (p *presenceRotator) Run(ctx context.Context) {
	for {
		next := presenceInterval()
		p.update(ctx, next)
		select {
		case <-time.After(next):
		case <-ctx.Done():
			return
		}
	}
}

// candidates lists the non-empty statuses for the current state.
func (p *presenceRotator) candidates(now time.Time) []string {
	sessions := p.sessions()
	out := []string{"/music play"}
	playing, queued := 0, 0
	for _, s := range sessions {
		if s.State == music.StatePlaying || s.State == music.StatePaused {
			playing++
		}
		queued += s.Queued
	}
	if playing > 0 {
		out = append(out, fmt.Sprintf("music in %d server(s)", playing))
	}
	if queued > 0 {
		out = append(out, fmt.Sprintf("%d queued song(s)", queued))
	}
	out = append(out, "for "+sys.FormatDuration(now.Sub(p.started)))
	return out
}

// pick chooses a status other than the last one shown, when possible.
func pick(available []string, last string, intn func(int) int) string {
	var choices []string
	for _, s := range available {
		if s != last {
			choices = append(choices, s)
		}
	}
	if len(choices) == 0 {
		return available[0]
	}
	return choices[intn(len(choices))]
}

func (p *presenceRotator) update(ctx context.Context, next time.Duration) {
	text := pick(p.candidates(time.Now()), p.last, rand.IntN)
	p.last = text
	if err := p.set(ctx, text); err != nil {
		sys.LogMusic(sys.MsgPresenceFail, err)
		return
	}
	sys.LogDebug(sys.MsgPresenceRotated, text, next)
}
