package proc

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jukebox/music"
	"github.com/leeineian/jukebox/sys"
)

// ChannelNotifier posts engine notices to the bound text channel and counts
// plays. Notices are delivered in order by Run.
type ChannelNotifier struct {
	send   func(channelID snowflake.ID, msg discord.MessageCreate) error
	record func(ctx context.Context, guildID snowflake.ID, title, url string, autoplayed bool) error
	queue  chan music.Notice
}

func NewChannelNotifier(client *bot.Client) *ChannelNotifier {
	return &ChannelNotifier{
		send: func(channelID snowflake.ID, msg discord.MessageCreate) error {
			_, err := client.Rest.CreateMessage(channelID, msg)
			return err
		},
		record: sys.RecordTrackPlay,
		queue:  make(chan music.Notice, 256),
	}
}

// noticeText returns the channel message for n, or "" for notices that are
// not announced.
func noticeText(n music.Notice) string {
	title := sys.EscapeMarkdown(n.Title)
	switch n.Kind {
	case music.NoticeStarted:
		return fmt.Sprintf(sys.MsgMusicStarted, title)
	case music.NoticeAutoplay:
		return fmt.Sprintf(sys.MsgMusicAutoplaying, title)
	case music.NoticeSkipped:
		return fmt.Sprintf(sys.MsgMusicSkippedNotice, n.Title)
	case music.NoticeFinished:
		return sys.MsgMusicFinished
	case music.NoticePaused:
		return fmt.Sprintf(sys.MsgMusicPausedNotice, title)
	case music.NoticeResumed:
		return fmt.Sprintf(sys.MsgMusicResumedNotice, title)
	}
	return ""
}

// Notify never blocks. Notices are dropped when the queue is full.
func (c *ChannelNotifier) Notify(n music.Notice) {
	select {
	case c.queue <- n:
	default:
		sys.LogMusic(sys.MsgMusicNoticeFail, n.Channel, "queue full")
	}
}

// Run delivers queued notices until ctx is done.
func (c *ChannelNotifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-c.queue:
			c.deliver(n)
		}
	}
}

func (c *ChannelNotifier) deliver(n music.Notice) {
	if n.Kind == music.NoticeStarted || n.Kind == music.NoticeAutoplay {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := c.record(ctx, n.Room, n.Title, "", n.Kind == music.NoticeAutoplay)
		cancel()
		if err != nil {
			sys.LogDatabase(sys.MsgMusicStatsFail, n.Room, err)
		}
	}
	text := noticeText(n)
	if text == "" || n.Channel == 0 {
		return
	}
	if err := c.send(n.Channel, sys.NewV2Message([]string{text})); err != nil {
		sys.LogMusic(sys.MsgMusicNoticeFail, n.Channel, err)
	}
}
