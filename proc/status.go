package proc

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jukebox/music"
	"github.com/leeineian/jukebox/sys"
	"golang.org/x/time/rate"
)

const maxStatusLength = 128

// StatusPublisher keeps voice channel statuses in sync. Updates for the same
// channel coalesce, only the latest is sent.
type StatusPublisher struct {
	put      func(channelID snowflake.ID, status string) error
	limiter  *rate.Limiter
	debounce time.Duration
	retry    time.Duration

	mu      sync.Mutex
	pending map[snowflake.ID]string
	current map[snowflake.ID]string
	wake    chan struct{}
}

func NewStatusPublisher(client *bot.Client) *StatusPublisher {
	return newStatusPublisher(func(cid snowflake.ID, status string) error {
		route := rest.NewEndpoint(http.MethodPut, "/channels/"+cid.String()+"/voice-status")
		return client.Rest.Do(route.Compile(nil), map[string]string{"status": status}, nil)
	})
}

func newStatusPublisher(put func(snowflake.ID, string) error) *StatusPublisher {
	return &StatusPublisher{
		put:      put,
		limiter:  rate.NewLimiter(rate.Every(time.Second), 5),
		debounce: 500 * time.Millisecond,
		retry:    time.Second,
		pending:  make(map[snowflake.ID]string),
		current:  make(map[snowflake.ID]string),
		wake:     make(chan struct{}, 1),
	}
}

// statusLine renders the status shown while track plays.
func statusLine(t *music.Track, paused bool) string {
	prefix := "🎶 "
	if paused {
		prefix = "⏸️ "
	}
	suffix := ""
	if t.Uploader != "" {
		suffix = " · " + t.Uploader
	}
	return sys.TruncateWithPreserve(t.Title, maxStatusLength, prefix, suffix)
}

func (p *StatusPublisher) Set(channelID snowflake.ID, status string) {
	if channelID == 0 {
		return
	}
	if len([]rune(status)) > maxStatusLength {
		status = sys.TruncateCenter(status, maxStatusLength)
	}
	p.mu.Lock()
	p.pending[channelID] = status
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *StatusPublisher) Clear(channelID snowflake.ID) {
	p.Set(channelID, "")
}

// Run sends queued updates until ctx is done.
func (p *StatusPublisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.debounce):
		}
		p.flushPending(ctx)
	}
}

func (p *StatusPublisher) flushPending(ctx context.Context) {
	p.mu.Lock()
	batch := p.pending
	p.pending = make(map[snowflake.ID]string)
	p.mu.Unlock()

	for cid, status := range batch {
		p.mu.Lock()
		cur, known := p.current[cid]
		p.mu.Unlock()
		if known && cur == status {
			continue
		}
		if err := p.limiter.Wait(ctx); err != nil {
			return
		}
		err := p.put(cid, status)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.retry):
			}
			err = p.put(cid, status)
		}
		if err != nil {
			sys.LogVoice(sys.MsgMusicVoiceStatusErr, cid, err)
			continue
		}
		p.mu.Lock()
		if status == "" {
			delete(p.current, cid)
		} else {
			p.current[cid] = status
		}
		p.mu.Unlock()
	}
}

// ClearAll synchronously clears every status set so far.
func (p *StatusPublisher) ClearAll() {
	p.mu.Lock()
	var cids []snowflake.ID
	for cid, status := range p.current {
		if status != "" {
			cids = append(cids, cid)
		}
	}
	for cid, status := range p.pending {
		if _, ok := p.current[cid]; !ok && status != "" {
			cids = append(cids, cid)
		}
	}
	p.current = make(map[snowflake.ID]string)
	p.pending = make(map[snowflake.ID]string)
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, cid := range cids {
		wg.Add(1)
		go func(id snowflake.ID) {
			defer wg.Done()
			if err := p.put(id, ""); err != nil {
				sys.LogVoice(sys.MsgMusicVoiceStatusErr, id, err)
			}
		}(cid)
	}
	wg.Wait()
}
