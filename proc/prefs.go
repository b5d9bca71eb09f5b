package proc

import (
	"context"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jukebox/music"
	"github.com/leeineian/jukebox/sys"
)

// GuildPrefs remembers per-guild settings in sqlite, with a read-through
// cache.
type GuildPrefs struct {
	mu    sync.RWMutex
	cache map[snowflake.ID]music.Prefs

	load func(ctx context.Context, id snowflake.ID) (*sys.GuildMusic, error)
	save func(ctx context.Context, g *sys.GuildMusic) error
}

func NewGuildPrefs() *GuildPrefs {
	return &GuildPrefs{
		cache: make(map[snowflake.ID]music.Prefs),
		load:  sys.GetGuildMusic,
		save:  sys.SetGuildMusic,
	}
}

func (g *GuildPrefs) LoadPrefs(room snowflake.ID) (music.Prefs, bool) {
	g.mu.RLock()
	p, ok := g.cache[room]
	g.mu.RUnlock()
	if ok {
		return p, true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	row, err := g.load(ctx, room)
	if err != nil {
		sys.LogDatabase(sys.MsgMusicPrefsLoadFail, room, err)
		return music.Prefs{}, false
	}
	if row == nil {
		return music.Prefs{}, false
	}
	p = prefsFromRow(row)
	g.mu.Lock()
	g.cache[room] = p
	g.mu.Unlock()
	return p, true
}

func (g *GuildPrefs) SavePrefs(room snowflake.ID, p music.Prefs) {
	g.mu.Lock()
	g.cache[room] = p
	g.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := g.save(ctx, rowFromPrefs(room, p)); err != nil {
		sys.LogDatabase(sys.MsgMusicPrefsSaveFail, room, err)
	}
}

func prefsFromRow(row *sys.GuildMusic) music.Prefs {
	loop, err := music.ParseLoopMode(row.LoopMode)
	if err != nil {
		loop = music.LoopOff
	}
	vol := float64(row.Volume) / 100
	if vol < 0 || vol > 2 {
		vol = 1
	}
	return music.Prefs{Volume: vol, Autoplay: row.Autoplay, Loop: loop}
}

func rowFromPrefs(room snowflake.ID, p music.Prefs) *sys.GuildMusic {
	return &sys.GuildMusic{
		GuildID:  room,
		Volume:   int(volumePercent(p.Volume)),
		Autoplay: p.Autoplay,
		LoopMode: p.Loop.String(),
	}
}
