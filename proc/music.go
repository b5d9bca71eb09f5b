package proc

import (
	"context"
	"log/slog"
	"sync"

	"github.com/asticode/go-astiav"
	"github.com/disgoorg/disgo/bot"
	"github.com/leeineian/jukebox/music"
	"github.com/leeineian/jukebox/sys"
)

// Jukebox bundles the engine with the adapters the command surface talks to.
type Jukebox struct {
	Engine  *music.Engine
	Voice   *VoiceSystem
	Suggest *Suggester
}

var (
	jukebox   *Jukebox
	jukeboxMu sync.RWMutex
	musicOnce sync.Once
)

// GetMusic returns the running jukebox, or nil before the client is ready.
func GetMusic() *Jukebox {
	jukeboxMu.RLock()
	defer jukeboxMu.RUnlock()
	return jukebox
}

func init() {
	astiav.SetLogLevel(astiav.LogLevelFatal)

	sys.OnClientReady(func(ctx context.Context, client *bot.Client) {
		musicOnce.Do(func() { startMusic(ctx, client) })
	})
}

func engineDefaults(cfg *sys.Config) music.Settings {
	d := music.DefaultSettings()
	if cfg != nil {
		d.Autoplay = cfg.AutoplayDefault
		d.Volume = float64(cfg.DefaultVolume) / 100
	}
	return d
}

func startMusic(ctx context.Context, client *bot.Client) {
	cfg := sys.GlobalConfig
	if cfg == nil {
		cfg = &sys.Config{AutoplayDefault: true, DefaultVolume: 100}
	}

	resolver := NewResolver(cfg)
	expanders := Expanders{resolver}
	if cfg.SpotifyEnabled() {
		expanders = append(expanders, NewSpotifyExpander(ctx, cfg.SpotifyClientID, cfg.SpotifyClientSecret))
	} else {
		sys.LogMusic(sys.MsgMusicSpotifyOff)
		expanders = append(expanders, spotifyUnavailable{})
	}

	status := NewStatusPublisher(client)
	vs := NewVoiceSystem(client, status, cfg.YoutubeProxy)
	notifier := NewChannelNotifier(client)
	suggester := NewSuggester()

	defaults := engineDefaults(cfg)
	engine := music.NewEngine(music.Options{
		Resolver:       resolver,
		Expander:       expanders,
		Sink:           vs,
		Rooms:          vs,
		Notifier:       notifier,
		Advisor:        music.NewAdvisor(resolver),
		Preferences:    NewGuildPrefs(),
		Defaults:       defaults,
		HistoryWindow:  cfg.HistoryWindow,
		ResolveTimeout: cfg.ResolveTimeout,
		Logger:         slog.Default().With(slog.String("component", "music")),
	})

	presence := newPresenceRotator(client, engine)
	watcher := NewRoomWatcher(client, engine, vs, cfg.EmptyRoomGrace)
	sys.RegisterVoiceStateUpdateHandler(watcher.OnVoiceStateUpdate)

	sys.RegisterDaemon(sys.LogMusic, func(ctx context.Context) (bool, func(), func()) {
		run := func() {
			sys.SafeGo(func() { status.Run(ctx) })
			sys.SafeGo(func() { suggester.startCacheGC(ctx) })
			sys.SafeGo(func() { presence.Run(ctx) })
			notifier.Run(ctx)
		}
		shutdown := func() {
			sys.LogMusic(sys.MsgMusicShutdown, len(engine.Sessions()))
			engine.Shutdown()
			vs.Shutdown(context.Background())
		}
		return true, run, shutdown
	})
	registerMetricsDaemon(cfg.MetricsAddr, newMetricsRegistry())

	jukeboxMu.Lock()
	jukebox = &Jukebox{Engine: engine, Voice: vs, Suggest: suggester}
	jukeboxMu.Unlock()

	sys.LogMusic(sys.MsgMusicReady, defaults.Autoplay, defaults.Volume*100)
}
