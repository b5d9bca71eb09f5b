package sys

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// --- Configuration & Environment ---

type Config struct {
	Token         string
	GuildID       string
	DatabasePath  string
	OwnerIDs      []string
	StreamingURL  string
	Silent        bool
	YoutubePrefix string
	YTMusicPrefix string

	// Music
	AutoplayDefault bool
	DefaultVolume   int
	EmptyRoomGrace  time.Duration
	ResolveTimeout  time.Duration
	HistoryWindow   int
	YoutubeProxy    string

	// Spotify expansion is disabled when either is empty
	SpotifyClientID     string
	SpotifyClientSecret string

	// MetricsAddr enables the /metrics listener when set.
	MetricsAddr string
}

var GlobalConfig *Config

// LoadConfig initializes the configuration from environment variables.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := configFromEnv(os.Getenv)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Silent {
		InitLogger(true, LogToFile)
	}

	GlobalConfig = cfg
	return cfg, nil
}

func configFromEnv(getenv func(string) string) (*Config, error) {
	dbPath := getenv("DATABASE_PATH")
	if dbPath == "" {
		folder := "."
		if info, err := os.Stat("data"); err == nil && info.IsDir() {
			folder = "./data"
		}
		dbPath = filepath.Join(folder, GetProjectName()+".db")
	}

	silent, _ := strconv.ParseBool(getenv("SILENT"))
	streamingURL := getenv("STREAMING_URL")
	if streamingURL == "" {
		streamingURL = "https://www.twitch.tv/videos/1110069047"
	}

	ytPrefix := getenv("VOICE_YT_PREFIX")
	if ytPrefix == "" {
		ytPrefix = "[YT]"
	}

	ytmPrefix := getenv("VOICE_YTM_PREFIX")
	if ytmPrefix == "" {
		ytmPrefix = "[YTM]"
	}

	ownerIDsStr := getenv("OWNER_IDS")
	var ownerIDs []string
	if ownerIDsStr != "" {
		ownerIDs = strings.Split(ownerIDsStr, ",")
		for i := range ownerIDs {
			ownerIDs[i] = strings.TrimSpace(ownerIDs[i])
		}
	}

	cfg := &Config{
		Token:         getenv("DISCORD_TOKEN"),
		GuildID:       getenv("GUILD_ID"),
		DatabasePath:  dbPath,
		OwnerIDs:      ownerIDs,
		StreamingURL:  streamingURL,
		Silent:        silent,
		YoutubePrefix: ytPrefix,
		YTMusicPrefix: ytmPrefix,

		AutoplayDefault: true,
		DefaultVolume:   100,
		EmptyRoomGrace:  3 * time.Second,
		ResolveTimeout:  45 * time.Second,
		HistoryWindow:   10,
		YoutubeProxy:    getenv("YOUTUBE_PROXY"),

		SpotifyClientID:     getenv("SPOTIFY_CLIENT_ID"),
		SpotifyClientSecret: getenv("SPOTIFY_CLIENT_SECRET"),
		MetricsAddr:         getenv("METRICS_ADDR"),
	}

	if v := getenv("MUSIC_AUTOPLAY_DEFAULT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf(MsgConfigInvalidValue, "MUSIC_AUTOPLAY_DEFAULT", v)
		}
		cfg.AutoplayDefault = b
	}
	if v := getenv("MUSIC_DEFAULT_VOLUME"); v != "" {
		n, err := strconv.Atoi(strings.TrimSuffix(v, "%"))
		if err != nil {
			return nil, fmt.Errorf(MsgConfigInvalidValue, "MUSIC_DEFAULT_VOLUME", v)
		}
		cfg.DefaultVolume = n
	}
	if v := getenv("MUSIC_HISTORY_WINDOW"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf(MsgConfigInvalidValue, "MUSIC_HISTORY_WINDOW", v)
		}
		cfg.HistoryWindow = n
	}
	for name, dst := range map[string]*time.Duration{
		"MUSIC_EMPTY_ROOM_GRACE": &cfg.EmptyRoomGrace,
		"MUSIC_RESOLVE_TIMEOUT":  &cfg.ResolveTimeout,
	} {
		v := getenv(name)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf(MsgConfigInvalidValue, name, v)
		}
		*dst = d
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf(MsgConfigMissingToken)
	}
	if c.GuildID != "" && (len(c.GuildID) < 17 || len(c.GuildID) > 20) {
		return fmt.Errorf("invalid GUILD_ID: must be a valid Snowflake")
	}
	if c.DefaultVolume < 0 || c.DefaultVolume > 200 {
		return fmt.Errorf("invalid MUSIC_DEFAULT_VOLUME: must be between 0 and 200")
	}
	if c.HistoryWindow < 1 {
		return fmt.Errorf("invalid MUSIC_HISTORY_WINDOW: must be at least 1")
	}
	if c.EmptyRoomGrace < 0 || c.ResolveTimeout <= 0 {
		return fmt.Errorf("invalid music timeouts: grace must not be negative and resolve timeout must be positive")
	}
	return nil
}

// SpotifyEnabled reports whether both Spotify credentials are present.
func (c *Config) SpotifyEnabled() bool {
	return c.SpotifyClientID != "" && c.SpotifyClientSecret != ""
}

func GetProjectName() string {
	exePath, err := os.Executable()
	projectName := "bot"
	if err == nil {
		projectName = filepath.Base(exePath)
		projectName = strings.TrimSuffix(projectName, ".exe")

		if projectName == "main" || strings.HasPrefix(projectName, "go_build_") {
			if modData, err := os.ReadFile("go.mod"); err == nil {
				lines := strings.Split(string(modData), "\n")
				if len(lines) > 0 && strings.HasPrefix(lines[0], "module ") {
					parts := strings.Split(lines[0], "/")
					projectName = strings.TrimSpace(parts[len(parts)-1])
				}
			}
		}
	}
	return projectName
}
