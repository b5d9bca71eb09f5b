package sys

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/mattn/go-sqlite3"
)

// --- Database Connection & Lifecycle ---

var DB *sql.DB

func InitDatabase(ctx context.Context, dataSourceName string) error {
	// Explicitly reference sqlite3 driver to avoid blank identifier
	// The driver registers itself via its init() function
	_ = sqlite3.SQLiteDriver{}

	var err error
	DB, err = sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return err
	}

	DB.SetMaxOpenConns(5)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA cache_size=-2000;",
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, p := range pragmas {
		if _, err := DB.ExecContext(initCtx, p); err != nil {
			return fmt.Errorf(MsgDatabasePragmaError, p, err)
		}
	}

	tx, err := DB.BeginTx(initCtx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tableQueries := []string{
		`CREATE TABLE IF NOT EXISTS bot_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS guild_music (
			guild_id TEXT PRIMARY KEY,
			volume INTEGER NOT NULL DEFAULT 100,
			autoplay INTEGER NOT NULL DEFAULT 1,
			loop_mode TEXT NOT NULL DEFAULT 'off',
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS track_plays (
			guild_id TEXT NOT NULL,
			title TEXT NOT NULL,
			url TEXT NOT NULL DEFAULT '',
			plays INTEGER NOT NULL DEFAULT 0,
			last_played DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (guild_id, title)
		)`,
	}

	for _, q := range tableQueries {
		if _, err := tx.ExecContext(initCtx, q); err != nil {
			return fmt.Errorf(MsgDatabaseTableError, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	migrations := []string{
		"ALTER TABLE track_plays ADD COLUMN autoplayed INTEGER DEFAULT 0",
	}

	for _, m := range migrations {
		if _, err := DB.ExecContext(initCtx, m); err != nil {
			if !strings.Contains(err.Error(), "duplicate column") {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
		}
	}

	LogDatabase(MsgDatabaseInitSuccess)
	return nil
}

func CloseDatabase() {
	if DB != nil {
		DB.Close()
	}
}

// --- Infrastructure & Bot Persistence ---

// BotConfig helpers are used by the loader for mode tracking and state.
func GetBotConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := DB.QueryRowContext(ctx, "SELECT value FROM bot_config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func SetBotConfig(ctx context.Context, key, value string) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO bot_config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

// --- Music Preferences ---

type GuildMusic struct {
	GuildID  snowflake.ID
	Volume   int
	Autoplay bool
	LoopMode string
}

// GetGuildMusic returns nil when the guild has no saved preferences.
func GetGuildMusic(ctx context.Context, guildID snowflake.ID) (*GuildMusic, error) {
	g := &GuildMusic{GuildID: guildID}
	err := DB.QueryRowContext(ctx, `
		SELECT volume, autoplay, loop_mode FROM guild_music WHERE guild_id = ?
	`, guildID.String()).Scan(&g.Volume, &g.Autoplay, &g.LoopMode)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}

func SetGuildMusic(ctx context.Context, g *GuildMusic) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO guild_music (guild_id, volume, autoplay, loop_mode) VALUES (?, ?, ?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET
			volume = excluded.volume,
			autoplay = excluded.autoplay,
			loop_mode = excluded.loop_mode,
			updated_at = CURRENT_TIMESTAMP
	`, g.GuildID.String(), g.Volume, g.Autoplay, g.LoopMode)
	return err
}

// --- Play Statistics ---

type TrackPlay struct {
	Title      string
	URL        string
	Plays      int
	LastPlayed time.Time
}

func RecordTrackPlay(ctx context.Context, guildID snowflake.ID, title, url string, autoplayed bool) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO track_plays (guild_id, title, url, plays, autoplayed) VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(guild_id, title) DO UPDATE SET
			plays = plays + 1,
			url = excluded.url,
			autoplayed = autoplayed + excluded.autoplayed,
			last_played = CURRENT_TIMESTAMP
	`, guildID.String(), title, url, boolToInt(autoplayed))
	return err
}

func GetTopTracks(ctx context.Context, guildID snowflake.ID, limit int) ([]TrackPlay, error) {
	rows, err := DB.QueryContext(ctx, `
		SELECT title, url, plays, last_played FROM track_plays
		WHERE guild_id = ? ORDER BY plays DESC, last_played DESC LIMIT ?
	`, guildID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TrackPlay
	for rows.Next() {
		var t TrackPlay
		if err := rows.Scan(&t.Title, &t.URL, &t.Plays, &t.LastPlayed); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func GetTotalPlays(ctx context.Context, guildID snowflake.ID) (int, error) {
	var n sql.NullInt64
	err := DB.QueryRowContext(ctx, "SELECT SUM(plays) FROM track_plays WHERE guild_id = ?", guildID.String()).Scan(&n)
	return int(n.Int64), err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
