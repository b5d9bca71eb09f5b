package sys

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// --- Globals & Styles ---

var (
	// Level colors
	infoColor  = color.New()
	warnColor  = color.New(color.FgYellow)
	errorColor = color.New(color.FgRed)
	fatalColor = color.New(color.FgRed, color.Bold)

	// Component colors
	databaseColor = color.New()
	musicColor    = color.New(color.FgMagenta)
	voiceColor    = color.New(color.FgMagenta)
	metricsColor  = color.New(color.FgBlue)

	// Global state
	DefaultTimeFormat = "15:04:05"
	IsSilent          = false
	LogToFile         = false
	Logger            *slog.Logger

	// Internal state
	logFile *os.File
	logMu   sync.Mutex
)

// --- Initialization ---

func init() {
	InitLogger(false, false)
}

// InitLogger initializes the global structured logger
func InitLogger(silent bool, saveToFile bool) {
	logMu.Lock()
	defer logMu.Unlock()

	IsSilent = silent
	LogToFile = saveToFile
	level := slog.LevelInfo
	if strings.ToLower(os.Getenv("DEBUG")) == "true" {
		level = slog.LevelDebug
	}

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	var writer io.Writer = os.Stdout
	var err error

	if LogToFile {
		exePath, exeErr := os.Executable()
		logName := GetProjectName() + ".log"
		if exeErr == nil {
			logName = filepath.Base(exePath) + ".log"
		}

		logFile, err = os.OpenFile(logName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open %s: %v\n", logName, err)
		} else {
			writer = io.MultiWriter(os.Stdout, NewStripANSIWriter(logFile))
		}
	}

	color.NoColor = false

	handler := NewBotLogHandler(writer, &BotLogHandlerOptions{
		Silent: IsSilent,
		Level:  level,
	})
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// --- Public Logging API ---

func LogInfo(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...))
}

func LogWarn(format string, v ...any) {
	slog.Warn(fmt.Sprintf(format, v...))
}

func LogError(format string, v ...any) {
	slog.Error(fmt.Sprintf(format, v...))
}

func LogFatal(format string, v ...any) {
	msg := fmt.Sprintf(format, v...)
	slog.Log(context.Background(), slog.LevelError+4, msg)
	panic(msg)
}

func LogDebug(format string, v ...any) {
	slog.Debug(fmt.Sprintf(format, v...))
}

// Component Loggers

func LogDatabase(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "database"))
}

func LogMusic(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "music"))
}

func LogVoice(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "voice"))
}

func LogMetrics(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "metrics"))
}

// --- Log Handler Implementation ---

type BotLogHandlerOptions struct {
	Silent bool
	Level  slog.Leveler
}

type BotLogHandler struct {
	w     io.Writer
	opts  *BotLogHandlerOptions
	mu    *sync.Mutex
	attrs []slog.Attr
}

func NewBotLogHandler(w io.Writer, opts *BotLogHandlerOptions) *BotLogHandler {
	if opts == nil {
		opts = &BotLogHandlerOptions{Level: slog.LevelInfo}
	}
	return &BotLogHandler{
		w:    w,
		opts: opts,
		mu:   &sync.Mutex{},
	}
}

func (h *BotLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.opts.Silent {
		return false
	}
	return level >= h.opts.Level.Level()
}

func (h *BotLogHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.opts.Silent {
		return nil
	}

	timeStr := time.Now().Format(DefaultTimeFormat)
	var levelStr string
	var levelColor *color.Color

	switch {
	case r.Level >= slog.LevelError+4:
		levelStr = "FATAL"
		levelColor = fatalColor
	case r.Level >= slog.LevelError:
		levelStr = "ERROR"
		levelColor = errorColor
	case r.Level >= slog.LevelWarn:
		levelStr = "WARN"
		levelColor = warnColor
	case r.Level >= slog.LevelInfo:
		levelStr = "INFO"
		levelColor = infoColor
	default:
		levelStr = "DEBUG"
		levelColor = infoColor
	}

	component := ""
	find := func(a slog.Attr) bool {
		if a.Key == "component" {
			component = strings.ToUpper(a.Value.String())
			return false
		}
		return true
	}
	for _, a := range h.attrs {
		if !find(a) {
			break
		}
	}
	r.Attrs(find)

	fmt.Fprintf(h.w, "%s", timeStr)

	if component != "" {
		if levelStr != "INFO" {
			fmt.Fprintf(h.w, " %s", levelColor.Sprintf("[%s]", levelStr))
		}
		compColor := getComponentColor(component)
		fmt.Fprintf(h.w, " %s\n", colorizeWithResets(compColor, fmt.Sprintf("[%s] %s", component, r.Message)))
	} else {
		displayMsg := fmt.Sprintf("[%s] %s", levelStr, r.Message)
		if levelStr == "INFO" && strings.HasPrefix(r.Message, "[") {
			if idx := strings.Index(r.Message, "]"); idx > 0 && idx < 20 {
				displayMsg = r.Message
			}
		}
		fmt.Fprintf(h.w, " %s\n", colorizeWithResets(levelColor, displayMsg))
	}

	return nil
}

// WithAttrs keeps attributes so a logger bound with a component (as handed to
// disgo and the music engine) still renders its tag.
func (h *BotLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &next
}

func (h *BotLogHandler) WithGroup(name string) slog.Handler { return h }

// --- Formatting Helpers ---

func getComponentColor(name string) *color.Color {
	switch name {
	case "DATABASE":
		return databaseColor
	case "MUSIC":
		return musicColor
	case "VOICE":
		return voiceColor
	case "METRICS":
		return metricsColor
	default:
		return color.New(color.FgCyan)
	}
}

func colorizeWithResets(c *color.Color, text string) string {
	if !strings.Contains(text, "\x1b[0m") {
		return c.Sprint(text)
	}

	marker := "@@@MSG@@@"
	wrapped := c.Sprint(marker)
	idx := strings.Index(wrapped, marker)
	if idx <= 0 {
		return text
	}
	startSeq := wrapped[:idx]

	modifiedText := strings.ReplaceAll(text, "\x1b[0m", "\x1b[0m"+startSeq)
	return c.Sprint(modifiedText)
}

// GetLogPath returns the log file name, or "" when not logging to a file.
func GetLogPath() string {
	logMu.Lock()
	defer logMu.Unlock()
	if logFile == nil {
		return ""
	}
	return logFile.Name()
}

// --- ANSI Stripper ---

type StripANSIWriter struct {
	w  io.Writer
	re *regexp.Regexp
}

func NewStripANSIWriter(w io.Writer) *StripANSIWriter {
	return &StripANSIWriter{
		w:  w,
		re: regexp.MustCompile(`\x1b\[[0-9;]*m`),
	}
}

func (s *StripANSIWriter) Write(p []byte) (n int, err error) {
	clean := s.re.ReplaceAll(p, []byte(""))
	_, err = s.w.Write(clean)
	return len(p), err
}

// --- Message Constants ---

const (
	// --- Infrastructure & Lifecycle ---
	MsgConfigFailedToLoad  = "Failed to load config: %v"
	MsgConfigMissingToken  = "DISCORD_TOKEN is not set in .env file"
	MsgConfigInvalidValue  = "Invalid value for %s: %q"
	MsgDatabaseInitSuccess = "Database initialized successfully"
	MsgDatabaseTableError  = "Failed to create table: %w"
	MsgDatabasePragmaError = "Failed to set pragma %s: %w"
	MsgDaemonStarting      = "Starting..."
	MsgBotStarting         = "Starting %s..."
	MsgBotReady            = "%s is ready! (ID: %s) (PID: %d) (Took: %dms)"
	MsgBotShutdown         = "Shutting down %s..."
	MsgBotKillingOld       = "Killing running instance... (PID: %d)"
	MsgBotKillFail         = "Failed to kill old instance: %v"
	MsgBotOldTerminated    = "Old instance terminated."
	MsgBotPIDWriteFail     = "Failed to write PID file: %v"
	MsgBotRegisterFail     = "Command registration failed: %v"
	MsgBotAPIStatusError   = "discord API returned status %d"
	MsgGenericError        = "%v"

	// --- Command Loader & Registry ---
	MsgLoaderSyncCommands       = "Syncing %s commands..."
	MsgLoaderTransition         = "[TRANSITION] Switching from %s to %s mode."
	MsgLoaderCleanup            = "[CLEANUP] Removing commands from previous dev guild: %s"
	MsgLoaderDevStarting        = "[DEV] Registering commands to guild: %s"
	MsgLoaderDevRegistered      = "[DEV] Registered: %s"
	MsgLoaderDevFail            = "[DEV] Registration failed: %v"
	MsgLoaderDevGlobalClear     = "[DEV] Verifying global commands are cleared..."
	MsgLoaderDevGlobalClearFail = "[DEV] Global clear skipped (likely rate limited): %v"
	MsgLoaderProdStarting       = "[PROD] Registering commands globally..."
	MsgLoaderProdRegistered     = "[PROD] Registered: %s"
	MsgLoaderProdFail           = "[PROD] Global registration failed: %w"
	MsgLoaderScanStarting       = "[SCAN] Checking all guilds for ghost commands..."
	MsgLoaderScanCleared        = "[SCAN] Cleared ghost commands from: %s (%s)"
	MsgLoaderPanicRecovered     = "Panic recovered in handler: %v"

	// --- Music Engine ---
	MsgMusicReady          = "Engine ready (autoplay default: %t, volume: %.0f%%)"
	MsgMusicShutdown       = "Stopping %d active session(s)..."
	MsgMusicRoomEmpty      = "Room %s is empty, leaving"
	MsgMusicDisconnected   = "Disconnected externally from %s, tearing down"
	MsgMusicStatsFail      = "Failed to record play for %s: %v"
	MsgMusicPrefsLoadFail  = "Failed to load preferences for %s: %v"
	MsgMusicPrefsSaveFail  = "Failed to save preferences for %s: %v"
	MsgMusicNoticeFail     = "Failed to post notice in %s: %v"
	MsgMusicSpotifyOff     = "Spotify credentials not set, Spotify links are disabled"
	MsgMusicStarted        = "Started playing: **%s**."
	MsgMusicAutoplaying    = "Autoplaying: **%s**."
	MsgMusicSkippedNotice  = "Could not play `%s`. Skipping."
	MsgMusicFinished       = "Looks like my job here is done, leaving now."
	MsgMusicPausedNotice   = "Paused **%s**."
	MsgMusicResumedNotice  = "Resumed **%s**."
	MsgMusicNotInVoice     = "You need to be in a voice channel first!"
	MsgMusicNothing        = "Nothing is playing right now."
	MsgMusicNoPrevious     = "There is no previous song to go back to."
	MsgMusicBadPosition    = "That position is not in the queue."
	MsgMusicOutOfRange     = "That value is out of range."
	MsgMusicUnknownFilter  = "Unknown filter."
	MsgMusicNotFound       = "No results found for `%s`."
	MsgMusicUnsupported    = "That link type is not supported."
	MsgMusicExpandFail     = "Could not read that link: %v"
	MsgMusicJoinFail       = "Could not join your voice channel: %v"
	MsgMusicGenericFail    = "Something went wrong: %v"
	MsgMusicQueuedOne      = "Queued **%s** at position %d."
	MsgMusicQueuedMany     = "Queued **%d** songs starting at position %d."
	MsgMusicPlayingNow     = "Playing **%s**."
	MsgMusicPlayingMany    = "Playing **%d** songs, starting with **%s**."
	MsgMusicSkipped        = "Skipped **%s**."
	MsgMusicStopped        = "Stopped and disconnected."
	MsgMusicGoingBack      = "Going back to **%s**."
	MsgMusicCleared        = "Cleared **%d** song(s) from the queue."
	MsgMusicShuffled       = "Shuffled the queue."
	MsgMusicRemoved        = "Removed **%s** from the queue."
	MsgMusicMoved          = "Moved **%s** to position %d."
	MsgMusicSwapped        = "Swapped positions %d and %d."
	MsgMusicLoopSet        = "Loop mode set to **%s**."
	MsgMusicAutoplaySet    = "Autoplay is now **%s**."
	MsgMusicVolumeSet      = "Volume set to **%d%%**."
	MsgMusicSpeedSet       = "Speed set to **%.2fx**."
	MsgMusicFilterSet      = "Filter set to **%s**."
	MsgMusicSeeked         = "Seeked to **%s**."
	MsgMusicQueueEmpty     = "The queue is empty."
	MsgMusicQueueMore      = "...and %d more."
	MsgMusicStatsEmpty     = "Nothing has been played in this server yet."
	MsgMusicStatsHeader    = "**Most played in this server**"
	MsgMusicJukeboxHeader  = "**Jukebox Status** (%d active session(s))"
	MsgMusicJukeboxNone    = "No active sessions."
	MsgMusicVoiceStatusErr = "Failed to set voice status in %s: %v"
	MsgPresenceRotated     = "Presence set to %q (next in %s)"
	MsgPresenceFail        = "Failed to update presence: %v"

	// --- Voice Transport ---
	MsgVoiceJoinRetry     = "Join attempt %d/%d for %s failed: %v"
	MsgVoiceStreamFail    = "Stream for %s ended with error: %v"
	MsgVoiceResolveFail   = "Resolve failed for %q: %v"
	MsgVoiceJSRuntime     = "Using JavaScript runtime for yt-dlp: %s"
	MsgVoiceNoJSRuntime   = "No JavaScript runtime found, some YouTube formats may be unavailable"
	MsgVoicePrestageStart = "Starting ffmpeg pre-stage: %s"

	// --- Metrics ---
	MsgMetricsListening = "Serving metrics on %s"
	MsgMetricsServeFail = "Metrics server stopped: %v"
)
