package proc

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/leeineian/jukebox/music"
	"github.com/leeineian/jukebox/sys"
	"github.com/lrstanley/go-ytdlp"
)

// ===========================
// Constants & Variables
// ===========================

const (
	audioFormat      = "bestaudio[ext=webm]/bestaudio[ext=m4a]/bestaudio/best"
	maxPlaylistItems = 100
)

var (
	cachedJSArgs []string
	jsOnce       sync.Once

	videoIDRegex = regexp.MustCompile(`(?:\?|&)v=([^&]+)`)
	shortIDRegex = regexp.MustCompile(`youtu\.be/([^?&/]+)`)
	listRegex    = regexp.MustCompile(`(?:\?|&)list=([^&]+)`)
)

// ===========================
// Resolver
// ===========================

// Resolver resolves queries and links with yt-dlp. It also expands YouTube
// playlist links.
type Resolver struct {
	proxy string
}

func NewResolver(cfg *sys.Config) *Resolver {
	r := &Resolver{}
	if cfg != nil {
		r.proxy = cfg.YoutubeProxy
	}
	return r
}

func (r *Resolver) newYtdlp() *ytdlp.Command {
	cmd := ytdlp.New().
		Quiet().
		NoWarnings()

	if r.proxy != "" {
		cmd.Proxy(r.proxy)
	}
	return cmd
}

// Search returns up to limit YouTube results for q.
func (r *Resolver) Search(ctx context.Context, q string, limit int) ([]music.SearchResult, error) {
	if limit <= 0 {
		limit = 1
	}
	res, err := r.newYtdlp().
		FlatPlaylist().
		Print("%(url)s\t%(title)s\t%(uploader)s\t%(duration)s").
		PlaylistItems(fmt.Sprintf("1-%d", limit)).
		IgnoreConfig().
		PreferFreeFormats().
		Run(ctx, append(buildYtdlpArgs(), fmt.Sprintf("ytsearch%d:%s", limit, q))...)
	if err != nil {
		return nil, err
	}
	return parseSearchLines(res.Stdout), nil
}

// Resolve extracts a playable stream for a link, or for the top search result
// of a plain query.
func (r *Resolver) Resolve(ctx context.Context, q string) (*music.Track, error) {
	target := strings.TrimSpace(q)
	if target == "" {
		return nil, music.ErrNotFound
	}
	if isURL(target) {
		target = strings.Replace(target, "music.youtube.com", "www.youtube.com", 1)
	} else {
		target = "ytsearch1:" + target
	}

	args := append(buildYtdlpArgs(), "-f", audioFormat, "--skip-download", target)
	res, err := r.newYtdlp().
		Print("%(url)s\t%(title)s\t%(uploader)s\t%(duration)s\t%(webpage_url)s").
		IgnoreConfig().
		Run(ctx, args...)
	if err != nil {
		stderr := ""
		if res != nil {
			stderr = strings.TrimSpace(res.Stderr)
		}
		sys.LogVoice(sys.MsgVoiceResolveFail, q, err)
		if strings.Contains(strings.ToLower(stderr), "drm") {
			return nil, fmt.Errorf("DRM protected: %w", music.ErrUnsupported)
		}
		return nil, err
	}

	t, ok := parseTrackLine(res.Stdout)
	if !ok {
		return nil, music.ErrNotFound
	}
	return t, nil
}

// ===========================
// Playlist expansion
// ===========================

// Match reports whether link is a YouTube playlist.
func (r *Resolver) Match(link string) bool {
	return isYouTubeURL(link) && listRegex.MatchString(link)
}

// Expand lists the entries of a YouTube playlist as watch links.
func (r *Resolver) Expand(ctx context.Context, link string) ([]string, error) {
	res, err := r.newYtdlp().
		FlatPlaylist().
		Print("%(url)s\t%(title)s\t%(uploader)s\t%(id)s").
		PlaylistItems(fmt.Sprintf("1-%d", maxPlaylistItems)).
		IgnoreConfig().
		Run(ctx, append(buildYtdlpArgs(), link, "--yes-playlist")...)
	if err != nil {
		if res != nil && res.Stderr != "" {
			return nil, fmt.Errorf("yt-dlp playlist failed: %w, stderr: %s", err, strings.TrimSpace(res.Stderr))
		}
		return nil, err
	}
	return parsePlaylistLines(res.Stdout), nil
}

// ===========================
// Parsing
// ===========================

func parseDurationField(s string) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s) + "s")
	if err != nil || d < 0 {
		return 0
	}
	return d.Round(time.Second)
}

func field(s string) string {
	s = strings.TrimSpace(s)
	if s == "NA" {
		return ""
	}
	return s
}

func parseSearchLines(out string) []music.SearchResult {
	var rs []music.SearchResult
	for _, l := range strings.Split(strings.TrimSpace(out), "\n") {
		ps := strings.Split(l, "\t")
		if len(ps) < 4 || field(ps[0]) == "" || field(ps[1]) == "" {
			continue
		}
		rs = append(rs, music.SearchResult{
			URL:      field(ps[0]),
			Title:    field(ps[1]),
			Uploader: field(ps[2]),
			Duration: parseDurationField(ps[3]),
		})
	}
	return rs
}

func parseTrackLine(out string) (*music.Track, bool) {
	for _, l := range strings.Split(strings.TrimSpace(out), "\n") {
		ps := strings.Split(l, "\t")
		if len(ps) < 5 || field(ps[0]) == "" {
			continue
		}
		t := &music.Track{
			Stream:   field(ps[0]),
			Title:    field(ps[1]),
			Uploader: field(ps[2]),
			Duration: parseDurationField(ps[3]),
			URL:      field(ps[4]),
		}
		if t.Title == "" {
			t.Title = t.URL
		}
		return t, true
	}
	return nil, false
}

func parsePlaylistLines(out string) []string {
	var qs []string
	for _, l := range strings.Split(strings.TrimSpace(out), "\n") {
		ps := strings.Split(l, "\t")
		if len(ps) < 4 {
			continue
		}
		if id := field(ps[3]); id != "" {
			qs = append(qs, "https://www.youtube.com/watch?v="+id)
		} else if u := field(ps[0]); u != "" {
			qs = append(qs, u)
		}
	}
	return qs
}

// ===========================
// Helpers
// ===========================

// buildYtdlpArgs returns common args for yt-dlp commands
func buildYtdlpArgs() []string {
	jsOnce.Do(func() {
		for _, rt := range []string{"node", "deno", "quickjs"} {
			if path, err := exec.LookPath(rt); err == nil {
				cachedJSArgs = append(cachedJSArgs, "--js-runtimes", rt+":"+path)
				sys.LogVoice(sys.MsgVoiceJSRuntime, rt)
				return
			}
		}
		sys.LogVoice(sys.MsgVoiceNoJSRuntime)
	})

	args := append([]string(nil), cachedJSArgs...)
	args = append(args,
		"--no-playlist",
		"--no-check-certificates",
		"--extractor-args", "youtube:player_client=android,web",
		"--socket-timeout", "30",
		"--retries", "20",
	)
	return args
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func isYouTubeURL(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(s, "youtube.com/") || strings.Contains(s, "youtu.be/")
}

// extractVideoID returns the YouTube video ID in u, or "".
func extractVideoID(u string) string {
	if m := videoIDRegex.FindStringSubmatch(u); m != nil {
		return m[1]
	}
	if m := shortIDRegex.FindStringSubmatch(u); m != nil {
		return m[1]
	}
	return ""
}
