package proc

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/leeineian/jukebox/music"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
)

const spotifyPageSize = 100

// spotifyLink is a parsed open.spotify.com or spotify: URI.
type spotifyLink struct {
	Kind string
	ID   spotify.ID
}

var spotifyKinds = map[string]bool{
	"track":     true,
	"album":     true,
	"playlist":  true,
	"artist":    true,
	"show":      true,
	"episode":   true,
	"audiobook": true,
	"chapter":   true,
}

// parseSpotifyLink accepts https://open.spotify.com/[intl-xx/]<kind>/<id> and
// spotify:<kind>:<id>.
func parseSpotifyLink(link string) (spotifyLink, bool) {
	link = strings.TrimSpace(link)
	if rest, ok := strings.CutPrefix(link, "spotify:"); ok {
		parts := strings.Split(rest, ":")
		if len(parts) != 2 || !spotifyKinds[parts[0]] || parts[1] == "" {
			return spotifyLink{}, false
		}
		return spotifyLink{Kind: parts[0], ID: spotify.ID(parts[1])}, true
	}

	u, err := url.Parse(link)
	if err != nil || !strings.EqualFold(u.Host, "open.spotify.com") {
		return spotifyLink{}, false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) > 0 && strings.HasPrefix(parts[0], "intl-") {
		parts = parts[1:]
	}
	if len(parts) < 2 || !spotifyKinds[parts[0]] || parts[1] == "" {
		return spotifyLink{}, false
	}
	return spotifyLink{Kind: parts[0], ID: spotify.ID(parts[1])}, true
}

// trackQuery renders a track as an "Artist - Title" search query.
func trackQuery(name string, artists []spotify.SimpleArtist) string {
	if len(artists) == 0 || artists[0].Name == "" {
		return name
	}
	return artists[0].Name + " - " + name
}

// ===========================
// Expander
// ===========================

// SpotifyExpander turns Spotify share links into search queries.
type SpotifyExpander struct {
	client *spotify.Client
	limit  int
}

func NewSpotifyExpander(ctx context.Context, clientID, clientSecret string) *SpotifyExpander {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	return &SpotifyExpander{
		client: spotify.New(cfg.Client(ctx)),
		limit:  maxPlaylistItems,
	}
}

func (e *SpotifyExpander) Match(link string) bool {
	_, ok := parseSpotifyLink(link)
	return ok
}

func (e *SpotifyExpander) Expand(ctx context.Context, link string) ([]string, error) {
	l, ok := parseSpotifyLink(link)
	if !ok {
		return nil, music.ErrUnsupported
	}
	switch l.Kind {
	case "track":
		t, err := e.client.GetTrack(ctx, l.ID)
		if err != nil {
			return nil, wrapSpotify(err)
		}
		return []string{trackQuery(t.Name, t.Artists)}, nil
	case "album":
		return e.album(ctx, l.ID)
	case "playlist":
		return e.playlist(ctx, l.ID)
	case "artist":
		tracks, err := e.client.GetArtistsTopTracks(ctx, l.ID, "US")
		if err != nil {
			return nil, wrapSpotify(err)
		}
		qs := make([]string, 0, len(tracks))
		for _, t := range tracks {
			qs = append(qs, trackQuery(t.Name, t.Artists))
		}
		return qs, nil
	}
	return nil, fmt.Errorf("spotify %s: %w", l.Kind, music.ErrUnsupported)
}

func (e *SpotifyExpander) album(ctx context.Context, id spotify.ID) ([]string, error) {
	var qs []string
	for offset := 0; len(qs) < e.limit; offset += spotifyPageSize {
		page, err := e.client.GetAlbumTracks(ctx, id, spotify.Limit(spotifyPageSize), spotify.Offset(offset))
		if err != nil {
			return nil, wrapSpotify(err)
		}
		for _, t := range page.Tracks {
			qs = append(qs, trackQuery(t.Name, t.Artists))
		}
		if len(page.Tracks) < spotifyPageSize {
			break
		}
	}
	return capQueries(qs, e.limit), nil
}

func (e *SpotifyExpander) playlist(ctx context.Context, id spotify.ID) ([]string, error) {
	var qs []string
	for offset := 0; len(qs) < e.limit; offset += spotifyPageSize {
		page, err := e.client.GetPlaylistItems(ctx, id, spotify.Limit(spotifyPageSize), spotify.Offset(offset))
		if err != nil {
			return nil, wrapSpotify(err)
		}
		for _, it := range page.Items {
			if t := it.Track.Track; t != nil {
				qs = append(qs, trackQuery(t.Name, t.Artists))
			}
		}
		if len(page.Items) < spotifyPageSize {
			break
		}
	}
	return capQueries(qs, e.limit), nil
}

func capQueries(qs []string, n int) []string {
	if len(qs) > n {
		return qs[:n]
	}
	return qs
}

func wrapSpotify(err error) error {
	var se spotify.Error
	if errors.As(err, &se) && se.Status == 404 {
		return fmt.Errorf("spotify: %w", music.ErrNotFound)
	}
	return fmt.Errorf("spotify: %w", err)
}

// ===========================
// Link routing
// ===========================

// Expanders tries each expander in order.
type Expanders []music.Expander

func (x Expanders) Match(link string) bool {
	for _, e := range x {
		if e.Match(link) {
			return true
		}
	}
	return false
}

func (x Expanders) Expand(ctx context.Context, link string) ([]string, error) {
	for _, e := range x {
		if e.Match(link) {
			return e.Expand(ctx, link)
		}
	}
	return nil, music.ErrUnsupported
}

// spotifyUnavailable claims Spotify links when no credentials are set.
type spotifyUnavailable struct{}

func (spotifyUnavailable) Match(link string) bool {
	_, ok := parseSpotifyLink(link)
	return ok
}

func (spotifyUnavailable) Expand(context.Context, string) ([]string, error) {
	return nil, fmt.Errorf("spotify is not configured: %w", music.ErrUnsupported)
}
