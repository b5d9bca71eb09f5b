package proc

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/leeineian/jukebox/sys"
	"github.com/ppalone/ytsearch"
	"github.com/raitonoberu/ytmusic"
)

// Suggestion is one autocomplete entry.
type Suggestion struct {
	Name string
	URL  string
}

type cachedItem struct {
	results   []Suggestion
	expiresAt time.Time
}

// Suggester answers autocomplete queries from YouTube Music and YouTube.
type Suggester struct {
	mu    sync.RWMutex
	items map[string]cachedItem
	ttl   time.Duration

	ytm func(ctx context.Context, q string) []Suggestion
	yt  func(ctx context.Context, q string) []Suggestion
}

func NewSuggester() *Suggester {
	return &Suggester{
		items: make(map[string]cachedItem),
		ttl:   time.Hour,
		ytm:   searchYTMusic,
		yt:    searchYouTube,
	}
}

// startCacheGC evicts expired entries until ctx is done.
func (s *Suggester) startCacheGC(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for q, item := range s.items {
				if now.After(item.expiresAt) {
					delete(s.items, q)
				}
			}
			s.mu.Unlock()
		}
	}
}

// Suggest returns at most 25 suggestions for q. A leading YouTube prefix
// ranks YouTube results first; YouTube Music ranks first otherwise.
func (s *Suggester) Suggest(q string) []Suggestion {
	s.mu.RLock()
	if item, ok := s.items[q]; ok && time.Now().Before(item.expiresAt) {
		s.mu.RUnlock()
		return item.results
	}
	s.mu.RUnlock()

	youtubeFirst, query := splitPrefix(q)
	if query == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2600*time.Millisecond)
	defer cancel()

	var resMu sync.Mutex
	var ytm, yt []Suggestion
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r := s.ytm(ctx, query)
		resMu.Lock()
		ytm = r
		resMu.Unlock()
	}()
	go func() {
		defer wg.Done()
		r := s.yt(ctx, query)
		resMu.Lock()
		yt = r
		resMu.Unlock()
	}()
	d := make(chan struct{})
	go func() {
		wg.Wait()
		close(d)
	}()
	select {
	case <-d:
	case <-time.After(2300 * time.Millisecond):
	}

	resMu.Lock()
	first, second := ytm, yt
	if youtubeFirst {
		first, second = yt, ytm
	}
	fin := mergeSuggestions(first, second, 25)
	resMu.Unlock()

	if len(fin) > 0 {
		s.mu.Lock()
		s.items[q] = cachedItem{results: fin, expiresAt: time.Now().Add(s.ttl)}
		s.mu.Unlock()
	}
	return fin
}

// mergeSuggestions concatenates a and b, dropping repeated videos.
func mergeSuggestions(a, b []Suggestion, limit int) []Suggestion {
	seen := make(map[string]bool)
	var fin []Suggestion
	for _, list := range [][]Suggestion{a, b} {
		for _, sg := range list {
			key := extractVideoID(sg.URL)
			if key == "" {
				key = sg.URL
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			fin = append(fin, sg)
			if len(fin) == limit {
				return fin
			}
		}
	}
	return fin
}

// splitPrefix strips a leading source prefix from q.
func splitPrefix(q string) (youtubeFirst bool, query string) {
	ytp, ytmp := youtubePrefix(), ytMusicPrefix()
	upper := strings.ToUpper(q)
	switch {
	case strings.HasPrefix(upper, strings.ToUpper(ytp)):
		return true, strings.TrimSpace(q[len(ytp):])
	case strings.HasPrefix(upper, strings.ToUpper(ytmp)):
		return false, strings.TrimSpace(q[len(ytmp):])
	}
	return false, strings.TrimSpace(q)
}

func youtubePrefix() string {
	if sys.GlobalConfig != nil && sys.GlobalConfig.YoutubePrefix != "" {
		return sys.GlobalConfig.YoutubePrefix
	}
	return "[YT]"
}

func ytMusicPrefix() string {
	if sys.GlobalConfig != nil && sys.GlobalConfig.YTMusicPrefix != "" {
		return sys.GlobalConfig.YTMusicPrefix
	}
	return "[YTM]"
}

func searchYTMusic(_ context.Context, q string) []Suggestion {
	r, err := ytmusic.TrackSearch(q).Next()
	if err != nil || r == nil {
		return nil
	}
	var out []Suggestion
	for _, v := range r.Tracks {
		if v.VideoID == "" {
			continue
		}
		art := ""
		if len(v.Artists) > 0 {
			art = " - " + v.Artists[0].Name
		}
		out = append(out, Suggestion{
			Name: sys.TruncateWithPreserve(v.Title, 100, ytMusicPrefix()+" ", art),
			URL:  "https://music.youtube.com/watch?v=" + v.VideoID,
		})
	}
	return out
}

func searchYouTube(ctx context.Context, q string) []Suggestion {
	r, err := ytsearch.NewClient(nil).Search(ctx, q)
	if err != nil {
		return nil
	}
	var out []Suggestion
	for _, v := range r.Results {
		if v.VideoID == "" {
			continue
		}
		out = append(out, Suggestion{
			Name: sys.TruncateWithPreserve(v.Title, 100, youtubePrefix()+" ", ""),
			URL:  "https://www.youtube.com/watch?v=" + v.VideoID,
		})
	}
	return out
}
