package music

import (
	"context"
	"strings"

	"golang.org/x/time/rate"
)

// artistSeparators mark "artist <sep> track" titles, checked in order.
var artistSeparators = []string{"-", "—", "by", "ft.", "feat."}

const autoplayWidth = 5

// Advisor proposes what to play when the queue runs dry.
type Advisor struct {
	search  Searcher
	limiter *rate.Limiter
	width   int
}

func NewAdvisor(search Searcher) *Advisor {
	return &Advisor{
		search:  search,
		limiter: rate.NewLimiter(rate.Limit(2), 4),
		width:   autoplayWidth,
	}
}

// Propose returns a follow-up for lastTitle that is not a near duplicate of
// anything in recent.
func (a *Advisor) Propose(ctx context.Context, lastTitle string, recent []string) (SearchResult, bool) {
	lastTitle = strings.TrimSpace(lastTitle)
	if a == nil || a.search == nil || lastTitle == "" {
		return SearchResult{}, false
	}

	seed := lastTitle
	if artist := ArtistOf(lastTitle); artist != "" {
		seed = artist
	}
	stages := []string{
		seed + " official audio",
		"related to " + lastTitle,
	}

	for _, q := range stages {
		if err := a.limiter.Wait(ctx); err != nil {
			return SearchResult{}, false
		}
		results, err := a.search.Search(ctx, q, a.width)
		if err != nil {
			continue
		}
		if len(results) > a.width {
			results = results[:a.width]
		}
		for _, r := range results {
			if IsNovel(r.Title, recent) {
				return r, true
			}
		}
	}
	return SearchResult{}, false
}

// ArtistOf returns the text before the first separator token in title, or ""
// when none is present.
func ArtistOf(title string) string {
	for _, sep := range artistSeparators {
		if i := indexFold(title, " "+sep+" "); i > 0 {
			return strings.TrimSpace(title[:i])
		}
	}
	return ""
}

// IsNovel rejects candidates whose lowercased title contains, or is contained
// in, any recent title.
func IsNovel(candidate string, recent []string) bool {
	c := strings.ToLower(strings.TrimSpace(candidate))
	if c == "" {
		return false
	}
	for _, h := range recent {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		if strings.Contains(h, c) || strings.Contains(c, h) {
			return false
		}
	}
	return true
}

func indexFold(s, sub string) int {
	n := len(sub)
	for i := 0; i+n <= len(s); i++ {
		if strings.EqualFold(s[i:i+n], sub) {
			return i
		}
	}
	return -1
}
