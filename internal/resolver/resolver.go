package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	ytdlp "github.com/lrstanley/go-ytdlp"
)

const searchLimit = 10

// Resolved is the playable form of a submitted URL. For direct URLs it echoes
// the input with enriched metadata; for Spotify links the URL is swapped for
// the best matching YouTube result.
type Resolved struct {
	Title     string
	URL       string
	Thumbnail string
}

type SearchResult struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Thumbnail string `json:"thumbnail"`
}

type trackInfo struct {
	ID        string
	Title     string
	Thumbnail string
	Entries   []trackInfo
}

// Resolver wraps the metadata provider. Lookups are best effort: any failure
// degrades to a fallback value instead of an error, and callers never block
// past the configured timeout.
type Resolver struct {
	timeout time.Duration
	spotify *SpotifyClient

	// fetch is swappable so tests can run without the yt-dlp binary.
	fetch func(ctx context.Context, target string) (*trackInfo, error)
}

func NewResolver(timeout time.Duration, spotify *SpotifyClient) *Resolver {
	return &Resolver{
		timeout: timeout,
		spotify: spotify,
		fetch:   fetchInfo,
	}
}

// Resolve turns a submitted URL into queue-ready metadata. It never fails:
// provider errors, timeouts, and junk output all fall back to the bare URL.
func (r *Resolver) Resolve(ctx context.Context, url string) Resolved {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if r.spotify != nil && IsSpotifyURL(url) {
		if res, ok := r.resolveSpotify(ctx, url); ok {
			return res
		}
		return Resolved{Title: url, URL: url}
	}

	info, err := r.fetch(ctx, url)
	if err != nil {
		slog.Warn("metadata lookup failed, using fallback", "url", url, "err", err)
		return Resolved{Title: url, URL: url}
	}
	title := info.Title
	if title == "" {
		title = url
	}
	return Resolved{Title: title, URL: url, Thumbnail: info.Thumbnail}
}

func (r *Resolver) resolveSpotify(ctx context.Context, url string) (Resolved, bool) {
	query, err := r.spotify.TrackQuery(ctx, url)
	if err != nil {
		slog.Warn("spotify lookup failed", "url", url, "err", err)
		return Resolved{}, false
	}
	results := r.search(ctx, query, 1)
	if len(results) == 0 {
		return Resolved{}, false
	}
	return Resolved{Title: results[0].Title, URL: results[0].URL, Thumbnail: results[0].Thumbnail}, true
}

// Search runs a text query against the provider, capped at ten results.
// Malformed records are skipped; errors yield an empty set.
func (r *Resolver) Search(ctx context.Context, query string) []SearchResult {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.search(ctx, query, searchLimit)
}

func (r *Resolver) search(ctx context.Context, query string, limit int) []SearchResult {
	info, err := r.fetch(ctx, fmt.Sprintf("ytsearch%d:%s", limit, query))
	if err != nil {
		slog.Warn("search failed", "query", query, "err", err)
		return nil
	}
	var out []SearchResult
	for _, e := range info.Entries {
		if e.ID == "" || e.Title == "" {
			continue
		}
		out = append(out, SearchResult{
			Title:     e.Title,
			URL:       "https://www.youtube.com/watch?v=" + e.ID,
			Thumbnail: fmt.Sprintf("https://i.ytimg.com/vi/%s/mqdefault.jpg", e.ID),
		})
	}
	return out
}

var installOnce sync.Once

func fetchInfo(ctx context.Context, target string) (*trackInfo, error) {
	installOnce.Do(func() {
		ytdlp.MustInstall(ctx, nil)
	})

	cmd := ytdlp.New().
		FlatPlaylist().
		NoCheckCertificates().
		DumpJSON()

	res, err := cmd.Run(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp run: %w", err)
	}

	infos, err := res.GetExtractedInfo()
	if err != nil {
		return nil, fmt.Errorf("parse yt-dlp json: %w", err)
	}
	if len(infos) == 0 || infos[0] == nil {
		return nil, fmt.Errorf("parse yt-dlp json: no info returned")
	}
	ext := infos[0]

	out := &trackInfo{
		ID:        ext.ID,
		Title:     s(ext.Title),
		Thumbnail: firstThumb(ext.Thumbnails),
	}
	for _, e := range ext.Entries {
		if e == nil {
			continue
		}
		out.Entries = append(out.Entries, trackInfo{
			ID:        e.ID,
			Title:     s(e.Title),
			Thumbnail: firstThumb(e.Thumbnails),
		})
	}
	return out, nil
}

func s(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func firstThumb(ts []*ytdlp.ExtractedThumbnail) string {
	for _, t := range ts {
		if t != nil && t.URL != "" {
			return t.URL
		}
	}
	return ""
}
