package resolver

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
)

// SpotifyClient translates Spotify track links into text queries the search
// provider understands. Album and playlist links are not expanded.
type SpotifyClient struct {
	raw *spotify.Client
}

func NewSpotifyClient(clientID, clientSecret string) (*SpotifyClient, error) {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	httpClient := cfg.Client(context.Background())
	cl := spotify.New(httpClient, spotify.WithRetry(true))
	return &SpotifyClient{raw: cl}, nil
}

func IsSpotifyURL(raw string) bool {
	if strings.HasPrefix(raw, "spotify:") {
		return true
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Host == "open.spotify.com" || u.Host == "www.open.spotify.com"
}

func parseSpotifyID(raw string) (typ string, id spotify.ID, err error) {
	if strings.HasPrefix(raw, "spotify:") {
		parts := strings.Split(raw, ":")
		if len(parts) == 3 {
			return parts[1], spotify.ID(parts[2]), nil
		}
		return "", "", fmt.Errorf("invalid spotify URI")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 {
		return "", "", fmt.Errorf("invalid spotify URL path")
	}
	switch parts[0] {
	case "album", "playlist", "track", "artist":
		return parts[0], spotify.ID(parts[1]), nil
	}
	return "", "", fmt.Errorf("unsupported spotify type")
}

// TrackQuery resolves a Spotify track link to an "artist title" search query.
func (c *SpotifyClient) TrackQuery(ctx context.Context, raw string) (string, error) {
	typ, id, err := parseSpotifyID(raw)
	if err != nil {
		return "", err
	}
	if typ != "track" {
		return "", fmt.Errorf("only spotify track links are supported, got %s", typ)
	}
	t, err := c.raw.GetTrack(ctx, id)
	if err != nil {
		return "", err
	}
	artist := ""
	if len(t.Artists) > 0 {
		artist = t.Artists[0].Name
	}
	return strings.TrimSpace(artist + " " + t.Name), nil
}
