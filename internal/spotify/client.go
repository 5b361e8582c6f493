// file: internal/spotify/client.go

package spotify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
)

const (
	// artworkPath locates the cover of the current track in the response
	artworkPath = "item.album.images.0.url"

	// maxResponseBytes caps the now-playing body; error bodies are cut shorter
	maxResponseBytes  = 1 << 20
	maxErrorBodyBytes = 4 << 10

	defaultRequestTimeout = 30 * time.Second
)

// Snapshot is what one now-playing query yields. Only ArtworkURL is used to
// detect changes; it is empty when nothing usable is playing.
type Snapshot struct {
	ArtworkURL string
	Playing    bool
	Track      string
}

// Client queries the currently-playing endpoint and downloads artwork
type Client struct {
	nowPlayingURL string
	httpClient    *http.Client
}

// NewClient creates a client. A nil httpClient gets a default with a bounded
// request timeout.
func NewClient(nowPlayingURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &Client{
		nowPlayingURL: nowPlayingURL,
		httpClient:    httpClient,
	}
}

// CurrentlyPlaying fetches the current playback state with the given bearer
// token. A non-success status returns *PlayingError. Missing item, album or
// images, and 204 No Content when nothing plays, yield an empty ArtworkURL.
func (c *Client) CurrentlyPlaying(ctx context.Context, accessToken string) (*Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.nowPlayingURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &PlayingError{URL: c.nowPlayingURL, Err: err}
	}
	defer resp.Body.Close()

	if err := checkStatus(c.nowPlayingURL, resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &PlayingError{URL: c.nowPlayingURL, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(body)) == 0 {
		return &Snapshot{}, nil
	}

	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, &PlayingError{URL: c.nowPlayingURL, Err: fmt.Errorf("parse json: %w", err)}
	}

	return &Snapshot{
		ArtworkURL: lookupString(data, artworkPath),
		Playing:    lookupBool(data, "is_playing"),
		Track:      lookupString(data, "item.name"),
	}, nil
}

// FetchArtwork starts a streamed download of the image at url. The caller
// must close the returned body. Failures return *PlayingError.
func (c *Client) FetchArtwork(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &PlayingError{URL: url, Err: fmt.Errorf("create request: %w", err)}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &PlayingError{URL: url, Err: err}
	}

	if err := checkStatus(url, resp); err != nil {
		resp.Body.Close()
		return nil, err
	}

	return resp.Body, nil
}

// checkStatus turns a non-2xx response into *PlayingError carrying the body
func checkStatus(url string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	return &PlayingError{
		URL:        url,
		StatusCode: resp.StatusCode,
		Body:       string(body),
		Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
	}
}
