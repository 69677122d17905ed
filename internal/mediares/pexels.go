package mediares

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const pexelsBaseURL = "https://api.pexels.com/videos"

// Searcher finds a direct video file URL for a search query. Implementations
// return an error when nothing suitable matched.
type Searcher interface {
	SearchVideo(ctx context.Context, query string) (string, error)
}

// PexelsClient searches the Pexels stock video API for portrait footage.
type PexelsClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewPexelsClient(apiKey string, httpClient *http.Client) *PexelsClient {
	return &PexelsClient{
		apiKey:     apiKey,
		baseURL:    pexelsBaseURL,
		httpClient: httpClient,
	}
}

type pexelsVideoFile struct {
	Quality  string `json:"quality"`
	FileType string `json:"file_type"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Link     string `json:"link"`
}

type pexelsSearchResponse struct {
	Videos []struct {
		VideoFiles []pexelsVideoFile `json:"video_files"`
	} `json:"videos"`
}

// SearchVideo returns the best portrait video file for the query: an HD file
// of at least 1080 lines when available, otherwise the first mp4.
func (c *PexelsClient) SearchVideo(ctx context.Context, query string) (string, error) {
	endpoint := fmt.Sprintf("%s/search?query=%s&orientation=portrait&per_page=5",
		c.baseURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("pexels search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("pexels search returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed pexelsSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode pexels response: %w", err)
	}

	for _, video := range parsed.Videos {
		if link := bestVideoFile(video.VideoFiles); link != "" {
			return link, nil
		}
	}
	return "", fmt.Errorf("no portrait video found for %q", query)
}

func bestVideoFile(files []pexelsVideoFile) string {
	var firstMP4 string
	for _, f := range files {
		isMP4 := f.FileType == "video/mp4" || strings.HasSuffix(f.Link, ".mp4")
		if !isMP4 {
			continue
		}
		if f.Quality == "hd" && (f.Height >= 1080 || f.Width >= 1080) {
			return f.Link
		}
		if firstMP4 == "" {
			firstMP4 = f.Link
		}
	}
	return firstMP4
}
