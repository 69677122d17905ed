package mediares

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const tiktokBaseURL = "https://open.tiktokapis.com"

// SoundSource resolves a trending-audio id to a streamable play URL.
type SoundSource interface {
	PlayURL(ctx context.Context, soundID string) (string, error)
}

// TikTokClient looks up trending sounds through the TikTok open API using
// client-credentials auth. Access tokens are cached until shortly before
// expiry.
type TikTokClient struct {
	clientKey    string
	clientSecret string
	baseURL      string
	httpClient   *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewTikTokClient(clientKey, clientSecret string, httpClient *http.Client) *TikTokClient {
	return &TikTokClient{
		clientKey:    clientKey,
		clientSecret: clientSecret,
		baseURL:      tiktokBaseURL,
		httpClient:   httpClient,
	}
}

// IsTrendingSoundID reports whether a music id names a remote trending sound
// rather than a local library track: a "tiktok_" prefix or a bare numeric id.
func IsTrendingSoundID(id string) bool {
	if strings.HasPrefix(id, "tiktok_") {
		return true
	}
	if id == "" {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// PlayURL resolves the sound id to its play URL.
func (c *TikTokClient) PlayURL(ctx context.Context, soundID string) (string, error) {
	token, err := c.token(ctx)
	if err != nil {
		return "", err
	}

	id := strings.TrimPrefix(soundID, "tiktok_")
	endpoint := fmt.Sprintf("%s/v2/sound/query/?sound_id=%s", c.baseURL, url.QueryEscape(id))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("tiktok sound query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("tiktok sound query returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed struct {
		Data struct {
			PlayURL string `json:"play_url"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode tiktok response: %w", err)
	}
	if parsed.Data.PlayURL == "" {
		return "", fmt.Errorf("sound %s has no play url", soundID)
	}
	return parsed.Data.PlayURL, nil
}

func (c *TikTokClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	form := url.Values{
		"client_key":    {c.clientKey},
		"client_secret": {c.clientSecret},
		"grant_type":    {"client_credentials"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v2/oauth/token/", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("tiktok token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("tiktok token request returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode tiktok token: %w", err)
	}
	if parsed.AccessToken == "" {
		return "", fmt.Errorf("tiktok token response missing access_token")
	}

	c.accessToken = parsed.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(parsed.ExpiresIn)*time.Second - time.Minute)
	return c.accessToken, nil
}
