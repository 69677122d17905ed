package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	youtube "google.golang.org/api/youtube/v3"

	"github.com/storyreel/storyreel/internal/config"
	"github.com/storyreel/storyreel/pkg/log"
)

// Metadata describes the uploaded Short.
type Metadata struct {
	Title       string
	Description string
	Tags        []string
	Privacy     string
}

// YouTubeUploader publishes finished videos through the Data API v3 using a
// previously issued token file; there is no interactive consent flow here.
type YouTubeUploader struct {
	clientSecretsFile string
	tokenFile         string
}

// NewYouTubeUploader returns nil when credentials are not configured, which
// callers treat as publishing disabled.
func NewYouTubeUploader(cfg config.PublishConfig) *YouTubeUploader {
	if cfg.ClientSecretsFile == "" || cfg.TokenFile == "" {
		return nil
	}
	return &YouTubeUploader{
		clientSecretsFile: cfg.ClientSecretsFile,
		tokenFile:         cfg.TokenFile,
	}
}

// Upload publishes the video and returns its id.
func (u *YouTubeUploader) Upload(ctx context.Context, videoPath string, meta Metadata) (string, error) {
	svc, err := u.service(ctx)
	if err != nil {
		return "", err
	}

	privacy := meta.Privacy
	if privacy == "" {
		privacy = "unlisted"
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       meta.Title,
			Description: meta.Description,
			Tags:        meta.Tags,
			CategoryId:  "24",
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: privacy,
		},
	}

	f, err := os.Open(videoPath)
	if err != nil {
		return "", fmt.Errorf("open video: %w", err)
	}
	defer f.Close()

	log.Info("Uploading %s to YouTube: %q", videoPath, meta.Title)

	uploaded, err := svc.Videos.Insert([]string{"snippet", "status"}, video).
		Media(f).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("youtube upload: %w", err)
	}

	log.Info("Uploaded video id %s", uploaded.Id)
	return uploaded.Id, nil
}

func (u *YouTubeUploader) service(ctx context.Context) (*youtube.Service, error) {
	secrets, err := os.ReadFile(u.clientSecretsFile)
	if err != nil {
		return nil, fmt.Errorf("read client secrets: %w", err)
	}
	conf, err := google.ConfigFromJSON(secrets, youtube.YoutubeUploadScope)
	if err != nil {
		return nil, fmt.Errorf("parse client secrets: %w", err)
	}

	token, err := loadToken(u.tokenFile)
	if err != nil {
		return nil, err
	}

	client := conf.Client(ctx, token)
	svc, err := youtube.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return svc, nil
}

func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("parse token file: %w", err)
	}
	return &token, nil
}
