package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/storyreel/storyreel/internal/compose"
	"github.com/storyreel/storyreel/internal/config"
	"github.com/storyreel/storyreel/internal/httpapi"
	"github.com/storyreel/storyreel/internal/media"
	"github.com/storyreel/storyreel/internal/mediares"
	"github.com/storyreel/storyreel/internal/pipeline"
	"github.com/storyreel/storyreel/internal/progress"
	"github.com/storyreel/storyreel/internal/publish"
	"github.com/storyreel/storyreel/internal/store"
	"github.com/storyreel/storyreel/internal/titlecard"
	"github.com/storyreel/storyreel/internal/voice"
	"github.com/storyreel/storyreel/pkg/file"
	"github.com/storyreel/storyreel/pkg/log"
)

// tempMaxAge is how long per-job scratch files survive before the sweep
// removes them.
const tempMaxAge = 24 * time.Hour

func main() {
	_ = godotenv.Load()

	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Error("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	for _, dir := range []string{cfg.Media.MediaDir, cfg.Media.UploadsDir, cfg.Media.TempDir} {
		if err := file.EnsureDir(dir); err != nil {
			return err
		}
	}

	records, err := store.NewSQLiteStore(cfg.Media.StorePath)
	if err != nil {
		return err
	}
	defer records.Close()

	ff := media.NewFFmpeg()
	tracker := progress.NewTracker()

	catalog, err := mediares.LoadCatalog(cfg.Media.CatalogFile)
	if err != nil {
		return err
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	var searcher mediares.Searcher
	if cfg.Pexels.APIKey != "" {
		searcher = mediares.NewPexelsClient(cfg.Pexels.APIKey, httpClient)
	}
	var sounds mediares.SoundSource
	if cfg.TikTok.ClientKey != "" && cfg.TikTok.ClientSecret != "" {
		sounds = mediares.NewTikTokClient(cfg.TikTok.ClientKey, cfg.TikTok.ClientSecret, httpClient)
	}
	resolver := mediares.NewResolver(cfg.Media.MediaDir, catalog, searcher, sounds, ff)

	synth := voice.NewFromConfig(cfg.Voice, cfg.Media.TempDir, ff)
	cards := titlecard.NewRenderer(cfg.Media.TempDir, media.NewExecRunner())
	engine := compose.NewEngine(ff, cfg.Media.TempDir, compose.WithCardRenderer(cards))

	grace := time.Duration(cfg.Pipeline.GraceSeconds) * time.Second
	orchestrator := pipeline.NewOrchestrator(
		synth, resolver, engine, records, tracker,
		cfg.Media.TempDir, cfg.Media.UploadsDir,
		pipeline.WithMaxConcurrent(cfg.Pipeline.MaxConcurrent),
		pipeline.WithClearGrace(grace),
	)

	sweeper := cron.New()
	if _, err := sweeper.AddFunc(cfg.Pipeline.SweepCronExpr, func() {
		sweepTemp(cfg.Media.TempDir)
	}); err != nil {
		return err
	}
	sweeper.Start()
	defer sweeper.Stop()

	serverOpts := []httpapi.Option{httpapi.WithClearGrace(grace)}
	if uploader := publish.NewYouTubeUploader(cfg.Publish); uploader != nil {
		serverOpts = append(serverOpts, httpapi.WithPublisher(uploader))
	}
	server := httpapi.NewServer(orchestrator, records, tracker, cfg.Media.UploadsDir, serverOpts...)

	errCh := make(chan error, 1)
	go func() {
		log.Info("Listening on %s", cfg.HTTP.Addr)
		if err := server.ListenAndServe(cfg.HTTP.Addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info("Received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Warn("HTTP shutdown: %v", err)
	}
	orchestrator.Wait()
	return nil
}

// sweepTemp deletes scratch files the pipeline left behind.
func sweepTemp(tempDir string) {
	entries, err := os.ReadDir(tempDir)
	if err != nil {
		log.Warn("Temp sweep: %v", err)
		return
	}

	cutoff := time.Now().Add(-tempMaxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(tempDir, entry.Name())); err == nil {
			removed++
		}
	}
	if removed > 0 {
		log.Info("Temp sweep removed %d stale files", removed)
	}
}
