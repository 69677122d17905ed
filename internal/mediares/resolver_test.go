package mediares

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyreel/storyreel/internal/media"
)

type recordedCall struct {
	name string
	args []string
}

type stubRunner struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (r *stubRunner) Run(_ context.Context, name string, args ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recordedCall{name: name, args: args})
	return nil
}

func (r *stubRunner) Output(_ context.Context, name string, args ...string) ([]byte, error) {
	return nil, fmt.Errorf("unexpected Output call: %s", name)
}

func (r *stubRunner) recorded() []recordedCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedCall(nil), r.calls...)
}

type stubSearcher struct {
	url   string
	err   error
	calls atomic.Int32
	delay time.Duration
}

func (s *stubSearcher) SearchVideo(_ context.Context, _ string) (string, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.url, s.err
}

type stubSounds struct {
	url string
	err error
}

func (s *stubSounds) PlayURL(_ context.Context, _ string) (string, error) {
	return s.url, s.err
}

func newTestResolver(t *testing.T, searcher Searcher, sounds SoundSource) (*Resolver, string, *stubRunner) {
	t.Helper()
	mediaDir := t.TempDir()
	runner := &stubRunner{}
	ff := media.NewFFmpeg(media.WithRunner(runner))
	return NewResolver(mediaDir, DefaultCatalog(), searcher, sounds, ff), mediaDir, runner
}

func writeClip(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("clip"), 0o644))
}

func TestResolveVideo_DirectSegmentHit(t *testing.T) {
	r, mediaDir, _ := newTestResolver(t, nil, nil)
	clip := filepath.Join(mediaDir, "backgrounds", "minecraft", "minecraft_2.mp4")
	writeClip(t, clip)

	asset, err := r.ResolveVideo(context.Background(), "minecraft_2")

	require.NoError(t, err)
	assert.Equal(t, clip, asset.Location)
	assert.Equal(t, MethodCachedLocal, asset.Method)
}

func TestResolveVideo_RandomSegmentForBareCategory(t *testing.T) {
	r, mediaDir, _ := newTestResolver(t, nil, nil)
	a := filepath.Join(mediaDir, "backgrounds", "nature", "nature_1.mp4")
	b := filepath.Join(mediaDir, "backgrounds", "nature", "nature_2.mp4")
	writeClip(t, a)
	writeClip(t, b)

	asset, err := r.ResolveVideo(context.Background(), "nature")

	require.NoError(t, err)
	assert.Contains(t, []string{a, b}, asset.Location)
	assert.Equal(t, MethodCachedLocal, asset.Method)
}

func TestResolveVideo_SearchTierDownloadsAndCaches(t *testing.T) {
	searcher := &stubSearcher{url: "https://cdn.example.com/clip.mp4"}
	r, mediaDir, runner := newTestResolver(t, searcher, nil)

	asset, err := r.ResolveVideo(context.Background(), "minecraft_7")

	require.NoError(t, err)
	assert.Equal(t, MethodProviderSearch, asset.Method)
	assert.Equal(t, filepath.Join(mediaDir, "backgrounds", "minecraft", "minecraft_7.mp4"), asset.Location)

	calls := runner.recorded()
	require.Len(t, calls, 1)
	args := strings.Join(calls[0].args, " ")
	assert.Contains(t, args, "https://cdn.example.com/clip.mp4")
	assert.Contains(t, args, "-t 30.000")
	assert.Contains(t, args, "-c copy")
}

func TestResolveVideo_SecondResolutionHitsCacheWithoutSearching(t *testing.T) {
	searcher := &stubSearcher{url: "https://cdn.example.com/clip.mp4"}
	r, _, runner := newTestResolver(t, searcher, nil)

	first, err := r.ResolveVideo(context.Background(), "minecraft_7")
	require.NoError(t, err)
	assert.Equal(t, MethodProviderSearch, first.Method)

	// The download is stubbed, so materialize the cached clip the real
	// invocation would have written.
	writeClip(t, first.Location)

	second, err := r.ResolveVideo(context.Background(), "minecraft_7")
	require.NoError(t, err)

	assert.Equal(t, first.Location, second.Location)
	assert.Equal(t, MethodCachedLocal, second.Method)
	assert.Equal(t, int32(1), searcher.calls.Load(), "cached id re-queried the provider")
	assert.Len(t, runner.recorded(), 1)
}

func TestResolveVideo_PlaceholderWhenSearchFails(t *testing.T) {
	searcher := &stubSearcher{err: fmt.Errorf("rate limited")}
	r, mediaDir, runner := newTestResolver(t, searcher, nil)

	asset, err := r.ResolveVideo(context.Background(), "deep_sea")

	require.NoError(t, err)
	assert.Equal(t, MethodPlaceholder, asset.Method)
	assert.Equal(t, filepath.Join(mediaDir, "backgrounds", "deep_sea", "deep_sea_placeholder.mp4"), asset.Location)

	calls := runner.recorded()
	require.Len(t, calls, 1)
	args := strings.Join(calls[0].args, " ")
	assert.Contains(t, args, "color=c="+fallbackColor)
	assert.Contains(t, args, "1080x1920")
	assert.Contains(t, args, "deep sea")
}

func TestResolveVideo_PlaceholderWithoutSearcher(t *testing.T) {
	r, _, runner := newTestResolver(t, nil, nil)

	asset, err := r.ResolveVideo(context.Background(), "space")

	require.NoError(t, err)
	assert.Equal(t, MethodPlaceholder, asset.Method)

	calls := runner.recorded()
	require.Len(t, calls, 1)
	assert.Contains(t, strings.Join(calls[0].args, " "), "color=c=0x0b0c2a")
}

func TestResolveVideo_CollapsesConcurrentResolutions(t *testing.T) {
	searcher := &stubSearcher{url: "https://cdn.example.com/clip.mp4", delay: 100 * time.Millisecond}
	r, _, _ := newTestResolver(t, searcher, nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.ResolveVideo(context.Background(), "minecraft_9")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), searcher.calls.Load())
}

func TestResolveMusic_TrendingSound(t *testing.T) {
	sounds := &stubSounds{url: "https://sf16.example.com/play/123"}
	r, _, _ := newTestResolver(t, nil, sounds)

	asset, err := r.ResolveMusic(context.Background(), "tiktok_7012345")

	require.NoError(t, err)
	assert.Equal(t, MethodProviderSearch, asset.Method)
	assert.Equal(t, "https://sf16.example.com/play/123", asset.Location)
}

func TestResolveMusic_TrendingLookupFailureFallsBack(t *testing.T) {
	sounds := &stubSounds{err: fmt.Errorf("token expired")}
	r, mediaDir, runner := newTestResolver(t, nil, sounds)

	asset, err := r.ResolveMusic(context.Background(), "7012345")

	require.NoError(t, err)
	assert.Equal(t, MethodPlaceholder, asset.Method)
	assert.Equal(t, filepath.Join(mediaDir, "music", "7012345_placeholder.mp3"), asset.Location)
	require.Len(t, runner.recorded(), 1)
}

func TestResolveMusic_LocalCacheHit(t *testing.T) {
	r, mediaDir, _ := newTestResolver(t, nil, nil)
	track := filepath.Join(mediaDir, "music", "lofi_beat.mp3")
	writeClip(t, track)

	asset, err := r.ResolveMusic(context.Background(), "lofi_beat")

	require.NoError(t, err)
	assert.Equal(t, track, asset.Location)
	assert.Equal(t, MethodCachedLocal, asset.Method)
}

func TestResolveMusic_EmptyIDSilence(t *testing.T) {
	r, mediaDir, runner := newTestResolver(t, nil, nil)

	asset, err := r.ResolveMusic(context.Background(), "")

	require.NoError(t, err)
	assert.Equal(t, MethodPlaceholder, asset.Method)
	assert.Equal(t, filepath.Join(mediaDir, "music", "silence_placeholder.mp3"), asset.Location)

	calls := runner.recorded()
	require.Len(t, calls, 1)
	assert.Contains(t, strings.Join(calls[0].args, " "), "anullsrc")
}

func TestIsTrendingSoundID(t *testing.T) {
	assert.True(t, IsTrendingSoundID("tiktok_abc"))
	assert.True(t, IsTrendingSoundID("7012345678901234567"))
	assert.False(t, IsTrendingSoundID("lofi_beat"))
	assert.False(t, IsTrendingSoundID("123abc"))
	assert.False(t, IsTrendingSoundID(""))
}

func TestSplitSegmentID(t *testing.T) {
	cases := []struct {
		id       string
		category string
		direct   bool
	}{
		{"minecraft_3", "minecraft", true},
		{"subway_surfers_12", "subway_surfers", true},
		{"minecraft", "minecraft", false},
		{"subway_surfers", "subway_surfers", false},
		{"nature_", "nature_", false},
		{"_5", "_5", false},
	}
	for _, tc := range cases {
		category, direct := splitSegmentID(tc.id)
		assert.Equal(t, tc.category, category, tc.id)
		assert.Equal(t, tc.direct, direct, tc.id)
	}
}
