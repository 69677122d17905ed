package mediares

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/storyreel/storyreel/internal/media"
	"github.com/storyreel/storyreel/pkg/file"
	"github.com/storyreel/storyreel/pkg/log"
)

// Resolution methods, recorded on each asset so callers can see which tier
// produced it.
const (
	MethodCachedLocal    = "cached-local"
	MethodProviderSearch = "provider-search"
	MethodPlaceholder    = "synthesized-placeholder"
)

const (
	clipMaxSeconds          = 30
	placeholderMusicSeconds = 60
)

// Asset is a resolved media input: a local file path or a remote URL that
// ffmpeg can read directly.
type Asset struct {
	ID       string `json:"id"`
	Location string `json:"location"`
	Method   string `json:"method"`
}

// Resolver turns background and music ids into playable assets, walking a
// fixed tier order: local library, stock provider search, synthesized
// placeholder. Concurrent resolutions of the same id are collapsed.
type Resolver struct {
	mediaDir string
	catalog  *Catalog
	searcher Searcher
	sounds   SoundSource
	ff       *media.FFmpeg
	group    singleflight.Group
}

// NewResolver builds a resolver. searcher and sounds may be nil, in which
// case their tiers are skipped.
func NewResolver(mediaDir string, catalog *Catalog, searcher Searcher, sounds SoundSource, ff *media.FFmpeg) *Resolver {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Resolver{
		mediaDir: mediaDir,
		catalog:  catalog,
		searcher: searcher,
		sounds:   sounds,
		ff:       ff,
	}
}

// ResolveVideo resolves a background id. A bare category id picks a random
// cached segment; `<category>_<n>` ids look up that exact segment first.
// Resolution never fails outright unless even the placeholder tier errors.
func (r *Resolver) ResolveVideo(ctx context.Context, id string) (Asset, error) {
	v, err, _ := r.group.Do("video:"+id, func() (any, error) {
		return r.resolveVideo(ctx, id)
	})
	if err != nil {
		return Asset{}, err
	}
	return v.(Asset), nil
}

func (r *Resolver) resolveVideo(ctx context.Context, id string) (Asset, error) {
	category, direct := splitSegmentID(id)
	dir := filepath.Join(r.mediaDir, "backgrounds", category)

	if direct {
		path := filepath.Join(dir, id+".mp4")
		if file.Exists(path) {
			return Asset{ID: id, Location: path, Method: MethodCachedLocal}, nil
		}
	} else if path := randomSegment(dir); path != "" {
		return Asset{ID: id, Location: path, Method: MethodCachedLocal}, nil
	}

	entry := r.catalog.Lookup(category)

	if r.searcher != nil {
		if asset, err := r.searchAndCache(ctx, id, category, dir, entry); err != nil {
			log.Warn("Stock search for %s failed, falling back to placeholder: %v", id, err)
		} else {
			return asset, nil
		}
	}

	path := filepath.Join(dir, category+"_placeholder.mp4")
	if !file.Exists(path) {
		label := strings.ReplaceAll(category, "_", " ")
		if err := r.ff.GeneratePlaceholderClip(ctx, path, label, entry.Color, clipMaxSeconds); err != nil {
			return Asset{}, fmt.Errorf("generate placeholder background: %w", err)
		}
	}
	return Asset{ID: id, Location: path, Method: MethodPlaceholder}, nil
}

func (r *Resolver) searchAndCache(ctx context.Context, id, category, dir string, entry Category) (Asset, error) {
	url, err := r.searcher.SearchVideo(ctx, entry.SearchTerm)
	if err != nil {
		return Asset{}, err
	}

	// Cache direct ids under their own name so repeat lookups hit tier one.
	name := id
	if name == category {
		name = fmt.Sprintf("%s_%d", category, time.Now().Unix())
	}
	path := filepath.Join(dir, name+".mp4")

	if err := r.ff.DownloadClip(ctx, url, path, clipMaxSeconds); err != nil {
		return Asset{}, err
	}
	return Asset{ID: id, Location: path, Method: MethodProviderSearch}, nil
}

// ResolveMusic resolves a music id. Trending-audio ids resolve to a remote
// play URL; everything else comes from the local music cache or a silent
// placeholder.
func (r *Resolver) ResolveMusic(ctx context.Context, id string) (Asset, error) {
	v, err, _ := r.group.Do("music:"+id, func() (any, error) {
		return r.resolveMusic(ctx, id)
	})
	if err != nil {
		return Asset{}, err
	}
	return v.(Asset), nil
}

func (r *Resolver) resolveMusic(ctx context.Context, id string) (Asset, error) {
	if id != "" && IsTrendingSoundID(id) && r.sounds != nil {
		url, err := r.sounds.PlayURL(ctx, id)
		if err != nil {
			log.Warn("Trending sound lookup for %s failed, using local tiers: %v", id, err)
		} else {
			return Asset{ID: id, Location: url, Method: MethodProviderSearch}, nil
		}
	}

	name := id
	if name == "" {
		name = "silence"
	}

	path := filepath.Join(r.mediaDir, "music", name+".mp3")
	if file.Exists(path) {
		return Asset{ID: id, Location: path, Method: MethodCachedLocal}, nil
	}

	placeholder := filepath.Join(r.mediaDir, "music", name+"_placeholder.mp3")
	if !file.Exists(placeholder) {
		if err := r.ff.GenerateSilence(ctx, placeholder, placeholderMusicSeconds); err != nil {
			return Asset{}, fmt.Errorf("generate placeholder music: %w", err)
		}
	}
	return Asset{ID: id, Location: placeholder, Method: MethodPlaceholder}, nil
}

// splitSegmentID splits `<category>_<n>` ids into the category and a flag
// marking a direct segment lookup. Anything else is a bare category.
func splitSegmentID(id string) (category string, direct bool) {
	idx := strings.LastIndex(id, "_")
	if idx <= 0 || idx == len(id)-1 {
		return id, false
	}
	suffix := id[idx+1:]
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return id, false
		}
	}
	return id[:idx], true
}

func randomSegment(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}

	var clips []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".mp4") && !strings.Contains(name, "placeholder") {
			clips = append(clips, filepath.Join(dir, name))
		}
	}
	if len(clips) == 0 {
		return ""
	}
	return clips[rand.Intn(len(clips))]
}
