package httpapi

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/storyreel/storyreel/internal/pipeline"
	"github.com/storyreel/storyreel/internal/publish"
	"github.com/storyreel/storyreel/internal/store"
)

type createVideoRequest struct {
	ContentID  string `json:"content_id"`
	Background string `json:"background_video"`
	Music      string `json:"background_music"`
}

func (s *Server) handleCreateVideo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req createVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ContentID == "" {
		writeError(w, http.StatusBadRequest, "content_id is required")
		return
	}

	_, ok, err := s.records.Get(r.Context(), req.ContentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "content not found")
		return
	}

	if err := s.records.SetSelections(r.Context(), req.ContentID, req.Background, req.Music); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.launcher.Launch(pipeline.CreateRequest{
		ContentID:  req.ContentID,
		Background: req.Background,
		Music:      req.Music,
	})

	writeJSON(w, http.StatusAccepted, map[string]any{
		"accepted":   true,
		"content_id": req.ContentID,
	})
}

type publishRequest struct {
	ContentID   string   `json:"content_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Privacy     string   `json:"privacy"`
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.publisher == nil {
		writeError(w, http.StatusServiceUnavailable, "publishing is not configured")
		return
	}

	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ContentID == "" {
		writeError(w, http.StatusBadRequest, "content_id is required")
		return
	}

	rec, ok, err := s.records.Get(r.Context(), req.ContentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "content not found")
		return
	}
	if rec.Status != store.StatusCompleted || rec.VideoPath == "" {
		writeError(w, http.StatusConflict, "video is not ready to publish")
		return
	}

	title := req.Title
	if title == "" {
		title = rec.Title
	}
	videoID, err := s.publisher.Upload(r.Context(), rec.VideoPath, publish.Metadata{
		Title:       title,
		Description: req.Description,
		Tags:        req.Tags,
		Privacy:     req.Privacy,
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"video_id": videoID,
		"url":      "https://www.youtube.com/watch?v=" + videoID,
	})
}

type progressResponse struct {
	Message   string    `json:"message"`
	Percent   *int      `json:"percent"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/videos/progress/")
	id = strings.TrimSuffix(id, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing content id")
		return
	}

	snap := s.tracker.Get(id)

	// A nil percent is a terminal error; once a client has seen it the
	// entry can go after the grace period.
	if snap.Percent == nil {
		time.AfterFunc(s.grace, func() { s.tracker.Clear(id) })
	}

	writeJSON(w, http.StatusOK, progressResponse{
		Message:   snap.Message,
		Percent:   snap.Percent,
		Timestamp: snap.Timestamp,
	})
}

func (s *Server) handleGetVideo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/videos/")
	id = strings.TrimSuffix(id, "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	rec, ok, err := s.records.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "content not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type createContentRequest struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	StoryText    string `json:"story_text"`
	BackgroundID string `json:"background_id"`
	MusicID      string `json:"music_id"`
}

func (s *Server) handleCreateContent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req createContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.StoryText) == "" {
		writeError(w, http.StatusBadRequest, "story_text is required")
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	rec := &store.Record{
		ID:           req.ID,
		Title:        req.Title,
		StoryText:    req.StoryText,
		BackgroundID: req.BackgroundID,
		MusicID:      req.MusicID,
	}
	if err := s.records.Create(r.Context(), rec); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// handleMedia serves finished videos with range support so players can seek.
// Requests are confined to the uploads directory.
func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/media/")
	if name == "" || name != filepath.Base(name) {
		writeError(w, http.StatusBadRequest, "invalid file name")
		return
	}

	path := filepath.Join(s.uploadsDir, name)
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	http.ServeFile(w, r, path)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}
