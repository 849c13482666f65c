package handlers

import (
	"errors"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"server/internal/domain"
)

const maxUploadBytes = 10 << 20

// UploadProductImage stores a raw product photo and returns the storage key
// to reference in a job submission.
func (a *App) UploadProductImage(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, http.StatusRequestEntityTooLarge, "image exceeds the upload limit")
			return
		}
		a.error(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(data) == 0 {
		a.error(w, http.StatusBadRequest, "empty body")
		return
	}

	var ext string
	switch http.DetectContentType(data) {
	case "image/png":
		ext = ".png"
	case "image/jpeg":
		ext = ".jpg"
	case "image/webp":
		ext = ".webp"
	default:
		a.error(w, http.StatusUnsupportedMediaType, "expected a PNG, JPEG or WebP image")
		return
	}

	key := path.Join("uploads", userID, uuid.NewString()+ext)
	stored, err := a.Store.Write(r.Context(), key, data)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, map[string]string{"product_image_key": stored})
}

// GetTaskImage serves the generated image for a succeeded task.
func (a *App) GetTaskImage(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	task, err := a.taskForUser(r, chi.URLParam(r, "taskID"), userID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if task.OutputPath == "" {
		a.error(w, http.StatusNotFound, "task has no output")
		return
	}
	data, err := a.Store.Read(r.Context(), task.OutputPath)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentTypeForKey(task.OutputPath))
	w.Header().Set("Cache-Control", "private, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func contentTypeForKey(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	}
	return "application/octet-stream"
}

// taskForUser loads a task and enforces job ownership. Foreign tasks read as
// not found.
func (a *App) taskForUser(r *http.Request, taskID, userID string) (*domain.SceneTask, error) {
	task, err := a.Tasks.GetByID(r.Context(), taskID)
	if err != nil {
		return nil, err
	}
	job, err := a.Jobs.GetByID(r.Context(), task.JobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return task, nil
}
