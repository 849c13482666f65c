package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
	"server/internal/scheduler"
)

type submitJobRequest struct {
	ProductType     string   `json:"product_type"`
	Scenes          []string `json:"scenes"`
	StyleID         string   `json:"style_id"`
	InjectionLevel  string   `json:"injection_level,omitempty"`
	Provider        string   `json:"provider,omitempty"`
	ProductImageKey string   `json:"product_image_key"`
}

type taskView struct {
	ID           string     `json:"id"`
	SceneID      string     `json:"scene_id"`
	Status       string     `json:"status"`
	AttemptCount int        `json:"attempt_count,omitempty"`
	ProviderUsed string     `json:"provider_used,omitempty"`
	ErrorKind    string     `json:"error_kind,omitempty"`
	ImageURL     string     `json:"image_url,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

type jobView struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	ProductType string     `json:"product_type"`
	StyleID     string     `json:"style_id"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Tasks       []taskView `json:"tasks"`
}

func renderJobView(view *scheduler.JobView) jobView {
	out := jobView{
		ID:          view.Job.ID,
		Status:      string(view.Status),
		ProductType: view.Job.ProductType,
		StyleID:     view.Job.StyleID,
		CreatedAt:   view.Job.CreatedAt,
		CompletedAt: view.Job.CompletedAt,
		Tasks:       make([]taskView, 0, len(view.Tasks)),
	}
	for _, task := range view.Tasks {
		tv := taskView{
			ID:           task.ID,
			SceneID:      task.SceneTemplateID,
			Status:       string(task.Status),
			AttemptCount: task.AttemptCount,
			ProviderUsed: task.ProviderUsed,
			ErrorKind:    string(task.ErrorKind),
		}
		if !task.UpdatedAt.IsZero() {
			at := task.UpdatedAt
			tv.UpdatedAt = &at
		}
		if task.Status == domain.TaskStatusSucceeded && task.OutputPath != "" {
			tv.ImageURL = "/v1/tasks/" + task.ID + "/image"
		}
		out.Tasks = append(out.Tasks, tv)
	}
	return out
}

// CreateJob accepts a generation request and returns immediately with the
// queued job. Progress is polled via GetJob or streamed via JobEvents.
func (a *App) CreateJob(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	var req submitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	job, err := a.Scheduler.Submit(r.Context(), scheduler.SubmitRequest{
		UserID:          userID,
		ProductType:     req.ProductType,
		Scenes:          req.Scenes,
		StyleID:         req.StyleID,
		InjectionLevel:  req.InjectionLevel,
		Provider:        req.Provider,
		ProductImageKey: req.ProductImageKey,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	view, err := a.Scheduler.Status(r.Context(), job.ID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, renderJobView(view))
}

// GetJob returns the job with its tasks and the derived aggregate status.
func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	view, ok := a.ownedJob(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, renderJobView(view))
}

// CancelJob skips every still-queued task. Running tasks are not interrupted.
func (a *App) CancelJob(w http.ResponseWriter, r *http.Request) {
	view, ok := a.ownedJob(w, r)
	if !ok {
		return
	}
	if err := a.Scheduler.Cancel(r.Context(), view.Job.ID); err != nil {
		a.fail(w, r, err)
		return
	}
	updated, err := a.Scheduler.Status(r.Context(), view.Job.ID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, renderJobView(updated))
}

// ownedJob loads the job from the URL and enforces that the caller owns it.
// Foreign jobs read as 404 so job identifiers are not probeable.
func (a *App) ownedJob(w http.ResponseWriter, r *http.Request) (*scheduler.JobView, bool) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return nil, false
	}
	view, err := a.Scheduler.Status(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		a.fail(w, r, err)
		return nil, false
	}
	if view.Job.UserID != userID {
		a.error(w, http.StatusNotFound, "not found")
		return nil, false
	}
	return view, true
}
