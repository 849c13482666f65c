package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"server/internal/domain"
)

const eventHeartbeat = 15 * time.Second

// JobEvents streams task transitions for one job as server-sent events.
// The stream closes once the job reaches a terminal status or the client
// disconnects.
func (a *App) JobEvents(w http.ResponseWriter, r *http.Request) {
	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		a.error(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// Subscribe before loading the snapshot. A transition landing between
	// the two is then either in the snapshot or buffered on the channel;
	// the reverse order can drop a job's final transition and leave the
	// stream heartbeating forever.
	events, cancel := a.Scheduler.Subscribe()
	defer cancel()

	view, ok := a.ownedJob(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeSSE(w, "snapshot", renderJobView(view))
	flusher.Flush()
	if view.Status != domain.JobStatusRunning {
		return
	}

	heartbeat := time.NewTicker(eventHeartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			writeSSE(w, "heartbeat", map[string]string{"at": time.Now().UTC().Format(time.RFC3339)})
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				return
			}
			if ev.JobID != view.Job.ID {
				continue
			}
			writeSSE(w, "task", ev)
			flusher.Flush()
			if !ev.To.Terminal() {
				continue
			}
			current, err := a.Scheduler.Status(r.Context(), view.Job.ID)
			if err != nil {
				return
			}
			if current.Status != domain.JobStatusRunning {
				writeSSE(w, "done", renderJobView(current))
				flusher.Flush()
				return
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_, _ = w.Write([]byte("event: " + event + "\ndata: " + string(data) + "\n\n"))
}
