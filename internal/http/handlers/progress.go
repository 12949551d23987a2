package handlers

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"adgenerator/internal/progress"
)

const connectedFrame = "data: {\"type\":\"connected\"}\n\n"

// ProgressStream relays task snapshots as server-sent events until the client
// goes away. The listener may attach before the task exists.
func (a *App) ProgressStream(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskId")
	logger := a.Logger.With().Str("task_id", taskID).Logger()
	rc := http.NewResponseController(w)
	// streams outlive any server write timeout
	_ = rc.SetWriteDeadline(time.Time{})

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if _, err := io.WriteString(w, connectedFrame); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		logger.Error().Err(err).Msg("sse: streaming unsupported")
		return
	}

	sink := progress.NewStreamSink()
	a.Tracker.AddConnection(taskID, sink)
	defer func() {
		a.Tracker.RemoveConnection(taskID, sink)
		sink.Close()
		logger.Debug().Msg("sse: connection closed")
	}()
	logger.Debug().Msg("sse: connection established")

	var heartbeat <-chan time.Time
	if a.Heartbeat > 0 {
		ticker := time.NewTicker(a.Heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-a.Stopping:
			return
		case payload, ok := <-sink.C():
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				logger.Debug().Err(err).Msg("sse: write failed")
				return
			}
		case <-heartbeat:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// ProgressStatus returns the current snapshot of a task.
func (a *App) ProgressStatus(w http.ResponseWriter, r *http.Request) {
	task, ok := a.Tracker.Get(chi.URLParam(r, "taskId"))
	if !ok {
		a.json(w, http.StatusNotFound, errorResponse{Error: "Task not found"})
		return
	}
	a.json(w, http.StatusOK, task)
}
