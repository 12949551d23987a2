package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"adgenerator/internal/domain"
	"adgenerator/internal/export"
	"adgenerator/internal/health"
	"adgenerator/internal/history"
	"adgenerator/internal/pipeline"
	"adgenerator/internal/progress"
)

// Pipeline is satisfied by *pipeline.Driver.
type Pipeline interface {
	Metadata(job pipeline.Job) map[string]any
	Start(taskID string, job pipeline.Job)
	Run(ctx context.Context, taskID string, job pipeline.Job) (pipeline.Result, error)
}

// Archiver is satisfied by *export.Exporter.
type Archiver interface {
	Archive(ctx context.Context, urls []string) ([]byte, export.Report, error)
}

// HealthChecker is satisfied by *health.Checker.
type HealthChecker interface {
	Check(ctx context.Context) health.Report
}

// HistoryReader is satisfied by *history.Store.
type HistoryReader interface {
	Enabled() bool
	Recent(ctx context.Context, limit int) ([]history.Entry, error)
}

type App struct {
	Tracker      *progress.Tracker
	Pipeline     Pipeline
	Exporter     Archiver
	Checker      HealthChecker
	HistoryStore HistoryReader
	Limits       domain.UploadLimits
	Logger       zerolog.Logger

	// Heartbeat is the SSE keep-alive interval; zero disables it.
	Heartbeat time.Duration
	// Stopping, when closed, ends open progress streams so shutdown is not
	// held up by them.
	Stopping <-chan struct{}
}

type errorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, errorResponse{Error: message, Code: code})
}
