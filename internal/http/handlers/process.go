package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"adgenerator/internal/domain"
	"adgenerator/internal/middleware"
	"adgenerator/internal/pipeline"
	"adgenerator/internal/progress"
)

const (
	uploadField       = "image"
	multipartMemory   = 32 << 20
	multipartOverhead = 1 << 20
)

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type processAccepted struct {
	TaskID      string          `json:"taskId"`
	Status      progress.Status `json:"status"`
	ProgressURL string          `json:"progressUrl"`
	StatusURL   string          `json:"statusUrl"`
}

type processResult struct {
	TaskID  string   `json:"taskId"`
	Results []string `json:"results"`
	Prompts []string `json:"prompts"`
}

// Process accepts uploaded images plus a prompt or brief, creates a progress
// task and runs the generation pipeline. With ?wait=true it blocks until the
// pipeline finishes.
func (a *App) Process(w http.ResponseWriter, r *http.Request) {
	limits := a.limits()
	logger := a.Logger.With().Str("request_id", middleware.RequestIDFromContext(r.Context())).Logger()

	r.Body = http.MaxBytesReader(w, r.Body, int64(limits.MaxFiles)*limits.MaxFileSize+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, http.StatusBadRequest, "file_too_large", fmt.Sprintf("File size too large. Maximum size is %dMB.", limits.MaxFileSize>>20))
			return
		}
		logger.Warn().Err(err).Msg("process: invalid multipart payload")
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart payload")
		return
	}

	uploads, err := readUploads(r.MultipartForm, limits)
	if err == nil && len(uploads) > 0 {
		err = domain.ValidateUploads(uploads, limits)
	}
	if err != nil {
		status, code, msg := uploadError(err, limits)
		logger.Warn().Err(err).Msg("process: rejected upload")
		a.error(w, status, code, msg)
		return
	}

	prompt, details := readPrompt(r)
	if len(details) > 0 {
		logger.Warn().Interface("details", details).Msg("process: validation failed")
		a.json(w, http.StatusBadRequest, errorResponse{Error: "Validation failed", Code: "validation_failed", Details: details})
		return
	}
	if len(uploads) == 0 {
		logger.Warn().Msg("process: no files uploaded")
		a.error(w, http.StatusBadRequest, "no_files", "No files uploaded.")
		return
	}

	job := pipeline.Job{Uploads: uploads, Brief: prompt}
	taskID := a.Tracker.GenerateTaskID()
	if _, err := a.Tracker.Create(taskID, a.Pipeline.Metadata(job)); err != nil {
		logger.Error().Err(err).Str("task_id", taskID).Msg("process: create task")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create task")
		return
	}
	logger.Info().Str("task_id", taskID).Int("files", len(uploads)).Msg("process: task created")

	if r.URL.Query().Get("wait") == "true" {
		result, err := a.Pipeline.Run(r.Context(), taskID, job)
		if err != nil {
			a.error(w, http.StatusInternalServerError, "processing_failed", err.Error())
			return
		}
		a.json(w, http.StatusOK, processResult{TaskID: taskID, Results: result.Results, Prompts: result.Prompts})
		return
	}

	a.Pipeline.Start(taskID, job)
	a.json(w, http.StatusAccepted, processAccepted{
		TaskID:      taskID,
		Status:      progress.StatusStarted,
		ProgressURL: "/api/progress/" + taskID,
		StatusURL:   "/api/progress/" + taskID + "/status",
	})
}

func (a *App) limits() domain.UploadLimits {
	limits := a.Limits
	defaults := domain.DefaultUploadLimits()
	if limits.MaxFiles <= 0 {
		limits.MaxFiles = defaults.MaxFiles
	}
	if limits.MaxFileSize <= 0 {
		limits.MaxFileSize = defaults.MaxFileSize
	}
	return limits
}

func readUploads(form *multipart.Form, limits domain.UploadLimits) ([]domain.Upload, error) {
	if form == nil {
		return nil, nil
	}
	headers := form.File[uploadField]
	if len(headers) > limits.MaxFiles {
		return nil, fmt.Errorf("%w: maximum is %d", domain.ErrTooManyFiles, limits.MaxFiles)
	}
	uploads := make([]domain.Upload, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > limits.MaxFileSize {
			return nil, fmt.Errorf("%w: %s", domain.ErrFileTooLarge, fh.Filename)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(io.LimitReader(f, limits.MaxFileSize+1))
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
		}
		uploads = append(uploads, domain.Upload{
			Filename: fh.Filename,
			MIME:     domain.DetectMIME(data, fh.Header.Get("Content-Type")),
			Data:     data,
		})
	}
	return uploads, nil
}

func uploadError(err error, limits domain.UploadLimits) (int, string, string) {
	switch {
	case errors.Is(err, domain.ErrNoFiles):
		return http.StatusBadRequest, "no_files", "No files uploaded."
	case errors.Is(err, domain.ErrTooManyFiles):
		return http.StatusBadRequest, "too_many_files", fmt.Sprintf("Too many files. Maximum is %d.", limits.MaxFiles)
	case errors.Is(err, domain.ErrUnsupportedFileType):
		return http.StatusBadRequest, "unsupported_file_type", fmt.Sprintf("Only image files are allowed (%s).", strings.Join(domain.SupportedImageTypes, ", "))
	case errors.Is(err, domain.ErrFileTooLarge):
		return http.StatusBadRequest, "file_too_large", fmt.Sprintf("File size too large. Maximum size is %dMB.", limits.MaxFileSize>>20)
	default:
		return http.StatusBadRequest, "bad_request", "invalid upload"
	}
}

// readPrompt prefers the free-text prompt and falls back to the brief fields.
func readPrompt(r *http.Request) (string, []fieldError) {
	prompt := r.FormValue("prompt")
	if strings.TrimSpace(prompt) == "" {
		brief := domain.Brief{
			Vertical:  r.FormValue("vertical"),
			AgeGroup:  r.FormValue("ageGroup"),
			Sentiment: r.FormValue("sentiment"),
			Angle:     r.FormValue("angle"),
		}.Normalize()
		if !brief.Empty() {
			if err := brief.Validate(); err != nil {
				return "", []fieldError{{Field: "brief", Message: err.Error()}}
			}
			prompt = brief.String()
		}
	}
	clean, err := domain.ValidatePrompt(prompt)
	if err != nil {
		return "", []fieldError{{
			Field:   "prompt",
			Message: fmt.Sprintf("Prompt must be between %d and %d characters", domain.MinPromptLength, domain.MaxPromptLength),
		}}
	}
	return clean, nil
}
