// Package pipeline turns uploaded creatives into prompts and generated images
// while reporting progress to the tracker.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"adgenerator/internal/domain"
	"adgenerator/internal/history"
	"adgenerator/internal/progress"
	"adgenerator/internal/providers/image"
	"adgenerator/internal/providers/prompt"
)

const (
	DefaultConcurrency = 3
	DefaultTimeout     = 15 * time.Minute
	recordTimeout      = 5 * time.Second
)

// ErrShuttingDown fails jobs started after Shutdown.
var ErrShuttingDown = errors.New("pipeline: shutting down")

// Tracker receives progress for a running job.
type Tracker interface {
	Update(id string, u progress.Update)
	Complete(id string, result any)
	Fail(id string, err error)
}

// Cache memoises provider answers. Misses and failures are silent.
type Cache interface {
	Get(ctx context.Context, key string, dest any) bool
	Set(ctx context.Context, key string, value any) bool
}

// Recorder stores a summary of every finished run.
type Recorder interface {
	Record(ctx context.Context, e history.Entry) error
}

// Job is the input of one run.
type Job struct {
	Uploads []domain.Upload
	Brief   string
}

// FileResult holds the output for one upload.
type FileResult struct {
	Filename string   `json:"filename"`
	MIME     string   `json:"mime"`
	Prompts  []string `json:"prompts"`
	Images   []string `json:"images"`
}

// Result is stored on the completed task. Results and Prompts are flattened
// in upload order.
type Result struct {
	Results []string     `json:"results"`
	Prompts []string     `json:"prompts"`
	Files   []FileResult `json:"files"`
}

type Options struct {
	Tracker      Tracker
	Prompts      prompt.Generator
	Images       image.Generator
	Cache        Cache
	History      Recorder
	PromptsCount int
	Concurrency  int
	Timeout      time.Duration
	Logger       zerolog.Logger
}

// Driver runs jobs. Asynchronous runs are bound to the driver's own context
// so they outlive the request that started them.
type Driver struct {
	tracker      Tracker
	prompts      prompt.Generator
	images       image.Generator
	cache        Cache
	history      Recorder
	promptsCount int
	concurrency  int
	timeout      time.Duration
	logger       zerolog.Logger

	base   context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewDriver(opts Options) (*Driver, error) {
	if opts.Tracker == nil {
		return nil, errors.New("pipeline: tracker is required")
	}
	if opts.Prompts == nil || opts.Images == nil {
		return nil, errors.New("pipeline: prompt and image generators are required")
	}
	d := &Driver{
		tracker:      opts.Tracker,
		prompts:      opts.Prompts,
		images:       opts.Images,
		cache:        opts.Cache,
		history:      opts.History,
		promptsCount: opts.PromptsCount,
		concurrency:  opts.Concurrency,
		timeout:      opts.Timeout,
		logger:       opts.Logger,
	}
	if d.promptsCount <= 0 {
		d.promptsCount = domain.DefaultPromptsCount
	}
	if d.concurrency <= 0 {
		d.concurrency = DefaultConcurrency
	}
	if d.timeout <= 0 {
		d.timeout = DefaultTimeout
	}
	d.base, d.cancel = context.WithCancel(context.Background())
	return d, nil
}

// TotalSteps is the number of progress units a job reports: prepare and
// prompts for every file plus one per generated image.
func TotalSteps(files, promptsCount int) int {
	return files * (2 + promptsCount)
}

// Metadata builds the task creation metadata for job.
func (d *Driver) Metadata(job Job) map[string]any {
	names := make([]string, len(job.Uploads))
	for i, u := range job.Uploads {
		names[i] = u.Filename
	}
	return map[string]any{
		progress.MetadataTotalSteps: TotalSteps(len(job.Uploads), d.promptsCount),
		"files":                     names,
		"promptsCount":              d.promptsCount,
	}
}

// Start runs job in the background. The task must already exist.
func (d *Driver) Start(taskID string, job Job) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.tracker.Fail(taskID, ErrShuttingDown)
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		_, _ = d.Run(d.base, taskID, job)
	}()
}

// Shutdown cancels running jobs and waits for them until ctx expires.
func (d *Driver) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes job synchronously and finishes the task either way.
func (d *Driver) Run(ctx context.Context, taskID string, job Job) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	logger := d.logger.With().Str("task_id", taskID).Logger()
	started := time.Now()
	r := &run{driver: d, taskID: taskID, logger: logger, brief: job.Brief}

	d.tracker.Update(taskID, progress.Update{Message: fmt.Sprintf("Processing %d file(s)", len(job.Uploads))})

	files := make([]FileResult, len(job.Uploads))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i, upload := range job.Uploads {
		g.Go(func() error {
			out, err := r.processFile(gctx, upload)
			if err != nil {
				return fmt.Errorf("%s: %w", upload.Filename, err)
			}
			files[i] = out
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	elapsed := time.Since(started)
	if err != nil {
		d.tracker.Fail(taskID, err)
		logger.Error().Err(err).Int64("duration_ms", elapsed.Milliseconds()).Msg("pipeline failed")
		d.record(ctx, history.Entry{
			TaskID:     taskID,
			Status:     string(progress.StatusFailed),
			Files:      len(job.Uploads),
			DurationMS: elapsed.Milliseconds(),
			Error:      err.Error(),
			Brief:      job.Brief,
		})
		return Result{}, err
	}

	result := Result{Results: []string{}, Prompts: []string{}, Files: files}
	for _, f := range files {
		result.Prompts = append(result.Prompts, f.Prompts...)
		result.Results = append(result.Results, f.Images...)
	}
	d.tracker.Complete(taskID, result)
	logger.Info().
		Int("files", len(files)).
		Int("prompts", len(result.Prompts)).
		Int("images", len(result.Results)).
		Int64("duration_ms", elapsed.Milliseconds()).
		Msg("pipeline completed")
	d.record(ctx, history.Entry{
		TaskID:     taskID,
		Status:     string(progress.StatusCompleted),
		Files:      len(files),
		Prompts:    len(result.Prompts),
		Images:     len(result.Results),
		DurationMS: elapsed.Milliseconds(),
		Brief:      job.Brief,
	})
	return result, nil
}

func (d *Driver) record(ctx context.Context, e history.Entry) {
	if d.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := d.history.Record(ctx, e); err != nil && !errors.Is(err, history.ErrDisabled) {
		d.logger.Warn().Err(err).Str("task_id", e.TaskID).Msg("history record failed")
	}
}
