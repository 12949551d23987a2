package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adgenerator/internal/cache"
	"adgenerator/internal/domain"
	"adgenerator/internal/history"
	"adgenerator/internal/progress"
	"adgenerator/internal/providers/image"
	"adgenerator/internal/providers/prompt"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\nfake-image-body")

type stubPrompts struct {
	calls atomic.Int32
	err   error
	block bool
}

func (s *stubPrompts) Name() string { return "stub-prompts" }

func (s *stubPrompts) Generate(ctx context.Context, req prompt.Request) ([]string, error) {
	s.calls.Add(1)
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	out := make([]string, req.Count)
	for i := range out {
		out[i] = fmt.Sprintf("%d-%s-%d", len(req.Image), req.MIME, i)
	}
	return out, nil
}

type stubImages struct {
	calls atomic.Int32
	err   error
}

func (s *stubImages) Name() string { return "stub-images" }

func (s *stubImages) Generate(ctx context.Context, req image.Request) ([]string, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return []string{"https://img.test/" + req.Prompt + ".png"}, nil
}

type memoryRecorder struct {
	mu      sync.Mutex
	entries []history.Entry
}

func (m *memoryRecorder) Record(_ context.Context, e history.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memoryRecorder) all() []history.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]history.Entry(nil), m.entries...)
}

type fixture struct {
	tracker  *progress.Tracker
	prompts  *stubPrompts
	images   *stubImages
	recorder *memoryRecorder
	driver   *Driver
}

func newFixture(t *testing.T, count int) *fixture {
	t.Helper()
	f := &fixture{
		tracker:  progress.NewTracker(progress.Options{Logger: zerolog.Nop()}),
		prompts:  &stubPrompts{},
		images:   &stubImages{},
		recorder: &memoryRecorder{},
	}
	d, err := NewDriver(Options{
		Tracker:      f.tracker,
		Prompts:      f.prompts,
		Images:       f.images,
		Cache:        cache.New(cache.Options{}),
		History:      f.recorder,
		PromptsCount: count,
		Concurrency:  2,
		Timeout:      5 * time.Second,
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)
	f.driver = d
	return f
}

func (f *fixture) create(t *testing.T, id string, job Job) {
	t.Helper()
	_, err := f.tracker.Create(id, f.driver.Metadata(job))
	require.NoError(t, err)
}

func uploads(names ...string) []domain.Upload {
	out := make([]domain.Upload, len(names))
	for i, n := range names {
		data := append(append([]byte{}, pngBytes...), []byte(n)...)
		out[i] = domain.Upload{Filename: n, MIME: "image/png", Data: data}
	}
	return out
}

func TestTotalSteps(t *testing.T) {
	assert.Equal(t, 18, TotalSteps(1, 16))
	assert.Equal(t, 8, TotalSteps(2, 2))
	assert.Equal(t, 0, TotalSteps(0, 16))
}

func TestRunCompletesTask(t *testing.T) {
	f := newFixture(t, 2)
	job := Job{Uploads: uploads("a.png", "bb.png"), Brief: "Vertical: Fitness"}
	f.create(t, "task_ok", job)

	result, err := f.driver.Run(context.Background(), "task_ok", job)
	require.NoError(t, err)

	require.Len(t, result.Files, 2)
	assert.Equal(t, "a.png", result.Files[0].Filename)
	assert.Equal(t, "bb.png", result.Files[1].Filename)
	assert.Len(t, result.Prompts, 4)
	assert.Len(t, result.Results, 4)
	assert.Equal(t, result.Files[0].Prompts, result.Prompts[:2])
	assert.Equal(t, "https://img.test/"+result.Prompts[0]+".png", result.Results[0])

	task, ok := f.tracker.Get("task_ok")
	require.True(t, ok)
	assert.Equal(t, progress.StatusCompleted, task.Status)
	assert.Equal(t, 8, task.TotalSteps)
	assert.Equal(t, 100, task.Progress)
	assert.Equal(t, result, task.Result)

	entries := f.recorder.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "completed", entries[0].Status)
	assert.Equal(t, 4, entries[0].Images)
}

func TestRunReportsIncreasingSteps(t *testing.T) {
	f := newFixture(t, 3)
	job := Job{Uploads: uploads("a.png", "b.png", "c.png"), Brief: "brief"}
	f.create(t, "task_steps", job)

	_, err := f.driver.Run(context.Background(), "task_steps", job)
	require.NoError(t, err)

	task, _ := f.tracker.Get("task_steps")
	last := 0
	counted := 0
	for _, s := range task.Steps {
		if s.Step == 0 {
			continue
		}
		assert.Greater(t, s.Step, last)
		last = s.Step
		counted++
	}
	assert.Equal(t, TotalSteps(3, 3), counted)
	assert.Equal(t, "Processing 3 file(s)", task.Steps[0].Message)
}

func TestRunFailsTaskOnProviderError(t *testing.T) {
	f := newFixture(t, 2)
	f.images.err = errors.New("ideogram status 500")
	job := Job{Uploads: uploads("a.png"), Brief: "brief"}
	f.create(t, "task_fail", job)

	_, err := f.driver.Run(context.Background(), "task_fail", job)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProviderFailure)

	task, _ := f.tracker.Get("task_fail")
	assert.Equal(t, progress.StatusFailed, task.Status)
	require.NotNil(t, task.Error)
	assert.Contains(t, task.Error.Message, "ideogram status 500")

	entries := f.recorder.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "failed", entries[0].Status)
	assert.Contains(t, entries[0].Error, "a.png")
}

func TestRunRejectsNonImageContent(t *testing.T) {
	f := newFixture(t, 1)
	job := Job{Uploads: []domain.Upload{{Filename: "notes.txt", MIME: "text/plain", Data: []byte("hello")}}}
	f.create(t, "task_txt", job)

	_, err := f.driver.Run(context.Background(), "task_txt", job)
	assert.ErrorIs(t, err, domain.ErrUnsupportedFileType)
	assert.Zero(t, f.prompts.calls.Load())
}

func TestRunUsesCache(t *testing.T) {
	f := newFixture(t, 2)
	job := Job{Uploads: uploads("a.png"), Brief: "brief"}
	f.create(t, "task_1", job)
	f.create(t, "task_2", job)

	first, err := f.driver.Run(context.Background(), "task_1", job)
	require.NoError(t, err)
	second, err := f.driver.Run(context.Background(), "task_2", job)
	require.NoError(t, err)

	assert.Equal(t, first.Results, second.Results)
	assert.EqualValues(t, 1, f.prompts.calls.Load())
	assert.EqualValues(t, 2, f.images.calls.Load())
}

func TestShutdownCancelsBackgroundRuns(t *testing.T) {
	f := newFixture(t, 1)
	f.prompts.block = true
	job := Job{Uploads: uploads("a.png")}
	f.create(t, "task_bg", job)

	f.driver.Start("task_bg", job)
	require.Eventually(t, func() bool { return f.prompts.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.driver.Shutdown(ctx))

	task, _ := f.tracker.Get("task_bg")
	assert.Equal(t, progress.StatusFailed, task.Status)

	f.create(t, "task_late", job)
	f.driver.Start("task_late", job)
	late, _ := f.tracker.Get("task_late")
	assert.Equal(t, progress.StatusFailed, late.Status)
	assert.Contains(t, late.Error.Message, "shutting down")
}

func TestNewDriverValidation(t *testing.T) {
	_, err := NewDriver(Options{})
	assert.Error(t, err)
	_, err = NewDriver(Options{Tracker: progress.NewTracker(progress.Options{})})
	assert.Error(t, err)
}
