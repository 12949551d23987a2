// Package progress tracks the lifecycle of background tasks and relays every
// change to the live listeners registered for a task.
package progress

import (
	"container/heap"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultGraceWindow is how long a finished task stays queryable.
const DefaultGraceWindow = 5 * time.Minute

// ErrTaskExists is returned by Create when the id is already tracked.
var ErrTaskExists = errors.New("progress: task already exists")

// Sink receives serialized task snapshots. Send must not block; implementations
// that front a slow transport should buffer or drop instead. Sinks are compared
// with == on removal, so use pointer types.
type Sink interface {
	Send(payload []byte) error
}

// Options configures a Tracker. Zero values fall back to defaults.
type Options struct {
	Logger      zerolog.Logger
	GraceWindow time.Duration
	Now         func() time.Time
	NewID       func() string
}

// Tracker owns the task map and the per-task listener lists. One mutex guards
// both; broadcasts happen while it is held so listeners see mutations in order.
type Tracker struct {
	mu          sync.Mutex
	tasks       map[string]*record
	connections map[string][]Sink
	expiry      expiryQueue

	grace  time.Duration
	now    func() time.Time
	newID  func() string
	logger zerolog.Logger
}

type record struct {
	task      Task
	expiresAt time.Time
}

// Stats summarizes the tracker's current contents.
type Stats struct {
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Listeners int `json:"listeners"`
}

// NewTracker builds an empty tracker.
func NewTracker(opts Options) *Tracker {
	t := &Tracker{
		tasks:       make(map[string]*record),
		connections: make(map[string][]Sink),
		grace:       opts.GraceWindow,
		now:         opts.Now,
		newID:       opts.NewID,
		logger:      opts.Logger,
	}
	if t.grace <= 0 {
		t.grace = DefaultGraceWindow
	}
	if t.now == nil {
		t.now = time.Now
	}
	if t.newID == nil {
		t.newID = func() string { return NewTaskID(t.now()) }
	}
	return t
}

// GenerateTaskID returns a fresh opaque task id.
func (t *Tracker) GenerateTaskID() string {
	return t.newID()
}

// NewTaskID formats a task_<unix-ms>_<random> id. The suffix is not
// cryptographically secure; ids are not used as credentials.
func NewTaskID(now time.Time) string {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	suffix := make([]byte, 9)
	for i := range suffix {
		suffix[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return "task_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + string(suffix)
}

// Create starts tracking a task and pushes its initial snapshot to any
// listener that registered before the task existed.
func (t *Tracker) Create(id string, metadata map[string]any) (Task, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.tasks[id]; exists {
		t.logger.Warn().Str("task_id", id).Msg("progress: task id collision rejected")
		return Task{}, fmt.Errorf("%w: %s", ErrTaskExists, id)
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	rec := &record{task: Task{
		ID:         id,
		Status:     StatusStarted,
		TotalSteps: totalStepsFrom(metadata),
		Message:    "Task started",
		Steps:      []Step{},
		StartTime:  t.now(),
		Metadata:   metadata,
	}}
	t.tasks[id] = rec
	t.broadcastLocked(id, rec)

	t.logger.Info().Str("task_id", id).Int("total_steps", rec.task.TotalSteps).Msg("progress: task created")
	return rec.task.clone(), nil
}

// Update applies a progress report. Unknown ids are logged and ignored.
func (t *Tracker) Update(id string, u Update) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.tasks[id]
	if !ok {
		t.logger.Warn().Str("task_id", id).Msg("progress: update for unknown task")
		return
	}
	now := t.now()
	task := &rec.task
	if u.TotalSteps != nil && *u.TotalSteps > 0 {
		task.TotalSteps = *u.TotalSteps
	}
	if u.CurrentStep != nil {
		task.CurrentStep = *u.CurrentStep
		task.Progress = percent(task.CurrentStep, task.TotalSteps)
	}
	if u.Message != "" {
		task.Message = u.Message
		task.Steps = append(task.Steps, Step{
			Timestamp: now,
			Message:   u.Message,
			Step:      task.CurrentStep,
			Data:      u.Data,
		})
	}
	task.LastUpdated = &now
	t.broadcastLocked(id, rec)

	t.logger.Debug().Str("task_id", id).Int("progress", task.Progress).Str("message", u.Message).Msg("progress: updated")
}

// Complete moves the task to completed and arms its expiry.
func (t *Tracker) Complete(id string, result any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.tasks[id]
	if !ok {
		return
	}
	task := &rec.task
	if task.Status == StatusFailed {
		t.logger.Warn().Str("task_id", id).Msg("progress: complete ignored for failed task")
		return
	}
	task.Status = StatusCompleted
	task.Progress = 100
	task.CurrentStep = task.TotalSteps
	task.Result = result
	task.Message = "Task completed successfully"
	t.finishLocked(id, rec)

	t.logger.Info().Str("task_id", id).Int64("duration_ms", task.Duration).Int("steps", len(task.Steps)).Msg("progress: task completed")
}

// Fail moves the task to failed and arms its expiry. A nil error is recorded
// as an unknown failure.
func (t *Tracker) Fail(id string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.tasks[id]
	if !ok {
		return
	}
	task := &rec.task
	if task.Status == StatusCompleted {
		t.logger.Warn().Str("task_id", id).Msg("progress: fail ignored for completed task")
		return
	}
	failure := failureFrom(err)
	task.Status = StatusFailed
	task.Error = failure
	task.Message = "Task failed: " + failure.Message
	t.finishLocked(id, rec)

	t.logger.Error().Str("task_id", id).Str("error", task.Error.Message).Msg("progress: task failed")
}

func (t *Tracker) finishLocked(id string, rec *record) {
	end := t.now()
	rec.task.EndTime = &end
	rec.task.Duration = end.Sub(rec.task.StartTime).Milliseconds()
	rec.expiresAt = end.Add(t.grace)
	heap.Push(&t.expiry, expiryItem{id: id, at: rec.expiresAt})
	t.broadcastLocked(id, rec)
}

// Get returns a copy of the stored snapshot.
func (t *Tracker) Get(id string) (Task, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.tasks[id]
	if !ok {
		return Task{}, false
	}
	return rec.task.clone(), true
}

// List returns copies of every tracked task.
func (t *Tracker) List() []Task {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Task, 0, len(t.tasks))
	for _, rec := range t.tasks {
		out = append(out, rec.task.clone())
	}
	return out
}

// Stats counts tasks by status and registered listeners.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	var s Stats
	for _, rec := range t.tasks {
		switch rec.task.Status {
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		default:
			s.Active++
		}
	}
	for _, sinks := range t.connections {
		s.Listeners += len(sinks)
	}
	return s
}

// AddConnection registers sink for id, which need not exist yet. The current
// snapshot is pushed right away when the task is known.
func (t *Tracker) AddConnection(id string, sink Sink) {
	if sink == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.connections[id] = append(t.connections[id], sink)
	if rec, ok := t.tasks[id]; ok {
		payload, err := json.Marshal(rec.task)
		if err != nil {
			t.logger.Error().Err(err).Str("task_id", id).Msg("progress: encode snapshot")
		} else {
			t.send(id, sink, payload)
		}
	}
	t.logger.Debug().Str("task_id", id).Msg("progress: connection added")
}

// RemoveConnection drops one registration of sink for id.
func (t *Tracker) RemoveConnection(id string, sink Sink) {
	t.mu.Lock()
	defer t.mu.Unlock()

	sinks := t.connections[id]
	for i, s := range sinks {
		if s != sink {
			continue
		}
		sinks = append(sinks[:i:i], sinks[i+1:]...)
		if len(sinks) == 0 {
			delete(t.connections, id)
		} else {
			t.connections[id] = sinks
		}
		t.logger.Debug().Str("task_id", id).Msg("progress: connection removed")
		return
	}
}

// Sweep purges every finished task whose grace window ended before now,
// together with its listener list, and reports how many were removed.
func (t *Tracker) Sweep(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	purged := 0
	for t.expiry.Len() > 0 && !t.expiry[0].at.After(now) {
		item := heap.Pop(&t.expiry).(expiryItem)
		rec, ok := t.tasks[item.id]
		// a re-finished task pushes a newer entry; skip the stale one
		if !ok || !rec.expiresAt.Equal(item.at) {
			continue
		}
		delete(t.tasks, item.id)
		delete(t.connections, item.id)
		purged++
		t.logger.Debug().Str("task_id", item.id).Msg("progress: purged finished task")
	}
	return purged
}

// Cleanup sweeps with the tracker's clock.
func (t *Tracker) Cleanup() int {
	return t.Sweep(t.now())
}

func (t *Tracker) broadcastLocked(id string, rec *record) {
	sinks := t.connections[id]
	if len(sinks) == 0 {
		return
	}
	payload, err := json.Marshal(rec.task)
	if err != nil {
		t.logger.Error().Err(err).Str("task_id", id).Msg("progress: encode snapshot")
		return
	}
	for _, sink := range sinks {
		t.send(id, sink, payload)
	}
}

func (t *Tracker) send(id string, sink Sink, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error().Str("task_id", id).Interface("panic", r).Msg("progress: sink panicked")
		}
	}()
	if err := sink.Send(payload); err != nil {
		t.logger.Error().Err(err).Str("task_id", id).Msg("progress: failed to send update")
	}
}
