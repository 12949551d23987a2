package progress

import (
	"errors"
	"maps"
	"strings"
	"time"
)

// Status enumerates the task lifecycle states.
type Status string

const (
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further status transition can happen.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// DefaultTotalSteps applies when the creation metadata carries no usable totalSteps.
const DefaultTotalSteps = 100

// MetadataTotalSteps is the metadata key read by Create.
const MetadataTotalSteps = "totalSteps"

// Step is one entry of a task's message log.
type Step struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Step      int       `json:"step"`
	Data      any       `json:"data,omitempty"`
}

// TaskError is the failure detail attached by Fail.
type TaskError struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// Task is a snapshot of one tracked unit of background work.
type Task struct {
	ID          string         `json:"id"`
	Status      Status         `json:"status"`
	Progress    int            `json:"progress"`
	TotalSteps  int            `json:"totalSteps"`
	CurrentStep int            `json:"currentStep"`
	Message     string         `json:"message"`
	Steps       []Step         `json:"steps"`
	StartTime   time.Time      `json:"startTime"`
	LastUpdated *time.Time     `json:"lastUpdated,omitempty"`
	EndTime     *time.Time     `json:"endTime,omitempty"`
	Duration    int64          `json:"duration,omitempty"`
	Metadata    map[string]any `json:"metadata"`
	Result      any            `json:"result,omitempty"`
	Error       *TaskError     `json:"error,omitempty"`
}

func (t Task) clone() Task {
	out := t
	out.Steps = append(make([]Step, 0, len(t.Steps)), t.Steps...)
	if t.LastUpdated != nil {
		v := *t.LastUpdated
		out.LastUpdated = &v
	}
	if t.EndTime != nil {
		v := *t.EndTime
		out.EndTime = &v
	}
	if t.Metadata != nil {
		out.Metadata = maps.Clone(t.Metadata)
	}
	if t.Error != nil {
		v := *t.Error
		out.Error = &v
	}
	return out
}

// Update carries the fields a progress report may change. Nil pointers and an
// empty Message leave the corresponding task field untouched.
type Update struct {
	CurrentStep *int
	TotalSteps  *int
	Message     string
	Data        any
}

// At builds the common "reached step n" update.
func At(step int, message string) Update {
	return Update{CurrentStep: &step, Message: message}
}

func percent(current, total int) int {
	if total <= 0 {
		return 0
	}
	// round half up
	p := (current*200 + total) / (total * 2)
	if current < 0 {
		p = 0
	}
	return min(100, max(0, p))
}

func totalStepsFrom(meta map[string]any) int {
	switch v := meta[MetadataTotalSteps].(type) {
	case int:
		if v > 0 {
			return v
		}
	case int64:
		if v > 0 {
			return int(v)
		}
	case float64:
		if v > 0 {
			return int(v)
		}
	}
	return DefaultTotalSteps
}

const unknownError = "unknown error"

// failureFrom never panics; an error whose Error method does (a typed nil
// pointer, say) is recorded as unknown.
func failureFrom(err error) (out *TaskError) {
	if err == nil {
		return &TaskError{Message: unknownError}
	}
	defer func() {
		if recover() != nil {
			out = &TaskError{Message: unknownError}
		}
	}()
	msg := err.Error()
	if msg == "" {
		msg = unknownError
	}
	var chain []string
	for cur := errors.Unwrap(err); cur != nil; cur = errors.Unwrap(cur) {
		chain = append(chain, "caused by: "+cur.Error())
	}
	return &TaskError{Message: msg, Stack: strings.Join(chain, "\n")}
}
