// Package health reports the state of the service and its upstream APIs.
package health

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"adgenerator/internal/cache"
	"adgenerator/internal/progress"
)

const (
	StatusHealthy        = "healthy"
	StatusWarning        = "warning"
	StatusDegraded       = "degraded"
	StatusError          = "error"
	StatusAssumedHealthy = "assumed_healthy"
	StatusDisabled       = "disabled"

	checkTimeout = 5 * time.Second
)

// CacheStats is satisfied by *cache.Store.
type CacheStats interface {
	Stats() cache.Stats
}

// ProgressStats is satisfied by *progress.Tracker.
type ProgressStats interface {
	Stats() progress.Stats
}

// HistoryStatus is satisfied by *history.Store.
type HistoryStatus interface {
	Enabled() bool
}

type Options struct {
	Environment   string
	Version       string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	IdeogramKey   string
	Client        *resty.Client
	Cache         CacheStats
	Progress      ProgressStats
	History       HistoryStatus
	Started       time.Time
	Now           func() time.Time
}

// Service is the state of one dependency.
type Service struct {
	Status       string `json:"status"`
	Message      string `json:"message,omitempty"`
	Available    bool   `json:"available"`
	ResponseTime int64  `json:"responseTime,omitempty"`
	Details      any    `json:"details,omitempty"`
}

type Memory struct {
	Used  uint64 `json:"used"`
	Total uint64 `json:"total"`
	Sys   uint64 `json:"sys"`
}

type System struct {
	Memory     Memory `json:"memory"`
	GoVersion  string `json:"goVersion"`
	Platform   string `json:"platform"`
	Goroutines int    `json:"goroutines"`
}

// Report is the payload of GET /health.
type Report struct {
	Status       string             `json:"status"`
	Timestamp    time.Time          `json:"timestamp"`
	Uptime       float64            `json:"uptime"`
	Environment  string             `json:"environment"`
	Version      string             `json:"version"`
	Services     map[string]Service `json:"services"`
	System       System             `json:"system"`
	Errors       []string           `json:"errors"`
	ResponseTime int64              `json:"responseTime"`
}

// HTTPStatus maps a report status onto the response code.
func (r Report) HTTPStatus() int {
	if r.Status == StatusDegraded || r.Status == StatusError {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

// ExitCode maps a report status onto a monitoring exit code.
func ExitCode(status string) int {
	switch status {
	case StatusHealthy:
		return 0
	case StatusWarning, StatusDegraded:
		return 1
	default:
		return 2
	}
}

type Checker struct {
	opts   Options
	client *resty.Client
	now    func() time.Time
}

func NewChecker(opts Options) *Checker {
	client := opts.Client
	if client == nil {
		client = resty.New()
	}
	client.SetTimeout(checkTimeout)
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if opts.Started.IsZero() {
		opts.Started = now()
	}
	opts.OpenAIBaseURL = strings.TrimRight(opts.OpenAIBaseURL, "/")
	if opts.OpenAIBaseURL == "" {
		opts.OpenAIBaseURL = "https://api.openai.com/v1"
	}
	if opts.Environment == "" {
		opts.Environment = "development"
	}
	return &Checker{opts: opts, client: client, now: now}
}

// Check queries every dependency. Upstream API errors degrade the service;
// any other error is a warning.
func (c *Checker) Check(ctx context.Context) Report {
	start := c.now()
	report := Report{
		Status:      StatusHealthy,
		Timestamp:   start.UTC(),
		Uptime:      start.Sub(c.opts.Started).Seconds(),
		Environment: c.opts.Environment,
		Version:     c.opts.Version,
		Services:    map[string]Service{},
		System:      systemInfo(),
		Errors:      []string{},
	}
	critical := 0

	openai := c.checkOpenAI(ctx, start)
	report.Services["openai"] = openai
	if openai.Status == StatusError {
		report.Errors = append(report.Errors, "OpenAI API: "+openai.Message)
		critical++
	}

	if strings.TrimSpace(c.opts.IdeogramKey) != "" {
		report.Services["ideogram"] = Service{Status: StatusAssumedHealthy, Message: "API key configured", Available: true}
	} else {
		report.Services["ideogram"] = Service{Status: StatusWarning, Message: "API key not configured"}
	}

	if c.opts.Cache != nil {
		stats := c.opts.Cache.Stats()
		report.Services["cache"] = Service{Status: StatusHealthy, Available: true, Details: stats}
	}
	if c.opts.Progress != nil {
		report.Services["progress"] = Service{Status: StatusHealthy, Available: true, Details: c.opts.Progress.Stats()}
	}
	if c.opts.History != nil {
		if c.opts.History.Enabled() {
			report.Services["history"] = Service{Status: StatusHealthy, Available: true}
		} else {
			report.Services["history"] = Service{Status: StatusDisabled, Message: "DATABASE_URL not configured"}
		}
	}

	switch {
	case critical > 0:
		report.Status = StatusDegraded
	case len(report.Errors) > 0:
		report.Status = StatusWarning
	}
	report.ResponseTime = c.now().Sub(start).Milliseconds()
	return report
}

func (c *Checker) checkOpenAI(ctx context.Context, start time.Time) Service {
	if strings.TrimSpace(c.opts.OpenAIAPIKey) == "" {
		return Service{Status: StatusWarning, Message: "API key not configured"}
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(c.opts.OpenAIAPIKey).
		Get(c.opts.OpenAIBaseURL + "/models")
	if err != nil {
		return Service{Status: StatusError, Message: err.Error()}
	}
	if resp.IsError() {
		return Service{Status: StatusError, Message: fmt.Sprintf("status %d", resp.StatusCode())}
	}
	return Service{Status: StatusHealthy, Available: true, ResponseTime: c.now().Sub(start).Milliseconds()}
}

func systemInfo() System {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	const mb = 1024 * 1024
	return System{
		Memory:     Memory{Used: m.HeapAlloc / mb, Total: m.HeapSys / mb, Sys: m.Sys / mb},
		GoVersion:  runtime.Version(),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
		Goroutines: runtime.NumGoroutine(),
	}
}
