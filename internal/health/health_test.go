package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adgenerator/internal/cache"
	"adgenerator/internal/progress"
)

type fixedProgress struct{ stats progress.Stats }

func (f fixedProgress) Stats() progress.Stats { return f.stats }

type fixedHistory bool

func (f fixedHistory) Enabled() bool { return bool(f) }

func TestCheckHealthy(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		assert.Equal(t, "/v1/models", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	started := time.Now().Add(-time.Minute)
	checker := NewChecker(Options{
		Version:       "2.0.0",
		OpenAIAPIKey:  "sk-test",
		OpenAIBaseURL: srv.URL + "/v1",
		IdeogramKey:   "ideo",
		Cache:         cache.New(cache.Options{}),
		Progress:      fixedProgress{stats: progress.Stats{Active: 2}},
		History:       fixedHistory(false),
		Started:       started,
	})
	report := checker.Check(context.Background())

	assert.Equal(t, StatusHealthy, report.Status)
	assert.Equal(t, "Bearer sk-test", auth)
	assert.Equal(t, http.StatusOK, report.HTTPStatus())
	assert.Equal(t, "development", report.Environment)
	assert.GreaterOrEqual(t, report.Uptime, 59.0)
	assert.Equal(t, StatusHealthy, report.Services["openai"].Status)
	assert.Equal(t, StatusAssumedHealthy, report.Services["ideogram"].Status)
	assert.Equal(t, StatusDisabled, report.Services["history"].Status)
	assert.Equal(t, progress.Stats{Active: 2}, report.Services["progress"].Details)
	assert.Empty(t, report.Errors)
	assert.NotEmpty(t, report.System.GoVersion)
}

func TestCheckDegradedOnOpenAIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	report := NewChecker(Options{OpenAIAPIKey: "bad", OpenAIBaseURL: srv.URL}).Check(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, http.StatusServiceUnavailable, report.HTTPStatus())
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "OpenAI API: status 401")
}

func TestCheckWithoutKeys(t *testing.T) {
	report := NewChecker(Options{}).Check(context.Background())
	assert.Equal(t, StatusHealthy, report.Status)
	assert.Equal(t, StatusWarning, report.Services["openai"].Status)
	assert.Equal(t, StatusWarning, report.Services["ideogram"].Status)
	assert.False(t, report.Services["openai"].Available)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(StatusHealthy))
	assert.Equal(t, 1, ExitCode(StatusWarning))
	assert.Equal(t, 1, ExitCode(StatusDegraded))
	assert.Equal(t, 2, ExitCode(StatusError))
	assert.Equal(t, 2, ExitCode("unknown"))
}
