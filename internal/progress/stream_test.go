package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamSinkKeepsLatest(t *testing.T) {
	sink := NewStreamSink()
	require.NoError(t, sink.Send([]byte("one")))
	require.NoError(t, sink.Send([]byte("two")))
	require.NoError(t, sink.Send([]byte("three")))

	assert.Equal(t, []byte("three"), <-sink.C())
	select {
	case extra := <-sink.C():
		t.Fatalf("unexpected queued payload %q", extra)
	default:
	}
}

func TestStreamSinkClose(t *testing.T) {
	sink := NewStreamSink()
	sink.Close()
	sink.Close()

	assert.ErrorIs(t, sink.Send([]byte("late")), ErrSinkClosed)
	_, open := <-sink.C()
	assert.False(t, open)
}

func TestStreamSinkAsTrackerListener(t *testing.T) {
	tracker, _ := newTestTracker()
	sink := NewStreamSink()
	tracker.AddConnection("t", sink)
	_, _ = tracker.Create("t", map[string]any{"totalSteps": 2})
	tracker.Update("t", At(1, "one"))
	tracker.Complete("t", "ok")

	payload := <-sink.C()
	assert.Contains(t, string(payload), `"status":"completed"`)
}
