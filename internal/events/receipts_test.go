package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"travel-assistant/internal/models"
)

type TestLogger struct {
	t *testing.T
}

func (l *TestLogger) Info(msg string, fields map[string]interface{})  { l.t.Logf("INFO: %s %v", msg, fields) }
func (l *TestLogger) Warn(msg string, fields map[string]interface{})  { l.t.Logf("WARN: %s %v", msg, fields) }
func (l *TestLogger) Error(msg string, fields map[string]interface{}) { l.t.Logf("ERROR: %s %v", msg, fields) }
func (l *TestLogger) With(fields map[string]interface{}) Logger       { return l }

type fakeArchive struct {
	calls int
	err   error
}

func (f *fakeArchive) Archive(ctx context.Context, threadID string, intent models.Intent, receipts models.Receipts) (models.Receipts, error) {
	f.calls++
	if f.err != nil {
		return receipts, f.err
	}
	receipts.ID = "rcpt-1"
	return receipts, nil
}

type fakePublisher struct {
	body  string
	attrs map[string]string
	err   error
}

func (f *fakePublisher) PublishJSON(ctx context.Context, body string, attrs map[string]string) (string, error) {
	f.body = body
	f.attrs = attrs
	return "msg-1", f.err
}

func TestRecorder_ArchivesThenPublishes(t *testing.T) {
	archive := &fakeArchive{}
	pub := &fakePublisher{}
	r := NewRecorder(archive, pub, &TestLogger{t: t})

	out := r.Record(context.Background(), "t-1", "turn-1", models.IntentWeather, models.Receipts{Reply: "Sunny."})

	assert.Equal(t, "rcpt-1", out.ID)
	assert.Equal(t, 1, archive.calls)
	assert.Equal(t, "weather", pub.attrs["intent"])

	var event ReceiptEvent
	require.NoError(t, json.Unmarshal([]byte(pub.body), &event))
	assert.Equal(t, EventTypeTurnAnswered, event.Type)
	assert.Equal(t, "rcpt-1", event.Receipts.ID)
	assert.Equal(t, "turn-1", event.TurnID)
}

func TestRecorder_FailuresAreSwallowed(t *testing.T) {
	archive := &fakeArchive{err: errors.New("db down")}
	pub := &fakePublisher{err: errors.New("throttled")}
	r := NewRecorder(archive, pub, &TestLogger{t: t})

	out := r.Record(context.Background(), "t-1", "turn-1", models.IntentPolicy, models.Receipts{Reply: "ok"})
	assert.Empty(t, out.ID)
	assert.Equal(t, "ok", out.Reply)
	assert.NotEmpty(t, pub.body, "publish still runs after an archive failure")
}

func TestRecorder_NilSinks(t *testing.T) {
	r := NewRecorder(nil, nil, &TestLogger{t: t})
	out := r.Record(context.Background(), "t-1", "turn-1", models.IntentPolicy, models.Receipts{Reply: "ok"})
	assert.Equal(t, "ok", out.Reply)

	var nilRecorder *Recorder
	assert.NotPanics(t, func() {
		nilRecorder.Record(context.Background(), "t", "x", models.IntentUnknown, models.Receipts{})
	})
}
