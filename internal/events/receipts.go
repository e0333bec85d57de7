// Package events fans finished-turn receipts out to the audit archive and
// the receipts topic.
package events

import (
	"context"
	"encoding/json"
	"time"

	"travel-assistant/internal/common/metrics"
	"travel-assistant/internal/models"
)

const EventTypeTurnAnswered = "turn.answered"

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// Archiver is satisfied by *session.ReceiptArchive.
type Archiver interface {
	Archive(ctx context.Context, threadID string, intent models.Intent, receipts models.Receipts) (models.Receipts, error)
}

// Publisher is satisfied by *aws.SNSClient.
type Publisher interface {
	PublishJSON(ctx context.Context, body string, attrs map[string]string) (string, error)
}

// ReceiptEvent is the message body published per turn.
type ReceiptEvent struct {
	Type      string          `json:"type"`
	ThreadID  string          `json:"threadId"`
	TurnID    string          `json:"turnId"`
	Intent    models.Intent   `json:"intent"`
	Receipts  models.Receipts `json:"receipts"`
	Timestamp time.Time       `json:"timestamp"`
}

// Recorder archives and publishes receipts. Either sink may be nil. Failures
// are logged and counted, never returned: a turn is not failed because its
// audit trail could not be written.
type Recorder struct {
	archive   Archiver
	publisher Publisher
	logger    Logger
}

// NewRecorder creates a Recorder. Either sink may be nil.
func NewRecorder(archive Archiver, publisher Publisher, log Logger) *Recorder {
	return &Recorder{
		archive:   archive,
		publisher: publisher,
		logger:    log.With(map[string]interface{}{"component": "receipts"}),
	}
}

// Record returns the receipts as archived (ID and CreatedAt filled in when
// the archive is configured).
func (r *Recorder) Record(ctx context.Context, threadID, turnID string, intent models.Intent, receipts models.Receipts) models.Receipts {
	if r == nil {
		return receipts
	}

	if r.archive != nil {
		archived, err := r.archive.Archive(ctx, threadID, intent, receipts)
		if err != nil {
			metrics.CollaboratorErrorsTotal.WithLabelValues("receipt_archive").Inc()
			r.logger.Warn("receipt archive failed", map[string]interface{}{
				"threadId": threadID,
				"turnId":   turnID,
				"error":    err.Error(),
			})
		} else {
			receipts = archived
		}
	}

	if r.publisher != nil {
		r.publish(ctx, threadID, turnID, intent, receipts)
	}
	return receipts
}

func (r *Recorder) publish(ctx context.Context, threadID, turnID string, intent models.Intent, receipts models.Receipts) {
	event := ReceiptEvent{
		Type:      EventTypeTurnAnswered,
		ThreadID:  threadID,
		TurnID:    turnID,
		Intent:    intent,
		Receipts:  receipts,
		Timestamp: time.Now().UTC(),
	}
	body, err := json.Marshal(event)
	if err != nil {
		r.logger.Error("receipt event encode failed", map[string]interface{}{"error": err.Error()})
		return
	}

	msgID, err := r.publisher.PublishJSON(ctx, string(body), map[string]string{
		"eventType": EventTypeTurnAnswered,
		"intent":    string(intent),
	})
	if err != nil {
		metrics.CollaboratorErrorsTotal.WithLabelValues("receipt_publish").Inc()
		r.logger.Warn("receipt publish failed", map[string]interface{}{
			"threadId": threadID,
			"turnId":   turnID,
			"error":    err.Error(),
		})
		return
	}
	r.logger.Info("receipt published", map[string]interface{}{
		"threadId":  threadID,
		"turnId":    turnID,
		"messageId": msgID,
	})
}
