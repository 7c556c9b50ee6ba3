// Package event publishes execution audit events to the message queue.
package event

import (
	"context"
	"encoding/json"
	"time"

	"codequest/internal/common/mq"
	execservice "codequest/internal/execution/service"
	"codequest/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const eventTypeCompleted = "execution.completed"

// CompletedEvent is the audit record emitted after every verdict.
type CompletedEvent struct {
	Type       string   `json:"type"`
	LessonID   string   `json:"lesson_id"`
	UserID     string   `json:"user_id,omitempty"`
	Status     string   `json:"status"`
	DurationMs *float64 `json:"duration_ms,omitempty"`
	CreatedAt  int64    `json:"created_at"`
}

// Publisher publishes execution audit events. A nil Publisher or a nil
// queue is a no-op, so auditing can be switched off in config.
type Publisher struct {
	queue mq.Producer
	topic string
}

// NewPublisher creates an execution event publisher.
func NewPublisher(queue mq.Producer, topic string) *Publisher {
	return &Publisher{queue: queue, topic: topic}
}

// ExecutionCompleted publishes the audit event for one finished
// execution. Fire-and-forget: failures are logged, never returned.
func (p *Publisher) ExecutionCompleted(ctx context.Context, lessonID, userID string, status execservice.Status, durationMs *float64) {
	if p == nil || p.queue == nil || p.topic == "" {
		return
	}

	event := CompletedEvent{
		Type:       eventTypeCompleted,
		LessonID:   lessonID,
		UserID:     userID,
		Status:     string(status),
		DurationMs: durationMs,
		CreatedAt:  time.Now().Unix(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Error(ctx, "marshal execution event failed", zap.Error(err))
		return
	}

	message := mq.NewMessage(payload)
	message.ID = uuid.NewString()
	message.SetHeader("event-type", eventTypeCompleted)

	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.queue.Publish(publishCtx, p.topic, message); err != nil {
		logger.Warn(ctx, "publish execution event failed",
			zap.String("lesson_id", lessonID),
			zap.Error(err),
		)
	}
}
