package service

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	commonmq "interview_server/server/common/infra/mq"
	commonlog "interview_server/server/common/log"
	"interview_server/server/fileman/domain"
)

const (
	fileEventsExchange = "file.events"
	fileEventsChannel  = "file:events"
)

const (
	EventFileUploaded = "file.uploaded"
	EventFileDeleted  = "file.deleted"
	EventFileShared   = "file.shared"
	EventFileAnalyzed = "file.analyzed"
)

type FileEvent struct {
	Kind         string              `json:"kind"`
	FileID       string              `json:"file_id"`
	OwnerID      string              `json:"owner_id"`
	ActorID      string              `json:"actor_id,omitempty"`
	OriginalName string              `json:"original_name,omitempty"`
	Category     domain.FileCategory `json:"category,omitempty"`
	RecipientIDs []string            `json:"recipient_ids"`
	At           time.Time           `json:"at"`
}

// EventPublisher fans file events out to the durable topic exchange for
// downstream consumers and to redis pub/sub for the in-process websocket hub.
// Event delivery is best-effort; a broker hiccup never fails the request that
// produced the event.
type EventPublisher struct {
	channel *amqp.Channel
	redis   *redis.Client
}

func NewEventPublisher(conn *amqp.Connection, rdb *redis.Client) (*EventPublisher, error) {
	var ch *amqp.Channel
	if conn != nil {
		declared, err := commonmq.DeclareTopicExchange(conn, fileEventsExchange)
		if err != nil {
			return nil, err
		}
		ch = declared
	}
	return &EventPublisher{channel: ch, redis: rdb}, nil
}

func (p *EventPublisher) PublishFileEvent(ctx context.Context, event FileEvent) {
	if p == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now()
	}
	if len(event.RecipientIDs) == 0 && event.OwnerID != "" {
		event.RecipientIDs = []string{event.OwnerID}
	}
	body, err := json.Marshal(event)
	if err != nil {
		commonlog.Errorf("marshal file event %s: %v", event.Kind, err)
		return
	}

	if p.channel != nil {
		err := p.channel.PublishWithContext(ctx, fileEventsExchange, event.Kind, false, false, amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
			Timestamp:   event.At,
		})
		if err != nil {
			commonlog.Warnf("publish file event %s to mq: %v", event.Kind, err)
		}
	}
	if p.redis != nil {
		if err := p.redis.Publish(ctx, fileEventsChannel, body).Err(); err != nil {
			commonlog.Warnf("publish file event %s to redis: %v", event.Kind, err)
		}
	}
}

func (p *EventPublisher) Close() {
	if p == nil || p.channel == nil {
		return
	}
	_ = p.channel.Close()
}
