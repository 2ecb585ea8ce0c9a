// Package events publishes maintenance lifecycle notifications over AMQP as
// a JSON body. A nil *Publisher is a no-op so index maintenance never blocks
// on a broker being absent.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

const exchange = "" // default exchange, routed by queue name

const (
	queueDocumentEmbedded = "document.events"
	queueIndexRebuilt     = "index.events"
)

// Publisher publishes lifecycle events. Dial returns nil, nil when url is
// empty: the caller should treat a nil *Publisher as "events disabled".
type Publisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	log     *zap.Logger
}

// Dial connects to the broker at url. If url is empty, it returns a nil
// Publisher and a nil error — the conventional "optional collaborator,
// absent" result.
func Dial(url string, log *zap.Logger) (*Publisher, error) {
	if url == "" {
		return nil, nil
	}
	if log == nil {
		log = zap.NewNop()
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &Publisher{conn: conn, channel: ch, log: log}, nil
}

// Close releases the broker connection. Safe to call on a nil Publisher.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

type documentEmbeddedPayload struct {
	Event     string    `json:"event"`
	ParentID  int64     `json:"parent_id"`
	Processed int       `json:"processed"`
	Failed    int        `json:"failed"`
	Timestamp time.Time `json:"timestamp"`
}

type indexRebuiltPayload struct {
	Event     string    `json:"event"`
	Size      int       `json:"size"`
	Timestamp time.Time `json:"timestamp"`
}

// PublishDocumentEmbedded notifies that GenerateForDocument finished for
// parentID. A nil Publisher is a no-op, and a publish failure is logged and
// swallowed — events are a best-effort side channel, not part of the
// generation contract.
func (p *Publisher) PublishDocumentEmbedded(ctx context.Context, parentID int64, processed, failed int) {
	if p == nil {
		return
	}
	payload := documentEmbeddedPayload{
		Event:     "document.embedded",
		ParentID:  parentID,
		Processed: processed,
		Failed:    failed,
		Timestamp: time.Now(),
	}
	p.publish(queueDocumentEmbedded, payload)
}

// PublishIndexRebuilt notifies that RebuildIndex completed successfully.
func (p *Publisher) PublishIndexRebuilt(ctx context.Context, size int) {
	if p == nil {
		return
	}
	payload := indexRebuiltPayload{Event: "index.rebuilt", Size: size, Timestamp: time.Now()}
	p.publish(queueIndexRebuilt, payload)
}

func (p *Publisher) publish(queue string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		p.log.Warn("failed to marshal event payload", zap.Error(err))
		return
	}
	err = p.channel.Publish(exchange, queue, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		p.log.Warn("failed to publish event", zap.String("queue", queue), zap.Error(err))
	}
}
