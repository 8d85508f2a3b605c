package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"underwriting-service/internal/engine"

	amqp "github.com/rabbitmq/amqp091-go"
)

// UnderwritingQueue carries every accounting transition out of the service.
const UnderwritingQueue = "underwriting_events"

// TransitionPublisher forwards engine transition records to RabbitMQ. It
// satisfies the engine's emitter contract: publishing is advisory, so a
// broker failure is logged and counted but never surfaces to the caller.
type TransitionPublisher struct {
	conn              *RabbitMQConnection
	messagesPublished atomic.Int64
	messagesFailed    atomic.Int64
}

func NewTransitionPublisher(conn *RabbitMQConnection) (*TransitionPublisher, error) {
	_, err := conn.Channel.QueueDeclare(
		UnderwritingQueue, // queue name
		true,              // durable
		false,             // delete when unused
		false,             // exclusive
		false,             // no-wait
		nil,               // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	return &TransitionPublisher{conn: conn}, nil
}

func (p *TransitionPublisher) Emit(ev engine.Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		p.messagesFailed.Add(1)
		slog.Error("failed to marshal transition event", "type", ev.Type, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = p.conn.Channel.PublishWithContext(
		ctx,
		"",                // exchange
		UnderwritingQueue, // routing key (queue name)
		false,             // mandatory
		false,             // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		p.messagesFailed.Add(1)
		slog.Error("failed to publish transition event", "type", ev.Type, "entity_id", ev.EntityID, "error", err)
		return
	}

	p.messagesPublished.Add(1)
}

// GetMetrics returns publisher counters for the health endpoint.
func (p *TransitionPublisher) GetMetrics() map[string]any {
	return map[string]any{
		"messages_published": p.messagesPublished.Load(),
		"messages_failed":    p.messagesFailed.Load(),
		"queue":              UnderwritingQueue,
	}
}

// HealthCheck reports whether the underlying connection is still open.
func (p *TransitionPublisher) HealthCheck() bool {
	return p.conn != nil && p.conn.Connection != nil && !p.conn.Connection.IsClosed()
}
