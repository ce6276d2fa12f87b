package messaging

import (
	"context"
	"encoding/json"
	"log/slog"

	"teamline-chat/internal/websocket"
)

// EventConsumer drains the events exchange into the local websocket hub.
// Each server instance binds its own auto-deleted queue, so every instance
// sees every event and pushes it to the clients it holds.
type EventConsumer struct {
	rmq *RabbitMQ
	hub *websocket.Hub
}

func NewEventConsumer(rmq *RabbitMQ, hub *websocket.Hub) *EventConsumer {
	return &EventConsumer{
		rmq: rmq,
		hub: hub,
	}
}

func (c *EventConsumer) Start(ctx context.Context) error {
	queue, err := c.rmq.channel.QueueDeclare(
		"",    // auto-generated name
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return err
	}

	if err := c.rmq.channel.QueueBind(
		queue.Name,
		"", // fanout ignores the routing key
		eventsExchange,
		false,
		nil,
	); err != nil {
		return err
	}

	msgs, err := c.rmq.channel.Consume(
		queue.Name, // queue
		"",         // consumer
		true,       // auto-ack
		false,      // exclusive
		false,      // no-local
		false,      // no-wait
		nil,        // args
	)
	if err != nil {
		return err
	}

	slog.Info("started consuming message events",
		slog.String("queue", queue.Name),
		slog.String("exchange", eventsExchange))

	go func() {
		for {
			select {
			case <-ctx.Done():
				slog.Info("stopping event consumer")
				return
			case msg, ok := <-msgs:
				if !ok {
					slog.Warn("event consumer channel closed")
					return
				}

				var event MessageEvent
				if err := json.Unmarshal(msg.Body, &event); err != nil {
					slog.Error("error unmarshaling event",
						slog.String("error", err.Error()),
						slog.String("body", string(msg.Body)))
					continue
				}

				c.hub.Broadcast(event.ChannelID, msg.Body)
			}
		}
	}()

	return nil
}
