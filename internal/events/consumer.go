package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/raximov/telegram-mini-app-project-sub000/internal/cache"
)

// Handler reacts to one decoded event. Returning an error nacks the message.
type Handler func(ctx context.Context, event *Event) error

// Consumer routes messages from a subscriber to handlers keyed by event type.
type Consumer struct {
	router     *message.Router
	subscriber message.Subscriber
	handlers   map[string][]Handler
	logger     *slog.Logger
}

func NewConsumer(subscriber message.Subscriber, logger *slog.Logger) (*Consumer, error) {
	router, err := message.NewRouter(message.RouterConfig{}, watermill.NewSlogLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create event router: %w", err)
	}
	return &Consumer{
		router:     router,
		subscriber: subscriber,
		handlers:   make(map[string][]Handler),
		logger:     logger,
	}, nil
}

func (c *Consumer) On(eventType string, h Handler) {
	c.handlers[eventType] = append(c.handlers[eventType], h)
}

// Run registers the topic handler and blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, topic string) error {
	c.router.AddNoPublisherHandler("consumer."+topic, topic, c.subscriber, c.dispatch)
	return c.router.Run(ctx)
}

// Running is closed once the router has started all handlers.
func (c *Consumer) Running() chan struct{} {
	return c.router.Running()
}

func (c *Consumer) Close() error {
	return c.router.Close()
}

func (c *Consumer) dispatch(msg *message.Message) error {
	var event Event
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		// Poison messages are dropped, retrying cannot fix them.
		c.logger.Error("Dropping undecodable event", "message_uuid", msg.UUID, "error", err)
		return nil
	}

	for _, h := range c.handlers[event.Type] {
		if err := h(msg.Context(), &event); err != nil {
			return fmt.Errorf("handler for %s failed: %w", event.Type, err)
		}
	}
	return nil
}

// SummaryInvalidator drops the cached teacher summary whenever an attempt of
// the test is submitted.
func SummaryInvalidator(cm *cache.CacheManager) Handler {
	return func(ctx context.Context, event *Event) error {
		var data AttemptEventData
		if err := event.DecodeData(&data); err != nil {
			return nil
		}
		cache.InvalidateSummaryCache(ctx, cm, data.TestID)
		return nil
	}
}
