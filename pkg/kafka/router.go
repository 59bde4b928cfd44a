package kafka

import (
	"context"

	"go.uber.org/zap"
)

// Router dispatches messages by topic. It never returns an error: failures are logged and the
// message is treated as consumed.
type Router struct {
	handlers map[string]Handler
	fallback Handler
	logger   *zap.Logger
}

// NewRouter builds an empty router.
func NewRouter(logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{handlers: make(map[string]Handler), logger: logger}
}

// Register binds a handler to one or more topics.
func (r *Router) Register(h Handler, topics ...string) *Router {
	for _, topic := range topics {
		r.handlers[topic] = h
	}
	return r
}

// Fallback sets the handler used for unregistered topics.
func (r *Router) Fallback(h Handler) *Router {
	r.fallback = h
	return r
}

// Topics lists the registered topics.
func (r *Router) Topics() []string {
	topics := make([]string, 0, len(r.handlers))
	for topic := range r.handlers {
		topics = append(topics, topic)
	}
	return topics
}

// Handle implements Handler.
func (r *Router) Handle(ctx context.Context, msg Message) error {
	h, ok := r.handlers[msg.Topic]
	if !ok {
		h = r.fallback
	}
	if h == nil {
		r.logger.Warn("no handler for topic", zap.String("topic", msg.Topic), zap.String("key", msg.Key))
		return nil
	}
	if err := h.Handle(ctx, msg); err != nil {
		r.logger.Error("handler failed", zap.String("topic", msg.Topic), zap.String("key", msg.Key), zap.Error(err))
	}
	return nil
}
