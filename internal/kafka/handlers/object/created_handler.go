package object

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"github.com/wb-go/wbf/zlog"

	"github.com/imgpipe/image-deriver/internal/model"
)

// service defines the interface for handling object-created events.
type service interface {
	ProcessEvent(ctx context.Context, event model.ObjectEvent) ([]model.TaskResult, error)
}

// CreatedHandler handles broker messages describing finalized bucket objects.
// Deployments that route storage notifications through Kafka publish one
// message per created object; this handler feeds each into the derive service.
type CreatedHandler struct {
	service service
}

// NewCreatedHandler creates a new handler with the given service.
func NewCreatedHandler(s service) *CreatedHandler {
	return &CreatedHandler{service: s}
}

// Handle processes one object-created message. A message that cannot be
// unmarshaled is a poison message and surfaces as an error so the consumer
// loop can log and skip it. Processing failures are logged and swallowed
// here: a permanently broken object must not wedge the topic in a retry loop.
func (h *CreatedHandler) Handle(ctx context.Context, msg kafka.Message) error {
	var event model.ObjectEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("unmarshal object event: %w", err)
	}

	results, err := h.service.ProcessEvent(ctx, event)
	if err != nil {
		zlog.Logger.Error().Err(err).Str("object", event.Name).Msg("failed to process object event")
		return nil
	}

	zlog.Logger.Info().
		Str("object", event.Name).
		Int("tasks", len(results)).
		Msg("object event handled")

	return nil
}
