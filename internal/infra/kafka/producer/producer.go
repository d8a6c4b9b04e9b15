package producer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/retry"

	"github.com/imgpipe/image-deriver/internal/config"
	"github.com/imgpipe/image-deriver/internal/model"
)

// DerivativeEvent is the message published for each produced derivative, so
// downstream consumers learn when a size of an original becomes available.
type DerivativeEvent struct {
	EventID     string `json:"event_id"`
	Bucket      string `json:"bucket"`
	SourcePath  string `json:"source_path"`
	SizeName    string `json:"size_name"`
	DestPath    string `json:"dest_path"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ContentType string `json:"content_type"`
}

// Producer publishes derivative-ready events to the results topic.
type Producer struct {
	Client   *wbfkafka.Producer
	strategy retry.Strategy
}

// New creates a Producer for the configured results topic.
func New(cfg *config.Kafka, s retry.Strategy) *Producer {
	return &Producer{
		Client:   wbfkafka.NewProducer(cfg.Brokers, cfg.ResultsTopic),
		strategy: s,
	}
}

// PublishDerivative serializes one successful task result and sends it to
// the results topic. The event ID is used as the message key so all sizes of
// one original land in the same partition.
func (p *Producer) PublishDerivative(ctx context.Context, eventID uuid.UUID, event model.ObjectEvent, res model.TaskResult) error {
	msg := DerivativeEvent{
		EventID:     eventID.String(),
		Bucket:      event.Bucket,
		SourcePath:  event.Name,
		SizeName:    res.SizeName,
		DestPath:    res.DestPath,
		Width:       res.Width,
		Height:      res.Height,
		ContentType: event.ContentType,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal derivative event: %w", err)
	}

	if err := p.Client.SendWithRetry(ctx, p.strategy, []byte(eventID.String()), data); err != nil {
		return fmt.Errorf("failed to send derivative event: %w", err)
	}

	return nil
}
