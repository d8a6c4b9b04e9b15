package derive

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"github.com/imgpipe/image-deriver/internal/model"
	"github.com/imgpipe/image-deriver/internal/naming"
	"github.com/imgpipe/image-deriver/internal/processor"
)

// storage defines the object storage operations the service needs.
type storage interface {
	Load(ctx context.Context, objectName string) (io.ReadCloser, error)
	Save(ctx context.Context, objectName, contentType string, src io.Reader, size int64) error
}

// ResultSink records one settled task result, e.g. into a database.
type ResultSink interface {
	SaveResult(ctx context.Context, eventID uuid.UUID, event model.ObjectEvent, res model.TaskResult) error
}

// Publisher announces one successfully produced derivative, e.g. to a broker
// topic for downstream consumers.
type Publisher interface {
	PublishDerivative(ctx context.Context, eventID uuid.UUID, event model.ObjectEvent, res model.TaskResult) error
}

// Service turns one object-created event into resized derivatives. It is the
// single entry point for every event source; sinks are optional and may be nil.
type Service struct {
	storage   storage
	sink      ResultSink
	publisher Publisher
	marker    string
	sizes     map[string]model.SizeSpec
}

// New creates a Service. sink and publisher may be nil when the deployment
// has no result database or results topic.
func New(st storage, sink ResultSink, publisher Publisher, marker string, sizes map[string]model.SizeSpec) *Service {
	return &Service{
		storage:   st,
		sink:      sink,
		publisher: publisher,
		marker:    marker,
		sizes:     sizes,
	}
}

// ProcessEvent handles one finalized object. Ineligible objects (wrong
// content type, or not marked as an original) are skipped with a log line
// and nil results. For eligible objects the source is read and decoded
// exactly once, then one resize task per configured size runs concurrently
// against the shared decoded frame; every task settles into a TaskResult.
//
// A non-nil error is returned only when the source itself cannot be read or
// decoded. Per-task failures never become an error: partial success is the
// normal degraded outcome, visible in the returned results.
func (s *Service) ProcessEvent(ctx context.Context, event model.ObjectEvent) ([]model.TaskResult, error) {
	eventID := uuid.New()
	log := zlog.Logger.With().
		Str("event_id", eventID.String()).
		Str("bucket", event.Bucket).
		Str("object", event.Name).
		Logger()

	if !naming.IsImage(event.ContentType) {
		log.Info().Str("content_type", event.ContentType).Msg("skipping object: not an image")
		return nil, nil
	}

	if !naming.IsOriginal(event.Name, s.marker) {
		log.Info().Msg("skipping object: not an original")
		return nil, nil
	}

	src, err := s.storage.Load(ctx, event.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to load source object: %w", err)
	}
	defer src.Close()

	// Decode once; every resize task shares the decoded frame read-only.
	img, err := processor.Decode(src, event.ContentType)
	if err != nil {
		return nil, fmt.Errorf("failed to decode source object: %w", err)
	}

	// Fan out one task per size, uncoordinated. Each task catches its own
	// error into its result so a failing size cannot abort its siblings.
	results := make(chan model.TaskResult, len(s.sizes))

	var wg sync.WaitGroup
	for name, size := range s.sizes {
		wg.Add(1)
		go func(name string, size model.SizeSpec) {
			defer wg.Done()
			results <- s.runTask(ctx, event, img, name, size)
		}(name, size)
	}

	wg.Wait()
	close(results)

	// Join: collect every settled task, log it and feed the sinks.
	settled := make([]model.TaskResult, 0, len(s.sizes))
	failed := 0

	for res := range results {
		if res.Err != nil {
			failed++
			log.Error().Err(res.Err).Str("size", res.SizeName).Msg("resize task failed")
		} else {
			log.Info().
				Str("size", res.SizeName).
				Str("path", res.DestPath).
				Msg("derivative uploaded")
		}

		s.deliver(ctx, eventID, event, res)
		settled = append(settled, res)
	}

	log.Info().
		Int("tasks", len(settled)).
		Int("failed", failed).
		Msg("object event processed")

	return settled, nil
}

// runTask performs one resize-and-upload operation and settles it into a
// TaskResult. Errors are captured, never returned.
func (s *Service) runTask(ctx context.Context, event model.ObjectEvent, img image.Image, sizeName string, size model.SizeSpec) model.TaskResult {
	res := model.TaskResult{
		SizeName: sizeName,
		Width:    size.Width,
		Height:   size.Height,
	}

	dst, err := naming.DerivePath(event.Name, s.marker, sizeName)
	if err != nil {
		res.Err = fmt.Errorf("failed to derive destination path: %w", err)
		return res
	}
	res.DestPath = dst

	resized := processor.Resize(img, size.Width, size.Height)

	var buf bytes.Buffer
	if err := processor.Encode(&buf, resized, event.ContentType); err != nil {
		res.Err = fmt.Errorf("failed to encode derivative: %w", err)
		return res
	}

	if err := s.storage.Save(ctx, dst, event.ContentType, &buf, int64(buf.Len())); err != nil {
		res.Err = fmt.Errorf("failed to upload derivative: %w", err)
		return res
	}

	return res
}

// deliver feeds one settled result to the configured sinks. Sink failures
// are logged and dropped: result delivery must never fail the event.
func (s *Service) deliver(ctx context.Context, eventID uuid.UUID, event model.ObjectEvent, res model.TaskResult) {
	if s.sink != nil {
		if err := s.sink.SaveResult(ctx, eventID, event, res); err != nil {
			zlog.Logger.Error().Err(err).Str("size", res.SizeName).Msg("failed to record task result")
		}
	}

	if s.publisher != nil && res.Err == nil {
		if err := s.publisher.PublishDerivative(ctx, eventID, event, res); err != nil {
			zlog.Logger.Error().Err(err).Str("size", res.SizeName).Msg("failed to publish derivative event")
		}
	}
}
