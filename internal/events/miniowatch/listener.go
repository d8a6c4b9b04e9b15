package miniowatch

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/minio/minio-go/v7/pkg/notification"
	"github.com/wb-go/wbf/zlog"

	"github.com/imgpipe/image-deriver/internal/model"
)

// resubscribeDelay is slept before reopening a closed notification stream.
const resubscribeDelay = time.Second

// events is the storage-side subscription to object-created notifications.
type events interface {
	Created(ctx context.Context) <-chan notification.Info
}

// handler processes one object event.
type handler interface {
	ProcessEvent(ctx context.Context, event model.ObjectEvent) ([]model.TaskResult, error)
}

// Listener subscribes to bucket notifications and feeds every created object
// into the derive service. This is the direct storage-finalize trigger; no
// broker is involved.
type Listener struct {
	events  events
	handler handler
}

// New creates a Listener over the given notification source and handler.
func New(e events, h handler) *Listener {
	return &Listener{events: e, handler: h}
}

// Listen runs until ctx is canceled. Every failure — transport errors,
// malformed records, processing errors — is logged and swallowed so one bad
// object can never stall the stream.
func (l *Listener) Listen(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	zlog.Logger.Info().Msg("starting bucket notification listener")

	ch := l.events.Created(ctx)

	for {
		select {
		case <-ctx.Done():
			zlog.Logger.Info().Msg("shutdown signal received, stopping listener")
			return

		case info, ok := <-ch:
			if !ok {
				if ctx.Err() != nil {
					zlog.Logger.Info().Msg("notification stream closed, stopping listener")
					return
				}
				// Server-side close: back off and resubscribe.
				zlog.Logger.Warn().Msg("notification stream closed, resubscribing")
				time.Sleep(resubscribeDelay)
				ch = l.events.Created(ctx)
				continue
			}

			if info.Err != nil {
				zlog.Logger.Err(info.Err).Msg("bucket notification error")
				continue
			}

			for _, record := range info.Records {
				event, err := eventFromRecord(record)
				if err != nil {
					zlog.Logger.Err(err).Msg("failed to decode notification record")
					continue
				}

				if _, err := l.handler.ProcessEvent(ctx, event); err != nil {
					zlog.Logger.Error().Err(err).Str("object", event.Name).Msg("failed to process storage event")
				}
			}
		}
	}
}

// eventFromRecord translates one notification record into an ObjectEvent.
// Object keys arrive query-escaped from the notification API.
func eventFromRecord(record notification.Event) (model.ObjectEvent, error) {
	key, err := url.QueryUnescape(record.S3.Object.Key)
	if err != nil {
		return model.ObjectEvent{}, fmt.Errorf("unescape object key %q: %w", record.S3.Object.Key, err)
	}

	return model.ObjectEvent{
		Bucket:      record.S3.Bucket.Name,
		Name:        key,
		ContentType: record.S3.Object.ContentType,
	}, nil
}
