package queue

import (
	"context"
	"log"

	"studentportal/internal/metrics"
	"studentportal/internal/record"
)

// TypeRecordCreated is published after a wizard writes a record. Body is the record id.
const TypeRecordCreated = "record.created"

// RecordEvents publishes record lifecycle events onto a queue.
type RecordEvents struct {
	Q Queue
}

// RecordCreated publishes a record.created message for s.
func (e RecordEvents) RecordCreated(ctx context.Context, s record.Student) error {
	err := e.Q.Publish(ctx, Message{Type: TypeRecordCreated, Body: []byte(s.ID)})
	if err != nil {
		metrics.RecordEvents.WithLabelValues("failed").Inc()
		return err
	}
	metrics.RecordEvents.WithLabelValues("published").Inc()
	return nil
}

// Invalidator drops a cached listing.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// ConsumeRecordEvents drains q until ctx is done, invalidating cache (when set)
// for every record.created message. It returns the number of events handled.
func ConsumeRecordEvents(ctx context.Context, q Queue, cache Invalidator) (int, error) {
	messages, err := q.Consume(ctx)
	if err != nil {
		return 0, err
	}
	handled := 0
	for msg := range messages {
		if msg.Type != TypeRecordCreated {
			log.Printf("queue: skipping message type %q", msg.Type)
			continue
		}
		id := string(msg.Body)
		if cache != nil {
			if err := cache.Invalidate(ctx); err != nil {
				log.Printf("record %s: cache invalidate failed: %v", id, err)
			}
		}
		metrics.RecordEvents.WithLabelValues("consumed").Inc()
		log.Printf("record %s created", id)
		handled++
	}
	return handled, nil
}
