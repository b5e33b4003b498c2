package messaging

import (
	"context"
	"encoding/json"
	"fmt"
)

type inMemoryEvent struct {
	queue   string
	payload []byte
}

func (e *inMemoryEvent) Type() string {
	return e.queue
}

func (e *inMemoryEvent) Payload() []byte {
	return e.payload
}

func (e *inMemoryEvent) Ack() error {
	return nil
}

func (e *inMemoryEvent) Nack() error {
	return nil
}

func (e *inMemoryEvent) Reject() error {
	return nil
}

type InMemoryQueue struct {
	events chan Event
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		events: make(chan Event, 100),
	}
}

func (q *InMemoryQueue) publishEventInternal(queue string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	// Publishing must never block a request handler. When nothing consumes the
	// queue and the buffer fills, the event is dropped and reported instead.
	select {
	case q.events <- &inMemoryEvent{queue: queue, payload: data}:
		return nil
	default:
		return fmt.Errorf("in memory queue is full, dropping %s event", queue)
	}
}

func (q *InMemoryQueue) PublishPredictionRecorded(ctx context.Context, payload PredictionRecordedPayload) error {
	return q.publishEventInternal(PredictionRecordedQueue, payload)
}

func (q *InMemoryQueue) PublishLabelCorrected(ctx context.Context, payload LabelCorrectedPayload) error {
	return q.publishEventInternal(LabelCorrectedQueue, payload)
}

func (q *InMemoryQueue) Events() <-chan Event {
	return q.events
}

func (q *InMemoryQueue) Close() {
	if q.events != nil {
		close(q.events)
		q.events = nil
	}
}
