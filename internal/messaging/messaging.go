package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	PredictionRecordedQueue = "prediction_recorded_queue"
	LabelCorrectedQueue     = "label_corrected_queue"
	RetryDelay              = 5 * time.Second
	MaxConnectRetry         = 5
)

type Event interface {
	Type() string

	Payload() []byte

	Ack() error

	Nack() error

	Reject() error
}

type PredictionRecordedPayload struct {
	EventId uuid.UUID

	ObservationId string
	Label         bool
	RecordedAt    time.Time
}

type LabelCorrectedPayload struct {
	EventId uuid.UUID

	ObservationId string
	Label         bool
	CorrectedAt   time.Time
}

type Publisher interface {
	PublishPredictionRecorded(ctx context.Context, payload PredictionRecordedPayload) error

	PublishLabelCorrected(ctx context.Context, payload LabelCorrectedPayload) error

	Close()
}

type Reciever interface {
	Events() <-chan Event

	Close()
}
