package kafka

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/SynthonScout/internal/domain/synthon"
	"github.com/turtacn/SynthonScout/pkg/errors"
)

// Topic Constants
const (
	TopicScreeningResults = "synthonscout.results"
)

const (
	EventTypeScreeningResult = "screening.result"
	SchemaVersion            = "1"
	HeaderRunID              = "run_id"
	HeaderEventType          = "event_type"
)

// EventEnvelope standardizes event messages.
type EventEnvelope struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	Source        string            `json:"source"`
	Timestamp     time.Time         `json:"timestamp"`
	SchemaVersion string            `json:"schema_version"`
	Payload       json.RawMessage   `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// NewResultEnvelope wraps one result row.
func NewResultEnvelope(source, runID string, row synthon.ResultRow, now time.Time) (*EventEnvelope, error) {
	payload, err := json.Marshal(row)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal result row")
	}
	env := &EventEnvelope{
		EventID:       uuid.NewString(),
		EventType:     EventTypeScreeningResult,
		Source:        source,
		Timestamp:     now.UTC(),
		SchemaVersion: SchemaVersion,
		Payload:       payload,
	}
	if runID != "" {
		env.Metadata = map[string]string{HeaderRunID: runID}
	}
	return env, nil
}

// DecodeResultRow extracts the row from a serialized envelope.
func DecodeResultRow(data []byte) (*EventEnvelope, synthon.ResultRow, error) {
	var env EventEnvelope
	var row synthon.ResultRow
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, row, errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal envelope")
	}
	if env.EventType != EventTypeScreeningResult {
		return &env, row, errors.New(errors.ErrCodeSerialization, "unexpected event type").WithDetail(env.EventType)
	}
	if err := json.Unmarshal(env.Payload, &row); err != nil {
		return &env, row, errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal result row")
	}
	return &env, row, nil
}
