package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/SynthonScout/internal/application/screening"
	"github.com/turtacn/SynthonScout/internal/domain/synthon"
	pkgerrors "github.com/turtacn/SynthonScout/pkg/errors"
)

var _ screening.ResultSink = (*ResultPublisher)(nil)

// mockKafkaWriter
type mockKafkaWriter struct {
	writeFunc func(ctx context.Context, msgs ...kafka.Message) error
	written   []kafka.Message
	closed    int
}

func (m *mockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if m.writeFunc != nil {
		if err := m.writeFunc(ctx, msgs...); err != nil {
			return err
		}
	}
	m.written = append(m.written, msgs...)
	return nil
}

func (m *mockKafkaWriter) Close() error {
	m.closed++
	return nil
}

func testResult() *synthon.OptimizationResult {
	frag := func(pos int, id string) *synthon.Synthon {
		return &synthon.Synthon{ReactionID: "rxn-1", Position: pos, FragmentID: id, Code: id}
	}
	return &synthon.OptimizationResult{
		ReactionID:      "rxn-1",
		SeedFragmentIDs: []string{"a", "b"},
		Beam: []*synthon.BeamEntry{
			{ReactionID: "rxn-1", Fragments: []*synthon.Synthon{frag(0, "a"), frag(1, "c")}, Score: 0.8, AtomCount: 20, AssembledCode: "a.c", Round: 2},
			{ReactionID: "rxn-1", Fragments: []*synthon.Synthon{frag(0, "a"), frag(1, "b")}, Score: 0.6, AtomCount: 18, AssembledCode: "a.b"},
		},
	}
}

func newTestPublisher(w WriterInterface) *ResultPublisher {
	p := NewResultPublisherWithWriter(w, ProducerConfig{Brokers: []string{"localhost:9092"}}, "run-1", nil)
	p.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return p
}

func TestResultPublisher_Write(t *testing.T) {
	w := &mockKafkaWriter{}
	p := newTestPublisher(w)

	require.NoError(t, p.Write(context.Background(), testResult()))
	require.Len(t, w.written, 2)
	assert.Equal(t, int64(2), p.Sent())

	msg := w.written[0]
	assert.Equal(t, "rxn-1", string(msg.Key))
	env, row, err := DecodeResultRow(msg.Value)
	require.NoError(t, err)
	assert.Equal(t, "synthonscout", env.Source)
	assert.Equal(t, "run-1", env.Metadata[HeaderRunID])
	assert.Equal(t, SchemaVersion, env.SchemaVersion)
	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, []string{"a", "c"}, row.FragmentIDs)
	assert.Equal(t, 0.8, row.Similarity)
	assert.Equal(t, 2, row.Round)
	assert.Equal(t, []string{"a", "b"}, row.SeedFragmentIDs)

	var headers = map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, EventTypeScreeningResult, headers[HeaderEventType])
	assert.Equal(t, "run-1", headers[HeaderRunID])
}

func TestResultPublisher_EmptyBeamPublishesNothing(t *testing.T) {
	w := &mockKafkaWriter{}
	p := newTestPublisher(w)
	require.NoError(t, p.Write(context.Background(), &synthon.OptimizationResult{ReactionID: "r"}))
	assert.Empty(t, w.written)
}

func TestResultPublisher_WriteError(t *testing.T) {
	w := &mockKafkaWriter{writeFunc: func(context.Context, ...kafka.Message) error {
		return errors.New("broker down")
	}}
	p := newTestPublisher(w)

	err := p.Write(context.Background(), testResult())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodePublishFailed))
	assert.Equal(t, int64(2), p.Failed())
}

func TestResultPublisher_Close(t *testing.T) {
	w := &mockKafkaWriter{}
	p := newTestPublisher(w)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 1, w.closed)

	err := p.Write(context.Background(), testResult())
	assert.ErrorIs(t, err, ErrProducerClosed)
}

func TestValidateProducerConfig(t *testing.T) {
	assert.Error(t, ValidateProducerConfig(ProducerConfig{}))
	assert.Error(t, ValidateProducerConfig(ProducerConfig{Brokers: []string{"b"}, MaxRetries: -1}))
	assert.NoError(t, ValidateProducerConfig(ProducerConfig{Brokers: []string{"b"}}))

	_, err := NewResultPublisher(ProducerConfig{}, "run", nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeValidation))
}

func TestDecodeResultRow_Errors(t *testing.T) {
	_, _, err := DecodeResultRow([]byte("not json"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeSerialization))

	_, _, err = DecodeResultRow([]byte(`{"event_type":"other"}`))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeSerialization))
}
