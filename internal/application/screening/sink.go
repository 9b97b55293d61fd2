package screening

import (
	"context"

	"github.com/turtacn/SynthonScout/internal/domain/synthon"
)

// ResultSink receives finished optimization results.
type ResultSink interface {
	Write(ctx context.Context, result *synthon.OptimizationResult) error
	Close() error
}

// MultiSink fans results out to several sinks in order.
type MultiSink struct {
	sinks []ResultSink
}

// NewMultiSink creates a MultiSink; nil sinks are skipped.
func NewMultiSink(sinks ...ResultSink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Write stops at the first sink that fails.
func (m *MultiSink) Write(ctx context.Context, result *synthon.OptimizationResult) error {
	for _, s := range m.sinks {
		if err := s.Write(ctx, result); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink and returns the first error.
func (m *MultiSink) Close() error {
	var first error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
