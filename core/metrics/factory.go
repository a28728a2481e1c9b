package metrics

import (
	"errors"
	"fmt"
	"io"

	"github.com/kilianp07/smartcharge/core/factory"
)

// sinks holds the builders for the metrics.sinks[].type values.
var sinks = factory.NewRegistry[Sink]()

// RegisterSink makes a sink type available to NewSink.
func RegisterSink(name string, b factory.Builder[Sink]) error {
	return sinks.Register(name, b)
}

// SinkTypes lists the registered sink types.
func SinkTypes() []string { return sinks.Types() }

// NewSink builds the configured sinks. No entries yields a NopSink and a
// single entry is returned as is. When one entry fails the sinks built so far
// are closed.
func NewSink(specs []factory.Spec) (Sink, error) {
	built := make([]Sink, 0, len(specs))
	for i, spec := range specs {
		s, err := sinks.Build(spec)
		if err != nil {
			_ = CloseSink(NewMultiSink(built...))
			return nil, fmt.Errorf("metrics sink %d (%s): %w", i, spec.Type, err)
		}
		built = append(built, s)
	}
	switch len(built) {
	case 0:
		return NopSink{}, nil
	case 1:
		return built[0], nil
	}
	return NewMultiSink(built...), nil
}

// CloseSink releases s and, for a MultiSink, every sink it wraps.
func CloseSink(s Sink) error {
	switch v := s.(type) {
	case *MultiSink:
		var errs []error
		for _, inner := range v.Sinks {
			errs = append(errs, CloseSink(inner))
		}
		return errors.Join(errs...)
	case io.Closer:
		return v.Close()
	case interface{ Close() }:
		v.Close()
	}
	return nil
}
