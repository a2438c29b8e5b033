package provenance

import (
	"context"
	"errors"
	"strings"
)

// Sink stores finished run records. Persist failures never influence a
// run's outcome; the caller logs them and moves on.
type Sink interface {
	Name() string
	Persist(ctx context.Context, rec *Record) error
}

// MultiSink fans a record out to every configured sink. One failing sink
// does not stop the others; the joined error reports all failures.
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Name() string {
	names := make([]string, len(m.sinks))
	for i, s := range m.sinks {
		names[i] = s.Name()
	}
	return "multi[" + strings.Join(names, ",") + "]"
}

func (m *MultiSink) Persist(ctx context.Context, rec *Record) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Persist(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
