package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/couchcryptid/wsjtx-influx-etl/internal/domain"
)

// NamedLoader labels a sink for error messages.
type NamedLoader struct {
	Name   string
	Loader BatchLoader
}

// FanoutLoader writes every batch to each sink in order. The batch fails if
// any sink fails, so the queue keeps the entries and a retry reaches every
// sink again.
type FanoutLoader struct {
	sinks []NamedLoader
}

// NewFanoutLoader creates a FanoutLoader over sinks.
func NewFanoutLoader(sinks ...NamedLoader) *FanoutLoader {
	return &FanoutLoader{sinks: sinks}
}

func (f *FanoutLoader) LoadBatch(ctx context.Context, points []domain.Point) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Loader.LoadBatch(ctx, points); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Reset resets every sink that supports it.
func (f *FanoutLoader) Reset(ctx context.Context) error {
	var errs []error
	for _, s := range f.sinks {
		r, ok := s.Loader.(Resetter)
		if !ok {
			continue
		}
		if err := r.Reset(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}
