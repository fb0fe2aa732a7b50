package history

import (
	"context"
	"errors"
	"io"

	"golang.org/x/sync/errgroup"
)

// Multi fans an event out to every sink concurrently.
type Multi []Sink

// Send delivers e to all sinks and joins their errors.
func (m Multi) Send(ctx context.Context, e Event) error {
	if len(m) == 0 {
		return nil
	}
	errs := make([]error, len(m))
	var g errgroup.Group
	for i, s := range m {
		g.Go(func() error {
			errs[i] = s.Send(ctx, e)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Close closes every sink that implements io.Closer.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if c, ok := s.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
