package leads

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Sink delivers a lead somewhere outside the request path.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, lead Lead) error
}

// LogSink writes the lead as a structured log line.
type LogSink struct {
	Logger zerolog.Logger
}

func (LogSink) Name() string { return "log" }

func (s LogSink) Deliver(_ context.Context, l Lead) error {
	s.Logger.Info().
		Str("lead_id", l.ID).
		Str("customer", l.Name).
		Str("company", l.Company).
		Str("email", l.Email).
		Str("phone", l.Phone).
		Str("filename", l.Filename).
		Int("quantity", l.Quantity).
		Str("technology", l.Technology).
		Str("material", l.Material).
		Str("finish", l.Finish).
		Str("delivery", l.Delivery).
		Float64("estimated_price", l.EstimatedPrice).
		Str("surface_structure", l.SurfaceStructure).
		Str("color_request", l.ColorRequest).
		Str("application_use", l.ApplicationUse).
		Str("notes", l.AdditionalNotes).
		Msg("new quote request")
	return nil
}

// SinkError reports a failed delivery to one sink.
type SinkError struct {
	Sink string
	Err  error
}

func (e *SinkError) Error() string { return fmt.Sprintf("deliver to %s: %v", e.Sink, e.Err) }
func (e *SinkError) Unwrap() error { return e.Err }

// Fanout delivers to every sink concurrently. One failing sink does not
// stop the others; all failures are joined into the returned error.
type Fanout struct {
	Sinks []Sink
}

func (Fanout) Name() string { return "fanout" }

func (f Fanout) Deliver(ctx context.Context, l Lead) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, s := range f.Sinks {
		g.Go(func() error {
			if err := s.Deliver(ctx, l); err != nil {
				mu.Lock()
				errs = append(errs, &SinkError{Sink: s.Name(), Err: err})
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
