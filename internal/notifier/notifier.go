// Package notifier fans booking outcomes out to the configured channels.
package notifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/julianbeese/tennis_bot/internal/domain"
)

// Sink delivers a booking confirmation with its calendar document
type Sink interface {
	NotifyBooking(ctx context.Context, conf domain.Confirmation, ics []byte) error
}

// FailureSink additionally reports runs that ended without a booking
type FailureSink interface {
	NotifyFailure(ctx context.Context, result domain.BookingResult) error
}

// Multi sends to every sink and joins their errors
type Multi []Sink

// NotifyBooking implements Sink
func (m Multi) NotifyBooking(ctx context.Context, conf domain.Confirmation, ics []byte) error {
	var errs []error
	for _, s := range m {
		if err := s.NotifyBooking(ctx, conf, ics); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", s, err))
		}
	}
	return errors.Join(errs...)
}

// NotifyFailure forwards to the sinks that report failures
func (m Multi) NotifyFailure(ctx context.Context, result domain.BookingResult) error {
	var errs []error
	for _, s := range m {
		fs, ok := s.(FailureSink)
		if !ok {
			continue
		}
		if err := fs.NotifyFailure(ctx, result); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", s, err))
		}
	}
	return errors.Join(errs...)
}
