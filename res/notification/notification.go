package notification

import (
	"context"
	"errors"
)

// Sink delivers a settlement event to a user. Delivery is best effort.
type Sink interface {
	Notify(ctx context.Context, userID, eventKind string, payload map[string]interface{}) error
}

// Fanout delivers every event to all of its sinks
type Fanout []Sink

func (f Fanout) Notify(ctx context.Context, userID, eventKind string, payload map[string]interface{}) error {
	var errs []error
	for _, sink := range f {
		if err := sink.Notify(ctx, userID, eventKind, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
