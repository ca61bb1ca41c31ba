package amqp

import (
	"context"
	"time"

	"valuta/internal/core"
	applog "valuta/internal/log"
	"valuta/internal/state"
)

// Publisher sends rates updated notifications.
type Publisher interface {
	PublishRatesUpdated(ctx context.Context, msg *RatesUpdatedMessage) error
}

// Forward publishes a message each time a snapshot carries a rate table not
// seen before. It returns when ctx ends or snapshots is closed. Publish
// failures are logged and do not stop forwarding.
func Forward(ctx context.Context, snapshots <-chan state.Snapshot, pub Publisher, logger *applog.Logger) error {
	if logger == nil {
		logger = applog.Discard()
	}
	logger = logger.WithComponent(applog.ComponentAMQP)

	var last *core.RateTable
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-snapshots:
			if !ok {
				return nil
			}
			if snap.Rates == nil || snap.Rates == last {
				continue
			}
			last = snap.Rates
			msg := NewRatesUpdatedMessage(snap.Rates, time.Now().UTC())
			if err := pub.PublishRatesUpdated(ctx, msg); err != nil {
				logger.WarnContext(ctx, "Failed to publish rates update",
					applog.FieldError, err.Error(),
					applog.FieldBaseCode, msg.BaseCode,
					applog.FieldOperation, applog.OpPublish)
			}
		}
	}
}
