// Package notify delivers alert notifications over email and webhooks.
//
// Channels are independent: one channel's failure is recorded and never
// blocks another channel's attempt. Sends are not retried here; retry
// policy belongs to the caller's schedule, not the channel.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/riskfoundry/kestrel/internal/domain"
)

// ErrChannelUnconfigured signals that a channel has no transport configured.
// The dispatcher skips such sends entirely instead of recording a failure.
var ErrChannelUnconfigured = errors.New("notification channel not configured")

// Channel delivers one notification method.
type Channel interface {
	// Type returns the method type this channel serves.
	Type() string

	// Send delivers the notification for a triggered instance.
	Send(ctx context.Context, method domain.NotificationMethod, rule *domain.AlertRule, instance *domain.AlertInstance) error
}

// Dispatcher fans a triggered alert out to every configured notification
// method and collects per-channel outcome records.
type Dispatcher struct {
	channels map[string]Channel
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher over the given channels.
func NewDispatcher(logger *slog.Logger, channels ...Channel) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	byType := make(map[string]Channel, len(channels))
	for _, ch := range channels {
		byType[ch.Type()] = ch
	}
	return &Dispatcher{channels: byType, logger: logger}
}

// Dispatch attempts every notification method on the rule. Each attempt is
// caught independently; the returned records cover all attempts in method
// order. Unconfigured channels are skipped without a record.
func (d *Dispatcher) Dispatch(ctx context.Context, rule *domain.AlertRule, instance *domain.AlertInstance) []domain.NotificationRecord {
	records := make([]domain.NotificationRecord, 0, len(rule.NotificationMethods))

	for _, method := range rule.NotificationMethods {
		record := domain.NotificationRecord{
			Type:      method.Type,
			Timestamp: time.Now().UTC(),
		}

		err := d.send(ctx, method, rule, instance)
		switch {
		case errors.Is(err, ErrChannelUnconfigured):
			d.logger.Info("skipping unconfigured notification channel",
				"type", method.Type, "ruleId", rule.ID)
			continue
		case err != nil:
			record.Status = domain.NotificationFailed
			record.Error = err.Error()
			d.logger.Warn("notification delivery failed",
				"type", method.Type, "ruleId", rule.ID, "instanceId", instance.ID, "error", err)
		default:
			record.Status = domain.NotificationSent
		}
		records = append(records, record)
	}

	return records
}

// send routes one method to its channel, containing panics so a channel bug
// surfaces as a failed record rather than a crashed sweep.
func (d *Dispatcher) send(ctx context.Context, method domain.NotificationMethod, rule *domain.AlertRule, instance *domain.AlertInstance) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("channel panic: %v", r)
		}
	}()

	ch, ok := d.channels[method.Type]
	if !ok {
		return fmt.Errorf("unknown notification channel type %q", method.Type)
	}
	return ch.Send(ctx, method, rule, instance)
}
