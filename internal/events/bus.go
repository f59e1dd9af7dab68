// Package events carries alert lifecycle events from the emergency core to
// listeners over an in-process watermill pub/sub.
package events

import (
	"context"
	"time"

	"Raksha/internal/domain"
	"Raksha/pkg/errors"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

const (
	TopicAlertTriggered = "alert.triggered"
	TopicAlertResolved  = "alert.resolved"
)

type AlertEvent struct {
	Alert domain.Alert `json:"alert"`
	By    string       `json:"by,omitempty"`
	At    time.Time    `json:"at"`
}

type Handler func(ctx context.Context, topic string, ev AlertEvent) error

type Bus struct {
	pubsub *gochannel.GoChannel
	log    *zap.Logger
	now    func() time.Time
}

func NewBus(lg *zap.Logger) *Bus {
	if lg == nil {
		lg = zap.NewNop()
	}
	ps := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, newZapAdapter(lg.Named("watermill")))
	return &Bus{pubsub: ps, log: lg, now: time.Now}
}

func (b *Bus) AlertTriggered(ctx context.Context, alert domain.Alert) error {
	return b.publish(ctx, TopicAlertTriggered, AlertEvent{Alert: alert, By: string(alert.TriggerType), At: b.now()})
}

func (b *Bus) AlertResolved(ctx context.Context, alert domain.Alert, by string) error {
	return b.publish(ctx, TopicAlertResolved, AlertEvent{Alert: alert, By: by, At: b.now()})
}

func (b *Bus) publish(ctx context.Context, topic string, ev AlertEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Mark(err, errors.KindInvalid, "encode event")
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("alert_id", ev.Alert.ID)
	msg.SetContext(ctx)
	if err := b.pubsub.Publish(topic, msg); err != nil {
		return errors.Mark(err, errors.KindUnavailable, "publish "+topic)
	}
	return nil
}

// Subscribe runs h for every event on topic until ctx ends. A handler error
// nacks the message, which gochannel redelivers; malformed payloads are
// acked and dropped.
func (b *Bus) Subscribe(ctx context.Context, topic string, h Handler) error {
	msgs, err := b.pubsub.Subscribe(ctx, topic)
	if err != nil {
		return errors.Mark(err, errors.KindUnavailable, "subscribe "+topic)
	}
	go func() {
		for msg := range msgs {
			var ev AlertEvent
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				b.log.Warn("dropping malformed event", zap.String("topic", topic), zap.Error(err))
				msg.Ack()
				continue
			}
			if err := h(msg.Context(), topic, ev); err != nil {
				b.log.Warn("event handler failed", zap.String("topic", topic), zap.String("alertId", ev.Alert.ID), zap.Error(err))
				msg.Nack()
				continue
			}
			msg.Ack()
		}
	}()
	return nil
}

func (b *Bus) Close() error {
	return b.pubsub.Close()
}
