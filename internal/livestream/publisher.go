package livestream

import (
	"context"

	"Raksha/internal/ports"
	"Raksha/pkg/errors"
	"Raksha/pkg/websocket"

	"go.uber.org/zap"
)

// Tap yields raw capture bytes; the media manager implements it.
type Tap interface {
	Subscribe(size int) (<-chan []byte, func())
}

// Publisher pushes local media over a channel.
type Publisher interface {
	// Publish streams until ctx ends or the tap closes.
	Publish(ctx context.Context, ch ports.Channel) error
	// Signal handles inbound offer, answer and candidate messages.
	Signal(ctx context.Context, ch ports.Channel, sig websocket.Signal) error
}

// ChunkPublisher forwards capture bytes as binary frames. The relay hands
// them to viewers, who feed them to a MediaSource.
type ChunkPublisher struct {
	tap    Tap
	buffer int
	log    *zap.Logger
}

func NewChunkPublisher(tap Tap, buffer int, lg *zap.Logger) *ChunkPublisher {
	if buffer <= 0 {
		buffer = 256
	}
	if lg == nil {
		lg = zap.NewNop()
	}
	return &ChunkPublisher{tap: tap, buffer: buffer, log: lg}
}

func (p *ChunkPublisher) Publish(ctx context.Context, ch ports.Channel) error {
	frames, unsubscribe := p.tap.Subscribe(p.buffer)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case data, ok := <-frames:
			if !ok {
				return nil
			}
			if err := ch.SendBinary(ctx, data); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return errors.Wrap(err, "publish chunk")
			}
		}
	}
}

// Signal ignores negotiation; chunk viewers need none.
func (p *ChunkPublisher) Signal(context.Context, ports.Channel, websocket.Signal) error {
	return nil
}
