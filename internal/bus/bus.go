package bus

import (
	"context"
	"fmt"
	"log/slog"
)

const defaultBufferSize = 100

// MessageBus is the in-process queue pair between channels and the host.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage
}

// New creates a MessageBus with buffered queues.
func New() *MessageBus {
	return &MessageBus{
		inbound:  make(chan InboundMessage, defaultBufferSize),
		outbound: make(chan OutboundMessage, defaultBufferSize),
	}
}

// PublishInbound enqueues a message from a channel. Drops with a warning when
// the queue is full so a slow consumer cannot wedge a channel's poll loop.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	select {
	case b.inbound <- msg:
	default:
		slog.Warn("inbound queue full, dropping message", "channel", msg.Channel, "chat_id", msg.ChatID)
	}
}

// ConsumeInbound blocks until a message is available or ctx is done.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case msg := <-b.inbound:
		return msg, true
	case <-ctx.Done():
		return InboundMessage{}, false
	}
}

// PublishOutbound enqueues a reply. Blocks while the queue is full; outbound
// messages carry task results and are not dropped.
func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	b.outbound <- msg
}

// SubscribeOutbound blocks until an outbound message is available or ctx is done.
func (b *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case msg := <-b.outbound:
		return msg, true
	case <-ctx.Done():
		return OutboundMessage{}, false
	}
}

// Send implements Sender by parsing the destination address and queueing an
// outbound message for the matching channel.
func (b *MessageBus) Send(ctx context.Context, destination, text string) error {
	addr, err := ParseAddress(destination)
	if err != nil {
		return err
	}
	msg := OutboundMessage{Channel: addr.Channel, ChatID: addr.ChatID, Content: text}
	select {
	case b.outbound <- msg:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("send to %s: %w", destination, ctx.Err())
	}
}
