package channels

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/groupclaw/internal/bus"
)

// Manager manages all registered channels, handling their lifecycle
// and routing outbound messages to the correct channel.
type Manager struct {
	channels map[string]Channel
	limiters map[string]*rate.Limiter
	bus      *bus.MessageBus
	mu       sync.RWMutex
}

// NewManager creates a new channel manager.
// Channels are registered via RegisterChannel before StartAll.
func NewManager(msgBus *bus.MessageBus) *Manager {
	return &Manager{
		channels: make(map[string]Channel),
		limiters: make(map[string]*rate.Limiter),
		bus:      msgBus,
	}
}

// RegisterChannel adds a channel with an outbound budget of rps messages per
// second (0 = default).
func (m *Manager) RegisterChannel(name string, channel Channel, rps float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[name] = channel
	m.limiters[name] = newOutboundLimiter(rps)
}

// GetChannel returns a channel by name.
func (m *Manager) GetChannel(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	channel, ok := m.channels[name]
	return channel, ok
}

// GetEnabledChannels returns the names of all registered channels, sorted.
func (m *Manager) GetEnabledChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StartAll starts all registered channels. A channel that fails to start is
// logged and skipped.
func (m *Manager) StartAll(ctx context.Context) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.channels) == 0 {
		slog.Warn("no channels enabled")
		return
	}
	for name, channel := range m.channels {
		slog.Info("starting channel", "channel", name)
		if err := channel.Start(ctx); err != nil {
			slog.Error("failed to start channel", "channel", name, "error", err)
		}
	}
}

// StopAll gracefully stops all channels.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for name, channel := range m.channels {
		slog.Info("stopping channel", "channel", name)
		if err := channel.Stop(ctx); err != nil {
			slog.Error("error stopping channel", "channel", name, "error", err)
		}
	}
}

// DispatchOutbound consumes outbound messages from the bus and routes them
// to the matching channel until ctx is done.
func (m *Manager) DispatchOutbound(ctx context.Context) {
	slog.Info("outbound dispatcher started")
	for {
		msg, ok := m.bus.SubscribeOutbound(ctx)
		if !ok {
			slog.Info("outbound dispatcher stopped")
			return
		}
		if err := m.deliver(ctx, msg); err != nil {
			slog.Error("error sending message to channel", "channel", msg.Channel, "chat_id", msg.ChatID, "error", err)
		}
	}
}

func (m *Manager) deliver(ctx context.Context, msg bus.OutboundMessage) error {
	m.mu.RLock()
	channel, exists := m.channels[msg.Channel]
	limiter := m.limiters[msg.Channel]
	m.mu.RUnlock()

	if !exists {
		return fmt.Errorf("channel %s not registered", msg.Channel)
	}
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return channel.Send(ctx, msg)
}

// NotifyApproved tells a newly approved user on channel they may chat now.
func (m *Manager) NotifyApproved(ctx context.Context, channelName, chatID string) error {
	channel, ok := m.GetChannel(channelName)
	if !ok {
		return fmt.Errorf("channel %s not registered", channelName)
	}
	if n, ok := channel.(Notifier); ok {
		return n.NotifyApproved(ctx, chatID)
	}
	return m.deliver(ctx, bus.OutboundMessage{Channel: channelName, ChatID: chatID, Content: ApprovedMessage})
}
