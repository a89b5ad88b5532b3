// Package channel maps notification channel types to the transports that deliver them.
package channel

import (
	"fmt"
	"sync"

	"github.com/NordCoder/Reminderus/internal/domain/notification"
)

// Registry is the closed set of delivery channels known to the dispatcher.
// Lookups for kinds that are recognised but have no transport fail with
// notification.ErrChannelNotImplemented; unknown kinds fail with ErrUnknownChannel.
type Registry struct {
	mu       sync.RWMutex
	channels map[notification.ChannelType]notification.Channel
}

func NewRegistry() *Registry {
	return &Registry{channels: make(map[notification.ChannelType]notification.Channel)}
}

func (r *Registry) Register(kind notification.ChannelType, ch notification.Channel) error {
	if !kind.Valid() {
		return fmt.Errorf("register %q: %w", kind, notification.ErrUnknownChannel)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[kind] = ch
	return nil
}

func (r *Registry) Lookup(kind notification.ChannelType) (notification.Channel, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%q: %w", kind, notification.ErrUnknownChannel)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[kind]
	if !ok {
		return nil, fmt.Errorf("%s: %w", kind, notification.ErrChannelNotImplemented)
	}
	return ch, nil
}

// Registered lists the kinds that have a transport, in ChannelTypes order.
func (r *Registry) Registered() []notification.ChannelType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]notification.ChannelType, 0, len(r.channels))
	for _, k := range notification.ChannelTypes {
		if _, ok := r.channels[k]; ok {
			out = append(out, k)
		}
	}
	return out
}
