package server

import (
	"go.uber.org/zap"
)

// Registry maps channel names to channels, created lazily on first
// reference. It has exactly one caller, the accept loop, so it needs no
// locking of its own; the concurrency surface lives entirely in Channel.
type Registry struct {
	channels map[string]*Channel
	log      *zap.SugaredLogger
}

// NewRegistry returns an empty registry.
func NewRegistry(log *zap.SugaredLogger) *Registry {
	return &Registry{channels: make(map[string]*Channel), log: log}
}

// Fetch returns the channel named name, creating it if this is the first
// reference.
func (r *Registry) Fetch(name string) *Channel {
	if ch, ok := r.channels[name]; ok {
		return ch
	}

	r.log.Infow("creating new channel", "channel", name)
	ch := newChannel(r.log.With("channel", name))
	r.channels[name] = ch
	return ch
}
