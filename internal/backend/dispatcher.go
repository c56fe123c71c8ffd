package backend

import (
	"context"
	"sort"
	"sync"
)

// Dispatcher routes conversations to the adapter selected by backend
// identifier. Configuration problems are caught here, before any
// network call, so a misconfigured backend never produces a partial
// network side effect.
type Dispatcher struct {
	mu       sync.RWMutex
	adapters map[ID]Adapter
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{adapters: make(map[ID]Adapter)}
}

// Register adds an adapter. Registering the same identifier twice
// replaces the previous adapter.
func (d *Dispatcher) Register(a Adapter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.adapters[a.ID()] = a
}

// Lookup returns the adapter for the identifier, or a configuration
// error if it is unknown.
func (d *Dispatcher) Lookup(id ID) (Adapter, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.adapters[id]
	if !ok {
		return nil, Errf(id, StageConfiguration, "unknown backend %q", string(id))
	}
	return a, nil
}

// Backends lists descriptors for the configured adapters, in stable
// identifier order, for the UI selector.
func (d *Dispatcher) Backends() []Descriptor {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Descriptor, 0, len(d.adapters))
	for _, a := range d.adapters {
		out = append(out, Descriptor{ID: a.ID(), DisplayName: a.Name()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Send dispatches the conversation to the selected backend. The
// adapter's configuration is validated before it is invoked.
func (d *Dispatcher) Send(ctx context.Context, id ID, conv Conversation) (Stream, error) {
	a, err := d.Lookup(id)
	if err != nil {
		return nil, err
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a.StreamReply(ctx, conv)
}
