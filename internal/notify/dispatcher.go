package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Dispatcher is the name-keyed provider registry. It is constructed once at
// process start and passed by handle to the engine and the HTTP layer — there
// is deliberately no package-level default instance.
//
// Register is the extension seam: future channels (email, SMS) plug in
// without any registry change.
type Dispatcher struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewDispatcher creates an empty registry.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{providers: make(map[string]Provider)}
}

// Register adds p under p.Name(), replacing any previous provider with the
// same name.
func (d *Dispatcher) Register(p Provider) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.providers[p.Name()]; ok {
		slog.Warn("notify: replacing registered provider", "provider", p.Name())
	}
	d.providers[p.Name()] = p
}

// Provider returns the provider registered under name. Lookup is a
// case-sensitive exact match.
func (d *Dispatcher) Provider(name string) (Provider, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.providers[name]
	return p, ok
}

// Names returns the registered provider names, for status surfaces.
func (d *Dispatcher) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.providers))
	for n := range d.providers {
		out = append(out, n)
	}
	return out
}

// Send routes p to the named provider. An unregistered name is a delivery
// failure, not an error: the caller always gets a Result.
func (d *Dispatcher) Send(ctx context.Context, provider string, p Payload) Result {
	pr, ok := d.Provider(provider)
	if !ok {
		return Result{Success: false, Error: fmt.Sprintf("unknown provider %q", provider)}
	}
	return pr.Send(ctx, p)
}
