package channel

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/parleyhq/parley/pkg/message"
)

// Dispatcher fans outbound messages out to whichever channel each one
// names. It satisfies router.ResponseSender, so the router hands it every
// reply it produces.
type Dispatcher struct {
	mu     sync.RWMutex
	byName map[string]Channel
}

// NewDispatcher returns a Dispatcher with no channels registered.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{byName: make(map[string]Channel)}
}

// Register adds ch under name. Registering a taken name returns
// ErrDuplicateChannel.
func (d *Dispatcher) Register(name string, ch Channel) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, taken := d.byName[name]; taken {
		return fmt.Errorf("%w: %s", ErrDuplicateChannel, name)
	}
	d.byName[name] = ch
	return nil
}

// Get returns the channel registered under name.
func (d *Dispatcher) Get(name string) (Channel, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ch, ok := d.byName[name]
	return ch, ok
}

// Send delivers msg to the channel named by msg.Channel, or returns
// ErrNoChannel when nothing is registered under that name. The lock is
// not held during delivery.
func (d *Dispatcher) Send(ctx context.Context, msg message.OutboundMessage) error {
	if ch, ok := d.Get(msg.Channel); ok {
		return ch.Send(ctx, msg)
	}
	return fmt.Errorf("%w: %s", ErrNoChannel, msg.Channel)
}

// Channels lists registered channel names in sorted order.
func (d *Dispatcher) Channels() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Sorted(maps.Keys(d.byName))
}
