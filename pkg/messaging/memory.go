package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryBroker is an in-process broker backed by buffered channels. Publish
// never blocks: a group whose members all have full buffers misses the
// message. Ack is a no-op since nothing is redelivered.
type MemoryBroker struct {
	mu         sync.RWMutex
	groups     map[string]map[string]*memoryGroup
	bufferSize int
	closed     bool
}

type memoryGroup struct {
	members []chan Delivery
	next    int
}

func NewMemoryBroker(bufferSize int) *MemoryBroker {
	if bufferSize < 1 {
		bufferSize = 100
	}
	return &MemoryBroker{
		groups:     make(map[string]map[string]*memoryGroup),
		bufferSize: bufferSize,
	}
}

func (b *MemoryBroker) Publish(_ context.Context, channel string, message interface{}) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	// Write lock: delivery advances each group's round-robin cursor.
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	var dropped bool
	for _, g := range b.groups[channel] {
		if !g.deliver(NewDelivery(payload, nil)) {
			dropped = true
		}
	}
	if dropped {
		return ErrSubscriberFull
	}
	return nil
}

// deliver hands d to the next member with buffer space.
func (g *memoryGroup) deliver(d Delivery) bool {
	for i := 0; i < len(g.members); i++ {
		ch := g.members[(g.next+i)%len(g.members)]
		select {
		case ch <- d:
			g.next = (g.next + i + 1) % len(g.members)
			return true
		default:
		}
	}
	return false
}

func (b *MemoryBroker) Subscribe(ctx context.Context, channel, group string) (<-chan Delivery, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	ch := make(chan Delivery, b.bufferSize)
	if b.groups[channel] == nil {
		b.groups[channel] = make(map[string]*memoryGroup)
	}
	g := b.groups[channel][group]
	if g == nil {
		g = &memoryGroup{}
		b.groups[channel][group] = g
	}
	g.members = append(g.members, ch)

	go func() {
		<-ctx.Done()
		b.unsubscribe(channel, group, ch)
	}()

	return ch, nil
}

func (b *MemoryBroker) unsubscribe(channel, group string, ch chan Delivery) {
	b.mu.Lock()
	defer b.mu.Unlock()

	g := b.groups[channel][group]
	if g == nil {
		return
	}
	for i, member := range g.members {
		if member != ch {
			continue
		}
		g.members = append(g.members[:i], g.members[i+1:]...)
		close(ch)
		if len(g.members) == 0 {
			delete(b.groups[channel], group)
		} else {
			g.next %= len(g.members)
		}
		return
	}
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for _, groups := range b.groups {
		for _, g := range groups {
			for _, ch := range g.members {
				close(ch)
			}
		}
	}
	b.groups = make(map[string]map[string]*memoryGroup)
	return nil
}
