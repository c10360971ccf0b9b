package mq

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"go.uber.org/zap"
)

const memoryBufferSize = 256

var errBrokerClosed = errors.New("memory broker closed")

// MemoryBroker is an in-process Backend. Each subscriber on a channel gets
// every message published after it subscribed; a subscriber whose buffer is
// full misses the message.
type MemoryBroker struct {
	mu     sync.Mutex
	subs   map[string][]chan Message
	nextID int
	done   chan struct{}
	once   sync.Once
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		subs: make(map[string][]chan Message),
		done: make(chan struct{}),
	}
}

func (b *MemoryBroker) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	select {
	case <-b.done:
		return "", errBrokerClosed
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	msg := Message{ID: strconv.Itoa(b.nextID), Data: data, Attributes: attrs}
	for _, ch := range b.subs[channel] {
		select {
		case ch <- msg:
		default:
			zap.L().Warn("Memory broker subscriber is full, dropping message",
				zap.String("channel", channel), zap.String("message_id", msg.ID))
		}
	}
	return msg.ID, nil
}

// Subscribe blocks until ctx is done or the broker is closed. A handler
// error redelivers the message once before it is dropped.
func (b *MemoryBroker) Subscribe(ctx context.Context, channel string, handler Handler) error {
	ch := make(chan Message, memoryBufferSize)

	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], ch)
	b.mu.Unlock()
	defer b.unsubscribe(channel, ch)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.done:
			return errBrokerClosed
		case msg := <-ch:
			if err := handler(ctx, msg); err != nil {
				_ = handler(ctx, msg)
			}
		}
	}
}

func (b *MemoryBroker) Close() error {
	b.once.Do(func() { close(b.done) })
	return nil
}

// subscribers reports how many subscriptions are active on channel.
func (b *MemoryBroker) subscribers(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[channel])
}

func (b *MemoryBroker) unsubscribe(channel string, target chan Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[channel]
	for i, ch := range subs {
		if ch == target {
			b.subs[channel] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}
