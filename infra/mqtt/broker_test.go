package mqtt

import (
	"context"
	"strings"
	"sync"
)

// memBroker is an in-process Conn delivering messages synchronously.
type memBroker struct {
	mu        sync.Mutex
	subs      map[string]Handler
	published []message
	failWith  error
}

type message struct {
	topic   string
	payload string
}

func newMemBroker() *memBroker {
	return &memBroker{subs: make(map[string]Handler)}
}

func (b *memBroker) Publish(_ context.Context, topic string, _ bool, payload []byte) error {
	b.mu.Lock()
	if b.failWith != nil {
		err := b.failWith
		b.mu.Unlock()
		return err
	}
	b.published = append(b.published, message{topic, string(payload)})
	var hs []Handler
	for filter, h := range b.subs {
		if topicMatches(filter, topic) {
			hs = append(hs, h)
		}
	}
	b.mu.Unlock()
	for _, h := range hs {
		h(topic, payload)
	}
	return nil
}

func (b *memBroker) Subscribe(topic string, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = h
	return nil
}

func (b *memBroker) Unsubscribe(topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, topic)
	return nil
}

func (b *memBroker) messages() []message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]message(nil), b.published...)
}

func (b *memBroker) subscribed(topic string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.subs[topic]
	return ok
}

func topicMatches(filter, topic string) bool {
	f := strings.Split(filter, "/")
	t := strings.Split(topic, "/")
	for i, part := range f {
		if part == "#" {
			return true
		}
		if i >= len(t) || (part != "+" && part != t[i]) {
			return false
		}
	}
	return len(f) == len(t)
}
