package usecases

import (
	"fmt"
	"sync"

	"chatmimic_connect/internal/entities"
)

// MessageHandler processes one delivered message. Handlers run sequentially
// per chat, in delivery order.
type MessageHandler func(schemaName string, msg entities.Message)

// ChatDispatcher fans inbound messages out to the pipeline handlers with an
// explicit per-chat subscription registry. Each chat owns a buffered channel
// and a worker goroutine, so chats process concurrently while messages within
// one chat stay ordered. Teardown stops new deliveries for a chat; a handler
// already running completes and still applies its side effects.
type ChatDispatcher struct {
	mu       sync.Mutex
	subs     map[string]*chatSubscription
	handlers []MessageHandler
	buffer   int
	closed   bool
	wg       sync.WaitGroup
}

type chatSubscription struct {
	ch     chan entities.Message
	mu     sync.Mutex
	closed bool
}

func (s *chatSubscription) send(msg entities.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.ch <- msg
	return true
}

func (s *chatSubscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

func NewChatDispatcher(buffer int, handlers ...MessageHandler) *ChatDispatcher {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChatDispatcher{
		subs:     make(map[string]*chatSubscription),
		handlers: handlers,
		buffer:   buffer,
	}
}

func subKey(schemaName, chatPhone string) string {
	return schemaName + "/" + chatPhone
}

// Dispatch routes a message to its chat's worker, subscribing the chat on
// first contact.
func (d *ChatDispatcher) Dispatch(schemaName string, msg entities.Message) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	key := subKey(schemaName, msg.ChatPhone)
	sub, ok := d.subs[key]
	if !ok {
		sub = &chatSubscription{ch: make(chan entities.Message, d.buffer)}
		d.subs[key] = sub
		d.wg.Add(1)
		go d.run(schemaName, sub)
	}
	d.mu.Unlock()

	if !sub.send(msg) {
		// Subscription torn down between lookup and send; drop the stale
		// handle and re-dispatch once.
		d.evict(key, sub)
		d.Dispatch(schemaName, msg)
	}
}

// evict removes a torn-down subscription from the registry. Another Dispatch
// may already have re-subscribed the chat under the same key, so the entry is
// only removed while it still maps to the stale handle.
func (d *ChatDispatcher) evict(key string, sub *chatSubscription) {
	d.mu.Lock()
	if d.subs[key] == sub {
		delete(d.subs, key)
	}
	d.mu.Unlock()
}

// run is the per-chat worker loop.
func (d *ChatDispatcher) run(schemaName string, sub *chatSubscription) {
	defer d.wg.Done()
	for msg := range sub.ch {
		for _, handler := range d.handlers {
			d.invoke(handler, schemaName, msg)
		}
	}
}

// invoke shields the worker from a panicking handler.
func (d *ChatDispatcher) invoke(handler MessageHandler, schemaName string, msg entities.Message) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("[DISPATCH] Handler panic for chat %s: %v\n", msg.ChatPhone, r)
		}
	}()
	handler(schemaName, msg)
}

// Teardown removes a chat's subscription. Pending buffered messages are still
// drained by the worker before it exits.
func (d *ChatDispatcher) Teardown(schemaName, chatPhone string) {
	d.mu.Lock()
	key := subKey(schemaName, chatPhone)
	sub, ok := d.subs[key]
	if ok {
		delete(d.subs, key)
	}
	d.mu.Unlock()

	if ok {
		sub.close()
	}
}

// Shutdown tears down every subscription and waits for the workers to drain.
func (d *ChatDispatcher) Shutdown() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	subs := d.subs
	d.subs = make(map[string]*chatSubscription)
	d.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
	d.wg.Wait()
}

// ActiveChats returns the number of live subscriptions.
func (d *ChatDispatcher) ActiveChats() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subs)
}
