package usecases

import (
	"sync"
	"testing"
	"time"

	"chatmimic_connect/internal/entities"
)

func chatMsg(phone, id string) entities.Message {
	return entities.Message{
		ID:        id,
		ChatPhone: phone,
		Content:   "hello " + id,
		Sender:    entities.SenderUser,
		Timestamp: time.Now(),
	}
}

func TestDispatcherPreservesPerChatOrder(t *testing.T) {
	var mu sync.Mutex
	got := make(map[string][]string)

	d := NewChatDispatcher(16, func(schema string, msg entities.Message) {
		mu.Lock()
		got[msg.ChatPhone] = append(got[msg.ChatPhone], msg.ID)
		mu.Unlock()
	})

	for i := 0; i < 5; i++ {
		d.Dispatch("tenant_1", chatMsg("628111", string(rune('a'+i))))
		d.Dispatch("tenant_1", chatMsg("628222", string(rune('a'+i))))
	}
	d.Shutdown()

	want := []string{"a", "b", "c", "d", "e"}
	for _, phone := range []string{"628111", "628222"} {
		ids := got[phone]
		if len(ids) != len(want) {
			t.Fatalf("chat %s processed %d messages, want %d", phone, len(ids), len(want))
		}
		for i := range want {
			if ids[i] != want[i] {
				t.Errorf("chat %s order = %v, want %v", phone, ids, want)
				break
			}
		}
	}
}

func TestDispatcherRunsHandlersInSequence(t *testing.T) {
	var mu sync.Mutex
	var order []string

	first := func(schema string, msg entities.Message) {
		mu.Lock()
		order = append(order, "first")
		mu.Unlock()
	}
	second := func(schema string, msg entities.Message) {
		mu.Lock()
		order = append(order, "second")
		mu.Unlock()
	}

	d := NewChatDispatcher(4, first, second)
	d.Dispatch("tenant_1", chatMsg("628111", "m1"))
	d.Shutdown()

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("handler order = %v, want [first second]", order)
	}
}

func TestDispatcherTeardownStopsDelivery(t *testing.T) {
	var mu sync.Mutex
	count := 0

	d := NewChatDispatcher(16, func(schema string, msg entities.Message) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	d.Dispatch("tenant_1", chatMsg("628111", "m1"))
	// Let the worker drain before tearing down
	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		done := count == 1
		mu.Unlock()
		if done || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	d.Teardown("tenant_1", "628111")
	if d.ActiveChats() != 0 {
		t.Fatalf("active chats = %d after teardown, want 0", d.ActiveChats())
	}

	// A new message re-subscribes instead of being lost
	d.Dispatch("tenant_1", chatMsg("628111", "m2"))
	d.Shutdown()

	mu.Lock()
	defer mu.Unlock()
	if count != 2 {
		t.Errorf("processed %d messages, want 2", count)
	}
}

func TestDispatcherStaleEvictionKeepsFreshSubscription(t *testing.T) {
	var mu sync.Mutex
	count := 0

	d := NewChatDispatcher(4, func(schema string, msg entities.Message) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	// Subscribe the chat, then tear it down while a slow dispatcher still
	// holds the old handle.
	d.Dispatch("tenant_1", chatMsg("628111", "m1"))
	key := subKey("tenant_1", "628111")
	d.mu.Lock()
	stale := d.subs[key]
	d.mu.Unlock()
	d.Teardown("tenant_1", "628111")

	// The chat re-subscribes before the slow dispatcher notices the teardown.
	d.Dispatch("tenant_1", chatMsg("628111", "m2"))

	// Replay the slow dispatcher's recovery path: the failed send and the
	// eviction must not remove the fresh subscription.
	if stale.send(chatMsg("628111", "m3")) {
		t.Fatal("send on a torn-down subscription should fail")
	}
	d.evict(key, stale)
	d.Dispatch("tenant_1", chatMsg("628111", "m3"))

	if d.ActiveChats() != 1 {
		t.Fatalf("active chats = %d, want 1 (fresh subscription must survive eviction of the stale one)", d.ActiveChats())
	}

	// If the fresh subscription had been evicted, its channel would never be
	// closed and Shutdown would wait on its worker forever.
	done := make(chan struct{})
	go func() {
		d.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown hung: a subscription was orphaned")
	}

	mu.Lock()
	defer mu.Unlock()
	if count != 3 {
		t.Errorf("processed %d messages, want 3", count)
	}
}

func TestDispatcherIsolatesChats(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	var processed []string

	d := NewChatDispatcher(16, func(schema string, msg entities.Message) {
		if msg.ChatPhone == "628111" {
			<-release
		}
		mu.Lock()
		processed = append(processed, msg.ChatPhone)
		mu.Unlock()
	})

	d.Dispatch("tenant_1", chatMsg("628111", "blocked"))
	d.Dispatch("tenant_1", chatMsg("628222", "free"))

	// The free chat finishes while the other is stuck
	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(processed)
		mu.Unlock()
		if n == 1 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	if len(processed) != 1 || processed[0] != "628222" {
		mu.Unlock()
		close(release)
		t.Fatalf("processed = %v, want only the unblocked chat", processed)
	}
	mu.Unlock()

	close(release)
	d.Shutdown()
}

func TestDispatcherRecoversFromHandlerPanic(t *testing.T) {
	var mu sync.Mutex
	count := 0

	panicky := func(schema string, msg entities.Message) {
		if msg.ID == "bad" {
			panic("boom")
		}
	}
	counter := func(schema string, msg entities.Message) {
		mu.Lock()
		count++
		mu.Unlock()
	}

	d := NewChatDispatcher(4, panicky, counter)
	d.Dispatch("tenant_1", chatMsg("628111", "bad"))
	d.Dispatch("tenant_1", chatMsg("628111", "good"))
	d.Shutdown()

	mu.Lock()
	defer mu.Unlock()
	if count != 2 {
		t.Errorf("later handlers ran %d times, want 2 (panic must not kill the worker)", count)
	}
}

func TestDispatcherShutdownRejectsNewMessages(t *testing.T) {
	var mu sync.Mutex
	count := 0

	d := NewChatDispatcher(4, func(schema string, msg entities.Message) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	d.Dispatch("tenant_1", chatMsg("628111", "m1"))
	d.Shutdown()
	d.Dispatch("tenant_1", chatMsg("628111", "m2"))

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("processed %d messages, want 1 (dispatch after shutdown is dropped)", count)
	}
}

func TestDispatcherSchemasDoNotCollide(t *testing.T) {
	var mu sync.Mutex
	schemas := make(map[string]int)

	d := NewChatDispatcher(4, func(schema string, msg entities.Message) {
		mu.Lock()
		schemas[schema]++
		mu.Unlock()
	})

	// Same phone number under two tenants stays two subscriptions
	d.Dispatch("tenant_1", chatMsg("628111", "m1"))
	d.Dispatch("tenant_2", chatMsg("628111", "m2"))

	deadline := time.Now().Add(2 * time.Second)
	for {
		if d.ActiveChats() == 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if d.ActiveChats() != 2 {
		t.Fatalf("active chats = %d, want 2", d.ActiveChats())
	}
	d.Shutdown()

	mu.Lock()
	defer mu.Unlock()
	if schemas["tenant_1"] != 1 || schemas["tenant_2"] != 1 {
		t.Errorf("per-schema counts = %v, want one each", schemas)
	}
}
