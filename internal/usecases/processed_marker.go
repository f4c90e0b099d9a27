package usecases

import (
	"sync"
	"time"
)

// ProcessedMarkers remembers message IDs the extraction pipeline already
// handled, keyed per phone number. State is process-local and not persisted:
// a restart forgets everything and recent messages may be re-extracted.
// Entries expire after the TTL and are pruned on every insert.
type ProcessedMarkers struct {
	mu      sync.Mutex
	byPhone map[string]map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

const defaultMarkerTTL = 24 * time.Hour

func NewProcessedMarkers(ttl time.Duration) *ProcessedMarkers {
	if ttl <= 0 {
		ttl = defaultMarkerTTL
	}
	return &ProcessedMarkers{
		byPhone: make(map[string]map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Seen reports whether the message ID is still within the retention window.
func (p *ProcessedMarkers) Seen(phone, messageID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	markers, ok := p.byPhone[phone]
	if !ok {
		return false
	}
	at, ok := markers[messageID]
	if !ok {
		return false
	}
	return p.now().Sub(at) < p.ttl
}

// Mark records a processed message and prunes expired entries.
func (p *ProcessedMarkers) Mark(phone, messageID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	markers, ok := p.byPhone[phone]
	if !ok {
		markers = make(map[string]time.Time)
		p.byPhone[phone] = markers
	}
	markers[messageID] = now

	p.prune(now)
}

// prune removes entries older than the TTL. Caller must hold the lock.
func (p *ProcessedMarkers) prune(now time.Time) {
	for phone, markers := range p.byPhone {
		for id, at := range markers {
			if now.Sub(at) >= p.ttl {
				delete(markers, id)
			}
		}
		if len(markers) == 0 {
			delete(p.byPhone, phone)
		}
	}
}

// Size returns the total number of live markers (for stats).
func (p *ProcessedMarkers) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, markers := range p.byPhone {
		n += len(markers)
	}
	return n
}
