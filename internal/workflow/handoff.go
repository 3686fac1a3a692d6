package workflow

import (
	"time"

	"github.com/zombor/meterease/internal/capture"
)

// Handoff carries the capture results into the calculation stage
type Handoff struct {
	MeterImage      capture.MeterImage `json:"meterImage"`
	PreviousReading string             `json:"previousReading"`
}

// HandoffStore keeps handoffs between the capture and calculation stages of a session
type HandoffStore interface {
	// Put stores the handoff for a session, replacing any previous one
	Put(sessionID string, handoff Handoff) error

	// Get returns the handoff for a session and whether it exists
	Get(sessionID string) (Handoff, bool, error)

	// Delete removes the handoff for a session
	Delete(sessionID string) error

	// Purge drops every expired handoff and returns how many were removed
	Purge() (int, error)

	// Close releases the store
	Close() error
}

// MemoryHandoffStore keeps handoffs in process memory until they expire
type MemoryHandoffStore struct {
	cache *TTLCache[string, Handoff]
	ttl   time.Duration
}

// NewMemoryHandoffStore creates a MemoryHandoffStore; ttl <= 0 keeps entries forever
func NewMemoryHandoffStore(ttl time.Duration) *MemoryHandoffStore {
	return &MemoryHandoffStore{
		cache: NewTTLCache[string, Handoff](),
		ttl:   ttl,
	}
}

// Put stores the handoff
func (m *MemoryHandoffStore) Put(sessionID string, handoff Handoff) error {
	m.cache.Set(sessionID, handoff, m.ttl)
	return nil
}

// Get returns the handoff if present
func (m *MemoryHandoffStore) Get(sessionID string) (Handoff, bool, error) {
	handoff, ok := m.cache.Get(sessionID)
	return handoff, ok, nil
}

// Delete removes the handoff
func (m *MemoryHandoffStore) Delete(sessionID string) error {
	m.cache.Delete(sessionID)
	return nil
}

// Purge drops expired handoffs
func (m *MemoryHandoffStore) Purge() (int, error) {
	return m.cache.Purge(), nil
}

// Close is a no-op
func (m *MemoryHandoffStore) Close() error {
	return nil
}
