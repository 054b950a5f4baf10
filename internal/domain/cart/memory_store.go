package cart

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryBackend is a process-local stand-in for shared browser storage. Every
// store opened on it for the same session sees the same value.
type MemoryBackend struct {
	mu     sync.Mutex
	values map[string][]byte
	undo   map[string][]byte
	subs   map[string]map[string]chan ChangeEvent
}

// NewMemoryBackend creates an empty backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		values: make(map[string][]byte),
		undo:   make(map[string][]byte),
		subs:   make(map[string]map[string]chan ChangeEvent),
	}
}

// Store opens a new browsing context on a session
func (b *MemoryBackend) Store(sessionID string) *MemoryStore {
	return &MemoryStore{backend: b, sessionID: sessionID, origin: uuid.NewString()}
}

// Raw returns the stored value for a session, or nil when absent
func (b *MemoryBackend) Raw(sessionID string) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.values[sessionID]
}

// SetRaw overwrites the stored value without notifying anyone
func (b *MemoryBackend) SetRaw(sessionID string, raw []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[sessionID] = raw
}

func (b *MemoryBackend) publish(sessionID string, event ChangeEvent) {
	b.mu.Lock()
	targets := make([]chan ChangeEvent, 0, len(b.subs[sessionID]))
	for origin, ch := range b.subs[sessionID] {
		if origin != event.Origin {
			targets = append(targets, ch)
		}
	}
	b.mu.Unlock()

	for _, ch := range targets {
		select {
		case ch <- event:
		default:
			// slow subscriber; the next Load will catch it up
		}
	}
}

// MemoryStore is one browsing context on a MemoryBackend. Change events are
// delivered asynchronously, in order, like the storage event of a browser.
type MemoryStore struct {
	backend   *MemoryBackend
	sessionID string
	origin    string
}

func (s *MemoryStore) Load(_ context.Context) (Snapshot, error) {
	raw := s.backend.Raw(s.sessionID)
	if raw == nil {
		return Snapshot{State: StateAbsent}, nil
	}
	return decodeSnapshot(raw)
}

func (s *MemoryStore) Save(_ context.Context, lines Lines) error {
	return s.write(lines, false)
}

func (s *MemoryStore) Clear(_ context.Context) error {
	return s.write(Lines{}, true)
}

func (s *MemoryStore) write(lines Lines, keepUndo bool) error {
	payload, err := encodeLines(lines)
	if err != nil {
		return err
	}

	s.backend.mu.Lock()
	if keepUndo {
		if prev := s.backend.values[s.sessionID]; prev != nil {
			if snap, err := decodeSnapshot(prev); err == nil && snap.State == StatePresent {
				s.backend.undo[s.sessionID] = prev
			}
		}
	}
	s.backend.values[s.sessionID] = payload
	s.backend.mu.Unlock()

	s.backend.publish(s.sessionID, ChangeEvent{
		Origin:    s.origin,
		Lines:     lines.Clone(),
		Tombstone: len(lines) == 0,
	})
	return nil
}

func (s *MemoryStore) LoadUndo(_ context.Context) (Lines, error) {
	s.backend.mu.Lock()
	raw := s.backend.undo[s.sessionID]
	s.backend.mu.Unlock()
	if raw == nil {
		return nil, nil
	}
	snap, err := decodeSnapshot(raw)
	if err != nil {
		return nil, err
	}
	return snap.Lines, nil
}

func (s *MemoryStore) DropUndo(_ context.Context) error {
	s.backend.mu.Lock()
	delete(s.backend.undo, s.sessionID)
	s.backend.mu.Unlock()
	return nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, fn func(ChangeEvent)) error {
	ch := make(chan ChangeEvent, 64)

	s.backend.mu.Lock()
	if s.backend.subs[s.sessionID] == nil {
		s.backend.subs[s.sessionID] = make(map[string]chan ChangeEvent)
	}
	s.backend.subs[s.sessionID][s.origin] = ch
	s.backend.mu.Unlock()

	go func() {
		defer func() {
			s.backend.mu.Lock()
			delete(s.backend.subs[s.sessionID], s.origin)
			s.backend.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-ch:
				fn(event)
			}
		}
	}()
	return nil
}
