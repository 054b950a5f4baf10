package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// State distinguishes a cart that was never saved from one that was saved empty.
type State int

const (
	// StateAbsent means nothing was ever stored for the session.
	StateAbsent State = iota
	// StateTombstone means the cart was intentionally emptied ("[]" stored).
	StateTombstone
	// StatePresent means a non-empty cart is stored.
	StatePresent
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateTombstone:
		return "tombstone"
	case StatePresent:
		return "present"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Snapshot is the stored value of a cart at the time of a Load
type Snapshot struct {
	State State
	Lines Lines
}

// ChangeEvent is delivered to the other browsing contexts of a session when
// one of them writes the cart.
type ChangeEvent struct {
	Origin    string `json:"origin"`
	Lines     Lines  `json:"lines"`
	Tombstone bool   `json:"tombstone"`
}

var (
	// ErrCorruptCart is returned by Load when the stored value is not a JSON array of lines.
	ErrCorruptCart = errors.New("stored cart is corrupt")
)

// Store persists one session's cart. Implementations must keep the
// distinction between an absent key and a stored empty array.
type Store interface {
	// Load reads the stored cart.
	Load(ctx context.Context) (Snapshot, error)
	// Save writes lines. An empty slice is written as "[]".
	Save(ctx context.Context, lines Lines) error
	// Clear writes the tombstone and keeps the replaced cart for LoadUndo.
	Clear(ctx context.Context) error
	// LoadUndo returns the last non-empty cart replaced by Clear, if any.
	LoadUndo(ctx context.Context) (Lines, error)
	// DropUndo forgets the undo copy.
	DropUndo(ctx context.Context) error
	// Subscribe delivers writes made by other contexts until ctx is done.
	Subscribe(ctx context.Context, fn func(ChangeEvent)) error
}

// encodeLines renders the persisted wire format. nil encodes as "[]".
func encodeLines(lines Lines) ([]byte, error) {
	if lines == nil {
		lines = Lines{}
	}
	return json.Marshal(lines)
}

// decodeSnapshot parses a stored value. The caller handles the absent case.
func decodeSnapshot(raw []byte) (Snapshot, error) {
	var lines Lines
	if err := json.Unmarshal(raw, &lines); err != nil {
		return Snapshot{State: StateAbsent}, fmt.Errorf("%w: %v", ErrCorruptCart, err)
	}
	// "null" is not something we ever write
	if lines == nil {
		return Snapshot{State: StateAbsent}, fmt.Errorf("%w: null value", ErrCorruptCart)
	}
	lines = lines.sanitize()
	if len(lines) == 0 {
		return Snapshot{State: StateTombstone, Lines: Lines{}}, nil
	}
	return Snapshot{State: StatePresent, Lines: lines}, nil
}
