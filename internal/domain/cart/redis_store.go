package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	keyPrefix     = "cart:session:"
	channelPrefix = "cart:changed:"
)

// Key returns the storage key of a session cart
func Key(sessionID string) string {
	return keyPrefix + sessionID
}

func undoKey(sessionID string) string {
	return keyPrefix + sessionID + ":undo"
}

// Channel returns the pub/sub channel carrying change events for a session
func Channel(sessionID string) string {
	return channelPrefix + sessionID
}

// RedisStore keeps a session cart in Redis and fans writes out over pub/sub.
// Each instance is one browsing context with its own origin id.
type RedisStore struct {
	client    *redis.Client
	sessionID string
	origin    string
	ttl       time.Duration
	undoTTL   time.Duration
	logger    *logrus.Logger
}

// NewRedisStore creates a store for one session
func NewRedisStore(client *redis.Client, sessionID string, ttl, undoTTL time.Duration, logger *logrus.Logger) *RedisStore {
	return &RedisStore{
		client:    client,
		sessionID: sessionID,
		origin:    uuid.NewString(),
		ttl:       ttl,
		undoTTL:   undoTTL,
		logger:    logger,
	}
}

// Origin identifies this context in change events
func (s *RedisStore) Origin() string {
	return s.origin
}

func (s *RedisStore) Load(ctx context.Context) (Snapshot, error) {
	raw, err := s.client.Get(ctx, Key(s.sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{State: StateAbsent}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to load cart: %w", err)
	}
	return decodeSnapshot(raw)
}

func (s *RedisStore) Save(ctx context.Context, lines Lines) error {
	return s.write(ctx, lines, nil)
}

func (s *RedisStore) Clear(ctx context.Context) error {
	current, err := s.Load(ctx)
	if err != nil && !errors.Is(err, ErrCorruptCart) {
		return err
	}
	var undo Lines
	if current.State == StatePresent {
		undo = current.Lines
	}
	return s.write(ctx, Lines{}, undo)
}

// write stores lines and the optional undo copy atomically, then announces the change
func (s *RedisStore) write(ctx context.Context, lines Lines, undo Lines) error {
	payload, err := encodeLines(lines)
	if err != nil {
		return fmt.Errorf("failed to encode cart: %w", err)
	}
	event, err := json.Marshal(ChangeEvent{
		Origin:    s.origin,
		Lines:     lines,
		Tombstone: len(lines) == 0,
	})
	if err != nil {
		return fmt.Errorf("failed to encode change event: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, Key(s.sessionID), payload, s.ttl)
		if len(undo) > 0 {
			undoPayload, err := encodeLines(undo)
			if err != nil {
				return err
			}
			pipe.Set(ctx, undoKey(s.sessionID), undoPayload, s.undoTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save cart: %w", err)
	}

	// A lost notification only delays other contexts until their next Load.
	if err := s.client.Publish(ctx, Channel(s.sessionID), event).Err(); err != nil {
		s.logger.WithError(err).WithField("session_id", s.sessionID).Warn("Failed to publish cart change")
	}
	return nil
}

func (s *RedisStore) LoadUndo(ctx context.Context) (Lines, error) {
	raw, err := s.client.Get(ctx, undoKey(s.sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load undo cart: %w", err)
	}
	snap, err := decodeSnapshot(raw)
	if err != nil {
		return nil, err
	}
	return snap.Lines, nil
}

func (s *RedisStore) DropUndo(ctx context.Context) error {
	if err := s.client.Del(ctx, undoKey(s.sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to drop undo cart: %w", err)
	}
	return nil
}

// Subscribe blocks until the subscription is confirmed, then delivers events
// from a background goroutine until ctx is done.
func (s *RedisStore) Subscribe(ctx context.Context, fn func(ChangeEvent)) error {
	pubsub := s.client.Subscribe(ctx, Channel(s.sessionID))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("failed to subscribe to cart changes: %w", err)
	}

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					s.logger.WithError(err).WithField("session_id", s.sessionID).Warn("Dropping malformed cart change event")
					continue
				}
				if event.Origin == s.origin {
					continue
				}
				event.Lines = event.Lines.sanitize()
				fn(event)
			}
		}
	}()
	return nil
}
