package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/freshbasket/forecast/internal/forecast"
)

// maxUpdateAttempts bounds the optimistic retries of Update.
const maxUpdateAttempts = 100

// ErrConflict reports an Update that kept losing to concurrent writers.
var ErrConflict = errors.New("workspace: too many concurrent updates")

// Store persists one forecast.Workspace per session in Redis.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore constructs a Store. A zero ttl keeps workspaces until deleted.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

// Load returns the workspace of the session, or an empty one when none exists.
func (s *Store) Load(ctx context.Context, sessionID string) (*forecast.Workspace, error) {
	if sessionID == "" {
		return nil, errors.New("workspace: session id required")
	}
	return decode(s.client.Get(ctx, s.key(sessionID)).Bytes())
}

// Update applies fn to the current workspace and saves the result atomically.
// The key is watched between the read and the write; when another writer gets
// in first the read-modify-write starts over. An error from fn aborts without
// writing anything.
func (s *Store) Update(ctx context.Context, sessionID string, fn func(*forecast.Workspace) error) (*forecast.Workspace, error) {
	if sessionID == "" {
		return nil, errors.New("workspace: session id required")
	}
	key := s.key(sessionID)
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		var updated *forecast.Workspace
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			ws, err := decode(tx.Get(ctx, key).Bytes())
			if err != nil {
				return err
			}
			if err := fn(ws); err != nil {
				return err
			}
			data, err := json.Marshal(ws)
			if err != nil {
				return fmt.Errorf("workspace: encode: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, s.ttl)
				return nil
			})
			if err != nil {
				return err
			}
			updated = ws
			return nil
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, ErrConflict
}

// Save writes the workspace and refreshes its TTL.
func (s *Store) Save(ctx context.Context, sessionID string, ws *forecast.Workspace) error {
	if sessionID == "" {
		return errors.New("workspace: session id required")
	}
	data, err := json.Marshal(ws)
	if err != nil {
		return fmt.Errorf("workspace: encode: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("workspace: save: %w", err)
	}
	return nil
}

// Delete drops the workspace of the session.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("workspace: delete: %w", err)
	}
	return nil
}

func decode(payload []byte, err error) (*forecast.Workspace, error) {
	if errors.Is(err, redis.Nil) {
		return &forecast.Workspace{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("workspace: load: %w", err)
	}
	var ws forecast.Workspace
	if err := json.Unmarshal(payload, &ws); err != nil {
		return nil, fmt.Errorf("workspace: decode: %w", err)
	}
	return &ws, nil
}

func (s *Store) key(sessionID string) string {
	return "workspace:" + sessionID
}
