package credstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one JSON document per session id. A missing key reads as
// an empty credential, matching FileStore semantics.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "pairctl:creds:",
	}
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + sessionID
}

func (s *RedisStore) Load(ctx context.Context, sessionID string) (Credential, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	val, err := s.client.Get(ctx, s.key(sessionID)).Result()
	if err == redis.Nil {
		return Credential{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: redis get %s: %v", ErrStorage, sessionID, err)
	}
	cred, err := Decode([]byte(val))
	if err != nil {
		return nil, err
	}
	return cred, nil
}

func (s *RedisStore) Save(ctx context.Context, sessionID string, delta json.RawMessage) error {
	if err := ValidateSessionID(sessionID); err != nil {
		return err
	}
	// Read-merge-write; per-session writes are serialized by the session's
	// event loop, so no cross-writer race exists for one key.
	cred, err := s.Load(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := cred.Merge(delta); err != nil {
		return err
	}
	doc, err := cred.Encode()
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(sessionID), []byte(doc), 0).Err(); err != nil {
		return fmt.Errorf("%w: redis set %s: %v", ErrStorage, sessionID, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := ValidateSessionID(sessionID); err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: redis del %s: %v", ErrStorage, sessionID, err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	var ids []string
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		ids = append(ids, key[len(s.prefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%w: redis scan: %v", ErrStorage, err)
	}
	return sortedIDs(ids), nil
}
