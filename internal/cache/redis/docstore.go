package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/hunterlabs/polyhunter/internal/domain"
)

// docStore is the content-addressed storage pattern shared by the concrete
// stores: a member set for enumeration, one JSON document per member at
// <docPrefix>:<key>, and an events channel announcing mutations.
type docStore struct {
	rdb    *redis.Client
	set    string
	docKey string // prefix; document lives at docKey + ":" + key
	events string
}

func newDocStore(c *Client, name string) docStore {
	return docStore{
		rdb:    c.rdb,
		set:    c.key(name),
		docKey: c.key(name, "doc"),
		events: c.key(name, "events"),
	}
}

// add writes the document and registers the member in one transactional
// pipeline, then publishes "add" when the member is new and "update" when it
// already existed.
func (s docStore) add(ctx context.Context, key string, doc []byte) error {
	var added *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		added = pipe.SAdd(ctx, s.set, key)
		pipe.Set(ctx, s.docKey+":"+key, doc, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: add %s to %s: %w", key, s.set, err)
	}

	op := domain.ChangeUpdate
	if added.Val() == 1 {
		op = domain.ChangeAdd
	}
	return s.publish(ctx, op, key, doc)
}

// remove deletes the member and its document. The removal event is published
// only when the member actually existed.
func (s docStore) remove(ctx context.Context, key string) error {
	var removed *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.SRem(ctx, s.set, key)
		pipe.Del(ctx, s.docKey+":"+key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: remove %s from %s: %w", key, s.set, err)
	}

	if removed.Val() == 0 {
		return nil
	}
	return s.publish(ctx, domain.ChangeRemove, key, nil)
}

// get fetches one document.
func (s docStore) get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, s.docKey+":"+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: %s %s: %w", s.set, key, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get %s %s: %w", s.set, key, err)
	}
	return data, nil
}

// members returns the full member set via SSCAN.
func (s docStore) members(ctx context.Context) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.rdb.SScan(ctx, s.set, cursor, "*", 512).Result()
		if err != nil {
			return nil, fmt.Errorf("redis: scan %s: %w", s.set, err)
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

// cleanupStalePointers removes set members whose document is gone (for
// example after a TTL expiry or partial failure). It returns the number of
// members removed.
func (s docStore) cleanupStalePointers(ctx context.Context) (int, error) {
	keys, err := s.members(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, key := range keys {
		exists, err := s.rdb.Exists(ctx, s.docKey+":"+key).Result()
		if err != nil {
			return removed, fmt.Errorf("redis: exists %s: %w", key, err)
		}
		if exists == 0 {
			if err := s.rdb.SRem(ctx, s.set, key).Err(); err != nil {
				return removed, fmt.Errorf("redis: srem stale %s: %w", key, err)
			}
			removed++
		}
	}
	return removed, nil
}

// publish announces a mutation on the events channel. Publish failures are
// returned so callers can decide whether a missed event matters.
func (s docStore) publish(ctx context.Context, op domain.ChangeOp, key string, doc []byte) error {
	ev := domain.ChangeEvent{Op: op, Key: key, Doc: doc}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redis: marshal change event: %w", err)
	}
	if err := s.rdb.Publish(ctx, s.events, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", s.events, err)
	}
	return nil
}
