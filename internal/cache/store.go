package cache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"minerva/pkg/errors"
	"minerva/pkg/logger"
)

// Repo is the durable backing store for cache entries.
type Repo interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Upsert(ctx context.Context, entry *Entry) error
	Delete(ctx context.Context, key string) error
}

// Store is a read-through cache: an in-memory LRU fast path in front of
// the durable repo. Writes replace the entry atomically per key; the repo
// upsert is last-writer-wins by fetchedAt.
type Store struct {
	fast *lru.Cache[string, *Entry]
	repo Repo
	log  *logger.Logger
}

// NewStore creates a store with the given LRU capacity.
func NewStore(repo Repo, size int) (*Store, error) {
	if size <= 0 {
		size = 1024
	}

	fast, err := lru.New[string, *Entry](size)
	if err != nil {
		return nil, errors.Wrap(err, "create lru cache")
	}

	return &Store{
		fast: fast,
		repo: repo,
		log:  logger.Get().With("component", "cache_store"),
	}, nil
}

// Get returns the entry for key, or errors.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (*Entry, error) {
	if entry, ok := s.fast.Get(key); ok {
		return entry, nil
	}

	entry, err := s.repo.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	s.fast.Add(key, entry)
	return entry, nil
}

// Put stores the entry in the durable repo and the fast path.
func (s *Store) Put(ctx context.Context, entry *Entry) error {
	if err := s.repo.Upsert(ctx, entry); err != nil {
		return errors.Wrapf(err, "upsert cache entry %s", entry.Key)
	}

	s.fast.Add(entry.Key, entry)
	return nil
}

// Invalidate drops an entry from both tiers. Used when an external event
// (earnings, filings) makes a statements entry stale before its TTL.
func (s *Store) Invalidate(ctx context.Context, key string) error {
	s.fast.Remove(key)

	if err := s.repo.Delete(ctx, key); err != nil && !errors.Is(err, errors.ErrNotFound) {
		return errors.Wrapf(err, "delete cache entry %s", key)
	}
	return nil
}
