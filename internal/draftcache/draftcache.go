// Package draftcache keeps unsaved editor content on the local machine so
// a crash or lost connection does not lose typing.
package draftcache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/afterword/afterword/internal/kv"
)

const (
	Key       = "work_drafts_v1"
	MaxDrafts = 10
	TTL       = 7 * 24 * time.Hour
)

// Draft is one cached editor buffer.
type Draft struct {
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	ExpiresAt  time.Time `json:"expires_at"`
	LastAccess time.Time `json:"last_access"`
}

// Cache is a bounded draft store: at most MaxDrafts entries, each living
// TTL, least recently accessed evicted first. All drafts share one blob.
type Cache struct {
	store kv.Store
	mu    sync.Mutex
	now   func() time.Time
}

// New creates a cache on top of s.
func New(s kv.Store) *Cache {
	return &Cache{store: s, now: time.Now}
}

func (c *Cache) read(ctx context.Context) (map[string]Draft, error) {
	raw, ok, err := c.store.Get(ctx, Key)
	if err != nil {
		return nil, fmt.Errorf("reading drafts: %w", err)
	}
	drafts := map[string]Draft{}
	if !ok || raw == "" {
		return drafts, nil
	}
	if err := json.Unmarshal([]byte(raw), &drafts); err != nil || drafts == nil {
		return map[string]Draft{}, nil
	}
	return drafts, nil
}

func (c *Cache) write(ctx context.Context, drafts map[string]Draft) error {
	data, err := json.Marshal(drafts)
	if err != nil {
		return fmt.Errorf("encoding drafts: %w", err)
	}
	if err := c.store.Set(ctx, Key, string(data), 0); err != nil {
		return fmt.Errorf("writing drafts: %w", err)
	}
	return nil
}

// prune drops expired entries and keeps the MaxDrafts most recently used.
func (c *Cache) prune(drafts map[string]Draft) map[string]Draft {
	now := c.now()
	type entry struct {
		id    string
		draft Draft
	}
	valid := make([]entry, 0, len(drafts))
	for id, d := range drafts {
		if d.ExpiresAt.After(now) {
			valid = append(valid, entry{id, d})
		}
	}
	sort.Slice(valid, func(i, j int) bool {
		if valid[i].draft.LastAccess.Equal(valid[j].draft.LastAccess) {
			return valid[i].id < valid[j].id
		}
		return valid[i].draft.LastAccess.After(valid[j].draft.LastAccess)
	})
	if len(valid) > MaxDrafts {
		valid = valid[:MaxDrafts]
	}
	out := make(map[string]Draft, len(valid))
	for _, e := range valid {
		out[e.id] = e.draft
	}
	return out
}

// Cleanup removes expired drafts and enforces the size bound.
func (c *Cache) Cleanup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	drafts, err := c.read(ctx)
	if err != nil {
		return err
	}
	return c.write(ctx, c.prune(drafts))
}

// Get returns the draft for workID and refreshes its access time.
func (c *Cache) Get(ctx context.Context, workID string) (Draft, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	drafts, err := c.read(ctx)
	if err != nil {
		return Draft{}, false, err
	}
	drafts = c.prune(drafts)
	d, ok := drafts[workID]
	if ok {
		d.LastAccess = c.now()
		drafts[workID] = d
	}
	if err := c.write(ctx, drafts); err != nil {
		return Draft{}, false, err
	}
	return d, ok, nil
}

// Set stores content for workID.
func (c *Cache) Set(ctx context.Context, workID, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	drafts, err := c.read(ctx)
	if err != nil {
		return err
	}
	now := c.now()
	drafts[workID] = Draft{
		Content:    content,
		Timestamp:  now,
		ExpiresAt:  now.Add(TTL),
		LastAccess: now,
	}
	return c.write(ctx, c.prune(drafts))
}

// Clear removes the draft for workID.
func (c *Cache) Clear(ctx context.Context, workID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	drafts, err := c.read(ctx)
	if err != nil {
		return err
	}
	if _, ok := drafts[workID]; !ok {
		return nil
	}
	delete(drafts, workID)
	return c.write(ctx, drafts)
}
