// Package cache holds the short-lived per-chat state of the bot: the source
// text waiting for a language choice and the callback IDs already handled.
package cache

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/valpere/perevod/internal/classifier"
)

const (
	DefaultTTL        = 45 * time.Minute
	DefaultMaxEntries = 10000
	maxSeen           = 1000
)

// Entry is a source text waiting for a target language.
type Entry struct {
	Text   string
	Source classifier.SourceKind
}

// TextCache maps chat:message keys to source texts with a fixed TTL. When
// full, the least recently used entry is evicted first.
type TextCache struct {
	lru *expirable.LRU[string, Entry]
}

func NewTextCache(ttl time.Duration, maxEntries int) *TextCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &TextCache{lru: expirable.NewLRU[string, Entry](maxEntries, nil, ttl)}
}

func Key(chatID int64, messageID int) string {
	return fmt.Sprintf("%d:%d", chatID, messageID)
}

func (c *TextCache) Put(key string, e Entry) {
	c.lru.Add(key, e)
}

// Get returns the entry for key unless it is missing or expired.
func (c *TextCache) Get(key string) (Entry, bool) {
	return c.lru.Get(key)
}

// Len counts stored entries, including expired ones not yet purged.
func (c *TextCache) Len() int {
	return c.lru.Len()
}

// Seen remembers recently handled callback IDs.
type Seen struct {
	ids *lru.Cache[string, struct{}]
}

func NewSeen() *Seen {
	ids, err := lru.New[string, struct{}](maxSeen)
	if err != nil {
		// Only a non-positive size fails.
		panic(err)
	}
	return &Seen{ids: ids}
}

// Mark records id and reports whether it was new.
func (s *Seen) Mark(id string) bool {
	found, _ := s.ids.ContainsOrAdd(id, struct{}{})
	return !found
}
