package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/valpere/perevod/internal/classifier"
)

func TestKey(t *testing.T) {
	if got := Key(-100123, 42); got != "-100123:42" {
		t.Errorf("expected -100123:42, got %q", got)
	}
}

func TestTextCache_PutGet(t *testing.T) {
	c := NewTextCache(0, 0)

	c.Put("1:1", Entry{Text: "hello", Source: classifier.SourceSpeech})
	e, ok := c.Get("1:1")
	if !ok {
		t.Fatal("expected entry")
	}
	if e.Text != "hello" || e.Source != classifier.SourceSpeech {
		t.Errorf("unexpected entry: %+v", e)
	}

	if _, ok := c.Get("1:2"); ok {
		t.Error("expected miss for unknown key")
	}
}

func TestTextCache_Expiry(t *testing.T) {
	c := NewTextCache(50*time.Millisecond, 0)

	c.Put("1:1", Entry{Text: "hello"})
	if _, ok := c.Get("1:1"); !ok {
		t.Fatal("expected entry before TTL")
	}

	time.Sleep(120 * time.Millisecond)
	if _, ok := c.Get("1:1"); ok {
		t.Error("expected entry to expire")
	}
}

func TestTextCache_Cap(t *testing.T) {
	c := NewTextCache(time.Minute, 3)

	for i := 0; i < 5; i++ {
		c.Put(Key(1, i), Entry{Text: fmt.Sprint(i)})
	}
	if c.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", c.Len())
	}
	if _, ok := c.Get(Key(1, 0)); ok {
		t.Error("expected oldest entry to be evicted")
	}
	if _, ok := c.Get(Key(1, 4)); !ok {
		t.Error("expected newest entry to be kept")
	}
}

func TestTextCache_Concurrent(t *testing.T) {
	c := NewTextCache(time.Minute, 100)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := Key(int64(g), i)
				c.Put(key, Entry{Text: key})
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()

	if c.Len() > 100 {
		t.Errorf("expected at most 100 entries, got %d", c.Len())
	}
}

func TestSeen(t *testing.T) {
	s := NewSeen()

	if !s.Mark("cb-1") {
		t.Error("expected first mark to be new")
	}
	if s.Mark("cb-1") {
		t.Error("expected duplicate to be rejected")
	}
}

func TestSeen_ForgetsOldestWhenFull(t *testing.T) {
	s := NewSeen()
	for i := 0; i < maxSeen; i++ {
		s.Mark(fmt.Sprint(i))
	}
	if s.Mark("0") {
		t.Error("expected id to still be remembered at the limit")
	}

	s.Mark("overflow")
	if !s.Mark("0") {
		t.Error("expected oldest id to be forgotten after overflowing")
	}
	if s.Mark("999") {
		t.Error("expected recent id to be remembered")
	}
}
