package feedcache

import (
	"fmt"
	"testing"
	"time"
)

func TestGetSet(t *testing.T) {
	c := New(DefaultTTL, DefaultEntries)

	if _, ok := c.Get("missing"); ok {
		t.Fatal("expected miss for absent key")
	}

	c.Set("k", []string{"a"})
	got, ok := c.Get("k")
	if !ok {
		t.Fatal("expected hit")
	}
	if items := got.([]string); len(items) != 1 || items[0] != "a" {
		t.Errorf("payload = %v", got)
	}
}

func TestTTLExpiry(t *testing.T) {
	c := New(10*time.Second, DefaultEntries)

	base := time.Now()
	c.now = func() time.Time { return base }
	c.Set("k", "v")

	c.now = func() time.Time { return base.Add(10 * time.Second) }
	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry at exactly TTL should still be served")
	}

	c.now = func() time.Time { return base.Add(10*time.Second + time.Millisecond) }
	if _, ok := c.Get("k"); ok {
		t.Fatal("entry past TTL must not be served")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry not swept on read, len = %d", c.Len())
	}
}

func TestCapacityEvictsOldest(t *testing.T) {
	c := New(time.Minute, 3)

	base := time.Now()
	for i := 0; i < 3; i++ {
		i := i
		c.now = func() time.Time { return base.Add(time.Duration(i) * time.Second) }
		c.Set(fmt.Sprintf("k%d", i), i)
	}

	c.now = func() time.Time { return base.Add(10 * time.Second) }
	c.Set("k3", 3)

	if _, ok := c.Get("k0"); ok {
		t.Error("oldest entry should have been evicted")
	}
	for _, k := range []string{"k1", "k2", "k3"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("entry %s missing", k)
		}
	}
}

func TestOverwriteDoesNotEvict(t *testing.T) {
	c := New(time.Minute, 2)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 3)

	if c.Len() != 2 {
		t.Fatalf("len = %d, want 2", c.Len())
	}
	got, _ := c.Get("a")
	if got != 3 {
		t.Errorf("a = %v, want 3", got)
	}
}

func TestInvalidatePrefix(t *testing.T) {
	c := New(time.Minute, DefaultEntries)

	c.Set(Key("jobs", "owner-1", "", "", 20, 0), "p1")
	c.Set(Key("jobs", "owner-1", "Lipsync", "", 20, 0), "p2")
	c.Set(Key("jobs", "owner-2", "", "", 20, 0), "p3")

	c.InvalidatePrefix(OwnerPrefix("jobs", "owner-1"))

	if _, ok := c.Get(Key("jobs", "owner-1", "", "", 20, 0)); ok {
		t.Error("owner-1 page survived invalidation")
	}
	if _, ok := c.Get(Key("jobs", "owner-1", "Lipsync", "", 20, 0)); ok {
		t.Error("owner-1 filtered page survived invalidation")
	}
	if _, ok := c.Get(Key("jobs", "owner-2", "", "", 20, 0)); !ok {
		t.Error("owner-2 page should survive")
	}
}

func TestKeyFormat(t *testing.T) {
	got := Key("jobs", "", "Lipsync", "completed", 20, 40)
	want := "feed:jobs:u:all:w:Lipsync:s:completed:l:20:o:40"
	if got != want {
		t.Errorf("Key = %q, want %q", got, want)
	}

	if p := OwnerPrefix("jobs", "owner-1"); p != "feed:jobs:u:owner-1:" {
		t.Errorf("OwnerPrefix = %q", p)
	}
}
