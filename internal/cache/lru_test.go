// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package cache

import (
	"testing"
	"time"
)

func TestLRU_BasicOperations(t *testing.T) {
	t.Parallel()
	c := NewLRU[int](10, time.Minute)

	c.Add("a", 1)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v; want 1, true", v, ok)
	}
	c.Add("a", 2)
	if v, _ := c.Get("a"); v != 2 {
		t.Errorf("Get(a) after update = %d, want 2", v)
	}
	if _, ok := c.Get("missing"); ok {
		t.Error("Get(missing) should miss")
	}

	hits, misses, size := c.Stats()
	if hits != 2 || misses != 1 || size != 1 {
		t.Errorf("Stats() = %d, %d, %d; want 2, 1, 1", hits, misses, size)
	}
}

func TestLRU_Eviction(t *testing.T) {
	t.Parallel()
	c := NewLRU[string](3, time.Minute)

	c.Add("a", "1")
	c.Add("b", "2")
	c.Add("c", "3")
	c.Get("a") // a becomes most recent; b is now oldest
	c.Add("d", "4")

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	for _, k := range []string{"a", "c", "d"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("%s should still be present", k)
		}
	}
	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}
}

func TestLRU_TTLAndCleanup(t *testing.T) {
	t.Parallel()
	c := NewLRU[int](10, 30*time.Millisecond)

	c.Add("a", 1)
	c.Add("b", 2)
	time.Sleep(50 * time.Millisecond)

	if _, ok := c.Get("a"); ok {
		t.Error("a should be expired")
	}
	if removed := c.CleanupExpired(); removed != 1 {
		t.Errorf("CleanupExpired() = %d, want 1", removed)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestLRU_Remove(t *testing.T) {
	t.Parallel()
	c := NewLRU[int](10, time.Minute)
	c.Add("a", 1)

	if !c.Remove("a") {
		t.Error("Remove(a) = false, want true")
	}
	if c.Remove("a") {
		t.Error("second Remove(a) = true, want false")
	}
}

func TestSeenSet_IsDuplicate(t *testing.T) {
	t.Parallel()
	s := NewSeenSet(2, time.Minute)

	if s.IsDuplicate("m1") {
		t.Error("first sighting of m1 reported as duplicate")
	}
	if !s.IsDuplicate("m1") {
		t.Error("second sighting of m1 not reported as duplicate")
	}
	s.IsDuplicate("m2")
	s.IsDuplicate("m3") // evicts m1, the least recently used

	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
	if s.IsDuplicate("m1") {
		t.Error("m1 should have been evicted by capacity")
	}
}

func TestSeenSet_Expiry(t *testing.T) {
	t.Parallel()
	s := NewSeenSet(10, 20*time.Millisecond)
	s.IsDuplicate("m1")
	time.Sleep(40 * time.Millisecond)
	if s.IsDuplicate("m1") {
		t.Error("expired key should not be a duplicate")
	}
}

func TestSeenSet_Forget(t *testing.T) {
	t.Parallel()
	s := NewSeenSet(10, time.Minute)
	s.IsDuplicate("m1")
	s.Forget("m1")
	if s.IsDuplicate("m1") {
		t.Error("forgotten key reported as duplicate")
	}
	s.Forget("never-seen")
}
