package registry

import (
	"fmt"
	"sort"
	"testing"
)

func TestShardMap(t *testing.T) {
	sm := newShardMap[int]()

	if _, ok := sm.Swap("a", 1); ok {
		t.Fatal("first Swap should report no previous value")
	}
	prev, ok := sm.Swap("a", 2)
	if !ok || prev != 1 {
		t.Fatalf("Swap prev = %d,%v, want 1,true", prev, ok)
	}
	if v, ok := sm.Get("a"); !ok || v != 2 {
		t.Errorf("Get = %d,%v, want 2,true", v, ok)
	}

	if _, ok := sm.DeleteIf("a", func(v int) bool { return v == 1 }); ok {
		t.Error("DeleteIf should refuse a non-matching value")
	}
	if v, ok := sm.DeleteIf("a", func(v int) bool { return v == 2 }); !ok || v != 2 {
		t.Errorf("DeleteIf = %d,%v, want 2,true", v, ok)
	}
	if sm.Len() != 0 {
		t.Errorf("Len = %d, want 0", sm.Len())
	}
}

func TestShardMap_KeysSpreadAcrossShards(t *testing.T) {
	sm := newShardMap[string]()
	for i := 0; i < 200; i++ {
		k := fmt.Sprintf("user-%d", i)
		sm.Swap(k, k)
	}

	used := 0
	for _, s := range sm.shards {
		if len(s.m) > 0 {
			used++
		}
	}
	if used < shardCount/2 {
		t.Errorf("only %d of %d shards used", used, shardCount)
	}

	keys := sm.Keys()
	vals := sm.Values()
	sort.Strings(keys)
	sort.Strings(vals)
	if len(keys) != 200 || len(vals) != 200 {
		t.Fatalf("got %d keys, %d values, want 200", len(keys), len(vals))
	}
	for i := range keys {
		if keys[i] != vals[i] {
			t.Fatalf("key %q != value %q", keys[i], vals[i])
		}
	}
}
