package aggregate

import (
	"context"
	"path"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeCache is an in-memory Cache implementation for tests. It covers only
// the commands the engine uses, with redis glob patterns approximated by
// path.Match (equivalent for patterns without separators).
type fakeCache struct {
	zsets  map[string]map[string]float64
	hashes map[string]map[string]string
	lists  map[string][]string
	ttls   map[string]time.Duration
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		zsets:  make(map[string]map[string]float64),
		hashes: make(map[string]map[string]string),
		lists:  make(map[string][]string),
		ttls:   make(map[string]time.Duration),
	}
}

func (f *fakeCache) ZAdd(_ context.Context, key string, members ...redis.Z) *redis.IntCmd {
	set, ok := f.zsets[key]
	if !ok {
		set = make(map[string]float64)
		f.zsets[key] = set
	}
	var added int64
	for _, m := range members {
		member := m.Member.(string)
		if _, exists := set[member]; !exists {
			added++
		}
		set[member] = m.Score
	}
	return redis.NewIntResult(added, nil)
}

func (f *fakeCache) ZCard(_ context.Context, key string) *redis.IntCmd {
	return redis.NewIntResult(int64(len(f.zsets[key])), nil)
}

func (f *fakeCache) ZRange(_ context.Context, key string, start, stop int64) *redis.StringSliceCmd {
	set := f.zsets[key]
	members := make([]string, 0, len(set))
	for m := range set {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool { return set[members[i]] < set[members[j]] })
	return redis.NewStringSliceResult(members, nil)
}

func (f *fakeCache) HSetNX(_ context.Context, key, field string, value interface{}) *redis.BoolCmd {
	h, ok := f.hashes[key]
	if !ok {
		h = make(map[string]string)
		f.hashes[key] = h
	}
	if _, exists := h[field]; exists {
		return redis.NewBoolResult(false, nil)
	}
	h[field] = asString(value)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeCache) HSet(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	h, ok := f.hashes[key]
	if !ok {
		h = make(map[string]string)
		f.hashes[key] = h
	}
	var set int64
	for i := 0; i+1 < len(values); i += 2 {
		h[asString(values[i])] = asString(values[i+1])
		set++
	}
	return redis.NewIntResult(set, nil)
}

func (f *fakeCache) HGetAll(_ context.Context, key string) *redis.MapStringStringCmd {
	out := make(map[string]string, len(f.hashes[key]))
	for k, v := range f.hashes[key] {
		out[k] = v
	}
	return redis.NewMapStringStringResult(out, nil)
}

func (f *fakeCache) RPush(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	for _, v := range values {
		f.lists[key] = append(f.lists[key], asString(v))
	}
	return redis.NewIntResult(int64(len(f.lists[key])), nil)
}

func (f *fakeCache) LRange(_ context.Context, key string, start, stop int64) *redis.StringSliceCmd {
	return redis.NewStringSliceResult(append([]string(nil), f.lists[key]...), nil)
}

func (f *fakeCache) Expire(_ context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	f.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *fakeCache) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var deleted int64
	for _, k := range keys {
		if _, ok := f.zsets[k]; ok {
			delete(f.zsets, k)
			deleted++
		}
		if _, ok := f.hashes[k]; ok {
			delete(f.hashes, k)
			deleted++
		}
		if _, ok := f.lists[k]; ok {
			delete(f.lists, k)
			deleted++
		}
		delete(f.ttls, k)
	}
	return redis.NewIntResult(deleted, nil)
}

// Scan returns all matching keys in a single page.
func (f *fakeCache) Scan(_ context.Context, cursor uint64, match string, count int64) *redis.ScanCmd {
	var keys []string
	for k := range f.zsets {
		keys = append(keys, k)
	}
	for k := range f.hashes {
		keys = append(keys, k)
	}
	for k := range f.lists {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var matched []string
	for _, k := range keys {
		if ok, _ := path.Match(match, k); ok {
			matched = append(matched, k)
		}
	}
	return redis.NewScanCmdResult(matched, 0, nil)
}

func asString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return ""
	}
}

// Compile-time assertion that fakeCache implements Cache.
var _ Cache = (*fakeCache)(nil)
