package aggregate

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// keyScanner is a lazy iterator over cache keys matching a pattern. It pulls
// one SCAN page at a time so callers never need the full match set in memory,
// and terminates when the cursor signals completion. SCAN may return a key
// more than once; callers must tolerate re-visits.
type keyScanner struct {
	cache  interface {
		Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	}
	match  string
	count  int64
	cursor uint64
	buf    []string
	done   bool
}

func newKeyScanner(cache Cache, match string, count int64) *keyScanner {
	return &keyScanner{cache: cache, match: match, count: count}
}

// Next returns the next matching key. The second return value is false when
// the scan is exhausted.
func (s *keyScanner) Next(ctx context.Context) (string, bool, error) {
	for len(s.buf) == 0 && !s.done {
		keys, cursor, err := s.cache.Scan(ctx, s.cursor, s.match, s.count).Result()
		if err != nil {
			return "", false, err
		}
		s.cursor = cursor
		s.buf = append(s.buf, keys...)
		if cursor == 0 {
			s.done = true
		}
	}

	if len(s.buf) == 0 {
		return "", false, nil
	}
	key := s.buf[0]
	s.buf = s.buf[1:]
	return key, true, nil
}
