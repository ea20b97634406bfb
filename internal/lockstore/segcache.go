package lockstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meetbot/platform/internal/apperr"
)

func dedupKey(meetingID int64, start, end float64) string {
	return fmt.Sprintf("seg:%d:%.3f:%.3f", meetingID, start, end)
}

func partialKey(meetingID int64, start, end float64) string {
	return fmt.Sprintf("partial:%d:%.3f:%.3f", meetingID, start, end)
}

// SeenSegment reports whether a dedup key already exists for this interval.
func (s *Store) SeenSegment(ctx context.Context, meetingID int64, start, end float64) (bool, error) {
	_, err := s.redis.Get(ctx, dedupKey(meetingID, start, end)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, apperr.Wrap(apperr.BackingStoreUnavailable, "dedup store unreachable", err)
	}
	return true, nil
}

// MarkSegment sets the dedup key for this interval with the given TTL,
// absorbing retries and repeated pushes of the same completed segment.
func (s *Store) MarkSegment(ctx context.Context, meetingID int64, start, end float64, ttl time.Duration) error {
	if err := s.redis.Set(ctx, dedupKey(meetingID, start, end), "1", ttl).Err(); err != nil {
		return apperr.Wrap(apperr.BackingStoreUnavailable, "dedup store unreachable", err)
	}
	return nil
}

// CachePartial overwrites the latest partial text for an interval, for
// operator visibility only; it is never promoted to durable storage.
func (s *Store) CachePartial(ctx context.Context, meetingID int64, start, end float64, text string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, partialKey(meetingID, start, end), text, ttl).Err(); err != nil {
		return apperr.Wrap(apperr.BackingStoreUnavailable, "dedup store unreachable", err)
	}
	return nil
}
