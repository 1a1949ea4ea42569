package store

import (
	"context"

	"github.com/rs/zerolog/log"
)

// maxID scans the collection for its highest existing id. Zero means the
// collection is empty or unreachable.
func (s *Store) maxID(ctx context.Context) int64 {
	recs, err := s.svc.Query(ctx, s.collection, nil, []string{"id"}, maxIDScanLimit)
	if err != nil {
		log.Warn().Err(err).Msg("max id scan failed, falling back to local counter")
		return 0
	}
	var max int64
	for _, r := range recs {
		if r.ID > max {
			max = r.ID
		}
	}
	return max
}

// GenerateID issues the next id for the collection. The collection itself
// is the source of truth: the scan picks up ids written by earlier
// processes, so an id is never reissued even across restarts or after
// deletes. The local high-water mark covers allocations made between
// scans. The scan-then-increment is not safe against concurrent writers
// sharing one collection; deployments are single writer at a time.
func (s *Store) GenerateID(ctx context.Context) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if max := s.maxID(ctx); max > s.lastID {
		s.lastID = max
	}
	s.lastID++
	return s.lastID
}
