package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/lmarsden/marksearch/internal/vectordb"
	"github.com/lmarsden/marksearch/pkg/models"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultDim is used when the embedding client cannot report its
	// output dimension.
	DefaultDim = 768

	// DefaultSearchLimit bounds search results when the caller gives none.
	DefaultSearchLimit = 5

	// DefaultQueryLimit bounds plain queries when the caller gives none.
	DefaultQueryLimit = 100

	// deleteBatchSize is the most ids removed per underlying delete call.
	deleteBatchSize = 100

	// clearScanLimit bounds the id scan behind ClearCollection.
	clearScanLimit = 16384

	// maxIDScanLimit bounds the id scan behind GenerateID.
	maxIDScanLimit = 10000
)

// DefaultSubject is assigned to records inserted without a subject.
const DefaultSubject = "general"

// Store adapts the raw vector index service into the record operations the
// rest of the system works with: identity assignment, distance-to-score
// conversion, subject soft-partitioning and result shaping.
type Store struct {
	svc        vectordb.Service
	collection string
	dim        int

	mu     sync.Mutex
	lastID int64 // highest id issued by this process
}

// New ensures the collection exists with the given vector dimension and
// returns a Store bound to it. A non-positive dimension falls back to
// DefaultDim.
func New(ctx context.Context, svc vectordb.Service, collection string, dim int) (*Store, error) {
	if dim <= 0 {
		dim = DefaultDim
	}
	if err := svc.CreateCollection(ctx, collection, dim); err != nil {
		return nil, fmt.Errorf("create collection %s: %w", collection, err)
	}
	return &Store{svc: svc, collection: collection, dim: dim}, nil
}

// Dim reports the vector dimension the collection was created with.
func (s *Store) Dim() int { return s.dim }

// Collection reports the collection name the store is bound to.
func (s *Store) Collection() string { return s.collection }

// InsertBatch persists texts with their vectors. Subjects default to
// DefaultSubject per item when absent; metadata items become extra fields
// on the record. The whole batch fails when the service reports zero or
// mismatched assigned ids, which is recoverable by retrying.
func (s *Store) InsertBatch(ctx context.Context, texts []string, vectors [][]float32, subjects []string, metadataList []map[string]any) ([]int64, error) {
	if len(texts) == 0 {
		return nil, errors.New("empty text list")
	}
	if len(texts) != len(vectors) {
		return nil, fmt.Errorf("texts and vectors length mismatch: %d != %d", len(texts), len(vectors))
	}

	records := make([]vectordb.Record, 0, len(texts))
	for i, text := range texts {
		subject := DefaultSubject
		if i < len(subjects) && subjects[i] != "" {
			subject = subjects[i]
		}
		r := vectordb.Record{
			ID:      s.GenerateID(ctx),
			Vector:  vectors[i],
			Text:    text,
			Subject: subject,
		}
		if i < len(metadataList) && metadataList[i] != nil {
			r.Extra = metadataList[i]
		}
		records = append(records, r)
	}

	ids, err := s.svc.Insert(ctx, s.collection, records)
	if err != nil {
		return nil, fmt.Errorf("insert batch: %w", err)
	}
	if len(ids) != len(records) {
		return nil, fmt.Errorf("insert batch: service assigned %d ids for %d records", len(ids), len(records))
	}
	return ids, nil
}

// SearchOptions shape a vector search.
type SearchOptions struct {
	// Limit bounds the number of hits; DefaultSearchLimit when zero.
	Limit int

	// Subject restricts hits to one subject partition when set.
	Subject string

	// Fields are the record fields to copy onto hits. Text and subject
	// are always included.
	Fields []string

	// IncludeSubdirectories is accepted for compatibility with older
	// callers; the hierarchical sub-splitting it toggled was removed
	// from the chunker.
	IncludeSubdirectories bool
}

// Search runs nearest-neighbor search for the vector and shapes the raw
// hits: raw distances become scores via 1/(1+d), rows without an id are
// dropped, and requested extra fields are copied through. A zero-hit
// search returns no results and no error.
func (s *Store) Search(ctx context.Context, vector []float32, opt SearchOptions) ([]models.SearchHit, error) {
	limit := opt.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	fields := withRequired(opt.Fields)

	var f *vectordb.Filter
	if opt.Subject != "" {
		f = &vectordb.Filter{Subject: opt.Subject}
	}

	raw, err := s.svc.Search(ctx, s.collection, vector, limit, f, fields)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	hits := make([]models.SearchHit, 0, len(raw))
	for _, h := range raw {
		if h.ID == 0 {
			log.Warn().Msg("dropping search hit without id")
			continue
		}
		hit := models.SearchHit{
			ID:      h.ID,
			Score:   scoreFromDistance(h.Distance),
			Text:    h.Text,
			Subject: h.Subject,
		}
		for _, fld := range fields {
			if fld == "id" || fld == "score" || fld == "text" || fld == "subject" {
				continue
			}
			if v, ok := h.Extra[fld]; ok && v != nil {
				if hit.Extra == nil {
					hit.Extra = map[string]any{}
				}
				hit.Extra[fld] = v
			}
		}
		hits = append(hits, hit)
	}
	if len(hits) == 0 {
		return nil, nil
	}
	return hits, nil
}

// scoreFromDistance converts a raw dissimilarity into a bounded score that
// decreases monotonically with distance; zero distance scores 1.
func scoreFromDistance(d *float64) *float64 {
	if d == nil {
		return nil
	}
	score := 1.0 / (1.0 + *d)
	return &score
}

// withRequired forces text and subject into the output field list.
func withRequired(fields []string) []string {
	if fields == nil {
		return []string{"text", "subject"}
	}
	out := append([]string(nil), fields...)
	if !contains(out, "subject") {
		out = append(out, "subject")
	}
	if !contains(out, "text") {
		out = append(out, "text")
	}
	return out
}

func contains(ss []string, want string) bool {
	for _, s := range ss {
		if s == want {
			return true
		}
	}
	return false
}

// Query returns records matching the filter; a nil filter selects every
// row. The limit defaults to DefaultQueryLimit.
func (s *Store) Query(ctx context.Context, f *vectordb.Filter, fields []string, limit int) ([]vectordb.Record, error) {
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	if fields == nil {
		fields = []string{"text", "subject"}
	}
	recs, err := s.svc.Query(ctx, s.collection, f, fields, limit)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}
	return recs, nil
}

// DeleteByIDs removes records in batches of at most deleteBatchSize per
// underlying call. A failed batch is logged and skipped; the returned ids
// are the ones actually deleted, so the operation is retryable.
func (s *Store) DeleteByIDs(ctx context.Context, ids []int64) []int64 {
	deleted := make([]int64, 0, len(ids))
	for start := 0; start < len(ids); start += deleteBatchSize {
		end := start + deleteBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]
		if err := s.svc.DeleteByIDs(ctx, s.collection, batch); err != nil {
			log.Error().Err(err).
				Int("batch", start/deleteBatchSize+1).
				Int("size", len(batch)).
				Msg("delete batch failed")
			continue
		}
		deleted = append(deleted, batch...)
	}
	return deleted
}

// ClearCollection removes every record, or only those under the given
// subject when one is set. The subject predicate is pushed into the
// engine's filter; the id scan behind it stays bounded.
func (s *Store) ClearCollection(ctx context.Context, subject string) error {
	var f *vectordb.Filter
	if subject != "" {
		f = &vectordb.Filter{Subject: subject}
	}
	recs, err := s.svc.Query(ctx, s.collection, f, []string{"id"}, clearScanLimit)
	if err != nil {
		return fmt.Errorf("scan collection for clear: %w", err)
	}

	var ids []int64
	for _, r := range recs {
		if r.ID != 0 {
			ids = append(ids, r.ID)
		}
	}
	if len(ids) == 0 {
		log.Debug().Str("subject", subject).Msg("nothing to clear")
		return nil
	}

	deleted := s.DeleteByIDs(ctx, ids)
	log.Info().Str("subject", subject).Int("deleted", len(deleted)).Msg("cleared collection")
	return nil
}

// Count reports the number of records in the collection, zero when the
// engine cannot be reached.
func (s *Store) Count(ctx context.Context) int64 {
	n, err := s.svc.RowCount(ctx, s.collection)
	if err != nil {
		log.Warn().Err(err).Msg("row count failed")
		return 0
	}
	return n
}
