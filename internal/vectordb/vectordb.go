// Package vectordb defines the contract of the underlying vector index
// and a Postgres/pgvector implementation of it. Everything above this
// package treats the index as an opaque service: collections of flat
// records searched by approximate nearest neighbor under inner product.
package vectordb

import "context"

// Record is one persisted entity in a collection.
type Record struct {
	ID      int64
	Vector  []float32
	Text    string
	Subject string
	Extra   map[string]any
}

// Hit is one ranked search result. Distance is the raw dissimilarity
// reported by the engine; it is nil when the engine reports none.
type Hit struct {
	Record
	Distance *float64
}

// Filter narrows an operation to a subset of a collection. The zero
// filter (or nil) selects every row.
type Filter struct {
	Subject string
	IDs     []int64
}

// Service is the vector index contract consumed by the store layer.
// The similarity metric is fixed to inner product for the lifetime of a
// collection and the dimension is fixed at creation time.
type Service interface {
	CreateCollection(ctx context.Context, name string, dim int) error
	Insert(ctx context.Context, name string, records []Record) ([]int64, error)
	Search(ctx context.Context, name string, vector []float32, limit int, f *Filter, fields []string) ([]Hit, error)
	Query(ctx context.Context, name string, f *Filter, fields []string, limit int) ([]Record, error)
	DeleteByIDs(ctx context.Context, name string, ids []int64) error
	RowCount(ctx context.Context, name string) (int64, error)
	Close()
}
