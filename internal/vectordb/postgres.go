package vectordb

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// Postgres implements Service on top of Postgres with the pgvector
// extension. Each collection maps to one table; chunk metadata rides in a
// jsonb column so the search schema stays fixed and narrow.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Service = (*Postgres)(nil)

// Open connects to the database at the given URL.
func Open(ctx context.Context, url string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Postgres{pool: p}, nil
}

func (p *Postgres) Close() { p.pool.Close() }

// Ping checks database connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return p.pool.Ping(ctx)
}

var identRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func checkIdent(name string) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("invalid collection name %q", name)
	}
	return nil
}

// CreateCollection sets up the collection table and its inner-product
// index. Existing collections are left as they are.
func (p *Postgres) CreateCollection(ctx context.Context, name string, dim int) error {
	if err := checkIdent(name); err != nil {
		return err
	}
	if dim <= 0 {
		return fmt.Errorf("invalid vector dimension %d", dim)
	}

	q := `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS %[1]s (
  id         BIGINT PRIMARY KEY,
  embedding  vector(%[2]d),
  text       TEXT NOT NULL,
  subject    TEXT NOT NULL DEFAULT 'general',
  extra      JSONB,
  created_at TIMESTAMP WITH TIME ZONE DEFAULT now()
);

CREATE INDEX IF NOT EXISTS %[1]s_embedding_idx
  ON %[1]s USING ivfflat (embedding vector_ip_ops) WITH (lists = 100);
`
	_, err := p.pool.Exec(ctx, fmt.Sprintf(q, name, dim))
	return err
}

// Insert persists the given records and returns the ids it wrote.
func (p *Postgres) Insert(ctx context.Context, name string, records []Record) ([]int64, error) {
	if err := checkIdent(name); err != nil {
		return nil, err
	}

	q := fmt.Sprintf(`
		INSERT INTO %s (id, embedding, text, subject, extra)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`, name)

	batch := &pgx.Batch{}
	for _, r := range records {
		var vec any
		if r.Vector != nil {
			vec = pgvector.NewVector(r.Vector)
		} else {
			vec = (*pgvector.Vector)(nil)
		}
		batch.Queue(q, r.ID, vec, r.Text, r.Subject, r.Extra)
	}

	br := p.pool.SendBatch(ctx, batch)
	defer br.Close()

	ids := make([]int64, 0, len(records))
	for range records {
		var id int64
		if err := br.QueryRow().Scan(&id); err != nil {
			return nil, fmt.Errorf("insert into %s: %w", name, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// whereClause renders a filter into SQL starting at argument index ai.
func whereClause(f *Filter, args []any, ai int) (string, []any) {
	where := "TRUE"
	if f == nil {
		return where, args
	}
	if f.Subject != "" {
		where += fmt.Sprintf(" AND subject = $%d", ai)
		args = append(args, f.Subject)
		ai++
	}
	if len(f.IDs) > 0 {
		where += fmt.Sprintf(" AND id = ANY($%d)", ai)
		args = append(args, f.IDs)
	}
	return where, args
}

func wantVector(fields []string) bool {
	for _, f := range fields {
		if f == "vector" || f == "embedding" {
			return true
		}
	}
	return false
}

// Search runs approximate nearest-neighbor search under inner product and
// returns rows ordered by ascending distance.
func (p *Postgres) Search(ctx context.Context, name string, vector []float32, limit int, f *Filter, fields []string) ([]Hit, error) {
	if err := checkIdent(name); err != nil {
		return nil, err
	}

	vecCol := "NULL::vector"
	if wantVector(fields) {
		vecCol = "embedding"
	}

	args := []any{pgvector.NewVector(vector)}
	where, args := whereClause(f, args, 2)

	q := fmt.Sprintf(`
		SELECT id, text, subject, extra, %s, embedding <#> $1 AS distance
		FROM %s
		WHERE %s
		ORDER BY embedding <#> $1
		LIMIT %d`, vecCol, name, where, limit)

	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			h   Hit
			vec *pgvector.Vector
		)
		if err := rows.Scan(&h.ID, &h.Text, &h.Subject, &h.Extra, &vec, &h.Distance); err != nil {
			return nil, err
		}
		if vec != nil {
			h.Vector = vec.Slice()
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// Query returns rows matching the filter in id order.
func (p *Postgres) Query(ctx context.Context, name string, f *Filter, fields []string, limit int) ([]Record, error) {
	if err := checkIdent(name); err != nil {
		return nil, err
	}

	vecCol := "NULL::vector"
	if wantVector(fields) {
		vecCol = "embedding"
	}

	var args []any
	where, args := whereClause(f, args, 1)

	q := fmt.Sprintf(`
		SELECT id, text, subject, extra, %s
		FROM %s
		WHERE %s
		ORDER BY id
		LIMIT %d`, vecCol, name, where, limit)

	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r   Record
			vec *pgvector.Vector
		)
		if err := rows.Scan(&r.ID, &r.Text, &r.Subject, &r.Extra, &vec); err != nil {
			return nil, err
		}
		if vec != nil {
			r.Vector = vec.Slice()
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteByIDs removes the given rows. Missing ids are a no-op.
func (p *Postgres) DeleteByIDs(ctx context.Context, name string, ids []int64) error {
	if err := checkIdent(name); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	q := fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, name)
	_, err := p.pool.Exec(ctx, q, ids)
	return err
}

// RowCount reports the number of rows in the collection.
func (p *Postgres) RowCount(ctx context.Context, name string) (int64, error) {
	if err := checkIdent(name); err != nil {
		return 0, err
	}
	var n int64
	if err := p.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, name)).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
