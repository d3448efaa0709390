package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/custodia-labs/sercha-crawl/internal/core/domain"
	"github.com/custodia-labs/sercha-crawl/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.VectorIndex = (*VectorIndex)(nil)

// hnsw indexes support at most this many dimensions
const maxIndexedDimensions = 2000

// VectorIndex implements driven.VectorIndex on PostgreSQL with pgvector.
// Each collection is a table registered in vector_collections.
type VectorIndex struct {
	db *DB
}

// NewVectorIndex creates a new pgvector-backed VectorIndex
func NewVectorIndex(db *DB) *VectorIndex {
	return &VectorIndex{db: db}
}

// distanceOps describes how one metric maps onto pgvector operators
type distanceOps struct {
	operator string // ORDER BY operator, ascending is nearest
	opclass  string // hnsw operator class
	score    string // expression turning the operator result into a score
}

var distances = map[domain.Distance]distanceOps{
	domain.DistanceCosine:    {operator: "<=>", opclass: "vector_cosine_ops", score: "1 - (embedding <=> $1)"},
	domain.DistanceEuclidean: {operator: "<->", opclass: "vector_l2_ops", score: "embedding <-> $1"},
	domain.DistanceDot:       {operator: "<#>", opclass: "vector_ip_ops", score: "(embedding <#> $1) * -1"},
}

var unsafeIdentChars = regexp.MustCompile(`[^a-z0-9_]+`)

// tableName derives the points table for a collection
func tableName(collection string) string {
	name := unsafeIdentChars.ReplaceAllString(strings.ToLower(collection), "_")
	return "vec_" + strings.Trim(name, "_")
}

// CreateCollection registers the collection and creates its table.
// Re-creating an existing collection keeps the stored schema.
func (v *VectorIndex) CreateCollection(ctx context.Context, c domain.Collection) error {
	ops, ok := distances[c.Distance]
	if !ok {
		return fmt.Errorf("%w: unsupported distance %q", domain.ErrInvalidInput, c.Distance)
	}
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", domain.ErrInvalidInput)
	}
	table := tableName(c.Name)

	return v.db.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO vector_collections (name, table_name, vector_size, distance)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (name) DO NOTHING`,
			c.Name, table, c.VectorSize, string(c.Distance))
		if err != nil {
			return fmt.Errorf("failed to register collection: %w", err)
		}

		ident := pq.QuoteIdentifier(table)
		_, err = tx.ExecContext(ctx, fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id         TEXT PRIMARY KEY,
				embedding  vector(%d) NOT NULL,
				payload    JSONB NOT NULL DEFAULT '{}'::jsonb,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, ident, c.VectorSize))
		if err != nil {
			return fmt.Errorf("failed to create collection table: %w", err)
		}

		if c.VectorSize <= maxIndexedDimensions {
			_, err = tx.ExecContext(ctx, fmt.Sprintf(
				`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding %s)`,
				pq.QuoteIdentifier(table+"_embedding_idx"), ident, ops.opclass))
			if err != nil {
				return fmt.Errorf("failed to create vector index: %w", err)
			}
		}
		return nil
	})
}

// lookup returns the registered schema and table of a collection
func (v *VectorIndex) lookup(ctx context.Context, name string) (domain.Collection, string, error) {
	c := domain.Collection{Name: name}
	var table, distance string
	err := v.db.QueryRowContext(ctx,
		`SELECT table_name, vector_size, distance FROM vector_collections WHERE name = $1`, name,
	).Scan(&table, &c.VectorSize, &distance)
	if errors.Is(err, sql.ErrNoRows) {
		return c, "", fmt.Errorf("collection %s: %w", name, domain.ErrNotFound)
	}
	if err != nil {
		return c, "", fmt.Errorf("failed to read collection: %w", err)
	}
	c.Distance = domain.Distance(distance)
	return c, table, nil
}

// DescribeCollection returns schema and point count
func (v *VectorIndex) DescribeCollection(ctx context.Context, name string) (*domain.CollectionInfo, error) {
	c, table, err := v.lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	info := &domain.CollectionInfo{Collection: c}
	err = v.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s`, pq.QuoteIdentifier(table)),
	).Scan(&info.PointCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count points: %w", err)
	}
	return info, nil
}

// Upsert inserts or replaces records in one transaction
func (v *VectorIndex) Upsert(ctx context.Context, collection string, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	c, table, err := v.lookup(ctx, collection)
	if err != nil {
		return err
	}
	for i, r := range records {
		if len(r.Vector) != c.VectorSize {
			return &domain.SchemaMismatchError{Expected: c.VectorSize, Got: len(r.Vector), Position: i}
		}
	}

	return v.db.Transaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
			INSERT INTO %s (id, embedding, payload)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET embedding = EXCLUDED.embedding, payload = EXCLUDED.payload`,
			pq.QuoteIdentifier(table)))
		if err != nil {
			return fmt.Errorf("failed to prepare upsert: %w", err)
		}
		defer stmt.Close()

		for _, r := range records {
			payload, err := encodePayload(r.Payload)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, r.ID, pgvector.NewVector(r.Vector), payload); err != nil {
				return fmt.Errorf("failed to upsert record %s: %w", r.ID, err)
			}
		}
		return nil
	})
}

// Retrieve returns the records that exist among ids
func (v *VectorIndex) Retrieve(ctx context.Context, collection string, ids []string) ([]domain.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	_, table, err := v.lookup(ctx, collection)
	if err != nil {
		return nil, err
	}

	rows, err := v.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, embedding, payload FROM %s WHERE id = ANY($1)`, pq.QuoteIdentifier(table)),
		pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve records: %w", err)
	}
	defer rows.Close()

	var records []domain.Record
	for rows.Next() {
		var (
			r       domain.Record
			vec     pgvector.Vector
			payload []byte
		)
		if err := rows.Scan(&r.ID, &vec, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		r.Vector = vec.Slice()
		if r.Payload, err = decodePayload(payload); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Delete removes records by id
func (v *VectorIndex) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, table, err := v.lookup(ctx, collection)
	if err != nil {
		return err
	}
	_, err = v.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, pq.QuoteIdentifier(table)),
		pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}
	return nil
}

// Search returns the nearest records. Scores follow Qdrant's conventions:
// similarity for Cosine and Dot, distance for Euclid.
func (v *VectorIndex) Search(ctx context.Context, collection string, vector []float32, limit int) ([]domain.SearchResult, error) {
	c, table, err := v.lookup(ctx, collection)
	if err != nil {
		return nil, err
	}
	if len(vector) != c.VectorSize {
		return nil, &domain.SchemaMismatchError{Expected: c.VectorSize, Got: len(vector)}
	}
	if limit <= 0 {
		limit = domain.DefaultSearchK
	}

	rows, err := v.db.QueryContext(ctx, searchQuery(table, distances[c.Distance]), pgvector.NewVector(vector), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer rows.Close()

	var results []domain.SearchResult
	for rows.Next() {
		var (
			r       domain.SearchResult
			payload []byte
		)
		if err := rows.Scan(&r.ID, &payload, &r.Score); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		if r.Payload, err = decodePayload(payload); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// HealthCheck verifies the database is reachable
func (v *VectorIndex) HealthCheck(ctx context.Context) error {
	return v.db.Ping(ctx)
}

func searchQuery(table string, ops distanceOps) string {
	if ops.operator == "" {
		ops = distances[domain.DistanceCosine]
	}
	return fmt.Sprintf(`SELECT id, payload, %s AS score FROM %s ORDER BY embedding %s $1 LIMIT $2`,
		ops.score, pq.QuoteIdentifier(table), ops.operator)
}

func encodePayload(p map[string]any) ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("%w: payload is not JSON serialisable: %v", domain.ErrInvalidInput, err)
	}
	return data, nil
}

func decodePayload(data []byte) (map[string]any, error) {
	payload := make(map[string]any)
	if len(data) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	return payload, nil
}
