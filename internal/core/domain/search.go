package domain

import "time"

// Distance is the similarity metric of a collection
type Distance string

const (
	DistanceCosine    Distance = "Cosine"
	DistanceEuclidean Distance = "Euclid"
	DistanceDot       Distance = "Dot"
)

// Valid reports whether d is a supported metric
func (d Distance) Valid() bool {
	switch d {
	case DistanceCosine, DistanceEuclidean, DistanceDot:
		return true
	}
	return false
}

// Collection is the named, schema-bearing container in a vector index.
// Its schema is immutable once created.
type Collection struct {
	Name       string   `json:"name"`
	VectorSize int      `json:"vector_size"`
	Distance   Distance `json:"distance"`
}

// CollectionInfo describes an existing collection
type CollectionInfo struct {
	Collection
	PointCount int64 `json:"point_count"`
}

// Payload field names written with every record
const (
	PayloadText        = "text"
	PayloadSourceURL   = "source_url"
	PayloadSourceTitle = "source_title"
	PayloadChunkID     = "chunk_id"
	PayloadChunkIndex  = "chunk_index"
	PayloadWordCount   = "word_count"
	PayloadCreatedAt   = "created_at"
	PayloadModel       = "model"
)

// Record is the unit of persistence in a vector index
type Record struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector,omitempty"`
	Payload map[string]any `json:"payload"`
}

// SearchResult is one nearest-neighbour match. It is never persisted.
type SearchResult struct {
	ID      string         `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// Text returns the payload text or an empty string
func (r SearchResult) Text() string {
	return payloadString(r.Payload, PayloadText)
}

// SourceURL returns the payload source URL or an empty string
func (r SearchResult) SourceURL() string {
	return payloadString(r.Payload, PayloadSourceURL)
}

// Title returns the payload source title or an empty string
func (r SearchResult) Title() string {
	return payloadString(r.Payload, PayloadSourceTitle)
}

func payloadString(p map[string]any, key string) string {
	if p == nil {
		return ""
	}
	s, _ := p[key].(string)
	return s
}

// SearchRequest is an inbound similarity query
type SearchRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

// Result bounds
const (
	MinSearchK     = 1
	MaxSearchK     = 100
	DefaultSearchK = 5
)

// SearchResponse wraps ranked results for a query
type SearchResponse struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
	Took    time.Duration  `json:"took"`
}
