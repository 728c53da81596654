package semantic

// SearchResult represents a single vector search hit.
type SearchResult struct {
	ID      string  `json:"id"`
	Score   float32 `json:"score"`
	Content string  `json:"content"`
	Source  string  `json:"source"`
	Index   int     `json:"chunk_index"`
	Seq     int64   `json:"seq"`
}

// VectorRecord represents a single embedded chunk to persist.
type VectorRecord struct {
	ID        string
	Embedding []float32
	Content   string
	Source    string
	Index     int
}
