package vectorstore

// Record is one stored chunk vector.
type Record struct {
	ID         string
	Embedding  []float32
	Content    string
	UserID     string
	FileID     string
	ChunkIndex int
	Metadata   map[string]string
}

// SearchResult is one ranked query hit.
type SearchResult struct {
	ID      string
	Content string
	// Score is cosine similarity to the query embedding. Approximately
	// [-1,1]; not strictly bounded for arbitrary vectors.
	Score    float64
	UserID   string
	FileID   string
	Metadata map[string]string
}

// Filter restricts query and delete candidates. Zero-value fields do not
// restrict. FileIDs is a set: a record matches when its FileID is any of them.
type Filter struct {
	UserID  string
	FileIDs []string
}

// Matches reports whether a record satisfies the filter.
func (f Filter) Matches(r Record) bool {
	if f.UserID != "" && r.UserID != f.UserID {
		return false
	}
	if len(f.FileIDs) > 0 {
		found := false
		for _, id := range f.FileIDs {
			if r.FileID == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Empty reports whether the filter restricts nothing.
func (f Filter) Empty() bool {
	return f.UserID == "" && len(f.FileIDs) == 0
}
