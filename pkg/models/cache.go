package models

// CacheEntry is a stored question/answer pair. Timestamps are unix seconds.
type CacheEntry struct {
	ID           int64  `json:"id"`
	Question     string `json:"question"`
	Answer       string `json:"answer"`
	CreatedAt    int64  `json:"created_at"`
	LastAccessed int64  `json:"last_accessed"`
	AccessCount  int64  `json:"access_count"`
}

// QuestionStat is a question with its access count and last access time.
type QuestionStat struct {
	Question     string `json:"question"`
	AccessCount  int64  `json:"access_count"`
	LastAccessed int64  `json:"last_accessed"`
}

// CacheStats reports cache contents and performance.
type CacheStats struct {
	Entries int64          `json:"entries"`
	Hits    int64          `json:"hits"`
	Misses  int64          `json:"misses"`
	SizeMB  float64        `json:"size_mb"`
	Popular []QuestionStat `json:"popular,omitempty"`
	Recent  []QuestionStat `json:"recent,omitempty"`
}
