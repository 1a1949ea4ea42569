package models

// ChunkMeta carries the heading context a chunk was cut from.
type ChunkMeta struct {
	Header1       string   `json:"header_1,omitempty"`
	Header2       string   `json:"header_2,omitempty"`
	Header3       string   `json:"header_3,omitempty"`
	Header4       string   `json:"header_4,omitempty"`
	Header5       string   `json:"header_5,omitempty"`
	Header6       string   `json:"header_6,omitempty"`
	TitlePath     string   `json:"title_path,omitempty"`
	ParentHeaders []string `json:"parent_headers"`
	ParentSummary string   `json:"parent_summary,omitempty"`
	FullContext   string   `json:"full_context,omitempty"`
	ChunkIndex    int      `json:"chunk_index"`
	Context       string   `json:"context"`
	Source        string   `json:"source,omitempty"`
	FileName      string   `json:"file_name,omitempty"`
}

// Header returns the heading text recorded for a level in 1..6.
func (m *ChunkMeta) Header(level int) string {
	switch level {
	case 1:
		return m.Header1
	case 2:
		return m.Header2
	case 3:
		return m.Header3
	case 4:
		return m.Header4
	case 5:
		return m.Header5
	case 6:
		return m.Header6
	}
	return ""
}

// SetHeader records the heading text for a level in 1..6.
func (m *ChunkMeta) SetHeader(level int, title string) {
	switch level {
	case 1:
		m.Header1 = title
	case 2:
		m.Header2 = title
	case 3:
		m.Header3 = title
	case 4:
		m.Header4 = title
	case 5:
		m.Header5 = title
	case 6:
		m.Header6 = title
	}
}

// Chunk is one retrievable unit of a split document.
type Chunk struct {
	Text     string    `json:"text"`
	Metadata ChunkMeta `json:"metadata"`
}

// SearchHit is the shaped projection of one search result.
type SearchHit struct {
	ID      int64          `json:"id"`
	Score   *float64       `json:"score"`
	Text    string         `json:"text"`
	Subject string         `json:"subject"`
	Context string         `json:"context,omitempty"`
	Extra   map[string]any `json:"extra,omitempty"`
}
