package news

import "time"

// RawArticle is one record handed over by an ingestion adapter.
type RawArticle struct {
	ID          string    `json:"id,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Content     string    `json:"content,omitempty"`
	URL         string    `json:"url"`
	ImageURL    string    `json:"image_url,omitempty"`
	Author      string    `json:"author,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	SourceName  string    `json:"source_name"`
	Category    string    `json:"category,omitempty"`
}
