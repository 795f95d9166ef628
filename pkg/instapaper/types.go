package instapaper

import (
	"bytes"
	"strings"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/wbip/wbip/pkg/models"
)

const typeBookmark = "bookmark"

// Bookmark is a saved article as the upstream API describes it.
type Bookmark struct {
	ID                int64
	Title             string
	URL               string
	Description       string
	Hash              string
	Tags              []string
	Progress          float64
	ProgressTimestamp time.Time
	Time              time.Time
	Starred           bool
}

// Model converts the bookmark into its stored form.
func (b *Bookmark) Model() *models.Bookmark {
	m := &models.Bookmark{
		ID:    b.ID,
		Title: b.Title,
		URL:   b.URL,
	}
	m.SetTags(b.Tags)
	return m
}

// UpdatedAt is the most recent of the save time and the last progress update.
func (b *Bookmark) UpdatedAt() time.Time {
	if b.ProgressTimestamp.After(b.Time) {
		return b.ProgressTimestamp
	}
	return b.Time
}

type apiTag struct {
	Name string `json:"name"`
}

// apiRecord is one element of an API response array. Responses mix records of
// several types (meta, user, bookmark, error).
type apiRecord struct {
	Type              string   `json:"type"`
	BookmarkID        int64    `json:"bookmark_id"`
	Title             string   `json:"title"`
	URL               string   `json:"url"`
	Description       string   `json:"description"`
	Hash              string   `json:"hash"`
	Tags              []apiTag `json:"tags"`
	Progress          float64  `json:"progress"`
	ProgressTimestamp float64  `json:"progress_timestamp"`
	Time              float64  `json:"time"`
	Starred           flexBool `json:"starred"`
	ErrorCode         int      `json:"error_code"`
	Message           string   `json:"message"`
}

func (r *apiRecord) bookmark() *Bookmark {
	b := &Bookmark{
		ID:          r.BookmarkID,
		Title:       r.Title,
		URL:         r.URL,
		Description: r.Description,
		Hash:        r.Hash,
		Tags:        make([]string, 0, len(r.Tags)),
		Progress:    r.Progress,
		Starred:     bool(r.Starred),
	}
	for _, t := range r.Tags {
		b.Tags = append(b.Tags, t.Name)
	}
	if r.Time > 0 {
		b.Time = time.Unix(int64(r.Time), 0).UTC()
	}
	if r.ProgressTimestamp > 0 {
		b.ProgressTimestamp = time.Unix(int64(r.ProgressTimestamp), 0).UTC()
	}
	return b
}

// flexBool accepts "1", 1, true and their negatives.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	*f = flexBool(s == "1" || s == "true")
	return nil
}

func decodeRecords(data []byte) ([]apiRecord, error) {
	var records []apiRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}
