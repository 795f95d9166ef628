package bookmarks

import (
	"time"

	"github.com/wbip/wbip/pkg/instapaper"
)

// updatedAtLayout is the timestamp format wallabag clients parse.
const updatedAtLayout = "2006-01-02T15:04:05-0700"

const entryMimetype = "text/html"

// Entry is a bookmark as a wallabag client sees it.
type Entry struct {
	ID                int64    `json:"id"`
	Title             string   `json:"title"`
	URL               string   `json:"url"`
	Description       string   `json:"description"`
	Hash              string   `json:"hash,omitempty"`
	Progress          float64  `json:"progress"`
	ProgressTimestamp int64    `json:"progress_timestamp"`
	Time              int64    `json:"time"`
	Starred           int      `json:"starred"`
	Tags              []string `json:"tags,omitempty"`
	Mimetype          string   `json:"mimetype"`
	UpdatedAt         string   `json:"updated_at"`
}

type embeddedItems struct {
	Items []*Entry `json:"items"`
}

// EntriesResponse is the wallabag list envelope.
type EntriesResponse struct {
	Embedded embeddedItems `json:"_embedded"`
}

// ArchiveResponse acknowledges an archive request before upstream has seen it.
type ArchiveResponse struct {
	ID      int64 `json:"id"`
	Archive int   `json:"archive"`
}

func newEntry(b *instapaper.Bookmark, includeTags bool) *Entry {
	e := &Entry{
		ID:          b.ID,
		Title:       b.Title,
		URL:         b.URL,
		Description: b.Description,
		Hash:        b.Hash,
		Progress:    b.Progress,
		Time:        unix(b.Time),
		Mimetype:    entryMimetype,
	}
	e.ProgressTimestamp = unix(b.ProgressTimestamp)
	if b.Starred {
		e.Starred = 1
	}
	if includeTags {
		e.Tags = append([]string{}, b.Tags...)
	}
	if updated := b.UpdatedAt(); !updated.IsZero() {
		e.UpdatedAt = updated.UTC().Format(updatedAtLayout)
	}
	return e
}

func unix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
