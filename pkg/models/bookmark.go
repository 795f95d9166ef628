package models

import (
	"sort"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// TagNoImages is the bookmark tag that opts an article out of image embedding.
const TagNoImages = "_noimg"

const tagSeparator = ","

type Bookmark struct {
	bun.BaseModel `bun:"table:bookmarks,alias:bm"`

	ID        int64     `bun:",pk" json:"id"`
	CreatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp" json:"updated_at"`
	Title     string    `bun:",notnull" json:"title"`
	URL       string    `bun:"url,notnull" json:"url"`
	Tags      string    `bun:",notnull" json:"-"`
}

// TagList returns the bookmark's tags in their stored order.
func (b *Bookmark) TagList() []string {
	if b.Tags == "" {
		return []string{}
	}
	parts := strings.Split(b.Tags, tagSeparator)
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}

// SetTags stores the given tag names as a de-duplicated, sorted set.
func (b *Bookmark) SetTags(tags []string) {
	seen := make(map[string]struct{}, len(tags))
	set := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(strings.ReplaceAll(t, tagSeparator, " "))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		set = append(set, t)
	}
	sort.Strings(set)
	b.Tags = strings.Join(set, tagSeparator)
}

func (b *Bookmark) HasTag(tag string) bool {
	for _, t := range b.TagList() {
		if t == tag {
			return true
		}
	}
	return false
}
