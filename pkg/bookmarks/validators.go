package bookmarks

type ListEntriesQuery struct {
	Page    int `query:"page" json:"page" default:"1" validate:"min=1"`
	PerPage int `query:"perPage" json:"perPage" validate:"min=0,max=500"`
}

type AddEntryPayload struct {
	URL string `json:"url" form:"url" mod:"trim" validate:"required,http_url"`
}

// ArchiveEntryPayload is the wallabag PATCH body. Only archive=1 does anything.
type ArchiveEntryPayload struct {
	Archive int `json:"archive" form:"archive"`
}
