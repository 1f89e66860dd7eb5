package types

// Post status values that the trigger bindings care about
const (
	StatusPublish = "publish"
	StatusTrash   = "trash"
	StatusDraft   = "draft"
	StatusFuture  = "future"
	StatusPrivate = "private"
)

// ChangedContent is the content item whose change triggered a selective purge.
// It is supplied by the host and never modified here.
type ChangedContent struct {
	ID         int64   `json:"id"`
	Type       string  `json:"type"`
	Status     string  `json:"status,omitempty"`
	Permalink  string  `json:"permalink,omitempty"`
	Categories []Term  `json:"categories,omitempty"`
	Tags       []Term  `json:"tags,omitempty"`
	Author     *Author `json:"author,omitempty"`
}

// Term is a taxonomy term attached to content (category or tag).
// Link, when set by the host, is used verbatim instead of the derived archive URL.
type Term struct {
	ID   int64  `json:"id"`
	Slug string `json:"slug"`
	Link string `json:"link,omitempty"`
}

// Author identifies the content author
type Author struct {
	ID       int64  `json:"id"`
	Nicename string `json:"nicename"`
	Link     string `json:"link,omitempty"`
	FeedLink string `json:"feed_link,omitempty"`
}
