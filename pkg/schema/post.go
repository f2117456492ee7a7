// Package schema defines the normalized record shapes emitted by the
// timeline collector. Records are immutable once emitted; absence of an
// optional upstream field is represented as JSON null, never as a zero
// value.
package schema

import "time"

// MediaType classifies an attachment on a post.
type MediaType string

const (
	MediaPhoto       MediaType = "photo"
	MediaVideo       MediaType = "video"
	MediaAnimatedGIF MediaType = "animated_gif"
	MediaLink        MediaType = "link"

	// MediaUnknown is used for upstream media types this schema does not
	// recognize. Unknown attachments are kept, not dropped, so their
	// presence survives normalization.
	MediaUnknown MediaType = "unknown"
)

// Media is a single attachment on a post.
type Media struct {
	Type MediaType `json:"type"`
	URL  string    `json:"url"`
}

// Author is the embedded account that published a post. A Post without a
// resolvable author is never emitted.
type Author struct {
	RestID     string  `json:"rest_id"`
	Name       string  `json:"name"`
	ScreenName string  `json:"screen_name"`
	Avatar     *string `json:"avatar"`

	// BlueVerified defaults to false when upstream omits the field.
	// Verification is the one field where absence is meaningful and safe
	// to default.
	BlueVerified bool `json:"blue_verified"`
}

// Post is one normalized timeline entry.
type Post struct {
	ID string `json:"tweet_id"`

	// CreatedAt preserves the upstream timestamp verbatim; CreatedAtUTC
	// carries the parsed form when the verbatim value is parseable.
	CreatedAt    string     `json:"created_at"`
	CreatedAtUTC *time.Time `json:"created_at_utc"`

	Text           string  `json:"text"`
	Lang           *string `json:"lang"`
	ConversationID *string `json:"conversation_id"`

	Views     Count `json:"views"`
	Favorites Count `json:"favorites"`
	Replies   Count `json:"replies"`
	Retweets  Count `json:"retweets"`
	Quotes    Count `json:"quotes"`
	Bookmarks Count `json:"bookmarks"`

	Media  []Media `json:"media"`
	Author Author  `json:"author"`

	// Run metadata stamped by the collector at emit time.
	FetchedAt string `json:"_fetched_at,omitempty"`
	Source    string `json:"_source,omitempty"`
	RunID     string `json:"_run_id,omitempty"`
}
