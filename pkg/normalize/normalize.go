// Package normalize maps raw UserTweets timeline payloads into the flat
// Post/Author/Media schema. Field access goes through gjson lookup paths
// so upstream schema drift stays contained in this one file.
//
// ParsePage is a pure function: no shared state, identical output for
// identical input. It only fails when the top-level container shape is
// unrecognizable; individual malformed entries are dropped and counted.
package normalize

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/davidBerries/twitter-timeline/pkg/schema"
)

// ErrMalformedPage indicates the payload is not a recognizable timeline
// container at all. Callers classify this as a malformed-response
// failure.
var ErrMalformedPage = errors.New("unrecognized timeline payload")

// Timeline containers, probed in order. Upstream has shipped the same
// instruction list under both keys.
var containerPaths = []string{
	"data.user.result.timeline_v2.timeline",
	"data.user.result.timeline.timeline",
}

// Page is the normalized form of one raw timeline response.
type Page struct {
	// Posts in upstream order. Deduplication happens downstream.
	Posts []schema.Post

	// NextCursor is the opaque bottom cursor, empty when upstream
	// provided none. Never synthesized or parsed here.
	NextCursor string

	// Skipped counts entries dropped for missing id or author.
	Skipped int
}

// ParsePage normalizes one raw page body.
func ParsePage(body []byte) (*Page, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: not valid JSON", ErrMalformedPage)
	}

	var timeline gjson.Result
	for _, path := range containerPaths {
		if c := gjson.GetBytes(body, path); c.Exists() {
			timeline = c
			break
		}
	}
	if !timeline.Exists() {
		return nil, fmt.Errorf("%w: no timeline container", ErrMalformedPage)
	}

	instructions := timeline.Get("instructions")
	if !instructions.IsArray() {
		return nil, fmt.Errorf("%w: missing instructions", ErrMalformedPage)
	}

	page := &Page{}
	instructions.ForEach(func(_, ins gjson.Result) bool {
		switch ins.Get("type").Str {
		case "TimelinePinEntry":
			page.addEntry(ins.Get("entry"))
		case "TimelineAddEntries":
			ins.Get("entries").ForEach(func(_, entry gjson.Result) bool {
				page.addEntry(entry)
				return true
			})
		}
		return true
	})

	return page, nil
}

func (p *Page) addEntry(entry gjson.Result) {
	content := entry.Get("content")

	switch content.Get("entryType").Str {
	case "TimelineTimelineCursor":
		if content.Get("cursorType").Str == "Bottom" {
			p.NextCursor = content.Get("value").Str
		}
		return
	case "TimelineTimelineItem":
	default:
		return
	}

	result := content.Get("itemContent.tweet_results.result")
	if !result.Exists() {
		return
	}

	// Limited-visibility tweets wrap the real tweet one level down.
	if result.Get("__typename").Str == "TweetWithVisibilityResults" {
		result = result.Get("tweet")
	}

	post, ok := normalizeTweet(result)
	if !ok {
		p.Skipped++
		return
	}
	p.Posts = append(p.Posts, post)
}

func normalizeTweet(result gjson.Result) (schema.Post, bool) {
	id := result.Get("rest_id").Str
	if id == "" {
		id = result.Get("legacy.id_str").Str
	}
	if id == "" {
		return schema.Post{}, false
	}

	author, ok := normalizeAuthor(result.Get("core.user_results.result"))
	if !ok {
		return schema.Post{}, false
	}

	legacy := result.Get("legacy")

	post := schema.Post{
		ID:             id,
		Text:           legacy.Get("full_text").Str,
		Lang:           optString(legacy.Get("lang")),
		ConversationID: optString(legacy.Get("conversation_id_str")),
		Views:          count(result.Get("views.count")),
		Favorites:      count(legacy.Get("favorite_count")),
		Replies:        count(legacy.Get("reply_count")),
		Retweets:       count(legacy.Get("retweet_count")),
		Quotes:         count(legacy.Get("quote_count")),
		Bookmarks:      count(legacy.Get("bookmark_count")),
		Media:          normalizeMedia(legacy),
		Author:         author,
	}

	if created := legacy.Get("created_at"); created.Exists() {
		post.CreatedAt = created.Str
		if ts, err := time.Parse(time.RubyDate, created.Str); err == nil {
			utc := ts.UTC()
			post.CreatedAtUTC = &utc
		}
	}

	return post, true
}

func normalizeAuthor(user gjson.Result) (schema.Author, bool) {
	restID := user.Get("rest_id").Str
	if restID == "" {
		return schema.Author{}, false
	}

	return schema.Author{
		RestID:       restID,
		Name:         user.Get("legacy.name").Str,
		ScreenName:   user.Get("legacy.screen_name").Str,
		Avatar:       optString(user.Get("legacy.profile_image_url_https")),
		BlueVerified: user.Get("is_blue_verified").Bool(),
	}, true
}

func normalizeMedia(legacy gjson.Result) []schema.Media {
	entries := legacy.Get("extended_entities.media")
	if !entries.Exists() {
		entries = legacy.Get("entities.media")
	}

	var media []schema.Media
	entries.ForEach(func(_, m gjson.Result) bool {
		url := m.Get("media_url_https").Str
		if url == "" {
			url = m.Get("url").Str
		}
		media = append(media, schema.Media{
			Type: mediaType(m.Get("type").Str),
			URL:  url,
		})
		return true
	})
	return media
}

func mediaType(raw string) schema.MediaType {
	switch raw {
	case "photo":
		return schema.MediaPhoto
	case "video":
		return schema.MediaVideo
	case "animated_gif":
		return schema.MediaAnimatedGIF
	case "link":
		return schema.MediaLink
	default:
		return schema.MediaUnknown
	}
}

// count normalizes an engagement counter. Upstream ships these as
// numbers or decimal strings; anything absent, negative, or unparseable
// becomes null rather than 0.
func count(field gjson.Result) schema.Count {
	if !field.Exists() {
		return schema.NullCount()
	}

	switch field.Type {
	case gjson.Number:
		v := field.Int()
		if field.Num != float64(v) || v < 0 {
			return schema.NullCount()
		}
		return schema.NewCount(v)
	case gjson.String:
		v, err := strconv.ParseInt(strings.TrimSpace(field.Str), 10, 64)
		if err != nil || v < 0 {
			return schema.NullCount()
		}
		return schema.NewCount(v)
	default:
		return schema.NullCount()
	}
}

func optString(field gjson.Result) *string {
	if !field.Exists() || field.Type != gjson.String {
		return nil
	}
	s := field.Str
	return &s
}
