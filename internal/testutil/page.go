package testutil

import (
	"fmt"
	"strings"
)

// Tweet is a minimal fixture entry for TimelineBody.
type Tweet struct {
	ID       string
	AuthorID string
	Text     string
}

// TimelineBody builds a UserTweets timeline payload containing the given
// tweets and, when cursor is non-empty, a bottom cursor entry.
func TimelineBody(cursor string, tweets ...Tweet) []byte {
	entries := make([]string, 0, len(tweets)+1)
	for _, tw := range tweets {
		entries = append(entries, fmt.Sprintf(`{
			"content": {
				"entryType": "TimelineTimelineItem",
				"itemContent": {"tweet_results": {"result": {
					"rest_id": %q,
					"__typename": "Tweet",
					"legacy": {
						"full_text": %q,
						"created_at": "Wed Oct 10 20:19:24 +0000 2018",
						"favorite_count": 1
					},
					"core": {"user_results": {"result": {
						"rest_id": %q,
						"legacy": {"name": "Fixture", "screen_name": "fixture"}
					}}}
				}}}
			}
		}`, tw.ID, tw.Text, tw.AuthorID))
	}
	if cursor != "" {
		entries = append(entries, fmt.Sprintf(`{
			"content": {"entryType": "TimelineTimelineCursor", "cursorType": "Bottom", "value": %q}
		}`, cursor))
	}

	return []byte(fmt.Sprintf(`{
		"data": {"user": {"result": {"timeline_v2": {"timeline": {
			"instructions": [{"type": "TimelineAddEntries", "entries": [%s]}]
		}}}}}
	}`, strings.Join(entries, ",")))
}
