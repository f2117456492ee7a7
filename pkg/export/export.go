// Package export writes collected posts to files in JSON, NDJSON, or
// CSV form.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/davidBerries/twitter-timeline/pkg/schema"
)

// Format selects the output encoding.
type Format string

const (
	// FormatJSON writes one pretty-printed JSON array.
	FormatJSON Format = "json"

	// FormatNDJSON writes one JSON object per line.
	FormatNDJSON Format = "ndjson"

	// FormatCSV writes a flat CSV with a header row.
	FormatCSV Format = "csv"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatNDJSON:
		return FormatNDJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unknown export format %q (want json, ndjson, or csv)", s)
	}
}

// Write encodes posts to path in the given format, creating parent
// directories as needed. An empty post slice still produces a valid
// file (empty array, empty file, or header-only CSV).
func Write(path string, format Format, posts []schema.Post) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	switch format {
	case FormatJSON:
		err = writeJSON(f, posts)
	case FormatNDJSON:
		err = writeNDJSON(f, posts)
	case FormatCSV:
		err = writeCSV(f, posts)
	default:
		err = fmt.Errorf("unknown export format %q", format)
	}
	if err != nil {
		return err
	}

	if cerr := f.Close(); cerr != nil {
		return fmt.Errorf("close output file: %w", cerr)
	}

	log.Info().
		Str("component", "export").
		Str("path", path).
		Str("format", string(format)).
		Int("posts", len(posts)).
		Msg("Export complete")

	return nil
}

func writeJSON(f *os.File, posts []schema.Post) error {
	if posts == nil {
		posts = []schema.Post{}
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(posts); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

func writeNDJSON(f *os.File, posts []schema.Post) error {
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	for _, p := range posts {
		if err := enc.Encode(p); err != nil {
			return fmt.Errorf("encode ndjson record: %w", err)
		}
	}
	return nil
}

// csvHeader is the flat projection used for spreadsheet-friendly output.
// Counters render empty when upstream omitted them, so absent stays
// distinguishable from zero.
var csvHeader = []string{
	"tweet_id", "created_at", "text", "lang",
	"author_id", "author_screen_name", "author_name",
	"replies", "retweets", "likes", "quotes", "bookmarks", "views",
	"media_count",
}

func writeCSV(f *os.File, posts []schema.Post) error {
	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, p := range posts {
		lang := ""
		if p.Lang != nil {
			lang = *p.Lang
		}
		record := []string{
			p.ID,
			p.CreatedAt,
			p.Text,
			lang,
			p.Author.RestID,
			p.Author.ScreenName,
			p.Author.Name,
			csvCount(p.Replies),
			csvCount(p.Retweets),
			csvCount(p.Favorites),
			csvCount(p.Quotes),
			csvCount(p.Bookmarks),
			csvCount(p.Views),
			fmt.Sprintf("%d", len(p.Media)),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func csvCount(c schema.Count) string {
	if !c.Valid {
		return ""
	}
	return fmt.Sprintf("%d", c.Value)
}
