package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Column aliases accepted in CSV headers, matched case-insensitively.
var (
	idColumns     = []string{"item_id", "id", "movieid", "movie_id", "product_id", "book_id", "item"}
	titleColumns  = []string{"title", "name"}
	descColumns   = []string{"description", "overview", "summary"}
	userColumns   = []string{"user_id", "userid", "user"}
	ratingColumns = []string{"rating", "score", "stars"}
	tsColumns     = []string{"timestamp", "time", "ts"}
)

// CSVItems reads a catalog snapshot from a CSV file with a header row. The
// snapshot ref is derived from the file content, so re-reading an unchanged
// file yields the same ref.
type CSVItems struct {
	Path string
}

func (c CSVItems) Ref() string {
	return fileRef("items", c.Path)
}

func (c CSVItems) Items(_ context.Context) ([]Item, error) {
	f, err := os.Open(c.Path)
	if err != nil {
		return nil, fmt.Errorf("opening items csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading items csv header: %w", err)
	}
	idIdx := findColumn(header, idColumns)
	if idIdx < 0 {
		return nil, fmt.Errorf("items csv %s: no item id column (expected one of %v)", c.Path, idColumns)
	}
	titleIdx := findColumn(header, titleColumns)
	descIdx := findColumn(header, descColumns)

	var items []Item
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading items csv row: %w", err)
		}
		item := Item{ID: field(rec, idIdx)}
		if item.ID == "" {
			continue
		}
		item.Title = field(rec, titleIdx)
		item.Description = field(rec, descIdx)
		items = append(items, item)
	}
	return items, nil
}

// CSVRatings reads a ratings snapshot from a CSV file with a header row.
// Timestamps may be unix seconds or RFC 3339; missing timestamps are zero,
// which keeps the first-seen rating under last-write-wins.
type CSVRatings struct {
	Path string
}

func (c CSVRatings) Ref() string {
	return fileRef("ratings", c.Path)
}

func (c CSVRatings) Interactions(_ context.Context) ([]Interaction, error) {
	f, err := os.Open(c.Path)
	if err != nil {
		return nil, fmt.Errorf("opening ratings csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading ratings csv header: %w", err)
	}
	userIdx := findColumn(header, userColumns)
	itemIdx := findColumn(header, idColumns)
	ratingIdx := findColumn(header, ratingColumns)
	tsIdx := findColumn(header, tsColumns)
	if userIdx < 0 || itemIdx < 0 {
		return nil, fmt.Errorf("ratings csv %s: missing user or item id column", c.Path)
	}

	var out []Interaction
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading ratings csv row: %w", err)
		}
		in := Interaction{
			UserID: field(rec, userIdx),
			ItemID: field(rec, itemIdx),
			Rating: 1, // implicit-feedback weight when no rating column exists
		}
		if in.UserID == "" || in.ItemID == "" {
			continue
		}
		if v := field(rec, ratingIdx); v != "" {
			rating, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("ratings csv %s: bad rating %q: %w", c.Path, v, err)
			}
			in.Rating = rating
		}
		if v := field(rec, tsIdx); v != "" {
			in.Timestamp = parseTimestamp(v)
		}
		out = append(out, in)
	}
	return out, nil
}

func findColumn(header []string, aliases []string) int {
	for i, col := range header {
		name := strings.ToLower(strings.TrimSpace(col))
		for _, alias := range aliases {
			if name == alias {
				return i
			}
		}
	}
	return -1
}

func field(rec []string, idx int) string {
	if idx < 0 || idx >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[idx])
}

func parseTimestamp(v string) time.Time {
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC()
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t
	}
	return time.Time{}
}

func fileRef(kind, path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Sprintf("%s:%s:unreadable", kind, path)
	}
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%s:%s", kind, hex.EncodeToString(sum[:8]))
}
