package photos

import (
	"sort"
	"strings"
	"time"
)

// DefaultSuggestionLimit is how many titles SuggestTitles returns.
const DefaultSuggestionLimit = 6

// MonthGroup is a run of photos taken in the same calendar month.
type MonthGroup struct {
	Label  string    `json:"label"` // e.g. "March 2024"
	Month  time.Time `json:"month"`
	Photos []Photo   `json:"photos"`
}

// GroupByMonth buckets photos by the month of CreatedAt in loc, newest
// month first. Order within a bucket follows the input order.
func GroupByMonth(photos []Photo, loc *time.Location) []MonthGroup {
	if loc == nil {
		loc = time.UTC
	}
	var groups []MonthGroup
	index := map[time.Time]int{}
	for _, p := range photos {
		t := p.CreatedAt.In(loc)
		key := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, MonthGroup{Label: key.Format("January 2006"), Month: key})
		}
		groups[i].Photos = append(groups[i].Photos, p)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Month.After(groups[j].Month)
	})
	return groups
}

// SuggestTitles returns up to limit distinct titles containing query,
// ignoring case, in the order they first appear.
func SuggestTitles(photos []Photo, query string, limit int) []string {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return []string{}
	}
	if limit <= 0 {
		limit = DefaultSuggestionLimit
	}
	seen := map[string]bool{}
	out := []string{}
	for _, p := range photos {
		if p.Title == "" || seen[p.Title] {
			continue
		}
		seen[p.Title] = true
		if strings.Contains(strings.ToLower(p.Title), q) {
			out = append(out, p.Title)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}
