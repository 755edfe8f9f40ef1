package presentation

import (
	"sort"
	"strings"

	"github.com/MarcoPoloResearchLab/notevault/internal/notes"
)

// SortNotes orders pinned notes first, then by ascending CreatedAt with unset values
// ranked as epoch zero. Ties keep their input order. The input slice is not modified.
func SortNotes(input []notes.Note) []notes.Note {
	sorted := make([]notes.Note, len(input))
	copy(sorted, input)
	sort.SliceStable(sorted, func(i, j int) bool {
		left, right := sorted[i], sorted[j]
		if left.IsPinned != right.IsPinned {
			return left.IsPinned
		}
		return createdAtOf(left) < createdAtOf(right)
	})
	return sorted
}

// FilterNotes keeps notes whose message contains query, ignoring case. A blank query keeps all;
// any other query is matched as typed, surrounding whitespace included.
func FilterNotes(input []notes.Note, query string) []notes.Note {
	if strings.TrimSpace(query) == "" {
		out := make([]notes.Note, len(input))
		copy(out, input)
		return out
	}
	needle := strings.ToLower(query)
	out := make([]notes.Note, 0, len(input))
	for _, note := range input {
		if strings.Contains(strings.ToLower(note.Text()), needle) {
			out = append(out, note)
		}
	}
	return out
}

// VisibleNotes applies the search filter and then the sort.
func VisibleNotes(full []notes.Note, query string) []notes.Note {
	return SortNotes(FilterNotes(full, query))
}

// nextExpiry returns the earliest DeletedAt strictly after nowMillis.
func nextExpiry(full []notes.Note, nowMillis int64) (int64, bool) {
	var earliest int64
	found := false
	for _, note := range full {
		if note.DeletedAt == nil || *note.DeletedAt <= nowMillis {
			continue
		}
		if !found || *note.DeletedAt < earliest {
			earliest = *note.DeletedAt
			found = true
		}
	}
	return earliest, found
}

func createdAtOf(note notes.Note) int64 {
	if note.CreatedAt == nil {
		return 0
	}
	return *note.CreatedAt
}
