package report

import (
	"sort"
	"strings"

	"github.com/trezcool/rapor/core"
)

// ListOrderingFields are the fields ListItems can be sorted on.
var ListOrderingFields = []string{"student_name", "published", "published_at"}

var defaultListOrdering = []core.Ordering{{Field: "student_name", Ascending: true}}

// SortListItems sorts items in place. Unknown fields are ignored; ties keep the student name order.
func SortListItems(items []ListItem, ordering []core.Ordering) {
	ordering = append(append(make([]core.Ordering, 0, len(ordering)+1), ordering...), defaultListOrdering...)
	sort.SliceStable(items, func(i, j int) bool {
		for _, ord := range ordering {
			c := compareListItems(items[i], items[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
}

func compareListItems(a, b ListItem, field string) int {
	switch field {
	case "student_name":
		return strings.Compare(strings.ToLower(a.StudentName), strings.ToLower(b.StudentName))
	case "published":
		return compareBool(a.Published, b.Published)
	case "published_at":
		switch {
		case a.PublishedAt == nil && b.PublishedAt == nil:
			return 0
		case a.PublishedAt == nil:
			return -1
		case b.PublishedAt == nil:
			return 1
		case a.PublishedAt.Before(*b.PublishedAt):
			return -1
		case a.PublishedAt.After(*b.PublishedAt):
			return 1
		}
	}
	return 0
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}
