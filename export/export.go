// Package export renders a bounded issue result set into spreadsheet and
// PDF documents. It is a pure transform of the query pipeline's output: the
// caller re-runs the list query with its active filters and a raised limit,
// then hands the rows here.
package export

import (
	"encoding/json"
	"strings"

	"jansetu-be/models"
)

// MaxRows bounds an export to the first 1000 matching records.
const MaxRows = 1000

// Header is the fixed column order shared by both document formats.
var Header = []string{
	"Complaint ID",
	"Category",
	"Status",
	"Priority",
	"Location",
	"Reported On",
	"Assigned To",
	"Description",
}

// Rows projects issues into the tabular export layout, in Header order.
func Rows(issues []models.Issue) [][]string {
	rows := make([][]string, 0, len(issues))
	for _, it := range issues {
		rows = append(rows, []string{
			it.TrackingID,
			it.Category,
			Label(string(it.Status)),
			Label(string(it.Priority)),
			locationName(it.Location),
			it.CreatedAt.UTC().Format("2006-01-02"),
			deref(it.AssignedTo),
			it.Description,
		})
	}
	return rows
}

// Label renders an enum value for humans: in_progress becomes "In Progress",
// every other value is title-cased.
func Label(value string) string {
	if value == string(models.StatusInProgress) {
		return "In Progress"
	}
	if value == "" {
		return ""
	}
	return strings.ToUpper(value[:1]) + value[1:]
}

func locationName(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	var loc struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &loc); err != nil {
		return ""
	}
	return loc.Name
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
