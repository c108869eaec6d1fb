package export

import (
	"strconv"
	"strings"

	"github.com/noah-isme/timetable-engine/internal/models"
)

// AssignmentDataset flattens a generation result's assignments for CSV.
func AssignmentDataset(result *models.GenerationResult) Dataset {
	data := Dataset{Headers: []string{"course", "session", "slot", "room"}}
	for _, a := range result.Assignments {
		data.Rows = append(data.Rows, []string{
			a.Session.CourseID,
			strconv.Itoa(a.Session.Index),
			strconv.Itoa(a.Placement.Slot),
			a.Placement.RoomID,
		})
	}
	return data
}

// ConflictDataset flattens residual conflicts for the conflict report PDF.
func ConflictDataset(conflicts []models.Conflict) Dataset {
	data := Dataset{Headers: []string{"type", "severity", "resource", "slot", "courses"}}
	for _, c := range conflicts {
		data.Rows = append(data.Rows, []string{
			string(c.Type),
			string(c.Severity),
			c.ResourceID,
			strconv.Itoa(c.Slot),
			strings.Join(c.CourseIDs, " "),
		})
	}
	return data
}
