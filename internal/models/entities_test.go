package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCourseValidation(t *testing.T) {
	_, err := NewCourse("", "x", "F1", 1, RoomTypeLecture, 0, nil)
	assert.Error(t, err)

	_, err = NewCourse("A", "x", "", 1, RoomTypeLecture, 0, nil)
	assert.Error(t, err)

	_, err = NewCourse("A", "x", "F1", 0, RoomTypeLecture, 0, nil)
	assert.Error(t, err)

	course, err := NewCourse("A", "x", "F1", 2, RoomTypeLecture, 10, []string{"S1", "S1", "", "S2"})
	require.NoError(t, err)
	// Duplicates and blanks collapse out of the student set.
	assert.Equal(t, 2, course.Enrollment())
}

func TestRoomFits(t *testing.T) {
	course, err := NewCourse("A", "x", "F1", 1, RoomTypeLab, 10, []string{"S1", "S2"})
	require.NoError(t, err)

	assert.True(t, Room{ID: "R1", Capacity: 10, Type: RoomTypeLab}.Fits(course))
	// Wrong type.
	assert.False(t, Room{ID: "R2", Capacity: 50, Type: RoomTypeLecture}.Fits(course))
	// Below MinCapacity.
	assert.False(t, Room{ID: "R3", Capacity: 5, Type: RoomTypeLab}.Fits(course))

	// An untyped course accepts any room type.
	open, err := NewCourse("B", "x", "F1", 1, "", 0, nil)
	require.NoError(t, err)
	assert.True(t, Room{ID: "R4", Capacity: 1, Type: RoomTypeSeminar}.Fits(open))
}

func TestTimeGridSlots(t *testing.T) {
	grid := TimeGrid{Days: 5, PeriodsPerDay: 8}
	assert.Equal(t, 40, grid.SlotCount())
	assert.Equal(t, 2, grid.Day(17))
	assert.Equal(t, 1, grid.Period(17))
}

func TestPreferenceMatches(t *testing.T) {
	pref := Preference{CourseID: "A", SlotFrom: 4, SlotTo: 8, Weight: 2}
	assert.True(t, pref.Matches(Placement{Slot: 6, RoomID: "R1"}))
	assert.False(t, pref.Matches(Placement{Slot: 9, RoomID: "R1"}))

	roomPref := Preference{CourseID: "A", RoomID: "R2"}
	assert.True(t, roomPref.Matches(Placement{Slot: 0, RoomID: "R2"}))
	assert.False(t, roomPref.Matches(Placement{Slot: 0, RoomID: "R1"}))
}

func TestConflictInvolves(t *testing.T) {
	c := Conflict{CourseIDs: []string{"A", "B"}}
	assert.True(t, c.Involves("A"))
	assert.False(t, c.Involves("C"))
}

func TestJobStatusTerminal(t *testing.T) {
	assert.False(t, JobStatusQueued.Terminal())
	assert.False(t, JobStatusRunning.Terminal())
	assert.True(t, JobStatusCompleted.Terminal())
	assert.True(t, JobStatusFailed.Terminal())
	assert.True(t, JobStatusCancelled.Terminal())
}
