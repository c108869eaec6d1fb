package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/timetable-engine/internal/models"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
)

// Snapshot is one org/semester's scheduling input loaded from storage.
type Snapshot struct {
	Org         string
	Semester    string
	Courses     map[string]*models.Course
	Rooms       map[string]models.Room
	Preferences []models.Preference
}

// SnapshotRepository loads scheduling inputs. The engine never writes through
// it; results live with the job, not the entity store.
type SnapshotRepository struct {
	db *sqlx.DB
}

// NewSnapshotRepository builds the read-only loader.
func NewSnapshotRepository(db *sqlx.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

type courseRow struct {
	ID          string `db:"id"`
	Name        string `db:"name"`
	FacultyID   string `db:"faculty_id"`
	Duration    int    `db:"duration"`
	RoomType    string `db:"room_type"`
	MinCapacity int    `db:"min_capacity"`
}

type enrollmentRow struct {
	CourseID  string `db:"course_id"`
	StudentID string `db:"student_id"`
}

type roomRow struct {
	ID       string `db:"id"`
	Capacity int    `db:"capacity"`
	Type     string `db:"type"`
}

type preferenceRow struct {
	Department string         `db:"department"`
	CourseID   string         `db:"course_id"`
	SlotFrom   int            `db:"slot_from"`
	SlotTo     int            `db:"slot_to"`
	RoomID     sql.NullString `db:"room_id"`
	Weight     int            `db:"weight"`
}

// LoadSnapshot fetches courses, enrollments, rooms and preferences for one
// org and semester.
func (r *SnapshotRepository) LoadSnapshot(ctx context.Context, org, semester string) (*Snapshot, error) {
	var courseRows []courseRow
	err := r.db.SelectContext(ctx, &courseRows, `
		SELECT id, name, faculty_id, duration, room_type, min_capacity
		FROM courses
		WHERE org = $1 AND semester = $2
		ORDER BY id`, org, semester)
	if err != nil {
		return nil, fmt.Errorf("load courses: %w", err)
	}
	if len(courseRows) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound,
			fmt.Sprintf("no courses for %s/%s", org, semester))
	}

	var enrollmentRows []enrollmentRow
	err = r.db.SelectContext(ctx, &enrollmentRows, `
		SELECT e.course_id, e.student_id
		FROM enrollments e
		JOIN courses c ON c.id = e.course_id
		WHERE c.org = $1 AND c.semester = $2`, org, semester)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load enrollments: %w", err)
	}
	students := make(map[string][]string, len(courseRows))
	for _, row := range enrollmentRows {
		students[row.CourseID] = append(students[row.CourseID], row.StudentID)
	}

	courses := make(map[string]*models.Course, len(courseRows))
	for _, row := range courseRows {
		course, err := models.NewCourse(row.ID, row.Name, row.FacultyID,
			row.Duration, models.RoomType(row.RoomType), row.MinCapacity, students[row.ID])
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status,
				fmt.Sprintf("stored course %s is invalid", row.ID))
		}
		courses[course.ID] = course
	}

	var roomRows []roomRow
	err = r.db.SelectContext(ctx, &roomRows, `
		SELECT id, capacity, type
		FROM rooms
		WHERE org = $1
		ORDER BY id`, org)
	if err != nil {
		return nil, fmt.Errorf("load rooms: %w", err)
	}
	if len(roomRows) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound,
			fmt.Sprintf("no rooms for %s", org))
	}
	rooms := make(map[string]models.Room, len(roomRows))
	for _, row := range roomRows {
		rooms[row.ID] = models.Room{ID: row.ID, Capacity: row.Capacity, Type: models.RoomType(row.Type)}
	}

	var preferenceRows []preferenceRow
	err = r.db.SelectContext(ctx, &preferenceRows, `
		SELECT p.department, p.course_id, p.slot_from, p.slot_to, p.room_id, p.weight
		FROM preferences p
		JOIN courses c ON c.id = p.course_id
		WHERE c.org = $1 AND c.semester = $2`, org, semester)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load preferences: %w", err)
	}
	prefs := make([]models.Preference, 0, len(preferenceRows))
	for _, row := range preferenceRows {
		weight := row.Weight
		if weight <= 0 {
			weight = 1
		}
		prefs = append(prefs, models.Preference{
			Department: row.Department,
			CourseID:   row.CourseID,
			SlotFrom:   row.SlotFrom,
			SlotTo:     row.SlotTo,
			RoomID:     row.RoomID.String,
			Weight:     weight,
		})
	}

	return &Snapshot{
		Org:         org,
		Semester:    semester,
		Courses:     courses,
		Rooms:       rooms,
		Preferences: prefs,
	}, nil
}
