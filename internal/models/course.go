package models

import "time"

// Course represents a training course with a finite number of seats.
// CapacityOccupied is mutated exclusively through the seat ledger; no other
// code path may write it.
type Course struct {
	ID               string    `db:"id" json:"id"`
	Code             string    `db:"code" json:"code"`
	Name             string    `db:"name" json:"name"`
	CapacityTotal    int       `db:"capacity_total" json:"capacity_total"`
	CapacityOccupied int       `db:"capacity_occupied" json:"capacity_occupied"`
	StartDate        time.Time `db:"start_date" json:"start_date"`
	EndDate          time.Time `db:"end_date" json:"end_date"`
	Active           bool      `db:"active" json:"active"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// CourseAvailability is the cached seat snapshot served to clients.
type CourseAvailability struct {
	CourseID  string `json:"course_id"`
	Total     int    `json:"total"`
	Occupied  int    `json:"occupied"`
	Available int    `json:"available"`
}

// CourseFilter provides filters for listing courses.
type CourseFilter struct {
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
